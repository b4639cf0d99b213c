package entity

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/proto"
)

const (
	rfServer = 1 << iota
	rfOwnClient
)

// ArgKind is the declared type of an RPC parameter
type ArgKind uint8

const (
	// ArgInt is a decimal integer
	ArgInt ArgKind = iota
	// ArgFloat is a decimal float
	ArgFloat
	// ArgBool is True/False
	ArgBool
	// ArgString is any text without delimiters
	ArgString
)

func (k ArgKind) String() string {
	switch k {
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	case ArgBool:
		return "bool"
	case ArgString:
		return "string"
	}
	return fmt.Sprintf("ArgKind(%d)", uint8(k))
}

// ErrBadArguments is returned when RPC arguments do not match the declared parameters
var ErrBadArguments = errors.New("bad rpc arguments")

// Args are the coerced arguments of one RPC call
type Args struct {
	raw  []string
	vals []interface{}
}

// Len returns the number of arguments
func (a Args) Len() int { return len(a.vals) }

// Raw returns the arguments as they appear on the wire
func (a Args) Raw() []string { return a.raw }

// Int returns argument i, declared ArgInt
func (a Args) Int(i int) int { return a.vals[i].(int) }

// Float returns argument i, declared ArgFloat
func (a Args) Float(i int) float32 { return a.vals[i].(float32) }

// Bool returns argument i, declared ArgBool
func (a Args) Bool(i int) bool { return a.vals[i].(bool) }

// Text returns argument i, declared ArgString
func (a Args) Text(i int) string { return a.vals[i].(string) }

// Handler runs an RPC on an entity and reports whether the effect was accepted
type Handler func(e Entity, args Args) bool

// Method adapts a handler of a concrete variant to Handler
func Method[T Entity](f func(e T, args Args) bool) Handler {
	return func(e Entity, args Args) bool {
		return f(e.(T), args)
	}
}

// RPCDesc describes one RPC method of an entity type
type RPCDesc struct {
	Name    string
	Handler Handler
	Params  []ArgKind
	flags   uint
}

// ClientCallable reports whether the owning client may invoke the method
func (rd *RPCDesc) ClientCallable() bool {
	return rd.flags&rfOwnClient != 0
}

// Coerce converts wire arguments to the declared parameter kinds
func (rd *RPCDesc) Coerce(raw []string) (Args, error) {
	if len(raw) != len(rd.Params) {
		return Args{}, errors.Wrapf(ErrBadArguments, "%s: expect %d arguments, got %d", rd.Name, len(rd.Params), len(raw))
	}
	vals := make([]interface{}, len(raw))
	for i, s := range raw {
		var v interface{}
		var err error
		switch rd.Params[i] {
		case ArgInt:
			v, err = proto.ParseInt(s)
		case ArgFloat:
			v, err = proto.ParseFloat(s)
		case ArgBool:
			v, err = proto.ParseBool(s)
		case ArgString:
			v = s
		}
		if err != nil {
			return Args{}, errors.Wrapf(ErrBadArguments, "%s: argument %d: %q is not %s", rd.Name, i, s, rd.Params[i])
		}
		vals[i] = v
	}
	return Args{raw: raw, vals: vals}, nil
}

// Format converts Go values to wire arguments, checking them against the declared kinds
func (rd *RPCDesc) Format(args ...interface{}) ([]string, error) {
	if len(args) != len(rd.Params) {
		return nil, errors.Wrapf(ErrBadArguments, "%s: expect %d arguments, got %d", rd.Name, len(rd.Params), len(args))
	}
	raw := make([]string, len(args))
	for i, a := range args {
		var ok bool
		switch rd.Params[i] {
		case ArgInt:
			var v int
			if v, ok = a.(int); ok {
				raw[i] = proto.FormatInt(v)
			}
		case ArgFloat:
			var v float32
			if v, ok = a.(float32); ok {
				raw[i] = proto.FormatFloat(v)
			}
		case ArgBool:
			var v bool
			if v, ok = a.(bool); ok {
				raw[i] = proto.FormatBool(v)
			}
		case ArgString:
			raw[i], ok = a.(string)
		}
		if !ok {
			return nil, errors.Wrapf(ErrBadArguments, "%s: argument %d: %T is not %s", rd.Name, i, a, rd.Params[i])
		}
	}
	return raw, nil
}

type rpcDescMap map[string]*RPCDesc
