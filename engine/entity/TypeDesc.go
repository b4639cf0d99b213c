package entity

import (
	"sort"

	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

// Factory creates a zero entity of a variant
type Factory func() Entity

// TypeDesc is the entity type description: its factory and RPC table
type TypeDesc struct {
	name     string
	factory  Factory
	rpcDescs rpcDescMap
}

// Name returns the type tag
func (desc *TypeDesc) Name() string {
	return desc.name
}

func (desc *TypeDesc) define(name string, flags uint, handler Handler, params []ArgKind) *TypeDesc {
	if _, ok := desc.rpcDescs[name]; ok {
		gwlog.Panicf("%s: rpc %s defined twice", desc.name, name)
	}
	if handler == nil {
		gwlog.Panicf("%s: rpc %s has no handler", desc.name, name)
	}
	desc.rpcDescs[name] = &RPCDesc{
		Name:    name,
		Handler: handler,
		Params:  append([]ArgKind(nil), params...),
		flags:   flags,
	}
	gwlog.Debugf("        RPC %s.%s%v", desc.name, name, params)
	return desc
}

// DefineRPC defines a method only the authoritative process may invoke
func (desc *TypeDesc) DefineRPC(name string, handler Handler, params ...ArgKind) *TypeDesc {
	return desc.define(name, rfServer, handler, params)
}

// DefineClientRPC defines a method the owning client may invoke
func (desc *TypeDesc) DefineClientRPC(name string, handler Handler, params ...ArgKind) *TypeDesc {
	return desc.define(name, rfServer|rfOwnClient, handler, params)
}

// RPC returns the descriptor of method, or nil
func (desc *TypeDesc) RPC(method string) *RPCDesc {
	return desc.rpcDescs[method]
}

// ClientRPCNames returns the allow-list of client-callable methods, sorted
func (desc *TypeDesc) ClientRPCNames() []string {
	var names []string
	for name, rd := range desc.rpcDescs {
		if rd.ClientCallable() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// TypeSet holds the entity types known to a process
type TypeSet struct {
	types map[string]*TypeDesc
}

// NewTypeSet creates an empty TypeSet
func NewTypeSet() *TypeSet {
	return &TypeSet{types: map[string]*TypeDesc{}}
}

// RegisterType registers an entity type; registering a name twice panics
func (ts *TypeSet) RegisterType(name string, factory Factory) *TypeDesc {
	if _, ok := ts.types[name]; ok {
		gwlog.Panicf("RegisterType: entity type %s already registered", name)
	}
	desc := &TypeDesc{
		name:     name,
		factory:  factory,
		rpcDescs: rpcDescMap{},
	}
	ts.types[name] = desc
	gwlog.Debugf(">>> RegisterType %s <<<", name)
	return desc
}

// Get returns the descriptor of a type, or nil
func (ts *TypeSet) Get(name string) *TypeDesc {
	return ts.types[name]
}

// Names returns the registered type names, sorted
func (ts *TypeSet) Names() []string {
	names := make([]string, 0, len(ts.types))
	for name := range ts.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
