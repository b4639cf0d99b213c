// Package rpc resolves method names received from the wire against entity RPC tables,
// enforces ownership and allow-lists, runs the handlers and decides what gets relayed.
package rpc

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/common"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/gwutils"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

var (
	// ErrUnauthorizedRPC is returned when the caller does not own the entity or the method is not client-callable
	ErrUnauthorizedRPC = errors.New("unauthorized rpc")
	// ErrBadArguments is returned when arguments cannot be coerced to the declared parameters
	ErrBadArguments = entity.ErrBadArguments
	// ErrUnknownMethod is returned by authoritative and remote calls of undefined methods
	ErrUnknownMethod = errors.New("unknown rpc method")
)

// Outbox sends Data_ExecuteRPC messages to connected players
type Outbox interface {
	// SendToPlayers sends msg on the reliable-sequenced channel to every player except one,
	// which may be transport.NoConnection
	SendToPlayers(except transport.ConnectionID, msg proto.Message)
}

// AcceptedFunc observes client calls whose handler accepted the effect
type AcceptedFunc func(from transport.ConnectionID, e entity.Entity, method string, args entity.Args)

// Dispatcher runs RPCs on the entities of one registry
type Dispatcher struct {
	registry  *entity.Registry
	outbox    Outbox
	metrics   *metrics.RPC
	observers []AcceptedFunc
}

// NewDispatcher creates a dispatcher. outbox is nil on mirrors, m may be nil.
func NewDispatcher(registry *entity.Registry, outbox Outbox, m *metrics.RPC) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		outbox:   outbox,
		metrics:  m,
	}
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher<%s>", d.registry)
}

// OnAccepted adds an observer of accepted client calls
func (d *Dispatcher) OnAccepted(f AcceptedFunc) {
	d.observers = append(d.observers, f)
}

func (d *Dispatcher) count(method, outcome string) {
	if d.metrics != nil {
		d.metrics.Calls.WithLabelValues(method, outcome).Inc()
	}
}

func (d *Dispatcher) lookup(e entity.Entity, method string) *entity.RPCDesc {
	desc := d.registry.Types().Get(e.TypeName())
	if desc == nil {
		return nil
	}
	return desc.RPC(method)
}

func (d *Dispatcher) run(e entity.Entity, rd *entity.RPCDesc, args entity.Args) (accepted bool) {
	if consts.DEBUG_RPC {
		gwlog.Debugf("%s: %s.%s%v", d, e, rd.Name, args.Raw())
	}
	if gwutils.RunPanicless(func() {
		accepted = rd.Handler(e, args)
	}) {
		gwlog.Errorf("%s: %s.%s panicked", d, e, rd.Name)
		return false
	}
	return accepted
}

// InvokeAuthoritative runs method on e as the authority and broadcasts Data_ExecuteRPC to
// every connected player
func (d *Dispatcher) InvokeAuthoritative(e entity.Entity, method string, args ...interface{}) error {
	if !d.registry.IsAuthoritative() {
		return errors.Wrapf(entity.ErrNotAuthoritative, "%s.%s", e, method)
	}
	rd := d.lookup(e, method)
	if rd == nil {
		return errors.Wrapf(ErrUnknownMethod, "%s.%s", e, method)
	}
	raw, err := rd.Format(args...)
	if err != nil {
		return err
	}
	coerced, err := rd.Coerce(raw)
	if err != nil {
		return err
	}
	msg, err := proto.ExecuteRPC(proto.RPCCall{EntityID: e.ID(), Method: method, Args: raw})
	if err != nil {
		return err
	}
	d.run(e, rd, coerced)
	d.count(method, metrics.RPCAuthoritative)
	if d.outbox != nil {
		d.outbox.SendToPlayers(transport.NoConnection, msg)
	}
	return nil
}

// InvokeFromClient runs a client requested call. It returns whether the handler accepted
// the effect; accepted calls are relayed to every player except the caller.
//
// Calls addressed to a recently destroyed entity are dropped without error.
func (d *Dispatcher) InvokeFromClient(from transport.ConnectionID, id common.EntityID, method string, raw []string) (bool, error) {
	e, err := d.registry.Get(id)
	if err != nil {
		if d.registry.WasDestroyed(id) {
			return false, nil
		}
		d.count(method, metrics.RPCNotFound)
		return false, err
	}
	rd := d.lookup(e, method)
	if rd == nil || !rd.ClientCallable() {
		d.count(method, metrics.RPCUnauthorized)
		return false, errors.Wrapf(ErrUnauthorizedRPC, "%s.%s is not client callable", e, method)
	}
	if e.Owner() == transport.NoConnection || e.Owner() != from {
		d.count(method, metrics.RPCUnauthorized)
		return false, errors.Wrapf(ErrUnauthorizedRPC, "connection %d does not own %s", from, e)
	}
	args, err := rd.Coerce(raw)
	if err != nil {
		d.count(method, metrics.RPCBadArgs)
		return false, err
	}
	msg, err := proto.ExecuteRPC(proto.RPCCall{EntityID: id, Method: method, Args: raw})
	if err != nil {
		d.count(method, metrics.RPCBadArgs)
		return false, errors.Wrap(ErrBadArguments, err.Error())
	}

	if !d.run(e, rd, args) {
		d.count(method, metrics.RPCRejected)
		return false, nil
	}
	d.count(method, metrics.RPCAccepted)
	if d.outbox != nil {
		d.outbox.SendToPlayers(from, msg)
		d.count(method, metrics.RPCRelayed)
	}
	for _, f := range d.observers {
		f := f
		gwutils.RunPanicless(func() {
			f(from, e, method, args)
		})
	}
	return true, nil
}

// ApplyRemote runs a Data_ExecuteRPC received from the authority on a mirror
func (d *Dispatcher) ApplyRemote(id common.EntityID, method string, raw []string) error {
	e, err := d.registry.Get(id)
	if err != nil {
		if d.registry.WasDestroyed(id) {
			return nil
		}
		return err
	}
	rd := d.lookup(e, method)
	if rd == nil {
		return errors.Wrapf(ErrUnknownMethod, "%s.%s", e, method)
	}
	args, err := rd.Coerce(raw)
	if err != nil {
		return err
	}
	d.run(e, rd, args)
	return nil
}

// InvokeLocal predicts a client call on the local mirror and returns the wire arguments
// to send in Data_ClientRPC
func (d *Dispatcher) InvokeLocal(e entity.Entity, method string, args ...interface{}) ([]string, error) {
	rd := d.lookup(e, method)
	if rd == nil || !rd.ClientCallable() {
		return nil, errors.Wrapf(ErrUnauthorizedRPC, "%s.%s is not client callable", e, method)
	}
	raw, err := rd.Format(args...)
	if err != nil {
		return nil, err
	}
	coerced, err := rd.Coerce(raw)
	if err != nil {
		return nil, err
	}
	d.run(e, rd, coerced)
	return raw, nil
}
