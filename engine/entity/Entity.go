package entity

import (
	"fmt"
	"time"

	"github.com/xiaonanln/fpsworld/engine/common"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/goTimer"
)

// Perspective is how the local process relates to an entity
type Perspective int

const (
	// Server is the authoritative process
	Server Perspective = iota
	// Client is a mirror of an entity owned by the local connection
	Client
	// Peer is a mirror of an entity owned by someone else or by nobody
	Peer
)

func (p Perspective) String() string {
	switch p {
	case Server:
		return "Server"
	case Client:
		return "Client"
	case Peer:
		return "Peer"
	}
	return fmt.Sprintf("Perspective(%d)", int(p))
}

// Entity is the capability set of every entity variant. Variants embed Base, which
// closes the interface to this package's lifecycle.
type Entity interface {
	ID() common.EntityID
	TypeName() string
	Owner() transport.ConnectionID
	Perspective() Perspective

	// Initialize loads the fields of the initialize record (after id and type)
	Initialize(fields []string) error
	// ApplyUpdate loads the fields of an update message
	ApplyUpdate(fields []string) error
	// SerializeInitialize returns the fields of the initialize record
	SerializeInitialize() []string
	// SerializeUpdate returns the fields of an update message
	SerializeUpdate() []string
	// OnDestroy is called just before the entity leaves the registry
	OnDestroy()

	base() *Base
}

// Base carries the identity, ownership and timers of an entity
type Base struct {
	id          common.EntityID
	typeName    string
	owner       transport.ConnectionID
	perspective Perspective
	destroyed   bool

	timers      map[TimerID]*timer.Timer
	lastTimerID TimerID
}

func (b *Base) base() *Base { return b }

func (b *Base) init(id common.EntityID, typeName string, perspective Perspective) {
	b.id = id
	b.typeName = typeName
	b.owner = transport.NoConnection
	b.perspective = perspective
	b.timers = map[TimerID]*timer.Timer{}
}

func (b *Base) String() string {
	return fmt.Sprintf("%s<%s>", b.typeName, b.id)
}

// ID returns the entity id
func (b *Base) ID() common.EntityID { return b.id }

// TypeName returns the type tag
func (b *Base) TypeName() string { return b.typeName }

// Owner returns the owning connection, or transport.NoConnection
func (b *Base) Owner() transport.ConnectionID { return b.owner }

// Perspective returns how the local process sees this entity
func (b *Base) Perspective() Perspective { return b.perspective }

// IsDestroyed reports whether the entity left its registry
func (b *Base) IsDestroyed() bool { return b.destroyed }

// IsOwnedBy reports whether conn owns the entity
func (b *Base) IsOwnedBy(conn transport.ConnectionID) bool {
	return b.owner != transport.NoConnection && b.owner == conn
}

// BindOwner sets the owning connection. It is meant for Initialize; an owner once bound
// cannot change.
func (b *Base) BindOwner(conn transport.ConnectionID) error {
	if b.owner != transport.NoConnection && b.owner != conn {
		return errOwnerChange(b, conn)
	}
	b.owner = conn
	return nil
}

// Default implementations for variants without update state

// OnDestroy does nothing
func (b *Base) OnDestroy() {}

// Timer & Callback Management

// TimerID identifies an entity timer
type TimerID int

// AddCallback calls f once after d, unless the timer is cancelled or the entity destroyed
func (b *Base) AddCallback(d time.Duration, f func()) TimerID {
	b.lastTimerID++
	tid := b.lastTimerID
	b.timers[tid] = timer.AddCallback(d, func() {
		delete(b.timers, tid)
		f()
	})
	return tid
}

// AddTimer calls f every d until cancelled
func (b *Base) AddTimer(d time.Duration, f func()) TimerID {
	if d < time.Millisecond*10 { // minimal interval for repeat timer
		gwlog.Warnf("%s.AddTimer: interval %s is too short", b, d)
	}
	b.lastTimerID++
	tid := b.lastTimerID
	b.timers[tid] = timer.AddTimer(d, f)
	return tid
}

// CancelTimer cancels a callback or timer; cancelling a fired timer does nothing
func (b *Base) CancelTimer(tid TimerID) {
	t := b.timers[tid]
	if t == nil {
		return
	}
	delete(b.timers, tid)
	t.Cancel()
}

// HasTimer reports whether tid is still pending
func (b *Base) HasTimer(tid TimerID) bool {
	_, ok := b.timers[tid]
	return ok
}

// NumTimers returns the number of pending timers
func (b *Base) NumTimers() int {
	return len(b.timers)
}

func (b *Base) clearTimers() {
	for _, t := range b.timers {
		t.Cancel()
	}
	b.timers = map[TimerID]*timer.Timer{}
}
