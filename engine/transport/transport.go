// Package transport defines the packet transport consumed by master, game server and client.
//
// A Transport owns hosts (listening or dialing endpoints bound to a port) and delivers
// connect, data and disconnect events through a non-blocking Poll. Each host is created
// with a Config listing its channels; both ends of a connection must use the same channel
// layout, so channel ids agree.
package transport

import (
	"fmt"

	"github.com/pkg/errors"
)

// HostID identifies a host inside one Transport
type HostID int

// ConnectionID identifies a peer of a host. It is assigned by the transport and is
// not unique across processes.
type ConnectionID int

// NoConnection marks the absence of a connection, e.g. an unowned entity
const NoConnection ConnectionID = -1

// ChannelID is an index into a host's channel list
type ChannelID uint8

// QoS is the delivery guarantee of a channel
type QoS uint8

const (
	// Reliable delivers every message, in order
	Reliable QoS = iota
	// Unreliable may drop or reorder messages
	Unreliable
	// ReliableSequenced delivers every message in send order
	ReliableSequenced
	// ReliableFragmentedSequenced is ReliableSequenced for messages larger than one packet
	ReliableFragmentedSequenced
)

func (q QoS) String() string {
	switch q {
	case Reliable:
		return "Reliable"
	case Unreliable:
		return "Unreliable"
	case ReliableSequenced:
		return "ReliableSequenced"
	case ReliableFragmentedSequenced:
		return "ReliableFragmentedSequenced"
	}
	return fmt.Sprintf("QoS(%d)", uint8(q))
}

// IsReliable reports whether messages on the channel are never dropped
func (q QoS) IsReliable() bool {
	return q != Unreliable
}

// Config is the topology of a host: its connection limit and channels
type Config struct {
	MaxConnections int
	Channels       []QoS
}

// NewConfig creates a config without channels
func NewConfig(maxConnections int) *Config {
	return &Config{MaxConnections: maxConnections}
}

// AddChannel appends a channel and returns its id
func (c *Config) AddChannel(qos QoS) ChannelID {
	c.Channels = append(c.Channels, qos)
	return ChannelID(len(c.Channels) - 1)
}

// ChannelQoS returns the QoS of channel ch
func (c *Config) ChannelQoS(ch ChannelID) (QoS, bool) {
	if int(ch) >= len(c.Channels) {
		return 0, false
	}
	return c.Channels[ch], true
}

// EventKind is the kind of a polled event
type EventKind uint8

const (
	// EventNothing means no event is pending
	EventNothing EventKind = iota
	// EventConnect means a connection was established, either accepted or dialed
	EventConnect
	// EventData carries one message
	EventData
	// EventDisconnect means the connection is gone
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventNothing:
		return "nothing"
	case EventConnect:
		return "connect"
	case EventData:
		return "data"
	case EventDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is one polled transport event
type Event struct {
	Kind    EventKind
	Host    HostID
	Conn    ConnectionID
	Channel ChannelID
	Data    []byte
	Err     error // reason of a disconnect, if known
}

func (e Event) String() string {
	return fmt.Sprintf("Event<%s host=%d conn=%d ch=%d len=%d>", e.Kind, e.Host, e.Conn, e.Channel, len(e.Data))
}

// Transport is the packet transport capability
type Transport interface {
	// AddHost opens a host on port; port 0 picks a free port and is meant for dialing hosts
	AddHost(cfg *Config, port int) (HostID, error)
	// HostPort returns the port a host is bound to
	HostPort(host HostID) (int, error)
	// Connect starts connecting host to ip:port. The EventConnect for the returned id
	// is delivered by Poll once the peer accepted.
	Connect(host HostID, ip string, port int) (ConnectionID, error)
	// Send queues data on channel ch of connection conn
	Send(host HostID, conn ConnectionID, ch ChannelID, data []byte) error
	// Poll returns the next pending event, or an EventNothing event. It never blocks.
	Poll() Event
	// Disconnect closes a connection; the peer observes EventDisconnect
	Disconnect(host HostID, conn ConnectionID) error
	// ConnectionInfo returns the remote address of a connection
	ConnectionInfo(host HostID, conn ConnectionID) (ip string, port int, err error)
	// RemoveHost closes a host and all of its connections
	RemoveHost(host HostID) error
	// Close shuts the transport down
	Close() error
}

// Errors returned by transports
var (
	ErrUnknownHost        = errors.New("unknown host")
	ErrUnknownConnection  = errors.New("unknown connection")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrTooManyConnections = errors.New("too many connections")
	ErrPortInUse          = errors.New("port in use")
	ErrNoListener         = errors.New("nothing is listening on that address")
	ErrClosed             = errors.New("transport closed")
	ErrMessageTooLarge    = errors.New("message too large")
)
