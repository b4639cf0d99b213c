// Package memnet is an in-process transport. A Network connects any number of Transports,
// one per simulated process, and delivers messages between them without sockets.
//
// Delivery is immediate: a Send is visible to the peer's next Poll. Unreliable channels can
// be given a loss rate to exercise drop tolerance.
package memnet

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

const firstEphemeralPort = 50000

// Network is the shared medium of in-process transports
type Network struct {
	lock          sync.Mutex
	listeners     map[string]*host
	nextEphemeral int
	loss          float64
	rnd           *rand.Rand
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{
		listeners:     map[string]*host{},
		nextEphemeral: firstEphemeralPort,
		rnd:           rand.New(rand.NewSource(1)),
	}
}

// SetUnreliableLoss sets the probability (0..1) that a message on an unreliable channel is dropped
func (n *Network) SetUnreliableLoss(p float64) {
	n.lock.Lock()
	n.loss = p
	n.lock.Unlock()
}

// NewTransport attaches a transport with address ip to the network
func (n *Network) NewTransport(ip string) *Transport {
	return &Transport{
		net:   n,
		ip:    ip,
		hosts: map[transport.HostID]*host{},
	}
}

func addr(ip string, port int) string {
	return ip + ":" + strconv.Itoa(port)
}

// Transport is one process's view of a Network
type Transport struct {
	net      *Network
	ip       string
	events   transport.EventQueue
	hosts    map[transport.HostID]*host // guarded by net.lock
	nextHost transport.HostID
	closed   bool
}

type host struct {
	t        *Transport
	id       transport.HostID
	port     int
	cfg      transport.Config
	conns    map[transport.ConnectionID]*conn
	nextConn transport.ConnectionID
}

type conn struct {
	id   transport.ConnectionID
	host *host
	peer *conn
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) String() string {
	return fmt.Sprintf("memnet<%s>", t.ip)
}

// IP returns the address of the transport on its network
func (t *Transport) IP() string {
	return t.ip
}

// AddHost implements transport.Transport
func (t *Transport) AddHost(cfg *transport.Config, port int) (transport.HostID, error) {
	n := t.net
	n.lock.Lock()
	defer n.lock.Unlock()
	if t.closed {
		return 0, transport.ErrClosed
	}
	if port == 0 {
		for {
			port = n.nextEphemeral
			n.nextEphemeral++
			if n.listeners[addr(t.ip, port)] == nil {
				break
			}
		}
	} else if n.listeners[addr(t.ip, port)] != nil {
		return 0, errors.Wrapf(transport.ErrPortInUse, "%s", addr(t.ip, port))
	}

	t.nextHost++
	h := &host{
		t:     t,
		id:    t.nextHost,
		port:  port,
		cfg:   transport.Config{MaxConnections: cfg.MaxConnections, Channels: append([]transport.QoS(nil), cfg.Channels...)},
		conns: map[transport.ConnectionID]*conn{},
	}
	t.hosts[h.id] = h
	n.listeners[addr(t.ip, port)] = h
	return h.id, nil
}

// HostPort implements transport.Transport
func (t *Transport) HostPort(hostID transport.HostID) (int, error) {
	t.net.lock.Lock()
	defer t.net.lock.Unlock()
	h := t.hosts[hostID]
	if h == nil {
		return 0, transport.ErrUnknownHost
	}
	return h.port, nil
}

func (h *host) newConn() *conn {
	h.nextConn++
	c := &conn{id: h.nextConn, host: h}
	h.conns[c.id] = c
	return c
}

func sameChannels(a, b []transport.QoS) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Connect implements transport.Transport. A refused connect is reported as an
// EventDisconnect for the returned connection id.
func (t *Transport) Connect(hostID transport.HostID, ip string, port int) (transport.ConnectionID, error) {
	n := t.net
	n.lock.Lock()
	defer n.lock.Unlock()
	h := t.hosts[hostID]
	if h == nil {
		return 0, transport.ErrUnknownHost
	}
	local := h.newConn()

	remote := n.listeners[addr(ip, port)]
	var refused error
	switch {
	case remote == nil || remote.t.closed:
		refused = errors.Wrapf(transport.ErrNoListener, "%s", addr(ip, port))
	case remote.cfg.MaxConnections > 0 && len(remote.conns) >= remote.cfg.MaxConnections:
		refused = transport.ErrTooManyConnections
	case !sameChannels(remote.cfg.Channels, h.cfg.Channels):
		refused = errors.Errorf("channel layout mismatch with %s", addr(ip, port))
	}
	if refused != nil {
		delete(h.conns, local.id)
		t.events.Push(transport.Event{Kind: transport.EventDisconnect, Host: h.id, Conn: local.id, Err: refused})
		return local.id, nil
	}

	accepted := remote.newConn()
	local.peer, accepted.peer = accepted, local
	remote.t.events.Push(transport.Event{Kind: transport.EventConnect, Host: remote.id, Conn: accepted.id})
	t.events.Push(transport.Event{Kind: transport.EventConnect, Host: h.id, Conn: local.id})
	return local.id, nil
}

func (t *Transport) lookup(hostID transport.HostID, connID transport.ConnectionID) (*host, *conn, error) {
	h := t.hosts[hostID]
	if h == nil {
		return nil, nil, transport.ErrUnknownHost
	}
	c := h.conns[connID]
	if c == nil {
		return h, nil, transport.ErrUnknownConnection
	}
	return h, c, nil
}

// Send implements transport.Transport
func (t *Transport) Send(hostID transport.HostID, connID transport.ConnectionID, ch transport.ChannelID, data []byte) error {
	n := t.net
	n.lock.Lock()
	defer n.lock.Unlock()
	h, c, err := t.lookup(hostID, connID)
	if err != nil {
		return err
	}
	qos, ok := h.cfg.ChannelQoS(ch)
	if !ok {
		return transport.ErrUnknownChannel
	}
	if !qos.IsReliable() && n.loss > 0 && n.rnd.Float64() < n.loss {
		return nil
	}
	peer := c.peer
	payload := append([]byte(nil), data...)
	peer.host.t.events.Push(transport.Event{Kind: transport.EventData, Host: peer.host.id, Conn: peer.id, Channel: ch, Data: payload})
	return nil
}

// Poll implements transport.Transport
func (t *Transport) Poll() transport.Event {
	return t.events.Poll()
}

// Pending returns the number of events waiting to be polled
func (t *Transport) Pending() int {
	return t.events.Len()
}

func (c *conn) cut(reason error) {
	delete(c.host.conns, c.id)
	if peer := c.peer; peer != nil {
		delete(peer.host.conns, peer.id)
		peer.host.t.events.Push(transport.Event{Kind: transport.EventDisconnect, Host: peer.host.id, Conn: peer.id, Err: reason})
		peer.peer = nil
		c.peer = nil
	}
}

// Disconnect implements transport.Transport. Only the peer observes the disconnect.
func (t *Transport) Disconnect(hostID transport.HostID, connID transport.ConnectionID) error {
	t.net.lock.Lock()
	defer t.net.lock.Unlock()
	_, c, err := t.lookup(hostID, connID)
	if err != nil {
		return err
	}
	c.cut(nil)
	return nil
}

// ConnectionInfo implements transport.Transport
func (t *Transport) ConnectionInfo(hostID transport.HostID, connID transport.ConnectionID) (string, int, error) {
	t.net.lock.Lock()
	defer t.net.lock.Unlock()
	_, c, err := t.lookup(hostID, connID)
	if err != nil {
		return "", 0, err
	}
	if c.peer == nil {
		return "", 0, transport.ErrUnknownConnection
	}
	return c.peer.host.t.ip, c.peer.host.port, nil
}

func (t *Transport) removeHost(h *host) {
	for _, c := range h.conns {
		c.cut(transport.ErrClosed)
	}
	delete(t.hosts, h.id)
	if t.net.listeners[addr(t.ip, h.port)] == h {
		delete(t.net.listeners, addr(t.ip, h.port))
	}
}

// RemoveHost implements transport.Transport
func (t *Transport) RemoveHost(hostID transport.HostID) error {
	t.net.lock.Lock()
	defer t.net.lock.Unlock()
	h := t.hosts[hostID]
	if h == nil {
		return transport.ErrUnknownHost
	}
	t.removeHost(h)
	return nil
}

// Close implements transport.Transport; peers observe a disconnect for every connection
func (t *Transport) Close() error {
	t.net.lock.Lock()
	defer t.net.lock.Unlock()
	if t.closed {
		return nil
	}
	for _, h := range t.hosts {
		t.removeHost(h)
	}
	t.closed = true
	return nil
}
