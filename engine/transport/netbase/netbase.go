// Package netbase implements transport.Transport on top of any stream or message oriented
// network, given a way to listen, to dial and to exchange frames. kcpnet and wsnet are built on it.
//
// Each connection starts with a hello exchange carrying the channel layout; the listening side
// only reports EventConnect after a valid hello, and the dialing side after the acknowledgement.
// Idle connections are kept alive with pings and dropped after the idle timeout.
package netbase

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/netutil"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
)

// frame kinds
const (
	FrameHello byte = iota + 1
	FrameHelloAck
	FrameData
	FramePing
	FrameBye
)

// Wire is one established network connection that exchanges frames
type Wire interface {
	WriteFrame(kind byte, channel byte, payload []byte) error
	ReadFrame() (kind byte, channel byte, payload []byte, err error)
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// Listener accepts wires on a bound port
type Listener interface {
	Accept() (Wire, error)
	Port() int
	Close() error
}

// Network provides listening and dialing for a Base
type Network interface {
	Listen(port int) (Listener, error)
	Dial(ip string, port int) (Wire, error)
}

// Options tune a Base
type Options struct {
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	IdleTimeout    time.Duration
}

// DefaultOptions returns the options used by kcpnet and wsnet
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: time.Second * 5,
		PingInterval:   consts.KCP_PING_INTERVAL,
		IdleTimeout:    consts.KCP_IDLE_TIMEOUT,
	}
}

// Base is a transport.Transport over a Network
type Base struct {
	name    string
	network Network
	opts    Options
	events  transport.EventQueue
	closed  xnsyncutil.AtomicBool

	lock     sync.Mutex
	hosts    map[transport.HostID]*host
	nextHost transport.HostID
}

type host struct {
	base     *Base
	id       transport.HostID
	cfg      transport.Config
	listener Listener
	port     int
	conns    map[transport.ConnectionID]*conn
	nextConn transport.ConnectionID
	removed  bool
}

type conn struct {
	host      *host
	id        transport.ConnectionID
	wire      Wire
	connected bool
	closing   xnsyncutil.AtomicBool
	writeLock sync.Mutex
}

var _ transport.Transport = (*Base)(nil)

// New creates a transport named name (used in logs) over network
func New(name string, network Network, opts Options) *Base {
	return &Base{
		name:    name,
		network: network,
		opts:    opts,
		hosts:   map[transport.HostID]*host{},
	}
}

func (b *Base) String() string {
	return b.name
}

func encodeLayout(channels []transport.QoS) []byte {
	layout := make([]byte, len(channels))
	for i, q := range channels {
		layout[i] = byte(q)
	}
	return layout
}

// AddHost implements transport.Transport. Port 0 creates a host that only dials.
func (b *Base) AddHost(cfg *transport.Config, port int) (transport.HostID, error) {
	if b.closed.Load() {
		return 0, transport.ErrClosed
	}
	h := &host{
		base:  b,
		cfg:   transport.Config{MaxConnections: cfg.MaxConnections, Channels: append([]transport.QoS(nil), cfg.Channels...)},
		conns: map[transport.ConnectionID]*conn{},
	}
	if port != 0 {
		l, err := b.network.Listen(port)
		if err != nil {
			return 0, errors.Wrapf(err, "%s: listen on %d", b.name, port)
		}
		h.listener = l
		h.port = l.Port()
	}

	b.lock.Lock()
	b.nextHost++
	h.id = b.nextHost
	b.hosts[h.id] = h
	b.lock.Unlock()

	if h.listener != nil {
		gwlog.Infof("%s: host %d listening on port %d", b.name, h.id, h.port)
		go netutil.ServeForever(b.name+".accept", h.acceptLoop)
	}
	return h.id, nil
}

func (h *host) acceptLoop() {
	for {
		w, err := h.listener.Accept()
		if err != nil {
			if h.base.closed.Load() || h.isRemoved() {
				return
			}
			if netutil.IsTimeoutError(err) {
				continue
			}
			gwlog.Errorf("%s: accept failed: %v", h.base.name, err)
			return
		}
		go h.handshakeIncoming(w)
	}
}

func (h *host) isRemoved() bool {
	h.base.lock.Lock()
	defer h.base.lock.Unlock()
	return h.removed
}

func (h *host) handshakeIncoming(w Wire) {
	b := h.base
	w.SetReadDeadline(time.Now().Add(b.opts.ConnectTimeout))
	kind, _, payload, err := w.ReadFrame()
	if err != nil || kind != FrameHello {
		gwlog.Warnf("%s: handshake with %s failed: kind=%d err=%v", b.name, w.RemoteAddr(), kind, err)
		w.Close()
		return
	}
	if string(payload) != string(encodeLayout(h.cfg.Channels)) {
		gwlog.Warnf("%s: %s has a different channel layout", b.name, w.RemoteAddr())
		w.WriteFrame(FrameBye, 0, nil)
		w.Close()
		return
	}

	b.lock.Lock()
	if h.removed || (h.cfg.MaxConnections > 0 && len(h.conns) >= h.cfg.MaxConnections) {
		b.lock.Unlock()
		w.WriteFrame(FrameBye, 0, nil)
		w.Close()
		return
	}
	c := h.newConn(w)
	c.connected = true
	b.lock.Unlock()

	if err := c.write(FrameHelloAck, 0, nil); err != nil {
		c.lost(err)
		return
	}
	b.events.Push(transport.Event{Kind: transport.EventConnect, Host: h.id, Conn: c.id})
	c.serve()
}

// newConn registers a connection; b.lock must be held
func (h *host) newConn(w Wire) *conn {
	h.nextConn++
	c := &conn{host: h, id: h.nextConn, wire: w}
	h.conns[c.id] = c
	return c
}

// HostPort implements transport.Transport
func (b *Base) HostPort(hostID transport.HostID) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	h := b.hosts[hostID]
	if h == nil {
		return 0, transport.ErrUnknownHost
	}
	return h.port, nil
}

// Connect implements transport.Transport; dialing happens in the background
func (b *Base) Connect(hostID transport.HostID, ip string, port int) (transport.ConnectionID, error) {
	b.lock.Lock()
	h := b.hosts[hostID]
	if h == nil {
		b.lock.Unlock()
		return 0, transport.ErrUnknownHost
	}
	c := h.newConn(nil)
	b.lock.Unlock()

	go c.dial(ip, port)
	return c.id, nil
}

func (c *conn) dial(ip string, port int) {
	b := c.host.base
	w, err := b.network.Dial(ip, port)
	if err == nil {
		err = w.WriteFrame(FrameHello, 0, encodeLayout(c.host.cfg.Channels))
		if err == nil {
			w.SetReadDeadline(time.Now().Add(b.opts.ConnectTimeout))
			var kind byte
			kind, _, _, err = w.ReadFrame()
			if err == nil && kind != FrameHelloAck {
				err = errors.Errorf("connection refused by %s:%d", ip, port)
			}
		}
		if err != nil {
			w.Close()
		}
	}

	b.lock.Lock()
	if c.closing.Load() || c.host.conns[c.id] != c {
		// disconnected while dialing
		b.lock.Unlock()
		if w != nil && err == nil {
			w.WriteFrame(FrameBye, 0, nil)
			w.Close()
		}
		return
	}
	if err != nil {
		delete(c.host.conns, c.id)
		b.lock.Unlock()
		gwlog.Warnf("%s: connect %s:%d failed: %v", b.name, ip, port, err)
		b.events.Push(transport.Event{Kind: transport.EventDisconnect, Host: c.host.id, Conn: c.id, Err: err})
		return
	}
	c.wire = w
	c.connected = true
	b.lock.Unlock()

	b.events.Push(transport.Event{Kind: transport.EventConnect, Host: c.host.id, Conn: c.id})
	c.serve()
}

func (c *conn) write(kind byte, ch byte, payload []byte) error {
	c.writeLock.Lock()
	err := c.wire.WriteFrame(kind, ch, payload)
	c.writeLock.Unlock()
	return err
}

func (c *conn) serve() {
	b := c.host.base
	go c.keepalive()
	for {
		c.wire.SetReadDeadline(time.Now().Add(b.opts.IdleTimeout))
		kind, ch, payload, err := c.wire.ReadFrame()
		if err != nil {
			c.lost(err)
			return
		}
		switch kind {
		case FrameData:
			if _, ok := c.host.cfg.ChannelQoS(transport.ChannelID(ch)); !ok {
				gwlog.Warnf("%s: conn %d sent on unknown channel %d", b.name, c.id, ch)
				continue
			}
			b.events.Push(transport.Event{Kind: transport.EventData, Host: c.host.id, Conn: c.id, Channel: transport.ChannelID(ch), Data: payload})
		case FramePing:
		case FrameBye:
			c.lost(nil)
			return
		default:
			gwlog.Warnf("%s: conn %d sent unexpected frame kind %d", b.name, c.id, kind)
		}
	}
}

func (c *conn) keepalive() {
	ticker := time.NewTicker(c.host.base.opts.PingInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.closing.Load() {
			return
		}
		if err := c.write(FramePing, 0, nil); err != nil {
			return
		}
	}
}

// lost removes a connection that failed or was closed by the peer
func (c *conn) lost(reason error) {
	if c.closing.Load() {
		return // closed locally, nobody to tell
	}
	b := c.host.base
	c.closing.Store(true)
	b.lock.Lock()
	if c.host.conns[c.id] == c {
		delete(c.host.conns, c.id)
	}
	b.lock.Unlock()
	c.wire.Close()

	if reason != nil && !netutil.IsConnectionError(reason) && !netutil.IsTimeoutError(reason) {
		gwlog.Warnf("%s: conn %d lost: %v", b.name, c.id, reason)
	}
	b.events.Push(transport.Event{Kind: transport.EventDisconnect, Host: c.host.id, Conn: c.id, Err: reason})
}

func (b *Base) lookup(hostID transport.HostID, connID transport.ConnectionID) (*host, *conn, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	h := b.hosts[hostID]
	if h == nil {
		return nil, nil, transport.ErrUnknownHost
	}
	c := h.conns[connID]
	if c == nil {
		return h, nil, transport.ErrUnknownConnection
	}
	if !c.connected {
		return h, nil, ErrNotConnected
	}
	return h, c, nil
}

// ErrNotConnected is returned when sending on a connection whose handshake is not finished
var ErrNotConnected = errors.New("not connected yet")

// Send implements transport.Transport
func (b *Base) Send(hostID transport.HostID, connID transport.ConnectionID, ch transport.ChannelID, data []byte) error {
	h, c, err := b.lookup(hostID, connID)
	if err != nil {
		return err
	}
	if _, ok := h.cfg.ChannelQoS(ch); !ok {
		return transport.ErrUnknownChannel
	}
	if len(data) > consts.MAX_FRAME_SIZE {
		return transport.ErrMessageTooLarge
	}
	if err := c.write(FrameData, byte(ch), data); err != nil {
		return errors.Wrapf(err, "%s: send to conn %d", b.name, connID)
	}
	return nil
}

// Poll implements transport.Transport
func (b *Base) Poll() transport.Event {
	return b.events.Poll()
}

// close shuts a connection down from this side; the peer sees a bye
func (c *conn) close() {
	c.closing.Store(true)
	if c.wire != nil {
		c.write(FrameBye, 0, nil)
		c.wire.Close()
	}
}

// Disconnect implements transport.Transport
func (b *Base) Disconnect(hostID transport.HostID, connID transport.ConnectionID) error {
	b.lock.Lock()
	h := b.hosts[hostID]
	if h == nil {
		b.lock.Unlock()
		return transport.ErrUnknownHost
	}
	c := h.conns[connID]
	if c == nil {
		b.lock.Unlock()
		return transport.ErrUnknownConnection
	}
	delete(h.conns, connID)
	b.lock.Unlock()

	c.close()
	return nil
}

// ConnectionInfo implements transport.Transport
func (b *Base) ConnectionInfo(hostID transport.HostID, connID transport.ConnectionID) (string, int, error) {
	_, c, err := b.lookup(hostID, connID)
	if err != nil {
		return "", 0, err
	}
	addr := c.wire.RemoteAddr()
	return netutil.IPOf(addr), netutil.PortOf(addr), nil
}

// RemoveHost implements transport.Transport
func (b *Base) RemoveHost(hostID transport.HostID) error {
	b.lock.Lock()
	h := b.hosts[hostID]
	if h == nil {
		b.lock.Unlock()
		return transport.ErrUnknownHost
	}
	delete(b.hosts, hostID)
	h.removed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = map[transport.ConnectionID]*conn{}
	b.lock.Unlock()

	for _, c := range conns {
		c.close()
	}
	if h.listener != nil {
		return h.listener.Close()
	}
	return nil
}

// Close implements transport.Transport
func (b *Base) Close() error {
	if b.closed.Load() {
		return nil
	}
	b.closed.Store(true)
	b.lock.Lock()
	ids := make([]transport.HostID, 0, len(b.hosts))
	for id := range b.hosts {
		ids = append(ids, id)
	}
	b.lock.Unlock()
	for _, id := range ids {
		b.RemoveHost(id)
	}
	return nil
}
