// Package session keeps per-peer connection state on top of a transport host.
package session

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

// State is the connection state of a session
type State int

const (
	// Disconnected is the initial and final state
	Disconnected State = iota
	// Connecting means a connect was started and no event arrived yet
	Connecting
	// Connected means the transport reported the connection up
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Channels is the channel handle table, one handle per delivery guarantee
type Channels struct {
	Reliable                    transport.ChannelID
	Unreliable                  transport.ChannelID
	ReliableFragmentedSequenced transport.ChannelID
	ReliableSequenced           transport.ChannelID
}

// StandardConfig returns the host config shared by every process, so channel ids agree on both ends
func StandardConfig(maxConnections int) (*transport.Config, Channels) {
	cfg := transport.NewConfig(maxConnections)
	var chs Channels
	chs.Reliable = cfg.AddChannel(transport.Reliable)
	chs.Unreliable = cfg.AddChannel(transport.Unreliable)
	chs.ReliableFragmentedSequenced = cfg.AddChannel(transport.ReliableFragmentedSequenced)
	chs.ReliableSequenced = cfg.AddChannel(transport.ReliableSequenced)
	return cfg, chs
}

// Host is a transport host together with its channels and accepted connections
type Host struct {
	Name     string
	T        transport.Transport
	ID       transport.HostID
	Channels Channels

	accepted map[transport.ConnectionID]struct{}
}

// OpenHost adds a host with the standard channel layout on port
func OpenHost(name string, t transport.Transport, maxConnections int, port int) (*Host, error) {
	cfg, chs := StandardConfig(maxConnections)
	id, err := t.AddHost(cfg, port)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: open host on port %d", name, port)
	}
	return &Host{
		Name:     name,
		T:        t,
		ID:       id,
		Channels: chs,
		accepted: map[transport.ConnectionID]struct{}{},
	}, nil
}

func (h *Host) String() string {
	return fmt.Sprintf("Host<%s#%d>", h.Name, h.ID)
}

// Owns reports whether evt belongs to this host
func (h *Host) Owns(evt transport.Event) bool {
	return evt.Host == h.ID
}

// Port returns the port the host is bound to
func (h *Host) Port() int {
	port, err := h.T.HostPort(h.ID)
	if err != nil {
		gwlog.Errorf("%s: get port failed: %v", h, err)
	}
	return port
}

// Accept records an accepted connection
func (h *Host) Accept(conn transport.ConnectionID) {
	h.accepted[conn] = struct{}{}
}

// Forget removes a connection from the accepted set
func (h *Host) Forget(conn transport.ConnectionID) {
	delete(h.accepted, conn)
}

// IsAccepted reports whether conn is an accepted connection still alive
func (h *Host) IsAccepted(conn transport.ConnectionID) bool {
	_, ok := h.accepted[conn]
	return ok
}

// Connections returns the accepted connections in ascending order
func (h *Host) Connections() []transport.ConnectionID {
	conns := make([]transport.ConnectionID, 0, len(h.accepted))
	for c := range h.accepted {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i] < conns[j] })
	return conns
}

// Send encodes msg and sends it to conn on channel ch
func (h *Host) Send(conn transport.ConnectionID, ch transport.ChannelID, msg proto.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return h.SendRaw(conn, ch, data)
}

// SendRaw sends an already encoded frame
func (h *Host) SendRaw(conn transport.ConnectionID, ch transport.ChannelID, data []byte) error {
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send to %d on %d: %s", h, conn, ch, data)
	}
	if err := h.T.Send(h.ID, conn, ch, data); err != nil {
		return errors.Wrapf(err, "%s: send to %d", h, conn)
	}
	return nil
}

// Broadcast sends msg to every conn in conns except one; except may be transport.NoConnection
func (h *Host) Broadcast(conns []transport.ConnectionID, except transport.ConnectionID, ch transport.ChannelID, msg proto.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	h.BroadcastRaw(conns, except, ch, data)
	return nil
}

// BroadcastRaw is Broadcast for an encoded frame; failed sends are logged
func (h *Host) BroadcastRaw(conns []transport.ConnectionID, except transport.ConnectionID, ch transport.ChannelID, data []byte) {
	for _, c := range conns {
		if c == except {
			continue
		}
		if err := h.SendRaw(c, ch, data); err != nil {
			gwlog.Warnf("%s", err)
		}
	}
}

// SendDiagnostic answers a malformed frame on the unreliable channel
func (h *Host) SendDiagnostic(conn transport.ConnectionID, frame []byte) {
	if err := h.SendRaw(conn, h.Channels.Unreliable, proto.Diagnostic(frame)); err != nil {
		gwlog.Warnf("%s", err)
	}
}

// Disconnect drops conn; the peer observes the disconnect, this side forgets it immediately
func (h *Host) Disconnect(conn transport.ConnectionID) {
	h.Forget(conn)
	if err := h.T.Disconnect(h.ID, conn); err != nil {
		gwlog.Debugf("%s: disconnect %d: %v", h, conn, err)
	}
}

// Close removes the host from its transport
func (h *Host) Close() error {
	h.accepted = map[transport.ConnectionID]struct{}{}
	return h.T.RemoveHost(h.ID)
}

// Session is an outgoing connection of a host
type Session struct {
	Host    *Host
	Conn    transport.ConnectionID
	state   State
	lastErr error
}

// NewSession creates a disconnected session on host
func NewSession(host *Host) *Session {
	return &Session{Host: host, Conn: transport.NoConnection}
}

func (s *Session) String() string {
	return fmt.Sprintf("Session<%s#%d %s>", s.Host.Name, s.Conn, s.state)
}

// State returns the connection state
func (s *Session) State() State {
	return s.state
}

// IsConnected reports whether the session is Connected
func (s *Session) IsConnected() bool {
	return s.state == Connected
}

// LastError returns the error of the last failed connect or disconnect
func (s *Session) LastError() error {
	return s.lastErr
}

// Connect starts connecting to ip:port
func (s *Session) Connect(ip string, port int) error {
	if s.state != Disconnected {
		return errors.Errorf("%s: already %s", s, s.state)
	}
	conn, err := s.Host.T.Connect(s.Host.ID, ip, port)
	if err != nil {
		s.lastErr = err
		return errors.Wrapf(err, "%s: connect %s:%d", s, ip, port)
	}
	s.Conn = conn
	s.state = Connecting
	s.lastErr = nil
	return nil
}

// Is reports whether evt is about this session's connection
func (s *Session) Is(evt transport.Event) bool {
	return s.state != Disconnected && evt.Host == s.Host.ID && evt.Conn == s.Conn
}

// OnConnect moves a connecting session to Connected
func (s *Session) OnConnect() {
	s.state = Connected
}

// OnDisconnect resets the session; err is kept as the last error
func (s *Session) OnDisconnect(err error) {
	s.state = Disconnected
	s.Conn = transport.NoConnection
	s.lastErr = err
}

// Send encodes and sends msg to the peer
func (s *Session) Send(ch transport.ChannelID, msg proto.Message) error {
	if s.state != Connected {
		return errors.Errorf("%s: not connected", s)
	}
	return s.Host.Send(s.Conn, ch, msg)
}

// Close disconnects the session if it is not already disconnected
func (s *Session) Close() {
	if s.state == Disconnected {
		return
	}
	if err := s.Host.T.Disconnect(s.Host.ID, s.Conn); err != nil {
		gwlog.Debugf("%s: disconnect: %v", s, err)
	}
	s.OnDisconnect(nil)
}
