// Package sessiontest provides a scripted peer on an in-process network for tests of
// master, game server and client processes.
package sessiontest

import (
	"testing"

	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/session"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/transport/memnet"
)

// Received is one frame a Peer got
type Received struct {
	Channel transport.ChannelID
	Raw     []byte
	Msg     proto.Message // zero for diagnostics
}

// IsDiagnostic reports whether the frame is a free text diagnostic
func (r Received) IsDiagnostic() bool {
	return proto.IsDiagnostic(r.Raw)
}

// Peer is a raw protocol peer with one outgoing session
type Peer struct {
	tb      testing.TB
	T       *memnet.Transport
	Host    *session.Host
	Session *session.Session

	inbox         []Received
	Disconnected  bool
	DisconnectErr error
}

// NewPeer attaches a peer with address ip to n
func NewPeer(tb testing.TB, n *memnet.Network, ip string) *Peer {
	tb.Helper()
	t := n.NewTransport(ip)
	host, err := session.OpenHost("peer-"+ip, t, 1, 0)
	if err != nil {
		tb.Fatal(err)
	}
	return &Peer{
		tb:      tb,
		T:       t,
		Host:    host,
		Session: session.NewSession(host),
	}
}

// Dial connects to ip:port and polls the connect event
func (p *Peer) Dial(ip string, port int) {
	p.tb.Helper()
	if err := p.Session.Connect(ip, port); err != nil {
		p.tb.Fatal(err)
	}
	p.Poll()
}

// Poll drains the peer's transport
func (p *Peer) Poll() int {
	n := 0
	for {
		evt := p.T.Poll()
		if evt.Kind == transport.EventNothing {
			return n
		}
		n++
		if !p.Session.Is(evt) {
			continue
		}
		switch evt.Kind {
		case transport.EventConnect:
			p.Session.OnConnect()
		case transport.EventData:
			r := Received{Channel: evt.Channel, Raw: evt.Data}
			if !proto.IsDiagnostic(evt.Data) {
				msg, err := proto.Decode(evt.Data)
				if err != nil {
					p.tb.Errorf("peer %s received undecodable frame %q: %s", p.T.IP(), evt.Data, err)
				}
				r.Msg = msg
			}
			p.inbox = append(p.inbox, r)
		case transport.EventDisconnect:
			p.Session.OnDisconnect(evt.Err)
			p.Disconnected = true
			p.DisconnectErr = evt.Err
		}
	}
}

// Send sends msg on channel ch
func (p *Peer) Send(ch transport.ChannelID, msg proto.Message) {
	p.tb.Helper()
	if err := p.Session.Send(ch, msg); err != nil {
		p.tb.Fatal(err)
	}
}

// SendReliable sends msg on the reliable channel
func (p *Peer) SendReliable(msg proto.Message) {
	p.tb.Helper()
	p.Send(p.Host.Channels.Reliable, msg)
}

// SendFrame sends a raw frame on the reliable channel, bypassing the encoder
func (p *Peer) SendFrame(frame string) {
	p.tb.Helper()
	if err := p.Host.SendRaw(p.Session.Conn, p.Host.Channels.Reliable, []byte(frame)); err != nil {
		p.tb.Fatal(err)
	}
}

// Close disconnects the peer's session
func (p *Peer) Close() {
	p.Session.Close()
}

// Take polls and returns everything received since the last Take
func (p *Peer) Take() []Received {
	p.Poll()
	got := p.inbox
	p.inbox = nil
	return got
}

// TakeFrames is Take returning raw frames as strings
func (p *Peer) TakeFrames() []string {
	var frames []string
	for _, r := range p.Take() {
		frames = append(frames, string(r.Raw))
	}
	return frames
}
