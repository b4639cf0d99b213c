package session

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/transport/memnet"
)

func TestStandardConfig(t *testing.T) {
	cfg, chs := StandardConfig(8)
	assert.Equal(t, 8, cfg.MaxConnections)
	assert.Equal(t, 4, len(cfg.Channels))
	qos, _ := cfg.ChannelQoS(chs.Unreliable)
	assert.Equal(t, transport.Unreliable, qos)
	qos, _ = cfg.ChannelQoS(chs.ReliableSequenced)
	assert.Equal(t, transport.ReliableSequenced, qos)
	assert.Equal(t, transport.ChannelID(0), chs.Reliable)
}

func TestSessionLifecycle(t *testing.T) {
	net := memnet.NewNetwork()
	st := net.NewTransport("10.0.0.1")
	ct := net.NewTransport("10.0.0.2")

	server, err := OpenHost("server", st, 4, 4000)
	assert.Equal(t, nil, err)
	assert.Equal(t, 4000, server.Port())
	client, err := OpenHost("client", ct, 1, 0)
	assert.Equal(t, nil, err)

	s := NewSession(client)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, nil, s.Connect("10.0.0.1", 4000))
	assert.Equal(t, Connecting, s.State())
	assert.NotEqual(t, nil, s.Connect("10.0.0.1", 4000))

	evt := ct.Poll()
	assert.Equal(t, transport.EventConnect, evt.Kind)
	assert.T(t, s.Is(evt), "event of session")
	s.OnConnect()
	assert.T(t, s.IsConnected(), "connected")

	evt = st.Poll()
	assert.Equal(t, transport.EventConnect, evt.Kind)
	assert.T(t, server.Owns(evt), "server event")
	server.Accept(evt.Conn)
	assert.Equal(t, []transport.ConnectionID{evt.Conn}, server.Connections())

	assert.Equal(t, nil, s.Send(client.Channels.Reliable, proto.PlayerDetails("Bob123")))
	evt = st.Poll()
	assert.Equal(t, transport.EventData, evt.Kind)
	assert.Equal(t, "Data_PlayerDetails|Bob123", string(evt.Data))
	assert.Equal(t, client.Channels.Reliable, evt.Channel)

	server.SendDiagnostic(evt.Conn, []byte("Data_PlayerDetails|a|b"))
	evt = ct.Poll()
	assert.Equal(t, client.Channels.Unreliable, evt.Channel)
	assert.T(t, proto.IsDiagnostic(evt.Data), "diagnostic")

	server.Disconnect(server.Connections()[0])
	assert.Equal(t, 0, len(server.Connections()))
	evt = ct.Poll()
	assert.Equal(t, transport.EventDisconnect, evt.Kind)
	assert.T(t, s.Is(evt), "event of session")
	s.OnDisconnect(evt.Err)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, transport.NoConnection, s.Conn)
	assert.NotEqual(t, nil, s.Send(client.Channels.Reliable, proto.PlayerDetails("Bob123")))
}

func TestRefusedConnect(t *testing.T) {
	net := memnet.NewNetwork()
	ct := net.NewTransport("10.0.0.2")
	client, _ := OpenHost("client", ct, 1, 0)
	s := NewSession(client)
	assert.Equal(t, nil, s.Connect("10.0.0.9", 1))
	evt := ct.Poll()
	assert.Equal(t, transport.EventDisconnect, evt.Kind)
	assert.T(t, s.Is(evt), "event of session")
	s.OnDisconnect(evt.Err)
	assert.NotEqual(t, nil, s.LastError())
}

func TestBroadcastSkipsOrigin(t *testing.T) {
	net := memnet.NewNetwork()
	st := net.NewTransport("10.0.0.1")
	server, _ := OpenHost("server", st, 4, 4000)

	var clients []*memnet.Transport
	for _, ip := range []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		ct := net.NewTransport(ip)
		h, _ := OpenHost(ip, ct, 1, 0)
		NewSession(h).Connect("10.0.0.1", 4000)
		ct.Poll()
		clients = append(clients, ct)
	}
	for evt := st.Poll(); evt.Kind != transport.EventNothing; evt = st.Poll() {
		server.Accept(evt.Conn)
	}
	conns := server.Connections()
	assert.Equal(t, 3, len(conns))
	assert.Equal(t, nil, server.Broadcast(conns, conns[0], server.Channels.ReliableSequenced, proto.EntityDestroy(3)))

	assert.Equal(t, 0, clients[0].Pending())
	assert.Equal(t, 1, clients[1].Pending())
	assert.Equal(t, 1, clients[2].Pending())
}
