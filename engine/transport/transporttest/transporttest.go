// Package transporttest holds helpers shared by the tests of transport implementations.
package transporttest

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

// Config returns the channel layout used by the conformance tests
func Config() *transport.Config {
	cfg := transport.NewConfig(8)
	cfg.AddChannel(transport.Reliable)
	cfg.AddChannel(transport.Unreliable)
	cfg.AddChannel(transport.ReliableSequenced)
	return cfg
}

// FreePort returns a tcp port that was free a moment ago
func FreePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// WaitEvent polls tr until an event other than EventNothing shows up
func WaitEvent(t *testing.T, tr transport.Transport) transport.Event {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if evt := tr.Poll(); evt.Kind != transport.EventNothing {
			return evt
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no transport event within timeout")
	return transport.Event{}
}

// Conformance connects a client to a server over tr implementations and checks
// connect, data in both directions on every channel and disconnect.
func Conformance(t *testing.T, server, client transport.Transport, port int) {
	sh, err := server.AddHost(Config(), port)
	require.NoError(t, err)
	p, err := server.HostPort(sh)
	require.NoError(t, err)
	require.Equal(t, port, p)

	ch, err := client.AddHost(Config(), 0)
	require.NoError(t, err)
	cconn, err := client.Connect(ch, "127.0.0.1", port)
	require.NoError(t, err)

	evt := WaitEvent(t, server)
	require.Equal(t, transport.EventConnect, evt.Kind)
	sconn := evt.Conn
	evt = WaitEvent(t, client)
	require.Equal(t, transport.EventConnect, evt.Kind)
	require.Equal(t, cconn, evt.Conn)

	for chid := transport.ChannelID(0); chid < 3; chid++ {
		require.NoError(t, client.Send(ch, cconn, chid, []byte("Data_PlayerDetails|Bob123")))
		evt = WaitEvent(t, server)
		require.Equal(t, transport.EventData, evt.Kind)
		require.Equal(t, sconn, evt.Conn)
		require.Equal(t, chid, evt.Channel)
		require.Equal(t, "Data_PlayerDetails|Bob123", string(evt.Data))

		require.NoError(t, server.Send(sh, sconn, chid, []byte("Data_GameServerInfo|1")))
		evt = WaitEvent(t, client)
		require.Equal(t, transport.EventData, evt.Kind)
		require.Equal(t, "Data_GameServerInfo|1", string(evt.Data))
	}
	require.Error(t, client.Send(ch, cconn, 9, []byte("x")))

	ip, _, err := server.ConnectionInfo(sh, sconn)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", ip)

	require.NoError(t, server.Disconnect(sh, sconn))
	evt = WaitEvent(t, client)
	require.Equal(t, transport.EventDisconnect, evt.Kind)
	require.Equal(t, cconn, evt.Conn)

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
}
