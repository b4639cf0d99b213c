package memnet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

func testConfig() *transport.Config {
	cfg := transport.NewConfig(2)
	cfg.AddChannel(transport.Reliable)
	cfg.AddChannel(transport.Unreliable)
	return cfg
}

func dial(t *testing.T, n *Network) (server, client *Transport, sh, ch transport.HostID, sconn, cconn transport.ConnectionID) {
	server = n.NewTransport("10.0.0.1")
	client = n.NewTransport("10.0.0.2")
	var err error
	sh, err = server.AddHost(testConfig(), 3333)
	require.NoError(t, err)
	ch, err = client.AddHost(testConfig(), 0)
	require.NoError(t, err)
	cconn, err = client.Connect(ch, "10.0.0.1", 3333)
	require.NoError(t, err)

	evt := server.Poll()
	require.Equal(t, transport.EventConnect, evt.Kind)
	require.Equal(t, sh, evt.Host)
	sconn = evt.Conn
	evt = client.Poll()
	require.Equal(t, transport.EventConnect, evt.Kind)
	require.Equal(t, cconn, evt.Conn)
	return
}

func TestConnectSendDisconnect(t *testing.T) {
	n := NewNetwork()
	server, client, sh, ch, sconn, cconn := dial(t, n)

	require.NoError(t, client.Send(ch, cconn, 0, []byte("hello")))
	evt := server.Poll()
	require.Equal(t, transport.EventData, evt.Kind)
	require.Equal(t, sconn, evt.Conn)
	require.Equal(t, transport.ChannelID(0), evt.Channel)
	require.Equal(t, "hello", string(evt.Data))
	require.Equal(t, transport.EventNothing, server.Poll().Kind)

	ip, port, err := server.ConnectionInfo(sh, sconn)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2", ip)
	require.Equal(t, firstEphemeralPort, port)

	require.NoError(t, server.Disconnect(sh, sconn))
	evt = client.Poll()
	require.Equal(t, transport.EventDisconnect, evt.Kind)
	require.Equal(t, cconn, evt.Conn)
	require.Equal(t, transport.EventNothing, server.Poll().Kind)

	err = client.Send(ch, cconn, 0, []byte("late"))
	require.True(t, errors.Cause(err) == transport.ErrUnknownConnection)
}

func TestConnectRefused(t *testing.T) {
	n := NewNetwork()
	client := n.NewTransport("10.0.0.2")
	ch, err := client.AddHost(testConfig(), 0)
	require.NoError(t, err)
	conn, err := client.Connect(ch, "10.0.0.1", 3333)
	require.NoError(t, err)
	evt := client.Poll()
	require.Equal(t, transport.EventDisconnect, evt.Kind)
	require.Equal(t, conn, evt.Conn)
	require.True(t, errors.Cause(evt.Err) == transport.ErrNoListener)
}

func TestMaxConnections(t *testing.T) {
	n := NewNetwork()
	server := n.NewTransport("10.0.0.1")
	_, err := server.AddHost(testConfig(), 3333)
	require.NoError(t, err)

	var kinds []transport.EventKind
	for i := 0; i < 3; i++ {
		c := n.NewTransport("10.0.1.1")
		h, err := c.AddHost(testConfig(), 0)
		require.NoError(t, err)
		_, err = c.Connect(h, "10.0.0.1", 3333)
		require.NoError(t, err)
		kinds = append(kinds, c.Poll().Kind)
	}
	require.Equal(t, []transport.EventKind{transport.EventConnect, transport.EventConnect, transport.EventDisconnect}, kinds)
}

func TestPortInUse(t *testing.T) {
	n := NewNetwork()
	a := n.NewTransport("10.0.0.1")
	_, err := a.AddHost(testConfig(), 4000)
	require.NoError(t, err)
	_, err = a.AddHost(testConfig(), 4000)
	require.True(t, errors.Cause(err) == transport.ErrPortInUse)
}

func TestUnreliableLoss(t *testing.T) {
	n := NewNetwork()
	n.SetUnreliableLoss(1)
	server, client, _, ch, _, cconn := dial(t, n)
	require.NoError(t, client.Send(ch, cconn, 1, []byte("dropped")))
	require.NoError(t, client.Send(ch, cconn, 0, []byte("kept")))
	evt := server.Poll()
	require.Equal(t, "kept", string(evt.Data))
	require.Equal(t, transport.EventNothing, server.Poll().Kind)
}

func TestCloseNotifiesPeers(t *testing.T) {
	n := NewNetwork()
	server, client, _, _, _, cconn := dial(t, n)
	require.NoError(t, server.Close())
	evt := client.Poll()
	require.Equal(t, transport.EventDisconnect, evt.Kind)
	require.Equal(t, cconn, evt.Conn)

	_, err := server.AddHost(testConfig(), 0)
	require.Equal(t, transport.ErrClosed, err)
}
