package driver

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"github.com/xiaonanln/fpsworld/engine/post"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/session"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/transport/memnet"
)

type recorder struct {
	log   []string
	ready bool
	onEvt func(evt transport.Event)
}

func (r *recorder) HandleEvent(evt transport.Event) {
	r.log = append(r.log, evt.Kind.String())
	if r.onEvt != nil {
		r.onEvt(evt)
	}
}

func (r *recorder) Ready() bool { return r.ready }

func (r *recorder) UpdateSend() { r.log = append(r.log, "send") }

func pair(t *testing.T) (*memnet.Transport, *session.Host, *session.Session) {
	net := memnet.NewNetwork()
	st := net.NewTransport("10.0.0.1")
	_, err := session.OpenHost("server", st, 4, 4000)
	require.NoError(t, err)
	ct := net.NewTransport("10.0.0.2")
	client, err := session.OpenHost("client", ct, 1, 0)
	require.NoError(t, err)
	s := session.NewSession(client)
	require.NoError(t, s.Connect("10.0.0.1", 4000))
	ct.Poll()
	s.OnConnect()
	return st, client, s
}

func TestTickDrainsAllEventsBeforeSending(t *testing.T) {
	st, client, s := pair(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Send(client.Channels.Unreliable, proto.EntityDestroy(1)))
	}

	proc := &recorder{ready: true}
	queue := post.NewQueue()
	d := New("test", st, proc, queue, 64, metrics.NewDriver(nil, "test"))
	queue.Post(func() { proc.log = append(proc.log, "posted") })

	require.Equal(t, 6, d.Tick())
	require.Equal(t, []string{"connect", "data", "data", "data", "data", "data", "posted", "send"}, proc.log)
	require.Equal(t, 0, d.Tick())
}

func TestNotReadySkipsSend(t *testing.T) {
	st, _, _ := pair(t)
	proc := &recorder{}
	d := New("test", st, proc, post.NewQueue(), 64, nil)
	d.Tick()
	require.Equal(t, []string{"connect"}, proc.log)
}

func TestHandlerPanicDoesNotStopTheTick(t *testing.T) {
	st, client, s := pair(t)
	require.NoError(t, s.Send(client.Channels.Reliable, proto.EntityDestroy(1)))
	proc := &recorder{ready: true, onEvt: func(evt transport.Event) {
		if evt.Kind == transport.EventConnect {
			panic("bad handler")
		}
	}}
	d := New("test", st, proc, post.NewQueue(), 64, nil)
	require.Equal(t, 2, d.Tick())
	require.Equal(t, []string{"connect", "data", "send"}, proc.log)
}

func TestStopEndsRun(t *testing.T) {
	st, _, _ := pair(t)
	fatal := errors.New("master gone")
	var d *Driver
	proc := &recorder{ready: true, onEvt: func(evt transport.Event) { d.Stop(fatal) }}
	d = New("test", st, proc, post.NewQueue(), 200, nil)

	err := d.Run(context.Background())
	require.Equal(t, fatal, err)
	require.Equal(t, Terminated, d.Phase())
	require.True(t, d.Stopped())
	require.Equal(t, []string{"connect"}, proc.log)
}

func TestContextCancelEndsRun(t *testing.T) {
	st, _, _ := pair(t)
	d := New("test", st, &recorder{}, post.NewQueue(), 200, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := d.Run(ctx)
	require.Equal(t, context.DeadlineExceeded, err)
	require.Equal(t, Terminated, d.Phase())
}
