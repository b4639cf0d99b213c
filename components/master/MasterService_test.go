package master

import (
	"fmt"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/driver"
	"github.com/xiaonanln/fpsworld/engine/post"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/session/sessiontest"
	"github.com/xiaonanln/fpsworld/engine/transport/memnet"
)

const (
	masterIP   = "10.0.0.1"
	masterPort = 3333
)

type fakeLauncher struct {
	launches int
}

func (l *fakeLauncher) Launch() error {
	l.launches++
	return nil
}

func (l *fakeLauncher) Running() int {
	return l.launches
}

type testMaster struct {
	t        *testing.T
	net      *memnet.Network
	ms       *MasterService
	d        *driver.Driver
	launcher *fakeLauncher
	clock    time.Time
	nextIP   int
}

func newTestMaster(t *testing.T, ports []int) *testMaster {
	n := memnet.NewNetwork()
	tr := n.NewTransport(masterIP)
	cfg := &config.MasterConfig{
		Port:              masterPort,
		Ports:             ports,
		Capacity:          10,
		LaunchCooldown:    5 * time.Second,
		MaxLaunchAttempts: 2,
	}
	tm := &testMaster{t: t, net: n, launcher: &fakeLauncher{}, clock: time.Unix(1000, 0), nextIP: 2}
	ms, err := NewMasterService(cfg, tr, tm.launcher, nil)
	if err != nil {
		t.Fatal(err)
	}
	ms.now = func() time.Time { return tm.clock }
	tm.ms = ms
	tm.d = driver.New("master", tr, ms, post.NewQueue(), 64, nil)
	return tm
}

func (tm *testMaster) tick() {
	tm.d.Tick()
}

func (tm *testMaster) dial() *sessiontest.Peer {
	ip := fmt.Sprintf("10.0.0.%d", tm.nextIP)
	tm.nextIP++
	p := sessiontest.NewPeer(tm.t, tm.net, ip)
	p.Dial(masterIP, masterPort)
	tm.tick()
	return p
}

// registerServer connects a game server and returns it with the port it got (0 if queued)
func (tm *testMaster) registerServer() (*sessiontest.Peer, int) {
	p := tm.dial()
	p.SendReliable(proto.GameServerConnected("1.0"))
	tm.tick()
	for _, r := range p.Take() {
		if r.Msg.Type == proto.MT_GAME_SERVER_PORT {
			port, err := proto.ParseIntField(r.Msg)
			assert.Equal(tm.t, nil, err)
			return p, port
		}
	}
	return p, 0
}

func (tm *testMaster) readyServer(population int) (*sessiontest.Peer, int) {
	p, port := tm.registerServer()
	p.SendReliable(proto.GameServerInfo(population))
	tm.tick()
	return p, port
}

func (tm *testMaster) registerClient() *sessiontest.Peer {
	p := tm.dial()
	p.SendReliable(proto.ClientConnected("1.0"))
	tm.tick()
	return p
}

func answers(t *testing.T, p *sessiontest.Peer) []string {
	var got []string
	for _, r := range p.Take() {
		if r.Msg.Type == proto.MT_ANSWER_GAME_SERVER_DETAILS {
			f, _ := r.Msg.Encode()
			got = append(got, f)
		}
	}
	return got
}

func TestVersionMismatchDisconnectsInSameTick(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	client := tm.dial()
	client.SendFrame("Data_ClientConnected|0.9")
	tm.tick()

	got := client.Take()
	assert.Equal(t, 1, len(got))
	assert.Equal(t, proto.MT_INCORRECT_VERSION_NUMBER, got[0].Msg.Type)
	assert.T(t, client.Disconnected)
	assert.Equal(t, 0, tm.ms.Directory().NumClients())

	server := tm.dial()
	server.SendReliable(proto.GameServerConnected("2.0"))
	tm.tick()
	assert.Equal(t, proto.MT_INCORRECT_VERSION_NUMBER, server.Take()[0].Msg.Type)
	assert.T(t, server.Disconnected)
	assert.Equal(t, 1, tm.ms.Ports().NumFree())
}

func TestPortAllocationQueuesWhenPoolIsEmpty(t *testing.T) {
	tm := newTestMaster(t, []int{3334, 3335})
	s1, p1 := tm.registerServer()
	_, p2 := tm.registerServer()
	s3, p3 := tm.registerServer()
	assert.Equal(t, 3334, p1)
	assert.Equal(t, 3335, p2)
	assert.Equal(t, 0, p3)
	assert.Equal(t, 1, tm.ms.Directory().NumPending())

	s1.Close()
	tm.tick()
	got := s3.Take()
	assert.Equal(t, 1, len(got))
	assert.Equal(t, "Data_GameServerPort|3334", string(got[0].Raw))
	assert.Equal(t, 0, tm.ms.Directory().NumPending())
	assert.Equal(t, 0, tm.ms.Ports().NumFree())
}

func TestRoutePrefersFullestServer(t *testing.T) {
	tm := newTestMaster(t, []int{3334, 3335})
	tm.readyServer(3)
	tm.readyServer(7)

	client := tm.registerClient()
	client.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, []string{"Answer_GameServerDetails|10.0.0.3|3335"}, answers(t, client))
	assert.Equal(t, 0, tm.launcher.launches)
}

func TestRouteTieGoesToLowestPort(t *testing.T) {
	tm := newTestMaster(t, []int{3334, 3335})
	tm.readyServer(4)
	tm.readyServer(4)

	client := tm.registerClient()
	client.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, []string{"Answer_GameServerDetails|10.0.0.2|3334"}, answers(t, client))
}

func TestReservationsCountAgainstCapacity(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	server, _ := tm.readyServer(9)

	c1 := tm.registerClient()
	c2 := tm.registerClient()
	c1.SendReliable(proto.RequestGameServerDetails())
	c2.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, 1, len(answers(t, c1)))
	assert.Equal(t, 0, len(answers(t, c2)))
	assert.Equal(t, 1, tm.ms.Directory().NumWaiting())
	assert.Equal(t, 1, tm.launcher.launches)

	// a player leaving frees the slot for the waiting client
	server.SendReliable(proto.GameServerInfo(8))
	tm.tick()
	assert.Equal(t, 1, len(answers(t, c2)))
	assert.Equal(t, 0, tm.ms.Directory().NumWaiting())
}

func TestLaunchCooldownThenNoServersFound(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	client := tm.registerClient()
	client.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, 1, tm.launcher.launches)

	tm.tick()
	tm.clock = tm.clock.Add(time.Second)
	tm.tick()
	assert.Equal(t, 1, tm.launcher.launches) // cooling down

	tm.clock = tm.clock.Add(5 * time.Second)
	tm.tick()
	assert.Equal(t, 2, tm.launcher.launches)
	assert.Equal(t, 0, len(answers(t, client)))

	tm.clock = tm.clock.Add(5 * time.Second)
	tm.tick()
	assert.Equal(t, 2, tm.launcher.launches)
	assert.Equal(t, []string{"Answer_GameServerDetails|NoServersFound"}, answers(t, client))
	assert.Equal(t, 0, tm.ms.Directory().NumWaiting())
}

func TestLaunchedServerAnswersWaitingClient(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	client := tm.registerClient()
	client.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, 1, tm.launcher.launches)

	tm.readyServer(0)
	assert.Equal(t, []string{"Answer_GameServerDetails|10.0.0.3|3334"}, answers(t, client))
}

func TestRequestsNeedRegistration(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	tm.readyServer(0)
	stranger := tm.dial()
	stranger.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, 0, len(answers(t, stranger)))

	stranger.SendReliable(proto.GameServerInfo(3))
	tm.tick()
	assert.Equal(t, 1, tm.ms.Directory().NumServers())
}

func TestMalformedMessageGetsDiagnostic(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	client := tm.dial()
	client.SendFrame("Data_ClientConnected|1.0|extra")
	tm.tick()
	got := client.Take()
	assert.Equal(t, 1, len(got))
	assert.T(t, got[0].IsDiagnostic())
	assert.Equal(t, "Error: received message invalid Data_ClientConnected1.0extra", string(got[0].Raw))
	assert.Equal(t, tm.ms.Host().Channels.Unreliable, got[0].Channel)
	assert.T(t, !client.Disconnected)
}

func TestClientDisconnectLeavesQueue(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	client := tm.registerClient()
	client.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, 1, tm.ms.Directory().NumWaiting())

	client.Close()
	tm.tick()
	assert.Equal(t, 0, tm.ms.Directory().NumWaiting())
	assert.Equal(t, 0, tm.ms.Directory().NumClients())
}

func TestPopulationReportConsumesReservations(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	server, _ := tm.readyServer(5)
	for i := 0; i < 3; i++ {
		c := tm.registerClient()
		c.SendReliable(proto.RequestGameServerDetails())
		tm.tick()
		assert.Equal(t, 1, len(answers(t, c)))
	}
	gs := tm.ms.Directory().Servers()[0]
	assert.Equal(t, 3, gs.Reserved)

	// one routed client arrived, two are still on their way
	server.SendReliable(proto.GameServerInfo(6))
	tm.tick()
	assert.Equal(t, 2, gs.Reserved)
	assert.Equal(t, 8, gs.Load())

	// leaving players keep the reservations
	server.SendReliable(proto.GameServerInfo(4))
	tm.tick()
	assert.Equal(t, 2, gs.Reserved)
	assert.Equal(t, 6, gs.Load())

	// more arrivals than reservations
	server.SendReliable(proto.GameServerInfo(9))
	tm.tick()
	assert.Equal(t, 0, gs.Reserved)
	assert.Equal(t, 9, gs.Load())
}

func TestReturningClientIsCountedAsReroute(t *testing.T) {
	tm := newTestMaster(t, []int{3334})
	tm.readyServer(0)
	c1 := tm.registerClient()
	c2 := tm.registerClient()

	c1.SendReliable(proto.RequestGameServerDetails())
	c2.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, float64(0), testutil.ToFloat64(tm.ms.metrics.Reroutes))

	c1.SendReliable(proto.RequestGameServerDetails())
	tm.tick()
	assert.Equal(t, 2, len(answers(t, c1)))
	assert.Equal(t, 1, len(answers(t, c2)))
	assert.Equal(t, float64(1), testutil.ToFloat64(tm.ms.metrics.Reroutes))
	assert.Equal(t, float64(3), testutil.ToFloat64(tm.ms.metrics.Routes.WithLabelValues(routeFound)))
}
