package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/components/game"
	"github.com/xiaonanln/fpsworld/components/master"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/driver"
	"github.com/xiaonanln/fpsworld/engine/entities"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/post"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/session"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/transport/memnet"
	"github.com/xiaonanln/fpsworld/engine/world"
)

const (
	masterIP   = "10.0.0.1"
	masterPort = 3333
	gameIP     = "10.0.0.2"
	gamePort   = 3334
)

type testNet struct {
	t       *testing.T
	net     *memnet.Network
	md      *driver.Driver
	gs      *game.GameService
	clients []*ClientService
}

// newTestNet starts a master and, when withGameServer is set, a registered game server
func newTestNet(t *testing.T, withGameServer bool) *testNet {
	n := memnet.NewNetwork()
	tn := &testNet{t: t, net: n}

	mt := n.NewTransport(masterIP)
	ms, err := master.NewMasterService(&config.MasterConfig{
		Port:              masterPort,
		Ports:             []int{gamePort},
		Capacity:          10,
		LaunchCooldown:    time.Nanosecond,
		MaxLaunchAttempts: 1,
	}, mt, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	tn.md = driver.New("master", mt, ms, post.NewQueue(), 64, nil)

	if withGameServer {
		gs, err := game.NewGameService(game.Options{
			Config: &config.GameServerConfig{
				MasterIp:       masterIP,
				MasterPort:     masterPort,
				MaxConnections: 100,
				IdleTimeout:    time.Minute,
			},
			Transport: n.NewTransport(gameIP),
			Layout:    world.Default(),
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := gs.Start(); err != nil {
			t.Fatal(err)
		}
		tn.gs = gs
	}
	tn.settle()
	return tn
}

func (tn *testNet) newClient(opts Options) *ClientService {
	if opts.Config == nil {
		opts.Config = &config.ClientConfig{MasterIp: masterIP, MasterPort: masterPort}
	}
	opts.Transport = tn.net.NewTransport(fmt.Sprintf("10.0.1.%d", len(tn.clients)+1))
	cs, err := NewClientService(opts)
	if err != nil {
		tn.t.Fatal(err)
	}
	if err := cs.Start(); err != nil {
		tn.t.Fatal(err)
	}
	tn.clients = append(tn.clients, cs)
	tn.settle()
	return cs
}

func (tn *testNet) settle() {
	for i := 0; i < 5; i++ {
		tn.md.Tick()
		if tn.gs != nil {
			tn.gs.Tick()
		}
		for _, cs := range tn.clients {
			cs.Tick()
		}
	}
}

func (tn *testNet) join(name string) *ClientService {
	cs := tn.newClient(Options{})
	if err := cs.RequestGameServer(name); err != nil {
		tn.t.Fatal(err)
	}
	tn.settle()
	if cs.Avatar() == nil {
		tn.t.Fatalf("%s did not join", name)
	}
	return cs
}

func TestJoinFlow(t *testing.T) {
	tn := newTestNet(t, true)
	cs := tn.newClient(Options{})
	assert.Equal(t, driver.ConnectedMaster, cs.Driver().Phase())
	assert.T(t, !cs.InGame())

	var joined *entities.PlayerAvatar
	cs.OnJoined(func(avatar *entities.PlayerAvatar) { joined = avatar })
	assert.Equal(t, nil, cs.RequestGameServer("Alice1"))
	tn.settle()

	assert.T(t, cs.InGame())
	assert.Equal(t, driver.Active, cs.Driver().Phase())
	avatar := cs.Avatar()
	assert.NotEqual(t, (*entities.PlayerAvatar)(nil), avatar)
	assert.Equal(t, avatar, joined)
	assert.Equal(t, "Alice1", avatar.Name)
	assert.Equal(t, entity.Client, avatar.Perspective())
	assert.Equal(t, tn.gs.Registry().Len(), cs.Registry().Len())
	assert.Equal(t, 1, tn.gs.Players().Len())
}

func TestRequestNeedsMaster(t *testing.T) {
	cfg := &config.ClientConfig{MasterIp: "10.9.9.9", MasterPort: masterPort}
	n := memnet.NewNetwork()
	cs, err := NewClientService(Options{Config: cfg, Transport: n.NewTransport("10.0.1.1")})
	assert.Equal(t, nil, err)
	err = cs.RequestGameServer("Alice1")
	assert.Equal(t, ErrNotConnected, errors.Cause(err))

	assert.Equal(t, nil, cs.Start())
	cs.Tick()
	assert.T(t, cs.Driver().Stopped(), "refused master connection stops the client")
	assert.Equal(t, ErrMasterDisconnected, errors.Cause(cs.Driver().Err()))
}

func TestRequestValidation(t *testing.T) {
	tn := newTestNet(t, true)
	cs := tn.newClient(Options{})

	assert.NotEqual(t, nil, cs.RequestGameServer("al"))
	assert.NotEqual(t, nil, cs.RequestGameServer("Alice 1"))

	assert.Equal(t, nil, cs.RequestGameServer("Alice1"))
	assert.Equal(t, ErrAlreadyRequested, cs.RequestGameServer("Alice1"))
	tn.settle()
	assert.Equal(t, ErrAlreadyInGame, cs.RequestGameServer("Alice1"))
}

func TestPlayersSeeEachOther(t *testing.T) {
	tn := newTestNet(t, true)
	alice := tn.join("Alice1")
	bob := tn.join("Bob123")

	e, err := alice.Registry().Get(bob.Avatar().ID())
	assert.Equal(t, nil, err)
	assert.Equal(t, entity.Peer, e.Perspective())
	assert.Equal(t, alice.Avatar().ID(), bob.Avatar().ID()-1)

	alice.Avatar().Position = entity.Vector3{X: 3, Y: 5, Z: 4}
	alice.Avatar().Yaw = 90
	tn.settle()

	e, err = bob.Registry().Get(alice.Avatar().ID())
	assert.Equal(t, nil, err)
	mirror := e.(*entities.PlayerAvatar)
	assert.Equal(t, entity.Vector3{X: 3, Y: 5, Z: 4}, mirror.Position)
	assert.Equal(t, float32(90), mirror.Yaw)

	e, err = tn.gs.Registry().Get(alice.Avatar().ID())
	assert.Equal(t, nil, err)
	assert.Equal(t, entity.Vector3{X: 3, Y: 5, Z: 4}, e.(*entities.PlayerAvatar).Position)
}

func TestLeavingPlayerIsDestroyedOnOthers(t *testing.T) {
	tn := newTestNet(t, true)
	alice := tn.join("Alice1")
	bob := tn.join("Bob123")
	id := bob.Avatar().ID()

	bob.Close()
	tn.settle()
	_, err := alice.Registry().Get(id)
	assert.NotEqual(t, nil, err)
	assert.T(t, alice.Registry().WasDestroyed(id))
}

func TestCallServerPredictsAndRelays(t *testing.T) {
	tn := newTestNet(t, true)
	alice := tn.join("Alice1")
	bob := tn.join("Bob123")
	id := alice.Avatar().ID()

	assert.Equal(t, nil, alice.CallServer(id, "SwitchWeapon", 2))
	assert.Equal(t, 2, alice.Avatar().Weapon)
	tn.settle()

	e, _ := tn.gs.Registry().Get(id)
	assert.Equal(t, 2, e.(*entities.PlayerAvatar).Weapon)
	e, _ = bob.Registry().Get(id)
	assert.Equal(t, 2, e.(*entities.PlayerAvatar).Weapon)
}

func TestCallServerRejectsServerOnlyMethods(t *testing.T) {
	tn := newTestNet(t, true)
	alice := tn.join("Alice1")
	err := alice.CallServer(alice.Avatar().ID(), "TakeHeal", 10)
	assert.NotEqual(t, nil, err)

	lonely := tn.newClient(Options{})
	assert.Equal(t, ErrNotConnected, errors.Cause(lonely.CallServer(1, "SwitchWeapon", 1)))
}

func TestNoServersFound(t *testing.T) {
	tn := newTestNet(t, false)
	cs := tn.newClient(Options{})
	assert.Equal(t, nil, cs.RequestGameServer("Alice1"))
	time.Sleep(time.Millisecond)
	tn.settle()

	assert.Equal(t, ErrNoServersFound, cs.LastError())
	assert.T(t, !cs.InGame())
	assert.Equal(t, driver.ConnectedMaster, cs.Driver().Phase())
	assert.Equal(t, nil, cs.RequestGameServer("Alice1"), "a new request is allowed after the answer")
}

func TestGameServerDisconnectClearsWorld(t *testing.T) {
	tn := newTestNet(t, true)
	cs := tn.join("Alice1")
	assert.NotEqual(t, 0, cs.Registry().Len())

	tn.gs.Close()
	tn.gs = nil
	tn.settle()

	assert.Equal(t, 0, cs.Registry().Len())
	assert.T(t, cs.Avatar() == nil)
	assert.T(t, !cs.InGame())
	assert.Equal(t, ErrGameServerDisconnected, cs.LastError())
	assert.Equal(t, driver.ConnectedMaster, cs.Driver().Phase())
	assert.T(t, !cs.Driver().Stopped())
}

func TestVersionRejected(t *testing.T) {
	n := memnet.NewNetwork()
	host, err := session.OpenHost("fake-master", n.NewTransport(masterIP), 4, masterPort)
	assert.Equal(t, nil, err)

	cs, err := NewClientService(Options{
		Config:    &config.ClientConfig{MasterIp: masterIP, MasterPort: masterPort},
		Transport: n.NewTransport("10.0.1.1"),
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, cs.Start())

	var versions []string
	for i := 0; i < 3; i++ {
		for evt := host.T.Poll(); evt.Kind != transport.EventNothing; evt = host.T.Poll() {
			switch evt.Kind {
			case transport.EventConnect:
				host.Accept(evt.Conn)
			case transport.EventData:
				msg, err := proto.Decode(evt.Data)
				assert.Equal(t, nil, err)
				v, _ := proto.ParseVersion(msg)
				versions = append(versions, v)
				host.Send(evt.Conn, host.Channels.Reliable, proto.IncorrectVersionNumber())
			}
		}
		cs.Tick()
	}
	assert.Equal(t, []string{"1.0"}, versions)
	assert.T(t, cs.Driver().Stopped())
	assert.Equal(t, ErrVersionRejected, errors.Cause(cs.Driver().Err()))
	assert.Equal(t, ErrVersionRejected, cs.LastError())
}

func TestAnswerFromGameServerIsIgnored(t *testing.T) {
	n := memnet.NewNetwork()
	mhost, err := session.OpenHost("fake-master", n.NewTransport(masterIP), 4, masterPort)
	assert.Equal(t, nil, err)
	ghost, err := session.OpenHost("fake-game", n.NewTransport(gameIP), 4, gamePort)
	assert.Equal(t, nil, err)

	cs, err := NewClientService(Options{
		Config:    &config.ClientConfig{MasterIp: masterIP, MasterPort: masterPort},
		Transport: n.NewTransport("10.0.1.1"),
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, cs.Start())

	// fake master routes to the fake game server; the fake game server routes elsewhere
	serve := func(h *session.Host, reply func(conn transport.ConnectionID, msg proto.Message)) {
		for evt := h.T.Poll(); evt.Kind != transport.EventNothing; evt = h.T.Poll() {
			switch evt.Kind {
			case transport.EventConnect:
				h.Accept(evt.Conn)
				if h == ghost {
					h.Send(evt.Conn, h.Channels.Reliable, proto.AnswerGameServerDetails("10.0.0.9", 4000))
				}
			case transport.EventData:
				msg, err := proto.Decode(evt.Data)
				assert.Equal(t, nil, err)
				reply(evt.Conn, msg)
			}
		}
	}
	var fromGame []proto.MsgType
	for i := 0; i < 4; i++ {
		serve(mhost, func(conn transport.ConnectionID, msg proto.Message) {
			if msg.Type == proto.MT_REQUEST_GAME_SERVER_DETAILS {
				mhost.Send(conn, mhost.Channels.Reliable, proto.AnswerGameServerDetails(gameIP, gamePort))
			}
		})
		serve(ghost, func(conn transport.ConnectionID, msg proto.Message) {
			fromGame = append(fromGame, msg.Type)
		})
		cs.Tick()
		if i == 0 {
			assert.Equal(t, nil, cs.RequestGameServer("Alice1"))
		}
	}
	assert.T(t, cs.InGame())
	assert.Equal(t, driver.ConnectingPeer, cs.Driver().Phase())
	assert.Equal(t, 0, len(fromGame))
}

func TestAutoJoin(t *testing.T) {
	tn := newTestNet(t, true)
	cs := tn.newClient(Options{AutoJoin: "Robot1"})
	tn.settle()
	assert.T(t, cs.InGame())
	assert.Equal(t, "Robot1", cs.Avatar().Name)
}

func TestAutoJoinRetriesAfterInterval(t *testing.T) {
	tn := newTestNet(t, false)
	clock := time.Unix(1000, 0)
	cs := tn.newClient(Options{AutoJoin: "Robot1", RetryInterval: time.Minute, Now: func() time.Time { return clock }})
	time.Sleep(time.Millisecond)
	tn.settle()
	assert.Equal(t, ErrNoServersFound, cs.LastError())

	tn.settle()
	assert.Equal(t, ErrNoServersFound, cs.LastError(), "no retry before the interval")

	clock = clock.Add(time.Minute)
	cs.Tick()
	assert.Equal(t, nil, cs.LastError(), "the retry clears the last error")
}

func TestBotMovesItsAvatar(t *testing.T) {
	tn := newTestNet(t, true)
	cs := tn.newClient(Options{AutoJoin: "Robot1"})
	NewBot(cs, 1)
	tn.settle()
	assert.T(t, cs.InGame())
	for i := 0; i < 20; i++ {
		tn.settle()
	}
	tn.gs.Tick()

	avatar := cs.Avatar()
	assert.NotEqual(t, entities.SpawnPoint, avatar.Position)
	e, err := tn.gs.Registry().Get(avatar.ID())
	assert.Equal(t, nil, err)
	assert.Equal(t, avatar.Position, e.(*entities.PlayerAvatar).Position)
}
