package game

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xiaonanln/fpsworld/engine/common"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/driver"
	"github.com/xiaonanln/fpsworld/engine/entities"
	"github.com/xiaonanln/fpsworld/engine/entity"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"github.com/xiaonanln/fpsworld/engine/post"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/rpc"
	"github.com/xiaonanln/fpsworld/engine/session"
	"github.com/xiaonanln/fpsworld/engine/storage"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/world"
)

var (
	// ErrMasterDisconnected stops a game server that lost its master
	ErrMasterDisconnected = errors.New("master disconnected")
	// ErrVersionRejected stops a game server the master refused
	ErrVersionRejected = errors.New("version rejected by master")
	// ErrIdleShutdown stops a game server that stayed empty for the idle timeout
	ErrIdleShutdown = errors.New("idle shutdown")
)

// Options are the dependencies of a GameService
type Options struct {
	Config    *config.GameServerConfig
	Transport transport.Transport
	Layout    *world.Layout    // nil spawns an empty world
	Stats     *storage.Service // nil disables player statistics
	Queue     *post.Queue      // nil creates a private queue
	// Registerer receives the game, rpc and driver collectors; may be nil
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// GameService is the authoritative game server: it owns the entity registry, accepts
// players and replicates the world to them
type GameService struct {
	config  *config.GameServerConfig
	t       transport.Transport
	layout  *world.Layout
	stats   *storage.Service
	now     func() time.Time
	metrics *metrics.Game

	registry *entity.Registry
	rpc      *rpc.Dispatcher
	players  *Players
	driver   *driver.Driver

	masterHost *session.Host
	master     *session.Session
	host       *session.Host // nil until the master gave us a port

	emptySince      time.Time
	ragdollLifespan time.Duration
	reviveDelay     time.Duration
}

// NewGameService creates a game server from opts. Start connects it to the master.
func NewGameService(opts Options) (*GameService, error) {
	if opts.Config == nil || opts.Transport == nil {
		return nil, errors.New("game service needs a config and a transport")
	}
	queue := opts.Queue
	if queue == nil {
		queue = post.NewQueue()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	gs := &GameService{
		config:          opts.Config,
		t:               opts.Transport,
		layout:          opts.Layout,
		stats:           opts.Stats,
		now:             now,
		metrics:         metrics.NewGame(opts.Registerer),
		registry:        entity.NewAuthoritative(entities.NewTypeSet()),
		players:         NewPlayers(),
		ragdollLifespan: consts.RAGDOLL_LIFESPAN,
		reviveDelay:     consts.PLAYER_REVIVE_DELAY,
	}
	gs.rpc = rpc.NewDispatcher(gs.registry, gs, metrics.NewRPC(opts.Registerer))
	gs.rpc.OnAccepted(gs.onAcceptedCall)
	gs.driver = driver.New("gameserver", opts.Transport, gs, queue, consts.TICK_RATE, metrics.NewDriver(opts.Registerer, "gameserver"))
	return gs, nil
}

func (gs *GameService) String() string {
	return fmt.Sprintf("GameService<port=%d players=%d>", gs.Port(), gs.players.Len())
}

// Registry returns the authoritative entity registry
func (gs *GameService) Registry() *entity.Registry {
	return gs.registry
}

// Dispatcher returns the rpc dispatcher
func (gs *GameService) Dispatcher() *rpc.Dispatcher {
	return gs.rpc
}

// Players returns the player directory
func (gs *GameService) Players() *Players {
	return gs.players
}

// Driver returns the tick loop of the game server
func (gs *GameService) Driver() *driver.Driver {
	return gs.driver
}

// Port returns the listening port, 0 before registration
func (gs *GameService) Port() int {
	if gs.host == nil {
		return 0
	}
	return gs.host.Port()
}

// Start spawns the world and connects to the master
func (gs *GameService) Start() error {
	if gs.layout != nil {
		if _, err := gs.layout.Spawn(gs.registry); err != nil {
			return errors.Wrap(err, "spawn world")
		}
	}
	host, err := session.OpenHost("gameserver-master", gs.t, 1, 0)
	if err != nil {
		return err
	}
	gs.masterHost = host
	gs.master = session.NewSession(host)
	if err := gs.master.Connect(gs.config.MasterIp, gs.config.MasterPort); err != nil {
		return err
	}
	gs.driver.SetPhase(driver.ConnectingMaster)
	gwlog.Infof("%s: connecting master %s:%d", gs, gs.config.MasterIp, gs.config.MasterPort)
	gs.updateGauges()
	return nil
}

// Tick runs one iteration of the tick loop
func (gs *GameService) Tick() int {
	return gs.driver.Tick()
}

// Close closes the hosts of the game server
func (gs *GameService) Close() {
	if gs.host != nil {
		gs.host.Close()
	}
	if gs.masterHost != nil {
		gs.masterHost.Close()
	}
}

// HandleEvent handles one transport event of the master link or the player host
func (gs *GameService) HandleEvent(evt transport.Event) {
	switch {
	case gs.masterHost != nil && gs.masterHost.Owns(evt):
		gs.handleMasterEvent(evt)
	case gs.host != nil && gs.host.Owns(evt):
		gs.handleClientEvent(evt)
	}
}

func (gs *GameService) handleMasterEvent(evt transport.Event) {
	if !gs.master.Is(evt) {
		return
	}
	switch evt.Kind {
	case transport.EventConnect:
		gs.master.OnConnect()
		gs.driver.SetPhase(driver.ConnectedMaster)
		if err := gs.master.Send(gs.masterHost.Channels.Reliable, proto.GameServerConnected(consts.VERSION)); err != nil {
			gwlog.Errorf("%s: %s", gs, err)
		}
	case transport.EventData:
		gs.handleMasterData(evt.Data)
	case transport.EventDisconnect:
		gs.master.OnDisconnect(evt.Err)
		err := ErrMasterDisconnected
		if evt.Err != nil {
			err = errors.Wrap(ErrMasterDisconnected, evt.Err.Error())
		}
		gs.driver.Stop(err)
	}
}

func (gs *GameService) handleMasterData(data []byte) {
	if proto.IsDiagnostic(data) {
		gwlog.Warnf("%s: master says: %s", gs, data)
		return
	}
	msg, err := proto.Decode(data)
	if err != nil {
		gwlog.Warnf("%s: malformed message from master: %s", gs, err)
		return
	}
	switch msg.Type {
	case proto.MT_GAME_SERVER_PORT:
		port, err := proto.ParseIntField(msg)
		if err != nil {
			gwlog.Warnf("%s: %s", gs, err)
			return
		}
		gs.HandleGameServerPort(port)
	case proto.MT_INCORRECT_VERSION_NUMBER:
		gs.driver.Stop(errors.Wrapf(ErrVersionRejected, "version %s", consts.VERSION))
	default:
		gwlog.Warnf("%s: unexpected message from master: %s", gs, msg.Type)
	}
}

// HandleGameServerPort opens the player host on the port the master allocated
func (gs *GameService) HandleGameServerPort(port int) {
	if gs.host != nil {
		gwlog.Warnf("%s: got port %d twice", gs, port)
		return
	}
	maxConns := gs.config.MaxConnections
	if maxConns <= 0 {
		maxConns = consts.MAX_CONNECTIONS
	}
	host, err := session.OpenHost("gameserver", gs.t, maxConns, port)
	if err != nil {
		gs.driver.Stop(err)
		return
	}
	gs.host = host
	gs.emptySince = gs.now()
	gs.driver.SetPhase(driver.Accepting)
	gwlog.Infof("%s: accepting players", gs)
	gs.reportPopulation()
}

func (gs *GameService) reportPopulation() {
	if gs.master == nil || !gs.master.IsConnected() {
		return
	}
	if err := gs.master.Send(gs.masterHost.Channels.Reliable, proto.GameServerInfo(gs.players.Len())); err != nil {
		gwlog.Warnf("%s: report population: %s", gs, err)
	}
	gs.updateGauges()
}

func (gs *GameService) handleClientEvent(evt transport.Event) {
	switch evt.Kind {
	case transport.EventConnect:
		gs.host.Accept(evt.Conn)
		if err := gs.host.Send(evt.Conn, gs.host.Channels.Reliable, proto.GameServerInfo(int(evt.Conn))); err != nil {
			gwlog.Warnf("%s: %s", gs, err)
		}
	case transport.EventData:
		gs.handleClientData(evt.Conn, evt.Data)
	case transport.EventDisconnect:
		gs.host.Forget(evt.Conn)
		gs.removePlayer(evt.Conn, "disconnected")
	}
}

func (gs *GameService) handleClientData(conn transport.ConnectionID, data []byte) {
	if !gs.host.IsAccepted(conn) {
		return
	}
	msg, err := proto.Decode(data)
	if err != nil {
		gs.malformed(conn, data, err)
		return
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: recv from %d: %s", gs, conn, msg)
	}
	switch msg.Type {
	case proto.MT_PLAYER_DETAILS:
		err = gs.HandlePlayerDetails(conn, msg)
	case proto.MT_UPDATE_ENTITY:
		err = gs.HandleUpdateEntity(conn, msg)
	case proto.MT_PLAYER_UPDATE:
		err = gs.HandlePlayerUpdate(conn, msg)
	case proto.MT_CLIENT_RPC:
		err = gs.HandleClientRPC(conn, msg)
	default:
		gwlog.Warnf("%s: unexpected message from %d: %s", gs, conn, msg.Type)
		return
	}
	if err != nil {
		gs.malformed(conn, data, err)
	}
}

func (gs *GameService) malformed(conn transport.ConnectionID, data []byte, err error) {
	gwlog.Warnf("%s: malformed message from %d: %s", gs, conn, err)
	gs.metrics.MalformedMessages.Inc()
	gs.host.SendDiagnostic(conn, data)
}

// HandlePlayerDetails registers a player and spawns its avatar
func (gs *GameService) HandlePlayerDetails(conn transport.ConnectionID, msg proto.Message) error {
	name, err := proto.ParsePlayerDetails(msg)
	if err != nil {
		return err
	}
	if p := gs.players.Get(conn); p != nil {
		gwlog.Debugf("%s: %s sent details twice", gs, p)
		return nil
	}
	if err := proto.ValidateName(name); err != nil {
		gs.Kick(conn, err.Error())
		return nil
	}

	all, err := proto.InitializeAllEntities(gs.registry.Records())
	if err != nil {
		return err
	}
	if err := gs.host.Send(conn, gs.host.Channels.ReliableFragmentedSequenced, all); err != nil {
		gwlog.Warnf("%s: %s", gs, err)
	}

	e, err := gs.registry.Create(entities.TypePlayerAvatar, entities.PlayerAvatarFields(conn, name, entities.SpawnPoint))
	if err != nil {
		gwlog.Errorf("%s: spawn avatar of %s: %s", gs, name, err)
		gs.Kick(conn, "spawn failed")
		return nil
	}
	p := &Player{Name: name, Conn: conn, EntityID: e.ID(), JoinedAt: gs.now()}
	gs.players.Add(p)
	gwlog.Infof("%s: %s joined", gs, p)

	gs.broadcastInitialize(e)
	gs.reportPopulation()
	gs.loadStats(p)
	return nil
}

func (gs *GameService) broadcastInitialize(e entity.Entity) {
	msg, err := proto.InitializeEntity(entity.Record(e))
	if err != nil {
		gwlog.Errorf("%s: initialize %s: %s", gs, e, err)
		return
	}
	gs.SendToPlayers(transport.NoConnection, msg)
}

// SendToPlayers sends msg on the reliable-sequenced channel to every player but except
func (gs *GameService) SendToPlayers(except transport.ConnectionID, msg proto.Message) {
	if gs.host == nil {
		return
	}
	if err := gs.host.Broadcast(gs.players.Conns(), except, gs.host.Channels.ReliableSequenced, msg); err != nil {
		gwlog.Errorf("%s: broadcast %s: %s", gs, msg.Type, err)
	}
}

// ownedEntity returns entity id if conn owns it; ok is false when the update must be dropped
func (gs *GameService) ownedEntity(conn transport.ConnectionID, id common.EntityID) (e entity.Entity, ok bool) {
	e, err := gs.registry.Get(id)
	if err != nil {
		if !gs.registry.WasDestroyed(id) {
			gwlog.Warnf("%s: update from %d: %s", gs, conn, err)
		}
		return nil, false
	}
	if e.Owner() != conn {
		gwlog.Warnf("%s: connection %d updated %s it does not own", gs, conn, e)
		return nil, false
	}
	return e, true
}

// HandleUpdateEntity applies the update of an entity the sender owns and relays it to
// the other players
func (gs *GameService) HandleUpdateEntity(conn transport.ConnectionID, msg proto.Message) error {
	id, fields, err := proto.ParseUpdateEntity(msg)
	if err != nil {
		return err
	}
	if gs.players.Get(conn) == nil {
		return nil
	}
	e, ok := gs.ownedEntity(conn, id)
	if !ok {
		return nil
	}
	return gs.applyAndRelay(conn, e, fields)
}

// HandlePlayerUpdate is HandleUpdateEntity addressed to the sender's avatar
func (gs *GameService) HandlePlayerUpdate(conn transport.ConnectionID, msg proto.Message) error {
	fields, err := proto.ParsePlayerUpdate(msg)
	if err != nil {
		return err
	}
	p := gs.players.Get(conn)
	if p == nil {
		return nil
	}
	e, ok := gs.ownedEntity(conn, p.EntityID)
	if !ok {
		return nil
	}
	return gs.applyAndRelay(conn, e, fields)
}

func (gs *GameService) applyAndRelay(conn transport.ConnectionID, e entity.Entity, fields []string) error {
	if err := e.ApplyUpdate(fields); err != nil {
		return err
	}
	update, err := proto.UpdateEntity(e.ID(), e.SerializeUpdate())
	if err != nil {
		return err
	}
	if err := gs.host.Broadcast(gs.players.Conns(), conn, gs.host.Channels.Unreliable, update); err != nil {
		gwlog.Errorf("%s: relay update of %s: %s", gs, e, err)
	}
	return nil
}

// HandleClientRPC runs a client call through the dispatcher. Rejected calls are dropped.
func (gs *GameService) HandleClientRPC(conn transport.ConnectionID, msg proto.Message) error {
	call, err := proto.ParseRPCCall(msg)
	if err != nil {
		return err
	}
	if gs.players.Get(conn) == nil {
		return nil
	}
	_, err = gs.rpc.InvokeFromClient(conn, call.EntityID, call.Method, call.Args)
	switch errors.Cause(err) {
	case nil:
	case rpc.ErrUnauthorizedRPC:
		if consts.DEBUG_RPC {
			gwlog.Debugf("%s: %s", gs, err)
		}
	default:
		gwlog.Warnf("%s: rpc from %d dropped: %s", gs, conn, err)
	}
	return nil
}

// Kick disconnects a player and cleans up after it
func (gs *GameService) Kick(conn transport.ConnectionID, reason string) {
	gwlog.Warnf("%s: kicking %d: %s", gs, conn, reason)
	gs.metrics.Kicks.Inc()
	gs.host.Disconnect(conn)
	gs.removePlayer(conn, "kicked")
}

// removePlayer unregisters the player on conn, destroys what it owned and saves its stats
func (gs *GameService) removePlayer(conn transport.ConnectionID, why string) {
	p := gs.players.Remove(conn)
	if p == nil {
		return
	}
	if e, err := gs.registry.Get(p.EntityID); err == nil {
		if avatar, ok := e.(*entities.PlayerAvatar); ok && avatar.BestSpeed > p.BestSpeed {
			p.BestSpeed = avatar.BestSpeed
		}
	}
	for _, id := range gs.registry.DestroyOwnedBy(conn) {
		gs.SendToPlayers(transport.NoConnection, proto.EntityDestroy(id))
	}
	played := gs.now().Sub(p.JoinedAt)
	gs.metrics.SessionSeconds.Observe(played.Seconds())
	gwlog.Infof("%s: %s %s after %s", gs, p, why, played)
	gs.saveStats(p)
	if gs.players.Len() == 0 {
		gs.emptySince = gs.now()
	}
	gs.reportPopulation()
}

// destroyEntity destroys a server owned entity and tells every player
func (gs *GameService) destroyEntity(id common.EntityID) {
	if err := gs.registry.Destroy(id); err != nil {
		gwlog.Debugf("%s: %s", gs, err)
		return
	}
	gs.SendToPlayers(transport.NoConnection, proto.EntityDestroy(id))
	gs.updateGauges()
}

// spawnEntity creates a server owned entity and tells every player
func (gs *GameService) spawnEntity(typeName string, fields []string) (entity.Entity, error) {
	e, err := gs.registry.Create(typeName, fields)
	if err != nil {
		return nil, err
	}
	gs.broadcastInitialize(e)
	gs.updateGauges()
	return e, nil
}

func (gs *GameService) loadStats(p *Player) {
	if gs.stats == nil {
		return
	}
	name, conn := p.Name, p.Conn
	gs.stats.Load(name, func(stats *storage.PlayerStats, err error) {
		if err != nil {
			gwlog.Warnf("%s: load stats of %s: %s", gs, name, err)
			return
		}
		p := gs.players.Get(conn)
		if p == nil || p.Name != name || stats == nil {
			return
		}
		p.Stored = stats
		if stats.BestSpeed > p.BestSpeed {
			p.BestSpeed = stats.BestSpeed
		}
	})
}

// saveStats folds the session into the record of the player. A record loaded at join is
// merged here and written as is; otherwise storage reads it back first.
func (gs *GameService) saveStats(p *Player) {
	if gs.stats == nil {
		return
	}
	session := &storage.PlayerStats{
		Name:      p.Name,
		BestSpeed: p.BestSpeed,
		Games:     1,
		Deaths:    p.Deaths,
		LastSeen:  gs.now().Unix(),
	}
	if p.Stored == nil {
		gs.stats.Merge(session, nil)
		return
	}
	stats := *p.Stored
	stats.Merge(session)
	gs.stats.Save(&stats, func(err error) {
		if err != nil {
			gwlog.Errorf("%s: save stats of %s failed: %s", gs, stats.Name, err)
		}
	})
}

// Ready reports whether the player host is open
func (gs *GameService) Ready() bool {
	return gs.host != nil
}

// UpdateSend shuts the server down once it stayed empty for the idle timeout
func (gs *GameService) UpdateSend() {
	if gs.players.Len() > 0 {
		gs.driver.SetPhase(driver.Active)
		return
	}
	gs.driver.SetPhase(driver.Accepting)
	timeout := gs.config.IdleTimeout
	if timeout <= 0 {
		timeout = consts.IDLE_SHUTDOWN_TIMEOUT
	}
	if idle := gs.now().Sub(gs.emptySince); idle >= timeout {
		gs.driver.Stop(errors.Wrapf(ErrIdleShutdown, "empty for %s", idle))
	}
}

func (gs *GameService) updateGauges() {
	gs.metrics.Players.Set(float64(gs.players.Len()))
	gs.metrics.Entities.Set(float64(gs.registry.Len()))
}
