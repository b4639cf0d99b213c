package client

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
	"github.com/xiaonanln/fpsworld/engine/transport"
)

var (
	// ErrNotConnected is returned by requests made without the needed connection
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyRequested rejects a second game server request while one is outstanding
	ErrAlreadyRequested = errors.New("game server already requested")
	// ErrAlreadyInGame rejects a game server request while connected to one
	ErrAlreadyInGame = errors.New("already in a game")
	// ErrNoServersFound is the last error after the master found no game server
	ErrNoServersFound = errors.New("no game servers found")
	// ErrVersionRejected stops a client the master refused
	ErrVersionRejected = errors.New("version rejected by master")
	// ErrMasterDisconnected stops a client that lost the master before joining a game
	ErrMasterDisconnected = errors.New("master disconnected")
	// ErrGameServerDisconnected is the last error after the game server went away
	ErrGameServerDisconnected = errors.New("game server disconnected")
)

// Options are the dependencies of a ClientService
type Options struct {
	Config    *config.ClientConfig
	Transport transport.Transport
	Queue     *post.Queue // nil creates a private queue
	// Registerer receives the rpc and driver collectors; may be nil
	Registerer prometheus.Registerer
	// AutoJoin, when set, is the name the client keeps requesting a game server with
	// until it is in a game
	AutoJoin string
	// RetryInterval spaces automatic requests; defaults to DefaultRetryInterval
	RetryInterval time.Duration
	Now           func() time.Time
}

// DefaultRetryInterval spaces automatic game server requests
const DefaultRetryInterval = 3 * time.Second

// ClientService is a player process: it asks the master for a game server, joins it and
// keeps a mirror of the world the game server replicates
type ClientService struct {
	config   *config.ClientConfig
	t        transport.Transport
	registry *entity.Registry
	rpc      *rpc.Dispatcher
	driver   *driver.Driver

	masterHost *session.Host
	master     *session.Session
	gameHost   *session.Host
	game       *session.Session

	name      string
	requested bool
	joined    bool
	lastErr   error
	onJoined  []func(avatar *entities.PlayerAvatar)
	onTick    []func()

	autoJoin      string
	retryInterval time.Duration
	lastRequest   time.Time
	now           func() time.Time
}

// NewClientService creates a client from opts. Start connects it to the master.
func NewClientService(opts Options) (*ClientService, error) {
	if opts.Config == nil || opts.Transport == nil {
		return nil, errors.New("client needs a config and a transport")
	}
	queue := opts.Queue
	if queue == nil {
		queue = post.NewQueue()
	}
	cs := &ClientService{
		config:   opts.Config,
		t:        opts.Transport,
		registry: entity.NewMirror(entities.NewTypeSet()),

		autoJoin:      opts.AutoJoin,
		retryInterval: opts.RetryInterval,
		now:           opts.Now,
	}
	if cs.retryInterval <= 0 {
		cs.retryInterval = DefaultRetryInterval
	}
	if cs.now == nil {
		cs.now = time.Now
	}
	cs.rpc = rpc.NewDispatcher(cs.registry, nil, metrics.NewRPC(opts.Registerer))
	cs.driver = driver.New("client", opts.Transport, cs, queue, consts.TICK_RATE, metrics.NewDriver(opts.Registerer, "client"))
	return cs, nil
}

func (cs *ClientService) String() string {
	return fmt.Sprintf("ClientService<%s#%d>", cs.name, cs.registry.LocalConnection())
}

// Registry returns the mirror registry
func (cs *ClientService) Registry() *entity.Registry {
	return cs.registry
}

// Driver returns the tick loop of the client
func (cs *ClientService) Driver() *driver.Driver {
	return cs.driver
}

// LastError returns the last recoverable error, e.g. ErrNoServersFound
func (cs *ClientService) LastError() error {
	return cs.lastErr
}

// InGame reports whether the client is connected to a game server
func (cs *ClientService) InGame() bool {
	return cs.game != nil && cs.game.IsConnected()
}

// OnJoined adds a callback run when the own avatar arrives
func (cs *ClientService) OnJoined(f func(avatar *entities.PlayerAvatar)) {
	cs.onJoined = append(cs.onJoined, f)
}

// OnTick adds a callback run in every tick before the own avatar is sent
func (cs *ClientService) OnTick(f func()) {
	cs.onTick = append(cs.onTick, f)
}

// Avatar returns the avatar owned by this client, or nil
func (cs *ClientService) Avatar() *entities.PlayerAvatar {
	local := cs.registry.LocalConnection()
	if local == transport.NoConnection {
		return nil
	}
	for _, e := range cs.registry.ByType(entities.TypePlayerAvatar) {
		if e.Owner() == local {
			return e.(*entities.PlayerAvatar)
		}
	}
	return nil
}

// Start connects to the master
func (cs *ClientService) Start() error {
	host, err := session.OpenHost("client-master", cs.t, 1, 0)
	if err != nil {
		return err
	}
	cs.masterHost = host
	cs.master = session.NewSession(host)
	if err := cs.master.Connect(cs.config.MasterIp, cs.config.MasterPort); err != nil {
		return err
	}
	cs.driver.SetPhase(driver.ConnectingMaster)
	return nil
}

// Tick runs one iteration of the tick loop
func (cs *ClientService) Tick() int {
	return cs.driver.Tick()
}

// Close disconnects from everything
func (cs *ClientService) Close() {
	if cs.gameHost != nil {
		cs.gameHost.Close()
	}
	if cs.masterHost != nil {
		cs.masterHost.Close()
	}
}

// RequestGameServer asks the master for a game server to join as name. Only one request
// may be outstanding.
func (cs *ClientService) RequestGameServer(name string) error {
	if cs.requested {
		return ErrAlreadyRequested
	}
	if cs.InGame() {
		return ErrAlreadyInGame
	}
	if cs.master == nil || !cs.master.IsConnected() {
		return errors.Wrap(ErrNotConnected, "master")
	}
	if err := proto.ValidateName(name); err != nil {
		return err
	}
	if err := cs.master.Send(cs.masterHost.Channels.Reliable, proto.RequestGameServerDetails()); err != nil {
		return err
	}
	cs.name = name
	cs.requested = true
	cs.lastRequest = cs.now()
	cs.lastErr = nil
	return nil
}

// CallServer predicts a client callable method on the local mirror and asks the game
// server to run it
func (cs *ClientService) CallServer(id common.EntityID, method string, args ...interface{}) error {
	if !cs.InGame() {
		return errors.Wrap(ErrNotConnected, "game server")
	}
	e, err := cs.registry.Get(id)
	if err != nil {
		return err
	}
	raw, err := cs.rpc.InvokeLocal(e, method, args...)
	if err != nil {
		return err
	}
	msg, err := proto.ClientRPC(proto.RPCCall{EntityID: id, Method: method, Args: raw})
	if err != nil {
		return err
	}
	return cs.game.Send(cs.gameHost.Channels.ReliableSequenced, msg)
}

// HandleEvent handles one transport event of the master or game server link
func (cs *ClientService) HandleEvent(evt transport.Event) {
	switch {
	case cs.master != nil && cs.master.Is(evt):
		cs.handleMasterEvent(evt)
	case cs.game != nil && cs.game.Is(evt):
		cs.handleGameEvent(evt)
	}
}

func (cs *ClientService) handleMasterEvent(evt transport.Event) {
	switch evt.Kind {
	case transport.EventConnect:
		cs.master.OnConnect()
		if cs.driver.Phase() < driver.ConnectedMaster {
			cs.driver.SetPhase(driver.ConnectedMaster)
		}
		if err := cs.master.Send(cs.masterHost.Channels.Reliable, proto.ClientConnected(consts.VERSION)); err != nil {
			gwlog.Errorf("%s: %s", cs, err)
		}
	case transport.EventData:
		cs.handleMasterData(evt.Data)
	case transport.EventDisconnect:
		cs.master.OnDisconnect(evt.Err)
		cs.requested = false
		if !cs.InGame() {
			cs.driver.Stop(ErrMasterDisconnected)
		} else {
			gwlog.Warnf("%s: master disconnected", cs)
		}
	}
}

func (cs *ClientService) handleMasterData(data []byte) {
	if proto.IsDiagnostic(data) {
		gwlog.Warnf("%s: master says: %s", cs, data)
		return
	}
	msg, err := proto.Decode(data)
	if err != nil {
		gwlog.Warnf("%s: malformed message from master: %s", cs, err)
		return
	}
	switch msg.Type {
	case proto.MT_ANSWER_GAME_SERVER_DETAILS:
		cs.handleAnswer(msg)
	case proto.MT_INCORRECT_VERSION_NUMBER:
		cs.lastErr = ErrVersionRejected
		cs.driver.Stop(errors.Wrapf(ErrVersionRejected, "version %s", consts.VERSION))
	default:
		gwlog.Warnf("%s: unexpected message from master: %s", cs, msg.Type)
	}
}

func (cs *ClientService) handleAnswer(msg proto.Message) {
	defer func() { cs.requested = false }()
	if cs.InGame() || (cs.game != nil && cs.game.State() == session.Connecting) {
		return
	}
	ip, port, found, err := proto.ParseAnswerGameServerDetails(msg)
	if err != nil {
		gwlog.Warnf("%s: %s", cs, err)
		return
	}
	if !found {
		gwlog.Warnf("%s: %s", cs, ErrNoServersFound)
		cs.lastErr = ErrNoServersFound
		return
	}
	if cs.gameHost == nil {
		host, err := session.OpenHost("client-game", cs.t, 1, 0)
		if err != nil {
			cs.lastErr = err
			gwlog.Errorf("%s: %s", cs, err)
			return
		}
		cs.gameHost = host
		cs.game = session.NewSession(host)
	}
	if err := cs.game.Connect(ip, port); err != nil {
		cs.lastErr = err
		gwlog.Errorf("%s: %s", cs, err)
		return
	}
	cs.driver.SetPhase(driver.ConnectingPeer)
	gwlog.Infof("%s: joining game server %s:%d", cs, ip, port)
}

func (cs *ClientService) handleGameEvent(evt transport.Event) {
	switch evt.Kind {
	case transport.EventConnect:
		cs.game.OnConnect()
	case transport.EventData:
		cs.handleGameData(evt.Data)
	case transport.EventDisconnect:
		cs.game.OnDisconnect(evt.Err)
		cs.leaveWorld()
	}
}

// leaveWorld clears the mirror after the game server went away
func (cs *ClientService) leaveWorld() {
	gwlog.Warnf("%s: %s", cs, ErrGameServerDisconnected)
	cs.registry.Clear()
	cs.registry.SetLocalConnection(transport.NoConnection)
	cs.joined = false
	cs.lastErr = ErrGameServerDisconnected
	if cs.master != nil && cs.master.IsConnected() {
		cs.driver.SetPhase(driver.ConnectedMaster)
	} else {
		cs.driver.Stop(ErrGameServerDisconnected)
	}
}

func (cs *ClientService) handleGameData(data []byte) {
	if proto.IsDiagnostic(data) {
		gwlog.Warnf("%s: game server says: %s", cs, data)
		return
	}
	msg, err := proto.Decode(data)
	if err != nil {
		gwlog.Warnf("%s: malformed message from game server: %s", cs, err)
		return
	}
	switch msg.Type {
	case proto.MT_GAME_SERVER_INFO:
		err = cs.handleGameServerInfo(msg)
	case proto.MT_INITIALIZE_ALL_ENTITIES:
		var records []proto.EntityRecord
		if records, err = proto.ParseInitializeAllEntities(msg); err == nil {
			for _, rec := range records {
				cs.mirror(rec)
			}
		}
	case proto.MT_INITIALIZE_ENTITY:
		var rec proto.EntityRecord
		if rec, err = proto.ParseInitializeEntity(msg); err == nil {
			cs.mirror(rec)
		}
	case proto.MT_UPDATE_ENTITY:
		err = cs.handleUpdateEntity(msg)
	case proto.MT_ENTITY_DESTROY:
		var id common.EntityID
		if id, err = proto.ParseEntityDestroy(msg); err == nil {
			if derr := cs.registry.Destroy(id); derr != nil {
				gwlog.Debugf("%s: destroy: %s", cs, derr)
			}
		}
	case proto.MT_EXECUTE_RPC:
		var call proto.RPCCall
		if call, err = proto.ParseRPCCall(msg); err == nil {
			if rerr := cs.rpc.ApplyRemote(call.EntityID, call.Method, call.Args); rerr != nil {
				gwlog.Warnf("%s: execute %s: %s", cs, call.Method, rerr)
			}
		}
	case proto.MT_ANSWER_GAME_SERVER_DETAILS:
		gwlog.Warnf("%s: ignoring routing answer from the game server", cs)
	default:
		gwlog.Warnf("%s: unexpected message from game server: %s", cs, msg.Type)
	}
	if err != nil {
		gwlog.Warnf("%s: malformed %s: %s", cs, msg.Type, err)
	}
}

func (cs *ClientService) handleGameServerInfo(msg proto.Message) error {
	id, err := proto.ParseIntField(msg)
	if err != nil {
		return err
	}
	cs.registry.SetLocalConnection(transport.ConnectionID(id))
	cs.driver.SetPhase(driver.Active)
	return cs.game.Send(cs.gameHost.Channels.Reliable, proto.PlayerDetails(cs.name))
}

func (cs *ClientService) mirror(rec proto.EntityRecord) {
	e, err := cs.registry.MirrorRecord(rec)
	if err != nil {
		gwlog.Warnf("%s: mirror %s<%s>: %s", cs, rec.Type, rec.ID, err)
		return
	}
	if cs.joined || e.Perspective() != entity.Client {
		return
	}
	if avatar, ok := e.(*entities.PlayerAvatar); ok {
		cs.joined = true
		gwlog.Infof("%s: joined as %s", cs, avatar)
		for _, f := range cs.onJoined {
			f(avatar)
		}
	}
}

func (cs *ClientService) handleUpdateEntity(msg proto.Message) error {
	id, fields, err := proto.ParseUpdateEntity(msg)
	if err != nil {
		return err
	}
	e, err := cs.registry.Get(id)
	if err != nil {
		if !cs.registry.WasDestroyed(id) {
			gwlog.Debugf("%s: update: %s", cs, err)
		}
		return nil
	}
	return e.ApplyUpdate(fields)
}

// Ready reports whether any link is up
func (cs *ClientService) Ready() bool {
	return (cs.master != nil && cs.master.IsConnected()) || cs.InGame()
}

// UpdateSend sends the own avatar's state to the game server, or asks for a game server
// when auto joining
func (cs *ClientService) UpdateSend() {
	if !cs.InGame() {
		cs.tryAutoJoin()
		return
	}
	for _, f := range cs.onTick {
		f()
	}
	avatar := cs.Avatar()
	if avatar == nil {
		return
	}
	msg, err := proto.UpdateEntity(avatar.ID(), avatar.SerializeUpdate())
	if err != nil {
		gwlog.Errorf("%s: %s", cs, err)
		return
	}
	if err := cs.game.Send(cs.gameHost.Channels.Unreliable, msg); err != nil {
		gwlog.Warnf("%s: %s", cs, err)
	}
}

func (cs *ClientService) tryAutoJoin() {
	if cs.autoJoin == "" || cs.requested || cs.driver.Phase() != driver.ConnectedMaster {
		return
	}
	if !cs.lastRequest.IsZero() && cs.now().Sub(cs.lastRequest) < cs.retryInterval {
		return
	}
	if err := cs.RequestGameServer(cs.autoJoin); err != nil {
		gwlog.Warnf("%s: request game server: %s", cs, err)
		cs.lastRequest = cs.now()
	}
}
