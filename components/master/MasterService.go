package master

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"github.com/xiaonanln/fpsworld/engine/proto"
	"github.com/xiaonanln/fpsworld/engine/session"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

var (
	// ErrVersionMismatch rejects a peer with another protocol version
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrNoFreePort queues a game server registration
	ErrNoFreePort = errors.New("no free port")
	// ErrNoCapacity queues a client until a game server has room
	ErrNoCapacity = errors.New("no game server capacity")
)

// Route outcomes
const (
	routeFound    = "found"
	routeQueued   = "queued"
	routeNotFound = "not_found"
)

// MasterService registers game servers, hands out their ports and routes clients to them
type MasterService struct {
	config   *config.MasterConfig
	host     *session.Host
	ports    *PortPool
	dir      *Directory
	launcher Launcher
	metrics  *metrics.Master
	now      func() time.Time

	lastLaunch     time.Time
	launchAttempts int
}

// NewMasterService opens the master host on cfg.Port of t. m may be nil.
func NewMasterService(cfg *config.MasterConfig, t transport.Transport, launcher Launcher, m *metrics.Master) (*MasterService, error) {
	host, err := session.OpenHost("master", t, consts.MAX_CONNECTIONS, cfg.Port)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NewMaster(nil)
	}
	ms := &MasterService{
		config:   cfg,
		host:     host,
		ports:    NewPortPool(cfg.Ports),
		dir:      NewDirectory(),
		launcher: launcher,
		metrics:  m,
		now:      time.Now,
	}
	gwlog.Infof("%s: listening on port %d with %d game server ports", ms, host.Port(), ms.ports.Size())
	ms.updateGauges()
	return ms, nil
}

func (ms *MasterService) String() string {
	return fmt.Sprintf("MasterService<%s>", ms.dir)
}

// Host returns the listening host
func (ms *MasterService) Host() *session.Host {
	return ms.host
}

// Directory returns the session directory
func (ms *MasterService) Directory() *Directory {
	return ms.dir
}

// Ports returns the port pool
func (ms *MasterService) Ports() *PortPool {
	return ms.ports
}

// Close closes the listening host
func (ms *MasterService) Close() {
	if err := ms.host.Close(); err != nil {
		gwlog.Warnf("%s: close host: %s", ms, err)
	}
}

// HandleEvent handles one transport event of the master host
func (ms *MasterService) HandleEvent(evt transport.Event) {
	if !ms.host.Owns(evt) {
		return
	}
	switch evt.Kind {
	case transport.EventConnect:
		ms.host.Accept(evt.Conn)
		gwlog.Debugf("%s: connection %d accepted", ms, evt.Conn)
	case transport.EventData:
		ms.handleData(evt.Conn, evt.Data)
	case transport.EventDisconnect:
		ms.HandleDisconnect(evt.Conn)
	}
}

func (ms *MasterService) handleData(conn transport.ConnectionID, data []byte) {
	if !ms.host.IsAccepted(conn) {
		return // data racing a forced disconnect
	}
	msg, err := proto.Decode(data)
	if err != nil {
		ms.malformed(conn, data, err)
		return
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: recv from %d: %s", ms, conn, msg)
	}

	switch msg.Type {
	case proto.MT_CLIENT_CONNECTED:
		err = ms.HandleClientConnected(conn, msg)
	case proto.MT_REQUEST_GAME_SERVER_DETAILS:
		err = ms.HandleRequestGameServerDetails(conn)
	case proto.MT_GAME_SERVER_CONNECTED:
		err = ms.HandleGameServerConnected(conn, msg)
	case proto.MT_GAME_SERVER_INFO:
		err = ms.HandleGameServerInfo(conn, msg)
	default:
		gwlog.Warnf("%s: unexpected message from %d: %s", ms, conn, msg.Type)
		return
	}
	if err != nil {
		ms.malformed(conn, data, err)
	}
}

func (ms *MasterService) malformed(conn transport.ConnectionID, data []byte, err error) {
	gwlog.Warnf("%s: malformed message from %d: %s", ms, conn, err)
	ms.host.SendDiagnostic(conn, data)
}

// rejectVersion answers a version mismatch and drops the peer in the same tick
func (ms *MasterService) rejectVersion(conn transport.ConnectionID, version string) {
	gwlog.Warnf("%s: connection %d: %s", ms, conn, errors.Wrapf(ErrVersionMismatch, "got %s, expect %s", version, consts.VERSION))
	if err := ms.host.Send(conn, ms.host.Channels.Reliable, proto.IncorrectVersionNumber()); err != nil {
		gwlog.Warnf("%s", err)
	}
	ms.host.Disconnect(conn)
}

// HandleClientConnected checks the version of a client and registers it
func (ms *MasterService) HandleClientConnected(conn transport.ConnectionID, msg proto.Message) error {
	version, err := proto.ParseVersion(msg)
	if err != nil {
		return err
	}
	if version != consts.VERSION {
		ms.rejectVersion(conn, version)
		return nil
	}
	ms.dir.AddClient(conn)
	gwlog.Infof("%s: client %d registered", ms, conn)
	ms.updateGauges()
	return nil
}

// HandleGameServerConnected checks the version of a game server and gives it a port, or queues it
func (ms *MasterService) HandleGameServerConnected(conn transport.ConnectionID, msg proto.Message) error {
	version, err := proto.ParseVersion(msg)
	if err != nil {
		return err
	}
	if version != consts.VERSION {
		ms.rejectVersion(conn, version)
		return nil
	}
	if ms.dir.Server(conn) != nil {
		gwlog.Warnf("%s: game server %d registered twice", ms, conn)
		return nil
	}
	port, ok := ms.ports.Allocate()
	if !ok {
		gwlog.Warnf("%s: game server %d: %s, registration queued", ms, conn, ErrNoFreePort)
		ms.dir.QueueRegistration(conn)
		ms.updateGauges()
		return nil
	}
	ms.registerGameServer(conn, port)
	return nil
}

func (ms *MasterService) registerGameServer(conn transport.ConnectionID, port int) {
	gs := &GameServerInfo{
		Conn: conn,
		IP:   ms.advertisedIP(conn),
		Port: port,
	}
	ms.dir.AddServer(gs)
	gwlog.Infof("%s: %s registered", ms, gs)
	if err := ms.host.Send(conn, ms.host.Channels.Reliable, proto.GameServerPort(port)); err != nil {
		gwlog.Errorf("%s", err)
	}
	ms.updateGauges()
}

// advertisedIP is the address clients should use for the game server on conn
func (ms *MasterService) advertisedIP(conn transport.ConnectionID) string {
	ip, _, err := ms.host.T.ConnectionInfo(ms.host.ID, conn)
	if err != nil {
		gwlog.Warnf("%s: connection info of %d: %s", ms, conn, err)
	}
	if ms.config.AdvertiseIp != "" {
		if parsed := net.ParseIP(ip); ip == "" || parsed == nil || parsed.IsLoopback() || parsed.IsUnspecified() {
			return ms.config.AdvertiseIp
		}
	}
	return ip
}

// HandleGameServerInfo records the population a game server reported and answers waiting clients
func (ms *MasterService) HandleGameServerInfo(conn transport.ConnectionID, msg proto.Message) error {
	population, err := proto.ParseIntField(msg)
	if err != nil {
		return err
	}
	gs := ms.dir.Server(conn)
	if gs == nil {
		gwlog.Warnf("%s: population report from unregistered connection %d", ms, conn)
		return nil
	}
	if !gs.Ready {
		gwlog.Infof("%s: %s is ready", ms, gs)
	}
	if joined := population - gs.Population; joined > 0 {
		gs.Reserved -= joined
		if gs.Reserved < 0 {
			gs.Reserved = 0
		}
	}
	gs.Population = population
	gs.Ready = true
	ms.answerWaitingClients()
	return nil
}

// HandleRequestGameServerDetails routes a client, or queues it and launches a game server
func (ms *MasterService) HandleRequestGameServerDetails(conn transport.ConnectionID) error {
	if ms.dir.Client(conn) == nil {
		gwlog.Warnf("%s: game server request from unregistered connection %d", ms, conn)
		return nil
	}
	if ms.dir.IsWaiting(conn) {
		return nil
	}
	if gs := ms.route(); gs != nil {
		ms.answer(conn, gs)
		ms.launchAttempts = 0
		return nil
	}
	ms.dir.Wait(conn)
	ms.metrics.Routes.WithLabelValues(routeQueued).Inc()
	gwlog.Infof("%s: client %d: %s, queued", ms, conn, ErrNoCapacity)
	ms.checkLaunch()
	ms.updateGauges()
	return nil
}

func (ms *MasterService) capacity() int {
	if ms.config.Capacity > 0 {
		return ms.config.Capacity
	}
	return consts.GAME_SERVER_CAPACITY
}

// route picks the fullest ready game server with a free slot; ties go to the lowest port
func (ms *MasterService) route() *GameServerInfo {
	var best *GameServerInfo
	capacity := ms.capacity()
	for _, gs := range ms.dir.Servers() {
		if !gs.Ready || gs.Load() >= capacity {
			continue
		}
		if best == nil || gs.Load() > best.Load() {
			best = gs
		}
	}
	return best
}

func (ms *MasterService) answer(conn transport.ConnectionID, gs *GameServerInfo) {
	gs.Reserved++
	routed := 1
	if ci := ms.dir.Client(conn); ci != nil {
		ci.Routed++
		routed = ci.Routed
	}
	if routed > 1 {
		ms.metrics.Reroutes.Inc()
	}
	gwlog.Infof("%s: client %d routed to %s (route #%d)", ms, conn, gs, routed)
	if err := ms.host.Send(conn, ms.host.Channels.Reliable, proto.AnswerGameServerDetails(gs.IP, gs.Port)); err != nil {
		gwlog.Warnf("%s", err)
	}
	ms.metrics.Routes.WithLabelValues(routeFound).Inc()
}

func (ms *MasterService) answerWaitingClients() {
	for ms.dir.NumWaiting() > 0 {
		gs := ms.route()
		if gs == nil {
			break
		}
		conn, _ := ms.dir.PopWaiting()
		ms.answer(conn, gs)
		ms.launchAttempts = 0
	}
	ms.updateGauges()
}

func (ms *MasterService) launchCooldown() time.Duration {
	if ms.config.LaunchCooldown > 0 {
		return ms.config.LaunchCooldown
	}
	return consts.LAUNCH_COOLDOWN
}

func (ms *MasterService) maxLaunchAttempts() int {
	if ms.config.MaxLaunchAttempts > 0 {
		return ms.config.MaxLaunchAttempts
	}
	return consts.MAX_LAUNCH_ATTEMPTS
}

// checkLaunch launches a game server for waiting clients, at most once per cooldown.
// After too many launches without a route the waiting clients are told NoServersFound.
func (ms *MasterService) checkLaunch() {
	if ms.dir.NumWaiting() == 0 {
		return
	}
	now := ms.now()
	if !ms.lastLaunch.IsZero() && now.Sub(ms.lastLaunch) < ms.launchCooldown() {
		return
	}
	if ms.launchAttempts >= ms.maxLaunchAttempts() {
		ms.failWaitingClients()
		ms.launchAttempts = 0
		ms.lastLaunch = time.Time{}
		return
	}

	ms.lastLaunch = now
	ms.launchAttempts++
	if ms.launcher == nil {
		ms.metrics.Launches.WithLabelValues("disabled").Inc()
		return
	}
	if err := ms.launcher.Launch(); err != nil {
		gwlog.Errorf("%s: launch game server failed: %s", ms, err)
		ms.metrics.Launches.WithLabelValues("error").Inc()
		return
	}
	ms.metrics.Launches.WithLabelValues("ok").Inc()
	gwlog.Infof("%s: launching game server (attempt %d/%d, %d running)", ms, ms.launchAttempts, ms.maxLaunchAttempts(), ms.launcher.Running())
}

func (ms *MasterService) failWaitingClients() {
	for {
		conn, ok := ms.dir.PopWaiting()
		if !ok {
			break
		}
		gwlog.Warnf("%s: no game server found for client %d", ms, conn)
		if err := ms.host.Send(conn, ms.host.Channels.Reliable, proto.AnswerNoServersFound()); err != nil {
			gwlog.Warnf("%s", err)
		}
		ms.metrics.Routes.WithLabelValues(routeNotFound).Inc()
	}
	ms.updateGauges()
}

// HandleDisconnect forgets a game server, a queued registration or a client
func (ms *MasterService) HandleDisconnect(conn transport.ConnectionID) {
	ms.host.Forget(conn)
	if gs := ms.dir.RemoveServer(conn); gs != nil {
		gwlog.Infof("%s: %s disconnected", ms, gs)
		ms.ports.Release(gs.Port)
		if next, ok := ms.dir.PopRegistration(); ok {
			port, _ := ms.ports.Allocate()
			ms.registerGameServer(next, port)
		}
	} else if ms.dir.RemoveRegistration(conn) {
		gwlog.Infof("%s: queued game server %d disconnected", ms, conn)
	} else if ms.dir.RemoveClient(conn) {
		gwlog.Debugf("%s: client %d disconnected", ms, conn)
	}
	ms.updateGauges()
}

// Ready is true: the master only needs its listening host
func (ms *MasterService) Ready() bool {
	return true
}

// UpdateSend retries launches for waiting clients once the cooldown passed
func (ms *MasterService) UpdateSend() {
	ms.checkLaunch()
}

func (ms *MasterService) updateGauges() {
	ms.metrics.GameServers.Set(float64(ms.dir.NumServers()))
	ms.metrics.Clients.Set(float64(ms.dir.NumClients()))
	ms.metrics.WaitingClients.Set(float64(ms.dir.NumWaiting()))
	ms.metrics.FreePorts.Set(float64(ms.ports.NumFree()))
}
