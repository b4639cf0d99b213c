package master

import (
	"fmt"
	"sort"

	"github.com/xiaonanln/fpsworld/engine/transport"
)

// GameServerInfo is a registered game server
type GameServerInfo struct {
	Conn       transport.ConnectionID
	IP         string
	Port       int
	Population int
	Reserved   int  // routed clients the population reports have not shown yet
	Ready      bool // set by the first Data_GameServerInfo
}

func (gs *GameServerInfo) String() string {
	return fmt.Sprintf("GameServer<%d %s:%d pop=%d+%d>", gs.Conn, gs.IP, gs.Port, gs.Population, gs.Reserved)
}

// Load is the population including reservations
func (gs *GameServerInfo) Load() int {
	return gs.Population + gs.Reserved
}

// ClientInfo is a registered client
type ClientInfo struct {
	Conn   transport.ConnectionID
	Routed int // answered requests, more than one means the client came back
}

// Directory holds game servers, clients, waiting clients and queued registrations of the master
type Directory struct {
	servers map[transport.ConnectionID]*GameServerInfo
	clients map[transport.ConnectionID]*ClientInfo
	waiting []transport.ConnectionID
	pending []transport.ConnectionID
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		servers: map[transport.ConnectionID]*GameServerInfo{},
		clients: map[transport.ConnectionID]*ClientInfo{},
	}
}

func (d *Directory) String() string {
	return fmt.Sprintf("Directory<S%d|C%d|W%d|P%d>", len(d.servers), len(d.clients), len(d.waiting), len(d.pending))
}

// AddServer records a game server that got a port
func (d *Directory) AddServer(gs *GameServerInfo) {
	d.servers[gs.Conn] = gs
}

// Server returns the game server on conn, or nil
func (d *Directory) Server(conn transport.ConnectionID) *GameServerInfo {
	return d.servers[conn]
}

// RemoveServer drops the game server on conn and returns it, or nil
func (d *Directory) RemoveServer(conn transport.ConnectionID) *GameServerInfo {
	gs := d.servers[conn]
	delete(d.servers, conn)
	return gs
}

// Servers returns game servers in ascending port order
func (d *Directory) Servers() []*GameServerInfo {
	list := make([]*GameServerInfo, 0, len(d.servers))
	for _, gs := range d.servers {
		list = append(list, gs)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Port < list[j].Port })
	return list
}

// NumServers returns the number of registered game servers
func (d *Directory) NumServers() int {
	return len(d.servers)
}

// AddClient records a client that passed the version check
func (d *Directory) AddClient(conn transport.ConnectionID) *ClientInfo {
	ci := &ClientInfo{Conn: conn}
	d.clients[conn] = ci
	return ci
}

// Client returns the client on conn, or nil
func (d *Directory) Client(conn transport.ConnectionID) *ClientInfo {
	return d.clients[conn]
}

// RemoveClient drops the client on conn from clients and the waiting queue
func (d *Directory) RemoveClient(conn transport.ConnectionID) bool {
	if _, ok := d.clients[conn]; !ok {
		return false
	}
	delete(d.clients, conn)
	d.waiting = remove(d.waiting, conn)
	return true
}

// NumClients returns the number of registered clients
func (d *Directory) NumClients() int {
	return len(d.clients)
}

// Wait queues a client for a route; it is queued at most once
func (d *Directory) Wait(conn transport.ConnectionID) {
	if !d.IsWaiting(conn) {
		d.waiting = append(d.waiting, conn)
	}
}

// IsWaiting reports whether conn waits for a route
func (d *Directory) IsWaiting(conn transport.ConnectionID) bool {
	return indexOf(d.waiting, conn) >= 0
}

// PeekWaiting returns the longest waiting client
func (d *Directory) PeekWaiting() (transport.ConnectionID, bool) {
	if len(d.waiting) == 0 {
		return transport.NoConnection, false
	}
	return d.waiting[0], true
}

// PopWaiting removes the longest waiting client
func (d *Directory) PopWaiting() (transport.ConnectionID, bool) {
	conn, ok := d.PeekWaiting()
	if ok {
		d.waiting = d.waiting[1:]
	}
	return conn, ok
}

// NumWaiting returns the number of clients waiting for a route
func (d *Directory) NumWaiting() int {
	return len(d.waiting)
}

// QueueRegistration queues a game server that could not get a port
func (d *Directory) QueueRegistration(conn transport.ConnectionID) {
	if indexOf(d.pending, conn) < 0 {
		d.pending = append(d.pending, conn)
	}
}

// PopRegistration removes the oldest queued registration
func (d *Directory) PopRegistration() (transport.ConnectionID, bool) {
	if len(d.pending) == 0 {
		return transport.NoConnection, false
	}
	conn := d.pending[0]
	d.pending = d.pending[1:]
	return conn, true
}

// RemoveRegistration drops a queued registration
func (d *Directory) RemoveRegistration(conn transport.ConnectionID) bool {
	n := len(d.pending)
	d.pending = remove(d.pending, conn)
	return len(d.pending) != n
}

// NumPending returns the number of queued registrations
func (d *Directory) NumPending() int {
	return len(d.pending)
}

func indexOf(conns []transport.ConnectionID, conn transport.ConnectionID) int {
	for i, c := range conns {
		if c == conn {
			return i
		}
	}
	return -1
}

func remove(conns []transport.ConnectionID, conn transport.ConnectionID) []transport.ConnectionID {
	if i := indexOf(conns, conn); i >= 0 {
		return append(conns[:i:i], conns[i+1:]...)
	}
	return conns
}
