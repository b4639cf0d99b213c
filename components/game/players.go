package game

import (
	"fmt"
	"sort"
	"time"

	"github.com/xiaonanln/fpsworld/engine/common"
	"github.com/xiaonanln/fpsworld/engine/storage"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

// Player is a connected client with a spawned avatar
type Player struct {
	Name      string
	Conn      transport.ConnectionID
	EntityID  common.EntityID
	BestSpeed float32 // best speed on record, including previous sessions
	Deaths    int     // deaths in this session
	JoinedAt  time.Time
	Stored    *storage.PlayerStats // nil until loaded, or for new players
}

func (p *Player) String() string {
	return fmt.Sprintf("Player<%s#%d E%d>", p.Name, p.Conn, p.EntityID)
}

// Players is the player directory of a game server, keyed by connection id
type Players struct {
	byConn map[transport.ConnectionID]*Player
}

// NewPlayers creates an empty directory
func NewPlayers() *Players {
	return &Players{byConn: map[transport.ConnectionID]*Player{}}
}

// Add registers p; an existing player on the same connection is replaced
func (ps *Players) Add(p *Player) {
	ps.byConn[p.Conn] = p
}

// Get returns the player on conn, or nil
func (ps *Players) Get(conn transport.ConnectionID) *Player {
	return ps.byConn[conn]
}

// Remove unregisters the player on conn and returns it, or nil
func (ps *Players) Remove(conn transport.ConnectionID) *Player {
	p := ps.byConn[conn]
	delete(ps.byConn, conn)
	return p
}

// Len returns the population
func (ps *Players) Len() int {
	return len(ps.byConn)
}

// Conns returns the connections of all players in ascending order
func (ps *Players) Conns() []transport.ConnectionID {
	conns := make([]transport.ConnectionID, 0, len(ps.byConn))
	for conn := range ps.byConn {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i] < conns[j] })
	return conns
}

// ByEntity returns the player bound to entity id, or nil
func (ps *Players) ByEntity(id common.EntityID) *Player {
	for _, p := range ps.byConn {
		if p.EntityID == id {
			return p
		}
	}
	return nil
}
