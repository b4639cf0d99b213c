package storagecommon

// PlayerStats is the persisted record of one player name
type PlayerStats struct {
	Name      string  `msgpack:"name"`
	BestSpeed float32 `msgpack:"best_speed"`
	Games     int     `msgpack:"games"`
	Deaths    int     `msgpack:"deaths"`
	LastSeen  int64   `msgpack:"last_seen"`
}

// Merge folds a finished session into the stored record
func (ps *PlayerStats) Merge(session *PlayerStats) {
	if session.BestSpeed > ps.BestSpeed {
		ps.BestSpeed = session.BestSpeed
	}
	ps.Games += session.Games
	ps.Deaths += session.Deaths
	if session.LastSeen > ps.LastSeen {
		ps.LastSeen = session.LastSeen
	}
}

// Backend is the interface of player stats backends
//
// Read returns nil, nil if the name was never written.
type Backend interface {
	Read(name string) (*PlayerStats, error)
	Write(stats *PlayerStats) error
	List() ([]string, error)
	Close()
	IsEOF(err error) bool
}
