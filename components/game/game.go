// Package game is the authoritative game server. It registers with the master, accepts
// players on the port it was given, spawns their avatars and replicates every entity
// change to the connected players.
package game

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xiaonanln/fpsworld/engine/async"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/post"
	"github.com/xiaonanln/fpsworld/engine/storage"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/world"
)

// Run serves as a game server on t until ctx is done, the master goes away or the server
// stays idle. storageCfg may be nil to run without player statistics; reg may be nil.
func Run(ctx context.Context, cfg *config.GameServerConfig, storageCfg *config.StorageConfig, t transport.Transport, reg prometheus.Registerer) error {
	layout := world.Default()
	if cfg.WorldFile != "" {
		var err error
		if layout, err = world.Load(cfg.WorldFile); err != nil {
			return err
		}
	}

	queue := post.NewQueue()
	pool := async.NewPool(queue)
	defer pool.Shutdown()

	var stats *storage.Service
	if storageCfg != nil {
		var err error
		if stats, err = storage.Open(pool, storageCfg); err != nil {
			return err
		}
		defer stats.Close()
	}

	gs, err := NewGameService(Options{
		Config:     cfg,
		Transport:  t,
		Layout:     layout,
		Stats:      stats,
		Queue:      queue,
		Registerer: reg,
	})
	if err != nil {
		return err
	}
	if err := gs.Start(); err != nil {
		return err
	}
	defer gs.Close()

	err = gs.Driver().Run(ctx)
	gwlog.Infof("%s: stopped: %v", gs, err)
	return err
}
