// Package master is the matchmaking process: it allocates ports to game servers, tracks
// their population and routes clients to the fullest server that still has room.
package master

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xiaonanln/fpsworld/engine/async"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/driver"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"github.com/xiaonanln/fpsworld/engine/post"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

// Run serves as the master on t until ctx is done. reg may be nil.
func Run(ctx context.Context, cfg *config.MasterConfig, t transport.Transport, reg prometheus.Registerer) error {
	queue := post.NewQueue()
	pool := async.NewPool(queue)
	defer pool.Shutdown()

	launcher := NewExecLauncher(cfg.GameServerBinary, cfg.GameServerArgs, pool)
	ms, err := NewMasterService(cfg, t, launcher, metrics.NewMaster(reg))
	if err != nil {
		return err
	}
	defer ms.Close()

	d := driver.New("master", t, ms, queue, consts.TICK_RATE, metrics.NewDriver(reg, "master"))
	d.SetPhase(driver.Accepting)
	return d.Run(ctx)
}
