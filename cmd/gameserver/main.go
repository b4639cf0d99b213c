// Command gameserver runs one authoritative game server of fpsworld. The master launches
// it on demand; it registers with the master and serves on the port it is given.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/components/game"
	"github.com/xiaonanln/fpsworld/engine/binutil"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"golang.org/x/sync/errgroup"
)

var args struct {
	configFile string
	logLevel   string
	noStats    bool
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.noStats, "nostats", false, "run without player statistics storage")
	flag.Parse()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	cfg := config.GetGameServer()
	if args.logLevel != "" {
		cfg.LogLevel = args.logLevel
	}
	binutil.SetupLogConfig("gameserver", &cfg.LogConfig)
	gwlog.Infof("game server config: %s", config.DumpPretty(cfg))

	storageCfg := config.GetStorage()
	if args.noStats {
		storageCfg = nil
	}

	t, err := binutil.NewTransport(cfg.Transport)
	if err != nil {
		gwlog.Fatalf("%s", err)
	}
	defer t.Close()

	reg := metrics.NewRegistry()
	ctx, cancel := binutil.SignalContext(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	srv := binutil.SetupHTTPServer(cfg.HTTPIp, cfg.HTTPPort, reg)
	g.Go(func() error {
		defer cancel()
		return game.Run(ctx, cfg, storageCfg, t, reg)
	})
	if srv != nil {
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	err = g.Wait()
	switch {
	case err == nil, err == context.Canceled, errors.Cause(err) == game.ErrIdleShutdown:
		gwlog.Infof("game server terminated: %v", err)
	default:
		gwlog.Fatalf("game server terminated: %s", err)
	}
}
