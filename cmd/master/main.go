// Command master runs the matchmaking process of fpsworld
package main

import (
	"context"
	"flag"
	"time"

	"github.com/xiaonanln/fpsworld/components/master"
	"github.com/xiaonanln/fpsworld/engine/binutil"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"golang.org/x/sync/errgroup"
)

var args struct {
	configFile      string
	logLevel        string
	runInDaemonMode bool
	pidFile         string
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.StringVar(&args.pidFile, "pidfile", "master.pid", "set pid file path in daemon mode")
	flag.Parse()
}

func main() {
	parseArgs()
	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize(args.pidFile)
		defer daemoncontext.Release()
	}
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	cfg := config.GetMaster()
	if args.logLevel != "" {
		cfg.LogLevel = args.logLevel
	}
	binutil.SetupLogConfig("master", &cfg.LogConfig)
	gwlog.Infof("master config: %s", config.DumpPretty(cfg))

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
		return master.Run(ctx, cfg, t, reg)
	})
	if srv != nil {
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		gwlog.Fatalf("master terminated: %s", err)
	}
	gwlog.Infof("master terminated")
}
