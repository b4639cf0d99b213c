// Command botclient runs a number of bot players against a master, for load testing
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xiaonanln/fpsworld/components/client"
	"github.com/xiaonanln/fpsworld/engine/binutil"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"golang.org/x/sync/errgroup"
)

var args struct {
	configFile string
	logLevel   string
	numBots    int
	seed       int64
	duration   time.Duration
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.IntVar(&args.numBots, "N", 1, "number of bots")
	flag.Int64Var(&args.seed, "seed", 0, "random seed of the first bot, 0 for the current time")
	flag.DurationVar(&args.duration, "t", 0, "stop after this long, 0 to run until interrupted")
	flag.Parse()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	cfg := config.GetClient()
	if args.logLevel != "" {
		cfg.LogLevel = args.logLevel
	}
	binutil.SetupLogConfig("botclient", &cfg.LogConfig)
	if args.seed == 0 {
		args.seed = time.Now().UnixNano()
	}

	reg := metrics.NewRegistry()
	ctx, cancel := binutil.SignalContext(context.Background())
	defer cancel()
	if args.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, args.duration)
		defer cancel()
	}
	binutil.SetupHTTPServer(cfg.HTTPIp, cfg.HTTPPort, reg)

	var g errgroup.Group
	for i := 0; i < args.numBots; i++ {
		botCfg := *cfg
		if args.numBots > 1 {
			botCfg.Name = fmt.Sprintf("%s%d", cfg.Name, i+1)
		}
		seed := args.seed + int64(i)
		g.Go(func() error {
			t, err := binutil.NewTransport(botCfg.Transport)
			if err != nil {
				return err
			}
			defer t.Close()
			// bots share the registry, so only the first one registers its collectors
			var botReg prometheus.Registerer
			if seed == args.seed {
				botReg = reg
			}
			err = client.Run(ctx, &botCfg, seed, t, botReg)
			if err == context.Canceled || err == context.DeadlineExceeded {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		gwlog.Errorf("bot client terminated: %s", err)
		return
	}
	gwlog.Infof("bot client terminated")
}
