// Package client is the player side of the network: it asks the master for a game
// server, joins it under a display name and mirrors the world the server replicates.
// A Bot can drive the avatar for load testing.
package client

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/transport"
)

// Run plays as a bot named cfg.Name until ctx is done or the client is stopped. The bot
// keeps asking the master for a game server while it is not in one. reg may be nil.
func Run(ctx context.Context, cfg *config.ClientConfig, seed int64, t transport.Transport, reg prometheus.Registerer) error {
	cs, err := NewClientService(Options{
		Config:     cfg,
		Transport:  t,
		Registerer: reg,
		AutoJoin:   cfg.Name,
	})
	if err != nil {
		return err
	}
	NewBot(cs, seed)
	if err := cs.Start(); err != nil {
		return err
	}
	defer cs.Close()

	err = cs.Driver().Run(ctx)
	gwlog.Infof("%s: stopped: %v", cs, err)
	return err
}
