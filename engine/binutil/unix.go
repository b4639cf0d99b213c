//go:build !windows
// +build !windows

package binutil

import (
	"os"

	"github.com/sevlyar/go-daemon"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

// Daemonize re-runs the process in background; the parent exits.
// pidFile may be empty.
func Daemonize(pidFile string) Releaser {
	dctx := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
		Umask:       027,
	}
	child, err := dctx.Reborn()
	if err != nil {
		gwlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		gwlog.Infof("run in daemon mode, pid = %d", child.Pid)
		os.Exit(0)
	}
	return dctx
}
