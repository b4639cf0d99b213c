//go:build windows
// +build windows

package binutil

import "github.com/xiaonanln/fpsworld/engine/gwlog"

// Daemonize is not supported on windows
func Daemonize(pidFile string) Releaser {
	gwlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopReleaser{}
}
