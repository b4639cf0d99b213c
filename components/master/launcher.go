package master

import (
	"os"
	"os/exec"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
	"github.com/xiaonanln/fpsworld/engine/async"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

// InstanceEnv is the environment variable carrying the instance tag of a launched game server
const InstanceEnv = "FPSWORLD_INSTANCE"

const launcherAsyncGroup = "launcher"

// ErrNoBinary is returned when no game server binary is configured
var ErrNoBinary = errors.New("game server binary not configured")

// Launcher starts game server processes without waiting for them
type Launcher interface {
	// Launch starts one game server in background
	Launch() error
	// Running returns the number of launched processes still alive
	Running() int
}

// ExecLauncher launches the configured game server binary with os/exec
type ExecLauncher struct {
	binary string
	args   []string
	pool   *async.Pool

	instances map[int32]string // pid -> instance tag, touched only by pool callbacks and the tick loop
	alive     func(pid int32) (bool, error)
}

// NewExecLauncher creates a launcher running binary args... on a worker of pool
func NewExecLauncher(binary string, args []string, pool *async.Pool) *ExecLauncher {
	return &ExecLauncher{
		binary:    binary,
		args:      args,
		pool:      pool,
		instances: map[int32]string{},
		alive:     process.PidExists,
	}
}

// Launch starts the binary in background; the pid is recorded once the start completed
func (l *ExecLauncher) Launch() error {
	if l.binary == "" {
		return ErrNoBinary
	}
	tag := uuid.New().String()
	binary, args := l.binary, l.args
	l.pool.AppendAsyncJob(launcherAsyncGroup, func() (interface{}, error) {
		cmd := exec.Command(binary, args...)
		cmd.Env = append(os.Environ(), InstanceEnv+"="+tag)
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrapf(err, "start %s", binary)
		}
		go cmd.Wait() // reap
		return int32(cmd.Process.Pid), nil
	}, func(res interface{}, err error) {
		if err != nil {
			gwlog.Errorf("launcher: %s", err)
			return
		}
		pid := res.(int32)
		l.instances[pid] = tag
		gwlog.Infof("launcher: game server %s started, pid = %d", tag, pid)
	})
	return nil
}

// Running prunes exited processes and returns the number still alive
func (l *ExecLauncher) Running() int {
	for pid, tag := range l.instances {
		alive, err := l.alive(pid)
		if err != nil {
			gwlog.Warnf("launcher: check pid %d: %s", pid, err)
			continue
		}
		if !alive {
			gwlog.Infof("launcher: game server %s (pid %d) exited", tag, pid)
			delete(l.instances, pid)
		}
	}
	return len(l.instances)
}

// Pids returns the pids of launched processes in ascending order
func (l *ExecLauncher) Pids() []int32 {
	pids := make([]int32, 0, len(l.instances))
	for pid := range l.instances {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}
