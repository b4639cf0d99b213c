package master

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/fpsworld/engine/async"
	"github.com/xiaonanln/fpsworld/engine/post"
)

func TestLaunchWithoutBinary(t *testing.T) {
	l := NewExecLauncher("", nil, async.NewPool(post.NewQueue()))
	assert.Equal(t, ErrNoBinary, l.Launch())
	assert.Equal(t, 0, l.Running())
}

func TestLaunchFailureIsNotRecorded(t *testing.T) {
	q := post.NewQueue()
	pool := async.NewPool(q)
	l := NewExecLauncher("/nonexistent/fpsworld-gameserver", nil, pool)
	assert.Equal(t, nil, l.Launch())
	pool.Shutdown()
	q.Tick()
	assert.Equal(t, 0, len(l.Pids()))
}

func TestRunningPrunesExited(t *testing.T) {
	l := NewExecLauncher("gameserver", nil, async.NewPool(post.NewQueue()))
	l.instances[100] = "a"
	l.instances[200] = "b"
	l.alive = func(pid int32) (bool, error) {
		return pid == 200, nil
	}
	assert.Equal(t, 1, l.Running())
	assert.Equal(t, []int32{200}, l.Pids())
}
