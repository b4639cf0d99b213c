package async

import (
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/fpsworld/engine/post"
)

func TestNewAsyncJob(t *testing.T) {
	q := post.NewQueue()
	pool := NewPool(q)
	var wait sync.WaitGroup
	wait.Add(1)
	var got interface{}
	pool.AppendAsyncJob("1", func() (res interface{}, err error) {
		defer wait.Done()
		return 1, nil
	}, func(res interface{}, err error) {
		got = res
	})
	wait.Wait()
	pool.Shutdown()

	assert.Equal(t, nil, got) // callback not run until the queue ticks
	q.Tick()
	assert.Equal(t, 1, got)
}

func TestJobsOfOneGroupRunInOrder(t *testing.T) {
	q := post.NewQueue()
	pool := NewPool(q)
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		pool.AppendAsyncJob("ordered", func() (interface{}, error) {
			time.Sleep(time.Millisecond)
			return i, nil
		}, func(res interface{}, err error) {
			order = append(order, res.(int))
		})
	}
	pool.Shutdown()
	q.Tick()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestPanickingJobDoesNotKillWorker(t *testing.T) {
	q := post.NewQueue()
	pool := NewPool(q)
	called := false
	pool.AppendAsyncJob("g", func() (interface{}, error) {
		panic("bad job")
	}, func(res interface{}, err error) {
		t.Errorf("callback of a panicking job should not run")
	})
	pool.AppendAsyncJob("g", func() (interface{}, error) {
		return nil, nil
	}, func(res interface{}, err error) {
		called = true
	})
	pool.Shutdown()
	q.Tick()
	assert.T(t, called, "second job should have completed")
}
