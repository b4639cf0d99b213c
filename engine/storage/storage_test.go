package storage

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/async"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/post"
)

func newTestService(t *testing.T) (*Service, *post.Queue, *async.Pool) {
	q := post.NewQueue()
	pool := async.NewPool(q)
	s, err := Open(pool, &config.StorageConfig{Type: "filesystem", Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return s, q, pool
}

func TestSaveThenLoad(t *testing.T) {
	s, q, pool := newTestService(t)
	defer pool.Shutdown()

	var saveErr = errors.New("not called")
	var loaded *PlayerStats
	var missing = &PlayerStats{}
	s.Save(&PlayerStats{Name: "Bob123", BestSpeed: 17}, func(err error) {
		saveErr = err
	})
	s.Load("Bob123", func(stats *PlayerStats, err error) {
		assert.Equal(t, nil, err)
		loaded = stats
	})
	s.Load("nobody", func(stats *PlayerStats, err error) {
		missing = stats
	})
	var names []string
	s.List(func(ns []string, err error) {
		names = ns
	})
	s.Close()

	assert.T(t, loaded == nil) // callbacks wait for the post queue
	q.Tick()
	assert.Equal(t, nil, saveErr)
	assert.Equal(t, float32(17), loaded.BestSpeed)
	assert.T(t, missing == nil)
	assert.Equal(t, []string{"Bob123"}, names)
}

func TestMergeSessions(t *testing.T) {
	s, q, pool := newTestService(t)
	defer pool.Shutdown()

	s.Merge(&PlayerStats{Name: "Bob123", BestSpeed: 10, Games: 1, Deaths: 2}, nil)
	s.Merge(&PlayerStats{Name: "Bob123", BestSpeed: 8, Games: 1, Deaths: 1}, nil)
	var loaded *PlayerStats
	s.Load("Bob123", func(stats *PlayerStats, err error) {
		loaded = stats
	})
	s.Close()
	q.Tick()
	assert.Equal(t, float32(10), loaded.BestSpeed)
	assert.Equal(t, 2, loaded.Games)
	assert.Equal(t, 3, loaded.Deaths)
}

func TestOperationsAfterClose(t *testing.T) {
	s, q, pool := newTestService(t)
	defer pool.Shutdown()
	s.Close()

	var loadErr error
	s.Load("Bob123", func(stats *PlayerStats, err error) {
		loadErr = err
	})
	var saveErr error
	s.Save(&PlayerStats{Name: "Bob123"}, func(err error) {
		saveErr = err
	})
	pool.Shutdown()
	q.Tick()
	assert.Equal(t, ErrClosed, errors.Cause(loadErr))
	assert.Equal(t, ErrClosed, saveErr)
}

func TestUnknownStorageType(t *testing.T) {
	_, err := OpenerOf(&config.StorageConfig{Type: "mongodb"})
	assert.NotEqual(t, nil, err)
}

func TestMerge(t *testing.T) {
	ps := &PlayerStats{Name: "Bob123", BestSpeed: 20, Games: 3, LastSeen: 10}
	ps.Merge(&PlayerStats{BestSpeed: 15, Games: 1, Deaths: 2, LastSeen: 20})
	assert.Equal(t, float32(20), ps.BestSpeed)
	assert.Equal(t, 4, ps.Games)
	assert.Equal(t, 2, ps.Deaths)
	assert.Equal(t, int64(20), ps.LastSeen)
}
