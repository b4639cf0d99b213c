package storage

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/async"
	"github.com/xiaonanln/fpsworld/engine/config"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/opmon"
	"github.com/xiaonanln/fpsworld/engine/storage/backend/filesystem"
	"github.com/xiaonanln/fpsworld/engine/storage/backend/redis"
	"github.com/xiaonanln/fpsworld/engine/storage/storage_common"
)

const (
	asyncGroup      = "storage"
	maxSaveAttempts = 3
)

// PlayerStats is the persisted record of one player
type PlayerStats = storagecommon.PlayerStats

// Backend stores PlayerStats by player name
type Backend = storagecommon.Backend

// Opener opens a backend, it is called again after the backend reports EOF
type Opener func() (Backend, error)

// SaveCallbackFunc is the callback type of Save
type SaveCallbackFunc func(err error)

// LoadCallbackFunc is the callback type of Load, stats is nil for unknown players
type LoadCallbackFunc func(stats *PlayerStats, err error)

// ListCallbackFunc is the callback type of List
type ListCallbackFunc func(names []string, err error)

// ErrClosed is returned for operations issued after Close
var ErrClosed = errors.New("storage closed")

// OpenerOf returns the Opener described by cfg
func OpenerOf(cfg *config.StorageConfig) (Opener, error) {
	switch cfg.Type {
	case "filesystem":
		dir := cfg.Directory
		return func() (Backend, error) {
			return statsstoragefilesystem.OpenDirectory(dir)
		}, nil
	case "redis":
		url, db := cfg.Url, cfg.DB
		return func() (Backend, error) {
			return statsstorageredis.OpenRedis(url, db)
		}, nil
	default:
		return nil, errors.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Service runs backend operations on a worker of pool.
// Every callback runs on the goroutine ticking the pool's post queue.
type Service struct {
	pool *async.Pool
	open Opener

	lock    sync.Mutex // guards backend and closed, which the worker touches
	backend Backend
	closed  bool
}

// NewService creates the storage service; the backend is opened lazily on the worker
func NewService(pool *async.Pool, open Opener) *Service {
	return &Service{
		pool: pool,
		open: open,
	}
}

// Open creates a Service for cfg
func Open(pool *async.Pool, cfg *config.StorageConfig) (*Service, error) {
	open, err := OpenerOf(cfg)
	if err != nil {
		return nil, err
	}
	return NewService(pool, open), nil
}

func (s *Service) assureBackendReady() (Backend, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.backend != nil {
		return s.backend, nil
	}
	be, err := s.open()
	if err != nil {
		return nil, errors.Wrap(err, "storage backend is not ready")
	}
	s.backend = be
	return be, nil
}

// checkEOF drops the backend after a broken connection so the next operation reopens it
func (s *Service) checkEOF(be Backend, err error) {
	if err == nil || !be.IsEOF(err) {
		return
	}
	s.lock.Lock()
	if s.backend == be {
		s.backend = nil
	}
	s.lock.Unlock()
	be.Close()
}

// Save writes stats, retrying a few times before giving up
func (s *Service) Save(stats *PlayerStats, callback SaveCallbackFunc) {
	saved := *stats
	s.pool.AppendAsyncJob(asyncGroup, func() (interface{}, error) {
		monop := opmon.StartOperation("storage.save")
		defer monop.Finish(time.Millisecond * 100)
		var err error
		for attempt := 0; attempt < maxSaveAttempts; attempt++ {
			if attempt > 0 {
				time.Sleep(consts.STORAGE_RETRY_INTERVAL)
			}
			if consts.DEBUG_SAVE_LOAD {
				gwlog.Debugf("storage: SAVING %s ...", saved.Name)
			}
			var be Backend
			be, err = s.assureBackendReady()
			if err == ErrClosed {
				return nil, err
			} else if err != nil {
				gwlog.Errorf("storage: %s", err)
				continue
			}
			err = be.Write(&saved)
			if err == nil {
				return nil, nil
			}
			gwlog.Errorf("storage: save %s failed: %s", saved.Name, err)
			s.checkEOF(be, err)
		}
		return nil, err
	}, func(_ interface{}, err error) {
		if callback != nil {
			callback(err)
		}
	})
}

// Merge folds a finished session into the stored record of session.Name and writes it back
func (s *Service) Merge(session *PlayerStats, callback SaveCallbackFunc) {
	merged := *session
	s.pool.AppendAsyncJob(asyncGroup, func() (interface{}, error) {
		monop := opmon.StartOperation("storage.merge")
		defer monop.Finish(time.Millisecond * 200)
		be, err := s.assureBackendReady()
		if err != nil {
			return nil, err
		}
		stored, err := be.Read(merged.Name)
		if err != nil {
			s.checkEOF(be, err)
			return nil, err
		}
		if stored == nil {
			stored = &PlayerStats{Name: merged.Name}
		}
		stored.Merge(&merged)
		err = be.Write(stored)
		s.checkEOF(be, err)
		return nil, err
	}, func(_ interface{}, err error) {
		if err != nil {
			gwlog.Errorf("storage: merge stats of %s failed: %s", merged.Name, err)
		}
		if callback != nil {
			callback(err)
		}
	})
}

// Load reads the stats of name
func (s *Service) Load(name string, callback LoadCallbackFunc) {
	s.pool.AppendAsyncJob(asyncGroup, func() (interface{}, error) {
		if consts.DEBUG_SAVE_LOAD {
			gwlog.Debugf("storage: LOADING %s ...", name)
		}
		monop := opmon.StartOperation("storage.load")
		defer monop.Finish(time.Millisecond * 100)
		be, err := s.assureBackendReady()
		if err != nil {
			return nil, err
		}
		stats, err := be.Read(name)
		s.checkEOF(be, err)
		if err != nil {
			gwlog.TraceError("storage: load %s failed: %s", name, err)
			return nil, err
		}
		return stats, nil
	}, func(res interface{}, err error) {
		if callback == nil {
			return
		}
		stats, _ := res.(*PlayerStats)
		callback(stats, err)
	})
}

// List returns every stored player name
func (s *Service) List(callback ListCallbackFunc) {
	s.pool.AppendAsyncJob(asyncGroup, func() (interface{}, error) {
		monop := opmon.StartOperation("storage.list")
		defer monop.Finish(time.Second)
		be, err := s.assureBackendReady()
		if err != nil {
			return nil, err
		}
		names, err := be.List()
		s.checkEOF(be, err)
		return names, err
	}, func(res interface{}, err error) {
		names, _ := res.([]string)
		callback(names, err)
	})
}

// Close closes the backend after the operations already queued have run
func (s *Service) Close() {
	done := make(chan struct{})
	s.pool.AppendAsyncJob(asyncGroup, func() (interface{}, error) {
		s.lock.Lock()
		s.closed = true
		be := s.backend
		s.backend = nil
		s.lock.Unlock()
		if be != nil {
			be.Close()
		}
		close(done)
		return nil, nil
	}, nil)
	<-done
}
