package async

import (
	"sync"

	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/gwutils"
	"github.com/xiaonanln/fpsworld/engine/post"
)

// AsyncCallback receives the result of an AsyncRoutine on the tick goroutine
type AsyncCallback func(res interface{}, err error)

// AsyncRoutine runs on a worker goroutine
type AsyncRoutine func() (res interface{}, err error)

type asyncJobItem struct {
	routine  AsyncRoutine
	callback AsyncCallback
}

// AsyncJobWorker runs the jobs of one group in order
type AsyncJobWorker struct {
	jobQueue chan asyncJobItem
}

// Pool owns the job workers of one process, keyed by group name.
// Callbacks are posted to the pool's post.Queue.
type Pool struct {
	queue *post.Queue

	lock    sync.RWMutex
	workers map[string]*AsyncJobWorker
	running sync.WaitGroup
}

// NewPool creates a pool whose callbacks go to queue
func NewPool(queue *post.Queue) *Pool {
	return &Pool{
		queue:   queue,
		workers: map[string]*AsyncJobWorker{},
	}
}

func (p *Pool) newAsyncJobWorker() *AsyncJobWorker {
	ajw := &AsyncJobWorker{
		jobQueue: make(chan asyncJobItem, consts.ASYNC_JOB_QUEUE_MAXLEN),
	}
	p.running.Add(1)
	go p.loop(ajw)
	return ajw
}

func (p *Pool) loop(ajw *AsyncJobWorker) {
	defer p.running.Done()
	for item := range ajw.jobQueue {
		item := item
		var res interface{}
		var err error
		if gwutils.RunPanicless(func() {
			res, err = item.routine()
		}) {
			continue
		}
		if item.callback != nil {
			p.queue.Post(func() {
				item.callback(res, err)
			})
		}
	}
}

func (p *Pool) getAsyncJobWorker(group string) (ajw *AsyncJobWorker) {
	p.lock.RLock()
	ajw = p.workers[group]
	p.lock.RUnlock()

	if ajw == nil {
		p.lock.Lock()
		ajw = p.workers[group]
		if ajw == nil {
			ajw = p.newAsyncJobWorker()
			p.workers[group] = ajw
		}
		p.lock.Unlock()
	}
	return
}

// AppendAsyncJob queues routine on the worker of group; jobs of the same group run in order
func (p *Pool) AppendAsyncJob(group string, routine AsyncRoutine, callback AsyncCallback) {
	ajw := p.getAsyncJobWorker(group)
	if len(ajw.jobQueue) >= consts.ASYNC_JOB_QUEUE_MAXLEN/2 {
		gwlog.Warnf("async: job queue of group %s is filling up: %d", group, len(ajw.jobQueue))
	}
	ajw.jobQueue <- asyncJobItem{routine, callback}
}

// Shutdown closes all job queues and waits for pending jobs to finish
func (p *Pool) Shutdown() {
	p.lock.Lock()
	for _, ajw := range p.workers {
		close(ajw.jobQueue)
	}
	p.workers = map[string]*AsyncJobWorker{}
	p.lock.Unlock()

	p.running.Wait()
}
