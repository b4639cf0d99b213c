// Package driver runs the fixed-rate tick loop shared by master, game server and client.
//
// One tick drains every pending transport event, dispatches it, fires due timers and
// posted callbacks, and only then lets the process send its outbound updates.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/gwutils"
	"github.com/xiaonanln/fpsworld/engine/metrics"
	"github.com/xiaonanln/fpsworld/engine/opmon"
	"github.com/xiaonanln/fpsworld/engine/post"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/goTimer"
)

// Phase is the connection phase of a process
type Phase int

const (
	// Idle is before anything was started
	Idle Phase = iota
	// ConnectingMaster waits for the master connection
	ConnectingMaster
	// ConnectedMaster is connected to the master and registering
	ConnectedMaster
	// ConnectingPeer waits for the game server connection (clients)
	ConnectingPeer
	// Accepting listens for peers (master, game server)
	Accepting
	// Active exchanges entity traffic
	Active
	// Terminated means the loop stopped
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case ConnectingMaster:
		return "ConnectingMaster"
	case ConnectedMaster:
		return "ConnectedMaster"
	case ConnectingPeer:
		return "ConnectingPeer"
	case Accepting:
		return "Accepting"
	case Active:
		return "Active"
	case Terminated:
		return "Terminated"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Process is the logic of one process role
type Process interface {
	// HandleEvent handles one connect, data or disconnect event
	HandleEvent(evt transport.Event)
	// Ready reports whether the outbound step should run
	Ready() bool
	// UpdateSend sends this tick's outbound updates
	UpdateSend()
}

const (
	rsRunning = iota
	rsTerminating
	rsTerminated
)

const slowTickThreshold = 10 * time.Millisecond

// Driver drives a Process from the events of a Transport
type Driver struct {
	name     string
	t        transport.Transport
	proc     Process
	queue    *post.Queue
	tickRate int
	metrics  *metrics.Driver

	phase    Phase
	runState xnsyncutil.AtomicInt
	stopErr  error
}

// New creates a driver. queue receives callbacks of async jobs; m may be nil.
func New(name string, t transport.Transport, proc Process, queue *post.Queue, tickRate int, m *metrics.Driver) *Driver {
	if tickRate <= 0 {
		gwlog.Panicf("%s: invalid tick rate %d", name, tickRate)
	}
	return &Driver{
		name:     name,
		t:        t,
		proc:     proc,
		queue:    queue,
		tickRate: tickRate,
		metrics:  m,
	}
}

func (d *Driver) String() string {
	return fmt.Sprintf("Driver<%s %s>", d.name, d.phase)
}

// Phase returns the current phase
func (d *Driver) Phase() Phase {
	return d.phase
}

// SetPhase moves the process to phase p
func (d *Driver) SetPhase(p Phase) {
	if d.phase != p {
		gwlog.Debugf("%s: phase -> %s", d, p)
		d.phase = p
	}
}

// Post queues f to run in the current or next tick, after event handling
func (d *Driver) Post(f func()) {
	d.queue.Post(f)
}

// Stop ends the loop after the current tick; err is what Run returns
func (d *Driver) Stop(err error) {
	if d.runState.Load() != rsRunning {
		return
	}
	d.stopErr = err
	d.runState.Store(rsTerminating)
	if err != nil {
		gwlog.Errorf("%s: stopping: %v", d, err)
	} else {
		gwlog.Infof("%s: stopping", d)
	}
}

// Stopped reports whether Stop was called
func (d *Driver) Stopped() bool {
	return d.runState.Load() != rsRunning
}

// Err returns the error passed to Stop
func (d *Driver) Err() error {
	return d.stopErr
}

// Tick runs one iteration of the loop and returns the number of events drained
func (d *Driver) Tick() int {
	op := opmon.StartOperation(d.name + ".Tick")
	start := time.Now()

	n := 0
	for {
		evt := d.t.Poll()
		if evt.Kind == transport.EventNothing {
			break
		}
		n++
		if d.metrics != nil {
			d.metrics.EventsDrained.WithLabelValues(evt.Kind.String()).Inc()
		}
		gwutils.RunPanicless(func() {
			d.proc.HandleEvent(evt)
		})
	}

	timer.Tick()
	d.queue.Tick()

	if !d.Stopped() && d.proc.Ready() {
		gwutils.RunPanicless(d.proc.UpdateSend)
	}

	if d.metrics != nil {
		d.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
	op.Finish(slowTickThreshold)
	return n
}

// Run ticks at the driver's tick rate until ctx is done or Stop is called.
// It returns ctx.Err() or the error given to Stop.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(d.tickRate))
	defer ticker.Stop()
	gwlog.Infof("%s: running at %d ticks per second", d, d.tickRate)

	for !d.Stopped() {
		select {
		case <-ctx.Done():
			d.Stop(nil)
			d.finish()
			return ctx.Err()
		case <-ticker.C:
			d.Tick()
		}
	}
	d.finish()
	return d.stopErr
}

func (d *Driver) finish() {
	d.queue.Tick() // run callbacks posted by the last tick
	d.SetPhase(Terminated)
	d.runState.Store(rsTerminated)
}
