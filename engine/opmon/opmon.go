package opmon

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

var (
	operationAllocPool = sync.Pool{
		New: func() interface{} {
			return &Operation{}
		},
	}

	operationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fpsworld",
		Subsystem: "opmon",
		Name:      "operation_seconds",
		Help:      "Duration of monitored operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"operation"})
)

// Register exposes the operation histogram on reg
func Register(reg prometheus.Registerer) {
	if err := reg.Register(operationSeconds); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			gwlog.Errorf("opmon: register failed: %v", err)
		}
	}
}

// Operation is the type of operation to be monitored
type Operation struct {
	name      string
	startTime time.Time
}

// StartOperation creates a new operation
func StartOperation(operationName string) *Operation {
	op := operationAllocPool.Get().(*Operation)
	op.name = operationName
	op.startTime = time.Now()
	return op
}

// Finish records the duration of the operation and warns if it took warnThreshold or longer
func (op *Operation) Finish(warnThreshold time.Duration) {
	takeTime := time.Since(op.startTime)
	operationSeconds.WithLabelValues(op.name).Observe(takeTime.Seconds())
	if takeTime >= warnThreshold {
		gwlog.Warnf("opmon: operation %s takes %s > %s", op.name, takeTime, warnThreshold)
	}
	operationAllocPool.Put(op)
}

// Count returns how many operations named name have finished
func Count(reg prometheus.Gatherer, name string) uint64 {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != "fpsworld_opmon_operation_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "operation" && lp.GetValue() == name {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}
