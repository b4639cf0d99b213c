package opmon

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/prometheus/client_golang/prometheus"
)

func TestOperationIsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg) // second registration is tolerated

	before := Count(reg, "test.op")
	op := StartOperation("test.op")
	op.Finish(time.Hour)
	StartOperation("test.op").Finish(0)

	assert.Equal(t, before+2, Count(reg, "test.op"))
	assert.Equal(t, uint64(0), Count(reg, "test.other"))
}

func TestCountWithoutRegistration(t *testing.T) {
	StartOperation("test.unregistered").Finish(time.Hour)
	assert.Equal(t, uint64(0), Count(prometheus.NewRegistry(), "test.unregistered"))
}
