package metrics

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsWithoutRegistry(t *testing.T) {
	m := NewMaster(nil)
	m.Launches.WithLabelValues("ok").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Launches.WithLabelValues("ok")))

	g := NewGame(nil)
	g.Players.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(g.Players))
}

func TestRegistryExposesComponents(t *testing.T) {
	reg := NewRegistry()
	NewDriver(reg, "master").EventsDrained.WithLabelValues("connect").Inc()
	NewDriver(reg, "gameserver")
	r := NewRPC(reg)
	r.Calls.WithLabelValues("TryInteract", RPCAccepted).Inc()

	n, err := testutil.GatherAndCount(reg, "fpsworld_driver_events_total", "fpsworld_rpc_calls_total")
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, n)

	families, err := reg.Gather()
	assert.Equal(t, nil, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.T(t, names["go_goroutines"], "go collector missing")
	assert.T(t, names["fpsworld_driver_tick_duration_seconds"], "driver histogram missing")
}
