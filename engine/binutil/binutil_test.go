package binutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/fpsworld/engine/metrics"
)

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry()
	m := metrics.NewMaster(reg)
	m.Launches.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	NewHTTPMux(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.T(t, strings.Contains(rec.Body.String(), "fpsworld_master_launches_total"))
}

func TestHTTPServerDisabled(t *testing.T) {
	assert.T(t, SetupHTTPServer("127.0.0.1", 0, nil) == nil)
}

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport("kcp")
	assert.Equal(t, nil, err)
	assert.T(t, tr != nil)
	tr.Close()

	_, err = NewTransport("carrier-pigeon")
	assert.NotEqual(t, nil, err)
}
