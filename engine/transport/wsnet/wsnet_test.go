package wsnet

import (
	"testing"

	"github.com/xiaonanln/fpsworld/engine/transport/transporttest"
)

func TestWebSocketConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the loopback network")
	}
	transporttest.Conformance(t, New(), New(), transporttest.FreePort(t))
}
