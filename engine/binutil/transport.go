package binutil

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/transport/kcpnet"
	"github.com/xiaonanln/fpsworld/engine/transport/wsnet"
)

// NewTransport creates the transport named in config: kcp or ws
func NewTransport(name string) (transport.Transport, error) {
	switch name {
	case "kcp", "":
		return kcpnet.New(), nil
	case "ws", "websocket":
		return wsnet.New(), nil
	}
	return nil, errors.Errorf("unknown transport: %s", name)
}
