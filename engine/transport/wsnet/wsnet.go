// Package wsnet carries the protocol over WebSocket binary messages, for browser clients.
// A listening host serves the upgrade on /ws.
package wsnet

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/netutil"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/transport/netbase"
)

// Path is the http path of the websocket endpoint
const Path = "/ws"

// New creates a websocket transport
func New() transport.Transport {
	return netbase.New("wsnet", wsNetwork{}, netbase.DefaultOptions())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  consts.BUFFERED_READ_BUFFSIZE,
	WriteBufferSize: consts.BUFFERED_WRITE_BUFFSIZE,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsNetwork struct{}

func (wsNetwork) Listen(port int) (netbase.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	l := &listener{
		ln:       ln,
		accepted: make(chan netbase.Wire, 64),
		done:     make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.serveWS)
	l.server = &http.Server{Handler: mux}
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			gwlog.Errorf("wsnet: http server on %s stopped: %v", ln.Addr(), err)
		}
	}()
	return l, nil
}

func (wsNetwork) Dial(ip string, port int) (netbase.Wire, error) {
	url := fmt.Sprintf("ws://%s:%d%s", ip, port, Path)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return newWire(ws), nil
}

type listener struct {
	ln        net.Listener
	server    *http.Server
	accepted  chan netbase.Wire
	done      chan struct{}
	closeOnce sync.Once
}

func (l *listener) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gwlog.Warnf("wsnet: upgrade %s failed: %v", r.RemoteAddr, err)
		return
	}
	select {
	case l.accepted <- newWire(ws):
	case <-l.done:
		ws.Close()
	}
}

func (l *listener) Accept() (netbase.Wire, error) {
	select {
	case w := <-l.accepted:
		return w, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Port() int {
	return netutil.PortOf(l.ln.Addr())
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}

type wire struct {
	ws *websocket.Conn
}

func newWire(ws *websocket.Conn) *wire {
	ws.SetReadLimit(consts.MAX_FRAME_SIZE + 2)
	return &wire{ws: ws}
}

func (w *wire) WriteFrame(kind byte, channel byte, payload []byte) error {
	msg := make([]byte, 2+len(payload))
	msg[0], msg[1] = kind, channel
	copy(msg[2:], payload)
	return w.ws.WriteMessage(websocket.BinaryMessage, msg)
}

func (w *wire) ReadFrame() (byte, byte, []byte, error) {
	for {
		mt, msg, err := w.ws.ReadMessage()
		if err != nil {
			return 0, 0, nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if len(msg) < 2 {
			return 0, 0, nil, errors.Errorf("short websocket frame of %d bytes", len(msg))
		}
		return msg[0], msg[1], msg[2:], nil
	}
}

func (w *wire) SetReadDeadline(t time.Time) error {
	return w.ws.SetReadDeadline(t)
}

func (w *wire) RemoteAddr() net.Addr {
	return w.ws.RemoteAddr()
}

func (w *wire) Close() error {
	return w.ws.Close()
}
