// Package kcpnet is the production transport: KCP sessions over UDP.
//
// KCP is a reliable ARQ protocol, so every channel is delivered reliably and in order;
// unreliable channels simply never lose messages here. Frames are length prefixed inside
// the KCP stream.
package kcpnet

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/netutil"
	"github.com/xiaonanln/fpsworld/engine/transport"
	"github.com/xiaonanln/fpsworld/engine/transport/netbase"
	"github.com/xtaci/kcp-go"
)

const (
	dataShards   = 10
	parityShards = 3
)

// New creates a KCP transport
func New() transport.Transport {
	return netbase.New("kcpnet", kcpNetwork{}, netbase.DefaultOptions())
}

type kcpNetwork struct{}

func (kcpNetwork) Listen(port int) (netbase.Listener, error) {
	l, err := kcp.ListenWithOptions(fmt.Sprintf(":%d", port), nil, dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &listener{l: l}, nil
}

func (kcpNetwork) Dial(ip string, port int) (netbase.Wire, error) {
	sess, err := kcp.DialWithOptions(fmt.Sprintf("%s:%d", ip, port), nil, dataShards, parityShards)
	if err != nil {
		return nil, errors.Wrap(err, "kcp dial")
	}
	return newWire(sess), nil
}

type listener struct {
	l *kcp.Listener
}

func (l *listener) Accept() (netbase.Wire, error) {
	sess, err := l.l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	return newWire(sess), nil
}

func (l *listener) Port() int {
	return netutil.PortOf(l.l.Addr())
}

func (l *listener) Close() error {
	return l.l.Close()
}

type wire struct {
	sess *kcp.UDPSession
	conn netutil.Connection
}

func newWire(sess *kcp.UDPSession) *wire {
	sess.SetReadBuffer(consts.BUFFERED_READ_BUFFSIZE * 4)
	sess.SetWriteBuffer(consts.BUFFERED_WRITE_BUFFSIZE * 4)
	// turbo mode, see https://github.com/skywind3000/kcp/blob/master/README.en.md#protocol-configuration
	sess.SetStreamMode(true)
	sess.SetWriteDelay(true)
	sess.SetNoDelay(1, 10, 2, 1)
	return &wire{
		sess: sess,
		conn: netutil.NewBufferedConnection(sess, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE),
	}
}

func (w *wire) WriteFrame(kind byte, channel byte, payload []byte) error {
	if err := netutil.WriteFrame(w.conn, kind, channel, payload); err != nil {
		return err
	}
	return w.conn.Flush()
}

func (w *wire) ReadFrame() (byte, byte, []byte, error) {
	return netutil.ReadFrame(w.conn, consts.MAX_FRAME_SIZE)
}

func (w *wire) SetReadDeadline(t time.Time) error {
	return w.sess.SetReadDeadline(t)
}

func (w *wire) RemoteAddr() net.Addr {
	return w.sess.RemoteAddr()
}

func (w *wire) Close() error {
	return w.sess.Close()
}
