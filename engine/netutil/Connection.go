package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is a net.Conn whose writes may be buffered until Flush
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn adapts a plain net.Conn to Connection
type NetConn struct {
	net.Conn
}

// Flush is a no-op, writes of a plain net.Conn are not buffered
func (n NetConn) Flush() error {
	return nil
}

// NewBufferedConnection wraps conn with temporary-error retries and read/write buffers
func NewBufferedConnection(conn net.Conn, readBufferSize, writeBufferSize int) Connection {
	conn = netconnutil.NewNoTempErrorConn(conn)
	var c Connection = NetConn{conn}
	c = netconnutil.NewBufferedConn(c, readBufferSize, writeBufferSize)
	return c
}
