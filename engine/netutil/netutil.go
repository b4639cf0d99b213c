package netutil

import (
	"encoding/binary"
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
	"github.com/xiaonanln/fpsworld/engine/gwutils"
)

// NETWORK_ENDIAN is the byte order of frame headers
var NETWORK_ENDIAN = binary.LittleEndian

// IsConnectionError check if the error is a connection error (close)
func IsConnectionError(_err interface{}) bool {
	err, ok := _err.(error)
	if !ok {
		return false
	}

	err = errors.Cause(err)
	if err == io.EOF || err == io.ErrUnexpectedEOF || err == net.ErrClosed {
		return true
	}

	neterr, ok := err.(net.Error)
	if !ok {
		return strings.Contains(err.Error(), "closed")
	}
	if neterr.Timeout() {
		return false
	}

	return true
}

// IsTimeoutError checks if the error is a net timeout
func IsTimeoutError(err error) bool {
	neterr, ok := errors.Cause(err).(net.Error)
	return ok && neterr.Timeout()
}

// ServeForever runs f, restarting it whenever it panics, until it returns normally
func ServeForever(name string, f func()) {
	restarted := false
	gwutils.RepeatUntilPanicless(func() {
		if restarted {
			gwlog.Warnf("ServeForever: %s paniced, restarting", name)
		}
		restarted = true
		f()
	})
}

// PortOf extracts the port of a net.Addr, or 0
func PortOf(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.Port
	case *net.TCPAddr:
		return a.Port
	}
	return 0
}

// IPOf extracts the ip of a net.Addr, or ""
func IPOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case *net.TCPAddr:
		return a.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host
}
