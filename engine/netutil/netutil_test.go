package netutil

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, nil, WriteFrame(&buf, 2, 3, []byte("Data_EntityDestroy|7")))
	assert.Equal(t, nil, WriteFrame(&buf, 4, 0, nil))

	kind, ch, payload, err := ReadFrame(&buf, 1024)
	assert.Equal(t, nil, err)
	assert.Equal(t, byte(2), kind)
	assert.Equal(t, byte(3), ch)
	assert.Equal(t, "Data_EntityDestroy|7", string(payload))

	kind, _, payload, err = ReadFrame(&buf, 1024)
	assert.Equal(t, nil, err)
	assert.Equal(t, byte(4), kind)
	assert.Equal(t, 0, len(payload))

	_, _, _, err = ReadFrame(&buf, 1024)
	assert.Equal(t, io.EOF, err)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, 1, 0, make([]byte, 100))
	_, _, _, err := ReadFrame(&buf, 10)
	assert.T(t, errors.Cause(err) == ErrFrameTooLarge, err)
}

func TestIsConnectionError(t *testing.T) {
	assert.T(t, IsConnectionError(io.EOF), "EOF")
	assert.T(t, IsConnectionError(errors.Wrap(io.EOF, "read")), "wrapped EOF")
	assert.T(t, !IsConnectionError("not an error"), "string")
	assert.T(t, !IsConnectionError(errors.New("boom")), "plain error")
}

func TestAddrHelpers(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("10.1.2.3"), Port: 3334}
	assert.Equal(t, 3334, PortOf(addr))
	assert.Equal(t, "10.1.2.3", IPOf(addr))
}

func TestServeForeverRestartsAfterPanic(t *testing.T) {
	n := 0
	ServeForever("test", func() {
		n++
		if n < 3 {
			panic(errors.New("accept failed"))
		}
	})
	assert.Equal(t, 3, n)
}
