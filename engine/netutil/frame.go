package netutil

import (
	"io"

	"github.com/pkg/errors"
)

const (
	// FRAME_HEADER_SIZE is kind(1) + channel(1) + payload length(4)
	FRAME_HEADER_SIZE = 6
)

// ErrFrameTooLarge is returned when a frame header announces more than the allowed payload
var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes one frame to w
func WriteFrame(w io.Writer, kind byte, channel byte, payload []byte) error {
	buf := make([]byte, FRAME_HEADER_SIZE+len(payload))
	buf[0] = kind
	buf[1] = channel
	NETWORK_ENDIAN.PutUint32(buf[2:FRAME_HEADER_SIZE], uint32(len(payload)))
	copy(buf[FRAME_HEADER_SIZE:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame from r, refusing payloads larger than maxSize
func ReadFrame(r io.Reader, maxSize int) (kind byte, channel byte, payload []byte, err error) {
	var header [FRAME_HEADER_SIZE]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return
	}
	size := NETWORK_ENDIAN.Uint32(header[2:])
	if int64(size) > int64(maxSize) {
		err = errors.Wrapf(ErrFrameTooLarge, "%d > %d", size, maxSize)
		return
	}
	payload = make([]byte, size)
	if _, err = io.ReadFull(r, payload); err != nil {
		return
	}
	return header[0], header[1], payload, nil
}
