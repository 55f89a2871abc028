package nis

import (
	"encoding/binary"
	"io"
	"math"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
)

const (
	// MaxFrameSize is the largest payload a 16-bit length header can describe.
	MaxFrameSize = math.MaxUint16

	headerSize = 2
)

// Frame is one length-prefixed unit of the NIS wire protocol.
type Frame []byte

// IsTerminator reports whether f is the zero-length frame that ends a response.
func (f Frame) IsTerminator() bool {
	return len(f) == 0
}

// EncodeFrame prefixes payload with its length as a big-endian uint16.
// An empty payload yields the terminator frame.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, errors.New().WithData(ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[headerSize:], payload)

	return buf, nil
}

// ReadFrame reads a single frame from r. Frames declaring more than maxSize
// payload bytes are rejected before the payload is read. A maxSize outside
// (0, MaxFrameSize] is treated as MaxFrameSize.
//
// Read deadlines are the caller's concern; a deadline expiring surfaces as
// ErrReadTimeout.
func ReadFrame(r io.Reader, maxSize int) (Frame, error) {
	errFactory := errors.New()

	if maxSize <= 0 || maxSize > MaxFrameSize {
		maxSize = MaxFrameSize
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errFactory.Wrap(classifyReadError(err), err)
	}

	size := int(binary.BigEndian.Uint16(header[:]))
	if size == 0 {
		return Frame{}, nil
	}
	if size > maxSize {
		return nil, errFactory.WithData(ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errFactory.Wrap(classifyReadError(err), err)
	}

	return Frame(payload), nil
}
