package nis_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"codeberg.org/mutker/apcupsd-exporter/internal/nis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"command":  []byte("status"),
		"line":     []byte("LINEV    : 120.0 Volts\n"),
		"binary":   {0x00, 0xff, 0x10, 0x00},
		"one_byte": {'x'},
		"max_size": bytes.Repeat([]byte{'a'}, nis.MaxFrameSize),
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			encoded, err := nis.EncodeFrame(payload)
			require.NoError(t, err)
			assert.Len(t, encoded, len(payload)+2)

			frame, err := nis.ReadFrame(bytes.NewReader(encoded), nis.MaxFrameSize)
			require.NoError(t, err)
			assert.False(t, frame.IsTerminator())
			assert.Equal(t, payload, []byte(frame))
		})
	}
}

func TestEncodeFrameHeader(t *testing.T) {
	encoded, err := nis.EncodeFrame([]byte("status"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00\x06status"), encoded)
}

func TestEncodeFrameTerminator(t *testing.T) {
	encoded, err := nis.EncodeFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00}, encoded)

	frame, err := nis.ReadFrame(bytes.NewReader(encoded), 0)
	require.NoError(t, err)
	assert.True(t, frame.IsTerminator())
}

func TestEncodeFrameTooLarge(t *testing.T) {
	for _, size := range []int{nis.MaxFrameSize + 1, 70000, 1 << 20} {
		_, err := nis.EncodeFrame(make([]byte, size))
		require.Error(t, err)
		assert.Equal(t, nis.ErrFrameTooLarge, errors.CodeOf(err), "size %d", size)
	}
}

func TestReadFrameDeclaredLengthAboveLimit(t *testing.T) {
	r := bytes.NewReader([]byte{0xff, 0xff, 'a', 'b'})

	_, err := nis.ReadFrame(r, nis.DefaultMaxFrameSize)
	require.Error(t, err)
	assert.Equal(t, nis.ErrFrameTooLarge, errors.CodeOf(err))
	assert.Equal(t, 2, r.Len(), "payload must not be consumed")
}

func TestReadFrameTruncated(t *testing.T) {
	tests := map[string][]byte{
		"empty":          {},
		"partial_header": {0x00},
		"short_payload":  {0x00, 0x05, 'a', 'b'},
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := nis.ReadFrame(bytes.NewReader(data), 0)
			require.Error(t, err)
			assert.Equal(t, nis.ErrConnectionClosed, errors.CodeOf(err))
		})
	}
}

func TestReadFrameTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(50*time.Millisecond)))

	_, err := nis.ReadFrame(client, 0)
	require.Error(t, err)
	assert.Equal(t, nis.ErrReadTimeout, errors.CodeOf(err))
}

func TestReadFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range []string{"APC      : 001,036,0876\n", "STATUS   : ONLINE\n", ""} {
		encoded, err := nis.EncodeFrame([]byte(p))
		require.NoError(t, err)
		buf.Write(encoded)
	}

	var got []string
	for {
		frame, err := nis.ReadFrame(&buf, 0)
		require.NoError(t, err)
		if frame.IsTerminator() {
			break
		}
		got = append(got, string(frame))
	}

	assert.Equal(t, []string{"APC      : 001,036,0876\n", "STATUS   : ONLINE\n"}, got)
}
