package nis

import (
	"net"
	"testing"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRequestTimeoutIsWriteFailure(t *testing.T) {
	client, err := NewClient(Target{
		Host:           "localhost",
		Port:           DefaultPort,
		ConnectTimeout: time.Second,
		ReadTimeout:    50 * time.Millisecond,
	})
	require.NoError(t, err)

	// Nobody reads the other end, so the write blocks until its deadline.
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	err = client.writeRequest(local, time.Now().Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, ErrWriteFailed, errors.CodeOf(err))
	assert.True(t, isTimeout(errors.Unwrap(err)))
}

func TestFrameDeadlineIsCappedByExchange(t *testing.T) {
	client, err := NewClient(Target{
		Host:           "localhost",
		Port:           DefaultPort,
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Minute,
	})
	require.NoError(t, err)

	exchange := time.Now().Add(time.Second)
	assert.Equal(t, exchange, client.frameDeadline(exchange))

	far := time.Now().Add(time.Hour)
	assert.True(t, client.frameDeadline(far).Before(far))
}
