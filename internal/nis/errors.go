package nis

import (
	stderrors "errors"
	"io"
	"net"
	"os"
	"syscall"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
)

const (
	// Connection Errors
	ErrConnectRefused = errors.ErrorCode("nis_connect_refused")
	ErrConnectTimeout = errors.ErrorCode("nis_connect_timeout")
	ErrConnectFailed  = errors.ErrorCode("nis_connect_failed")

	// Transfer Errors
	ErrWriteFailed      = errors.ErrorCode("nis_write_failed")
	ErrReadTimeout      = errors.ErrorCode("nis_read_timeout")
	ErrConnectionClosed = errors.ErrorCode("nis_connection_closed")
	ErrReadFailed       = errors.ErrorCode("nis_read_failed")

	// Framing Errors
	ErrFrameTooLarge    = errors.ErrorCode("nis_frame_too_large")
	ErrResponseTooLarge = errors.ErrorCode("nis_response_too_large")

	// Target Errors
	ErrInvalidTarget = errors.ErrorCode("nis_invalid_target")
)

func init() {
	errors.RegisterMessage(ErrConnectRefused, "Connection refused by daemon")
	errors.RegisterMessage(ErrConnectTimeout, "Timed out connecting to daemon")
	errors.RegisterMessage(ErrConnectFailed, "Failed to connect to daemon")
	errors.RegisterMessage(ErrWriteFailed, "Failed to send request")
	errors.RegisterMessage(ErrReadTimeout, "Timed out waiting for daemon")
	errors.RegisterMessage(ErrConnectionClosed, "Daemon closed the connection")
	errors.RegisterMessage(ErrReadFailed, "Failed to read from daemon")
	errors.RegisterMessage(ErrFrameTooLarge, "Frame exceeds size limit")
	errors.RegisterMessage(ErrResponseTooLarge, "Response exceeds size limit")
	errors.RegisterMessage(ErrInvalidTarget, "Invalid daemon target")
}

// classifyDialError maps a dial failure onto a connection error code.
func classifyDialError(err error) errors.ErrorCode {
	if isTimeout(err) {
		return ErrConnectTimeout
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnectRefused
	}

	return ErrConnectFailed
}

// classifyReadError maps a read failure onto a transfer error code.
func classifyReadError(err error) errors.ErrorCode {
	switch {
	case isTimeout(err):
		return ErrReadTimeout
	case stderrors.Is(err, io.EOF),
		stderrors.Is(err, io.ErrUnexpectedEOF),
		stderrors.Is(err, io.ErrClosedPipe),
		stderrors.Is(err, net.ErrClosed),
		stderrors.Is(err, syscall.ECONNRESET):
		return ErrConnectionClosed
	default:
		return ErrReadFailed
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
