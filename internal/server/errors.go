package server

import "codeberg.org/mutker/apcupsd-exporter/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("server_invalid_config")
	ErrNotReady      = errors.ErrorCode("server_not_ready")
)

func init() {
	errors.RegisterMessage(ErrInvalidConfig, "Invalid HTTP server configuration")
	errors.RegisterMessage(ErrNotReady, "No status snapshot available yet")
}
