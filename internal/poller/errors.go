package poller

import "codeberg.org/mutker/apcupsd-exporter/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("poll_invalid_config")
	ErrFetchFailed   = errors.ErrorCode("poll_fetch_failed")
	ErrNoUsableStats = errors.ErrorCode("poll_no_usable_stats")
)

func init() {
	errors.RegisterMessage(ErrInvalidConfig, "Invalid poller configuration")
	errors.RegisterMessage(ErrFetchFailed, "Failed to fetch status")
	errors.RegisterMessage(ErrNoUsableStats, "Status report contained no usable entries")
}
