package metrics

import "codeberg.org/mutker/apcupsd-exporter/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrorCode("metrics_invalid_config")
	ErrRegisterFailed = errors.ErrorCode("metrics_register_failed")
)

func init() {
	errors.RegisterMessage(ErrInvalidConfig, "Invalid metrics configuration")
	errors.RegisterMessage(ErrRegisterFailed, "Failed to register metrics collector")
}
