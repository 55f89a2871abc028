package telemetry

import "codeberg.org/mutker/apcupsd-exporter/internal/errors"

const (
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")
)

func init() {
	errors.RegisterMessage(ErrRegisterFailed, "Failed to register telemetry collectors")
}
