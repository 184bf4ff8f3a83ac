package telemetry

import "codeberg.org/mutker/monitord/internal/errors"

const (
	ErrCollectorFailed = errors.ErrorCode("telemetry_collector_failed")
	ErrCollectorPanic  = errors.ErrorCode("telemetry_collector_panic")
)
