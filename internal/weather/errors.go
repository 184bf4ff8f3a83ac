package weather

import "codeberg.org/mutker/monitord/internal/errors"

const (
	ErrMissingCredentials = errors.ErrorCode("weather_missing_credentials")
	ErrRequestFailed      = errors.ErrorCode("weather_request_failed")
	ErrBadStatus          = errors.ErrorCode("weather_bad_status")
	ErrDecode             = errors.ErrorCode("weather_decode_failed")
)
