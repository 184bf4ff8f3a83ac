package media

import "codeberg.org/mutker/monitord/internal/errors"

const (
	ErrRequestFailed = errors.ErrorCode("media_request_failed")
	ErrBadStatus     = errors.ErrorCode("media_bad_status")
)
