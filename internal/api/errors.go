package api

import "codeberg.org/mutker/monitord/internal/errors"

const (
	ErrNotLoopback  = errors.ErrorCode("api_not_loopback")
	ErrListenFailed = errors.ErrorCode("api_listen_failed")
	ErrServeFailed  = errors.ErrorCode("api_serve_failed")
)
