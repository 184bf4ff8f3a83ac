package config

import "codeberg.org/mutker/monitord/internal/errors"

const (
	ErrInvalidOption = errors.ErrorCode("config_invalid_option")
	ErrNoConfigFile  = errors.ErrorCode("config_no_file_to_watch")
)
