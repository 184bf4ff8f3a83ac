package command

import "codeberg.org/mutker/monitord/internal/errors"

const ErrCommandFailed = errors.ErrorCode("command_failed")
