package weather

import (
	stderrors "errors"
	"strings"
)

// redact keeps the API key out of logged transport errors, which embed the
// request URL.
func redact(err error, apiKey string) error {
	if err == nil || apiKey == "" {
		return err
	}

	msg := err.Error()
	if !strings.Contains(msg, apiKey) {
		return err
	}

	return stderrors.New(strings.ReplaceAll(msg, apiKey, "REDACTED"))
}
