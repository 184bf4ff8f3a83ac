// Package httpclient builds the retrying HTTP clients used by the media and
// weather sources.
package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       logger.Logger
}

// New returns a client whose every attempt is bounded by opts.Timeout.
func New(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = opts.Timeout
	client.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}

	if opts.Logger != nil {
		client.Logger = &leveledLogger{log: opts.Logger}
	} else {
		client.Logger = nil
	}

	return client
}

// leveledLogger routes retryablehttp's request logging through zerolog. Request
// chatter is demoted to debug so polling stays quiet at the default level.
type leveledLogger struct {
	log logger.Logger
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)

func (l *leveledLogger) Error(msg string, keysAndValues ...any) {
	withFields(l.log.Warn(), keysAndValues).Msg(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...any) {
	withFields(l.log.Warn(), keysAndValues).Msg(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...any) {
	withFields(l.log.Debug(), keysAndValues).Msg(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...any) {
	withFields(l.log.Debug(), keysAndValues).Msg(msg)
}

func withFields(e *logger.LogEvent, keysAndValues []any) *logger.LogEvent {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		e.Interface(key, keysAndValues[i+1])
	}

	return e
}

// IsSuccess reports whether resp carries a 2xx status.
func IsSuccess(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
}
