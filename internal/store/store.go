// Package store persists the last weather observation per location in SQLite
// so restarts do not spend a refresh window on the remote API.
package store

import (
	"context"

	"codeberg.org/mutker/monitord/internal/logger"
	"codeberg.org/mutker/monitord/internal/weather"
)

// No-op implementation
type noopStore struct{}

// New opens the SQLite store, or returns a no-op store when the cache is
// disabled.
func New(cfg Config, log logger.Logger) (WeatherStore, error) {
	if log == nil {
		log = logger.Nop()
	}

	if !cfg.Enabled() {
		log.Debug().Msg("Weather cache disabled, using no-op store")
		return &noopStore{}, nil
	}

	return NewRepository(cfg, log)
}

func (*noopStore) LoadWeather(_ context.Context, _ string) (weather.Data, bool, error) {
	return weather.Data{}, false, nil
}

func (*noopStore) SaveWeather(_ context.Context, _ string, _ weather.Data) error {
	return nil
}

func (*noopStore) Close() error {
	return nil
}
