package store

import "codeberg.org/mutker/monitord/internal/weather"

// WeatherStore keeps the most recent observation for each location.
type WeatherStore interface {
	weather.Cache
	Close() error
}
