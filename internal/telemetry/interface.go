package telemetry

import (
	"context"

	"codeberg.org/mutker/monitord/internal/media"
	"codeberg.org/mutker/monitord/internal/network"
	"codeberg.org/mutker/monitord/internal/notifications"
	"codeberg.org/mutker/monitord/internal/temperature"
	"codeberg.org/mutker/monitord/internal/utilization"
	"codeberg.org/mutker/monitord/internal/weather"
)

// Collector is an independently scheduled background task. Run blocks until
// ctx is cancelled and returns nil on cancellation.
type Collector interface {
	Name() string
	Run(ctx context.Context) error
}

type UtilizationReader interface {
	Stats() utilization.Stats
}

type TemperatureReader interface {
	Stats() temperature.Stats
}

type NetworkReader interface {
	Stats() network.Stats
}

type MediaReader interface {
	Info() media.Info
}

type NotificationReader interface {
	Notifications() []notifications.Notification
}

type WeatherReader interface {
	Weather() (weather.Data, bool)
}
