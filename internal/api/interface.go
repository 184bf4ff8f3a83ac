package api

import (
	"context"

	"codeberg.org/mutker/monitord/internal/notifications"
	"codeberg.org/mutker/monitord/internal/telemetry"
)

type Snapshotter interface {
	Snapshot() telemetry.Snapshot
}

type MediaController interface {
	PlayPause(ctx context.Context) bool
	Next(ctx context.Context) bool
	Previous(ctx context.Context) bool
	Seek(ctx context.Context, seconds float64) bool
	SeekToProgress(ctx context.Context, progress float64) bool
	SetToken(token string)
}

type NotificationManager interface {
	Notifications() []notifications.Notification
	Clear()
	ClearApp(app string)
	Remove(app string, timestamp int64)
}

type WeatherController interface {
	Request()
	SetAPIKey(key string)
	SetLocation(location string)
}
