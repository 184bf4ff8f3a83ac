// Package telemetry aggregates collector output into a snapshot for the
// renderer and supervises the collectors' background tasks.
package telemetry

import (
	"time"

	"codeberg.org/mutker/monitord/internal/media"
	"codeberg.org/mutker/monitord/internal/network"
	"codeberg.org/mutker/monitord/internal/notifications"
	"codeberg.org/mutker/monitord/internal/temperature"
	"codeberg.org/mutker/monitord/internal/utilization"
	"codeberg.org/mutker/monitord/internal/weather"
)

// Snapshot is a copy of every collector's published values. Fields come from
// independent collectors and are not taken atomically as a set.
type Snapshot struct {
	Utilization      utilization.Stats            `json:"utilization"`
	Temperature      temperature.Stats            `json:"temperature"`
	Network          network.Stats                `json:"network"`
	Media            media.Info                   `json:"media"`
	MediaActive      bool                         `json:"media_active"`
	Notifications    []notifications.Notification `json:"notifications"`
	Weather          weather.Data                 `json:"weather"`
	WeatherAvailable bool                         `json:"weather_available"`
	TakenAt          time.Time                    `json:"taken_at"`
}

// Sources lists the readers behind a Hub. Nil readers are reported as zero
// values, which is how disabled collectors appear.
type Sources struct {
	Utilization   UtilizationReader
	Temperature   TemperatureReader
	Network       NetworkReader
	Media         MediaReader
	Notifications NotificationReader
	Weather       WeatherReader
}

// Hub is the read side shared by the renderer, the status log and the API.
// It holds no state of its own; every collector guards its own fields.
type Hub struct {
	src Sources
	now func() time.Time
}

func NewHub(src Sources) *Hub {
	return &Hub{src: src, now: time.Now}
}

func (h *Hub) Utilization() utilization.Stats {
	if h.src.Utilization == nil {
		return utilization.Stats{}
	}
	return h.src.Utilization.Stats()
}

func (h *Hub) Temperature() temperature.Stats {
	if h.src.Temperature == nil {
		return temperature.Stats{}
	}
	return h.src.Temperature.Stats()
}

func (h *Hub) Network() network.Stats {
	if h.src.Network == nil {
		return network.Stats{}
	}
	return h.src.Network.Stats()
}

func (h *Hub) Media() media.Info {
	if h.src.Media == nil {
		return media.Info{}
	}
	return h.src.Media.Info()
}

func (h *Hub) Notifications() []notifications.Notification {
	if h.src.Notifications == nil {
		return []notifications.Notification{}
	}
	return h.src.Notifications.Notifications()
}

// Weather returns the placeholder record until the first successful fetch.
func (h *Hub) Weather() (weather.Data, bool) {
	if h.src.Weather == nil {
		return weather.Default(), false
	}
	return h.src.Weather.Weather()
}

func (h *Hub) Snapshot() Snapshot {
	info := h.Media()
	w, ok := h.Weather()

	return Snapshot{
		Utilization:      h.Utilization(),
		Temperature:      h.Temperature(),
		Network:          h.Network(),
		Media:            info,
		MediaActive:      info.IsActive(),
		Notifications:    h.Notifications(),
		Weather:          w,
		WeatherAvailable: ok,
		TakenAt:          h.now(),
	}
}
