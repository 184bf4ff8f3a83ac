package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/monitord/internal/logger"
	"codeberg.org/mutker/monitord/internal/network"
)

// Reporter logs a status line every interval and runs OnTick, which main uses
// to request a coalesced weather refresh.
type Reporter struct {
	hub      *Hub
	interval time.Duration
	onTick   func()
	log      logger.Logger
}

func NewReporter(hub *Hub, interval time.Duration, onTick func(), log logger.Logger) *Reporter {
	if log == nil {
		log = logger.Nop()
	}

	return &Reporter{
		hub:      hub,
		interval: interval,
		onTick:   onTick,
		log:      log,
	}
}

func (r *Reporter) Name() string { return "status" }

func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick()
		}
	}
}

func (r *Reporter) Tick() {
	if r.onTick != nil {
		r.onTick()
	}

	snap := r.hub.Snapshot()
	ev := r.log.Debug().
		Float64("cpu", snap.Utilization.CPUPercent).
		Float64("memory", snap.Utilization.MemoryPercent).
		Float64("gpu", snap.Utilization.GPUPercent).
		Stringer("gpu_vendor", snap.Utilization.GPUVendor).
		Float64("cpu_temp", snap.Temperature.CPU).
		Float64("gpu_temp", snap.Temperature.GPU).
		Str("rx", network.FormatRate(snap.Network.RxBytesPerSec)).
		Str("tx", network.FormatRate(snap.Network.TxBytesPerSec)).
		Int("notifications", len(snap.Notifications))

	if snap.MediaActive {
		ev = ev.Str("media", snap.Media.Artist+" - "+snap.Media.Title).
			Stringer("media_status", snap.Media.Status)
	}
	if snap.WeatherAvailable {
		ev = ev.Float64("weather_temp", snap.Weather.Temperature).
			Str("weather", snap.Weather.Description)
	}

	ev.Msg("Status")
}
