// Package temperature classifies hardware sensors into CPU and GPU readings.
package temperature

import (
	"context"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Reading is one sensor sample.
type Reading struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Stats holds the classified temperatures in degrees Celsius. Zero means no
// matching sensor was found.
type Stats struct {
	CPU float64 `json:"cpu"`
	GPU float64 `json:"gpu"`
}

var (
	cpuLabels = []string{"cpu", "package", "core", "tctl", "tdie"}
	gpuLabels = []string{"gpu", "nvidia", "amd", "radeon", "edge"}
)

// Source enumerates the host's sensors.
type Source func(ctx context.Context) ([]Reading, error)

// SensorSource reads sensors through gopsutil. Partial enumeration errors are
// ignored as long as some sensors were returned.
func SensorSource(ctx context.Context) ([]Reading, error) {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(stats) == 0 {
		return nil, err
	}

	readings := make([]Reading, 0, len(stats))
	for _, s := range stats {
		readings = append(readings, Reading{Label: s.SensorKey, Value: s.Temperature})
	}

	return readings, nil
}

type Config struct {
	Interval time.Duration
	Source   Source
	Logger   logger.Logger
}

type Collector struct {
	interval time.Duration
	source   Source
	log      logger.Logger

	mu    sync.RWMutex
	stats Stats
}

func New(cfg Config) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Source == nil {
		cfg.Source = SensorSource
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Collector{
		interval: cfg.Interval,
		source:   cfg.Source,
		log:      cfg.Logger,
	}
}

func (c *Collector) Name() string { return "temperature" }

func (c *Collector) Run(ctx context.Context) error {
	c.Sample(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sample(ctx)
		}
	}
}

// Sample re-enumerates sensors and replaces both readings. A failed
// enumeration that returned nothing keeps the previous readings.
func (c *Collector) Sample(ctx context.Context) {
	readings, err := c.source(ctx)
	if err != nil {
		c.log.Debug().Err(err).Int("readings", len(readings)).Msg("Sensor enumeration failed")
		if len(readings) == 0 {
			return
		}
	}

	stats := Classify(readings)

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stats
}

// Classify picks, for CPU and GPU independently, the first reading whose
// lowercase label contains one of that class's substrings.
func Classify(readings []Reading) Stats {
	return Stats{
		CPU: firstMatch(readings, cpuLabels),
		GPU: firstMatch(readings, gpuLabels),
	}
}

func firstMatch(readings []Reading, substrings []string) float64 {
	for _, r := range readings {
		label := strings.ToLower(r.Label)
		for _, s := range substrings {
			if strings.Contains(label, s) {
				return r.Value
			}
		}
	}

	return 0
}
