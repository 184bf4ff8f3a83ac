// Package network reports aggregate interface throughput.
package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/logger"
	"codeberg.org/mutker/monitord/internal/sampler"
	"github.com/dustin/go-humanize"
	gonet "github.com/shirou/gopsutil/v4/net"
)

// Stats holds throughput in bytes per second.
type Stats struct {
	RxBytesPerSec float64 `json:"rx_bytes_per_sec"`
	TxBytesPerSec float64 `json:"tx_bytes_per_sec"`
}

// Counters are cumulative byte counts summed over every interface.
type Counters struct {
	Rx uint64
	Tx uint64
}

type Source func(ctx context.Context) (Counters, error)

// InterfaceSource sums gopsutil's per-interface counters. No interface is
// excluded, loopback included.
func InterfaceSource(ctx context.Context) (Counters, error) {
	stats, err := gonet.IOCountersWithContext(ctx, true)
	if err != nil {
		return Counters{}, err
	}

	return Sum(stats), nil
}

func Sum(stats []gonet.IOCountersStat) Counters {
	var c Counters
	for _, s := range stats {
		c.Rx += s.BytesRecv
		c.Tx += s.BytesSent
	}

	return c
}

type Config struct {
	Interval time.Duration
	Source   Source
	Logger   logger.Logger
	Now      func() time.Time
}

type Collector struct {
	interval time.Duration
	source   Source
	log      logger.Logger
	now      func() time.Time

	// owned by the collector loop
	rx, tx sampler.Rate
	lastAt time.Time

	mu    sync.RWMutex
	stats Stats
}

func New(cfg Config) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Source == nil {
		cfg.Source = InterfaceSource
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Collector{
		interval: cfg.Interval,
		source:   cfg.Source,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
}

func (c *Collector) Name() string { return "network" }

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

// Sample reads the counters and updates both rates using the wall-clock time
// since this collector's previous sample.
func (c *Collector) Sample(ctx context.Context) {
	counters, err := c.source(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("Interface counters unavailable")
		return
	}

	now := c.now()
	var elapsed float64
	if !c.lastAt.IsZero() {
		elapsed = now.Sub(c.lastAt).Seconds()
	}
	c.lastAt = now

	stats := Stats{
		RxBytesPerSec: c.rx.Sample(counters.Rx, elapsed),
		TxBytesPerSec: c.tx.Sample(counters.Tx, elapsed),
	}

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stats
}

// FormatRate renders a bytes-per-second value, e.g. "1.2 MB/s".
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}

	return fmt.Sprintf("%s/s", humanize.Bytes(uint64(bytesPerSec)))
}
