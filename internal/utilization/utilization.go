// Package utilization samples processor, memory and GPU load.
package utilization

import (
	"context"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/gpu"
	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"
)

// Stats is a point-in-time copy of the collector's values.
type Stats struct {
	CPUPercent       float64    `json:"cpu_percent"`
	MemoryPercent    float64    `json:"memory_percent"`
	MemoryUsedBytes  uint64     `json:"memory_used_bytes"`
	MemoryTotalBytes uint64     `json:"memory_total_bytes"`
	GPUPercent       float64    `json:"gpu_percent"`
	GPUVendor        gpu.Vendor `json:"gpu_vendor"`
}

type Sources struct {
	CPUTimes func(ctx context.Context, perCPU bool) ([]cpu.TimesStat, error)
	Memory   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func DefaultSources() Sources {
	return Sources{
		CPUTimes: cpu.TimesWithContext,
		Memory:   mem.VirtualMemoryWithContext,
	}
}

type Config struct {
	Interval    time.Duration
	GPUInterval time.Duration
	Sources     Sources
	// GPU may be nil when GPU sampling is disabled.
	GPU    gpu.Source
	Logger logger.Logger
}

type Collector struct {
	cfg Config
	log logger.Logger

	mu    sync.RWMutex
	stats Stats

	// owned by the CPU/memory loop
	prevTotal float64
	prevIdle  float64
	hasPrev   bool
}

func New(cfg Config) *Collector {
	if cfg.Sources.CPUTimes == nil || cfg.Sources.Memory == nil {
		defaults := DefaultSources()
		if cfg.Sources.CPUTimes == nil {
			cfg.Sources.CPUTimes = defaults.CPUTimes
		}
		if cfg.Sources.Memory == nil {
			cfg.Sources.Memory = defaults.Memory
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.GPUInterval <= 0 {
		cfg.GPUInterval = time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Collector{cfg: cfg, log: log}
	if cfg.GPU != nil {
		c.stats.GPUVendor = cfg.GPU.Vendor()
	}

	return c
}

func (c *Collector) Name() string { return "utilization" }

// Run drives the CPU/memory tick and, when a GPU source is configured, the
// independent GPU tick until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return every(ctx, c.cfg.Interval, c.Sample)
	})

	if c.cfg.GPU != nil && c.cfg.GPU.Vendor() != gpu.VendorNone {
		g.Go(func() error {
			return every(ctx, c.cfg.GPUInterval, c.SampleGPU)
		})
	}

	return g.Wait()
}

func every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Sample performs one CPU and memory reading.
func (c *Collector) Sample(ctx context.Context) {
	cpuPercent, cpuOK := c.sampleCPU(ctx)

	var memPercent float64
	var used, total uint64
	vm, err := c.cfg.Sources.Memory(ctx)
	if err != nil || vm == nil {
		c.log.Debug().Err(err).Msg("Memory statistics unavailable")
	} else {
		used, total = vm.Used, vm.Total
		memPercent = Percent(float64(used), float64(total))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cpuOK {
		c.stats.CPUPercent = cpuPercent
	}
	if vm != nil {
		c.stats.MemoryPercent = memPercent
		c.stats.MemoryUsedBytes = used
		c.stats.MemoryTotalBytes = total
	}
}

// sampleCPU derives busy percentage from the change in aggregate CPU times
// since the previous tick. The first tick only records a baseline.
func (c *Collector) sampleCPU(ctx context.Context) (float64, bool) {
	times, err := c.cfg.Sources.CPUTimes(ctx, false)
	if err != nil || len(times) == 0 {
		c.log.Debug().Err(err).Msg("CPU times unavailable")
		return 0, false
	}

	total := cpuTotal(times[0])
	idle := times[0].Idle + times[0].Iowait

	deltaTotal := total - c.prevTotal
	deltaIdle := idle - c.prevIdle
	hasPrev := c.hasPrev

	c.prevTotal, c.prevIdle, c.hasPrev = total, idle, true

	if !hasPrev {
		return 0, true
	}

	return clamp(Percent(deltaTotal-deltaIdle, deltaTotal)), true
}

// SampleGPU performs one GPU reading. A missing value leaves the previous
// percentage in place.
func (c *Collector) SampleGPU(ctx context.Context) {
	if c.cfg.GPU == nil {
		return
	}

	v, ok := c.cfg.GPU.Utilization(ctx)
	if !ok {
		return
	}

	c.mu.Lock()
	c.stats.GPUPercent = v
	c.mu.Unlock()
}

func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stats
}

// Percent returns used/total*100, or 0 when total is zero or the result is
// not a finite number.
func Percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}

	p := used / total * 100
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}

	return p
}

func cpuTotal(stat cpu.TimesStat) float64 {
	return stat.User + stat.System + stat.Nice + stat.Idle + stat.Iowait + stat.Irq + stat.Softirq + stat.Steal + stat.Guest + stat.GuestNice
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
