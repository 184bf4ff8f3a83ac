// Package gpu detects the graphics vendor and reads GPU busy percentage
// through an ordered chain of vendor-specific strategies.
package gpu

import (
	"context"
	"io"

	"codeberg.org/mutker/monitord/internal/command"
	"codeberg.org/mutker/monitord/internal/logger"
)

type Options struct {
	Env    Env
	Runner command.Runner
	// NVML enables the NVML strategy ahead of nvidia-smi.
	NVML   bool
	Logger logger.Logger

	nvml nvmlController
}

type Reader struct {
	vendor     Vendor
	strategies []Strategy
	log        logger.Logger
	last       string
}

var _ Source = (*Reader)(nil)

// New detects the vendor and assembles its strategy chain. Strategies backed
// by a tool that is not installed are left out.
func New(opts Options) *Reader {
	env := opts.Env.withDefaults()

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = command.NewExec(command.DefaultTimeout)
	}

	r := &Reader{
		vendor: Detect(env),
		log:    log,
	}

	switch r.vendor {
	case VendorNvidia:
		if opts.NVML {
			ctrl := opts.nvml
			if ctrl == nil {
				ctrl = &nvmlWrapper{}
			}
			r.strategies = append(r.strategies, newNVMLStrategy(ctrl, log))
		}
		if path, ok := env.resolve(toolNvidiaSMI); ok {
			r.strategies = append(r.strategies, nvidiaSMIStrategy(runner, path))
		}
	case VendorAMD:
		r.strategies = append(r.strategies, amdSysfsStrategy(env))
		if path, ok := env.resolve(toolRadeontop); ok {
			r.strategies = append(r.strategies, radeontopStrategy(runner, path))
		}
	case VendorIntel:
		r.strategies = append(r.strategies, intelSysfsStrategy(env))
		if path, ok := env.resolve(toolIntelGPUTop); ok {
			r.strategies = append(r.strategies, intelGPUTopStrategy(runner, path))
		}
	case VendorNone:
	}

	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	log.Debug().
		Str("vendor", r.vendor.String()).
		Strs("strategies", names).
		Msg("GPU detection complete")

	return r
}

func (r *Reader) Vendor() Vendor {
	return r.vendor
}

// Strategies returns the names of the configured strategies in priority order.
func (r *Reader) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}

	return names
}

// Utilization returns the first value produced by the strategy chain.
func (r *Reader) Utilization(ctx context.Context) (float64, bool) {
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return 0, false
		}
		if v, ok := s.Fetch(ctx); ok {
			if r.last != s.Name() {
				r.log.Debug().Str("strategy", s.Name()).Msg("GPU utilization source selected")
				r.last = s.Name()
			}
			return v, true
		}
	}

	return 0, false
}

func (r *Reader) Close() error {
	var firstErr error
	for _, s := range r.strategies {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
