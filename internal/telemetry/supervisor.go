package telemetry

import (
	"context"
	"fmt"
	"sync"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs collectors side by side and joins them on shutdown. A
// failing collector is logged and reported from Run but does not cancel its
// siblings.
type Supervisor struct {
	mu         sync.Mutex
	collectors []Collector
	running    bool
	log        logger.Logger
}

func NewSupervisor(log logger.Logger, collectors ...Collector) *Supervisor {
	if log == nil {
		log = logger.Nop()
	}

	return &Supervisor{
		collectors: collectors,
		log:        log,
	}
}

// Add registers a collector. It must be called before Run.
func (s *Supervisor) Add(c Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectors = append(s.collectors, c)
}

func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.collectors))
	for _, c := range s.collectors {
		names = append(names, c.Name())
	}
	return names
}

// Run starts every collector and blocks until all of them have returned. The
// first collector error, if any, is returned after the join.
func (s *Supervisor) Run(ctx context.Context) error {
	errFactory := errors.New()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errFactory.New(errors.ErrAlreadyRunning)
	}
	s.running = true
	collectors := append([]Collector(nil), s.collectors...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var g errgroup.Group
	for _, c := range collectors {
		g.Go(func() error {
			return s.run(ctx, c)
		})
	}

	s.log.Info().Int("collectors", len(collectors)).Msg("Collectors started")

	err := g.Wait()

	s.log.Info().Msg("Collectors stopped")

	return err
}

func (s *Supervisor) run(ctx context.Context, c Collector) (err error) {
	errFactory := errors.New()
	name := c.Name()

	defer func() {
		if r := recover(); r != nil {
			err = errFactory.WithData(ErrCollectorPanic, struct {
				Collector string
				Panic     string
			}{
				Collector: name,
				Panic:     fmt.Sprint(r),
			})
			s.log.Error().Str("collector", name).Interface("panic", r).Msg("Collector panicked")
		}
	}()

	s.log.Debug().Str("collector", name).Msg("Collector starting")

	if err := c.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("collector", name).Msg("Collector failed")
		return errFactory.WithData(ErrCollectorFailed, struct {
			Collector string
			Error     string
		}{
			Collector: name,
			Error:     err.Error(),
		})
	}

	s.log.Debug().Str("collector", name).Msg("Collector stopped")

	return nil
}
