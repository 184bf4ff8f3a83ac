package gpu

import (
	"context"
	"sync"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetName(index int) (string, error)
	GetUtilization(index int) (uint32, error)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	errFactory := errors.New()
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	errFactory := errors.New()
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) device(index int) (nvml.Device, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return device, nil
}

func (w *nvmlWrapper) GetName(index int) (string, error) {
	errFactory := errors.New()

	device, err := w.device(index)
	if err != nil {
		return "", err
	}

	name, ret := device.GetName()
	if !IsNVMLSuccess(ret) {
		return "", errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return name, nil
}

func (w *nvmlWrapper) GetUtilization(index int) (uint32, error) {
	errFactory := errors.New()

	device, err := w.device(index)
	if err != nil {
		return 0, err
	}

	rates, ret := device.GetUtilizationRates()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrUtilizationFailed, newNVMLError(ret))
	}

	return rates.Gpu, nil
}

// nvmlStrategy reads the first device's utilization through NVML. NVML is
// initialized on first use; a failed init disables the strategy for the rest
// of the process so the CLI fallback takes over.
type nvmlStrategy struct {
	mu       sync.Mutex
	ctrl     nvmlController
	log      logger.Logger
	ready    bool
	disabled bool
}

func newNVMLStrategy(ctrl nvmlController, log logger.Logger) *nvmlStrategy {
	return &nvmlStrategy{ctrl: ctrl, log: log}
}

func (s *nvmlStrategy) Name() string { return "nvml" }

func (s *nvmlStrategy) Fetch(_ context.Context) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return 0, false
	}

	if !s.ready {
		if err := s.init(); err != nil {
			s.disabled = true
			s.log.Debug().Err(err).Msg("NVML unavailable, falling back to nvidia-smi")
			return 0, false
		}
		s.ready = true
	}

	util, err := s.ctrl.GetUtilization(0)
	if err != nil {
		s.log.Debug().Err(err).Msg("NVML utilization query failed")
		return 0, false
	}

	return float64(util), true
}

func (s *nvmlStrategy) init() error {
	errFactory := errors.New()

	if err := s.ctrl.Initialize(); err != nil {
		return err
	}

	count, err := s.ctrl.GetDeviceCount()
	if err != nil {
		_ = s.ctrl.Shutdown()
		return err
	}
	if count == 0 {
		_ = s.ctrl.Shutdown()
		return errFactory.New(ErrNoDevices)
	}

	if name, err := s.ctrl.GetName(0); err == nil {
		s.log.Info().Msgf("Detected GPU: %v", name)
	}

	return nil
}

func (s *nvmlStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}
	s.ready = false

	return s.ctrl.Shutdown()
}
