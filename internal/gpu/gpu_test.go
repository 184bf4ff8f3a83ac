package gpu

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/monitord/internal/command"
	"codeberg.org/mutker/monitord/internal/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	outputs map[string]string
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ ...string) (string, error) {
	f.calls = append(f.calls, name)
	out, ok := f.outputs[name]
	if !ok {
		return "", errors.New().New(errors.ErrSourceUnavailable)
	}

	return out, nil
}

type fakeNVML struct {
	initErr  error
	count    int
	util     uint32
	utilErr  error
	inits    int
	shutdown int
}

func (f *fakeNVML) Initialize() error {
	f.inits++
	return f.initErr
}

func (f *fakeNVML) Shutdown() error {
	f.shutdown++
	return nil
}

func (f *fakeNVML) GetDeviceCount() (int, error) { return f.count, nil }
func (f *fakeNVML) GetName(int) (string, error) { return "Test GPU", nil }
func (f *fakeNVML) GetUtilization(int) (uint32, error) { return f.util, f.utilErr }

func noPath(string) (string, error) {
	return "", os.ErrNotExist
}

func onPath(names ...string) func(string) (string, error) {
	return func(file string) (string, error) {
		for _, n := range names {
			if n == file {
				return "/usr/local/bin/" + file, nil
			}
		}
		return "", os.ErrNotExist
	}
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestDetectPriority(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		path  []string
		want  Vendor
	}{
		{"nothing", nil, nil, VendorNone},
		{"nvidia absolute", []string{"/usr/bin/nvidia-smi"}, nil, VendorNvidia},
		{"rocm", []string{"/opt/rocm/bin/rocm-smi"}, nil, VendorAMD},
		{"radeontop on path", nil, []string{"radeontop"}, VendorAMD},
		{"intel", []string{"/usr/bin/intel_gpu_top"}, nil, VendorIntel},
		{"nvidia wins over amd", []string{"/usr/bin/radeontop"}, []string{"nvidia-smi"}, VendorNvidia},
		{"amd wins over intel", []string{"/usr/bin/intel_gpu_top", "/usr/bin/radeontop"}, nil, VendorAMD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, f := range tt.files {
				writeFile(t, fs, f, "")
			}

			got := Detect(Env{Fs: fs, LookPath: onPath(tt.path...), DRMRoot: "/sys/class/drm"})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectDRMFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/sys/class/drm/card0-DP-1/device/uevent", "DRIVER=amdgpu\n")
	writeFile(t, fs, "/sys/class/drm/card1/device/uevent", "PCI_CLASS=30000\nDRIVER=i915\n")

	got := Detect(Env{Fs: fs, LookPath: noPath, DRMRoot: "/sys/class/drm"})
	assert.Equal(t, VendorIntel, got, "connector entries are skipped")

	writeFile(t, fs, "/sys/class/drm/card0/device/uevent", "DRIVER=amdgpu\n")
	got = Detect(Env{Fs: fs, LookPath: noPath, DRMRoot: "/sys/class/drm"})
	assert.Equal(t, VendorAMD, got, "cards are scanned in name order")
}

func TestParseNvidiaSMI(t *testing.T) {
	v, ok := parseNvidiaSMI("37\n")
	require.True(t, ok)
	assert.Equal(t, 37.0, v)

	v, ok = parseNvidiaSMI("12\n88\n")
	require.True(t, ok)
	assert.Equal(t, 12.0, v)

	_, ok = parseNvidiaSMI("[N/A]")
	assert.False(t, ok)
	_, ok = parseNvidiaSMI("")
	assert.False(t, ok)
}

func TestParseRadeontop(t *testing.T) {
	dump := "Dumping to -, line limit 1.\n1700000000.123456: bus 03, gpu 45.67%, ee 0.00%, vgt 0.00%\n"
	v, ok := parseRadeontop(dump)
	require.True(t, ok)
	assert.InDelta(t, 45.67, v, 1e-9)

	v, ok = parseRadeontop("gpu 12.5%\n")
	require.True(t, ok)
	assert.InDelta(t, 12.5, v, 1e-9)

	_, ok = parseRadeontop("no gpu data here\n")
	assert.False(t, ok)
}

func TestParseIntelGPUTop(t *testing.T) {
	out := `[
{
	"period": {"duration": 100.1, "unit": "ms"},
	"engines": {
		"Render/3D/0": {"busy": 23.456, "sema": 0.0, "wait": 0.0, "unit": "%"},
		"Video/0": {"busy": 5.0, "sema": 0.0, "wait": 0.0, "unit": "%"}
	}
}`
	v, ok := parseIntelGPUTop(out)
	require.True(t, ok)
	assert.InDelta(t, 23.456, v, 1e-9)

	_, ok = parseIntelGPUTop(`{"period": {}}`)
	assert.False(t, ok)
}

func TestAMDSysfsFirstParsableCard(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/drm/card0/device/gpu_busy_percent", "garbage")
	writeFile(t, fs, "/drm/card1/device/gpu_busy_percent", "42\n")
	writeFile(t, fs, "/drm/card2/device/gpu_busy_percent", "99\n")

	s := amdSysfsStrategy(Env{Fs: fs, LookPath: noPath, DRMRoot: "/drm"})
	v, ok := s.Fetch(context.Background())
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestIntelSysfsFrequencyRatio(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/drm/card0/gt/gt0/rps_cur_freq_mhz", "300\n")
	writeFile(t, fs, "/drm/card0/gt/gt0/rps_max_freq_mhz", "1200\n")

	s := intelSysfsStrategy(Env{Fs: fs, LookPath: noPath, DRMRoot: "/drm"})
	v, ok := s.Fetch(context.Background())
	require.True(t, ok)
	assert.Equal(t, 25.0, v)
}

func TestIntelSysfsBoostAboveMax(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/drm/card0/gt_cur_freq_mhz", "1500\n")
	writeFile(t, fs, "/drm/card0/gt_max_freq_mhz", "1200\n")

	s := intelSysfsStrategy(Env{Fs: fs, LookPath: noPath, DRMRoot: "/drm"})
	v, ok := s.Fetch(context.Background())
	require.True(t, ok)
	assert.Equal(t, 125.0, v)
}

func TestIntelSysfsZeroMax(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/drm/card0/gt/gt0/rps_cur_freq_mhz", "300\n")
	writeFile(t, fs, "/drm/card0/gt/gt0/rps_max_freq_mhz", "0\n")

	s := intelSysfsStrategy(Env{Fs: fs, LookPath: noPath, DRMRoot: "/drm"})
	_, ok := s.Fetch(context.Background())
	assert.False(t, ok)
}

func TestReaderAMDFallsBackToRadeontop(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/usr/bin/radeontop", "")
	runner := &fakeRunner{outputs: map[string]string{
		"/usr/bin/radeontop": "1.0: bus 03, gpu 7.00%, ee 0.00%\n",
	}}

	r := New(Options{
		Env:    Env{Fs: fs, LookPath: noPath, DRMRoot: "/drm"},
		Runner: runner,
	})
	require.Equal(t, VendorAMD, r.Vendor())
	assert.Equal(t, []string{"amdgpu-sysfs", "radeontop"}, r.Strategies())

	v, ok := r.Utilization(context.Background())
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestReaderNvidiaPrefersNVML(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"/usr/local/bin/nvidia-smi": "55\n"}}
	nv := &fakeNVML{count: 1, util: 81}

	r := New(Options{
		Env:    Env{Fs: afero.NewMemMapFs(), LookPath: onPath("nvidia-smi"), DRMRoot: "/drm"},
		Runner: runner,
		NVML:   true,
		nvml:   nv,
	})
	assert.Equal(t, []string{"nvml", "nvidia-smi"}, r.Strategies())

	v, ok := r.Utilization(context.Background())
	require.True(t, ok)
	assert.Equal(t, 81.0, v)
	assert.Empty(t, runner.calls)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, nv.shutdown)
}

func TestReaderNVMLInitFailureDisablesStrategy(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"/usr/local/bin/nvidia-smi": "55\n"}}
	nv := &fakeNVML{initErr: errors.New().New(ErrInitFailed)}

	r := New(Options{
		Env:    Env{Fs: afero.NewMemMapFs(), LookPath: onPath("nvidia-smi"), DRMRoot: "/drm"},
		Runner: runner,
		NVML:   true,
		nvml:   nv,
	})

	for range 3 {
		v, ok := r.Utilization(context.Background())
		require.True(t, ok)
		assert.Equal(t, 55.0, v)
	}
	assert.Equal(t, 1, nv.inits, "init is not retried")
	assert.Len(t, runner.calls, 3)
}

func TestReaderNoValue(t *testing.T) {
	r := New(Options{Env: Env{Fs: afero.NewMemMapFs(), LookPath: noPath, DRMRoot: "/drm"}})
	assert.Equal(t, VendorNone, r.Vendor())

	_, ok := r.Utilization(context.Background())
	assert.False(t, ok)
}

func TestVendorText(t *testing.T) {
	b, err := VendorIntel.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "intel", string(b))
	assert.Equal(t, "none", Vendor(42).String())
}

func TestReaderIntelGPUTopSamplesUntilKilled(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tool := filepath.Join(t.TempDir(), "intel_gpu_top")
	script := "#!/bin/sh\nwhile :; do echo '{\"engines\":{\"Render/3D/0\":{\"busy\": 42.5}}},'; sleep 0.1; done\n"
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	lookPath := func(file string) (string, error) {
		if file == "intel_gpu_top" {
			return tool, nil
		}
		return "", os.ErrNotExist
	}

	r := New(Options{
		Env:    Env{Fs: afero.NewMemMapFs(), LookPath: lookPath, DRMRoot: "/drm"},
		Runner: command.NewExec(500 * time.Millisecond),
	})
	require.Equal(t, VendorIntel, r.Vendor())
	assert.Equal(t, []string{"i915-sysfs", "intel_gpu_top"}, r.Strategies())

	v, ok := r.Utilization(context.Background())
	require.True(t, ok)
	assert.Equal(t, 42.5, v)
}

func TestCLIStrategyTimeoutWithoutOutput(t *testing.T) {
	runner := &timeoutRunner{}

	_, ok := intelGPUTopStrategy(runner, "/usr/bin/intel_gpu_top").Fetch(context.Background())
	assert.False(t, ok)

	runner.out = "12\n"
	_, ok = nvidiaSMIStrategy(runner, "/usr/bin/nvidia-smi").Fetch(context.Background())
	assert.False(t, ok, "tools expected to exit do not use output from a killed run")
}

type timeoutRunner struct {
	out string
}

func (r *timeoutRunner) Run(context.Context, string, ...string) (string, error) {
	return r.out, errors.New().New(errors.ErrTimeout)
}
