package gpu

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/monitord/internal/command"
	"codeberg.org/mutker/monitord/internal/errors"
	"github.com/spf13/afero"
)

// cliStrategy runs a vendor tool and parses its output. Tools that sample
// until killed set untilKilled so output captured before the timeout is used.
type cliStrategy struct {
	name        string
	runner      command.Runner
	path        string
	args        []string
	parse       func(string) (float64, bool)
	untilKilled bool
}

func (s *cliStrategy) Name() string { return s.name }

func (s *cliStrategy) Fetch(ctx context.Context) (float64, bool) {
	out, err := s.runner.Run(ctx, s.path, s.args...)
	if err != nil && !(s.untilKilled && errors.CodeOf(err) == errors.ErrTimeout) {
		return 0, false
	}

	return s.parse(out)
}

func nvidiaSMIStrategy(runner command.Runner, path string) Strategy {
	return &cliStrategy{
		name:   "nvidia-smi",
		runner: runner,
		path:   path,
		args:   []string{"--query-gpu=utilization.gpu", "--format=csv,noheader,nounits"},
		parse:  parseNvidiaSMI,
	}
}

func radeontopStrategy(runner command.Runner, path string) Strategy {
	return &cliStrategy{
		name:   "radeontop",
		runner: runner,
		path:   path,
		args:   []string{"-d", "-", "-l", "1"},
		parse:  parseRadeontop,
	}
}

// intelGPUTopStrategy runs intel_gpu_top, which has no sample count and prints
// until the runner's timeout kills it.
func intelGPUTopStrategy(runner command.Runner, path string) Strategy {
	return &cliStrategy{
		name:        "intel_gpu_top",
		runner:      runner,
		path:        path,
		args:        []string{"-J", "-s", "100"},
		parse:       parseIntelGPUTop,
		untilKilled: true,
	}
}

// parseNvidiaSMI reads the first line of csv,noheader,nounits output. Multi-GPU
// hosts print one line per device.
func parseNvidiaSMI(out string) (float64, bool) {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// parseRadeontop extracts the gpu percentage from a dump line such as
// "1700000000.123: bus 03, gpu 12.50%, ee 0.00%, ...".
func parseRadeontop(out string) (float64, bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "gpu") {
			continue
		}

		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "gpu" && i+1 < len(fields) {
				if v, ok := parsePercent(fields[i+1]); ok {
					return v, true
				}
			}
		}

		// "gpu 45.67%" shaped lines
		if len(fields) > 1 {
			if v, ok := parsePercent(fields[1]); ok {
				return v, true
			}
		}
	}

	return 0, false
}

func parsePercent(field string) (float64, bool) {
	field = strings.TrimSuffix(field, ",")
	num, ok := strings.CutSuffix(field, "%")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// parseIntelGPUTop takes the first "busy" value from intel_gpu_top's JSON
// stream without decoding it; the stream is an unterminated array.
func parseIntelGPUTop(out string) (float64, bool) {
	const key = `"busy":`

	idx := strings.Index(out, key)
	if idx < 0 {
		return 0, false
	}

	rest := strings.TrimLeft(out[idx+len(key):], " \t")
	end := strings.IndexFunc(rest, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if end < 0 {
		end = len(rest)
	}

	v, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// sysfsStrategy reads kernel-exposed attributes for each card and returns the
// first card that yields a value.
type sysfsStrategy struct {
	name string
	env  Env
	read func(fs afero.Fs, card string) (float64, bool)
}

func (s *sysfsStrategy) Name() string { return s.name }

func (s *sysfsStrategy) Fetch(_ context.Context) (float64, bool) {
	for _, card := range cards(s.env) {
		if v, ok := s.read(s.env.Fs, card); ok {
			return v, true
		}
	}

	return 0, false
}

func amdSysfsStrategy(env Env) Strategy {
	return &sysfsStrategy{name: "amdgpu-sysfs", env: env, read: amdBusyPercent}
}

func intelSysfsStrategy(env Env) Strategy {
	return &sysfsStrategy{name: "i915-sysfs", env: env, read: intelFrequencyPercent}
}

func amdBusyPercent(fs afero.Fs, card string) (float64, bool) {
	return readFloat(fs, filepath.Join(card, "device", "gpu_busy_percent"))
}

var intelFrequencyFiles = [][2]string{
	{"gt/gt0/rps_cur_freq_mhz", "gt/gt0/rps_max_freq_mhz"},
	{"gt_cur_freq_mhz", "gt_max_freq_mhz"},
}

func intelFrequencyPercent(fs afero.Fs, card string) (float64, bool) {
	for _, pair := range intelFrequencyFiles {
		cur, ok := readFloat(fs, filepath.Join(card, pair[0]))
		if !ok {
			continue
		}
		maxFreq, ok := readFloat(fs, filepath.Join(card, pair[1]))
		if !ok || maxFreq <= 0 {
			continue
		}

		return cur / maxFreq * 100, true
	}

	return 0, false
}

func readFloat(fs afero.Fs, path string) (float64, bool) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, false
	}

	return v, true
}
