package gpu

import (
	"bufio"
	"bytes"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Env is the slice of the host that detection and the sysfs strategies look at.
type Env struct {
	Fs       afero.Fs
	LookPath func(file string) (string, error)
	DRMRoot  string
}

func (e Env) withDefaults() Env {
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.LookPath == nil {
		e.LookPath = exec.LookPath
	}
	if e.DRMRoot == "" {
		e.DRMRoot = DefaultDRMRoot
	}

	return e
}

const DefaultDRMRoot = "/sys/class/drm"

type tool struct {
	name  string
	paths []string
}

var (
	toolNvidiaSMI   = tool{"nvidia-smi", []string{"/usr/bin/nvidia-smi"}}
	toolRadeontop   = tool{"radeontop", []string{"/usr/bin/radeontop"}}
	toolROCmSMI     = tool{"rocm-smi", []string{"/opt/rocm/bin/rocm-smi"}}
	toolIntelGPUTop = tool{"intel_gpu_top", []string{"/usr/bin/intel_gpu_top"}}
)

// resolve finds t on PATH or at one of its well-known locations.
func (e Env) resolve(t tool) (string, bool) {
	if path, err := e.LookPath(t.name); err == nil {
		return path, true
	}
	for _, p := range t.paths {
		if ok, _ := afero.Exists(e.Fs, p); ok {
			return p, true
		}
	}

	return "", false
}

// Detect probes for vendor tools in priority order, then falls back to the
// kernel driver bound to each DRM card.
func Detect(env Env) Vendor {
	env = env.withDefaults()

	if _, ok := env.resolve(toolNvidiaSMI); ok {
		return VendorNvidia
	}
	if _, ok := env.resolve(toolRadeontop); ok {
		return VendorAMD
	}
	if _, ok := env.resolve(toolROCmSMI); ok {
		return VendorAMD
	}
	if _, ok := env.resolve(toolIntelGPUTop); ok {
		return VendorIntel
	}

	for _, card := range cards(env) {
		switch driverOf(env, card) {
		case "amdgpu":
			return VendorAMD
		case "i915", "xe":
			return VendorIntel
		}
	}

	return VendorNone
}

// cards lists card device directories (card0, card1, ...) in name order,
// skipping connector entries such as card0-DP-1.
func cards(env Env) []string {
	entries, err := afero.ReadDir(env.Fs, env.DRMRoot)
	if err != nil {
		return nil
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "card") && !strings.Contains(name, "-") {
			out = append(out, filepath.Join(env.DRMRoot, name))
		}
	}
	sort.Strings(out)

	return out
}

func driverOf(env Env, card string) string {
	if data, err := afero.ReadFile(env.Fs, filepath.Join(card, "device", "uevent")); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			if driver, ok := strings.CutPrefix(sc.Text(), "DRIVER="); ok {
				return strings.TrimSpace(driver)
			}
		}
	}

	if lr, ok := env.Fs.(afero.LinkReader); ok {
		if target, err := lr.ReadlinkIfPossible(filepath.Join(card, "device", "driver")); err == nil {
			return filepath.Base(target)
		}
	}

	return ""
}
