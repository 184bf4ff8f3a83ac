// Package pid keeps a single daemon instance per machine through a PID file.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/monitord/internal/errors"
)

const (
	fileName = "monitord.pid"
	filePerm = 0o600
)

// File is an acquired PID file.
type File struct {
	path string
	pid  int
}

// DefaultPath returns the PID file location in the temp directory.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), fileName)
}

// Acquire writes the current process ID to path, or to DefaultPath when path
// is empty. It fails with ErrAlreadyRunning when the file names a live
// process; a stale or unreadable file is replaced.
func Acquire(path string) (*File, error) {
	errFactory := errors.New()

	if path == "" {
		path = DefaultPath()
	}

	if other, ok := readPID(path); ok && other != os.Getpid() && alive(other) {
		return nil, errFactory.WithData(errors.ErrAlreadyRunning, struct {
			Path string
			PID  int
		}{
			Path: path,
			PID:  other,
		})
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), filePerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return &File{path: path, pid: pid}, nil
}

func (f *File) Path() string {
	return f.path
}

// Remove deletes the PID file if it still names this process.
func (f *File) Remove() error {
	errFactory := errors.New()

	if owner, ok := readPID(f.path); !ok || owner != f.pid {
		return nil
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
