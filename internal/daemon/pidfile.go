package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// PIDFile records the daemon's process ID on disk.
type PIDFile struct {
	path string
}

// NewPIDFile manages the PID file at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the PID file location.
func (p *PIDFile) Path() string { return p.path }

// Write records the current process ID.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.Wrap(errors.KindInternal, "create runtime directory", err).WithPath(p.path)
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return errors.Wrap(errors.KindInternal, "write PID file", err).WithPath(p.path)
	}
	return nil
}

// Read returns the recorded PID. A missing file reports KindChannel.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.New(errors.KindChannel, "daemon is not running").WithPath(p.path)
		}
		return 0, errors.Wrap(errors.KindChannel, "read PID file", err).WithPath(p.path)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.New(errors.KindChannel, "PID file is invalid").WithPath(p.path)
	}
	return pid, nil
}

// Remove deletes the PID file. Missing is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.KindInternal, "remove PID file", err).WithPath(p.path)
	}
	return nil
}

// IsRunning reports whether the recorded process is alive.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	return processExists(pid)
}

// ReclaimStale removes a PID file whose process has died. Returns true
// if a stale file was cleared.
func (p *PIDFile) ReclaimStale() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	if processExists(pid) {
		return false
	}
	_ = os.Remove(p.path)
	return true
}

// Signal delivers sig to the recorded process.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrap(errors.KindChannel, "find daemon process", err)
	}
	if err := proc.Signal(sig); err != nil {
		return errors.Wrap(errors.KindChannel, "signal daemon process", err)
	}
	return nil
}

// processExists probes pid with signal 0.
func processExists(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
