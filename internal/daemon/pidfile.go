// Package daemon guards the bot against running twice on the same state
// directory.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the file.
var ErrAlreadyRunning = errors.New("already running")

// ErrNotRunning is returned when no live process holds the file.
var ErrNotRunning = errors.New("not running")

// PIDFile records the PID of the running bot.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire claims the file for the current process. A file left behind by a
// dead process is taken over. The returned release func removes the file.
func (p *PIDFile) Acquire() (release func(), err error) {
	if pid, alive := p.IsRunning(); alive && pid != os.Getpid() {
		return nil, fmt.Errorf("bot %w (pid %d, %s)", ErrAlreadyRunning, pid, p.Path)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}
	if err := p.write(os.Getpid()); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return func() {
		if pid, err := p.Read(); err == nil && pid == os.Getpid() {
			_ = os.Remove(p.Path)
		}
	}, nil
}

func (p *PIDFile) write(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read returns the PID stored in the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Stop signals the recorded process, failing with ErrNotRunning when there
// is none.
func (p *PIDFile) Stop(force bool) (int, error) {
	pid, alive := p.IsRunning()
	if !alive {
		return 0, fmt.Errorf("bot %w", ErrNotRunning)
	}
	if err := p.signal(pid, force); err != nil {
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return pid, nil
}
