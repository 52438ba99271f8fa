package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned by Acquire when another process holds the
// lock.
var ErrAlreadyRunning = errors.New("daemon is already running")

// ErrNotRunning is returned by Stop when no daemon holds the lock.
var ErrNotRunning = errors.New("daemon is not running")

// Daemon guards a PID file with an advisory lock on a sibling ".lock" file.
// The lock, not the PID file, decides whether a daemon is alive, so a stale
// PID file left by a crash never blocks a new start.
type Daemon struct {
	pidFile string
	lock    *flock.Flock
}

func New(pidFile string) *Daemon {
	return &Daemon{
		pidFile: pidFile,
		lock:    flock.New(pidFile + ".lock"),
	}
}

// Acquire takes the lock and records this process's PID.
func (d *Daemon) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock PID file: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}

	if err := d.WritePID(); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	return nil
}

// Release removes the PID file and drops the lock.
func (d *Daemon) Release() error {
	err := d.RemovePID()
	if uerr := d.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("failed to unlock PID file: %w", uerr)
	}
	return err
}

func (d *Daemon) WritePID() error {
	pid := os.Getpid()
	return os.WriteFile(d.pidFile, fmt.Appendf([]byte{}, "%d", pid), 0644)
}

func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

func (d *Daemon) RemovePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether some process holds the lock, and its PID.
func (d *Daemon) IsRunning() (bool, int, error) {
	if d.lock.Locked() {
		return true, os.Getpid(), nil
	}

	probe := flock.New(d.lock.Path())
	free, err := probe.TryLock()
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to probe lock: %w", err)
	}
	if free {
		_ = probe.Unlock()
		_ = d.RemovePID()
		return false, 0, nil
	}

	pid, err := d.ReadPID()
	if err != nil {
		return true, 0, err
	}
	return true, pid, nil
}

// Stop sends SIGTERM to the running daemon and waits up to timeout for it
// to release the lock.
func (d *Daemon) Stop(timeout time.Duration) error {
	running, pid, err := d.IsRunning()
	if err != nil {
		return fmt.Errorf("error checking daemon status: %w", err)
	}

	if !running || pid == 0 {
		return ErrNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			_ = d.RemovePID()
			return fmt.Errorf("daemon process already terminated")
		}
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if running, _, _ := d.IsRunning(); !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon (PID %d) did not exit within %v", pid, timeout)
}
