package pid

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/umctl/internal/errors"
)

const (
	pidPrefix     = "umctl"
	pidSuffix     = ".pid"
	defaultTarget = "default"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Path returns the PID file used for a device target.
func Path(device string) string {
	return filepath.Join(os.TempDir(), fileName(device))
}

func fileName(device string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(device, "_"), "_")
	if name == "" {
		name = defaultTarget
	}

	return pidPrefix + "-" + name + pidSuffix
}

// Write claims the device target for the current process. It fails with
// ErrAlreadyRunning if a live process already holds it; stale files are
// replaced.
func Write(device string) error {
	errFactory := errors.New()
	path := Path(device)

	if bytes, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(bytes))); err == nil && alive(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Device string
				PID    int
			}{device, pid})
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(device string) error {
	if err := os.Remove(Path(device)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
