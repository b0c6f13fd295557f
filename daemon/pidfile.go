package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrLockedElsewhere is returned when another live process holds the
// pidfile.
var ErrLockedElsewhere = errors.New("pidfile held by another process")

// PIDFile is a flock-guarded pidfile holding this process' pid.
type PIDFile struct {
	path string
	l    *flock.Flock
}

// AcquirePIDFile locks path and writes the current pid into it. A pidfile
// left behind by a dead process is broken and re-acquired; the staleness
// check runs under a secondary acquire lock so two starters cannot both
// break the same stale lock.
func AcquirePIDFile(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create pidfile directory")
	}

	acquirePath := path + ".acquirelock"
	acquire := flock.New(acquirePath)

	locked, err := acquire.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lock %s", acquirePath)
	}
	if !locked {
		// Someone else is in the middle of the staleness check.
		return nil, ErrLockedElsewhere
	}
	defer func() {
		acquire.Unlock()
		os.Remove(acquirePath)
	}()

	if pid, err := ReadPIDFile(path); err == nil && pidAlive(pid) {
		return nil, ErrLockedElsewhere
	}

	l := flock.New(path)
	locked, err = l.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lock %s", path)
	}
	if !locked {
		return nil, ErrLockedElsewhere
	}

	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(pid), 0600); err != nil {
		l.Unlock()
		return nil, errors.Wrap(err, "failed to write pidfile")
	}

	return &PIDFile{path: path, l: l}, nil
}

// Release removes the pidfile and drops the lock.
func (p *PIDFile) Release() error {
	os.Remove(p.path)
	return p.l.Unlock()
}

// ReadPIDFile returns the pid recorded in the file at path.
func ReadPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, errors.Wrapf(err, "malformed pidfile %s", path)
	}

	return pid, nil
}

// WritePIDFile records a pid (usually a child's) into path.
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return errors.Wrap(err, "failed to create pidfile directory")
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600)
	return errors.Wrap(err, "failed to write pidfile")
}

// pidAlive reports whether a process with the given pid exists. EPERM still
// means the process exists, just owned by someone else.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
