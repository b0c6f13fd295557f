// Package proc signals processes and process trees. Signals are delivered on
// a best-effort basis: a process disappearing mid-sweep is normal and never
// an error, and one process refusing a signal does not stop the sweep.
package proc

import (
	"os/user"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Process is the subset of process inspection and signaling this package
// needs, abstracted so that tests can substitute fakes.
type Process interface {
	Pid() int32
	Name() (string, error)
	IsRunning() (bool, error)
	SendSignal(sig syscall.Signal) error
	Children() ([]Process, error)
	Username() (string, error)
	Exe() (string, error)
	OpenFiles() ([]string, error)
}

// Signaler sends signals to processes and process trees. NewSignaler returns
// one backed by the real process table; tests override Find and List.
type Signaler struct {
	// Find returns the process with the given PID or an error if it does not
	// exist.
	Find func(pid int32) (Process, error)
	// List returns all visible processes.
	List func() ([]Process, error)
	// Log receives per-process signal failures. Defaults to a nop logger.
	Log *zap.Logger
}

// NewSignaler creates a Signaler over the system process table.
func NewSignaler() *Signaler {
	return &Signaler{
		Find: findProcess,
		List: listProcesses,
		Log:  zap.NewNop(),
	}
}

func (s *Signaler) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Tree returns the process with the given PID followed by all of its
// descendants. A PID with no process returns an empty tree.
func (s *Signaler) Tree(pid int32) ([]Process, error) {
	root, err := s.Find(pid)
	if err != nil {
		return nil, nil
	}

	tree := []Process{root}
	for i := 0; i < len(tree); i++ {
		children, err := tree[i].Children()
		if err != nil {
			// A process that died while being walked has no children left.
			continue
		}
		tree = append(tree, children...)
	}

	return tree, nil
}

// Signal sends sig to the process, or to its whole tree when recursive is
// set. The processes that were targeted are returned.
func (s *Signaler) Signal(pid int32, sig syscall.Signal, recursive bool) []Process {
	return s.signal(pid, sig, recursive, nil)
}

// signal targets the process or tree of pid. When accum is non-nil, targeted
// processes are merged into it and the whole accumulated set is signaled,
// so children found by an earlier sweep still get later signals even if the
// parent is already gone.
func (s *Signaler) signal(pid int32, sig syscall.Signal, recursive bool, accum map[int32]Process) []Process {
	var procs []Process

	if recursive {
		tree, _ := s.Tree(pid)
		if accum != nil {
			for _, p := range tree {
				accum[p.Pid()] = p
			}
			procs = make([]Process, 0, len(accum))
			for _, p := range accum {
				procs = append(procs, p)
			}
		} else {
			procs = tree
		}
	} else if p, err := s.Find(pid); err == nil {
		procs = []Process{p}
	}

	for _, p := range procs {
		running, err := p.IsRunning()
		if err != nil || !running {
			continue
		}
		if err := p.SendSignal(sig); err != nil && !isGone(err) {
			s.log().Warn("failed to signal process",
				zap.Int32("pid", p.Pid()),
				zap.String("signal", sig.String()),
				zap.Error(err))
		}
	}

	return procs
}

// Interrupt sends SIGINT.
func (s *Signaler) Interrupt(pid int32, recursive bool) {
	s.Signal(pid, syscall.SIGINT, recursive)
}

// Terminate sends SIGTERM.
func (s *Signaler) Terminate(pid int32, recursive bool) {
	s.Signal(pid, syscall.SIGTERM, recursive)
}

// Kill sends SIGKILL.
func (s *Signaler) Kill(pid int32, recursive bool) {
	s.Signal(pid, syscall.SIGKILL, recursive)
}

// Die terminates the process (or tree) and then kills whatever survived.
// The kill sweep covers the union of both sweeps' targets, so a child that
// outlives its terminated parent is still killed.
func (s *Signaler) Die(pid int32, recursive bool) {
	var accum map[int32]Process
	if recursive {
		accum = make(map[int32]Process)
	}

	s.signal(pid, syscall.SIGTERM, recursive, accum)
	s.signal(pid, syscall.SIGKILL, recursive, accum)
}

// InPath returns the processes whose executable or open files live under
// path. owner filters by the owning user's name; the empty owner disables
// the filter. CurrentUser is the usual owner argument.
func (s *Signaler) InPath(path, owner string) ([]Process, error) {
	all, err := s.List()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processes")
	}

	var procs []Process
	for _, p := range all {
		if owner != "" {
			username, err := p.Username()
			if err != nil || username != owner {
				continue
			}
		}

		if exe, err := p.Exe(); err == nil && strings.HasPrefix(exe, path) {
			procs = append(procs, p)
			continue
		}

		files, err := p.OpenFiles()
		if err != nil {
			// Access to another user's file table is commonly denied.
			continue
		}
		for _, f := range files {
			if strings.HasPrefix(f, path) {
				procs = append(procs, p)
				break
			}
		}
	}

	return procs, nil
}

// CurrentUser returns the name of the user running this process.
func CurrentUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", errors.Wrap(err, "failed to look up current user")
	}
	return u.Username, nil
}
