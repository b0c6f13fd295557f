package proc

import (
	"sort"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess is an in-memory process for exercising the Signaler without a
// real process table.
type fakeProcess struct {
	pid      int32
	name     string
	running  bool
	diesOn   syscall.Signal
	children []*fakeProcess
	user     string
	exe      string
	files    []string

	signals []syscall.Signal
}

var _ Process = (*fakeProcess)(nil)

func (f *fakeProcess) Pid() int32                { return f.pid }
func (f *fakeProcess) Name() (string, error)     { return f.name, nil }
func (f *fakeProcess) IsRunning() (bool, error)  { return f.running, nil }
func (f *fakeProcess) Username() (string, error) { return f.user, nil }
func (f *fakeProcess) Exe() (string, error)      { return f.exe, nil }

func (f *fakeProcess) OpenFiles() ([]string, error) { return f.files, nil }

func (f *fakeProcess) SendSignal(sig syscall.Signal) error {
	if !f.running {
		return syscall.ESRCH
	}
	f.signals = append(f.signals, sig)
	if sig == syscall.SIGKILL || (f.diesOn != 0 && sig == f.diesOn) {
		f.running = false
	}
	return nil
}

func (f *fakeProcess) Children() ([]Process, error) {
	procs := make([]Process, len(f.children))
	for i, c := range f.children {
		procs[i] = c
	}
	return procs, nil
}

// fakeTable builds a Signaler over a set of fake processes.
func fakeTable(procs ...*fakeProcess) *Signaler {
	return &Signaler{
		Find: func(pid int32) (Process, error) {
			for _, p := range procs {
				if p.pid == pid && p.running {
					return p, nil
				}
			}
			return nil, errors.New("no such process")
		},
		List: func() ([]Process, error) {
			all := make([]Process, len(procs))
			for i, p := range procs {
				all[i] = p
			}
			return all, nil
		},
	}
}

func TestTree(t *testing.T) {
	grandchild := &fakeProcess{pid: 3, running: true}
	child := &fakeProcess{pid: 2, running: true, children: []*fakeProcess{grandchild}}
	parent := &fakeProcess{pid: 1, running: true, children: []*fakeProcess{child}}

	s := fakeTable(parent, child, grandchild)

	tree, err := s.Tree(1)
	require.NoError(t, err)

	pids := make([]int32, len(tree))
	for i, p := range tree {
		pids[i] = p.Pid()
	}
	assert.Equal(t, []int32{1, 2, 3}, pids)
}

func TestTreeNoSuchProcess(t *testing.T) {
	s := fakeTable()

	tree, err := s.Tree(42)
	require.NoError(t, err)
	assert.Empty(t, tree)
}

func TestSignalRecursive(t *testing.T) {
	child := &fakeProcess{pid: 2, running: true}
	parent := &fakeProcess{pid: 1, running: true, children: []*fakeProcess{child}}

	s := fakeTable(parent, child)
	s.Terminate(1, true)

	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, parent.signals)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, child.signals)
}

func TestSignalSingle(t *testing.T) {
	child := &fakeProcess{pid: 2, running: true}
	parent := &fakeProcess{pid: 1, running: true, children: []*fakeProcess{child}}

	s := fakeTable(parent, child)
	s.Interrupt(1, false)

	assert.Equal(t, []syscall.Signal{syscall.SIGINT}, parent.signals)
	assert.Empty(t, child.signals)
}

func TestDieKillsSurvivors(t *testing.T) {
	// The child ignores SIGTERM and survives; the parent dies on SIGTERM and
	// drops out of the process table, taking the tree with it.
	child := &fakeProcess{pid: 2, running: true}
	parent := &fakeProcess{pid: 1, running: true, diesOn: syscall.SIGTERM,
		children: []*fakeProcess{child}}

	s := fakeTable(parent, child)
	s.Die(1, true)

	// The child was found during the SIGTERM sweep and must still receive
	// SIGKILL even though its parent is gone by then.
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, child.signals)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, parent.signals)
}

func TestInPath(t *testing.T) {
	inExe := &fakeProcess{pid: 1, running: true, user: "deploy", exe: "/srv/app/bin/serve"}
	inFiles := &fakeProcess{pid: 2, running: true, user: "deploy", exe: "/usr/bin/python",
		files: []string{"/srv/app/log/out.log"}}
	otherPath := &fakeProcess{pid: 3, running: true, user: "deploy", exe: "/usr/bin/sshd"}
	otherUser := &fakeProcess{pid: 4, running: true, user: "root", exe: "/srv/app/bin/worker"}

	s := fakeTable(inExe, inFiles, otherPath, otherUser)

	procs, err := s.InPath("/srv/app", "deploy")
	require.NoError(t, err)

	var pids []int32
	for _, p := range procs {
		pids = append(pids, p.Pid())
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	assert.Equal(t, []int32{1, 2}, pids)

	// No owner filter picks up the other user's process too.
	procs, err = s.InPath("/srv/app", "")
	require.NoError(t, err)
	assert.Len(t, procs, 3)
}
