package proc

import (
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// gopsProcess adapts gopsutil's process type to the Process interface.
type gopsProcess struct {
	p *process.Process
}

var _ Process = gopsProcess{}

func findProcess(pid int32) (Process, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return gopsProcess{p}, nil
}

func listProcesses() ([]Process, error) {
	ps, err := process.Processes()
	if err != nil {
		return nil, err
	}

	procs := make([]Process, len(ps))
	for i, p := range ps {
		procs[i] = gopsProcess{p}
	}
	return procs, nil
}

func (g gopsProcess) Pid() int32 { return g.p.Pid }

func (g gopsProcess) Name() (string, error) { return g.p.Name() }

func (g gopsProcess) IsRunning() (bool, error) { return g.p.IsRunning() }

func (g gopsProcess) SendSignal(sig syscall.Signal) error { return g.p.SendSignal(sig) }

func (g gopsProcess) Children() ([]Process, error) {
	children, err := g.p.Children()
	if err != nil {
		return nil, err
	}

	procs := make([]Process, len(children))
	for i, c := range children {
		procs[i] = gopsProcess{c}
	}
	return procs, nil
}

func (g gopsProcess) Username() (string, error) { return g.p.Username() }

func (g gopsProcess) Exe() (string, error) { return g.p.Exe() }

func (g gopsProcess) OpenFiles() ([]string, error) {
	files, err := g.p.OpenFiles()
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// isGone reports whether a signal failed because the process no longer
// exists.
func isGone(err error) bool {
	if err == process.ErrorProcessNotRunning {
		return true
	}
	return err == syscall.ESRCH
}
