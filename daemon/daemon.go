// Package daemon runs a foreground command detached from the terminal,
// capturing its stdout and stderr into rotation-friendly log files and
// recording its lifecycle in a journal. The supervisor exits when the
// command exits.
package daemon

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/reversefold/util/multiproc"
)

// StderrToStdout is the special stderr log value that merges stderr into the
// stdout log.
const StderrToStdout = "STDOUT"

// WaitTimeout is the time to wait for the command to gracefully exit on
// shutdown before SIGKILLing it.
var WaitTimeout = time.Minute

// PumpTimeout bounds how long the output pumps are waited on after the
// command exits. A grandchild holding the pipe open must not keep the
// supervisor alive forever.
var PumpTimeout = 5 * time.Second

// ExitStatus is the supervised command's exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 if interrupted or terminated
	Error error
}

// child abstracts the supervised process for testing.
type child interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	Wait() ExitStatus
}

// Daemon supervises a single command.
type Daemon struct {
	WaitTimeout time.Duration
	PumpTimeout time.Duration

	// TimeLayout, if set, prefixes every captured line with the current time
	// in this layout.
	TimeLayout string

	// StdoutLog and StderrLog are the capture log paths. StderrLog may be
	// StderrToStdout to merge both streams.
	StdoutLog string
	StderrLog string

	// Log rotation knobs, passed through to the log writers. Zero values use
	// the writers' defaults.
	MaxLogSize    int // megabytes
	MaxLogBackups int
	MaxLogAge     int // days

	// AppPIDFile, if set, records the child's pid for the child's lifetime.
	AppPIDFile string

	j   Journaler
	log *zap.Logger

	command []string

	// startProc is swapped out by tests.
	startProc func(stdout, stderr *os.File) (child, error)
}

// New creates a daemon that will run the given command.
func New(command []string, j Journaler, log *zap.Logger) *Daemon {
	if j == nil {
		j = nopJournaler{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Daemon{
		WaitTimeout: WaitTimeout,
		PumpTimeout: PumpTimeout,
		StdoutLog:   "log/stdout.log",
		StderrLog:   "log/stderr.log",
		j:           j,
		log:         log,
		command:     command,
	}

	d.startProc = func(stdout, stderr *os.File) (child, error) {
		cmd := exec.Command(command[0], command[1:]...)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return osChild{cmd}, nil
	}

	return d
}

// Run starts the command and supervises it until it exits or ctx is
// canceled. It returns the command's exit code. SIGHUP rotates the capture
// logs.
func (d *Daemon) Run(ctx context.Context) (int, error) {
	if len(d.command) == 0 {
		return 0, errors.New("no command to run")
	}

	outLog := d.logWriter(d.StdoutLog)
	defer outLog.Close()

	errLog := outLog
	if d.StderrLog != StderrToStdout {
		errLog = d.logWriter(d.StderrLog)
		defer errLog.Close()
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return 0, errors.Wrap(err, "failed to create stdout pipe")
	}
	defer outR.Close()

	errR, errW, err := os.Pipe()
	if err != nil {
		outW.Close()
		return 0, errors.Wrap(err, "failed to create stderr pipe")
	}
	defer errR.Close()

	proc, err := d.startProc(outW, errW)

	// The parent's copies must be closed either way so the pumps see EOF
	// when the child side does close.
	outW.Close()
	errW.Close()

	if err != nil {
		d.j.Write(&EventSpawnError{Command: d.command, Reason: err.Error()})
		return 0, errors.Wrap(err, "failed to start command")
	}

	d.j.Write(&EventSpawned{PID: proc.PID(), Command: d.command})
	d.log.Info("command spawned", zap.Int("pid", proc.PID()))

	if d.AppPIDFile != "" {
		if err := WritePIDFile(d.AppPIDFile, proc.PID()); err != nil {
			d.j.Write(&EventWarning{Component: "app-pidfile", Error: err.Error()})
		} else {
			defer os.Remove(d.AppPIDFile)
		}
	}

	var wg sync.WaitGroup
	for _, pump := range []*multiproc.LinePipe{
		multiproc.NewStreamPipe("", outR, d.logLine(outLog), ""),
		multiproc.NewStreamPipe("", errR, d.logLine(errLog), ""),
	} {
		wg.Add(1)
		go func(p *multiproc.LinePipe) {
			defer wg.Done()
			p.Flow()
		}(pump)
	}

	exited := make(chan ExitStatus, 1)
	go func() { exited <- proc.Wait() }()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var status ExitStatus

wait:
	for {
		select {
		case status = <-exited:
			break wait

		case <-ctx.Done():
			status = d.stop(proc, exited)
			break wait

		case <-hup:
			d.rotate(outLog, errLog)
		}
	}

	// Bounded join: grandchildren can hold the pipes open long after the
	// command itself is gone.
	pumpsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(pumpsDone)
	}()

	select {
	case <-pumpsDone:
	case <-time.After(d.PumpTimeout):
		d.j.Write(&EventWarning{
			Component: "pump",
			Error:     "timed out waiting for output pumps to drain",
		})
		// Force the pumps loose; the deferred closes also cover errors.
		outR.Close()
		errR.Close()
	}

	ev := EventExited{PID: status.PID, ExitCode: status.Code}
	if status.Error != nil {
		ev.Error = status.Error.Error()
	}
	d.j.Write(&ev)

	return status.Code, nil
}

// stop interrupts the command and waits for it to exit, SIGKILLing it when
// the wait timeout passes.
func (d *Daemon) stop(proc child, exited <-chan ExitStatus) ExitStatus {
	if err := proc.Signal(os.Interrupt); err != nil {
		// Can't even interrupt it; go straight for the kill.
		proc.Kill()
	}

	after := time.NewTimer(d.WaitTimeout)
	defer after.Stop()

	select {
	case <-after.C:
		// Timeout reached and the command still hasn't exited. Send SIGKILL
		// and wait it out, since there's not much else we can do here.
		proc.Kill()
		return <-exited

	case status := <-exited:
		return status
	}
}

func (d *Daemon) logWriter(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    d.MaxLogSize,
		MaxBackups: d.MaxLogBackups,
		MaxAge:     d.MaxLogAge,
	}
}

// logLine writes a captured line into w, prefixed with the configured time
// layout.
func (d *Daemon) logLine(w *lumberjack.Logger) func(string) {
	return func(line string) {
		if d.TimeLayout != "" {
			line = time.Now().Format(d.TimeLayout) + " " + line
		}
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			d.log.Warn("capture log write failed", zap.Error(err))
		}
	}
}

func (d *Daemon) rotate(logs ...*lumberjack.Logger) {
	seen := map[*lumberjack.Logger]bool{}
	for _, l := range logs {
		if seen[l] {
			continue
		}
		seen[l] = true

		if err := l.Rotate(); err != nil {
			d.j.Write(&EventWarning{Component: "rotate", Error: err.Error()})
			continue
		}
		d.j.Write(&EventLogTruncated{Reason: "rotated on SIGHUP"})
	}
}

// osChild is the real child implementation over os/exec.
type osChild struct {
	cmd *exec.Cmd
}

func (c osChild) PID() int { return c.cmd.Process.Pid }

func (c osChild) Signal(sig os.Signal) error { return c.cmd.Process.Signal(sig) }

func (c osChild) Kill() error { return c.cmd.Process.Kill() }

func (c osChild) Wait() ExitStatus {
	err := c.cmd.Wait()

	status := ExitStatus{PID: c.cmd.Process.Pid, Code: -1}
	if c.cmd.ProcessState != nil {
		status.Code = c.cmd.ProcessState.ExitCode()
	}

	// A non-zero exit already shows in Code; only infrastructure failures
	// count as errors.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Error = err
	}

	return status
}

// detachEnv marks a process as the detached copy of itself.
const detachEnv = "REVUTIL_DAEMONIZED"

// Detach re-executes the current binary in a new session with its standard
// streams dropped. It returns true in the parent, whose only remaining job
// is to exit; the detached copy sees the marker environment and returns
// false.
func Detach() (parent bool, err error) {
	if os.Getenv(detachEnv) != "" {
		return false, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return false, errors.Wrap(err, "cannot find own executable")
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return false, errors.Wrap(err, "failed to re-execute detached")
	}

	// The detached copy is on its own now.
	cmd.Process.Release()
	return true, nil
}
