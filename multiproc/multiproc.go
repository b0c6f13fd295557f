// Package multiproc captures subprocess output. Each output stream is pumped
// on its own goroutine into a buffer owned by that pump, which avoids the
// usual deadlock of reading stdout and stderr sequentially. There is no
// ordering guarantee between the two streams.
package multiproc

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
)

// Default stream tags: stdout green, stderr red with the rest of the line
// colored to match.
var (
	DefaultOutPrefix  = "[" + text.FgGreen.Sprint("out") + "] "
	DefaultOutPostfix = ""
	DefaultErrPrefix  = "[" + text.FgRed.Sprint("err") + "]" + text.FgRed.EscapeSeq() + " "
	DefaultErrPostfix = text.EscapeReset
)

// Pipe pumps raw chunks from a reader to an output function until the reader
// is closed.
type Pipe struct {
	r   io.Reader
	out func([]byte)
}

// NewPipe creates a raw chunk pump.
func NewPipe(r io.Reader, out func([]byte)) *Pipe {
	return &Pipe{r: r, out: out}
}

// Flow reads until the stream ends. It is meant to run on its own goroutine.
func (p *Pipe) Flow() {
	buf := make([]byte, 64*1024)
	for {
		n, err := p.r.Read(buf)
		if n > 0 {
			p.out(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}

// LinePipe pumps lines from a reader into its own buffer, writing a prefixed
// rendition of each line to the output function as it arrives.
type LinePipe struct {
	Prefix  string
	Postfix string

	r       io.Reader
	out     func(string)
	discard bool

	mu    sync.Mutex
	lines []string
}

// NewLinePipe creates a line pump. out may be nil to only capture.
func NewLinePipe(prefix string, r io.Reader, out func(string), postfix string) *LinePipe {
	return &LinePipe{
		Prefix:  prefix,
		Postfix: postfix,
		r:       r,
		out:     out,
	}
}

// NewStreamPipe creates a line pump that only relays lines without keeping
// them, for streams that run unbounded.
func NewStreamPipe(prefix string, r io.Reader, out func(string), postfix string) *LinePipe {
	p := NewLinePipe(prefix, r, out, postfix)
	p.discard = true
	return p
}

// Flow reads until the stream ends. It is meant to run on its own goroutine.
func (p *LinePipe) Flow() {
	scanner := bufio.NewScanner(p.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if !p.discard {
			p.mu.Lock()
			p.lines = append(p.lines, line)
			p.mu.Unlock()
		}

		if p.out != nil {
			p.out(p.Prefix + line + p.Postfix)
		}
	}
}

// Lines returns the lines captured so far.
func (p *LinePipe) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.lines...)
}

// Options control how Run renders the output it relays.
type Options struct {
	// Prefix is prepended to both stream tags.
	Prefix string
	// Output receives each rendered line. Defaults to stdout.
	Output func(string)

	OutPrefix  string
	OutPostfix string
	ErrPrefix  string
	ErrPostfix string
}

// DefaultOptions returns Options with the default colored stream tags.
func DefaultOptions() Options {
	return Options{
		OutPrefix:  DefaultOutPrefix,
		OutPostfix: DefaultOutPostfix,
		ErrPrefix:  DefaultErrPrefix,
		ErrPostfix: DefaultErrPostfix,
	}
}

// Result holds the captured output of a subprocess, one entry per line.
type Result struct {
	Stdout []string
	Stderr []string
}

// Proc is a started command whose output pumps are running. Exactly one of
// Wait or Terminate must be called to reap the command.
type Proc struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	outPipe *LinePipe
	errPipe *LinePipe
	wg      sync.WaitGroup
}

// Start starts cmd with both output streams pumped like Run, but returns as
// soon as the command is running.
func Start(cmd *exec.Cmd, opts Options) (*Proc, error) {
	if opts.Output == nil {
		opts.Output = func(line string) { fmt.Println(line) }
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to pipe stdout")
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to pipe stderr")
	}

	p := &Proc{
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		outPipe: NewLinePipe(opts.Prefix+opts.OutPrefix, stdout, opts.Output, opts.OutPostfix),
		errPipe: NewLinePipe(opts.Prefix+opts.ErrPrefix, stderr, opts.Output, opts.ErrPostfix),
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start command")
	}

	for _, pipe := range []*LinePipe{p.errPipe, p.outPipe} {
		p.wg.Add(1)
		go func(pipe *LinePipe) {
			defer p.wg.Done()
			pipe.Flow()
		}(pipe)
	}

	return p, nil
}

// Wait joins the pumps and reaps the command. Result is complete when Wait
// returns. The command's exit error, if any, is returned as is.
func (p *Proc) Wait() (Result, error) {
	// The pipes must be drained before cmd.Wait closes them.
	p.wg.Wait()

	err := p.cmd.Wait()
	return p.result(), err
}

// Terminate stops a command that is not expected to exit on its own: the
// pipes are closed, the pumps joined, the command terminated and reaped.
// The output captured so far is returned with the command's exit error.
func (p *Proc) Terminate() (Result, error) {
	p.stdout.Close()
	p.stderr.Close()
	p.wg.Wait()

	// Best effort; the command may already be gone.
	p.cmd.Process.Signal(syscall.SIGTERM)

	err := p.cmd.Wait()
	return p.result(), err
}

func (p *Proc) result() Result {
	return Result{Stdout: p.outPipe.Lines(), Stderr: p.errPipe.Lines()}
}

// Run starts cmd, relays its stdout and stderr through the options' output
// function while capturing both, waits for the command to exit and returns
// the captured lines. The command's exit error, if any, is returned as is.
func Run(cmd *exec.Cmd, opts Options) (Result, error) {
	p, err := Start(cmd, opts)
	if err != nil {
		return Result{}, err
	}
	return p.Wait()
}
