// Package sshrun runs remote commands through the system ssh client. The
// command is written to the remote shell's stdin instead of being passed on
// the ssh command line, which sidesteps a whole class of quoting problems.
// Every relayed output line is prefixed with a padded, colored
// [user@host:port] tag so output from several hosts can be told apart.
package sshrun

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"

	"github.com/reversefold/util/multiproc"
)

// IdentityEnv is the environment variable holding the path of an ssh
// identity file to use.
const IdentityEnv = "IDENTITY"

// ExitError reports a remote command that exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ssh exited with status %d", e.Code)
}

// Host runs commands on a single remote host.
type Host struct {
	Host string
	Port int    // 0 uses ssh's default
	User string // empty uses ssh's default

	// OutputPrefix goes in front of the host tag on every relayed line.
	OutputPrefix string
	// PrefixPadLength pads the host tag so multiple hosts line up.
	PrefixPadLength int
	// ConnectTimeout is in seconds; 0 disables the ConnectTimeout option.
	ConnectTimeout int
	// Cipher selects an ssh -c cipher; empty uses ssh's default.
	Cipher string
	// CheckHostKeys leaves ssh's host key verification on. Off by default
	// since cloud hosts churn keys constantly.
	CheckHostKeys bool
	// LogLevel is passed to ssh's LogLevel option; empty omits it.
	LogLevel string

	// Output receives each relayed line. Defaults to stdout.
	Output func(string)
}

// New returns a Host with the usual defaults: 5s connect timeout, host key
// checks off, ssh log level ERROR, tags padded to 28 columns.
func New(host string) *Host {
	return &Host{
		Host:            host,
		PrefixPadLength: 28,
		ConnectTimeout:  5,
		LogLevel:        "ERROR",
	}
}

// RunOptions modify a single remote invocation.
type RunOptions struct {
	// Dir changes to this remote directory before running the command.
	Dir string
	// Echo relays the command itself before its output.
	Echo bool
}

// Run runs the command remotely under /bin/bash.
func (h *Host) Run(ctx context.Context, command string, opts RunOptions) (multiproc.Result, error) {
	return h.run(ctx, "/bin/bash", command, opts)
}

// Sudo runs the command remotely under sudo /bin/bash.
func (h *Host) Sudo(ctx context.Context, command string, opts RunOptions) (multiproc.Result, error) {
	return h.run(ctx, "sudo /bin/bash", command, opts)
}

func (h *Host) run(ctx context.Context, executable, command string, opts RunOptions) (multiproc.Result, error) {
	args := h.sshArgs()
	args = append(args, h.Host)
	args = append(args, strings.Fields(executable)...)

	script := strings.Builder{}
	if opts.Dir != "" {
		cd := fmt.Sprintf("cd '%s'", escapeSingleQuotes(opts.Dir))
		if opts.Echo {
			h.Puts(cd)
		}
		script.WriteString(cd)
		script.WriteByte('\n')
	}
	if opts.Echo {
		h.Puts(command)
	}
	script.WriteString(command)
	script.WriteByte('\n')

	cmd := exec.CommandContext(ctx, "ssh", args...)
	cmd.Stdin = strings.NewReader(script.String())

	runOpts := multiproc.DefaultOptions()
	runOpts.Output = h.Puts

	res, err := multiproc.Run(cmd, runOpts)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Code: exitErr.ExitCode()}
		}
		return res, errors.Wrap(err, "failed to run ssh")
	}

	return res, nil
}

// Puts writes a line to the host's output, prefixed with the host tag. Bytes
// that do not form valid UTF-8 are replaced so terminal state cannot be
// corrupted by remote noise.
func (h *Host) Puts(line string) {
	out := h.Output
	if out == nil {
		out = func(l string) { fmt.Println(l) }
	}

	out(h.fullPrefix() + " " + strings.ToValidUTF8(line, "?"))
}

func (h *Host) fullPrefix() string {
	label := h.Host
	if h.User != "" {
		label = h.User + "@" + label
	}
	if h.Port != 0 {
		label += ":" + strconv.Itoa(h.Port)
	}

	tag := "[" + text.FgHiBlue.Sprint(label) + "]"
	if pad := h.PrefixPadLength - (len(label) + 2); pad > 0 {
		tag += strings.Repeat(" ", pad)
	}

	return h.OutputPrefix + tag
}

// sshArgs builds the ssh client options.
func (h *Host) sshArgs() []string {
	args := []string{
		// Compress; remote command output is usually text.
		"-C",

		// Don't fall back to asking for a password when key auth fails.
		"-o", "BatchMode=yes",

		// Keep the connection alive as long as the command needs.
		"-o", "ServerAliveInterval=5",
	}

	if !h.CheckHostKeys {
		args = append(args,
			"-o", "UserKnownHostsFile=/dev/null",
			"-o", "StrictHostKeyChecking=no",
		)
	}

	if h.LogLevel != "" {
		args = append(args, "-o", "LogLevel="+h.LogLevel)
	}

	if h.Cipher != "" {
		args = append(args, "-c", h.Cipher)
	}

	if h.Port != 0 {
		args = append(args, "-p", strconv.Itoa(h.Port))
	}

	if h.User != "" {
		args = append(args, "-l", h.User)
	}

	if h.ConnectTimeout != 0 {
		args = append(args, "-o", fmt.Sprintf("ConnectTimeout=%d", h.ConnectTimeout))
	}

	if identity := os.Getenv(IdentityEnv); identity != "" {
		args = append(args, "-o", "IdentityFile="+identity)
	}

	return args
}

func escapeSingleQuotes(val string) string {
	return strings.ReplaceAll(val, "'", `'"'"'`)
}
