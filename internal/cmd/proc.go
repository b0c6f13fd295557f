package cmd

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/reversefold/util/proc"
)

var procCmd = &cobra.Command{
	Use:   "proc",
	Short: "Inspect and signal processes and process trees",
}

func parsePID(arg string) (int32, error) {
	pid, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid pid %q", arg)
	}
	return int32(pid), nil
}

func newProcSignaler() *proc.Signaler {
	s := proc.NewSignaler()
	s.Log = logger
	return s
}

// parseSignal accepts a signal number, a name like SIGTERM, or the bare name
// TERM.
func parseSignal(arg string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		return syscall.Signal(n), nil
	}

	name := strings.ToUpper(arg)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	if sig := unix.SignalNum(name); sig != 0 {
		return sig, nil
	}
	return 0, errors.Errorf("unknown signal %q", arg)
}

var procTreeCmd = &cobra.Command{
	Use:   "tree <pid>",
	Short: "Show a process and all of its descendants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}

		tree, err := newProcSignaler().Tree(pid)
		if err != nil {
			return err
		}

		renderProcTable(tree)
		return nil
	},
}

var procSignalCmd = &cobra.Command{
	Use:   "signal <pid> <signal>",
	Short: "Send an arbitrary signal, by name or number",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := parsePID(args[0])
		if err != nil {
			return err
		}

		sig, err := parseSignal(args[1])
		if err != nil {
			return err
		}

		recursive, _ := cmd.Flags().GetBool("recursive")
		newProcSignaler().Signal(pid, sig, recursive)
		return nil
	},
}

func newSweepCmd(use, short string, sweep func(*proc.Signaler, int32, bool)) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <pid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			recursive, _ := cmd.Flags().GetBool("recursive")
			sweep(newProcSignaler(), pid, recursive)
			return nil
		},
	}
	c.Flags().BoolP("recursive", "r", false, "also target all descendants")
	return c
}

var procInPathCmd = &cobra.Command{
	Use:   "inpath <path>",
	Short: "List processes running from or holding files under a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		allUsers, _ := cmd.Flags().GetBool("all-users")

		if allUsers {
			owner = ""
		} else if owner == "" {
			var err error
			owner, err = proc.CurrentUser()
			if err != nil {
				return err
			}
		}

		procs, err := newProcSignaler().InPath(args[0], owner)
		if err != nil {
			return err
		}

		renderProcTable(procs)
		return nil
	},
}

func renderProcTable(procs []proc.Process) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"PID", "NAME", "USER", "EXE"})
	for _, p := range procs {
		name, _ := p.Name()
		username, _ := p.Username()
		exe, _ := p.Exe()
		t.AppendRow(table.Row{p.Pid(), name, username, exe})
	}
	t.Render()
}

func init() {
	procSignalCmd.Flags().BoolP("recursive", "r", false, "also target all descendants")

	procInPathCmd.Flags().String("owner", "", "only list processes owned by this user")
	procInPathCmd.Flags().Bool("all-users", false, "list processes of every user")

	procCmd.AddCommand(procTreeCmd)
	procCmd.AddCommand(procSignalCmd)
	procCmd.AddCommand(newSweepCmd("interrupt", "Send SIGINT", (*proc.Signaler).Interrupt))
	procCmd.AddCommand(newSweepCmd("terminate", "Send SIGTERM", (*proc.Signaler).Terminate))
	procCmd.AddCommand(newSweepCmd("kill", "Send SIGKILL", (*proc.Signaler).Kill))
	procCmd.AddCommand(newSweepCmd("die", "Terminate, then kill whatever survived", (*proc.Signaler).Die))
	procCmd.AddCommand(procInPathCmd)

	rootCmd.AddCommand(procCmd)
}
