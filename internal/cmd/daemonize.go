package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reversefold/util/daemon"
	"github.com/reversefold/util/daemon/journal"
)

var daemonizeCmd = &cobra.Command{
	Use:   "daemonize [flags] -- <command> [args]...",
	Short: "Run a command detached, capturing its output into rotated logs",
	Long: `Runs a command detached from the terminal. The command's stdout and
stderr are captured into size-rotated log files and its lifecycle is
recorded in a journal. A pidfile guards against running the same daemon
twice; a stale pidfile left by a dead process is broken automatically.

SIGHUP rotates the capture logs. On SIGINT or SIGTERM the command is
interrupted and given time to exit before being killed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDaemonize,
}

func runDaemonize(cmd *cobra.Command, args []string) error {
	pidfile, _ := cmd.Flags().GetString("pidfile")
	appPidfile, _ := cmd.Flags().GetString("app-pidfile")
	stdoutLog, _ := cmd.Flags().GetString("stdout-log")
	stderrLog, _ := cmd.Flags().GetString("stderr-log")
	layout, _ := cmd.Flags().GetString("time-layout")
	journalPath, _ := cmd.Flags().GetString("journal")
	noDetach, _ := cmd.Flags().GetBool("no-detach")
	waitTimeout, _ := cmd.Flags().GetDuration("wait-timeout")
	maxSize, _ := cmd.Flags().GetInt("max-log-size")
	maxBackups, _ := cmd.Flags().GetInt("max-log-backups")
	maxAge, _ := cmd.Flags().GetInt("max-log-age")

	if !noDetach {
		parent, err := daemon.Detach()
		if err != nil {
			return err
		}
		if parent {
			return nil
		}
	}

	pf, err := daemon.AcquirePIDFile(pidfile)
	if err != nil {
		if errors.Is(err, daemon.ErrLockedElsewhere) {
			return errors.Wrapf(err, "pidfile %q", pidfile)
		}
		return err
	}
	defer pf.Release()

	var j daemon.Journaler
	if journalPath != "" {
		fj, err := journal.NewFileLockJournaler(journalPath)
		if err != nil {
			return errors.Wrap(err, "failed to open journal")
		}
		defer fj.Close()
		j = fj
	}

	if noDetach {
		// In the foreground the lifecycle is echoed to the terminal too.
		hw := journal.NewHumanWriter(filepath.Base(args[0]), os.Stderr)
		if j != nil {
			j = journal.MultiWriter(j, hw)
		} else {
			j = hw
		}
	}

	if j != nil {
		j.Write(&daemon.EventAcquired{PID: os.Getpid()})
	}

	d := daemon.New(args, j, logger)
	d.WaitTimeout = waitTimeout
	d.TimeLayout = layout
	d.StdoutLog = stdoutLog
	d.StderrLog = stderrLog
	d.MaxLogSize = maxSize
	d.MaxLogBackups = maxBackups
	d.MaxLogAge = maxAge
	d.AppPIDFile = appPidfile

	ctx, cancel := signalContext()
	defer cancel()

	code, err := d.Run(ctx)
	if err != nil {
		return err
	}
	if code != 0 {
		logger.Warn("command exited", zap.Int("code", code))
	}
	return nil
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status <journal>",
	Short: "Report the last known state recorded in a daemon journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := journal.ReadStatusFromFile(args[0])
		if err != nil {
			return err
		}
		if status == nil {
			fmt.Println("no runs recorded")
			return nil
		}

		when := status.Time.Format(time.RFC3339)
		if status.Running {
			fmt.Printf("running, pid %d since %s\n", status.PID, when)
			return nil
		}

		fmt.Printf("exited with code %d at %s\n", status.ExitCode, when)
		if status.Error != "" {
			fmt.Printf("error: %s\n", status.Error)
		}
		return nil
	},
}

var daemonJournalCmd = &cobra.Command{
	Use:   "journal <journal>",
	Short: "Dump a daemon journal in a human-readable form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		r := journal.NewReader(f)
		for {
			ev, t, err := r.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", t.Format(time.RFC3339), journal.Describe(ev))
		}
	},
}

func init() {
	daemonizeCmd.Flags().StringP("pidfile", "p", "daemon.pid",
		"pidfile guarding against a second copy of this daemon")
	daemonizeCmd.Flags().StringP("app-pidfile", "d", "",
		"write the supervised command's pid to this file while it runs")
	daemonizeCmd.Flags().StringP("stdout-log", "o", "log/stdout.log",
		"capture log for the command's stdout")
	daemonizeCmd.Flags().StringP("stderr-log", "e", "log/stderr.log",
		"capture log for the command's stderr, or STDOUT to merge streams")
	daemonizeCmd.Flags().String("time-layout", "",
		"prefix captured lines with the current time in this layout")
	daemonizeCmd.Flags().String("journal", "",
		"record lifecycle events in this JSON-lines journal")
	daemonizeCmd.Flags().Bool("no-detach", false,
		"stay in the foreground instead of detaching")
	daemonizeCmd.Flags().Duration("wait-timeout", daemon.WaitTimeout,
		"how long to wait for a graceful exit before SIGKILL")
	daemonizeCmd.Flags().Int("max-log-size", 100,
		"max capture log size in MB before rotating")
	daemonizeCmd.Flags().Int("max-log-backups", 5,
		"rotated capture logs to keep")
	daemonizeCmd.Flags().Int("max-log-age", 0,
		"max age of rotated capture logs in days, 0 keeps all")

	daemonizeCmd.AddCommand(daemonStatusCmd)
	daemonizeCmd.AddCommand(daemonJournalCmd)
	rootCmd.AddCommand(daemonizeCmd)
}
