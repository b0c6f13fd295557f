package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logCmd = &cobra.Command{
	Use:   "log <file>",
	Short: "Write stdin to a size-rotated logfile",
	Long: `Reads lines from stdin and appends them to a logfile that is rotated
when it grows too large. Useful behind a pipe for programs that only log
to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxSize, _ := cmd.Flags().GetInt("max-size")
		maxBackups, _ := cmd.Flags().GetInt("max-backups")
		maxAge, _ := cmd.Flags().GetInt("max-age")
		tee, _ := cmd.Flags().GetBool("tee")
		layout, _ := cmd.Flags().GetString("time-layout")

		lj := &lumberjack.Logger{
			Filename:   args[0],
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
		}
		defer lj.Close()

		var out io.Writer = lj
		if tee {
			out = io.MultiWriter(lj, os.Stdout)
		}

		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 64*1024), 1<<20)

		for sc.Scan() {
			line := sc.Text()
			if layout != "" {
				line = time.Now().Format(layout) + " " + line
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
		return sc.Err()
	},
}

func init() {
	logCmd.Flags().Int("max-size", 100, "max logfile size in MB before rotating")
	logCmd.Flags().Int("max-backups", 5, "rotated files to keep")
	logCmd.Flags().Int("max-age", 0, "max age of rotated files in days, 0 keeps all")
	logCmd.Flags().Bool("tee", false, "also copy lines to stdout")
	logCmd.Flags().String("time-layout", "", "prefix each line with the current time in this layout")

	rootCmd.AddCommand(logCmd)
}
