package cmd

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/reversefold/util/sshrun"
)

var sshCmd = &cobra.Command{
	Use:   "ssh <host> <command>...",
	Short: "Run a command on a remote host over ssh with prefixed output",
	Long: `Runs a command on a remote host over ssh. The remote command's output
is streamed line by line, prefixed with the host. The exit code of the
remote command becomes this command's exit code.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		user, _ := cmd.Flags().GetString("user")
		sudo, _ := cmd.Flags().GetBool("sudo")
		dir, _ := cmd.Flags().GetString("cwd")
		echo, _ := cmd.Flags().GetBool("echo")
		cipher, _ := cmd.Flags().GetString("cipher")
		checkKeys, _ := cmd.Flags().GetBool("check-host-keys")
		logLevel, _ := cmd.Flags().GetString("log-level")
		connectTimeout, _ := cmd.Flags().GetInt("connect-timeout")

		h := sshrun.New(args[0])
		h.Port = port
		h.User = user
		h.Cipher = cipher
		h.CheckHostKeys = checkKeys
		if logLevel != "" {
			h.LogLevel = logLevel
		}
		if connectTimeout > 0 {
			h.ConnectTimeout = connectTimeout
		}

		ctx, cancel := signalContext()
		defer cancel()

		command := strings.Join(args[1:], " ")
		opts := sshrun.RunOptions{Dir: dir, Echo: echo}

		run := h.Run
		if sudo {
			run = h.Sudo
		}

		_, err := run(ctx, command, opts)

		var exitErr *sshrun.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		return err
	},
}

func init() {
	sshCmd.Flags().IntP("port", "p", 0, "ssh port, 0 uses ssh's default")
	sshCmd.Flags().StringP("user", "u", "", "remote user, empty uses ssh's default")
	sshCmd.Flags().Bool("sudo", false, "run the command through sudo on the remote host")
	sshCmd.Flags().String("cwd", "", "change to this directory on the remote host first")
	sshCmd.Flags().Bool("echo", false, "echo the command before its output")
	sshCmd.Flags().String("cipher", "", "ssh cipher to request")
	sshCmd.Flags().Bool("check-host-keys", false, "verify remote host keys")
	sshCmd.Flags().String("log-level", "", "ssh client log level")
	sshCmd.Flags().Int("connect-timeout", 0, "ssh connect timeout in seconds")

	rootCmd.AddCommand(sshCmd)
}
