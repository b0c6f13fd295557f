package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reversefold/util/follow"
)

var streamCmd = &cobra.Command{
	Use:   "stream <file>",
	Short: "Stream a file's contents to stdout as it grows",
	Long: `Streams a file's contents to stdout as it grows, like tail -f. FIFOs
work as well as regular files. Lines are streamed whole by default;
--bytes switches to raw chunks. On SIGINT the remaining data is drained
before exiting.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tailOnly, _ := cmd.Flags().GetBool("tail")
		rawBytes, _ := cmd.Flags().GetBool("bytes")
		bufSize, _ := cmd.Flags().GetInt("bufsize")

		opts := follow.Options{TailOnly: tailOnly, ChunkSize: bufSize}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		if rawBytes {
			f, err := follow.Open(args[0], opts)
			if err != nil {
				return err
			}
			defer f.Close()

			go func() {
				<-sigs
				// Drain what's already in the file, then stop.
				f.Finish()
			}()

			return streamBytes(context.Background(), f, os.Stdout)
		}

		lf, err := follow.OpenLines(args[0], opts)
		if err != nil {
			return err
		}
		defer lf.Close()

		go func() {
			<-sigs
			lf.Finish()
		}()

		return streamLines(context.Background(), lf, os.Stdout)
	},
}

func streamBytes(ctx context.Context, f *follow.Follower, w io.Writer) error {
	for {
		data, err := f.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := w.Write(data); err != nil {
			return err
		}
	}
}

func streamLines(ctx context.Context, lf *follow.LineFollower, w io.Writer) error {
	for {
		line, err := lf.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
}

func init() {
	streamCmd.Flags().Bool("tail", false,
		"start from the end of the file instead of the beginning")
	streamCmd.Flags().Bool("bytes", false,
		"stream raw chunks instead of whole lines")
	streamCmd.Flags().Int("bufsize", 1024,
		"read size for --bytes mode")

	rootCmd.AddCommand(streamCmd)
}
