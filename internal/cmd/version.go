package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with
// -ldflags "-X github.com/reversefold/util/internal/cmd.Version=...".
var Version = "devel"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the revutil version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("revutil", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
