package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/reversefold/util/jsonutil"
)

var sortJSONCmd = &cobra.Command{
	Use:   "sortjson",
	Short: "Read JSON from stdin and print it with arrays and keys sorted",
	Long: `Reads a JSON document from stdin and prints it indented with object
keys and array elements in a canonical order, so two documents can be
compared with plain diff.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return jsonutil.SortStream(os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(sortJSONCmd)
}
