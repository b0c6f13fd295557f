package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reversefold/util/ratelimit"
	"github.com/reversefold/util/tail"
)

var tailCmd = &cobra.Command{
	Use:   "tail <file>...",
	Short: "Watch files for new lines and print them prefixed with the filename",
	Long: `Watches files for new lines and prints them prefixed with the filename.

If more than rate-limit lines arrive within rate-period, a single "..." line
is printed and the rest of that period's lines are dropped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		var win ratelimit.Window
		if !viper.GetBool("tail.no-rate-limit") {
			win = ratelimit.Window{
				Period: viper.GetDuration("tail.rate-period"),
				Limit:  viper.GetInt("tail.rate-limit"),
			}
		}

		return tail.Run(ctx, args, tail.Options{
			Window: win,
			Log:    logger,
		})
	},
}

func init() {
	tailCmd.Flags().IntP("rate-limit", "l", 100,
		"max lines to print within rate-period")
	tailCmd.Flags().DurationP("rate-period", "p", time.Second,
		"period the rate limit applies to")
	tailCmd.Flags().Bool("no-rate-limit", false,
		"print every line no matter how fast they arrive")

	viper.BindPFlag("tail.rate-limit", tailCmd.Flags().Lookup("rate-limit"))
	viper.BindPFlag("tail.rate-period", tailCmd.Flags().Lookup("rate-period"))
	viper.BindPFlag("tail.no-rate-limit", tailCmd.Flags().Lookup("no-rate-limit"))

	rootCmd.AddCommand(tailCmd)
}
