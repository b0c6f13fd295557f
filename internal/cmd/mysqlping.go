package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var mysqlPingCmd = &cobra.Command{
	Use:   "mysqlping",
	Short: "Ping a MySQL server once a second and log downtime spans",
	Long: `Pings a MySQL server once a second. Every transition between up and
down is logged, and on recovery the length of the outage is reported.
Useful for watching a server through a restart or failover.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		u, _ := cmd.Flags().GetString("user")
		password, _ := cmd.Flags().GetString("password")
		interval, _ := cmd.Flags().GetDuration("interval")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
		cfg.User = u
		cfg.Passwd = password
		cfg.Timeout = timeout
		cfg.ReadTimeout = timeout
		cfg.WriteTimeout = timeout

		db, err := sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return errors.Wrap(err, "bad mysql config")
		}
		defer db.Close()

		// Each probe should dial fresh so a dead server is noticed.
		db.SetMaxIdleConns(0)

		ctx, cancel := signalContext()
		defer cancel()

		return pingLoop(ctx, db, cfg.Addr, interval, timeout, os.Stdout)
	},
}

// pingLoop probes db until ctx is canceled, printing up/down transitions and
// the length of each outage.
func pingLoop(ctx context.Context, db *sql.DB, addr string, interval, timeout time.Duration, w io.Writer) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	up := true
	var downSince time.Time

	for {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := db.PingContext(pingCtx)
		cancel()

		// A ping failed by our own shutdown is not an outage.
		if ctx.Err() != nil {
			return nil
		}

		now := time.Now()
		switch {
		case err != nil && up:
			up = false
			downSince = now
			fmt.Fprintf(w, "%s %s down: %v\n", now.Format(time.RFC3339), addr, err)

		case err == nil && !up:
			up = true
			fmt.Fprintf(w, "%s %s back up after %s\n",
				now.Format(time.RFC3339), addr, now.Sub(downSince).Round(time.Millisecond))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func init() {
	mysqlPingCmd.Flags().String("host", "localhost", "mysql host")
	mysqlPingCmd.Flags().Int("port", 3306, "mysql port")
	mysqlPingCmd.Flags().String("user", "root", "mysql user")
	mysqlPingCmd.Flags().String("password", "", "mysql password")
	mysqlPingCmd.Flags().Duration("interval", time.Second, "time between pings")
	mysqlPingCmd.Flags().Duration("timeout", time.Second, "per-ping timeout")

	rootCmd.AddCommand(mysqlPingCmd)
}
