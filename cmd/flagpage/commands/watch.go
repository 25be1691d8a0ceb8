package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/flagpage/internal/cli"
)

var watchShowFlags bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print snapshot changes as the service streams them",
	Long: `Keep a streaming connection to the flag service open and print a line
for every new snapshot until interrupted.

Examples:
  flagpage watch --env prod
  flagpage watch --env prod --show-flags`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd, true)
		if err != nil {
			return err
		}
		defer c.Close()

		updates, stop := c.Subscribe()
		defer stop()

		out := cmd.OutOrStdout()
		report := func(etag string) error {
			snap := c.Snapshot()
			fmt.Fprintf(out, "%s etag=%s flags=%d\n", time.Now().UTC().Format(time.RFC3339), etag, len(snap.Flags))
			if watchShowFlags && len(snap.Flags) > 0 {
				return cli.PrintFlags(out, snap.Flags, cli.OutputFormat(format))
			}
			return nil
		}
		if err := report(c.Snapshot().ETag); err != nil {
			return err
		}

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case etag, ok := <-updates:
				if !ok {
					return nil
				}
				if err := report(etag); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchShowFlags, "show-flags", false, "Print the flag table with every change")
}
