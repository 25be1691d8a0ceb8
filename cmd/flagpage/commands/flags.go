package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/flagpage/internal/cli"
	"github.com/TimurManjosov/flagpage/internal/snapshot"
)

var flagsEnabledOnly bool

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "List the flags in the environment snapshot",
	Long: `List every flag in the snapshot the flag client receives.

Examples:
  flagpage flags --env prod
  flagpage flags --env prod --format json
  flagpage flags --env prod --enabled-only`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd, false)
		if err != nil {
			return err
		}
		defer c.Close()

		flags := c.Flags()
		if flagsEnabledOnly {
			enabled := make(map[string]snapshot.FlagView, len(flags))
			for k, f := range flags {
				if f.Enabled {
					enabled[k] = f
				}
			}
			flags = enabled
		}

		if quiet {
			return nil
		}
		if len(flags) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No flags found")
			return nil
		}
		return cli.PrintFlags(cmd.OutOrStdout(), flags, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(flagsCmd)

	flagsCmd.Flags().BoolVar(&flagsEnabledOnly, "enabled-only", false, "Show only enabled flags")
}
