package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TimurManjosov/flagpage/internal/api"
	"github.com/TimurManjosov/flagpage/internal/cli"
	"github.com/TimurManjosov/flagpage/internal/flagclient"
	"github.com/TimurManjosov/flagpage/internal/validation"
)

var (
	evalKey       string
	evalKind      string
	evalName      string
	evalAnonymous bool
	evalDefault   bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <flag>",
	Short: "Evaluate a flag for a context",
	Long: `Evaluate a boolean flag the way the page does and show the value,
the assigned variant and the reason.

Examples:
  flagpage eval test-flag
  flagpage eval test-flag --key user-42 --kind user
  flagpage eval test-flag --anonymous --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validation.ValidateKey(args[0]).Err(); err != nil {
			return fmt.Errorf("flag %q: %w", args[0], err)
		}

		key := evalKey
		if evalAnonymous {
			key = uuid.NewString()
		}
		ec, err := flagclient.NewContext(key, evalKind, evalName)
		if err != nil {
			return err
		}

		c, err := connect(cmd, false)
		if err != nil {
			return err
		}
		defer c.Close()

		d := c.BoolVariationDetail(ec, args[0], evalDefault)
		result := cli.Evaluation{
			Flag:        args[0],
			ContextKey:  ec.Key(),
			ContextKind: ec.Kind(),
			Value:       d.Value,
			Variant:     d.Variant,
			Reason:      string(d.Reason),
		}
		if d.Err != nil {
			result.Error = d.Err.Error()
		}

		if quiet {
			return nil
		}
		return cli.PrintEvaluation(cmd.OutOrStdout(), result, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVar(&evalKey, "key", api.DefaultContextKey, "Context key")
	evalCmd.Flags().StringVar(&evalKind, "kind", api.DefaultContextKind, "Context kind")
	evalCmd.Flags().StringVar(&evalName, "name", api.DefaultContextName, "Context name")
	evalCmd.Flags().BoolVar(&evalAnonymous, "anonymous", false, "Use a random context key")
	evalCmd.Flags().BoolVar(&evalDefault, "default", false, "Value returned when the flag cannot be evaluated")
}
