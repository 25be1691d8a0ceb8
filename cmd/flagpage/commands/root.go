package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/TimurManjosov/flagpage/internal/cli"
	"github.com/TimurManjosov/flagpage/internal/flagclient"
	"github.com/TimurManjosov/flagpage/internal/logging"
)

var (
	// Global flags
	baseURL string
	sdkKey  string
	env     string
	format  string
	timeout time.Duration
	quiet   bool
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "flagpage",
	Short: "Inspect the flags a flagpage service sees",
	Long: `flagpage talks to a flagship service with an SDK key, the same way the
page server does, and shows what the flag client sees.

Examples:
  flagpage flags --env prod
  flagpage eval test-flag --key 018ee873-7b09-7f26-b296-0358b2ff1c87 --kind device
  flagpage eval test-flag --anonymous --format json
  flagpage watch --env prod`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command; ctx cancellation stops long-running commands.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the flagship service")
	rootCmd.PersistentFlags().StringVar(&sdkKey, "sdk-key", "", "SDK key for the flag environment")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Flag environment (dev, staging, prod)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the first snapshot and for each request")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
}

// connect builds a flag client and waits for its first snapshot.
func connect(cmd *cobra.Command, streaming bool) (*flagclient.Client, error) {
	envCfg, effectiveEnv, err := cli.GetEnvConfig(env, baseURL, sdkKey)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	c, err := flagclient.New(envCfg.SDKKey,
		flagclient.WithBaseURL(envCfg.BaseURL),
		flagclient.WithEnv(effectiveEnv),
		flagclient.WithStreaming(streaming),
		flagclient.WithPollInterval(time.Hour),
		flagclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		flagclient.WithLogger(logging.New(cmd.ErrOrStderr(), level, "dev")),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if !c.WaitForInitialization(ctx) {
		c.Close()
		if err := c.InitErr(); err != nil {
			return nil, fmt.Errorf("flag client failed: %w", err)
		}
		return nil, fmt.Errorf("no snapshot from %s within %s", envCfg.BaseURL, timeout)
	}
	return c, nil
}
