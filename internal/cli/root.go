package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/ousd-analytics/internal/chain"
	"github.com/web3-frozen/ousd-analytics/internal/dune"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if getOutputFormat(rootCmd) == "json" {
			_ = printJSON(os.Stdout, map[string]string{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	duneURL string
	apiKey  string
	rpcURL  string
	output  string
	verbose bool
}

func (g *globals) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (g *globals) duneClient(cmd *cobra.Command) (*dune.Client, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("an API key is required: set --api-key or DUNE_API_KEY")
	}
	return dune.NewClient(g.duneURL, g.apiKey, nil, g.logger(cmd)), nil
}

func (g *globals) chainClient(cmd *cobra.Command) (*chain.Client, error) {
	if g.rpcURL == "" {
		return nil, fmt.Errorf("an RPC endpoint is required: set --rpc-url or RPC_URL")
	}
	return chain.NewClient(g.rpcURL, nil, g.logger(cmd)), nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "analyticsctl",
		Short:         "OUSD analytics tooling",
		Long:          "Drive query executions and sample on-chain history from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Precedence: flag > env > default
			if !cmd.Flags().Changed("api-key") {
				g.apiKey = os.Getenv("DUNE_API_KEY")
			}
			if !cmd.Flags().Changed("rpc-url") {
				g.rpcURL = os.Getenv("RPC_URL")
			}
			if !cmd.Flags().Changed("dune-url") {
				if v := os.Getenv("DUNE_API_URL"); v != "" {
					g.duneURL = v
				}
			}
			return validateOutputFormat(g.output)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.duneURL, "dune-url", "https://api.dune.com/api/v1", "query service base URL")
	pf.StringVar(&g.apiKey, "api-key", "", "query service API key (env DUNE_API_KEY)")
	pf.StringVar(&g.rpcURL, "rpc-url", "", "Ethereum JSON-RPC endpoint (env RPC_URL)")
	pf.StringVarP(&g.output, "output", "o", "table", "output format: table or json")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log HTTP traffic to stderr")

	rootCmd.AddCommand(
		newExecuteCmd(g),
		newStatusCmd(g),
		newResultsCmd(g),
		newCancelCmd(g),
		newSampleCmd(g),
		newVeOGVCmd(),
	)
	return rootCmd
}

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
