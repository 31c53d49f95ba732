package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/ousd-analytics/internal/dune"
)

func newExecuteCmd(g *globals) *cobra.Command {
	var (
		params   []string
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "execute <query-id>",
		Short: "Run a query to completion and print its rows",
		Long: "Submit a query execution, poll until it reaches a terminal state and print the result.\n" +
			"A repeated --param name keeps its last value.",
		Example: "  analyticsctl execute 2963386 --param token=OUSD --param days=365",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryID, err := parseQueryID(args[0])
			if err != nil {
				return err
			}
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			client, err := g.duneClient(cmd)
			if err != nil {
				return err
			}

			poller := dune.NewPoller(client, g.logger(cmd), dune.WithInterval(interval), dune.WithMaxWait(timeout))
			res, err := poller.Refresh(cmd.Context(), queryID, parsed)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), getOutputFormat(cmd), res)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter as name=value (repeatable)")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "status poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up and cancel the execution after this long")
	return cmd
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Show the state of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.duneClient(cmd)
			if err != nil {
				return err
			}
			st, err := client.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), st)
			}
			row := []string{st.ExecutionID, strconv.FormatInt(st.QueryID, 10), string(st.State), st.SubmittedAt.Format(time.RFC3339)}
			return printTable(cmd.OutOrStdout(), []string{"EXECUTION", "QUERY", "STATE", "SUBMITTED"}, [][]string{row})
		},
	}
}

func newResultsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "results <execution-id>",
		Short: "Print the rows of a finished execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.duneClient(cmd)
			if err != nil {
				return err
			}
			res, err := client.GetResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), getOutputFormat(cmd), res)
		},
	}
}

func newCancelCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Ask the service to stop an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.duneClient(cmd)
			if err != nil {
				return err
			}
			ok, err := client.CancelExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"execution_id": args[0], "cancelled": ok})
			}
			if !ok {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "execution %s was not cancelled\n", args[0])
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "execution %s cancelled\n", args[0])
			return nil
		},
	}
}

func parseQueryID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid query id %q", s)
	}
	return id, nil
}

func parseParams(raw []string) ([]dune.Parameter, error) {
	out := make([]dune.Parameter, 0, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: want name=value", kv)
		}
		out = append(out, dune.Parameter{Name: name, Value: value})
	}
	return out, nil
}
