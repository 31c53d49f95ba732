package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
)

func newVeOGVCmd() *cobra.Command {
	var (
		amount float64
		months float64
		at     int64
	)

	cmd := &cobra.Command{
		Use:   "veogv",
		Short: "Convert between OGV staked and veOGV received for a lockup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if amount < 0 {
				return fmt.Errorf("amount must be non-negative")
			}
			if months <= 0 || months > 48 {
				return fmt.Errorf("months must be between 0 and 48")
			}
			if at == 0 {
				at = time.Now().Unix()
			}

			ve := analytics.OGVToVeOGV(at, amount, months)
			required := analytics.VeOGVToOGV(at, amount, months)
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"amount":       amount,
					"months":       months,
					"at":           at,
					"ve_ogv":       ve,
					"ogv_required": required,
				})
			}
			return printTable(cmd.OutOrStdout(),
				[]string{"AMOUNT", "MONTHS", "VEOGV", "OGV REQUIRED"},
				[][]string{{
					fmt.Sprintf("%.4f", amount),
					fmt.Sprintf("%g", months),
					fmt.Sprintf("%.4f", ve),
					fmt.Sprintf("%.4f", required),
				}})
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "OGV to stake, or veOGV wanted")
	cmd.Flags().Float64Var(&months, "months", 0, "lockup length in months (max 48)")
	cmd.Flags().Int64Var(&at, "at", 0, "stake time as unix seconds (default now)")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("months")
	return cmd
}
