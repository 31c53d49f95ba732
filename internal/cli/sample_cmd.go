package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/ousd-analytics/internal/chain"
)

func newSampleCmd(g *globals) *cobra.Command {
	var (
		days         int
		blocksPerDay uint64
		contract     string
		slotA        string
		slotB        string
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Read two storage slots once per day back from the latest block",
		Long: "Sample contract storage at one block per day in a single JSON-RPC batch.\n" +
			"Values are printed as 18-decimal token amounts, newest first.",
		Example: "  analyticsctl sample --days 7 --contract 0x0C4576Ca1c365868E162554AF8e385dc3e7C66D9 --slot-a 0x9 --slot-b 0x2",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.chainClient(cmd)
			if err != nil {
				return err
			}
			head, err := client.BlockNumber(cmd.Context())
			if err != nil {
				return err
			}
			hist, err := client.SampleHistory(cmd.Context(), chain.SampleRequest{
				Days:         days,
				BlocksPerDay: blocksPerDay,
				CurrentBlock: head,
				Contract:     contract,
				SlotA:        slotA,
				SlotB:        slotB,
			})
			if err != nil {
				return err
			}
			samples, err := hist.Samples()
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), samples)
			}
			rows := make([][]string, len(samples))
			for i, s := range samples {
				rows[i] = []string{
					strconv.FormatUint(s.BlockNumber, 10),
					s.Timestamp.Format(time.DateOnly),
					s.A.StringFixed(4),
					s.B.StringFixed(4),
				}
			}
			return printTable(cmd.OutOrStdout(), []string{"BLOCK", "DATE", slotA, slotB}, rows)
		},
	}

	f := cmd.Flags()
	f.IntVar(&days, "days", 30, "number of daily samples")
	f.Uint64Var(&blocksPerDay, "blocks-per-day", 7200, "block spacing between samples")
	f.StringVar(&contract, "contract", "", "contract address")
	f.StringVar(&slotA, "slot-a", "", "first storage slot")
	f.StringVar(&slotB, "slot-b", "", "second storage slot")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("slot-a")
	_ = cmd.MarkFlagRequired("slot-b")
	return cmd
}
