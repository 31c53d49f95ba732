package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/web3-frozen/ousd-analytics/internal/dune"
)

func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// printResult writes rows in the column order reported by the service.
func printResult(w io.Writer, format string, res *dune.Result) error {
	if format == "json" {
		return printJSON(w, res)
	}
	cols := res.Metadata.ColumnNames
	if len(cols) == 0 && len(res.Rows) > 0 {
		for c := range res.Rows[0] {
			cols = append(cols, c)
		}
		slices.Sort(cols)
	}
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = make([]string, len(cols))
		for j, c := range cols {
			rows[i][j] = row.String(c)
		}
	}
	return printTable(w, cols, rows)
}
