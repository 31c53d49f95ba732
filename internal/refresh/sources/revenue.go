package sources

import (
	"context"
	"fmt"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
	"github.com/web3-frozen/ousd-analytics/internal/dune"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

const (
	defaultRevenueSchedule = "0 */6 * * *"

	revenueDayColumn   = "day"
	revenueValueColumn = "revenue"
)

// QueryRunner runs a Dune query to completion.
type QueryRunner interface {
	Refresh(ctx context.Context, queryID int64, params []dune.Parameter) (*dune.Result, error)
}

// Revenue charts daily protocol revenue from a Dune query with one row per
// day ("day", "revenue").
type Revenue struct {
	runner   QueryRunner
	queryID  int64
	params   []dune.Parameter
	schedule string
}

func NewRevenue(runner QueryRunner, queryID int64, params []dune.Parameter, schedule string) *Revenue {
	if schedule == "" {
		schedule = defaultRevenueSchedule
	}
	return &Revenue{runner: runner, queryID: queryID, params: params, schedule: schedule}
}

func (r *Revenue) Name() string     { return "revenue" }
func (r *Revenue) Schedule() string { return r.schedule }

func (r *Revenue) FetchSnapshot(ctx context.Context) (*refresh.Snapshot, error) {
	res, err := r.runner.Refresh(ctx, r.queryID, r.params)
	if err != nil {
		return nil, fmt.Errorf("revenue query %d: %w", r.queryID, err)
	}

	points := make([]analytics.Point, 0, len(res.Rows))
	for _, row := range res.Rows {
		day, ok := row.Time(revenueDayColumn)
		if !ok {
			continue
		}
		v, ok := row.Float(revenueValueColumn)
		if !ok {
			continue
		}
		points = append(points, analytics.Point{Timestamp: day, Value: v})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("revenue query %d returned no usable rows (%d rows)", r.queryID, len(res.Rows))
	}
	analytics.SortByTime(points)

	snap := refresh.NewSnapshot(r.Name())
	snap.Series["revenue"] = points
	snap.Series["revenue_ma7"] = analytics.MovingAverageSeries(points, 7)
	snap.Series["revenue_ma30"] = analytics.MovingAverageSeries(points, 30)

	var total, last7 float64
	for i, p := range points {
		total += p.Value
		if i >= len(points)-7 {
			last7 += p.Value
		}
	}
	snap.Metrics["revenue_total"] = total
	snap.Metrics["revenue_7d"] = last7
	snap.Metrics["revenue_latest"] = points[len(points)-1].Value
	if v, ok := analytics.Last(snap.Series["revenue_ma7"]); ok {
		snap.Metrics["revenue_ma7"] = v
	}
	return snap, nil
}
