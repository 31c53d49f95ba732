package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

const supplyDays = 90

const dailyStatsQuery = `query OUSDDailyStats($limit: Int!) {
  ousdDailyStats(limit: $limit, orderBy: timestamp_DESC) {
    timestamp
    totalSupply
    apy7DayAvg
  }
}`

// GraphQLQuerier runs one GraphQL operation.
type GraphQLQuerier interface {
	Query(ctx context.Context, operationName, query string, vars map[string]any, out any) error
}

// Supply charts total supply and 7-day APY from the indexer.
type Supply struct {
	indexer GraphQLQuerier
	days    int
}

func NewSupply(indexer GraphQLQuerier) *Supply {
	return &Supply{indexer: indexer, days: supplyDays}
}

func (s *Supply) Name() string { return "supply" }

type dailyStats struct {
	OUSDDailyStats []struct {
		Timestamp   string `json:"timestamp"`
		TotalSupply string `json:"totalSupply"`
		APY7DayAvg  number `json:"apy7DayAvg"`
	} `json:"ousdDailyStats"`
}

func (s *Supply) FetchSnapshot(ctx context.Context) (*refresh.Snapshot, error) {
	var stats dailyStats
	err := s.indexer.Query(ctx, "OUSDDailyStats", dailyStatsQuery, map[string]any{"limit": s.days}, &stats)
	if err != nil {
		return nil, err
	}
	if len(stats.OUSDDailyStats) == 0 {
		return nil, fmt.Errorf("indexer returned no daily stats")
	}

	supply := make([]analytics.Point, 0, len(stats.OUSDDailyStats))
	apy := make([]analytics.Point, 0, len(stats.OUSDDailyStats))
	for _, d := range stats.OUSDDailyStats {
		ts, err := parseIndexerTime(d.Timestamp)
		if err != nil {
			return nil, err
		}
		total, err := tokenUnits(d.TotalSupply, 18)
		if err != nil {
			return nil, err
		}
		supply = append(supply, analytics.Point{Timestamp: ts, Value: total})
		apy = append(apy, analytics.Point{Timestamp: ts, Value: float64(d.APY7DayAvg)})
	}
	analytics.SortByTime(supply)
	analytics.SortByTime(apy)

	snap := refresh.NewSnapshot(s.Name())
	snap.Series["total_supply"] = supply
	snap.Series["apy_7d"] = apy
	if v, ok := analytics.Last(supply); ok {
		snap.Metrics["total_supply"] = v
	}
	if v, ok := analytics.Last(apy); ok {
		snap.Metrics["apy_7d"] = v
	}
	return snap, nil
}

// parseIndexerTime accepts RFC 3339 timestamps and unix milliseconds.
func parseIndexerTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q", s)
	}
	return time.UnixMilli(ms).UTC(), nil
}
