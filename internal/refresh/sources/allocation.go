package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
	"github.com/web3-frozen/ousd-analytics/internal/fanout"
	"github.com/web3-frozen/ousd-analytics/internal/httpjson"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

// Allocation reports how the supply is backed, with the meta strategy's own
// OUSD spread over the stablecoins it pairs with.
type Allocation struct {
	http    *httpjson.Client
	baseURL string
	blend   analytics.BlendConfig
}

func NewAllocation(baseURL string, logger *slog.Logger) *Allocation {
	return &Allocation{
		http:    httpjson.New(&http.Client{Timeout: requestTimeout}, logger),
		baseURL: strings.TrimRight(baseURL, "/"),
		blend:   analytics.DefaultBlend,
	}
}

func (a *Allocation) Name() string { return "allocation" }

type collateralResponse struct {
	Collateral []struct {
		Name  string `json:"name"`
		Total number `json:"total"`
	} `json:"collateral"`
}

type strategiesResponse struct {
	Strategies map[string]struct {
		Holdings map[string]number `json:"holdings"`
	} `json:"strategies"`
}

func (a *Allocation) FetchSnapshot(ctx context.Context) (*refresh.Snapshot, error) {
	var coll collateralResponse
	var strats strategiesResponse
	err := fanout.Run(ctx,
		func(ctx context.Context) error {
			if err := a.http.Get(ctx, a.baseURL+"/api/v2/ousd/collateral", &coll); err != nil {
				return fmt.Errorf("collateral: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			if err := a.http.Get(ctx, a.baseURL+"/api/v2/ousd/strategies", &strats); err != nil {
				return fmt.Errorf("strategies: %w", err)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	if len(coll.Collateral) == 0 {
		return nil, fmt.Errorf("no collateral data")
	}

	collateral := make([]analytics.TokenTotal, len(coll.Collateral))
	for i, c := range coll.Collateral {
		collateral[i] = analytics.TokenTotal{Name: c.Name, Total: float64(c.Total)}
	}
	strategies := make(map[string]analytics.Holdings, len(strats.Strategies))
	for name, s := range strats.Strategies {
		h := make(analytics.Holdings, len(s.Holdings))
		for sym, v := range s.Holdings {
			h[sym] = float64(v)
		}
		strategies[name] = h
	}

	snap := refresh.NewSnapshot(a.Name())
	var total float64
	for _, share := range analytics.Allocation(collateral, strategies, a.blend) {
		key := strings.ToLower(share.Name)
		snap.Metrics[key+"_total"] = share.Total
		snap.Metrics[key+"_pct"] = share.Percentage
		total += share.Total
	}
	snap.Metrics["total"] = total
	return snap, nil
}
