package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
	"github.com/web3-frozen/ousd-analytics/internal/httpjson"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

const (
	defaultCoin      = "origin-dollar"
	defaultPriceDays = 90
)

// Prices charts market data for one coin.
type Prices struct {
	http    *httpjson.Client
	baseURL string
	coin    string
	days    int
}

func NewPrices(baseURL string, logger *slog.Logger) *Prices {
	return &Prices{
		http:    httpjson.New(&http.Client{Timeout: requestTimeout}, logger),
		baseURL: strings.TrimRight(baseURL, "/"),
		coin:    defaultCoin,
		days:    defaultPriceDays,
	}
}

func (p *Prices) Name() string { return "prices" }

// marketPair is a [unix millis, value] tuple.
type marketPair struct {
	Time  time.Time
	Value float64
}

func (m *marketPair) UnmarshalJSON(b []byte) error {
	var raw [2]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("market pair: %w", err)
	}
	m.Time = time.UnixMilli(int64(raw[0])).UTC()
	m.Value = raw[1]
	return nil
}

type marketChart struct {
	Prices       []marketPair `json:"prices"`
	MarketCaps   []marketPair `json:"market_caps"`
	TotalVolumes []marketPair `json:"total_volumes"`
}

func toPoints(pairs []marketPair) []analytics.Point {
	out := make([]analytics.Point, len(pairs))
	for i, p := range pairs {
		out[i] = analytics.Point{Timestamp: p.Time, Value: p.Value}
	}
	analytics.SortByTime(out)
	return out
}

func (p *Prices) FetchSnapshot(ctx context.Context) (*refresh.Snapshot, error) {
	url := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d&interval=daily", p.baseURL, p.coin, p.days)
	var chart marketChart
	if err := p.http.Get(ctx, url, &chart); err != nil {
		return nil, fmt.Errorf("market chart %s: %w", p.coin, err)
	}
	if len(chart.Prices) == 0 {
		return nil, fmt.Errorf("no price data for %s", p.coin)
	}

	snap := refresh.NewSnapshot(p.Name())
	snap.Series["price"] = toPoints(chart.Prices)
	snap.Series["market_cap"] = toPoints(chart.MarketCaps)
	volume := toPoints(chart.TotalVolumes)
	snap.Series["volume"] = volume
	snap.Series["volume_ma7"] = analytics.MovingAverageSeries(volume, 7)

	for _, name := range []string{"price", "market_cap", "volume"} {
		if v, ok := analytics.Last(snap.Series[name]); ok {
			snap.Metrics[name] = v
		}
	}
	return snap, nil
}
