package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/web3-frozen/ousd-analytics/internal/fanout"
	"github.com/web3-frozen/ousd-analytics/internal/httpjson"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

// TrailingWindows are the APY windows published on the site, in days.
var TrailingWindows = []int{7, 30, 365}

// APY reports trailing APY over several windows.
type APY struct {
	http    *httpjson.Client
	baseURL string
	windows []int
}

func NewAPY(baseURL string, logger *slog.Logger) *APY {
	return &APY{
		http:    httpjson.New(&http.Client{Timeout: requestTimeout}, logger),
		baseURL: strings.TrimRight(baseURL, "/"),
		windows: TrailingWindows,
	}
}

func (a *APY) Name() string { return "apy" }

type trailingResponse struct {
	APR number `json:"apr"`
	APY number `json:"apy"`
}

func (a *APY) FetchSnapshot(ctx context.Context) (*refresh.Snapshot, error) {
	fns := make([]fanout.Func[trailingResponse], len(a.windows))
	for i, days := range a.windows {
		fns[i] = func(ctx context.Context) (trailingResponse, error) {
			var resp trailingResponse
			url := fmt.Sprintf("%s/api/v2/ousd/apr/trailing/%d", a.baseURL, days)
			if err := a.http.Get(ctx, url, &resp); err != nil {
				return resp, fmt.Errorf("trailing apy %dd: %w", days, err)
			}
			return resp, nil
		}
	}
	results, err := fanout.All(ctx, fns...)
	if err != nil {
		return nil, err
	}

	snap := refresh.NewSnapshot(a.Name())
	for i, days := range a.windows {
		snap.Metrics[fmt.Sprintf("apy_%dd", days)] = float64(results[i].APY)
		snap.Metrics[fmt.Sprintf("apr_%dd", days)] = float64(results[i].APR)
	}
	return snap, nil
}
