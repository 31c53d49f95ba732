package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/cache"
	"github.com/web3-frozen/ousd-analytics/internal/chain"
	"github.com/web3-frozen/ousd-analytics/internal/dune"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

var (
	_ refresh.Source    = (*Revenue)(nil)
	_ refresh.Scheduled = (*Revenue)(nil)
	_ refresh.Source    = (*Staking)(nil)
	_ refresh.Source    = (*APY)(nil)
	_ refresh.Source    = (*Allocation)(nil)
	_ refresh.Source    = (*Prices)(nil)
	_ refresh.Source    = (*Supply)(nil)
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// --- revenue ---

type fakeRunner struct {
	rows   []dune.Row
	err    error
	gotID  int64
	params []dune.Parameter
}

func (f *fakeRunner) Refresh(_ context.Context, queryID int64, params []dune.Parameter) (*dune.Result, error) {
	f.gotID = queryID
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &dune.Result{Rows: f.rows}, nil
}

func TestRevenueFetchSnapshot(t *testing.T) {
	runner := &fakeRunner{rows: []dune.Row{
		{"day": "2024-01-03", "revenue": 30.0},
		{"day": "2024-01-01", "revenue": "10"},
		{"day": "2024-01-02", "revenue": 20.0},
		{"day": "not a date", "revenue": 99.0},
	}}
	params := []dune.Parameter{{Name: "token", Value: "OUSD"}}
	r := NewRevenue(runner, 1234, params, "")

	if r.Schedule() != defaultRevenueSchedule {
		t.Errorf("Schedule = %q, want default", r.Schedule())
	}
	snap, err := r.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if runner.gotID != 1234 || len(runner.params) != 1 {
		t.Errorf("runner called with %d %v", runner.gotID, runner.params)
	}

	rev := snap.Series["revenue"]
	if len(rev) != 3 {
		t.Fatalf("revenue points = %d, want 3", len(rev))
	}
	if rev[0].Value != 10 || rev[2].Value != 30 {
		t.Errorf("revenue not sorted by day: %+v", rev)
	}
	ma := snap.Series["revenue_ma7"]
	if len(ma) != 3 || !approx(ma[2].Value, 20) {
		t.Errorf("revenue_ma7 = %+v", ma)
	}
	if snap.Metrics["revenue_total"] != 60 || snap.Metrics["revenue_latest"] != 30 || snap.Metrics["revenue_7d"] != 60 {
		t.Errorf("metrics = %v", snap.Metrics)
	}
}

func TestRevenueFetchSnapshotErrors(t *testing.T) {
	failed := &fakeRunner{err: &dune.RefreshError{QueryID: 1, ExecutionID: "x", State: dune.StateFailed}}
	_, err := NewRevenue(failed, 1, nil, "@daily").FetchSnapshot(context.Background())
	var re *dune.RefreshError
	if !errors.As(err, &re) {
		t.Errorf("error = %v, want RefreshError", err)
	}

	empty := &fakeRunner{rows: []dune.Row{{"other": 1.0}}}
	if _, err := NewRevenue(empty, 1, nil, "").FetchSnapshot(context.Background()); err == nil {
		t.Error("expected error for rows without revenue columns")
	}
}

// --- staking ---

type fakeSampler struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSampler) BlockNumber(context.Context) (uint64, error) { return 1_000_000, nil }

func (f *fakeSampler) SampleHistory(_ context.Context, req chain.SampleRequest) (*chain.History, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	flat := make([]chain.Response, 0, 3*req.Days)
	for i := 0; i < req.Days; i++ {
		flat = append(flat, chain.Response{ID: len(flat), Result: tokenWord(int64(100 - i))})
	}
	for i := 0; i < req.Days; i++ {
		flat = append(flat, chain.Response{ID: len(flat), Result: tokenWord(int64(2 * (100 - i)))})
	}
	for i, h := range req.Heights() {
		ts := 1_700_000_000 - int64(i)*86400
		flat = append(flat, chain.Response{ID: len(flat), Result: json.RawMessage(
			fmt.Sprintf(`{"number":"0x%x","timestamp":"0x%x"}`, h, ts))})
	}
	return chain.Reshape(flat, req.Days)
}

// tokenWord encodes whole tokens as an 18-decimal storage word.
func tokenWord(tokens int64) json.RawMessage {
	v := new(big.Int).Mul(big.NewInt(tokens), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return json.RawMessage(fmt.Sprintf(`"0x%064x"`, v))
}

func TestStakingFetchSnapshotCaches(t *testing.T) {
	sampler := &fakeSampler{}
	store := cache.NewMemory()
	cfg := DefaultStakingConfig("0xveogv")
	cfg.Days = 3
	s := NewStaking(sampler, store, cfg, slog.Default())

	snap, err := s.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	staked := snap.Series["staked"]
	if len(staked) != 3 {
		t.Fatalf("staked points = %d, want 3", len(staked))
	}
	if !approx(staked[0].Value, 98) || !approx(staked[2].Value, 100) {
		t.Errorf("staked not oldest first: %+v", staked)
	}
	if !approx(snap.Metrics["ve_supply"], 200) || !approx(snap.Metrics["ve_per_ogv"], 2) {
		t.Errorf("metrics = %v", snap.Metrics)
	}

	if _, err := s.FetchSnapshot(context.Background()); err != nil {
		t.Fatalf("second FetchSnapshot: %v", err)
	}
	if got := sampler.calls.Load(); got != 1 {
		t.Errorf("SampleHistory calls = %d, want 1 (cached)", got)
	}
}

func TestStakingFetchSnapshotError(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("node down")}
	s := NewStaking(sampler, cache.NewMemory(), DefaultStakingConfig("0xveogv"), slog.Default())
	if _, err := s.FetchSnapshot(context.Background()); err == nil {
		t.Error("expected error")
	}
}

// --- apy ---

func TestAPYFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		days := strings.TrimPrefix(r.URL.Path, "/api/v2/ousd/apr/trailing/")
		switch days {
		case "7":
			_, _ = io.WriteString(w, `{"apr":"4.5","apy":"4.6"}`)
		case "30":
			_, _ = io.WriteString(w, `{"apr":5.5,"apy":5.65}`)
		case "365":
			_, _ = io.WriteString(w, `{"apr":"6","apy":"6.18"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	snap, err := NewAPY(srv.URL+"/", slog.Default()).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	want := map[string]float64{"apy_7d": 4.6, "apy_30d": 5.65, "apy_365d": 6.18, "apr_7d": 4.5}
	for k, v := range want {
		if !approx(snap.Metrics[k], v) {
			t.Errorf("%s = %v, want %v", k, snap.Metrics[k], v)
		}
	}
}

func TestAPYFetchSnapshotFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/30") {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":"upstream timeout"}`)
			return
		}
		_, _ = io.WriteString(w, `{"apr":1,"apy":1}`)
	}))
	defer srv.Close()

	_, err := NewAPY(srv.URL, slog.Default()).FetchSnapshot(context.Background())
	if err == nil || !strings.Contains(err.Error(), "30d") {
		t.Errorf("error = %v, want 30d failure", err)
	}
}

// --- allocation ---

func TestAllocationFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/ousd/collateral":
			_, _ = io.WriteString(w, `{"collateral":[
				{"name":"dai","total":"100"},
				{"name":"usdc","total":300},
				{"name":"ousd","total":"100"}]}`)
		case "/api/v2/ousd/strategies":
			_, _ = io.WriteString(w, `{"strategies":{"ousd_metastrat":{"holdings":{"OUSD":100,"DAI":"25","USDC":75}}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	snap, err := NewAllocation(srv.URL, slog.Default()).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	var pct float64
	for k, v := range snap.Metrics {
		if strings.HasSuffix(k, "_pct") {
			pct += v
		}
	}
	if !approx(pct, 100) {
		t.Errorf("percentages sum to %v, want 100 (%v)", pct, snap.Metrics)
	}
	if !approx(snap.Metrics["dai_total"], 125) || !approx(snap.Metrics["usdc_total"], 375) {
		t.Errorf("blended totals = %v", snap.Metrics)
	}
}

func TestAllocationFetchSnapshotMissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	if _, err := NewAllocation(srv.URL, slog.Default()).FetchSnapshot(context.Background()); err == nil {
		t.Error("expected error for empty collateral")
	}
}

// --- prices ---

func TestPricesFetchSnapshot(t *testing.T) {
	day := int64(86_400_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/origin-dollar/market_chart" || r.URL.Query().Get("vs_currency") != "usd" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"prices":[[%d,1.001],[%d,0.999]],
			"market_caps":[[%d,300000000],[%d,310000000]],
			"total_volumes":[[%d,2000000],[%d,1000000]]}`,
			2*day, day, day, 2*day, day, 2*day)
	}))
	defer srv.Close()

	snap, err := NewPrices(srv.URL, slog.Default()).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	price := snap.Series["price"]
	if len(price) != 2 || !price[0].Timestamp.Equal(time.UnixMilli(day).UTC()) {
		t.Fatalf("price series = %+v", price)
	}
	if !approx(snap.Metrics["price"], 1.001) || !approx(snap.Metrics["volume"], 1000000) {
		t.Errorf("metrics = %v", snap.Metrics)
	}
	if ma := snap.Series["volume_ma7"]; len(ma) != 2 || !approx(ma[1].Value, 1500000) {
		t.Errorf("volume_ma7 = %+v", ma)
	}
}

func TestPricesFetchSnapshotEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"prices":[]}`)
	}))
	defer srv.Close()

	if _, err := NewPrices(srv.URL, slog.Default()).FetchSnapshot(context.Background()); err == nil {
		t.Error("expected error for empty prices")
	}
}

// --- supply ---

type fakeIndexer struct {
	body string
	err  error
	op   string
}

func (f *fakeIndexer) Query(_ context.Context, op, _ string, _ map[string]any, out any) error {
	f.op = op
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), out)
}

func TestSupplyFetchSnapshot(t *testing.T) {
	idx := &fakeIndexer{body: `{"ousdDailyStats":[
		{"timestamp":"2024-01-02T00:00:00Z","totalSupply":"2000000000000000000000000","apy7DayAvg":"0.051"},
		{"timestamp":"1704067200000","totalSupply":"1500000000000000000000000","apy7DayAvg":0.049}]}`}

	snap, err := NewSupply(idx).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot: %v", err)
	}
	if idx.op != "OUSDDailyStats" {
		t.Errorf("operation = %q", idx.op)
	}
	supply := snap.Series["total_supply"]
	if len(supply) != 2 || !approx(supply[0].Value, 1_500_000) {
		t.Fatalf("supply = %+v", supply)
	}
	if !approx(snap.Metrics["total_supply"], 2_000_000) || !approx(snap.Metrics["apy_7d"], 0.051) {
		t.Errorf("metrics = %v", snap.Metrics)
	}
}

func TestSupplyFetchSnapshotBadAmount(t *testing.T) {
	idx := &fakeIndexer{body: `{"ousdDailyStats":[{"timestamp":"2024-01-02T00:00:00Z","totalSupply":"lots","apy7DayAvg":1}]}`}
	if _, err := NewSupply(idx).FetchSnapshot(context.Background()); err == nil {
		t.Error("expected error for bad amount")
	}
}

func TestNumberUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{`1.5`, 1.5, true},
		{`"2.25"`, 2.25, true},
		{`""`, 0, true},
		{`null`, 0, true},
		{`"abc"`, 0, false},
		{`true`, 0, false},
	}
	for _, tt := range tests {
		var n number
		err := json.Unmarshal([]byte(tt.in), &n)
		if (err == nil) != tt.ok {
			t.Errorf("Unmarshal(%s) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && float64(n) != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, n, tt.want)
		}
	}
}
