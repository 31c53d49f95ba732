package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/web3-frozen/ousd-analytics/internal/cache"
	"github.com/web3-frozen/ousd-analytics/internal/fanout"
	"github.com/web3-frozen/ousd-analytics/internal/metrics"
)

const (
	DefaultPollInterval = 5 * time.Minute

	fetchTimeout         = 2 * time.Minute
	scheduledTimeout     = 20 * time.Minute
	maxConcurrentFetches = 4
)

// AlertFunc sends a message to a Telegram chat.
type AlertFunc func(chatID int64, message string) error

// SnapshotStore persists snapshots between restarts.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, source string, fetchedAt time.Time, snapshot any) error
	LatestSnapshot(ctx context.Context, source string, dst any) error
}

type Option func(*Engine)

// WithInterval sets how often interval sources are polled.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithAlerts sends refresh failure alerts to chatID, once per failure
// streak. A zero chatID or nil fn disables alerts.
func WithAlerts(fn AlertFunc, chatID int64, dedup cache.Deduper) Option {
	return func(e *Engine) {
		e.alertFn = fn
		e.alertChat = chatID
		e.dedup = dedup
	}
}

// Engine refreshes registered sources and keeps their latest snapshots.
type Engine struct {
	store     SnapshotStore
	logger    *slog.Logger
	interval  time.Duration
	alertFn   AlertFunc
	alertChat int64
	dedup     cache.Deduper

	sources  map[string]Source
	lastSnap map[string]*Snapshot
	mu       sync.RWMutex
}

// NewEngine returns an Engine. A nil store keeps snapshots in memory only.
func NewEngine(s SnapshotStore, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		logger:   logger,
		interval: DefaultPollInterval,
		sources:  make(map[string]Source),
		lastSnap: make(map[string]*Snapshot),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dedup == nil {
		e.dedup = cache.NewMemory()
	}
	return e
}

// Register adds a data source to the engine.
func (e *Engine) Register(src Source) {
	e.sources[src.Name()] = src
	if sched, ok := src.(Scheduled); ok {
		e.logger.Info("registered source", "source", src.Name(), "schedule", sched.Schedule())
		return
	}
	e.logger.Info("registered source", "source", src.Name(), "interval", e.interval)
}

// SourceNames returns names of all registered sources, sorted.
func (e *Engine) SourceNames() []string {
	names := make([]string, 0, len(e.sources))
	for n := range e.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) HasSource(name string) bool {
	_, ok := e.sources[name]
	return ok
}

// Schedule returns the cron schedule of a scheduled source, or "".
func (e *Engine) Schedule(source string) string {
	if sched, ok := e.sources[source].(Scheduled); ok {
		return sched.Schedule()
	}
	return ""
}

// Status renders one line per source with the age of its snapshot.
func (e *Engine) Status() string {
	var b strings.Builder
	b.WriteString("📊 <b>Refresh status</b>\n")
	for _, name := range e.SourceNames() {
		snap := e.GetSnapshot(name)
		if snap == nil {
			fmt.Fprintf(&b, "\n❌ %s: no data yet", name)
			continue
		}
		fmt.Fprintf(&b, "\n✅ %s: %s ago", name, time.Since(snap.FetchedAt).Round(time.Second))
	}
	return b.String()
}

// GetSnapshot returns the latest cached snapshot for a source.
func (e *Engine) GetSnapshot(source string) *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnap[source]
}

// Snapshots returns the latest snapshot of every source that has one.
func (e *Engine) Snapshots() map[string]*Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*Snapshot, len(e.lastSnap))
	for k, v := range e.lastSnap {
		out[k] = v
	}
	return out
}

// Ping fails until every registered source has a snapshot, so /readyz
// holds traffic back until the API has something to serve.
func (e *Engine) Ping(context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var missing []string
	for name := range e.sources {
		if e.lastSnap[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no snapshot yet: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Restore loads the last persisted snapshot of every source.
func (e *Engine) Restore(ctx context.Context) {
	if e.store == nil {
		return
	}
	for name := range e.sources {
		var snap Snapshot
		err := e.store.LatestSnapshot(ctx, name, &snap)
		if err != nil {
			e.logger.Debug("no persisted snapshot", "source", name, "error", err)
			continue
		}
		e.mu.Lock()
		e.lastSnap[name] = &snap
		e.mu.Unlock()
		e.logger.Info("restored snapshot", "source", name, "fetched_at", snap.FetchedAt)
	}
}

// Run refreshes every source once, then keeps polling interval sources and
// triggering scheduled ones until ctx ends. Call Restore first to serve
// persisted snapshots while the first refreshes are in flight.
func (e *Engine) Run(ctx context.Context) error {
	var polled []Source
	c := cron.New(cron.WithLocation(time.UTC))
	for _, name := range e.SourceNames() {
		src := e.sources[name]
		sched, ok := src.(Scheduled)
		if !ok {
			polled = append(polled, src)
			continue
		}
		_, err := c.AddFunc(sched.Schedule(), func() {
			if _, err := e.refresh(ctx, src, scheduledTimeout); err != nil {
				e.logger.Warn("scheduled refresh failed", "source", name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		e.logger.Info("scheduled source", "source", name, "schedule", sched.Schedule())

		// Scheduled sources without a persisted snapshot are fetched once now.
		if e.GetSnapshot(name) == nil {
			go func() {
				if _, err := e.refresh(ctx, src, scheduledTimeout); err != nil {
					e.logger.Warn("initial refresh failed", "source", name, "error", err)
				}
			}()
		}
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	e.pollAll(ctx, polled)

	pollTicker := time.NewTicker(e.interval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			e.pollAll(ctx, polled)
		}
	}
}

// Refresh fetches one source immediately.
func (e *Engine) Refresh(ctx context.Context, source string) (*Snapshot, error) {
	src, ok := e.sources[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	timeout := fetchTimeout
	if _, ok := src.(Scheduled); ok {
		timeout = scheduledTimeout
	}
	return e.refresh(ctx, src, timeout)
}

func (e *Engine) pollAll(ctx context.Context, srcs []Source) {
	fns := make([]fanout.Func[*Snapshot], len(srcs))
	for i, src := range srcs {
		fns[i] = func(ctx context.Context) (*Snapshot, error) {
			return e.refresh(ctx, src, fetchTimeout)
		}
	}
	results := fanout.Settle(ctx, maxConcurrentFetches, fns...)
	_, errs := fanout.Values(results)
	if len(errs) > 0 {
		e.logger.Warn("poll finished with failures", "sources", len(srcs), "failed", len(errs))
	}
}

func (e *Engine) refresh(ctx context.Context, src Source, timeout time.Duration) (*Snapshot, error) {
	name := src.Name()
	start := time.Now()
	snap, err := fetchWithTimeout(ctx, src.FetchSnapshot, timeout)
	metrics.PollDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollTotal.WithLabelValues(name, "error").Inc()
		e.logger.Error("fetch snapshot failed", "source", name, "error", err)
		e.alertFailure(ctx, name, err)
		return nil, err
	}
	if snap.Source == "" {
		snap.Source = name
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}

	metrics.PollTotal.WithLabelValues(name, "success").Inc()
	metrics.PollLastSuccess.WithLabelValues(name).SetToCurrentTime()
	for k, v := range snap.Metrics {
		metrics.MetricValue.WithLabelValues(name, k).Set(v)
	}
	for k, pts := range snap.Series {
		metrics.SeriesPoints.WithLabelValues(name, k).Set(float64(len(pts)))
	}

	e.mu.Lock()
	e.lastSnap[name] = snap
	e.mu.Unlock()

	e.logger.Info("snapshot", "source", name, "metrics", snap.Metrics, "series", len(snap.Series))

	if e.store != nil {
		if err := e.store.SaveSnapshot(ctx, name, snap.FetchedAt, snap); err != nil {
			e.logger.Error("persist snapshot failed", "source", name, "error", err)
		}
	}
	e.alertRecovered(ctx, snap)
	return snap, nil
}

// fetchWithTimeout bounds a fetch by timeout on top of ctx.
func fetchWithTimeout(ctx context.Context, fn func(context.Context) (*Snapshot, error), timeout time.Duration) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snap, err := fn(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, fmt.Errorf("fetch timed out after %s: %w", timeout, err)
		}
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("source returned no snapshot")
	}
	return snap, nil
}

func failureKey(source string) string { return "refresh_failed:" + source }

func (e *Engine) alertFailure(ctx context.Context, source string, cause error) {
	if e.alertFn == nil || e.alertChat == 0 {
		return
	}
	key := failureKey(source)
	if e.dedup.AlreadySent(ctx, key) {
		metrics.AlertsDeduplicatedTotal.WithLabelValues(source).Inc()
		return
	}

	msg := fmt.Sprintf("⚠️ %s REFRESH FAILING\n\n%s", strings.ToUpper(source), cause)
	if prev := e.GetSnapshot(source); prev != nil {
		msg += fmt.Sprintf("\n\nServing snapshot from %s (%s old)",
			prev.FetchedAt.Format(time.RFC3339), time.Since(prev.FetchedAt).Round(time.Minute))
	}
	if err := e.alertFn(e.alertChat, msg); err != nil {
		metrics.AlertsFailedTotal.WithLabelValues(source).Inc()
		e.logger.Error("send alert failed", "source", source, "chat_id", e.alertChat, "error", err)
		return
	}
	metrics.AlertsSentTotal.WithLabelValues(source).Inc()
	e.dedup.Record(ctx, key)
}

func (e *Engine) alertRecovered(ctx context.Context, snap *Snapshot) {
	if e.alertFn == nil || e.alertChat == 0 {
		return
	}
	key := failureKey(snap.Source)
	sent, err := e.dedup.Sent(ctx, key)
	if err != nil {
		e.logger.Warn("skip recovery alert, dedup unavailable", "source", snap.Source, "error", err)
		return
	}
	if !sent {
		return
	}
	e.dedup.Clear(ctx, key)

	var b strings.Builder
	fmt.Fprintf(&b, "✅ %s RECOVERED", strings.ToUpper(snap.Source))
	names := make([]string, 0, len(snap.Metrics))
	for k := range snap.Metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("\n")
	}
	for _, k := range names {
		fmt.Fprintf(&b, "\n%s: %s", k, formatNum(snap.Metrics[k]))
	}
	if err := e.alertFn(e.alertChat, b.String()); err != nil {
		metrics.AlertsFailedTotal.WithLabelValues(snap.Source).Inc()
		e.logger.Error("send alert failed", "source", snap.Source, "chat_id", e.alertChat, "error", err)
		return
	}
	metrics.AlertsSentTotal.WithLabelValues(snap.Source).Inc()
}

func formatNum(v float64) string {
	if math.Abs(v) >= 1_000_000 {
		return fmt.Sprintf("%.2fM", v/1_000_000)
	}
	if math.Abs(v) >= 1_000 {
		return addCommas(fmt.Sprintf("%.2f", math.Round(v*100)/100))
	}
	return fmt.Sprintf("%.4f", v)
}

func addCommas(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	n := len(intPart)
	if n <= 3 {
		if len(parts) == 2 {
			return sign + intPart + "." + parts[1]
		}
		return sign + intPart
	}
	var result []byte
	for i, c := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	if len(parts) == 2 {
		return sign + string(result) + "." + parts[1]
	}
	return sign + string(result)
}
