package refresh

import (
	"context"
	"sort"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
)

// Source defines the interface that all data sources must implement.
// To add a new chart source, create a struct that implements this
// interface and register it with the Engine.
type Source interface {
	// Name returns a unique identifier for this source (e.g., "apy").
	Name() string

	// FetchSnapshot fetches and derives the current charts of the source.
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// Scheduled is implemented by sources refreshed on a cron schedule instead
// of the engine's poll interval.
type Scheduled interface {
	Schedule() string
}

// Snapshot is the derived state of one source at a point in time.
type Snapshot struct {
	Source    string                       `json:"source"`
	Metrics   map[string]float64           `json:"metrics"`
	Series    map[string][]analytics.Point `json:"series,omitempty"`
	FetchedAt time.Time                    `json:"fetched_at"`
}

// NewSnapshot returns an empty snapshot for source stamped with now.
func NewSnapshot(source string) *Snapshot {
	return &Snapshot{
		Source:    source,
		Metrics:   make(map[string]float64),
		Series:    make(map[string][]analytics.Point),
		FetchedAt: time.Now().UTC(),
	}
}

func (s *Snapshot) Metric(name string) (float64, bool) {
	v, ok := s.Metrics[name]
	return v, ok
}

// SeriesNames returns the series keys in sorted order.
func (s *Snapshot) SeriesNames() []string {
	names := make([]string, 0, len(s.Series))
	for n := range s.Series {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
