package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

// Meta is the static part of /api/stats/meta.
type Meta struct {
	PollInterval time.Duration
	CMSURL       string
}

func Stats(engine *refresh.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("source")
		if source == "" {
			all := engine.Snapshots()
			snaps := make([]*refresh.Snapshot, 0, len(all))
			for _, s := range all {
				snaps = append(snaps, s)
			}
			sort.Slice(snaps, func(i, j int) bool { return snaps[i].Source < snaps[j].Source })
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(snaps)
			return
		}

		snap := engine.GetSnapshot(source)
		if snap == nil {
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

type sourceMeta struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule,omitempty"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	Series    []string   `json:"series"`
}

func StatsMetadata(engine *refresh.Engine, meta Meta) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := engine.SourceNames()
		sources := make([]sourceMeta, 0, len(names))
		for _, name := range names {
			sm := sourceMeta{Name: name, Schedule: engine.Schedule(name), Series: []string{}}
			if snap := engine.GetSnapshot(name); snap != nil {
				at := snap.FetchedAt
				sm.FetchedAt = &at
				sm.Series = snap.SeriesNames()
			}
			sources = append(sources, sm)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sources":       sources,
			"poll_interval": meta.PollInterval.String(),
			"cms_url":       meta.CMSURL,
		})
	}
}
