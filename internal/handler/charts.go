package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
)

const maxMovingAverage = 365

// Chart serves one series of a source. ?days=N keeps the newest N points
// and ?ma=N replaces values with their moving average.
func Chart(engine *refresh.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		series := chi.URLParam(r, "series")

		snap := engine.GetSnapshot(source)
		if snap == nil {
			if !engine.HasSource(source) {
				http.Error(w, `{"error":"unknown source"}`, http.StatusNotFound)
				return
			}
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}
		points, ok := snap.Series[series]
		if !ok {
			http.Error(w, `{"error":"unknown series"}`, http.StatusNotFound)
			return
		}

		q := r.URL.Query()
		if v := q.Get("ma"); v != "" {
			window, err := strconv.Atoi(v)
			if err != nil || window <= 0 || window > maxMovingAverage {
				http.Error(w, `{"error":"invalid ma"}`, http.StatusBadRequest)
				return
			}
			points = analytics.MovingAverageSeries(points, window)
		}
		if v := q.Get("days"); v != "" {
			days, err := strconv.Atoi(v)
			if err != nil || days <= 0 {
				http.Error(w, `{"error":"invalid days"}`, http.StatusBadRequest)
				return
			}
			if days < len(points) {
				points = points[len(points)-days:]
			}
		}
		if points == nil {
			points = []analytics.Point{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"source":     source,
			"series":     series,
			"fetched_at": snap.FetchedAt,
			"points":     points,
		})
	}
}
