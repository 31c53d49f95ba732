package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/web3-frozen/ousd-analytics/internal/analytics"
)

const maxLockupMonths = 48

// VeOGV answers the staking calculator: for a lockup of months starting at
// ?at (unix seconds, default now) it reports the veOGV received for staking
// amount OGV and the OGV required to receive amount veOGV.
func VeOGV(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		amount, err := strconv.ParseFloat(q.Get("amount"), 64)
		if err != nil || amount < 0 {
			http.Error(w, `{"error":"amount must be a non-negative number"}`, http.StatusBadRequest)
			return
		}
		months, err := strconv.ParseFloat(q.Get("months"), 64)
		if err != nil || months <= 0 || months > maxLockupMonths {
			http.Error(w, `{"error":"months must be between 0 and 48"}`, http.StatusBadRequest)
			return
		}
		at := now().Unix()
		if v := q.Get("at"); v != "" {
			at, err = strconv.ParseInt(v, 10, 64)
			if err != nil || at <= 0 {
				http.Error(w, `{"error":"invalid at"}`, http.StatusBadRequest)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"amount":       amount,
			"months":       months,
			"at":           at,
			"ve_ogv":       analytics.OGVToVeOGV(at, amount, months),
			"ogv_required": analytics.VeOGVToOGV(at, amount, months),
		})
	}
}
