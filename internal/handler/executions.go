package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/web3-frozen/ousd-analytics/internal/store"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

// ExecutionLister lists recorded query executions.
type ExecutionLister interface {
	ListExecutions(ctx context.Context, queryID int64, limit int) ([]store.Execution, error)
}

func ListExecutions(s ExecutionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var queryID int64
		if v := q.Get("query_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, `{"error":"invalid query_id"}`, http.StatusBadRequest)
				return
			}
			queryID = id
		}

		limit := defaultExecutionLimit
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
				return
			}
			limit = min(n, maxExecutionLimit)
		}

		execs, err := s.ListExecutions(r.Context(), queryID, limit)
		if err != nil {
			http.Error(w, `{"error":"failed to list executions"}`, http.StatusInternalServerError)
			return
		}
		if execs == nil {
			execs = []store.Execution{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(execs)
	}
}
