package dune

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State is the lifecycle state of a query execution.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// ParseState normalises the remote state names ("QUERY_STATE_EXECUTING",
// "completed", ...) onto the five local states.
func ParseState(raw string) (State, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "QUERY_STATE_")
	switch s {
	case "PENDING", "QUEUED":
		return StatePending, nil
	case "RUNNING", "EXECUTING":
		return StateRunning, nil
	case "COMPLETED", "COMPLETED_PARTIAL":
		return StateCompleted, nil
	case "FAILED", "EXPIRED":
		return StateFailed, nil
	case "CANCELLED", "CANCELED":
		return StateCancelled, nil
	}
	return "", fmt.Errorf("unknown execution state %q", raw)
}

func (s *State) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseState(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Parameter is one named query parameter.
type Parameter struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// parameterMap folds params into a name→value map; a repeated name keeps the
// value of its last occurrence.
func parameterMap(params []Parameter) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[p.Name] = p.Value
	}
	return m
}

// Execution is the handle returned by Execute.
type Execution struct {
	ExecutionID string `json:"execution_id"`
	State       State  `json:"state"`
}

// Status is the response of GetStatus.
type Status struct {
	ExecutionID        string     `json:"execution_id"`
	QueryID            int64      `json:"query_id"`
	State              State      `json:"state"`
	SubmittedAt        time.Time  `json:"submitted_at"`
	ExecutionStartedAt *time.Time `json:"execution_started_at,omitempty"`
	ExecutionEndedAt   *time.Time `json:"execution_ended_at,omitempty"`
	QueuePosition      int        `json:"queue_position,omitempty"`
}

// Row is a single result row keyed by column name.
type Row map[string]any

// Float returns column col as a float64, accepting numbers and numeric strings.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// String returns column col formatted as a string.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Time parses column col. The service emits "2006-01-02 15:04:05.000 UTC"
// for timestamps and bare dates for date columns.
func (r Row) Time(col string) (time.Time, bool) {
	s := r.String(col)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.000 MST",
		"2006-01-02 15:04:05 MST",
		time.RFC3339,
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ResultMetadata describes a result set.
type ResultMetadata struct {
	ColumnNames         []string `json:"column_names"`
	ResultSetBytes      int64    `json:"result_set_bytes"`
	TotalRowCount       int64    `json:"total_row_count"`
	DatapointCount      int64    `json:"datapoint_count"`
	PendingTimeMillis   int64    `json:"pending_time_millis"`
	ExecutionTimeMillis int64    `json:"execution_time_millis"`
}

// Result is a completed execution's row set, in the order the service
// returned it.
type Result struct {
	ExecutionID string         `json:"execution_id"`
	QueryID     int64          `json:"query_id"`
	State       State          `json:"state"`
	Rows        []Row          `json:"rows"`
	Metadata    ResultMetadata `json:"metadata"`
}

type resultResponse struct {
	ExecutionID string `json:"execution_id"`
	QueryID     int64  `json:"query_id"`
	State       State  `json:"state"`
	Result      struct {
		Rows     []Row          `json:"rows"`
		Metadata ResultMetadata `json:"metadata"`
	} `json:"result"`
}

// RefreshError is returned when a driven execution ends FAILED or CANCELLED.
type RefreshError struct {
	QueryID     int64
	ExecutionID string
	State       State
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("execution %s of query %d ended %s", e.ExecutionID, e.QueryID, e.State)
}
