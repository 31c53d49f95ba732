// Package dune talks to the remote query-execution service: it submits
// parameterised queries, tracks their executions and fetches results.
package dune

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/web3-frozen/ousd-analytics/internal/httpjson"
)

const (
	DefaultBaseURL = "https://api.dune.com/api/v1"
	apiKeyHeader   = "X-Dune-API-Key"
)

// Client wraps the execution endpoints. All calls are remote side effects;
// nothing is deduplicated locally.
type Client struct {
	baseURL string
	http    *httpjson.Client
}

// NewClient returns a Client authenticated with apiKey. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpjson.New(httpClient, logger).WithHeader(apiKeyHeader, apiKey),
	}
}

// Execute submits queryID with params and returns the new execution.
func (c *Client) Execute(ctx context.Context, queryID int64, params []Parameter) (*Execution, error) {
	body := map[string]any{}
	if len(params) > 0 {
		body["query_parameters"] = parameterMap(params)
	}

	var out Execution
	if err := c.http.Post(ctx, fmt.Sprintf("%s/query/%d/execute", c.baseURL, queryID), body, &out); err != nil {
		return nil, fmt.Errorf("execute query %d: %w", queryID, err)
	}
	if out.ExecutionID == "" {
		return nil, fmt.Errorf("execute query %d: empty execution id", queryID)
	}
	return &out, nil
}

// GetStatus fetches the current state of an execution.
func (c *Client) GetStatus(ctx context.Context, executionID string) (*Status, error) {
	var out Status
	if err := c.http.Get(ctx, c.executionURL(executionID, "status"), &out); err != nil {
		return nil, fmt.Errorf("status %s: %w", executionID, err)
	}
	return &out, nil
}

// GetResult fetches the rows of an execution.
func (c *Client) GetResult(ctx context.Context, executionID string) (*Result, error) {
	var out resultResponse
	if err := c.http.Get(ctx, c.executionURL(executionID, "results"), &out); err != nil {
		return nil, fmt.Errorf("results %s: %w", executionID, err)
	}
	return &Result{
		ExecutionID: out.ExecutionID,
		QueryID:     out.QueryID,
		State:       out.State,
		Rows:        out.Result.Rows,
		Metadata:    out.Result.Metadata,
	}, nil
}

// CancelExecution asks the service to stop an execution and reports whether
// it accepted.
func (c *Client) CancelExecution(ctx context.Context, executionID string) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.http.Post(ctx, c.executionURL(executionID, "cancel"), nil, &out); err != nil {
		return false, fmt.Errorf("cancel %s: %w", executionID, err)
	}
	return out.Success, nil
}

func (c *Client) executionURL(executionID, action string) string {
	return fmt.Sprintf("%s/execution/%s/%s", c.baseURL, url.PathEscape(executionID), action)
}
