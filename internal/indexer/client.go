// Package indexer queries the GraphQL analytics indexer.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/web3-frozen/ousd-analytics/internal/httpjson"
)

type Client struct {
	url  string
	http *httpjson.Client
}

func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{url: url, http: httpjson.New(httpClient, logger)}
}

type request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Query posts a GraphQL operation and decodes its data into out. GraphQL
// errors are reported as a *httpjson.RemoteError of type "graphql".
func (c *Client) Query(ctx context.Context, operationName, query string, vars map[string]any, out any) error {
	var resp response
	err := c.http.Do(ctx, httpjson.Request{
		Method:       http.MethodPost,
		URL:          c.url,
		Body:         request{Query: query, Variables: vars, OperationName: operationName},
		KeepEnvelope: true,
	}, &resp)
	if err != nil {
		return fmt.Errorf("indexer %s: %w", operationName, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("indexer %s: %w", operationName, &httpjson.RemoteError{
			StatusCode: http.StatusOK,
			Type:       "graphql",
			Message:    strings.Join(msgs, "; "),
		})
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return fmt.Errorf("indexer %s: empty data", operationName)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode indexer %s: %w", operationName, err)
	}
	return nil
}
