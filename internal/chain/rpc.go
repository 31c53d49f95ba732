// Package chain reads historical contract state from an Ethereum JSON-RPC
// endpoint.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/web3-frozen/ousd-analytics/internal/httpjson"
	"github.com/web3-frozen/ousd-analytics/internal/metrics"
)

// Call is one JSON-RPC method invocation.
type Call struct {
	Method string
	Params []any
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCError is an item-level error inside a batch response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response is one item of a batch response.
type Response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Decode unmarshals the result into out, or returns the item's error.
func (r Response) Decode(out any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return fmt.Errorf("rpc item %d: empty result", r.ID)
	}
	return json.Unmarshal(r.Result, out)
}

// Client is a JSON-RPC 2.0 client over HTTP.
type Client struct {
	url  string
	http *httpjson.Client
}

func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{url: url, http: httpjson.New(httpClient, logger)}
}

// Batch sends calls as one batch request and returns the responses in call
// order. The request fails as a whole only on transport errors; per-item
// errors are left in the returned responses.
func (c *Client) Batch(ctx context.Context, calls []Call) ([]Response, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]rpcRequest, len(calls))
	for i, call := range calls {
		params := call.Params
		if params == nil {
			params = []any{}
		}
		reqs[i] = rpcRequest{JSONRPC: "2.0", ID: i, Method: call.Method, Params: params}
	}
	metrics.RPCBatchCalls.Observe(float64(len(calls)))

	var raw []Response
	if err := c.http.Post(ctx, c.url, reqs, &raw); err != nil {
		metrics.RPCErrorsTotal.WithLabelValues("batch").Inc()
		return nil, fmt.Errorf("rpc batch of %d: %w", len(calls), err)
	}

	// Providers may answer out of order; ids are the call indices.
	out := make([]Response, len(calls))
	seen := make([]bool, len(calls))
	for _, r := range raw {
		if r.ID < 0 || r.ID >= len(calls) || seen[r.ID] {
			continue
		}
		out[r.ID] = r
		seen[r.ID] = true
	}
	for i := range out {
		if !seen[i] {
			out[i] = Response{ID: i, Error: &RPCError{Code: -32603, Message: "missing from batch response"}}
		}
		if out[i].Error != nil {
			metrics.RPCErrorsTotal.WithLabelValues("item").Inc()
		}
	}
	return out, nil
}

// Call performs a single request and decodes its result into out.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	var resp Response
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	if err := c.http.Post(ctx, c.url, req, &resp); err != nil {
		metrics.RPCErrorsTotal.WithLabelValues("call").Inc()
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	return resp.Decode(out)
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hex string
	if err := c.Call(ctx, "eth_blockNumber", nil, &hex); err != nil {
		return 0, err
	}
	n, err := parseQuantity(hex)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return n.Uint64(), nil
}

// toQuantity hex-encodes a block height.
func toQuantity(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}

// parseQuantity decodes a 0x-prefixed hex quantity or storage word.
func parseQuantity(s string) (*big.Int, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if h == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
