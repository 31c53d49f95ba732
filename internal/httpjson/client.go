// Package httpjson issues HTTP requests and decodes JSON bodies, turning
// failure statuses and error envelopes into typed errors.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 32 << 20

// Request describes a single call. Body is JSON-encoded when non-nil.
type Request struct {
	Method  string
	URL     string
	Body    any
	Headers map[string]string
	// KeepEnvelope decodes the whole body into out even when it has a
	// "data" member.
	KeepEnvelope bool
}

// Client wraps an *http.Client with JSON decoding and error classification.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	headers map[string]string
}

// New returns a Client. A nil httpClient gets a 30s timeout client.
func New(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, logger: logger, headers: map[string]string{}}
}

// WithHeader returns a copy of c that sends key: value on every request.
func (c *Client) WithHeader(key, value string) *Client {
	h := make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		h[k] = v
	}
	h[key] = value
	return &Client{http: c.http, logger: c.logger, headers: h}
}

// Get decodes the JSON body at url into out.
func (c *Client) Get(ctx context.Context, url string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url}, out)
}

// Post sends body as JSON to url and decodes the response into out.
func (c *Client) Post(ctx context.Context, url string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Body: body}, out)
}

// Do performs req and decodes the response into out (which may be nil).
//
// Non-2xx responses are logged and their bodies still parsed: an "error"
// member or an "errors" list yields a *RemoteError, anything else a
// *TransportError. A 2xx body
// carrying an "error" member is also a *RemoteError. When the body is an
// object with a "data" member, only that member is decoded into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &TransportError{Method: method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Method: method, URL: req.URL, StatusCode: resp.StatusCode, Err: err}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		c.logger.Warn("http request failed",
			"method", method,
			"url", req.URL,
			"status", resp.StatusCode,
			"reason", http.StatusText(resp.StatusCode),
		)
	}

	var env struct {
		Data   json.RawMessage   `json:"data"`
		Error  *remoteErrorField `json:"error"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	isEnvelope := json.Unmarshal(raw, &env) == nil

	if isEnvelope && env.Error != nil && !env.Error.empty() {
		return &RemoteError{StatusCode: resp.StatusCode, Type: env.Error.Type, Message: env.Error.Message}
	}
	// GraphQL servers reject bad operations with a non-2xx "errors" list.
	if !ok && isEnvelope && len(env.Errors) > 0 {
		msgs := make([]string, len(env.Errors))
		for i, e := range env.Errors {
			msgs[i] = e.Message
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: strings.Join(msgs, "; ")}
	}
	if !ok {
		return &TransportError{
			Method:     method,
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	payload := raw
	if isEnvelope && len(env.Data) > 0 && !req.KeepEnvelope {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, req.URL, err)
	}
	return nil
}
