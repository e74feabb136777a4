// Package graphdb projects articles and themes into an openCypher graph
// store and merges duplicate nodes there.
package graphdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Row is one result record, keyed by the RETURN aliases.
type Row map[string]any

// Executor runs openCypher queries.
type Executor interface {
	// Execute rewrites the query (see RewriteQuery) before running it.
	Execute(ctx context.Context, query string, params map[string]any) ([]Row, error)
	// ExecuteVerbatim runs the query exactly as given.
	ExecuteVerbatim(ctx context.Context, query string, params map[string]any) ([]Row, error)
}

// StatusError is returned when the graph endpoint answers with a non-2xx
// status. The query is not retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph query failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to an openCypher HTTP endpoint such as Amazon Neptune's.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ Executor = (*Client)(nil)

// NewClient creates a client for endpoint. A bare host URL gets the
// /openCypher path appended.
func NewClient(endpoint string, timeout time.Duration) *Client {
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasSuffix(strings.ToLower(endpoint), "/opencypher") {
		endpoint += "/openCypher"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Execute(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	return c.do(ctx, RewriteQuery(query), params)
}

func (c *Client) ExecuteVerbatim(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	return c.do(ctx, query, params)
}

func (c *Client) do(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	form := url.Values{"query": {query}}
	if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode parameters: %w", err)
		}
		form.Set("parameters", string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out struct {
		Results []Row `json:"results"`
	}
	if len(body) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode graph response: %w", err)
	}
	return out.Results, nil
}
