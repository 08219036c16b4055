package optimize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTimeout bounds a single optimizer API request.
const DefaultTimeout = 10 * time.Second

// objectiveTolerance is the accepted gap between a solver's reported
// objective and the PCI recomputed from its mix. The API rounds mix
// percentages to two decimals, so small drift is expected.
const objectiveTolerance = 5.0

// Solver produces an optimal mix for a request. Implemented by [Client]
// (the remote API) and [Heuristic] (the local fallback).
type Solver interface {
	Solve(ctx context.Context, req Request) (*Result, error)
}

// Client calls the optimizer REST API.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout. Ignored when WithHTTPClient
// supplies a client with its own timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient creates a Client for the optimizer at baseURL (scheme + host,
// without the /api/optimize path).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: DefaultTimeout},
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Solver = (*Client)(nil)

// Solve validates req, POSTs it to /api/optimize, and cross-checks the
// response: the reported objective value must match the PCI recomputed from
// the returned mix, otherwise [ErrInconsistentResult] is returned.
func (c *Client) Solve(ctx context.Context, req Request) (*Result, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("optimize: invalid request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("optimize: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/optimize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("optimize: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("optimize: call api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("optimize: api returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("optimize: decode response: %w", err)
	}

	if got := RecomputePCI(req, &res); math.Abs(got-res.ObjectiveValue) > objectiveTolerance {
		return nil, fmt.Errorf("%w: reported %.2f, recomputed %.2f", ErrInconsistentResult, res.ObjectiveValue, got)
	}

	return &res, nil
}
