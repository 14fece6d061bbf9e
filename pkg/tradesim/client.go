// Package tradesim is a Go client for the tradesim-server HTTP API.
package tradesim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradesim/internal/api"
	"tradesim/internal/config"
	"tradesim/internal/engine"
)

// Types shared with the server.
type (
	Config     = config.Simulation
	Run        = engine.Run
	Result     = engine.Result
	Summary    = engine.Summary
	Comparison = engine.Comparison
	Strategy   = api.StrategyInfo
)

// Export kinds accepted by Client.Export.
const (
	ExportTrades = "trades"
	ExportEquity = "equity"
)

// APIError is a non-2xx response carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradesim: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client provides a Go SDK for interacting with the tradesim-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new tradesim API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Run submits cfg and returns the run id. Fields left zero in cfg are
// encoded as-is, so start from DefaultConfig rather than an empty Config.
func (c *Client) Run(ctx context.Context, cfg Config) (string, error) {
	var resp api.SimulationResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/simulations", cfg, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// Result fetches a run with its result once completed.
func (c *Client) Result(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/api/v1/simulations/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Wait polls Result every interval until the run is terminal.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (*Run, error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		run, err := c.Result(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.State.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// List returns the run summaries, newest first.
func (c *Client) List(ctx context.Context) ([]Summary, error) {
	var resp struct {
		Runs []Summary `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/simulations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Compare returns one row per completed run.
func (c *Client) Compare(ctx context.Context, ids ...string) ([]Comparison, error) {
	var resp struct {
		Comparison []Comparison `json:"comparison"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/simulations/compare", api.CompareRequest{RunIDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Comparison, nil
}

// Strategies lists the strategy catalogue.
func (c *Client) Strategies(ctx context.Context) ([]Strategy, error) {
	var resp struct {
		Strategies []Strategy `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// Export streams the CSV export of a completed run into w.
func (c *Client) Export(ctx context.Context, id, kind string, w io.Writer) error {
	path := "/api/v1/simulations/" + url.PathEscape(id) + "/export?kind=" + url.QueryEscape(kind)
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading export: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and converts error envelopes into *APIError.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var env api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return nil, apiErr
}

// DefaultConfig returns the server-side simulation defaults.
func DefaultConfig() Config { return config.DefaultSimulation() }
