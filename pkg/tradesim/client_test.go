package tradesim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradesim/internal/engine"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func newTestServer(t *testing.T) *Client {
	t.Helper()
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/simulations", func(w http.ResponseWriter, r *http.Request) {
		var cfg Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil || cfg.Strategy != "momentum" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"INVALID_REQUEST","message":"bad strategy","details":{"run_id":"r-bad"}}}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"run_id":"r-1","state":"running"}`))
	})
	mux.HandleFunc("GET /api/v1/simulations/r-1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		state := engine.StateRunning
		if polls > 1 {
			state = engine.StateCompleted
		}
		json.NewEncoder(w).Encode(Run{ID: "r-1", State: state})
	})
	mux.HandleFunc("GET /api/v1/simulations/r-1/export", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("kind=" + r.URL.Query().Get("kind") + "\n"))
	})
	mux.HandleFunc("POST /api/v1/simulations/compare", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"comparison":[{"run_id":"r-1","total_trades":2}]}`))
	})
	mux.HandleFunc("GET /api/v1/simulations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"runs":[{"run_id":"r-1","state":"completed"}]}`))
	})
	mux.HandleFunc("GET /api/v1/strategies", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"strategies":[{"id":"momentum","composite":false}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Strategy = "momentum"
	id, err := c.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if id != "r-1" {
		t.Errorf("id = %q, want r-1", id)
	}

	run, err := c.Wait(ctx, id, time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if run.State != engine.StateCompleted {
		t.Errorf("state = %s, want completed", run.State)
	}

	var buf bytes.Buffer
	if err := c.Export(ctx, id, ExportEquity, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if buf.String() != "kind=equity\n" {
		t.Errorf("export body = %q, want kind=equity", buf.String())
	}

	rows, err := c.Compare(ctx, id)
	if err != nil || len(rows) != 1 || rows[0].TotalTrades != 2 {
		t.Errorf("Compare = %+v, %v, want one row with 2 trades", rows, err)
	}
	runs, err := c.List(ctx)
	if err != nil || len(runs) != 1 {
		t.Errorf("List = %+v, %v, want one run", runs, err)
	}
	strategies, err := c.Strategies(ctx)
	if err != nil || len(strategies) != 1 || strategies[0].ID != "momentum" {
		t.Errorf("Strategies = %+v, %v, want momentum", strategies, err)
	}
}

func TestClientAPIError(t *testing.T) {
	c := newTestServer(t)

	cfg := DefaultConfig()
	cfg.Strategy = "astrology"
	_, err := c.Run(context.Background(), cfg)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != "INVALID_REQUEST" || apiErr.Details["run_id"] != "r-bad" {
		t.Errorf("APIError = %+v, want 400 INVALID_REQUEST for r-bad", apiErr)
	}

	_, err = c.Result(context.Background(), "missing")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("Result(missing) = %v, want 404 APIError", err)
	}
}
