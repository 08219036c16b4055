package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/BrightProgrammer7/OptiBlend/internal/health"
	"github.com/BrightProgrammer7/OptiBlend/internal/inventory"
	"github.com/BrightProgrammer7/OptiBlend/internal/observe"
	"github.com/BrightProgrammer7/OptiBlend/internal/optimize"
	"github.com/BrightProgrammer7/OptiBlend/internal/session"
	"github.com/BrightProgrammer7/OptiBlend/internal/telemetry"
)

// adminDeps collects everything the operator HTTP endpoints touch.
type adminDeps struct {
	session   *session.Session
	inventory *inventory.Store
	optimizer *optimize.Service
	store     *telemetry.Store // nil when postgres is not configured
	optimizeC optimize.Constraints
	metrics   *observe.Metrics
}

// newAdminMux assembles the operator HTTP surface: Prometheus metrics,
// health probes, and the inventory/optimize/telemetry endpoints.
func newAdminMux(deps adminDeps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := []health.Checker{
		health.Session(deps.session.Connected),
	}
	if deps.store != nil {
		checkers = append(checkers, health.Database("postgres", deps.store))
	}
	health.New(checkers...).Register(mux)

	mux.HandleFunc("GET /api/inventory", deps.handleInventoryList)
	mux.HandleFunc("POST /api/inventory/adjust", deps.handleInventoryAdjust)
	mux.HandleFunc("POST /api/optimize", deps.handleOptimize)
	mux.HandleFunc("GET /api/telemetry/recent", deps.handleTelemetryRecent)

	return observe.Middleware(deps.metrics)(mux)
}

func (d adminDeps) handleInventoryList(w http.ResponseWriter, r *http.Request) {
	streams, err := d.inventory.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, streams)
}

func (d adminDeps) handleInventoryAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string  `json:"name"`
		Delta float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stream, err := d.inventory.Adjust(req.Name, req.Delta)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

// handleOptimize builds a fuel-mix request from current stocks and solves
// it, through the backend API when healthy and the local heuristic when not.
// A request body may override the default constraints.
func (d adminDeps) handleOptimize(w http.ResponseWriter, r *http.Request) {
	constraints := d.optimizeC
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&constraints); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	streams, err := d.inventory.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	req := optimize.RequestFromStreams(streams, constraints)

	start := time.Now()
	res, origin, err := d.optimizer.Optimize(r.Context(), req)
	d.metrics.OptimizeDuration.Record(r.Context(), time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("origin", origin)))
	if err != nil {
		d.metrics.RecordOptimizeRequest(r.Context(), origin, "error")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	d.metrics.RecordOptimizeRequest(r.Context(), origin, "ok")

	writeJSON(w, http.StatusOK, struct {
		Origin string `json:"origin"`
		*optimize.Result
	}{Origin: origin, Result: res})
}

func (d adminDeps) handleTelemetryRecent(w http.ResponseWriter, r *http.Request) {
	if d.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("telemetry history not configured"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	records, err := d.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("admin response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// serveAdmin runs the admin HTTP server until ctx is cancelled, then shuts
// it down gracefully.
func serveAdmin(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
