package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/heptiolabs/healthcheck"

	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
	"github.com/replug/replug/pkg/units"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	maxRunEvents     = 500
)

// UnitLister reports the currently loaded units. *units.Registry
// implements it; a nil lister serves an empty list (remote targets load
// units out of band).
type UnitLister interface {
	LoadedUnits() []units.UnitInfo
}

// Server is the HTTP status surface of the watch daemon. It serves the
// last check report, the loaded units, the run history, Prometheus
// metrics, and liveness/readiness probes.
type Server struct {
	addr   string
	router *mux.Router
	status *Status
	store  stores.Store
	units  UnitLister
	log    *telemetry.Logger
}

// NewServer builds the server and its routes. The watcher may be nil;
// the liveness probe then always passes.
func NewServer(addr string, status *Status, watcher *Watcher, store stores.Store, units UnitLister, tel *telemetry.Telemetry) *Server {
	s := &Server{
		addr:   addr,
		status: status,
		store:  store,
		units:  units,
		log:    tel.Logger.NewComponentLogger("watch-server"),
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("watch-loop", func() error {
		if watcher == nil {
			return nil
		}
		return watcher.Healthy()
	})
	health.AddReadinessCheck("store", s.storeReady)
	// Readiness means the daemon can serve status, not that the target
	// is healthy. The check result itself carries health.
	health.AddReadinessCheck("first-check", s.checkedReady)

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/units", s.handleUnits).Methods(http.MethodGet)
	r.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleRun).Methods(http.MethodGet)
	r.Handle("/metrics", tel.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/live", health.LiveEndpoint).Methods(http.MethodGet)
	r.HandleFunc("/ready", health.ReadyEndpoint).Methods(http.MethodGet)
	s.router = r

	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the HTTP server until the context is canceled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	s.log.WithField("address", s.addr).Info("Status server listening")

	select {
	case err := <-errChan:
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown failed: %w", err)
	}
	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	s.log.Info("Status server stopped")

	return nil
}

func (s *Server) storeReady() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.store.HealthCheck(ctx)
}

func (s *Server) checkedReady() error {
	if s.status.LastReport() == nil {
		return fmt.Errorf("no check has completed yet")
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	loaded := []units.UnitInfo{}
	if s.units != nil {
		loaded = s.units.LoadedUnits()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"units": loaded,
		"count": len(loaded),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultRunsLimit)
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	offset := queryInt(r, "offset", 0)

	runs, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []*stores.Run{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("run %s not found", id)})
			return
		}
		s.log.WithError(err).WithRunID(id).Error("Failed to get run")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
		return
	}

	events, err := s.store.GetEvents(r.Context(), &id, nil, maxRunEvents, 0)
	if err != nil {
		s.log.WithError(err).WithRunID(id).Warn("Failed to load run events")
		events = nil
	}
	if events == nil {
		events = []*stores.Event{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":    run,
		"events": events,
	})
}

// writeJSON writes v as the response body. Encode failures are logged;
// the status line is already gone by then.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.log.WithError(err).Warn("Failed to encode response")
	}
}

// queryInt reads a non-negative integer query parameter, falling back on
// absence or garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
