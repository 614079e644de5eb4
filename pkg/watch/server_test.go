package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
	"github.com/replug/replug/pkg/units"
)

// newMetricsTelemetry builds telemetry with the Prometheus registry
// enabled so the /metrics route serves real samples.
func newMetricsTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Metrics.Enabled = true
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("Failed to build telemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	return tel
}

type fakeLister struct {
	infos []units.UnitInfo
}

func (f *fakeLister) LoadedUnits() []units.UnitInfo {
	return f.infos
}

type serverFixture struct {
	server *Server
	status *Status
	store  *stores.SQLiteStore
	tel    *telemetry.Telemetry
}

func newTestServer(t *testing.T, lister UnitLister) *serverFixture {
	t.Helper()

	tel := newMetricsTelemetry(t)
	store := newTestStore(t)
	status := NewStatus([]string{"plugind.conf", "plugins.list"})

	return &serverFixture{
		server: NewServer("127.0.0.1:0", status, nil, store, lister, tel),
		status: status,
		store:  store,
		tel:    tel,
	}
}

func (f *serverFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newTestServer(t, nil)
	f.status.Record(&CheckReport{
		Reason:    "startup",
		CheckedAt: time.Now().UTC(),
		Healthy:   true,
	})

	rec := f.get(t, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Expected a JSON content type, got %s", ct)
	}

	var snapshot Snapshot
	decodeBody(t, rec, &snapshot)
	if snapshot.ChecksTotal != 1 || !snapshot.Healthy {
		t.Errorf("Expected one healthy check, got %+v", snapshot)
	}
	if snapshot.LastCheck == nil || snapshot.LastCheck.Reason != "startup" {
		t.Errorf("Expected the startup report, got %+v", snapshot.LastCheck)
	}
	if len(snapshot.Watching) != 2 {
		t.Errorf("Expected 2 watched paths, got %v", snapshot.Watching)
	}
}

func TestUnitsEndpointWithoutLister(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.get(t, "/units")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Units []units.UnitInfo `json:"units"`
		Count int              `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 0 || len(body.Units) != 0 {
		t.Errorf("Expected an empty unit list, got %+v", body)
	}
}

func TestUnitsEndpoint(t *testing.T) {
	f := newTestServer(t, &fakeLister{infos: []units.UnitInfo{
		{Handle: "unit-1", Name: "overlay.menu", Path: "ux0:plugins/overlay.menu.wasm", LoadedAt: time.Now().UTC()},
		{Handle: "unit-2", Name: "patch-engine", Path: "ux0:plugins/patch-engine.wasm", LoadedAt: time.Now().UTC()},
	}})

	rec := f.get(t, "/units")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Units []units.UnitInfo `json:"units"`
		Count int              `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 || len(body.Units) != 2 {
		t.Fatalf("Expected 2 units, got %+v", body)
	}
	if body.Units[0].Name != "overlay.menu" {
		t.Errorf("Expected overlay.menu first, got %s", body.Units[0].Name)
	}
}

// seedRun records a completed run with one event.
func seedRun(t *testing.T, store *stores.SQLiteStore, id string) {
	t.Helper()

	ctx := context.Background()
	if err := store.CreateRun(ctx, &stores.Run{
		ID:        id,
		Source:    "fix",
		Status:    stores.RunStatusRunning,
		Issues:    "[]",
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	if err := store.CompleteRun(ctx, id, stores.RunStatusSucceeded, "[]", nil); err != nil {
		t.Fatalf("Failed to complete run: %v", err)
	}
	if err := store.AppendEvent(ctx, &stores.Event{
		RunID:     &id,
		Level:     stores.EventLevelInfo,
		Message:   "config patched",
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Failed to append event: %v", err)
	}
}

func TestRunsEndpoint(t *testing.T) {
	f := newTestServer(t, nil)
	seedRun(t, f.store, "run-1")
	seedRun(t, f.store, "run-2")

	rec := f.get(t, "/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Runs  []*stores.Run `json:"runs"`
		Count int           `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 {
		t.Fatalf("Expected 2 runs, got %+v", body)
	}

	rec = f.get(t, "/runs?limit=1")
	decodeBody(t, rec, &body)
	if body.Count != 1 {
		t.Errorf("Expected the limit to apply, got %d runs", body.Count)
	}

	// Garbage limits fall back instead of erroring.
	rec = f.get(t, "/runs?limit=bogus")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for a bogus limit, got %d", rec.Code)
	}
}

func TestRunEndpoint(t *testing.T) {
	f := newTestServer(t, nil)
	seedRun(t, f.store, "run-1")

	rec := f.get(t, "/runs/run-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Run    *stores.Run     `json:"run"`
		Events []*stores.Event `json:"events"`
	}
	decodeBody(t, rec, &body)
	if body.Run == nil || body.Run.ID != "run-1" {
		t.Fatalf("Expected run-1, got %+v", body.Run)
	}
	if body.Run.Status != stores.RunStatusSucceeded {
		t.Errorf("Expected a succeeded run, got %s", body.Run.Status)
	}
	if len(body.Events) != 1 || body.Events[0].Message != "config patched" {
		t.Errorf("Expected the run event, got %+v", body.Events)
	}
}

func TestRunEndpointNotFound(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.get(t, "/runs/absent")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.Contains(body["error"], "absent") {
		t.Errorf("Expected the missing id in the error, got %+v", body)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.get(t, "/live")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /live, got %d", rec.Code)
	}
}

func TestReadinessGatesOnFirstCheck(t *testing.T) {
	f := newTestServer(t, nil)

	rec := f.get(t, "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 before the first check, got %d", rec.Code)
	}

	f.status.Record(&CheckReport{Reason: "startup", CheckedAt: time.Now().UTC(), Healthy: false})

	rec = f.get(t, "/ready")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 after the first check, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newTestServer(t, nil)
	f.tel.Metrics.RecordWatchEvent("config")

	rec := f.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "replug_watch_events_total") {
		t.Error("Expected the watch event counter in the exposition")
	}
}

func TestMethodFiltering(t *testing.T) {
	f := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST /status, got %d", rec.Code)
	}
}

func TestServeGracefulShutdown(t *testing.T) {
	f := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected a clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected the server to stop after cancel")
	}
}
