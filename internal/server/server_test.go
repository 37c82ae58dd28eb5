package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/eventradar/internal/city"
	"github.com/FranksOps/eventradar/internal/pipeline"
	"github.com/FranksOps/eventradar/internal/report"
	"github.com/FranksOps/eventradar/internal/storage"
	"github.com/FranksOps/eventradar/internal/storage/sqlite"
)

// fakeRunner stores runs in the backend and completes them with one event.
type fakeRunner struct {
	backend storage.Backend
	n       int
}

func (f *fakeRunner) Submit(ctx context.Context, req pipeline.Request) (*storage.Run, error) {
	if req.CityID != "madrid" {
		return nil, fmt.Errorf("pipeline: %w: %s", city.ErrNotFound, req.CityID)
	}
	from, err := storage.ParseDay(req.DateFrom)
	if err != nil {
		return nil, fmt.Errorf("%w: date_from", pipeline.ErrInvalidRequest)
	}
	to, _ := storage.ParseDay(req.DateTo)
	f.n++
	run := &storage.Run{
		ID:        fmt.Sprintf("run-%d", f.n),
		CityID:    req.CityID,
		CityName:  "Madrid",
		Country:   "ES",
		DateFrom:  from,
		DateTo:    to,
		Segments:  []string{},
		Status:    storage.RunRunning,
		CreatedAt: time.Now().UTC().Add(time.Duration(f.n) * time.Second),
	}
	return run, f.backend.CreateRun(ctx, run)
}

func (f *fakeRunner) Execute(ctx context.Context, run *storage.Run) error {
	if _, err := f.backend.InsertEvent(ctx, run.ID, &storage.Event{
		Name:      "Warehouse Night",
		Date:      run.DateFrom,
		Setting:   storage.SettingIndoor,
		Segment:   "techno",
		SourceURL: "https://ra.co/events/1",
	}); err != nil {
		return err
	}
	if err := f.backend.SaveTrace(ctx, run.ID, &storage.Trace{EventsExtracted: 1, EventsBySource: map[string]int{"ra.co": 1}}); err != nil {
		return err
	}
	return f.backend.UpdateRunStatus(ctx, run.ID, storage.RunCompleted)
}

func newTestServer(t *testing.T) (*Server, storage.Backend) {
	t.Helper()
	b, err := sqlite.New("file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	cities, err := city.NewStatic([]city.City{{ID: "madrid", Name: "Madrid", Country: "ES", Latitude: 40.4, Longitude: -3.7, Timezone: "Europe/Madrid", RadiusKm: 30}})
	if err != nil {
		t.Fatalf("cities: %v", err)
	}
	return New(Config{Backend: b, Runner: &fakeRunner{backend: b}, Cities: cities}), b
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_RunLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/runs", `{"city_id":"madrid","date_from":"2026-11-06","date_to":"2026-11-09"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var run storage.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.ID == "" || run.Status != storage.RunRunning {
		t.Fatalf("unexpected run: %+v", run)
	}

	s.Wait()

	rec = do(t, h, http.MethodGet, "/api/runs/"+run.ID, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Errorf("expected completed run, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/runs/"+run.ID+"/days", "")
	var days []report.Day
	if err := json.Unmarshal(rec.Body.Bytes(), &days); err != nil {
		t.Fatalf("decode days: %v", err)
	}
	if len(days) != 1 || days[0].EventCount != 1 || days[0].Competition != report.CompetitionLow {
		t.Errorf("unexpected days: %+v", days)
	}

	rec = do(t, h, http.MethodGet, "/api/runs/"+run.ID+"/trace", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"events_extracted":1`) {
		t.Errorf("unexpected trace response %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/runs", "")
	var runs []storage.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].EventCount != 1 {
		t.Errorf("unexpected history: %+v", runs)
	}

	rec = do(t, h, http.MethodDelete, "/api/runs/"+run.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/runs/"+run.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestServer_CreateRunErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"city_id":`, http.StatusBadRequest},
		{"missing field", `{"city_id":"madrid"}`, http.StatusBadRequest},
		{"bad date", `{"city_id":"madrid","date_from":"soon","date_to":"2026-11-09"}`, http.StatusBadRequest},
		{"unknown city", `{"city_id":"atlantis","date_from":"2026-11-06","date_to":"2026-11-09"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/runs", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_DeleteRunningRunConflicts(t *testing.T) {
	s, b := newTestServer(t)
	ctx := context.Background()
	run := &storage.Run{ID: "busy", CityID: "madrid", Segments: []string{}, Status: storage.RunRunning, CreatedAt: time.Now().UTC()}
	if err := b.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	if rec := do(t, s.Handler(), http.MethodDelete, "/api/runs/busy", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if rec := do(t, s.Handler(), http.MethodGet, "/api/runs/busy/trace", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing trace, got %d", rec.Code)
	}
	if rec := do(t, s.Handler(), http.MethodGet, "/api/runs?status=running", ""); !strings.Contains(rec.Body.String(), `"id":"busy"`) {
		t.Errorf("expected running run in filtered list, got %s", rec.Body.String())
	}
	if rec := do(t, s.Handler(), http.MethodGet, "/api/runs?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from healthz, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("unexpected metrics response %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/cities", "")
	if !strings.Contains(rec.Body.String(), `"madrid"`) {
		t.Errorf("expected city list, got %s", rec.Body.String())
	}
}
