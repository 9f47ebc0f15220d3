package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	appsync "github.com/nhle/pmsync/internal/sync"
	"github.com/nhle/pmsync/internal/testutil"
)

type fakeSync struct {
	busy    bool
	events  *appsync.Broadcaster
	last    appsync.RunOptions
	result  model.SyncRunResult
	started int
}

func (f *fakeSync) Trigger(_ context.Context, opts appsync.RunOptions) (model.SyncRunResult, error) {
	if f.busy {
		return model.SyncRunResult{}, appsync.ErrRunInProgress
	}
	f.last = opts
	f.started++
	return f.result, nil
}

func (f *fakeSync) TriggerAsync(opts appsync.RunOptions) error {
	if f.busy {
		return appsync.ErrRunInProgress
	}
	f.last = opts
	f.started++
	return nil
}

func (f *fakeSync) Running() bool { return f.busy }
func (f *fakeSync) Events() *appsync.Broadcaster { return f.events }

func newTestServer(t *testing.T) (*Server, *fakeSync, *store.SQLStore) {
	t.Helper()
	s := testutil.NewTestStore(t)
	svc := &fakeSync{
		events: appsync.NewBroadcaster(),
		result: model.SyncRunResult{RunID: "run-1", Status: model.SyncCompleted},
	}
	return New(s, svc), svc, s
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestTriggerSync(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/sync", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("async trigger = %d %s", rec.Code, rec.Body.String())
	}
	if svc.last.Trigger != model.TriggerManual {
		t.Errorf("trigger = %s", svc.last.Trigger)
	}

	rec = do(t, srv, http.MethodPost, "/api/sync", `{"type":"incremental","project_key":"PROJ","wait":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("wait trigger = %d %s", rec.Code, rec.Body.String())
	}
	var res model.SyncRunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if res.RunID != "run-1" || svc.last.Type != model.SyncIncremental || svc.last.ProjectKey != "PROJ" {
		t.Errorf("result = %+v, opts = %+v", res, svc.last)
	}

	svc.busy = true
	if rec := do(t, srv, http.MethodPost, "/api/sync", ""); rec.Code != http.StatusConflict {
		t.Errorf("busy async trigger = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/sync", `{"wait":true}`); rec.Code != http.StatusConflict {
		t.Errorf("busy wait trigger = %d", rec.Code)
	}
}

func TestTriggerSyncRejectsBadInput(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	for _, body := range []string{`{"type":"weekly"}`, `{"project_key":"not a key"}`, `{`} {
		if rec := do(t, srv, http.MethodPost, "/api/sync", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d", body, rec.Code)
		}
	}
	if svc.started != 0 {
		t.Errorf("%d runs started from bad input", svc.started)
	}
}

func TestSyncRunEndpoints(t *testing.T) {
	srv, _, s := newTestServer(t)
	ctx := context.Background()

	if rec := do(t, srv, http.MethodGet, "/api/sync/runs/latest", ""); rec.Code != http.StatusNotFound {
		t.Errorf("latest on empty store = %d", rec.Code)
	}

	run := model.SyncRun{ID: "r1", StartedAt: time.Now().UTC(), Type: model.SyncFull, Trigger: model.TriggerManual}
	if err := s.CreateSyncRun(ctx, run); err != nil {
		t.Fatalf("CreateSyncRun: %v", err)
	}

	rec := do(t, srv, http.MethodGet, "/api/sync/runs/latest", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"r1"`) {
		t.Errorf("latest = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/sync/runs?status=running&limit=10", "")
	var runs []model.SyncRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("runs = %+v", runs)
	}

	if rec := do(t, srv, http.MethodGet, "/api/sync/runs?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit = %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/sync/runs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing run = %d", rec.Code)
	}
}

func TestProjectEndpoints(t *testing.T) {
	srv, _, s := newTestServer(t)
	ctx := context.Background()

	now := time.Now().UTC()
	project := model.Project{
		ID:        "p1",
		RemoteKey: "PROJ",
		Name:      "Project",
		Health:    model.Health{Level: model.HealthOnTrack, Reason: "Low task completion", Score: 0.2, Confidence: model.ConfidenceMedium, EvaluatedAt: &now},
		Progress:  model.Progress{TotalTasks: 4, CompletedTasks: 3},
	}
	if err := s.SaveSyncedProject(ctx, project); err != nil {
		t.Fatalf("SaveSyncedProject: %v", err)
	}

	rec := do(t, srv, http.MethodGet, "/api/projects", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"remote_key":"PROJ"`) {
		t.Errorf("projects = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/projects/PROJ/health", "")
	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if report.Health.Level != model.HealthOnTrack || report.Progress.CompletedTasks != 3 {
		t.Errorf("report = %+v", report)
	}

	rec = do(t, srv, http.MethodGet, "/api/projects/PROJ", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"milestones":[]`) {
		t.Errorf("project detail = %d %s", rec.Code, rec.Body.String())
	}

	for _, path := range []string{"/api/projects/NOPE", "/api/projects/NOPE/health", "/api/projects/NOPE/tasks"} {
		if rec := do(t, srv, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}
}

func TestEventsWebsocket(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for svc.events.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	res := model.SyncRunResult{RunID: "run-7", Status: model.SyncPartial}
	svc.events.Publish(appsync.Event{Kind: appsync.EventRunFinished, Result: &res})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev appsync.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Kind != appsync.EventRunFinished || ev.Result == nil || ev.Result.RunID != "run-7" {
		t.Errorf("event = %+v", ev)
	}
}
