package jira

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/source"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAdapter(srv.URL, Credentials{Email: "pm@example.com", Token: "tok"}, Options{
		StoryPointsField: "customfield_10016",
		SprintField:      "customfield_10020",
		BlockerJQL:       `status = "Blocked"`,
		PageSize:         2,
	})
}

func TestListUsersPagesAndFiltersAppAccounts(t *testing.T) {
	pages := map[string]string{
		"0": `[{"accountId":"a1","accountType":"atlassian","displayName":"Ann","emailAddress":"ann@example.com","active":true},
		       {"accountId":"bot","accountType":"app","displayName":"Bot"}]`,
		"2": `[{"accountId":"a2","accountType":"atlassian","displayName":"Bob","active":false}]`,
	}
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/users/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, _, ok := r.BasicAuth(); !ok || user != "pm@example.com" {
			t.Errorf("expected basic auth, got %q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(pages[r.URL.Query().Get("startAt")]))
	})

	users, err := a.ListUsers(t.Context())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d: %+v", len(users), users)
	}
	if users[0].AccountID != "a1" || users[0].Email != "ann@example.com" || !users[0].Active {
		t.Errorf("first user = %+v", users[0])
	}
	if users[1].AccountID != "a2" || users[1].Active {
		t.Errorf("second user = %+v", users[1])
	}
}

func TestListBoardsUsesLocationProject(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isLast":true,"values":[
			{"id":7,"name":"Team board","type":"scrum","location":{"projectKey":"PROJ"}},
			{"id":8,"name":"Flow","type":"KANBAN","location":{"projectKey":"OPS"}}]}`))
	})

	boards, err := a.ListBoards(t.Context())
	if err != nil {
		t.Fatalf("ListBoards: %v", err)
	}
	want := []source.RemoteBoard{
		{ID: 7, Name: "Team board", Type: "scrum", ProjectKey: "PROJ"},
		{ID: 8, Name: "Flow", Type: "kanban", ProjectKey: "OPS"},
	}
	if len(boards) != len(want) {
		t.Fatalf("got %d boards", len(boards))
	}
	for i := range want {
		if boards[i] != want[i] {
			t.Errorf("board %d = %+v, want %+v", i, boards[i], want[i])
		}
	}
}

func TestListTasksForProjectIncrementalWindow(t *testing.T) {
	var gotJQL []string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding search request: %v", err)
		}
		gotJQL = append(gotJQL, req.JQL)
		_, _ = w.Write([]byte(`{"total":1,"issues":[{"key":"PROJ-1","fields":{
			"summary":"Ship it",
			"status":{"name":"In Review","statusCategory":{"key":"indeterminate"}},
			"priority":{"id":"2","name":"High"},
			"issuetype":{"name":"Story"},
			"assignee":{"accountId":"a1","displayName":"Ann"},
			"project":{"key":"PROJ"},
			"created":"2026-01-02T10:00:00.000+0000",
			"updated":"2026-01-05T10:00:00.000+0000",
			"duedate":"2026-02-01",
			"customfield_10016":5,
			"customfield_10020":[{"id":3,"state":"closed"},{"id":4,"state":"active"}]}}]}`))
	})

	since := time.Date(2026, 1, 4, 8, 30, 0, 0, time.UTC)
	a.opts.Now = func() time.Time { return since.Add(90*time.Minute + 30*time.Second) }
	tasks, err := a.ListTasksForProject(t.Context(), "PROJ", source.TaskQuery{UpdatedSince: since})
	if err != nil {
		t.Fatalf("ListTasksForProject: %v", err)
	}
	// 90.5 minutes plus the overlap, rounded up.
	if len(gotJQL) != 1 || !strings.Contains(gotJQL[0], "updated >= -93m") {
		t.Errorf("JQL = %v", gotJQL)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}

	task := tasks[0]
	if task.Status != model.StatusInProgress {
		t.Errorf("status = %q", task.Status)
	}
	if task.Priority != model.PriorityHigh {
		t.Errorf("priority = %d", task.Priority)
	}
	if task.StoryPoints == nil || *task.StoryPoints != 5 {
		t.Errorf("story points = %v", task.StoryPoints)
	}
	if task.SprintID != 4 {
		t.Errorf("sprint = %d, want active sprint 4", task.SprintID)
	}
	if task.AssigneeAccountID != "a1" {
		t.Errorf("assignee = %q", task.AssigneeAccountID)
	}
	if task.DueDate == nil || task.DueDate.Format("2006-01-02") != "2026-02-01" {
		t.Errorf("due date = %v", task.DueDate)
	}
}

func TestUpdatedWithin(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{0, "updated >= -2m"},
		{time.Second, "updated >= -3m"},
		{time.Hour, "updated >= -62m"},
		{-time.Hour, "updated >= -1m"},
	}
	for _, tt := range tests {
		if got := updatedWithin(tt.age); got != tt.want {
			t.Errorf("updatedWithin(%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}

func TestListSprintsForBoardKeepsOriginBoard(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/agile/1.0/board/12/sprint" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"isLast":true,"values":[
			{"id":100,"name":"Sprint 1","state":"ACTIVE","originBoardId":10,"startDate":"2026-01-05T09:00:00.000Z"}]}`))
	})

	sprints, err := a.ListSprintsForBoard(t.Context(), 12)
	if err != nil {
		t.Fatalf("ListSprintsForBoard: %v", err)
	}
	if len(sprints) != 1 {
		t.Fatalf("got %d sprints", len(sprints))
	}
	sp := sprints[0]
	if sp.BoardID != 12 || sp.OriginBoardID != 10 || sp.State != "active" || sp.StartDate == nil {
		t.Errorf("sprint = %+v", sp)
	}
}

func TestListTasksMalformedFieldsKeepKey(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":1,"issues":[{"key":"PROJ-9","fields":{"summary":42}}]}`))
	})

	tasks, err := a.ListTasksForProject(t.Context(), "PROJ", source.TaskQuery{})
	if err != nil {
		t.Fatalf("ListTasksForProject: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Key != "PROJ-9" || tasks[0].Title != "" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestGetProjectMetrics(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case req.MaxResults == 0 && strings.Contains(req.JQL, "statusCategory = Done"):
			_, _ = w.Write([]byte(`{"total":4}`))
		case req.MaxResults == 0 && strings.Contains(req.JQL, "updated >="):
			_, _ = w.Write([]byte(`{"total":6}`))
		case req.MaxResults == 0 && strings.Contains(req.JQL, "Blocked"):
			_, _ = w.Write([]byte(`{"total":1}`))
		case req.MaxResults == 0:
			_, _ = w.Write([]byte(`{"total":10}`))
		default:
			_, _ = w.Write([]byte(`{"total":2,"issues":[
				{"key":"PROJ-1","fields":{"status":{"statusCategory":{"key":"done"}},"customfield_10016":3}},
				{"key":"PROJ-2","fields":{"status":{"statusCategory":{"key":"new"}},"customfield_10016":5}}]}`))
		}
	})

	p, err := a.GetProjectMetrics(t.Context(), "PROJ")
	if err != nil {
		t.Fatalf("GetProjectMetrics: %v", err)
	}
	want := model.Progress{
		TotalTasks:           10,
		CompletedTasks:       4,
		TotalStoryPoints:     8,
		CompletedStoryPoints: 3,
		ActiveBlockers:       1,
		RecentUpdates:        6,
	}
	if p != want {
		t.Errorf("progress = %+v, want %+v", p, want)
	}
}

func TestGetProjectMetricsSkipsUndecodableIssue(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxResults == 0 {
			_, _ = w.Write([]byte(`{"total":2}`))
			return
		}
		_, _ = w.Write([]byte(`{"total":2,"issues":[
			{"key":"PROJ-1","fields":{"status":"broken","customfield_10016":8}},
			{"key":"PROJ-2","fields":{"status":{"statusCategory":{"key":"done"}},"customfield_10016":5}}]}`))
	})

	p, err := a.GetProjectMetrics(t.Context(), "PROJ")
	if err != nil {
		t.Fatalf("GetProjectMetrics: %v", err)
	}
	if p.TotalStoryPoints != 5 || p.CompletedStoryPoints != 5 {
		t.Errorf("story points = %v / %v, want only the decodable issue", p.TotalStoryPoints, p.CompletedStoryPoints)
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := a.ListProjects(t.Context())
	if !source.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name     string
		category string
		want     model.TaskStatus
	}{
		{"To Do", "new", model.StatusToDo},
		{"In Progress", "indeterminate", model.StatusInProgress},
		{"Done", "done", model.StatusDone},
		{"Blocked", "indeterminate", model.StatusBlocked},
		{"On Hold", "new", model.StatusOnHold},
		{"Won't Do", "done", model.StatusCancelled},
		{"Cancelled", "done", model.StatusCancelled},
		{"Whatever", "", model.StatusToDo},
	}
	for _, tt := range tests {
		got := normalizeStatus(Status{Name: tt.name, StatusCategory: StatusCategory{Key: tt.category}})
		if got != tt.want {
			t.Errorf("normalizeStatus(%q, %q) = %q, want %q", tt.name, tt.category, got, tt.want)
		}
	}
}

func TestNormalizePriority(t *testing.T) {
	tests := []struct {
		in   *Priority
		want int
	}{
		{nil, model.PriorityMedium},
		{&Priority{ID: "1"}, model.PriorityCritical},
		{&Priority{ID: "5"}, model.PriorityLowest},
		{&Priority{ID: "10001", Name: "Major"}, model.PriorityHigh},
		{&Priority{ID: "10002", Name: "Unusual"}, model.PriorityMedium},
	}
	for _, tt := range tests {
		if got := normalizePriority(tt.in); got != tt.want {
			t.Errorf("normalizePriority(%+v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCurrentSprintID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{`null`, 0},
		{`[]`, 0},
		{`[{"id":1,"state":"closed"},{"id":2,"state":"future"}]`, 2},
		{`[{"id":1,"state":"closed"},{"id":2,"state":"closed"}]`, 2},
		{`["com.atlassian.greenhopper.service.sprint.Sprint@1f[id=11,rapidViewId=3,state=CLOSED,name=S1]",
		   "com.atlassian.greenhopper.service.sprint.Sprint@2f[id=12,rapidViewId=3,state=ACTIVE,name=S2]"]`, 12},
	}
	for _, tt := range tests {
		if got := currentSprintID(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("currentSprintID(%s) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
