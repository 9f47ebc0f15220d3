package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	"github.com/nhle/pmsync/internal/testutil"
)

func seedProject(t *testing.T, s store.Store, key string) model.Project {
	t.Helper()
	p := model.Project{
		ID:        uuid.New().String(),
		RemoteKey: key,
		Name:      key + " project",
		Health:    model.Health{Level: model.HealthUnknown, Confidence: model.ConfidenceLow},
	}
	if err := s.SaveSyncedProject(context.Background(), p); err != nil {
		t.Fatalf("SaveSyncedProject: %v", err)
	}
	return p
}

func TestUserLookups(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	account := "acc-1"
	u := model.User{
		ID:              uuid.New().String(),
		RemoteAccountID: &account,
		Email:           "Ann@Example.com",
		DisplayName:     "Ann",
		Active:          true,
		Source:          model.UserSourceRemote,
	}
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	byAccount, err := s.GetUserByAccountID(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetUserByAccountID: %v", err)
	}
	if byAccount.ID != u.ID || !byAccount.Active || byAccount.Source != model.UserSourceRemote {
		t.Errorf("by account = %+v", byAccount)
	}

	byEmail, err := s.GetUserByEmail(ctx, "ann@EXAMPLE.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("case-insensitive email lookup returned %s", byEmail.ID)
	}

	_, err = s.GetUserByAccountID(ctx, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	dup := model.User{ID: uuid.New().String(), Email: "ann@example.com", Source: model.UserSourceLocal}
	if err := s.SaveUser(ctx, dup); err == nil {
		t.Error("expected unique violation for email differing only in case")
	}
}

func TestSaveUserUpdatesInPlace(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	account := "acc-2"
	stub := model.User{
		ID:              uuid.New().String(),
		RemoteAccountID: &account,
		Email:           model.StubEmail(account),
		Source:          model.UserSourceRemote,
		IsStub:          true,
	}
	if err := s.SaveUser(ctx, stub); err != nil {
		t.Fatalf("SaveUser stub: %v", err)
	}

	stub.Email = "bob@example.com"
	stub.DisplayName = "Bob"
	stub.IsStub = false
	if err := s.SaveUser(ctx, stub); err != nil {
		t.Fatalf("SaveUser enrich: %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].ID != stub.ID || users[0].IsStub || users[0].Email != "bob@example.com" {
		t.Errorf("enriched user = %+v", users[0])
	}
}

func TestSaveSyncedProjectKeepsPlan(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	p := seedProject(t, s, "PROJ")
	target := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	plan := model.Plan{
		OverallStatus:    model.PlanStatusActive,
		ExecutiveSummary: "Ship v2",
		Owner:            "dana",
		TargetDate:       &target,
	}
	if err := s.UpdateProjectPlan(ctx, p.ID, plan); err != nil {
		t.Fatalf("UpdateProjectPlan: %v", err)
	}
	if err := s.SetProjectArchived(ctx, p.ID, true); err != nil {
		t.Fatalf("SetProjectArchived: %v", err)
	}

	// A sync write carrying an empty plan must not clear the PM's plan.
	p.Name = "Renamed"
	p.Progress = model.Progress{TotalTasks: 10, CompletedTasks: 4}
	p.Health = model.Health{Level: model.HealthOnTrack, Score: 0.3, Confidence: model.ConfidenceHigh}
	if err := s.SaveSyncedProject(ctx, p); err != nil {
		t.Fatalf("SaveSyncedProject: %v", err)
	}

	got, err := s.GetProjectByKey(ctx, "PROJ")
	if err != nil {
		t.Fatalf("GetProjectByKey: %v", err)
	}
	if got.Name != "Renamed" || got.Progress.TotalTasks != 10 || got.Health.Level != model.HealthOnTrack {
		t.Errorf("sync fields not written: %+v", got)
	}
	if got.Plan.ExecutiveSummary != "Ship v2" || got.Plan.Owner != "dana" ||
		got.Plan.TargetDate == nil || !got.Plan.TargetDate.Equal(target) {
		t.Errorf("plan overwritten: %+v", got.Plan)
	}
	if !got.Archived {
		t.Error("archived flag overwritten")
	}

	active, err := s.ListProjects(ctx, false)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("archived project listed: %+v", active)
	}
}

func TestMilestonesAndRisks(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s, "PROJ")

	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	m := model.Milestone{ID: uuid.New().String(), ProjectID: p.ID, Title: "Beta", DueDate: &due}
	if err := s.AddMilestone(ctx, m); err != nil {
		t.Fatalf("AddMilestone: %v", err)
	}
	if err := s.SetMilestoneDone(ctx, m.ID, true); err != nil {
		t.Fatalf("SetMilestoneDone: %v", err)
	}
	milestones, err := s.ListMilestones(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListMilestones: %v", err)
	}
	if len(milestones) != 1 || !milestones[0].Done || milestones[0].DueDate == nil {
		t.Errorf("milestones = %+v", milestones)
	}

	r := model.Risk{ID: uuid.New().String(), ProjectID: p.ID, Title: "Vendor delay", Severity: model.RiskHigh}
	if err := s.AddRisk(ctx, r); err != nil {
		t.Fatalf("AddRisk: %v", err)
	}
	if err := s.CloseRisk(ctx, r.ID); err != nil {
		t.Fatalf("CloseRisk: %v", err)
	}
	risks, err := s.ListRisks(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListRisks: %v", err)
	}
	if len(risks) != 1 || risks[0].Open || risks[0].Severity != model.RiskHigh {
		t.Errorf("risks = %+v", risks)
	}

	if err := s.CloseRisk(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskRoundTripAndDelete(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s, "PROJ")

	board := model.Board{ID: uuid.New().String(), RemoteID: 7, ProjectID: p.ID, Name: "B", Type: model.BoardTypeScrum}
	if err := s.SaveBoard(ctx, board); err != nil {
		t.Fatalf("SaveBoard: %v", err)
	}
	sprint := model.Sprint{ID: uuid.New().String(), RemoteID: 40, BoardID: board.ID, Name: "S1", State: model.SprintActive}
	if err := s.SaveSprint(ctx, sprint); err != nil {
		t.Fatalf("SaveSprint: %v", err)
	}

	points := 3.5
	now := time.Now().UTC()
	task := model.Task{
		ID:              uuid.New().String(),
		RemoteKey:       "PROJ-1",
		ProjectID:       p.ID,
		SprintID:        &sprint.ID,
		Title:           "Do it",
		Status:          model.StatusInProgress,
		StoryPoints:     &points,
		Priority:        model.PriorityHigh,
		RemoteCreatedAt: now,
		RemoteUpdatedAt: now,
		StatusChangedAt: now,
		LastSyncedAt:    now,
	}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}

	got, err := s.GetTaskByKey(ctx, "PROJ-1")
	if err != nil {
		t.Fatalf("GetTaskByKey: %v", err)
	}
	if got.SprintID == nil || *got.SprintID != sprint.ID {
		t.Errorf("sprint = %v", got.SprintID)
	}
	if got.StoryPoints == nil || *got.StoryPoints != 3.5 {
		t.Errorf("story points = %v", got.StoryPoints)
	}
	if got.AssigneeID != nil || got.DueDate != nil {
		t.Errorf("expected nil assignee and due date: %+v", got)
	}
	if !got.RemoteUpdatedAt.Equal(now) {
		t.Errorf("remote updated = %v, want %v", got.RemoteUpdatedAt, now)
	}

	if err := s.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	tasks, err := s.ListTasksByProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListTasksByProject: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestSyncRunLifecycle(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	cutoff, err := s.LatestCutoff(ctx)
	if err != nil || cutoff != nil {
		t.Fatalf("LatestCutoff on empty store = %v, %v", cutoff, err)
	}

	start := time.Now().UTC().Add(-time.Minute)
	run := model.SyncRun{
		ID:        uuid.New().String(),
		StartedAt: start,
		Type:      model.SyncFull,
		Trigger:   model.TriggerManual,
	}
	if err := s.CreateSyncRun(ctx, run); err != nil {
		t.Fatalf("CreateSyncRun: %v", err)
	}

	run.Status = model.SyncCompleted
	run.Created = 3
	run.DataCutoff = &start
	if err := s.FinishSyncRun(ctx, run); err != nil {
		t.Fatalf("FinishSyncRun: %v", err)
	}
	if err := s.FinishSyncRun(ctx, run); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second finish should be rejected, got %v", err)
	}

	cutoff, err = s.LatestCutoff(ctx)
	if err != nil {
		t.Fatalf("LatestCutoff: %v", err)
	}
	if cutoff == nil || !cutoff.Equal(start) {
		t.Errorf("cutoff = %v, want %v", cutoff, start)
	}

	full, err := s.LastFullRun(ctx)
	if err != nil {
		t.Fatalf("LastFullRun: %v", err)
	}
	if full.ID != run.ID || full.Created != 3 || full.FinishedAt == nil {
		t.Errorf("last full run = %+v", full)
	}

	staleStart := time.Now().UTC().Add(-30 * time.Second)
	stale := model.SyncRun{ID: uuid.New().String(), StartedAt: staleStart, Type: model.SyncIncremental, Trigger: model.TriggerScheduled}
	if err := s.CreateSyncRun(ctx, stale); err != nil {
		t.Fatalf("CreateSyncRun: %v", err)
	}
	n, err := s.AbandonRunningSyncRuns(ctx, "abandoned", staleStart.Add(-time.Second))
	if err != nil {
		t.Fatalf("AbandonRunningSyncRuns: %v", err)
	}
	if n != 0 {
		t.Errorf("abandoned %d runs younger than the cutoff, want 0", n)
	}
	n, err = s.AbandonRunningSyncRuns(ctx, "abandoned", staleStart.Add(time.Second))
	if err != nil {
		t.Fatalf("AbandonRunningSyncRuns: %v", err)
	}
	if n != 1 {
		t.Errorf("abandoned %d runs, want 1", n)
	}

	latest, err := s.LatestSyncRun(ctx)
	if err != nil {
		t.Fatalf("LatestSyncRun: %v", err)
	}
	if latest.ID != stale.ID || latest.Status != model.SyncFailed || latest.ErrorMessage != "abandoned" {
		t.Errorf("latest = %+v", latest)
	}

	failed := model.SyncFailed
	runs, err := s.ListSyncRuns(ctx, store.SyncRunFilter{Status: &failed})
	if err != nil {
		t.Fatalf("ListSyncRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != stale.ID {
		t.Errorf("failed runs = %+v", runs)
	}

	since := time.Now().UTC().Add(time.Hour)
	runs, err = s.ListSyncRuns(ctx, store.SyncRunFilter{Since: &since})
	if err != nil {
		t.Fatalf("ListSyncRuns since: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no future runs, got %d", len(runs))
	}
}

func TestCreateSyncRunRejectsSecondRunningRun(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first := model.SyncRun{ID: "first", Type: model.SyncFull, Trigger: model.TriggerManual}
	if err := s.CreateSyncRun(ctx, first); err != nil {
		t.Fatalf("CreateSyncRun: %v", err)
	}

	second := model.SyncRun{ID: "second", Type: model.SyncIncremental, Trigger: model.TriggerScheduled}
	if err := s.CreateSyncRun(ctx, second); !errors.Is(err, store.ErrRunActive) {
		t.Fatalf("second CreateSyncRun err = %v, want ErrRunActive", err)
	}
	if _, err := s.GetSyncRun(ctx, "second"); !store.IsNotFound(err) {
		t.Errorf("rejected run was stored: %v", err)
	}

	first.Status = model.SyncCompleted
	if err := s.FinishSyncRun(ctx, first); err != nil {
		t.Fatalf("FinishSyncRun: %v", err)
	}
	if err := s.CreateSyncRun(ctx, second); err != nil {
		t.Errorf("CreateSyncRun after finish: %v", err)
	}
}
