package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/pmsync/internal/health"
	"github.com/nhle/pmsync/internal/issuekey"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/reconcile"
	"github.com/nhle/pmsync/internal/source"
	"github.com/nhle/pmsync/internal/store"
)

// orNil maps a store miss to a nil record.
func orNil[T any](v *T, err error) (*T, error) {
	if store.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

// === Users ===

func (o *Orchestrator) userSpec() reconcile.Spec[source.RemoteUser, model.User] {
	return reconcile.Spec[source.RemoteUser, model.User]{
		Entity: "user",
		Key:    func(u source.RemoteUser) string { return u.AccountID },
		Find: func(ctx context.Context, u source.RemoteUser) (*model.User, error) {
			if u.AccountID == "" {
				return nil, nil
			}
			found, err := orNil(o.store.GetUserByAccountID(ctx, u.AccountID))
			if err != nil || found != nil {
				return found, err
			}

			email := strings.TrimSpace(u.Email)
			if email == "" {
				return nil, nil
			}
			found, err = orNil(o.store.GetUserByEmail(ctx, email))
			if err != nil || found == nil {
				return found, err
			}
			if found.RemoteAccountID != nil && *found.RemoteAccountID != u.AccountID {
				return nil, fmt.Errorf("email %s already belongs to account %s", email, *found.RemoteAccountID)
			}
			return found, nil
		},
		Create: func(_ context.Context, u source.RemoteUser) (model.User, error) {
			if u.AccountID == "" {
				return model.User{}, errors.New("missing account id")
			}
			user := model.User{ID: uuid.New().String(), Source: model.UserSourceRemote}
			applyRemoteUser(&user, u)
			return user, nil
		},
		Apply: func(_ context.Context, local *model.User, u source.RemoteUser) (bool, error) {
			if u.AccountID == "" {
				return false, errors.New("missing account id")
			}
			return applyRemoteUser(local, u), nil
		},
		Save: o.store.SaveUser,
	}
}

// applyRemoteUser merges a remote account into a local user. Stubs are
// enriched in place so their id stays stable.
func applyRemoteUser(local *model.User, u source.RemoteUser) bool {
	changed := false

	if local.RemoteAccountID == nil || *local.RemoteAccountID != u.AccountID {
		acc := u.AccountID
		local.RemoteAccountID = &acc
		changed = true
	}

	email := strings.TrimSpace(u.Email)
	switch {
	case email != "" && !strings.EqualFold(local.Email, email):
		local.Email = email
		changed = true
	case email == "" && local.Email == "":
		// Hidden emails still need a unique placeholder.
		local.Email = model.StubEmail(u.AccountID)
		changed = true
	}

	if local.DisplayName != u.DisplayName {
		local.DisplayName = u.DisplayName
		changed = true
	}
	if local.Active != u.Active {
		local.Active = u.Active
		changed = true
	}
	if local.IsStub {
		local.IsStub = false
		changed = true
	}
	return changed
}

// === Projects ===

func (o *Orchestrator) projectSpec(
	now time.Time,
	metrics map[string]model.Progress,
) reconcile.Spec[source.RemoteProject, model.Project] {
	return reconcile.Spec[source.RemoteProject, model.Project]{
		Entity: "project",
		Key:    func(p source.RemoteProject) string { return p.Key },
		Find: func(ctx context.Context, p source.RemoteProject) (*model.Project, error) {
			return orNil(o.store.GetProjectByKey(ctx, p.Key))
		},
		Create: func(_ context.Context, p source.RemoteProject) (model.Project, error) {
			if !issuekey.ValidProject(p.Key) {
				return model.Project{}, fmt.Errorf("malformed project key %q", p.Key)
			}
			project := model.Project{ID: uuid.New().String(), RemoteKey: p.Key}
			applyRemoteProject(&project, p, metrics[p.Key], now)
			return project, nil
		},
		Apply: func(_ context.Context, local *model.Project, p source.RemoteProject) (bool, error) {
			if !issuekey.ValidProject(p.Key) {
				return false, fmt.Errorf("malformed project key %q", p.Key)
			}
			return applyRemoteProject(local, p, metrics[p.Key], now), nil
		},
		Save: o.store.SaveSyncedProject,
	}
}

// applyRemoteProject writes the remote fields, progress, and derived
// health. PM-curated fields are never touched. Health is re-stamped only
// when something changed, so an idempotent run writes nothing.
func applyRemoteProject(local *model.Project, p source.RemoteProject, progress model.Progress, now time.Time) bool {
	h := health.Score(progress)

	changed := local.Name != p.Name ||
		local.Description != p.Description ||
		local.LeadName != p.LeadName ||
		local.Progress != progress ||
		!sameHealth(local.Health, h) ||
		local.Health.EvaluatedAt == nil
	if !changed {
		return false
	}

	local.Name = p.Name
	local.Description = p.Description
	local.LeadName = p.LeadName
	local.Progress = progress
	h.EvaluatedAt = &now
	local.Health = h
	local.LastSyncedAt = &now
	return true
}

func sameHealth(a, b model.Health) bool {
	return a.Level == b.Level && a.Reason == b.Reason &&
		a.Score == b.Score && a.Confidence == b.Confidence
}

// === Boards & sprints ===

func (o *Orchestrator) boardSpec() reconcile.Spec[source.RemoteBoard, model.Board] {
	apply := func(ctx context.Context, local *model.Board, b source.RemoteBoard) (bool, error) {
		projectID, err := o.projectIDFor(ctx, b.ProjectKey)
		if err != nil {
			return false, err
		}
		boardType := strings.ToLower(b.Type)
		if local.ProjectID == projectID && local.Name == b.Name && local.Type == boardType {
			return false, nil
		}
		local.ProjectID = projectID
		local.Name = b.Name
		local.Type = boardType
		return true, nil
	}

	return reconcile.Spec[source.RemoteBoard, model.Board]{
		Entity: "board",
		Key:    func(b source.RemoteBoard) string { return strconv.FormatInt(b.ID, 10) },
		Find: func(ctx context.Context, b source.RemoteBoard) (*model.Board, error) {
			return orNil(o.store.GetBoardByRemoteID(ctx, b.ID))
		},
		Create: func(ctx context.Context, b source.RemoteBoard) (model.Board, error) {
			board := model.Board{ID: uuid.New().String(), RemoteID: b.ID}
			if _, err := apply(ctx, &board, b); err != nil {
				return model.Board{}, err
			}
			return board, nil
		},
		Apply: apply,
		Save:  o.store.SaveBoard,
	}
}

// projectIDFor resolves the owning project of a board. Boards of projects
// that are not synced are skipped rather than failed.
func (o *Orchestrator) projectIDFor(ctx context.Context, projectKey string) (string, error) {
	if projectKey == "" {
		return "", fmt.Errorf("board has no project: %w", reconcile.ErrSkip)
	}
	project, err := orNil(o.store.GetProjectByKey(ctx, projectKey))
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", fmt.Errorf("project %s is not synced: %w", projectKey, reconcile.ErrSkip)
	}
	return project.ID, nil
}

func (o *Orchestrator) sprintSpec() reconcile.Spec[source.RemoteSprint, model.Sprint] {
	apply := func(ctx context.Context, local *model.Sprint, s source.RemoteSprint) (bool, error) {
		board, err := orNil(o.store.GetBoardByRemoteID(ctx, s.BoardID))
		if err != nil {
			return false, err
		}
		if board == nil {
			return false, fmt.Errorf("board %d is not synced: %w", s.BoardID, reconcile.ErrSkip)
		}

		state := strings.ToLower(s.State)
		if local.BoardID == board.ID && local.Name == s.Name && local.State == state &&
			local.Goal == s.Goal && sameTime(local.StartDate, s.StartDate) &&
			sameTime(local.EndDate, s.EndDate) && sameTime(local.CompleteDate, s.CompleteDate) {
			return false, nil
		}
		local.BoardID = board.ID
		local.Name = s.Name
		local.State = state
		local.Goal = s.Goal
		local.StartDate = s.StartDate
		local.EndDate = s.EndDate
		local.CompleteDate = s.CompleteDate
		return true, nil
	}

	return reconcile.Spec[source.RemoteSprint, model.Sprint]{
		Entity: "sprint",
		Key:    func(s source.RemoteSprint) string { return strconv.FormatInt(s.ID, 10) },
		Find: func(ctx context.Context, s source.RemoteSprint) (*model.Sprint, error) {
			return orNil(o.store.GetSprintByRemoteID(ctx, s.ID))
		},
		Create: func(ctx context.Context, s source.RemoteSprint) (model.Sprint, error) {
			sprint := model.Sprint{ID: uuid.New().String(), RemoteID: s.ID}
			if _, err := apply(ctx, &sprint, s); err != nil {
				return model.Sprint{}, err
			}
			return sprint, nil
		},
		Apply: apply,
		Save:  o.store.SaveSprint,
	}
}

// === Tasks ===

func (o *Orchestrator) taskSpec(r *run, project model.Project, full bool) reconcile.Spec[source.RemoteTask, model.Task] {
	spec := reconcile.Spec[source.RemoteTask, model.Task]{
		Entity: "task",
		Key:    func(t source.RemoteTask) string { return t.Key },
		Find: func(ctx context.Context, t source.RemoteTask) (*model.Task, error) {
			return orNil(o.store.GetTaskByKey(ctx, t.Key))
		},
		Create: func(ctx context.Context, t source.RemoteTask) (model.Task, error) {
			if err := validateTask(t); err != nil {
				return model.Task{}, err
			}
			task := model.Task{ID: uuid.New().String(), RemoteKey: t.Key}
			if _, err := o.applyRemoteTask(ctx, r, project, &task, t); err != nil {
				return model.Task{}, err
			}
			return task, nil
		},
		Apply: func(ctx context.Context, local *model.Task, t source.RemoteTask) (bool, error) {
			if err := validateTask(t); err != nil {
				return false, err
			}
			return o.applyRemoteTask(ctx, r, project, local, t)
		},
		Save: o.store.SaveTask,
	}

	// Only a complete listing proves that a task is gone.
	if full {
		spec.Prune = &reconcile.Prune[model.Task]{
			List: func(ctx context.Context) ([]model.Task, error) {
				return o.store.ListTasksByProject(ctx, project.ID)
			},
			Key: func(t model.Task) string { return t.RemoteKey },
			Delete: func(ctx context.Context, t model.Task) error {
				return o.store.DeleteTask(ctx, t.ID)
			},
		}
	}
	return spec
}

func validateTask(t source.RemoteTask) error {
	switch {
	case !issuekey.Valid(t.Key):
		return fmt.Errorf("malformed issue key %q", t.Key)
	case strings.TrimSpace(t.Title) == "":
		return errors.New("missing summary")
	case t.Status == "":
		return errors.New("missing status")
	}
	return nil
}

// applyRemoteTask merges a remote task into local, resolving its assignee
// and sprint. StatusChangedAt moves only on a status transition.
func (o *Orchestrator) applyRemoteTask(
	ctx context.Context,
	r *run,
	project model.Project,
	local *model.Task,
	t source.RemoteTask,
) (bool, error) {
	assigneeID, err := r.resolver.Resolve(ctx, t.AssigneeAccountID, t.AssigneeDisplayName)
	if err != nil {
		return false, err
	}
	sprintID, err := o.sprintIDFor(ctx, t.SprintID)
	if err != nil {
		return false, err
	}

	next := *local
	next.ProjectID = project.ID
	next.SprintID = sprintID
	next.Title = t.Title
	next.Description = t.Description
	next.Status = t.Status
	next.IssueType = t.IssueType
	next.ParentKey = t.ParentKey
	next.StoryPoints = t.StoryPoints
	next.OriginalEstimateSeconds = t.OriginalEstimateSeconds
	next.AssigneeID = assigneeID
	next.DueDate = t.DueDate
	next.Priority = t.Priority
	if next.Priority < model.PriorityCritical || next.Priority > model.PriorityLowest {
		next.Priority = model.PriorityMedium
	}
	next.RemoteCreatedAt = t.CreatedAt
	next.RemoteUpdatedAt = t.UpdatedAt

	if sameTask(*local, next) {
		return false, nil
	}
	if next.Status != local.Status {
		next.StatusChangedAt = r.now
	}
	next.LastSyncedAt = r.now
	*local = next
	return true, nil
}

// sprintIDFor resolves a remote sprint id to the local sprint id. Unknown
// sprints leave the task unscheduled.
func (o *Orchestrator) sprintIDFor(ctx context.Context, remoteID int64) (*string, error) {
	if remoteID == 0 {
		return nil, nil
	}
	sprint, err := orNil(o.store.GetSprintByRemoteID(ctx, remoteID))
	if err != nil || sprint == nil {
		return nil, err
	}
	return &sprint.ID, nil
}

func sameTask(a, b model.Task) bool {
	return a.ProjectID == b.ProjectID &&
		sameString(a.SprintID, b.SprintID) &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.Status == b.Status &&
		a.IssueType == b.IssueType &&
		a.ParentKey == b.ParentKey &&
		sameFloat(a.StoryPoints, b.StoryPoints) &&
		sameInt(a.OriginalEstimateSeconds, b.OriginalEstimateSeconds) &&
		sameString(a.AssigneeID, b.AssigneeID) &&
		sameTime(a.DueDate, b.DueDate) &&
		a.Priority == b.Priority &&
		a.RemoteCreatedAt.Equal(b.RemoteCreatedAt) &&
		a.RemoteUpdatedAt.Equal(b.RemoteUpdatedAt)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
