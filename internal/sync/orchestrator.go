package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/reconcile"
	"github.com/nhle/pmsync/internal/source"
	"github.com/nhle/pmsync/internal/store"
)

// finalizeTimeout bounds the write that closes a run's audit record.
const finalizeTimeout = 10 * time.Second

// abandonedReason is recorded on runs left Running by a previous process.
const abandonedReason = "abandoned: process exited before the run finished"

// RunOptions selects what a single run does.
type RunOptions struct {
	Trigger model.SyncTrigger
	Type    model.SyncType

	// ProjectKey scopes the run to one remote project.
	ProjectKey string
}

// Options configures an Orchestrator.
type Options struct {
	// ProjectKeys restricts unscoped runs to these projects when non-empty.
	ProjectKeys []string

	// FetchConcurrency bounds parallel read-only remote calls.
	FetchConcurrency int

	// StaleAfter is the age past which a Running run is presumed to
	// belong to a process that died. Defaults to one hour.
	StaleAfter time.Duration

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs the sync stages in order (users, projects,
// boards and sprints, tasks) and records every run as a SyncRun.
type Orchestrator struct {
	store  store.Store
	remote source.Remote
	opts   Options
}

// NewOrchestrator creates an orchestrator over a store and a remote.
func NewOrchestrator(s store.Store, remote source.Remote, opts Options) *Orchestrator {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 4
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{store: s, remote: remote, opts: opts}
}

// RecoverAbandoned closes runs that a crashed process left Running.
// Runs younger than StaleAfter are kept, since another process sharing
// the database may still be executing them.
func (o *Orchestrator) RecoverAbandoned(ctx context.Context) (int, error) {
	staleBefore := o.opts.Now().UTC().Add(-o.opts.StaleAfter)
	n, err := o.store.AbandonRunningSyncRuns(ctx, abandonedReason, staleBefore)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Warn("marked abandoned sync runs as failed", logger.F("count", n))
	}
	return n, nil
}

// run carries the mutable state of one RunSync call.
type run struct {
	record   model.SyncRun
	since    time.Time
	now      time.Time
	totals   reconcile.Result
	projects []string
	resolver *reconcile.UserResolver
	log      *logger.Logger
}

// RunSync executes one sync run and returns its summary. The returned
// error is the fatal error that failed the run, if any; the run is
// recorded as Failed in that case as well.
func (o *Orchestrator) RunSync(ctx context.Context, opts RunOptions) (model.SyncRunResult, error) {
	now := o.opts.Now().UTC()
	r := &run{
		record: model.SyncRun{
			ID:         uuid.New().String(),
			StartedAt:  now,
			Type:       opts.Type,
			Status:     model.SyncRunning,
			Trigger:    opts.Trigger,
			ProjectKey: opts.ProjectKey,
		},
		now:      now,
		resolver: reconcile.NewUserResolver(o.store),
	}
	if r.record.Type == "" {
		r.record.Type = model.SyncFull
	}
	if r.record.Trigger == "" {
		r.record.Trigger = model.TriggerManual
	}

	if r.record.Type == model.SyncIncremental {
		cutoff, err := o.store.LatestCutoff(ctx)
		if err != nil {
			return r.record.Result(), fmt.Errorf("reading last data cutoff: %w", err)
		}
		if cutoff == nil {
			r.record.Type = model.SyncFull
		} else {
			r.since = *cutoff
		}
	}

	r.log = logger.WithFields(
		logger.F("run", r.record.ID),
		logger.F("type", r.record.Type),
		logger.F("trigger", r.record.Trigger),
	)

	if _, err := o.RecoverAbandoned(ctx); err != nil {
		return r.record.Result(), err
	}
	if err := o.store.CreateSyncRun(ctx, r.record); err != nil {
		if errors.Is(err, store.ErrRunActive) {
			return model.SyncRunResult{}, ErrRunInProgress
		}
		return r.record.Result(), fmt.Errorf("opening sync run: %w", err)
	}
	r.log.Info("sync run started", logger.F("project", opts.ProjectKey), logger.F("since", r.since))

	stageErr := o.runStages(ctx, r, opts.ProjectKey)
	o.finalize(ctx, r, stageErr)

	return r.record.Result(), stageErr
}

// runStages executes the stages in order. Any returned error is fatal.
func (o *Orchestrator) runStages(ctx context.Context, r *run, scope string) error {
	stages := []struct {
		name string
		fn   func(context.Context, *run, string) error
	}{
		{"users", o.syncUsers},
		{"projects", o.syncProjects},
		{"boards", o.syncBoards},
		{"tasks", o.syncTasks},
	}

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		r.log.Info("stage started", logger.F("stage", st.name))
		if err := st.fn(ctx, r, scope); err != nil {
			r.log.Error("stage failed", logger.F("stage", st.name), logger.F("error", err))
			return fmt.Errorf("%s stage: %w", st.name, err)
		}
		r.log.Info("stage finished",
			logger.F("stage", st.name), logger.F("elapsed", time.Since(started).Round(time.Millisecond)))
	}
	return nil
}

// finalize closes the audit record exactly once, even when ctx is done.
func (o *Orchestrator) finalize(ctx context.Context, r *run, stageErr error) {
	finished := o.opts.Now().UTC()
	rec := &r.record
	rec.FinishedAt = &finished
	rec.DurationMs = finished.Sub(rec.StartedAt).Milliseconds()
	rec.Processed = r.totals.Processed
	rec.Created = r.totals.Created
	rec.Updated = r.totals.Updated
	rec.Deleted = r.totals.Deleted
	rec.Failed = r.totals.Failed

	switch {
	case stageErr != nil:
		rec.Status = model.SyncFailed
		rec.ErrorMessage = stageErr.Error()
	case r.totals.Failed > 0:
		rec.Status = model.SyncPartial
		rec.ErrorMessage = fmt.Sprintf("%d records failed to reconcile", r.totals.Failed)
	default:
		rec.Status = model.SyncCompleted
	}
	if rec.Status != model.SyncFailed {
		cutoff := rec.StartedAt
		rec.DataCutoff = &cutoff
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := o.store.FinishSyncRun(fctx, *rec); err != nil {
		r.log.Error("closing sync run record failed", logger.F("error", err))
	}

	r.log.Info("sync run finished",
		logger.F("status", rec.Status),
		logger.F("processed", rec.Processed),
		logger.F("created", rec.Created),
		logger.F("updated", rec.Updated),
		logger.F("deleted", rec.Deleted),
		logger.F("failed", rec.Failed),
		logger.F("skipped", r.totals.Skipped),
		logger.F("stubs", r.resolver.StubsCreated()),
		logger.F("duration", rec.Duration()),
	)
}

func (o *Orchestrator) syncUsers(ctx context.Context, r *run, _ string) error {
	users, err := o.remote.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	res, err := reconcile.Reconcile(ctx, o.userSpec(), users)
	r.tally(res)
	return err
}

func (o *Orchestrator) syncProjects(ctx context.Context, r *run, scope string) error {
	remote, err := o.remote.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}

	remote = slices.DeleteFunc(remote, func(p source.RemoteProject) bool {
		return !o.inScope(p.Key, scope)
	})
	if scope != "" && len(remote) == 0 {
		return fmt.Errorf("project %s not found remotely", scope)
	}

	metrics, err := o.fetchMetrics(ctx, remote)
	if err != nil {
		return err
	}

	res, err := reconcile.Reconcile(ctx, o.projectSpec(r.now, metrics), remote)
	r.tally(res)
	if err != nil {
		return err
	}

	for _, p := range remote {
		r.projects = append(r.projects, p.Key)
	}
	sort.Strings(r.projects)
	return nil
}

// fetchMetrics reads the progress of every project with bounded
// parallelism. Any failure is fatal to the stage.
func (o *Orchestrator) fetchMetrics(
	ctx context.Context,
	projects []source.RemoteProject,
) (map[string]model.Progress, error) {
	var mu gosync.Mutex
	metrics := make(map[string]model.Progress, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.FetchConcurrency)
	for _, p := range projects {
		g.Go(func() error {
			progress, err := o.remote.GetProjectMetrics(gctx, p.Key)
			if err != nil {
				return fmt.Errorf("fetching metrics for %s: %w", p.Key, err)
			}
			mu.Lock()
			metrics[p.Key] = progress
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return metrics, nil
}

func (o *Orchestrator) syncBoards(ctx context.Context, r *run, scope string) error {
	boards, err := o.remote.ListBoards(ctx)
	if err != nil {
		return fmt.Errorf("listing boards: %w", err)
	}
	boards = slices.DeleteFunc(boards, func(b source.RemoteBoard) bool {
		return !o.inScope(b.ProjectKey, scope)
	})

	res, err := reconcile.Reconcile(ctx, o.boardSpec(), boards)
	r.tally(res)
	if err != nil {
		return err
	}

	// Sprints only exist on iterative boards that made it into the store.
	var iterative []int64
	for _, b := range boards {
		local, err := o.store.GetBoardByRemoteID(ctx, b.ID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("reading board %d: %w", b.ID, err)
		}
		if local.IsIterative() {
			iterative = append(iterative, b.ID)
		}
	}

	sprints, err := o.fetchSprints(ctx, iterative)
	if err != nil {
		return err
	}

	res, err = reconcile.Reconcile(ctx, o.sprintSpec(), sprints)
	r.tally(res)
	return err
}

// fetchSprints lists the sprints of the given boards with bounded
// parallelism. A sprint listed by several boards is returned once, owned
// by its origin board when that board is among boardIDs and by the
// lowest listing board id otherwise, so the owner is stable across runs.
func (o *Orchestrator) fetchSprints(ctx context.Context, boardIDs []int64) ([]source.RemoteSprint, error) {
	boardIDs = slices.Clone(boardIDs)
	slices.Sort(boardIDs)
	perBoard := make([][]source.RemoteSprint, len(boardIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.FetchConcurrency)
	for i, id := range boardIDs {
		g.Go(func() error {
			sprints, err := o.remote.ListSprintsForBoard(gctx, id)
			if err != nil {
				return fmt.Errorf("listing sprints of board %d: %w", id, err)
			}
			for j := range sprints {
				sprints[j].BoardID = id
			}
			perBoard[i] = sprints
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []source.RemoteSprint
	seen := make(map[int64]int)
	for _, sprints := range perBoard {
		for _, sp := range sprints {
			if i, ok := seen[sp.ID]; ok {
				if sp.OriginBoardID == sp.BoardID {
					all[i].BoardID = sp.BoardID
				}
				continue
			}
			seen[sp.ID] = len(all)
			all = append(all, sp)
		}
	}
	return all, nil
}

func (o *Orchestrator) syncTasks(ctx context.Context, r *run, _ string) error {
	full := r.record.Type == model.SyncFull
	query := source.TaskQuery{}
	if !full {
		query.UpdatedSince = r.since
	}

	for _, key := range r.projects {
		if err := ctx.Err(); err != nil {
			return err
		}

		project, err := o.store.GetProjectByKey(ctx, key)
		if err != nil {
			if store.IsNotFound(err) {
				r.log.Warn("skipping tasks of project missing locally", logger.F("project", key))
				continue
			}
			return fmt.Errorf("reading project %s: %w", key, err)
		}

		tasks, err := o.remote.ListTasksForProject(ctx, key, query)
		if err != nil {
			return fmt.Errorf("listing tasks of %s: %w", key, err)
		}

		res, err := reconcile.Reconcile(ctx, o.taskSpec(r, *project, full), tasks)
		r.tally(res)
		if err != nil {
			return err
		}
	}
	return nil
}

// inScope reports whether a project key takes part in a run.
func (o *Orchestrator) inScope(key, scope string) bool {
	if scope != "" {
		return key == scope
	}
	if len(o.opts.ProjectKeys) == 0 {
		return true
	}
	return slices.Contains(o.opts.ProjectKeys, key)
}

// tally adds a stage result to the run totals.
func (r *run) tally(res reconcile.Result) {
	r.totals.Add(res)
}
