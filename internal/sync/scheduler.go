package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
)

// ErrRunInProgress is returned when a run is requested while another one
// holds the lease.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// Runner executes a single sync run. *Orchestrator implements it.
type Runner interface {
	RunSync(ctx context.Context, opts RunOptions) (model.SyncRunResult, error)
}

// RunHistory exposes the audit records the scheduler consults to pick the
// run type.
type RunHistory interface {
	LastFullRun(ctx context.Context) (*model.SyncRun, error)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Interval between scheduled runs. Defaults to 15 minutes.
	Interval time.Duration

	// FullEvery forces a full run once the last full run is older than
	// this. Defaults to 24 hours.
	FullEvery time.Duration

	// RunTimeout bounds every run. Zero disables the deadline.
	RunTimeout time.Duration

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Scheduler runs syncs on a fixed interval and on demand. At most one run
// executes at a time: overlapping ticks are skipped and overlapping
// manual triggers are rejected with ErrRunInProgress.
type Scheduler struct {
	runner  Runner
	history RunHistory
	events  *Broadcaster
	opts    SchedulerOptions

	busy atomic.Bool

	mu       gosync.Mutex
	interval time.Duration
	resetCh  chan struct{}
	cancel   context.CancelFunc
	baseCtx  context.Context
	running  bool
	last     *model.SyncRunResult

	wg gosync.WaitGroup
}

// NewScheduler creates a scheduler. events may be nil.
func NewScheduler(runner Runner, history RunHistory, events *Broadcaster, opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.FullEvery <= 0 {
		opts.FullEvery = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if events == nil {
		events = NewBroadcaster()
	}
	return &Scheduler{
		runner:   runner,
		history:  history,
		events:   events,
		opts:     opts,
		interval: opts.Interval,
		resetCh:  make(chan struct{}, 1),
		baseCtx:  context.Background(),
	}
}

// Events returns the broadcaster runs are published on.
func (s *Scheduler) Events() *Broadcaster {
	return s.events
}

// Start launches the scheduling loop. The first run starts immediately.
// The loop stops when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.baseCtx = loopCtx
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(loopCtx)

	logger.Info("scheduler started", logger.F("interval", s.interval))
	return nil
}

// Stop halts the loop, cancels an in-flight run, and waits for it to
// finalize its audit record.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped")
}

// SetInterval changes the period of scheduled runs. The next tick is
// rescheduled relative to now.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	changed := s.interval != d
	s.interval = d
	s.mu.Unlock()

	if !changed {
		return
	}
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
	logger.Info("scheduler interval changed", logger.F("interval", d))
}

// Interval returns the current scheduling period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Running reports whether a run currently holds the lease.
func (s *Scheduler) Running() bool {
	return s.busy.Load()
}

// LastResult returns the summary of the most recent run this process
// executed, or nil.
func (s *Scheduler) LastResult() *model.SyncRunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	res := *s.last
	return &res
}

// Trigger runs a sync now and waits for it. It fails fast with
// ErrRunInProgress when another run is active.
func (s *Scheduler) Trigger(ctx context.Context, opts RunOptions) (model.SyncRunResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return model.SyncRunResult{}, ErrRunInProgress
	}
	defer s.busy.Store(false)

	if opts.Trigger == "" {
		opts.Trigger = model.TriggerManual
	}
	return s.execute(ctx, opts)
}

// TriggerAsync starts a sync in the background. The lease is taken
// before returning, so a nil error means the run was accepted. The run
// belongs to the scheduler and is cancelled by Stop.
func (s *Scheduler) TriggerAsync(opts RunOptions) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	if opts.Trigger == "" {
		opts.Trigger = model.TriggerManual
	}

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		_, _ = s.execute(ctx, opts)
	}()
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resetCh:
			ticker.Reset(s.Interval())
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one scheduled run unless another run is active.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		logger.Info("skipping scheduled sync; previous run still in progress")
		return
	}
	defer s.busy.Store(false)

	syncType, err := s.scheduledType(ctx)
	if err != nil {
		logger.Error("choosing sync type failed", logger.F("error", err))
		return
	}
	_, _ = s.execute(ctx, RunOptions{Trigger: model.TriggerScheduled, Type: syncType})
}

// scheduledType picks Full when the last full run is missing or older
// than FullEvery, Incremental otherwise.
func (s *Scheduler) scheduledType(ctx context.Context) (model.SyncType, error) {
	last, err := s.history.LastFullRun(ctx)
	if err != nil && !store.IsNotFound(err) {
		return "", fmt.Errorf("reading last full run: %w", err)
	}
	if last == nil || s.opts.Now().Sub(last.StartedAt) >= s.opts.FullEvery {
		return model.SyncFull, nil
	}
	return model.SyncIncremental, nil
}

// execute runs one sync under the lease held by the caller.
func (s *Scheduler) execute(ctx context.Context, opts RunOptions) (model.SyncRunResult, error) {
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	s.events.Publish(Event{
		Kind:    EventRunStarted,
		At:      s.opts.Now().UTC(),
		Trigger: opts.Trigger,
		Type:    opts.Type,
	})

	res, err := s.runner.RunSync(ctx, opts)

	ev := Event{
		Kind:    EventRunFinished,
		At:      s.opts.Now().UTC(),
		Trigger: res.Trigger,
		Type:    res.Type,
		Result:  &res,
	}
	switch {
	case errors.Is(err, ErrRunInProgress):
		ev.Error = err.Error()
		logger.Info("sync run skipped, another process is syncing")
	case err != nil:
		ev.Error = err.Error()
		logger.Error("sync run failed", logger.F("run", res.RunID), logger.F("error", err))
	}
	if res.RunID != "" {
		s.mu.Lock()
		s.last = &res
		s.mu.Unlock()
	}
	s.events.Publish(ev)
	return res, err
}
