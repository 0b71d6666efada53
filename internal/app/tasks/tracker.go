// Package tasks drives the per-actor task state machine: it loads task lists,
// records opens, runs verification passes on demand and on a polling
// schedule, and turns positive evidence into durable, write-once completions.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/castverify/internal/app/verification"
	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
	"github.com/ahrav/castverify/pkg/common/logger"
	"github.com/ahrav/castverify/pkg/common/timeutil"
)

var (
	ErrActorMismatch  = errors.New("actor does not own this task session")
	ErrActionMismatch = errors.New("action does not match the loaded task list")
	ErrNotLoaded      = errors.New("task list not loaded")
	ErrTaskNotFound   = errors.New("task not tracked")
)

// EngagementVerifier runs one verification pass for a task.
type EngagementVerifier interface {
	Verify(
		ctx context.Context,
		ref engagement.ContentReference,
		actor engagement.ActorID,
		action engagement.ActionKind,
	) (verification.Result, error)
}

// Dependencies are the collaborators a Tracker needs. Publisher is optional.
type Dependencies struct {
	Verifier  EngagementVerifier
	Recorder  task.CompletionRecorder
	Stage     task.StageMarker
	Catalog   task.Catalog
	Publisher task.EventPublisher
	Clock     timeutil.Provider
}

// Config tunes the timing of verification.
type Config struct {
	// PreCheckDelay is waited before an actor-requested sweep so upstream
	// indexing can catch up with an engagement that just happened.
	PreCheckDelay map[engagement.ActionKind]time.Duration
	Polling       PollPolicy
}

// Outcome is the result of one task in a verify-all sweep.
type Outcome struct {
	Key       string
	Reference engagement.ContentReference
	Action    engagement.ActionKind
	State     task.State
	Found     bool
	// Skipped is set for tasks that were already completed or had an attempt
	// in flight; no remote call was made for them.
	Skipped bool
	Err     error
}

type beginStatus int

const (
	beginOK beginStatus = iota
	beginBusy
	beginDone
)

// Tracker owns the task records of one actor. All record mutations happen
// under mu; remote calls and collaborator I/O never do.
type Tracker struct {
	actor engagement.ActorID

	verifier  EngagementVerifier
	recorder  task.CompletionRecorder
	stage     task.StageMarker
	catalog   task.Catalog
	publisher task.EventPublisher
	clock     timeutil.Provider

	cfg       Config
	ledger    *Ledger
	scheduler *Scheduler

	mu       sync.Mutex
	loaded   bool
	action   engagement.ActionKind
	records  map[string]*task.Record
	order    []string
	opened   map[string]bool
	inflight map[string]struct{}
	// satisfied is set once the all-satisfied signal was handled for action.
	satisfied bool
	fatal     error

	ctx    context.Context
	cancel context.CancelFunc

	metrics TaskMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewTracker creates a Tracker for actor. Polling loops run on a context
// owned by the Tracker and stop on Close.
func NewTracker(
	actor engagement.ActorID,
	deps Dependencies,
	cfg Config,
	metrics TaskMetrics,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Tracker {
	logger = logger.With("component", "task_tracker", "actor", int64(actor))
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Tracker{
		actor:     actor,
		verifier:  deps.Verifier,
		recorder:  deps.Recorder,
		stage:     deps.Stage,
		catalog:   deps.Catalog,
		publisher: deps.Publisher,
		clock:     clock,
		cfg:       cfg,
		ledger:    NewLedger(),
		scheduler: NewScheduler(cfg.Polling, logger, tracer),
		records:   make(map[string]*task.Record),
		opened:    make(map[string]bool),
		inflight:  make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		metrics:   metrics,
		logger:    logger,
		tracer:    tracer,
	}
}

// Actor returns the actor this Tracker belongs to.
func (t *Tracker) Actor() engagement.ActorID { return t.actor }

// Load rebuilds the task list for action from the catalog. Completed records
// are never downgraded: the confirmed ledger and the durable recorder are
// both consulted before a record is rebuilt. Opened flags survive reloads
// for the life of the session.
func (t *Tracker) Load(ctx context.Context, action engagement.ActionKind) ([]task.Record, error) {
	logger := t.logger.With("operation", "load", "action", action.String())
	ctx, span := t.tracer.Start(ctx, "task_tracker.load",
		trace.WithAttributes(
			attribute.Int64("actor", int64(t.actor)),
			attribute.String("action", action.String()),
		))
	defer span.End()

	if !action.Valid() {
		err := fmt.Errorf("%w: %q", engagement.ErrUnknownAction, action)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid action")
		return nil, err
	}
	if err := t.fatalErr(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tracker halted")
		return nil, err
	}

	defs, err := t.catalog.List(ctx, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list task definitions")
		return nil, fmt.Errorf("failed to list task definitions: %w", err)
	}
	if len(defs) == 0 {
		span.AddEvent("no_tasks_for_action_listing_all")
		if defs, err = t.catalog.List(ctx, ""); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to list task definitions")
			return nil, fmt.Errorf("failed to list task definitions: %w", err)
		}
	}

	durable := t.durableCompletions(ctx, defs)
	now := t.clock.Now()

	t.mu.Lock()
	if t.action != action {
		t.satisfied = false
	}
	t.action = action
	t.loaded = true

	prev := t.records
	next := make(map[string]*task.Record, len(defs))
	var pending, done []string
	for _, def := range defs {
		key := def.Key()
		if _, dup := next[key]; dup {
			continue
		}
		rec := t.mergeLocked(def, prev[key], durable[key], now)
		next[key] = rec
		if rec.IsCompleted() {
			done = append(done, key)
		} else {
			pending = append(pending, key)
		}
	}

	var stale []string
	for key := range prev {
		if _, ok := next[key]; !ok {
			stale = append(stale, key)
		}
	}
	stale = append(stale, done...)

	var toPoll []string
	for _, key := range pending {
		if next[key].Opened {
			toPoll = append(toPoll, key)
		}
	}

	t.records = next
	t.order = append(pending, done...)
	t.mu.Unlock()

	for _, key := range stale {
		t.scheduler.Cancel(key)
	}
	for _, key := range toPoll {
		t.schedulePoll(key)
	}

	t.evaluateAggregate(ctx)

	span.SetAttributes(
		attribute.Int("task_count", len(next)),
		attribute.Int("completed_count", len(done)),
		attribute.Int("polling_count", len(toPoll)),
	)
	span.SetStatus(codes.Ok, "task list loaded")
	logger.Debug(ctx, "Task list loaded", "tasks", len(next), "completed", len(done))

	return t.Snapshot(), nil
}

// durableCompletions asks the recorder which tasks are already completed,
// skipping those this process already knows about. Lookup failures count as
// "not completed" so a flaky store only delays the completed indication.
func (t *Tracker) durableCompletions(ctx context.Context, defs []task.Definition) map[string]bool {
	t.mu.Lock()
	var lookups []task.Definition
	for _, def := range defs {
		key := def.Key()
		if _, ok := t.ledger.Confirmed(key); ok {
			continue
		}
		if rec, ok := t.records[key]; ok && rec.IsCompleted() {
			continue
		}
		lookups = append(lookups, def)
	}
	t.mu.Unlock()

	var (
		mu     sync.Mutex
		result = make(map[string]bool, len(lookups))
	)
	const maxConcurrentLookups = 8
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for _, def := range lookups {
		g.Go(func() error {
			ok, err := t.recorder.IsAlreadyCompleted(gctx, t.actor, def.Reference)
			if err != nil {
				t.logger.Warn(ctx, "Completion lookup failed", "task_key", def.Key(), "error", err)
				return nil
			}
			if ok {
				mu.Lock()
				result[def.Key()] = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// mergeLocked builds the record for def during a reload.
func (t *Tracker) mergeLocked(def task.Definition, prev *task.Record, durable bool, now time.Time) *task.Record {
	key := def.Key()

	if prev != nil && prev.IsCompleted() {
		rec := *prev
		rec.Definition = def
		t.ledger.Confirm(key, rec.CompletedAt)
		return &rec
	}
	if at, ok := t.ledger.Confirmed(key); ok {
		rec := task.NewCompletedRecord(def, at)
		rec.Opened = t.opened[key]
		return rec
	}
	if durable {
		t.ledger.Confirm(key, now)
		rec := task.NewCompletedRecord(def, now)
		rec.Opened = t.opened[key]
		return rec
	}

	rec := task.NewRecord(def)
	if prev != nil {
		rec.State = prev.State
		rec.Opened = prev.Opened
		rec.Error = prev.Error
		rec.Attempts = prev.Attempts
		rec.ContentID = prev.ContentID
		rec.LastError = prev.LastError
	}
	if t.opened[key] && !rec.Opened {
		rec.Opened = true
		if rec.State == task.StateUnopened {
			rec.State = task.StateOpened
		}
	}
	return rec
}

// OpenTask records that the actor opened the task's content and starts
// polling it. Opening a completed task is a no-op.
func (t *Tracker) OpenTask(
	ctx context.Context,
	ref engagement.ContentReference,
	action engagement.ActionKind,
) (task.Record, error) {
	ctx, span := t.tracer.Start(ctx, "task_tracker.open_task",
		trace.WithAttributes(
			attribute.Int64("actor", int64(t.actor)),
			attribute.String("reference", ref.String()),
			attribute.String("action", action.String()),
		))
	defer span.End()

	t.mu.Lock()
	key, rec := t.findLocked(ref, action)
	if rec == nil {
		t.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrTaskNotFound, ref)
		span.RecordError(err)
		span.SetStatus(codes.Error, "task not found")
		return task.Record{}, err
	}

	from := rec.State
	if err := rec.Open(); err != nil {
		snapshot := *rec
		t.mu.Unlock()
		if errors.Is(err, task.ErrTaskCompleted) {
			span.AddEvent("task_already_completed")
			span.SetStatus(codes.Ok, "task already completed")
			return snapshot, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open task")
		return snapshot, fmt.Errorf("failed to open task %s: %w", key, err)
	}
	t.opened[key] = true
	snapshot := *rec
	halted := t.fatal != nil
	t.mu.Unlock()

	if from != snapshot.State {
		t.metrics.IncTransition(ctx, from, snapshot.State)
	}
	if !halted {
		t.schedulePoll(key)
	}

	span.SetAttributes(attribute.String("task_key", key))
	span.SetStatus(codes.Ok, "task opened")
	t.logger.Debug(ctx, "Task opened", "task_key", key)
	return snapshot, nil
}

// findLocked looks a task up by key, or by reference and action.
func (t *Tracker) findLocked(ref engagement.ContentReference, action engagement.ActionKind) (string, *task.Record) {
	raw := strings.TrimSpace(ref.String())
	if rec, ok := t.records[raw]; ok && (action == "" || rec.Action == action) {
		return raw, rec
	}
	for _, key := range t.order {
		rec := t.records[key]
		if strings.TrimSpace(rec.Reference.String()) != raw {
			continue
		}
		if action == "" || rec.Action == action {
			return key, rec
		}
	}
	return "", nil
}

// VerifyAll runs one verification pass for every tracked task that is not
// yet completed, concurrently, and waits for all of them. Completed tasks and
// tasks with an attempt already in flight are reported as skipped without a
// remote call.
func (t *Tracker) VerifyAll(
	ctx context.Context,
	actor engagement.ActorID,
	action engagement.ActionKind,
) ([]Outcome, error) {
	start := time.Now()
	logger := t.logger.With("operation", "verify_all", "action", action.String())
	ctx, span := t.tracer.Start(ctx, "task_tracker.verify_all",
		trace.WithAttributes(
			attribute.Int64("actor", int64(actor)),
			attribute.String("action", action.String()),
		))
	defer span.End()

	fail := func(err error, msg string) ([]Outcome, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return nil, err
	}

	if actor != t.actor {
		return fail(fmt.Errorf("%w: session %d, got %d", ErrActorMismatch, t.actor, actor), "actor mismatch")
	}
	if err := t.fatalErr(); err != nil {
		return fail(err, "tracker halted")
	}

	t.mu.Lock()
	loaded, current := t.loaded, t.action
	t.mu.Unlock()
	if !loaded {
		return fail(ErrNotLoaded, "task list not loaded")
	}
	if action != current {
		return fail(fmt.Errorf("%w: loaded %s, got %s", ErrActionMismatch, current, action), "action mismatch")
	}

	if d := t.cfg.PreCheckDelay[action]; d > 0 {
		span.AddEvent("pre_check_delay", trace.WithAttributes(attribute.String("delay", d.String())))
		if err := wait(ctx, d); err != nil {
			return fail(err, "context done during pre-check delay")
		}
	}

	t.mu.Lock()
	keys := append([]string(nil), t.order...)
	t.mu.Unlock()

	outcomes := make([]Outcome, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	launched := 0
	for i, key := range keys {
		def, status := t.begin(ctx, key, false)
		if status != beginOK {
			outcomes[i] = t.skipped(key)
			continue
		}
		launched++
		g.Go(func() error {
			out := t.run(gctx, key, def, "actor")
			outcomes[i] = out
			if errors.Is(out.Err, engagement.ErrNotConfigured) {
				return out.Err
			}
			return nil
		})
	}
	err := g.Wait()

	t.metrics.ObserveVerifyAll(ctx, action.String(), time.Since(start))
	span.SetAttributes(attribute.Int("task_count", len(keys)), attribute.Int("launched", launched))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification halted")
		return outcomes, err
	}

	span.SetStatus(codes.Ok, "verify all complete")
	logger.Debug(ctx, "Verify-all sweep complete", "tasks", len(keys), "launched", launched)
	return outcomes, nil
}

// begin claims key for one verification attempt.
func (t *Tracker) begin(ctx context.Context, key string, requireOpened bool) (task.Definition, beginStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fatal != nil {
		return task.Definition{}, beginDone
	}
	rec, ok := t.records[key]
	if !ok || rec.IsCompleted() {
		return task.Definition{}, beginDone
	}
	if requireOpened && !rec.Opened {
		return task.Definition{}, beginDone
	}
	if _, busy := t.inflight[key]; busy {
		return task.Definition{}, beginBusy
	}

	from := rec.State
	if err := rec.BeginVerification(); err != nil {
		t.logger.Warn(ctx, "Cannot begin verification", "task_key", key, "state", from.String(), "error", err)
		return task.Definition{}, beginBusy
	}
	t.inflight[key] = struct{}{}
	t.metrics.IncTransition(ctx, from, rec.State)

	return rec.Definition, beginOK
}

// run performs one verification attempt for a claimed task and applies it.
func (t *Tracker) run(ctx context.Context, key string, def task.Definition, trigger string) Outcome {
	ctx, span := t.tracer.Start(ctx, "task_tracker.verify_task",
		trace.WithAttributes(
			attribute.String("task_key", key),
			attribute.String("reference", def.Reference.String()),
			attribute.String("action", def.Action.String()),
			attribute.String("trigger", trigger),
		))
	defer span.End()

	res, err := t.verifier.Verify(ctx, def.Reference, t.actor, def.Action)
	out, completed := t.apply(ctx, key, res, err)
	if completed != nil {
		t.commit(ctx, *completed)
	}

	span.SetAttributes(attribute.String("state", out.State.String()), attribute.Bool("found", out.Found))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "verification attempt failed")
	} else {
		span.SetStatus(codes.Ok, "verification attempt applied")
	}
	return out
}

// apply transitions the record for key according to one verification result.
// It returns a copy of the record when the task was newly confirmed.
func (t *Tracker) apply(
	ctx context.Context,
	key string,
	res verification.Result,
	verr error,
) (Outcome, *task.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inflight, key)
	out := Outcome{Key: key, Found: res.Found}

	rec, ok := t.records[key]
	if !ok {
		out.Skipped = true
		out.Err = ErrTaskNotFound
		return out, nil
	}
	out.Reference, out.Action = rec.Reference, rec.Action
	if rec.IsCompleted() {
		out.State = rec.State
		return out, nil
	}

	from := rec.State
	var completed *task.Record

	switch {
	case errors.Is(verr, engagement.ErrNotConfigured):
		t.transitioned(ctx, key, rec, rec.Fail(verr.Error(), true))
		out.Err = verr
		if t.fatal == nil {
			t.fatal = verr
			t.logger.Error(ctx, "Remote API credential missing, halting verification", "error", verr)
			t.scheduler.Halt()
		}

	case errors.Is(verr, context.Canceled), errors.Is(verr, context.DeadlineExceeded):
		t.transitioned(ctx, key, rec, rec.NotYet(res.ContentID))
		out.Err = verr

	case verr != nil:
		// Resolution failures retry on the next scheduled attempt. The error
		// indication is only raised for tasks the actor has not opened.
		t.transitioned(ctx, key, rec, rec.Fail(verr.Error(), !rec.Opened))
		out.Err = verr
		t.logger.Info(ctx, "Verification attempt failed", "task_key", key, "error", verr)

	case res.Found && !rec.Opened:
		err := fmt.Errorf("%w: positive evidence for task %s that was never opened",
			engagement.ErrInvariantViolation, key)
		t.transitioned(ctx, key, rec, rec.Fail(err.Error(), true))
		out.Err = err
		t.metrics.IncAnomaly(ctx, rec.Action.String())
		t.logger.Warn(ctx, "Positive evidence for unopened task",
			"task_key", key, "content_id", res.ContentID.String(), "anomaly", true)

	case res.Found:
		now := t.clock.Now()
		if err := rec.Complete(res.ContentID, now); err != nil {
			t.logger.Error(ctx, "Failed to complete task", "task_key", key, "error", err)
			t.transitioned(ctx, key, rec, rec.NotYet(res.ContentID))
			out.Err = err
			break
		}
		if t.ledger.Confirm(key, now) {
			snapshot := *rec
			completed = &snapshot
		}
		t.scheduler.Cancel(key)

	default:
		t.transitioned(ctx, key, rec, rec.NotYet(res.ContentID))
	}

	out.State = rec.State
	if from != rec.State {
		t.metrics.IncTransition(ctx, from, rec.State)
	}
	return out, completed
}

// transitioned logs a transition the record refused. This happens when a
// reload replaced the record while the attempt was in flight; the attempt's
// result is then dropped and the next attempt decides.
func (t *Tracker) transitioned(ctx context.Context, key string, rec *task.Record, err error) {
	if err != nil {
		t.logger.Warn(ctx, "Rejected task transition", "task_key", key, "state", rec.State.String(), "error", err)
	}
}

// commit runs the side effects of a newly confirmed task. The record is
// already completed, so failures here are logged and never undo it.
func (t *Tracker) commit(ctx context.Context, rec task.Record) {
	ctx = context.WithoutCancel(ctx)

	if err := t.recorder.RecordCompleted(ctx, t.actor, rec.Reference); err != nil {
		t.logger.Error(ctx, "Failed to record completion", "task_key", rec.Key(), "error", err)
	}
	t.metrics.IncCompleted(ctx, rec.Action.String())
	t.logger.Info(ctx, "Task completed",
		"task_key", rec.Key(), "content_id", rec.ContentID.String(), "attempts", rec.Attempts)

	if t.publisher != nil {
		evt := task.NewCompletedEvent(t.actor, rec, rec.CompletedAt)
		if err := t.publisher.PublishCompleted(ctx, evt); err != nil {
			t.logger.Warn(ctx, "Failed to publish task completed event", "task_key", rec.Key(), "error", err)
		}
	}

	t.evaluateAggregate(ctx)
}

// evaluateAggregate signals all-satisfied once every tracked task is
// completed and the actor has not already advanced past this stage.
func (t *Tracker) evaluateAggregate(ctx context.Context) {
	t.mu.Lock()
	if t.satisfied || t.fatal != nil || len(t.records) == 0 {
		t.mu.Unlock()
		return
	}
	for _, rec := range t.records {
		if !rec.IsCompleted() {
			t.mu.Unlock()
			return
		}
	}
	t.satisfied = true
	action, count := t.action, len(t.records)
	t.mu.Unlock()

	ctx, span := t.tracer.Start(ctx, "task_tracker.all_satisfied",
		trace.WithAttributes(
			attribute.Int64("actor", int64(t.actor)),
			attribute.String("action", action.String()),
			attribute.Int("task_count", count),
		))
	defer span.End()

	advanced, err := t.stage.HasAdvanced(ctx, t.actor, action)
	if err != nil {
		t.unsatisfy(action)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read stage marker")
		t.logger.Warn(ctx, "Failed to read stage marker", "action", action.String(), "error", err)
		return
	}
	if advanced {
		span.AddEvent("stage_already_advanced")
		span.SetStatus(codes.Ok, "stage already advanced")
		return
	}
	if err := t.stage.MarkAdvanced(ctx, t.actor, action); err != nil {
		t.unsatisfy(action)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark stage advanced")
		t.logger.Error(ctx, "Failed to mark stage advanced", "action", action.String(), "error", err)
		return
	}

	t.metrics.IncAllSatisfied(ctx, action.String())
	t.logger.Info(ctx, "All tasks satisfied", "action", action.String(), "tasks", count)

	if t.publisher != nil {
		evt := task.NewAllSatisfiedEvent(t.actor, action, count, t.clock.Now())
		if err := t.publisher.PublishAllSatisfied(ctx, evt); err != nil {
			t.logger.Warn(ctx, "Failed to publish all satisfied event", "action", action.String(), "error", err)
		}
	}
	span.SetStatus(codes.Ok, "all tasks satisfied")
}

func (t *Tracker) unsatisfy(action engagement.ActionKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.action == action {
		t.satisfied = false
	}
}

func (t *Tracker) schedulePoll(key string) {
	t.scheduler.Schedule(t.ctx, key, t.poll)
}

// poll is the PollFunc for opened tasks.
func (t *Tracker) poll(ctx context.Context, key string, attempt int) bool {
	def, status := t.begin(ctx, key, true)
	switch status {
	case beginDone:
		return true
	case beginBusy:
		return false
	}

	t.metrics.IncPollAttempt(ctx, def.Action.String())
	t.logger.Debug(ctx, "Polling task", "task_key", key, "attempt", attempt)

	out := t.run(ctx, key, def, "poll")
	return out.State == task.StateCompleted || errors.Is(out.Err, engagement.ErrNotConfigured)
}

func (t *Tracker) skipped(key string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Outcome{Key: key, Skipped: true}
	if rec, ok := t.records[key]; ok {
		out.Reference, out.Action, out.State = rec.Reference, rec.Action, rec.State
	}
	return out
}

func (t *Tracker) fatalErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fatal
}

// Snapshot returns a copy of every tracked record, uncompleted tasks first,
// taken at a single point in time.
func (t *Tracker) Snapshot() []task.Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]task.Record, 0, len(t.order))
	for _, key := range t.order {
		if rec := t.records[key]; !rec.IsCompleted() {
			out = append(out, *rec)
		}
	}
	for _, key := range t.order {
		if rec := t.records[key]; rec.IsCompleted() {
			out = append(out, *rec)
		}
	}
	return out
}

// Action returns the action of the loaded task list.
func (t *Tracker) Action() engagement.ActionKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.action
}

// Idle reports whether the Tracker has no polling loop and no attempt in
// flight.
func (t *Tracker) Idle() bool {
	t.mu.Lock()
	busy := len(t.inflight) > 0
	t.mu.Unlock()
	return !busy && t.scheduler.Len() == 0
}

// Close stops all polling and waits for in-flight polls to finish.
func (t *Tracker) Close() {
	t.cancel()
	t.scheduler.Stop()
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
