package tasks

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/castverify/internal/app/verification"
	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
	"github.com/ahrav/castverify/pkg/common/logger"
)

const shortURL = "farcaster.xyz/alice/0xabc123"

func keys(records []task.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Key())
	}
	return out
}

func (h *harness) allowEvents() {
	h.publisher.On("PublishCompleted", mock.Anything, mock.Anything).Return(nil)
	h.publisher.On("PublishAllSatisfied", mock.Anything, mock.Anything).Return(nil)
}

func (h *harness) allowAdvance() {
	h.stage.On("HasAdvanced", mock.Anything, testActor, mock.Anything).Return(false, nil)
	h.stage.On("MarkAdvanced", mock.Anything, testActor, mock.Anything).Return(nil)
}

func recordedRefs(m *mockRecorder) map[engagement.ContentReference]int {
	out := make(map[engagement.ContentReference]int)
	for _, c := range m.Calls {
		if c.Method == "RecordCompleted" {
			out[c.Arguments.Get(2).(engagement.ContentReference)]++
		}
	}
	return out
}

func TestLoadOrdersIncompleteFirst(t *testing.T) {
	t.Parallel()

	h := newHarness()
	defs := []task.Definition{likeDef("a", "0xaaaaaa"), likeDef("b", "0xbbbbbb"), likeDef("c", "0xcccccc")}
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return(defs, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, engagement.ContentReference("0xbbbbbb")).Return(true, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	records, err := h.tracker(t, idleConfig()).Load(context.Background(), engagement.ActionLike)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c", "b"}, keys(records))
	assert.Equal(t, task.StateCompleted, records[2].State)
	assert.True(t, records[2].Verified)
	assert.False(t, records[2].Error)
	assert.Equal(t, task.StateUnopened, records[0].State)
	h.stage.AssertNotCalled(t, "HasAdvanced", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadFallsBackToAllTasks(t *testing.T) {
	t.Parallel()

	h := newHarness()
	all := []task.Definition{
		likeDef("a", "0xaaaaaa"),
		{ID: "b", Reference: "0xbbbbbb", Action: engagement.ActionRecast},
	}
	h.catalog.On("List", mock.Anything, engagement.ActionComment).Return([]task.Definition{}, nil).Once()
	h.catalog.On("List", mock.Anything, engagement.ActionKind("")).Return(all, nil).Once()
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	records, err := h.tracker(t, idleConfig()).Load(context.Background(), engagement.ActionComment)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys(records))
	h.catalog.AssertExpectations(t)
}

func TestLoadRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	h := newHarness()
	_, err := h.tracker(t, idleConfig()).Load(context.Background(), engagement.ActionKind("follow"))
	assert.ErrorIs(t, err, engagement.ErrUnknownAction)
	h.catalog.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestLikeFromShortURLCompletesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	h.allowEvents()
	h.allowAdvance()
	def := likeDef("like-1", shortURL)
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, def.Reference).Return(false, nil).Once()
	h.recorder.On("RecordCompleted", mock.Anything, testActor, def.Reference).Return(nil).Once()
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
		Return(verification.Result{ContentID: "0xabc12345", Found: true, Passes: 1}, nil).Once()

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)

	opened, err := tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
	require.NoError(t, err)
	assert.Equal(t, task.StateOpened, opened.State)
	assert.True(t, opened.Opened)

	outcomes, err := tr.VerifyAll(ctx, testActor, engagement.ActionLike)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, task.StateCompleted, outcomes[0].State)
	assert.True(t, outcomes[0].Found)
	assert.NoError(t, outcomes[0].Err)

	rec := tr.Snapshot()[0]
	assert.Equal(t, task.StateCompleted, rec.State)
	assert.Equal(t, engagement.ContentID("0xabc12345"), rec.ContentID)
	assert.False(t, rec.Error)

	h.recorder.AssertNumberOfCalls(t, "RecordCompleted", 1)
	h.stage.AssertNumberOfCalls(t, "MarkAdvanced", 1)
	h.publisher.AssertNumberOfCalls(t, "PublishCompleted", 1)
	h.publisher.AssertNumberOfCalls(t, "PublishAllSatisfied", 1)

	// A second sweep makes no remote call for the completed task.
	outcomes, err = tr.VerifyAll(ctx, testActor, engagement.ActionLike)
	require.NoError(t, err)
	assert.True(t, outcomes[0].Skipped)
	h.verifier.AssertNumberOfCalls(t, "Verify", 1)
}

func TestCompletedSurvivesReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	h.allowEvents()
	h.allowAdvance()
	def := likeDef("like-1", "0xabc123")
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil).Once()
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, def.Reference).Return(false, nil)
	h.recorder.On("RecordCompleted", mock.Anything, testActor, def.Reference).Return(nil)
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
		Return(verification.Result{ContentID: "0xabc123", Found: true, Passes: 1}, nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.VerifyAll(ctx, testActor, engagement.ActionLike)
	require.NoError(t, err)

	// Upstream now reports different metadata and no durable completion.
	changed := def
	changed.Username = "alice"
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{changed}, nil)

	for i := 0; i < 3; i++ {
		records, err := tr.Load(ctx, engagement.ActionLike)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, task.StateCompleted, records[0].State)
		assert.True(t, records[0].Verified)
		assert.False(t, records[0].Error)
		assert.Equal(t, "alice", records[0].Username)
	}

	h.recorder.AssertNumberOfCalls(t, "IsAlreadyCompleted", 1)
	h.recorder.AssertNumberOfCalls(t, "RecordCompleted", 1)
	h.stage.AssertNumberOfCalls(t, "MarkAdvanced", 1)
}

func TestVerifyAllNotYetKeepsTaskOpened(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	def := task.Definition{ID: "c", Reference: "0xabc123", Action: engagement.ActionComment}
	h.catalog.On("List", mock.Anything, engagement.ActionComment).Return([]task.Definition{def}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionComment).
		Return(verification.Result{ContentID: "0xabc123", Passes: 2}, nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionComment)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, def.Reference, engagement.ActionComment)
	require.NoError(t, err)

	outcomes, err := tr.VerifyAll(ctx, testActor, engagement.ActionComment)
	require.NoError(t, err)
	assert.Equal(t, task.StateOpened, outcomes[0].State)
	assert.NoError(t, outcomes[0].Err)

	rec := tr.Snapshot()[0]
	assert.Equal(t, task.StateOpened, rec.State)
	assert.False(t, rec.Error)
	assert.Equal(t, 1, rec.Attempts)
	h.recorder.AssertNotCalled(t, "RecordCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestPositiveEvidenceForUnopenedTaskIsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	def := likeDef("a", "0xabc123")
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
		Return(verification.Result{ContentID: "0xabc123", Found: true, Passes: 1}, nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)

	outcomes, err := tr.VerifyAll(ctx, testActor, engagement.ActionLike)
	require.NoError(t, err)
	assert.ErrorIs(t, outcomes[0].Err, engagement.ErrInvariantViolation)

	rec := tr.Snapshot()[0]
	assert.NotEqual(t, task.StateCompleted, rec.State)
	assert.Equal(t, task.StateErrored, rec.State)
	assert.True(t, rec.Error)
	h.recorder.AssertNotCalled(t, "RecordCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolutionFailureFailsAttemptOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		open      bool
		wantError bool
	}{
		{name: "opened task stays calm", open: true, wantError: false},
		{name: "unopened task shows failure", open: false, wantError: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newHarness()
			def := likeDef("a", shortURL)
			h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil)
			h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)
			h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
				Return(verification.Result{}, engagement.NewResolutionError(def.Reference, errors.New("status 404"))).Once()
			h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
				Return(verification.Result{ContentID: "0xabc12345"}, nil).Once()

			tr := h.tracker(t, idleConfig())
			_, err := tr.Load(ctx, engagement.ActionLike)
			require.NoError(t, err)
			if tt.open {
				_, err = tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
				require.NoError(t, err)
			}

			outcomes, err := tr.VerifyAll(ctx, testActor, engagement.ActionLike)
			require.NoError(t, err)
			assert.ErrorIs(t, outcomes[0].Err, engagement.ErrResolutionFailed)

			rec := tr.Snapshot()[0]
			assert.Equal(t, task.StateErrored, rec.State)
			assert.Equal(t, tt.wantError, rec.Error)
			assert.NotEmpty(t, rec.LastError)

			// The next attempt is allowed and clears the failure.
			_, err = tr.VerifyAll(ctx, testActor, engagement.ActionLike)
			require.NoError(t, err)
			rec = tr.Snapshot()[0]
			assert.False(t, rec.Error)
			assert.Equal(t, 2, rec.Attempts)
		})
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStaleAttemptAfterReloadIsLoggedAndDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	def := likeDef("a", shortURL)
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil).Once()
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return(nil, nil).Once()
	h.catalog.On("List", mock.Anything, engagement.ActionKind("")).Return(nil, nil).Once()
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil).Once()
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(verification.Result{}, engagement.NewResolutionError(def.Reference, errors.New("status 404"))).Once()

	var logs lockedBuffer
	tr := NewTracker(testActor, h.deps(), idleConfig(), testMetrics(t),
		logger.New(&logs, logger.LevelWarn, "castverify", nil), testTracer)
	t.Cleanup(tr.Close)

	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
	require.NoError(t, err)

	done := make(chan []Outcome, 1)
	go func() {
		outcomes, _ := tr.VerifyAll(ctx, testActor, engagement.ActionLike)
		done <- outcomes
	}()
	<-started

	// Drop the task, then bring it back while the attempt is still running.
	_, err = tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)

	close(release)
	outcomes := <-done
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, engagement.ErrResolutionFailed)

	rec := tr.Snapshot()[0]
	assert.Equal(t, task.StateOpened, rec.State)
	assert.False(t, rec.Error)
	assert.Contains(t, logs.String(), "Rejected task transition")
}

func TestNotConfiguredHaltsTracker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	def := likeDef("a", "0xabc123")
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
		Return(verification.Result{}, engagement.ErrNotConfigured).Once()

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
	require.NoError(t, err)

	_, err = tr.VerifyAll(ctx, testActor, engagement.ActionLike)
	assert.ErrorIs(t, err, engagement.ErrNotConfigured)
	assert.False(t, tr.scheduler.Active("a"))

	_, err = tr.VerifyAll(ctx, testActor, engagement.ActionLike)
	assert.ErrorIs(t, err, engagement.ErrNotConfigured)
	_, err = tr.Load(ctx, engagement.ActionLike)
	assert.ErrorIs(t, err, engagement.ErrNotConfigured)
	h.verifier.AssertNumberOfCalls(t, "Verify", 1)
}

func TestConcurrentVerifyAllRecordsEachTaskOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	h.allowEvents()
	h.allowAdvance()
	defs := []task.Definition{likeDef("a", "0xaaaaaa"), likeDef("b", "0xbbbbbb"), likeDef("c", "0xcccccc")}
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return(defs, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)
	h.recorder.On("RecordCompleted", mock.Anything, testActor, mock.Anything).Return(nil)
	h.verifier.On("Verify", mock.Anything, mock.Anything, testActor, engagement.ActionLike).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(verification.Result{ContentID: "0xabcdef", Found: true, Passes: 1}, nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	for _, def := range defs {
		_, err := tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.VerifyAll(ctx, testActor, engagement.ActionLike)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, rec := range tr.Snapshot() {
		assert.Equal(t, task.StateCompleted, rec.State)
	}
	counts := recordedRefs(h.recorder)
	require.Len(t, counts, len(defs))
	for _, def := range defs {
		assert.Equal(t, 1, counts[def.Reference], "reference %s", def.Reference)
	}
	h.verifier.AssertNumberOfCalls(t, "Verify", len(defs))
	h.stage.AssertNumberOfCalls(t, "MarkAdvanced", 1)
}

func TestPollingCompletesOpenedTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	h.allowEvents()
	h.allowAdvance()
	def := likeDef("a", "0xabc123")
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)
	h.recorder.On("RecordCompleted", mock.Anything, testActor, def.Reference).Return(nil)
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
		Return(verification.Result{ContentID: "0xabc123"}, nil).Once()
	h.verifier.On("Verify", mock.Anything, def.Reference, testActor, engagement.ActionLike).
		Return(verification.Result{ContentID: "0xabc123", Found: true}, nil)

	cfg := Config{Polling: PollPolicy{InitialDelay: time.Millisecond, Interval: time.Millisecond, MaxAttempts: 5}}
	tr := h.tracker(t, cfg)
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tr.Snapshot()[0].State == task.StateCompleted
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !tr.scheduler.Active("a") }, time.Second, time.Millisecond)

	// Give a stray loop a chance to misbehave before counting.
	time.Sleep(20 * time.Millisecond)
	h.verifier.AssertNumberOfCalls(t, "Verify", 2)
	h.recorder.AssertNumberOfCalls(t, "RecordCompleted", 1)
}

func TestPollingSkipsUnopenedTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{likeDef("a", "0xabc123")}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	cfg := Config{Polling: PollPolicy{InitialDelay: time.Millisecond, Interval: time.Millisecond, MaxAttempts: 3}}
	tr := h.tracker(t, cfg)
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, tr.scheduler.Len())
	h.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReloadCancelsPollingForRemovedTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	a, b := likeDef("a", "0xaaaaaa"), likeDef("b", "0xbbbbbb")
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{a, b}, nil).Once()
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{b}, nil).Once()
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, a.Reference, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, b.Reference, engagement.ActionLike)
	require.NoError(t, err)
	require.True(t, tr.scheduler.Active("a"))

	records, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys(records))
	assert.False(t, tr.scheduler.Active("a"))
	assert.True(t, tr.scheduler.Active("b"))
	assert.True(t, records[0].Opened)
}

func TestOpenedFlagSurvivesReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	def := likeDef("a", "0xabc123")
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{def}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	_, err = tr.OpenTask(ctx, def.Reference, engagement.ActionLike)
	require.NoError(t, err)

	records, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	assert.True(t, records[0].Opened)
	assert.Equal(t, task.StateOpened, records[0].State)
}

func TestAllSatisfiedSignalsOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		advanced      bool
		wantMarked    int
		wantPublished int
	}{
		{name: "first time", advanced: false, wantMarked: 1, wantPublished: 1},
		{name: "already advanced", advanced: true, wantMarked: 0, wantPublished: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newHarness()
			h.allowEvents()
			defs := []task.Definition{likeDef("a", "0xaaaaaa"), likeDef("b", "0xbbbbbb")}
			h.catalog.On("List", mock.Anything, engagement.ActionLike).Return(defs, nil)
			h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(true, nil)
			h.stage.On("HasAdvanced", mock.Anything, testActor, engagement.ActionLike).Return(tt.advanced, nil)
			h.stage.On("MarkAdvanced", mock.Anything, testActor, engagement.ActionLike).Return(nil)

			tr := h.tracker(t, idleConfig())
			for i := 0; i < 3; i++ {
				_, err := tr.Load(ctx, engagement.ActionLike)
				require.NoError(t, err)
			}

			h.stage.AssertNumberOfCalls(t, "HasAdvanced", 1)
			h.stage.AssertNumberOfCalls(t, "MarkAdvanced", tt.wantMarked)
			h.publisher.AssertNumberOfCalls(t, "PublishAllSatisfied", tt.wantPublished)
		})
	}
}

func TestAllSatisfiedRetriesAfterStageFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	h.allowEvents()
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{likeDef("a", "0xaaaaaa")}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(true, nil)
	h.stage.On("HasAdvanced", mock.Anything, testActor, engagement.ActionLike).Return(false, errors.New("store down")).Once()
	h.stage.On("HasAdvanced", mock.Anything, testActor, engagement.ActionLike).Return(false, nil)
	h.stage.On("MarkAdvanced", mock.Anything, testActor, engagement.ActionLike).Return(nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	h.stage.AssertNotCalled(t, "MarkAdvanced", mock.Anything, mock.Anything, mock.Anything)

	_, err = tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)
	h.stage.AssertNumberOfCalls(t, "MarkAdvanced", 1)
}

func TestVerifyAllPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		load   bool
		actor  engagement.ActorID
		action engagement.ActionKind
		want   error
	}{
		{name: "not loaded", actor: testActor, action: engagement.ActionLike, want: ErrNotLoaded},
		{name: "other actor", load: true, actor: 7, action: engagement.ActionLike, want: ErrActorMismatch},
		{name: "other action", load: true, actor: testActor, action: engagement.ActionRecast, want: ErrActionMismatch},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newHarness()
			h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{likeDef("a", "0xabc123")}, nil)
			h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

			tr := h.tracker(t, idleConfig())
			if tt.load {
				_, err := tr.Load(ctx, engagement.ActionLike)
				require.NoError(t, err)
			}

			_, err := tr.VerifyAll(ctx, tt.actor, tt.action)
			assert.ErrorIs(t, err, tt.want)
			h.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestVerifyAllPreCheckDelayHonorsContext(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return([]task.Definition{likeDef("a", "0xabc123")}, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	cfg := idleConfig()
	cfg.PreCheckDelay = map[engagement.ActionKind]time.Duration{engagement.ActionLike: time.Hour}
	tr := h.tracker(t, cfg)
	_, err := tr.Load(context.Background(), engagement.ActionLike)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tr.VerifyAll(ctx, testActor, engagement.ActionLike)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	h.verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	defs := []task.Definition{likeDef("a", "0xaaaaaa"), likeDef("done", "0xdddddd")}
	h.catalog.On("List", mock.Anything, engagement.ActionLike).Return(defs, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, engagement.ContentReference("0xdddddd")).Return(true, nil)
	h.recorder.On("IsAlreadyCompleted", mock.Anything, testActor, mock.Anything).Return(false, nil)

	tr := h.tracker(t, idleConfig())
	_, err := tr.Load(ctx, engagement.ActionLike)
	require.NoError(t, err)

	t.Run("unknown reference", func(t *testing.T) {
		_, err := tr.OpenTask(ctx, "0xffffff", engagement.ActionLike)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("by key", func(t *testing.T) {
		rec, err := tr.OpenTask(ctx, "a", "")
		require.NoError(t, err)
		assert.Equal(t, "a", rec.Key())
		assert.True(t, rec.Opened)
	})

	t.Run("completed task is left alone", func(t *testing.T) {
		rec, err := tr.OpenTask(ctx, "0xdddddd", engagement.ActionLike)
		require.NoError(t, err)
		assert.Equal(t, task.StateCompleted, rec.State)
		assert.False(t, tr.scheduler.Active("done"))
	})
}
