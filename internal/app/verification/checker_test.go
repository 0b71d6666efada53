package verification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/pkg/common/logger"
)

const (
	testID    = engagement.ContentID("0xab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12")
	testBare  = "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"
	testActor = engagement.ActorID(42)
)

var errUpstream = errors.New("upstream 503")

func TestCheckLikeViewerFlag(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).
		Return(engagement.Cast{ViewerLiked: boolPtr(true)}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionLike)
	require.NoError(t, err)
	assert.True(t, found)
	src.AssertExpectations(t)
}

func TestCheckLikeFallsBackToEmbeddedList(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).
		Return(engagement.Cast{Likes: []engagement.ActorID{7, 42}}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionLike)
	require.NoError(t, err)
	assert.True(t, found)
	src.AssertNumberOfCalls(t, "CastByHash", 1)
}

func TestCheckLikeFlagFalseButListed(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).
		Return(engagement.Cast{ViewerLiked: boolPtr(false), Likes: []engagement.ActorID{42}}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionLike)
	require.NoError(t, err)
	assert.True(t, found, "both surfaces are advisory, any positive wins")
}

func TestCheckLikeNetworkErrorIsNoEvidence(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).Return(engagement.Cast{}, errUpstream).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionLike)
	require.NoError(t, err)
	assert.False(t, found)
	src.AssertNumberOfCalls(t, "CastByHash", 1)
}

func TestCheckRecastChain(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).
		Return(engagement.Cast{ViewerRecasted: boolPtr(false), Recasts: []engagement.ActorID{1}}, nil).Once()
	src.On("Reactors", mock.Anything, testID, engagement.ReactionRecasts, testActor).
		Return([]engagement.ActorID{3, 42}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionRecast)
	require.NoError(t, err)
	assert.True(t, found)
	src.AssertExpectations(t)
}

func TestCheckRecastNothingAnywhere(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).Return(engagement.Cast{}, nil).Once()
	src.On("Reactors", mock.Anything, testID, engagement.ReactionRecasts, testActor).Return(nil, errUpstream).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionRecast)
	require.NoError(t, err)
	assert.False(t, found)
}

func expectEmptyComment(src *mockSource) {
	src.On("CastByHash", mock.Anything, testID, testActor).Return(engagement.Cast{}, nil).Once()
	src.On("CastByHash", mock.Anything, testID, engagement.ActorID(0)).Return(engagement.Cast{}, nil).Once()
	src.On("Replies", mock.Anything, testID, 100).Return([]engagement.Cast{}, nil).Once()
}

func TestCheckCommentAllStrategiesEmpty(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	expectEmptyComment(src)
	src.On("CastsByParent", mock.Anything, testID.String(), 200).
		Return([]engagement.Cast{{Authors: []engagement.ActorID{7}}}, nil).Once()
	src.On("CastsByParent", mock.Anything, testBare, 199).Return([]engagement.Cast{}, nil).Once()
	src.On("ActorCasts", mock.Anything, testActor, 300).
		Return([]engagement.Cast{{Linkages: []string{"0xdeadbeef"}}}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionComment)
	require.NoError(t, err)
	assert.False(t, found)
	src.AssertExpectations(t)
}

func TestCheckCommentEmbeddedReply(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).
		Return(engagement.Cast{Replies: []engagement.Cast{{Authors: []engagement.ActorID{42}}}}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionComment)
	require.NoError(t, err)
	assert.True(t, found)
	src.AssertNotCalled(t, "Replies", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckCommentChildrenAcrossVariants(t *testing.T) {
	t.Parallel()

	origin := engagement.ContentReference("0x" + "AB12CD34EF56AB12CD34EF56AB12CD34EF56AB12CD34EF56AB12CD34EF56AB12")

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).Return(engagement.Cast{}, errUpstream).Once()
	src.On("CastByHash", mock.Anything, testID, engagement.ActorID(0)).Return(engagement.Cast{}, errUpstream).Once()
	src.On("Replies", mock.Anything, testID, 100).Return(nil, errUpstream).Once()
	src.On("CastsByParent", mock.Anything, string(origin), 200).Return(nil, errUpstream).Once()
	src.On("CastsByParent", mock.Anything, testBare, 200).
		Return([]engagement.Cast{{Authors: []engagement.ActorID{42}}}, nil).Once()

	found, err := newTestChecker(t, src).
		CheckOrigin(context.Background(), testID, origin, testActor, engagement.ActionComment)
	require.NoError(t, err)
	assert.True(t, found)
	src.AssertNotCalled(t, "CastsByParent", mock.Anything, testID.String(), mock.Anything)
	src.AssertNotCalled(t, "ActorCasts", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckCommentChildrenFullPageDoesNotHideOtherSpellings(t *testing.T) {
	t.Parallel()

	page := make([]engagement.Cast, 0, 200)
	for i := 0; i < 200; i++ {
		page = append(page, engagement.Cast{Authors: []engagement.ActorID{engagement.ActorID(1000 + i)}})
	}

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).Return(engagement.Cast{}, errUpstream).Once()
	src.On("CastByHash", mock.Anything, testID, engagement.ActorID(0)).Return(engagement.Cast{}, errUpstream).Once()
	src.On("Replies", mock.Anything, testID, 100).Return(nil, errUpstream).Once()
	src.On("CastsByParent", mock.Anything, testID.String(), 200).Return(page, nil).Once()
	src.On("CastsByParent", mock.Anything, testBare, 200).
		Return([]engagement.Cast{{Authors: []engagement.ActorID{42}}}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionComment)
	require.NoError(t, err)
	assert.True(t, found)
	src.AssertNumberOfCalls(t, "CastsByParent", 2)
	src.AssertNotCalled(t, "ActorCasts", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckCommentActorHistory(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	expectEmptyComment(src)
	src.On("CastsByParent", mock.Anything, mock.Anything, mock.Anything).Return([]engagement.Cast{}, nil)
	src.On("ActorCasts", mock.Anything, testActor, 300).Return([]engagement.Cast{
		{Linkages: []string{"0xother"}},
		{Linkages: []string{"0x" + testBare[:10], testBare}},
	}, nil).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionComment)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCheckNotConfiguredAborts(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).Return(engagement.Cast{}, engagement.ErrNotConfigured).Once()

	found, err := newTestChecker(t, src).Check(context.Background(), testID, testActor, engagement.ActionRecast)
	assert.ErrorIs(t, err, engagement.ErrNotConfigured)
	assert.False(t, found)
	src.AssertNotCalled(t, "Reactors", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckIsMonotonic(t *testing.T) {
	t.Parallel()

	src := new(mockSource)
	src.On("CastByHash", mock.Anything, testID, testActor).
		Return(engagement.Cast{ViewerLiked: boolPtr(true)}, nil).Once()

	checker := newTestChecker(t, src)
	for i := 0; i < 3; i++ {
		found, err := checker.Check(context.Background(), testID, testActor, engagement.ActionLike)
		require.NoError(t, err)
		assert.True(t, found)
	}
	src.AssertNumberOfCalls(t, "CastByHash", 1)
}

func TestCheckRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t, new(mockSource))
	ctx := context.Background()

	_, err := checker.Check(ctx, testID, 0, engagement.ActionLike)
	assert.ErrorIs(t, err, engagement.ErrInvalidActor)
	_, err = checker.Check(ctx, testID, testActor, "follow")
	assert.ErrorIs(t, err, engagement.ErrUnknownAction)
	_, err = checker.Check(ctx, "", testActor, engagement.ActionLike)
	assert.ErrorIs(t, err, engagement.ErrEmptyReference)
}

func TestCheckStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestChecker(t, new(mockSource)).Check(ctx, testID, testActor, engagement.ActionLike)
	assert.ErrorIs(t, err, context.Canceled)
}

type fixedStrategy struct {
	name  string
	found bool
	calls *int
}

func (s fixedStrategy) Name() string { return s.name }

func (s fixedStrategy) Attempt(context.Context, *Probe) (bool, error) {
	*s.calls++
	return s.found, nil
}

func TestChainsAreData(t *testing.T) {
	t.Parallel()

	var first, second int
	chains := Chains{engagement.ActionLike: {
		fixedStrategy{name: "a", found: true, calls: &first},
		fixedStrategy{name: "b", found: true, calls: &second},
	}}
	checker := NewChecker(new(mockSource), chains, testMetrics(t), logger.Noop(), testTracer)

	found, err := checker.Check(context.Background(), testID, testActor, engagement.ActionLike)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, first)
	assert.Zero(t, second, "chain must short circuit on first hit")

	_, err = checker.Check(context.Background(), testID, testActor, engagement.ActionComment)
	assert.ErrorIs(t, err, engagement.ErrUnknownAction)
}
