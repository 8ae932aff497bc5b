package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var markedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var letterGrades = model.SchemeSettings{
	PassingScore: 60,
	GradeBoundaries: model.GradeBoundaryTable{
		{Grade: "C", MinPercentage: 70},
		{Grade: "A", MinPercentage: 90},
		{Grade: "B", MinPercentage: 80},
	},
	FeedbackTemplates: map[string]string{
		"A": "Well done %{name}: %{score}/%{max_score}",
		"B": "%{percentage}% is good",
	},
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []uint
	err   error
	panic bool
}

func (n *recordingNotifier) SessionMarked(_ context.Context, sessionID uint) error {
	n.mu.Lock()
	n.calls = append(n.calls, sessionID)
	n.mu.Unlock()
	if n.panic {
		panic("notifier down")
	}
	return n.err
}

// markingFixture builds a submitted session 7 of user "Ada" on assessment 1:
//
//	section 10: q100 radio [1001 correct, 1002], q101 text
//	section 11: shown when q100 has 1002; q110 range
//
// Scheme 50 is active with 5 points on each question.
func markingFixture() (*memStore, *MarkingService, *recordingNotifier) {
	store := newMemStore()
	store.putUser(1, "Ada", "US")

	conditional := section(11, 2, question(110, 11, 1, model.QuestionRange, false))
	conditional.IsConditional = true
	conditional.Conditions = []model.ConditionalRule{{
		TriggerQuestionID: 100, TriggerKind: model.TriggerOptionSelected, TriggerValues: []string{"1002"},
	}}
	store.putAssessment(1,
		section(10, 1,
			question(100, 10, 1, model.QuestionRadio, true, option(1001, 1, true, 1), option(1002, 2, false, 0)),
			question(101, 10, 2, model.QuestionRichText, false),
		),
		conditional,
	)
	store.putSession(7, 1, 1, model.SessionSubmitted)

	store.putScheme(50, 1, true, letterGrades,
		markingRule(501, 100, model.RuleOptionBased, 5, model.RuleCriteria{}),
		markingRule(502, 101, model.RuleKeywordBased, 5, model.RuleCriteria{Keyword: &model.KeywordCriteria{
			Keywords:      []string{"fast", "safe", "small", "simple", "clear"},
			ScoringMethod: model.KeywordProportional,
		}}),
		markingRule(503, 110, model.RuleRangeBased, 5, model.RuleCriteria{Range: &model.RangeCriteria{Min: 1, Max: 5}}),
	)

	notifier := &recordingNotifier{}
	vis := NewVisibilityService(store, store, store)
	svc := NewMarkingService(store, store, vis, nil, store, notifier, nil)
	svc.Now = func() time.Time { return markedAt }
	return store, svc, notifier
}

func TestMarkFullScore(t *testing.T) {
	store, svc, notifier := markingFixture()
	store.putResponses(
		choiceResponse(7, 100, 1001),
		textResponse(7, 101, "fast safe small simple clear"),
	)

	result, err := svc.Mark(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.True(t, result.Marked)
	assert.Equal(t, model.SessionMarked, result.State)
	assert.Equal(t, uint(50), result.SchemeID)
	assert.Equal(t, 10.0, result.TotalScore)
	assert.Equal(t, 10.0, result.MaxPossibleScore)
	assert.Equal(t, 100.0, result.Percentage)
	assert.Equal(t, "A", result.Grade)
	assert.True(t, result.Passed)
	assert.Equal(t, "Well done Ada: 10/10", result.Feedback)
	assert.Len(t, result.Scores, 2)

	session := store.session(7)
	assert.Equal(t, model.SessionMarked, session.State)
	require.NotNil(t, session.SchemeID)
	assert.Equal(t, uint(50), *session.SchemeID)
	assert.Equal(t, "A", session.Grade)
	require.NotNil(t, session.MarkedAt)
	assert.True(t, markedAt.Equal(*session.MarkedAt))
	assert.Equal(t, []uint{7}, notifier.calls)
}

func TestMarkPartialScoreResolvesGrade(t *testing.T) {
	store, svc, _ := markingFixture()
	store.putResponses(
		choiceResponse(7, 100, 1001),
		textResponse(7, 101, "fast, safe and small"),
	)

	result, err := svc.Mark(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 8.0, result.TotalScore)
	assert.Equal(t, 80.0, result.Percentage)
	assert.Equal(t, "B", result.Grade)
	assert.Equal(t, "80% is good", result.Feedback)
}

func TestMarkSkipsHiddenAndUnansweredQuestions(t *testing.T) {
	store, svc, _ := markingFixture()
	store.putResponses(
		choiceResponse(7, 100, 1001),
		numberResponse(7, 110, 3),
	)

	result, err := svc.Mark(context.Background(), 7, nil)
	require.NoError(t, err)
	require.Len(t, result.Scores, 1)
	assert.Equal(t, uint(100), result.Scores[0].QuestionID)
	assert.Equal(t, 5.0, result.TotalScore)
	assert.Equal(t, 5.0, result.MaxPossibleScore)

	// revealing the conditional section brings q110 into scoring
	store.putSession(7, 1, 1, model.SessionSubmitted)
	store.putResponses(choiceResponse(7, 100, 1002))
	result, err = svc.Mark(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.TotalScore)
	assert.Equal(t, 10.0, result.MaxPossibleScore)
	assert.Equal(t, 50.0, result.Percentage)
	assert.Equal(t, model.DefaultGrade, result.Grade)
	assert.False(t, result.Passed)
}

func TestMarkTakesBestRule(t *testing.T) {
	store, svc, _ := markingFixture()
	scheme := store.schemes[50]
	exact := markingRule(504, 101, model.RuleExactMatch, 5, model.RuleCriteria{
		ExactMatch: &model.ExactMatchCriteria{ExpectedValues: []string{"fast"}},
	})
	exact.SchemeID = 50
	exact.Order = 2
	scheme.Rules = append(scheme.Rules, exact)
	store.putResponses(choiceResponse(7, 100, 1001), textResponse(7, 101, "fast"))

	result, err := svc.Mark(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.TotalScore)
	for _, sc := range result.Scores {
		if sc.QuestionID == 101 {
			assert.Equal(t, uint(504), sc.RuleID)
			assert.Equal(t, 5.0, sc.MaxPossibleScore)
		}
	}
}

func TestMarkAgainReplacesScores(t *testing.T) {
	store, svc, _ := markingFixture()
	store.putResponses(choiceResponse(7, 100, 1001), textResponse(7, 101, "fast"))
	ctx := context.Background()

	first, err := svc.Mark(ctx, 7, nil)
	require.NoError(t, err)
	require.True(t, first.Marked)

	again, err := svc.Mark(ctx, 7, nil)
	require.NoError(t, err)
	assert.False(t, again.Marked, "marked sessions are not marked twice")
	assert.True(t, again.AlreadyMarked)
	assert.Equal(t, 1, store.commits)
	assert.Equal(t, first.SchemeID, again.SchemeID)
	assert.Equal(t, first.TotalScore, again.TotalScore)
	assert.Equal(t, first.MaxPossibleScore, again.MaxPossibleScore)
	assert.Equal(t, first.Percentage, again.Percentage)
	assert.Equal(t, first.Grade, again.Grade)
	assert.Equal(t, first.Feedback, again.Feedback)
	assert.Equal(t, first.Passed, again.Passed)

	// another scheme has no stored outcome to report
	store.putScheme(51, 1, false, letterGrades,
		markingRule(511, 100, model.RuleOptionBased, 5, model.RuleCriteria{}))
	other := uint(51)
	elsewhere, err := svc.Mark(ctx, 7, &other)
	require.NoError(t, err)
	assert.False(t, elsewhere.Marked)
	assert.False(t, elsewhere.AlreadyMarked)
	assert.Zero(t, elsewhere.TotalScore)
	assert.Empty(t, elsewhere.Grade)
	assert.Equal(t, 1, store.commits)

	store.sessions[7].State = model.SessionUnderReview
	_, err = svc.Mark(ctx, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, store.commits)
	assert.Len(t, store.scores[7], 2)
}

func TestMarkNotMarkableState(t *testing.T) {
	store, svc, notifier := markingFixture()
	store.sessions[7].State = model.SessionInProgress

	result, err := svc.Mark(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.False(t, result.Marked)
	assert.Contains(t, result.Reason, "in_progress")
	assert.Equal(t, model.SessionInProgress, result.State)
	assert.Zero(t, store.commits)
	assert.Empty(t, notifier.calls)
}

func TestMarkSchemeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no active scheme", func(t *testing.T) {
		store, svc, _ := markingFixture()
		store.schemes[50].IsActive = false
		_, err := svc.Mark(ctx, 7, nil)
		require.ErrorIs(t, err, ErrNoActiveScheme)
		assert.Equal(t, MarkingErrNoScheme, ClassifyMarkingError(err))
		assert.Equal(t, model.SessionSubmitted, store.session(7).State)
	})

	t.Run("explicit scheme missing", func(t *testing.T) {
		_, svc, _ := markingFixture()
		missing := uint(404)
		_, err := svc.Mark(ctx, 7, &missing)
		require.ErrorIs(t, err, ErrSchemeNotFound)
		assert.Equal(t, MarkingErrNoScheme, ClassifyMarkingError(err))
	})

	t.Run("scheme of another assessment", func(t *testing.T) {
		store, svc, _ := markingFixture()
		store.putScheme(60, 2, true, letterGrades, markingRule(601, 100, model.RuleOptionBased, 1, model.RuleCriteria{}))
		other := uint(60)
		_, err := svc.Mark(ctx, 7, &other)
		require.ErrorIs(t, err, ErrSchemeMismatch)
		assert.Equal(t, MarkingErrInvalidConfig, ClassifyMarkingError(err))
	})

	t.Run("all rules inactive", func(t *testing.T) {
		store, svc, _ := markingFixture()
		for i := range store.schemes[50].Rules {
			store.schemes[50].Rules[i].IsActive = false
		}
		_, err := svc.Mark(ctx, 7, nil)
		require.ErrorIs(t, err, ErrNothingToGrade)
		assert.Equal(t, MarkingErrNothingToGrade, ClassifyMarkingError(err))
	})

	t.Run("malformed grade table", func(t *testing.T) {
		store, svc, _ := markingFixture()
		store.putScheme(51, 1, true, model.SchemeSettings{GradeBoundaries: model.GradeBoundaryTable{
			{Grade: "A", MinPercentage: 90}, {Grade: "B", MinPercentage: 90},
		}}, markingRule(511, 100, model.RuleOptionBased, 1, model.RuleCriteria{}))
		_, err := svc.Mark(ctx, 7, nil)
		require.ErrorIs(t, err, ErrInvalidGradeBoundaries)
		assert.Zero(t, store.commits)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, svc, _ := markingFixture()
		_, err := svc.Mark(ctx, 404, nil)
		require.ErrorIs(t, err, util.ErrNotFound)
		assert.Equal(t, MarkingErrNotFound, ClassifyMarkingError(err))
	})
}

func TestMarkCommitFailures(t *testing.T) {
	ctx := context.Background()

	store, svc, notifier := markingFixture()
	store.commitErr = util.ErrInvalidTransition
	result, err := svc.Mark(ctx, 7, nil)
	require.NoError(t, err)
	assert.False(t, result.Marked)
	assert.Empty(t, notifier.calls)

	store.commitErr = errors.New("disk full")
	_, err = svc.Mark(ctx, 7, nil)
	require.Error(t, err)
	assert.Equal(t, MarkingErrInternal, ClassifyMarkingError(err))
}

func TestMarkIgnoresNotifierFailures(t *testing.T) {
	ctx := context.Background()

	store, svc, notifier := markingFixture()
	notifier.err = errors.New("redis down")
	result, err := svc.Mark(ctx, 7, nil)
	require.NoError(t, err)
	assert.True(t, result.Marked)

	store.sessions[7].State = model.SessionSubmitted
	notifier.panic = true
	result, err = svc.Mark(ctx, 7, nil)
	require.NoError(t, err)
	assert.True(t, result.Marked)
	assert.Len(t, notifier.calls, 2)
}

func TestPercentageAndFeedback(t *testing.T) {
	assert.Equal(t, 33.33, Percentage(1, 3))
	assert.Zero(t, Percentage(5, 0))

	out := RenderFeedback("%{name} scored %{score} of %{max_score} (%{percentage}%) %{unknown}", FeedbackValues{
		Name: "Ada", Score: 7.5, MaxScore: 10, Percentage: 75,
	})
	assert.Equal(t, "Ada scored 7.5 of 10 (75%) %{unknown}", out)
	assert.Empty(t, RenderFeedback("", FeedbackValues{Name: "Ada"}))
}

func TestRulesByQuestionOrdersAndFilters(t *testing.T) {
	first := markingRule(3, 10, model.RuleExactMatch, 1, model.RuleCriteria{})
	second := markingRule(1, 10, model.RuleExactMatch, 1, model.RuleCriteria{})
	second.Order = 2
	inactive := markingRule(2, 11, model.RuleExactMatch, 1, model.RuleCriteria{})
	inactive.IsActive = false

	grouped := RulesByQuestion([]model.MarkingRule{second, inactive, first})
	require.Len(t, grouped, 1)
	require.Len(t, grouped[10], 2)
	assert.Equal(t, uint(3), grouped[10][0].ID)
	assert.Equal(t, uint(1), grouped[10][1].ID)
}
