package repository

import (
	"context"
	"testing"
	"time"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/service"
	"survey_marking_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func createScheme(t *testing.T, repo *MarkingRepository, assessmentID uint, name string, active bool) *model.MarkingScheme {
	t.Helper()
	scheme := &model.MarkingScheme{AssessmentID: assessmentID, Name: name, IsActive: active}
	scheme.Settings = datatypes.NewJSONType(model.SchemeSettings{PassingScore: 50})
	require.NoError(t, repo.CreateScheme(context.Background(), scheme))
	return scheme
}

func commitFor(s *seed, schemeID uint, earned ...float64) service.MarkingCommit {
	c := service.MarkingCommit{
		SessionID:        s.session.ID,
		SchemeID:         schemeID,
		Grade:            "B",
		Feedback:         "ok",
		MarkedAt:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		MaxPossibleScore: float64(len(earned)) * 5,
	}
	for i, e := range earned {
		r := s.responses[i]
		c.Scores = append(c.Scores, model.ResponseScore{
			ResponseID:       r.ID,
			QuestionID:       r.QuestionID,
			RuleID:           uint(i + 1),
			ScoreEarned:      e,
			MaxPossibleScore: 5,
		})
		c.TotalScore += e
	}
	c.Percentage = service.Percentage(c.TotalScore, c.MaxPossibleScore)
	return c
}

func TestSchemeActivationKeepsOneActive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := seedAssessment(t, db, model.SessionSubmitted)
	repo := NewMarkingRepository(db)

	v1 := createScheme(t, repo, s.assessment.ID, "v1", true)
	v2 := createScheme(t, repo, s.assessment.ID, "v2", true)
	require.NoError(t, repo.CreateRule(ctx, &model.MarkingRule{
		SchemeID: v2.ID, QuestionID: s.radio.ID, RuleType: model.RuleOptionBased, Points: 5, IsActive: true, Order: 2,
	}))
	require.NoError(t, repo.CreateRule(ctx, &model.MarkingRule{
		SchemeID: v2.ID, QuestionID: s.text.ID, RuleType: model.RuleExactMatch, Points: 5, Order: 1,
	}))

	active, err := repo.FindActiveScheme(ctx, s.assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)
	require.Len(t, active.Rules, 2)
	assert.Equal(t, s.text.ID, active.Rules[0].QuestionID, "rules sorted by order")
	assert.False(t, active.Rules[0].IsActive, "inactive flag survives the insert")
	assert.Equal(t, 50.0, active.Settings.Data().PassingScore)

	require.NoError(t, repo.ActivateScheme(ctx, v1))
	active, err = repo.FindActiveScheme(ctx, s.assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, active.ID)

	schemes, err := repo.ListSchemes(ctx, s.assessment.ID)
	require.NoError(t, err)
	require.Len(t, schemes, 2)
	assert.False(t, schemes[1].IsActive)

	require.NoError(t, repo.DeleteScheme(ctx, v1.ID))
	_, err = repo.FindActiveScheme(ctx, s.assessment.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteScheme(ctx, v1.ID), util.ErrNotFound)
	_, err = repo.FindSchemeByID(ctx, v1.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestCommitMarkingReplacesScores(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := seedAssessment(t, db, model.SessionSubmitted)
	repo := NewMarkingRepository(db)
	sessions := NewSessionRepository(db)
	scheme := createScheme(t, repo, s.assessment.ID, "v1", true)

	require.NoError(t, repo.CommitMarking(ctx, commitFor(s, scheme.ID, 5, 3)))

	marked, err := sessions.FindSessionByID(ctx, s.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionMarked, marked.State)
	assert.Equal(t, 8.0, marked.TotalScore)
	assert.Equal(t, 80.0, marked.Percentage)
	assert.Equal(t, "B", marked.Grade)
	require.NotNil(t, marked.SchemeID)
	assert.Equal(t, scheme.ID, *marked.SchemeID)
	require.NotNil(t, marked.MarkedAt)

	scores, err := repo.ListScores(ctx, s.session.ID)
	require.NoError(t, err)
	assert.Len(t, scores, 2)

	// a second run under review replaces the scores of the same scheme
	marked.State = model.SessionUnderReview
	require.NoError(t, sessions.UpdateSession(ctx, marked))
	require.NoError(t, repo.CommitMarking(ctx, commitFor(s, scheme.ID, 1)))
	scores, err = repo.ListScores(ctx, s.session.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 1.0, scores[0].ScoreEarned)
}

func TestCommitMarkingRollsBackWhenSessionNotMarkable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := seedAssessment(t, db, model.SessionInProgress)
	repo := NewMarkingRepository(db)
	scheme := createScheme(t, repo, s.assessment.ID, "v1", true)

	err := repo.CommitMarking(ctx, commitFor(s, scheme.ID, 5, 5))
	assert.ErrorIs(t, err, util.ErrInvalidTransition)

	scores, err := repo.ListScores(ctx, s.session.ID)
	require.NoError(t, err)
	assert.Empty(t, scores, "scores are rolled back with the state update")

	session, err := NewSessionRepository(db).FindSessionByID(ctx, s.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionInProgress, session.State)
	assert.Nil(t, session.SchemeID)
}

func TestAuthoringRepositoryServesBothStores(t *testing.T) {
	db := newTestDB(t)
	var store service.AuthoringStore = NewAuthoringRepository(NewAssessmentRepository(db), NewMarkingRepository(db))

	ctx := context.Background()
	a := &model.Assessment{Title: "Authoring"}
	require.NoError(t, store.CreateAssessment(ctx, a))
	scheme := &model.MarkingScheme{AssessmentID: a.ID, Name: "v1"}
	require.NoError(t, store.CreateScheme(ctx, scheme))
	found, err := store.FindSchemeByID(ctx, scheme.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", found.Name)
}
