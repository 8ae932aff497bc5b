package repository

import (
	"context"
	"fmt"
	"testing"

	"survey_marking_backend/internal/config"
	"survey_marking_backend/internal/model"
	"survey_marking_backend/pkg/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(&config.DatabaseConfig{Driver: "sqlite", DBName: ":memory:"}, false)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// seed is a small persisted assessment with one submitted session.
type seed struct {
	assessment *model.Assessment
	user       *model.User
	session    *model.ResponseSession
	radio      *model.Question
	text       *model.Question
	responses  []model.Response
}

func seedAssessment(t *testing.T, db *gorm.DB, state model.SessionState) *seed {
	t.Helper()
	ctx := context.Background()
	s := &seed{}

	assessments := NewAssessmentRepository(db)
	s.assessment = &model.Assessment{Title: "Survey", Slug: "survey"}
	require.NoError(t, assessments.CreateAssessment(ctx, s.assessment))
	section := &model.Section{AssessmentID: s.assessment.ID, Title: "One", Order: 1}
	require.NoError(t, assessments.CreateSection(ctx, section))
	s.radio = &model.Question{SectionID: section.ID, Type: model.QuestionRadio, Order: 1, Required: true}
	require.NoError(t, assessments.CreateQuestion(ctx, s.radio))
	s.text = &model.Question{SectionID: section.ID, Type: model.QuestionRichText, Order: 2}
	require.NoError(t, assessments.CreateQuestion(ctx, s.text))

	s.user = &model.User{Name: "Ada", Email: fmt.Sprintf("ada-%s@example.com", state), CountryCode: "gb"}
	require.NoError(t, NewUserRepository(db).Create(ctx, s.user))

	sessions := NewSessionRepository(db)
	s.session = &model.ResponseSession{AssessmentID: s.assessment.ID, UserID: s.user.ID, State: state}
	require.NoError(t, sessions.CreateSession(ctx, s.session))
	for _, q := range []*model.Question{s.radio, s.text} {
		r := model.Response{SessionID: s.session.ID, QuestionID: q.ID}
		r.SetValue(model.ResponseValue{Text: "answer"})
		require.NoError(t, sessions.SaveResponse(ctx, &r))
		s.responses = append(s.responses, r)
	}
	return s
}
