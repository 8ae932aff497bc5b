package repository

import (
	"context"

	"survey_marking_backend/internal/model"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) FindSessionByID(ctx context.Context, id uint) (*model.ResponseSession, error) {
	var s model.ResponseSession
	if err := r.DB.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *SessionRepository) FindSessionByUserAndAssessment(ctx context.Context, userID, assessmentID uint) (*model.ResponseSession, error) {
	var s model.ResponseSession
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, assessmentID uint, state model.SessionState) ([]model.ResponseSession, error) {
	var sessions []model.ResponseSession
	query := r.DB.WithContext(ctx).Where("assessment_id = ?", assessmentID)
	if state != "" {
		query = query.Where("state = ?", state)
	}
	err := query.Order("id ASC").Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) CreateSession(ctx context.Context, s *model.ResponseSession) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) UpdateSession(ctx context.Context, s *model.ResponseSession) error {
	return r.DB.WithContext(ctx).Save(s).Error
}

func (r *SessionRepository) ListResponses(ctx context.Context, sessionID uint) ([]model.Response, error) {
	var responses []model.Response
	err := r.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("question_id ASC").
		Find(&responses).Error
	return responses, err
}

func (r *SessionRepository) FindResponse(ctx context.Context, sessionID, questionID uint) (*model.Response, error) {
	var resp model.Response
	err := r.DB.WithContext(ctx).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		First(&resp).Error
	if err != nil {
		return nil, translate(err)
	}
	return &resp, nil
}

func (r *SessionRepository) SaveResponse(ctx context.Context, resp *model.Response) error {
	return r.DB.WithContext(ctx).Save(resp).Error
}

// DeleteResponse removes the row for good so the (session, question) pair
// can be answered again.
func (r *SessionRepository) DeleteResponse(ctx context.Context, sessionID, questionID uint) error {
	return r.DB.WithContext(ctx).Unscoped().
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		Delete(&model.Response{}).Error
}

func (r *SessionRepository) ResetSession(ctx context.Context, s *model.ResponseSession, purge bool) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("session_id = ?", s.ID).Delete(&model.ResponseScore{}).Error; err != nil {
			return err
		}
		if purge {
			if err := tx.Unscoped().Where("session_id = ?", s.ID).Delete(&model.Response{}).Error; err != nil {
				return err
			}
		}
		return tx.Save(s).Error
	})
}
