package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/util"

	"go.uber.org/zap"
)

// SessionService drives a respondent's session through its lifecycle.
type SessionService struct {
	Store      SessionStore
	Visibility *VisibilityService
	Log        *zap.Logger
	Now        func() time.Time
}

func NewSessionService(store SessionStore, visibility *VisibilityService, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{Store: store, Visibility: visibility, Log: log, Now: time.Now}
}

type SaveResponseRequest struct {
	QuestionID        uint                `json:"questionId" binding:"required"`
	Value             model.ResponseValue `json:"value"`
	SelectedOptionIDs []uint              `json:"selectedOptionIds"`
}

// StartSession returns the user's session for the assessment, creating and
// starting it on first call.
func (s *SessionService) StartSession(ctx context.Context, userID, assessmentID uint) (*model.ResponseSession, error) {
	existing, err := s.Store.FindSessionByUserAndAssessment(ctx, userID, assessmentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, util.ErrNotFound) {
		return nil, err
	}

	assessment, err := s.Visibility.Assessments.FindAssessmentTree(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	user, err := s.Visibility.Users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !Accessible(assessment, user.CountryCode) {
		return nil, util.ErrRestricted
	}

	session := &model.ResponseSession{
		AssessmentID: assessmentID,
		UserID:       userID,
		State:        model.SessionDraft,
	}
	session.Fire(model.EventStart, s.Now())
	if err := s.Store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	s.Log.Info("session started",
		zap.Uint("sessionId", session.ID),
		zap.Uint("userId", userID),
		zap.Uint("assessmentId", assessmentID),
	)
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID uint) (*model.ResponseSession, error) {
	return s.Store.FindSessionByID(ctx, sessionID)
}

func (s *SessionService) Responses(ctx context.Context, sessionID uint) ([]model.Response, error) {
	return s.Store.ListResponses(ctx, sessionID)
}

// SaveResponse stores or replaces the answer to one visible question.
func (s *SessionService) SaveResponse(ctx context.Context, sessionID uint, req SaveResponseRequest) (*model.Response, error) {
	session, err := s.Store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsMutable() {
		return nil, util.ErrSessionNotMutable
	}
	vis, err := s.Visibility.Resolve(ctx, session)
	if err != nil {
		return nil, err
	}
	if !vis.QuestionVisible(req.QuestionID) {
		return nil, util.ErrQuestionNotVisible
	}

	response, err := s.Store.FindResponse(ctx, sessionID, req.QuestionID)
	if errors.Is(err, util.ErrNotFound) {
		response = &model.Response{SessionID: sessionID, QuestionID: req.QuestionID}
	} else if err != nil {
		return nil, err
	}
	response.SetValue(req.Value)
	response.SelectedOptionIDs = req.SelectedOptionIDs
	if err := s.Store.SaveResponse(ctx, response); err != nil {
		return nil, err
	}

	if err := s.advance(ctx, session); err != nil {
		return nil, err
	}
	return response, nil
}

// advance moves a draft or started session to in_progress on the first answer.
func (s *SessionService) advance(ctx context.Context, session *model.ResponseSession) error {
	now := s.Now()
	changed := session.Fire(model.EventStart, now)
	if session.Fire(model.EventProgress, now) {
		changed = true
	}
	if !changed {
		return nil
	}
	return s.Store.UpdateSession(ctx, session)
}

func (s *SessionService) ClearResponse(ctx context.Context, sessionID, questionID uint) error {
	session, err := s.Store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsMutable() {
		return util.ErrSessionNotMutable
	}
	return s.Store.DeleteResponse(ctx, sessionID, questionID)
}

// Submit closes the session for answers once every required visible question
// is answered.
func (s *SessionService) Submit(ctx context.Context, sessionID uint) (*model.ResponseSession, error) {
	session, err := s.Store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.MaySubmit() {
		return nil, fmt.Errorf("submit from %s: %w", session.State, util.ErrInvalidTransition)
	}
	vis, err := s.Visibility.Resolve(ctx, session)
	if err != nil {
		return nil, err
	}
	if stats := vis.Completion(); !stats.CanComplete {
		return nil, fmt.Errorf("%w: %v", util.ErrIncomplete, stats.UnansweredRequired)
	}
	session.Fire(model.EventSubmit, s.Now())
	if err := s.Store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) BeginReview(ctx context.Context, sessionID uint) (*model.ResponseSession, error) {
	return s.transition(ctx, sessionID, model.EventReview)
}

func (s *SessionService) Publish(ctx context.Context, sessionID uint) (*model.ResponseSession, error) {
	return s.transition(ctx, sessionID, model.EventPublish)
}

func (s *SessionService) Cancel(ctx context.Context, sessionID uint) (*model.ResponseSession, error) {
	return s.transition(ctx, sessionID, model.EventCancel)
}

// Reset returns the session to draft and drops its scores. Responses are
// deleted only when purge is set.
func (s *SessionService) Reset(ctx context.Context, sessionID uint, purge bool) (*model.ResponseSession, error) {
	session, err := s.Store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Fire(model.EventReset, s.Now()) {
		return nil, fmt.Errorf("reset from %s: %w", session.State, util.ErrInvalidTransition)
	}
	if err := s.Store.ResetSession(ctx, session, purge); err != nil {
		return nil, err
	}
	s.Log.Info("session reset", zap.Uint("sessionId", sessionID), zap.Bool("purge", purge))
	return session, nil
}

func (s *SessionService) transition(ctx context.Context, sessionID uint, event model.SessionEvent) (*model.ResponseSession, error) {
	session, err := s.Store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Fire(event, s.Now()) {
		return nil, fmt.Errorf("%s from %s: %w", event, session.State, util.ErrInvalidTransition)
	}
	if err := s.Store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
