package service

import (
	"context"
	"time"

	"survey_marking_backend/internal/model"
)

type AssessmentReader interface {
	// FindAssessmentTree loads sections, questions and options sorted by order.
	FindAssessmentTree(ctx context.Context, assessmentID uint) (*model.Assessment, error)
}

type SessionReader interface {
	FindSessionByID(ctx context.Context, id uint) (*model.ResponseSession, error)
	ListResponses(ctx context.Context, sessionID uint) ([]model.Response, error)
}

type SessionStore interface {
	SessionReader
	FindSessionByUserAndAssessment(ctx context.Context, userID, assessmentID uint) (*model.ResponseSession, error)
	CreateSession(ctx context.Context, session *model.ResponseSession) error
	UpdateSession(ctx context.Context, session *model.ResponseSession) error
	SaveResponse(ctx context.Context, response *model.Response) error
	FindResponse(ctx context.Context, sessionID, questionID uint) (*model.Response, error)
	DeleteResponse(ctx context.Context, sessionID, questionID uint) error
	// ResetSession persists the reset session, drops its scores and, when
	// purge is set, its responses, in one transaction.
	ResetSession(ctx context.Context, session *model.ResponseSession, purge bool) error
}

type UserReader interface {
	FindUserByID(ctx context.Context, id uint) (*model.User, error)
}

type SchemeReader interface {
	// FindSchemeByID and FindActiveScheme preload the scheme's rules.
	FindSchemeByID(ctx context.Context, id uint) (*model.MarkingScheme, error)
	FindActiveScheme(ctx context.Context, assessmentID uint) (*model.MarkingScheme, error)
}

// MarkingCommit is everything one marking run writes.
type MarkingCommit struct {
	SessionID        uint
	SchemeID         uint
	TotalScore       float64
	MaxPossibleScore float64
	Percentage       float64
	Grade            string
	Feedback         string
	Scores           []model.ResponseScore
	MarkedAt         time.Time
}

type MarkingStore interface {
	// CommitMarking replaces the session's scores for the scheme and moves the
	// session to marked atomically. It returns util.ErrInvalidTransition when
	// the session left the markable states meanwhile.
	CommitMarking(ctx context.Context, commit MarkingCommit) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job model.MarkingJob) error
}

type JobConsumer interface {
	// Consume blocks, handing jobs to handle until ctx is done.
	Consume(ctx context.Context, handle func(context.Context, model.MarkingJob) error) error
}

type BatchStatusStore interface {
	SaveBatchStatus(ctx context.Context, status *model.BatchStatus, ttl time.Duration) error
	FindBatchStatus(ctx context.Context, batchID string) (*model.BatchStatus, error)
	// RecordBatchItem atomically counts one processed item of a queued batch.
	RecordBatchItem(ctx context.Context, batchID string, item BatchItemOutcome, ttl time.Duration) error
}

type BatchItemOutcome struct {
	SessionID uint
	Skipped   bool
	Err       error
}

type Notifier interface {
	SessionMarked(ctx context.Context, sessionID uint) error
}

// AuthoringStore persists assessment trees and marking schemes.
type AuthoringStore interface {
	AssessmentReader
	CreateAssessment(ctx context.Context, assessment *model.Assessment) error
	FindSectionByID(ctx context.Context, id uint) (*model.Section, error)
	CreateSection(ctx context.Context, section *model.Section) error
	SectionOrderTaken(ctx context.Context, assessmentID uint, order int) (bool, error)
	FindQuestionByID(ctx context.Context, id uint) (*model.Question, error)
	CreateQuestion(ctx context.Context, question *model.Question) error
	CreateOption(ctx context.Context, option *model.Option) error
	UpdateSectionConditions(ctx context.Context, section *model.Section) error
	UpdateQuestionConditions(ctx context.Context, question *model.Question) error

	FindSchemeByID(ctx context.Context, id uint) (*model.MarkingScheme, error)
	// CreateScheme deactivates the assessment's other schemes when the new
	// one is active.
	CreateScheme(ctx context.Context, scheme *model.MarkingScheme) error
	ActivateScheme(ctx context.Context, scheme *model.MarkingScheme) error
	DeleteScheme(ctx context.Context, id uint) error
	CreateRule(ctx context.Context, rule *model.MarkingRule) error
}
