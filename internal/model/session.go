package model

import "time"

type SessionState string

const (
	SessionDraft       SessionState = "draft"
	SessionStarted     SessionState = "started"
	SessionInProgress  SessionState = "in_progress"
	SessionSubmitted   SessionState = "submitted"
	SessionUnderReview SessionState = "under_review"
	SessionMarked      SessionState = "marked"
	SessionPublished   SessionState = "published"
	SessionCancelled   SessionState = "cancelled"
)

type SessionEvent string

const (
	EventStart    SessionEvent = "start"
	EventProgress SessionEvent = "progress"
	EventSubmit   SessionEvent = "submit"
	EventReview   SessionEvent = "review"
	EventMark     SessionEvent = "mark"
	EventPublish  SessionEvent = "publish"
	EventCancel   SessionEvent = "cancel"
	EventReset    SessionEvent = "reset"
)

type transition struct {
	from []SessionState
	to   SessionState
}

var sessionTransitions = map[SessionEvent]transition{
	EventStart:    {from: []SessionState{SessionDraft}, to: SessionStarted},
	EventProgress: {from: []SessionState{SessionStarted}, to: SessionInProgress},
	EventSubmit:   {from: []SessionState{SessionStarted, SessionInProgress}, to: SessionSubmitted},
	EventReview:   {from: []SessionState{SessionSubmitted}, to: SessionUnderReview},
	EventMark:     {from: MarkableStates, to: SessionMarked},
	EventPublish:  {from: []SessionState{SessionMarked}, to: SessionPublished},
	EventCancel: {from: []SessionState{
		SessionDraft, SessionStarted, SessionInProgress, SessionSubmitted, SessionUnderReview,
	}, to: SessionCancelled},
	EventReset: {from: []SessionState{
		SessionStarted, SessionInProgress, SessionSubmitted, SessionUnderReview,
		SessionMarked, SessionPublished, SessionCancelled,
	}, to: SessionDraft},
}

// MarkableStates are the states a marking run accepts.
var MarkableStates = []SessionState{SessionSubmitted, SessionUnderReview}

// ResponseSession is one respondent's attempt at one assessment.
type ResponseSession struct {
	BaseModel
	AssessmentID     uint         `gorm:"not null;uniqueIndex:idx_session_user_assessment" json:"assessmentId"`
	UserID           uint         `gorm:"not null;uniqueIndex:idx_session_user_assessment" json:"userId"`
	State            SessionState `gorm:"size:20;default:'draft';index" json:"state"`
	SchemeID         *uint        `json:"schemeId,omitempty"`
	TotalScore       float64      `gorm:"default:0" json:"totalScore"`
	MaxPossibleScore float64      `gorm:"default:0" json:"maxPossibleScore"`
	Percentage       float64      `gorm:"default:0" json:"percentage"`
	Grade            string       `gorm:"size:20" json:"grade"`
	Feedback         string       `gorm:"type:text" json:"feedback"`
	StartedAt        *time.Time   `json:"startedAt,omitempty"`
	SubmittedAt      *time.Time   `json:"submittedAt,omitempty"`
	MarkedAt         *time.Time   `json:"markedAt,omitempty"`
	PublishedAt      *time.Time   `json:"publishedAt,omitempty"`
	CancelledAt      *time.Time   `json:"cancelledAt,omitempty"`
}

func (ResponseSession) TableName() string {
	return "response_sessions"
}

// May reports whether event is allowed from the current state.
func (s *ResponseSession) May(event SessionEvent) bool {
	t, ok := sessionTransitions[event]
	if !ok {
		return false
	}
	return containsState(t.from, s.State)
}

func (s *ResponseSession) MayStart() bool    { return s.May(EventStart) }
func (s *ResponseSession) MayProgress() bool { return s.May(EventProgress) }
func (s *ResponseSession) MaySubmit() bool   { return s.May(EventSubmit) }
func (s *ResponseSession) MayReview() bool   { return s.May(EventReview) }
func (s *ResponseSession) MayMark() bool     { return s.May(EventMark) }
func (s *ResponseSession) MayPublish() bool  { return s.May(EventPublish) }
func (s *ResponseSession) MayCancel() bool   { return s.May(EventCancel) }
func (s *ResponseSession) MayReset() bool    { return s.May(EventReset) }

// Fire applies event if the guard allows it and reports whether it did.
func (s *ResponseSession) Fire(event SessionEvent, now time.Time) bool {
	if !s.May(event) {
		return false
	}
	s.State = sessionTransitions[event].to
	switch event {
	case EventStart:
		s.StartedAt = &now
	case EventSubmit:
		s.SubmittedAt = &now
	case EventMark:
		s.MarkedAt = &now
	case EventPublish:
		s.PublishedAt = &now
	case EventCancel:
		s.CancelledAt = &now
	case EventReset:
		s.ClearScores()
		s.StartedAt = nil
		s.SubmittedAt = nil
		s.PublishedAt = nil
		s.CancelledAt = nil
	}
	return true
}

// IsMutable reports whether responses may still be written.
func (s *ResponseSession) IsMutable() bool {
	switch s.State {
	case SessionDraft, SessionStarted, SessionInProgress:
		return true
	}
	return false
}

func (s *ResponseSession) ClearScores() {
	s.SchemeID = nil
	s.TotalScore = 0
	s.MaxPossibleScore = 0
	s.Percentage = 0
	s.Grade = ""
	s.Feedback = ""
	s.MarkedAt = nil
}

func containsState(states []SessionState, s SessionState) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
