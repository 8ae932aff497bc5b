package util

import "errors"

var (
	ErrNotFound              = errors.New("record not found")
	ErrSessionExists         = errors.New("session already exists for user and assessment")
	ErrSessionNotMutable     = errors.New("session no longer accepts responses")
	ErrInvalidTransition     = errors.New("transition not allowed from current state")
	ErrIncomplete            = errors.New("required visible questions are unanswered")
	ErrQuestionNotVisible    = errors.New("question is not visible for this session")
	ErrDuplicateSectionOrder = errors.New("section order already used in assessment")
	ErrInvalidOrder          = errors.New("order must be greater than zero")
	ErrForwardReference      = errors.New("trigger question must precede the item it controls")
	ErrTriggerNotFound       = errors.New("trigger question not found in assessment")
	ErrInvalidQuestionType   = errors.New("invalid question type")
	ErrRestricted            = errors.New("assessment is not available in the respondent's country")
	ErrSelfReference         = errors.New("an item cannot be triggered by itself")
	ErrInvalidRule           = errors.New("invalid rule definition")
)
