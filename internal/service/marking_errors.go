package service

import (
	"errors"

	"survey_marking_backend/internal/util"
)

// Configuration errors: fatal for a single mark call, the session is untouched.
var (
	ErrSchemeNotFound         = errors.New("marking scheme not found")
	ErrNoActiveScheme         = errors.New("no active marking scheme for assessment")
	ErrSchemeMismatch         = errors.New("marking scheme belongs to another assessment")
	ErrInvalidGradeBoundaries = errors.New("grade boundary table is malformed")
	ErrNothingToGrade         = errors.New("marking scheme has no active rules")
)

type MarkingErrorKind string

const (
	MarkingErrNoScheme       MarkingErrorKind = "no_scheme"
	MarkingErrNothingToGrade MarkingErrorKind = "nothing_to_grade"
	MarkingErrInvalidConfig  MarkingErrorKind = "invalid_configuration"
	MarkingErrNotFound       MarkingErrorKind = "not_found"
	MarkingErrInternal       MarkingErrorKind = "internal_error"
)

// ClassifyMarkingError maps an error from Mark to the kind shown to users.
func ClassifyMarkingError(err error) MarkingErrorKind {
	switch {
	case errors.Is(err, ErrSchemeNotFound), errors.Is(err, ErrNoActiveScheme):
		return MarkingErrNoScheme
	case errors.Is(err, ErrNothingToGrade):
		return MarkingErrNothingToGrade
	case errors.Is(err, ErrInvalidGradeBoundaries), errors.Is(err, ErrSchemeMismatch):
		return MarkingErrInvalidConfig
	case errors.Is(err, util.ErrNotFound):
		return MarkingErrNotFound
	}
	return MarkingErrInternal
}

// MarkingErrorMessage is the user-facing text for err.
func MarkingErrorMessage(err error) string {
	switch ClassifyMarkingError(err) {
	case MarkingErrNoScheme:
		return "no marking scheme available for this assessment"
	case MarkingErrNothingToGrade:
		return "nothing to grade: the marking scheme has no active rules"
	case MarkingErrInvalidConfig:
		return "marking scheme is misconfigured: " + err.Error()
	case MarkingErrNotFound:
		return "session not found"
	}
	return "internal error while marking"
}
