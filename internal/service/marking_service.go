package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/util"
	"survey_marking_backend/pkg/monitoring"
	"survey_marking_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type MarkingService struct {
	Sessions   SessionReader
	Schemes    SchemeReader
	Visibility *VisibilityService
	Evaluator  *RuleEvaluator
	Store      MarkingStore
	Notifier   Notifier
	Log        *zap.Logger
	Now        func() time.Time
}

func NewMarkingService(
	sessions SessionReader,
	schemes SchemeReader,
	visibility *VisibilityService,
	evaluator *RuleEvaluator,
	store MarkingStore,
	notifier Notifier,
	log *zap.Logger,
) *MarkingService {
	if log == nil {
		log = zap.NewNop()
	}
	if evaluator == nil {
		evaluator = NewRuleEvaluator(nil, nil)
	}
	return &MarkingService{
		Sessions:   sessions,
		Schemes:    schemes,
		Visibility: visibility,
		Evaluator:  evaluator,
		Store:      store,
		Notifier:   notifier,
		Log:        log,
		Now:        time.Now,
	}
}

type MarkResult struct {
	SessionID        uint                  `json:"sessionId"`
	SchemeID         uint                  `json:"schemeId,omitempty"`
	Marked           bool                  `json:"marked"`
	AlreadyMarked    bool                  `json:"alreadyMarked,omitempty"`
	Reason           string                `json:"reason,omitempty"`
	State            model.SessionState    `json:"state"`
	TotalScore       float64               `json:"totalScore"`
	MaxPossibleScore float64               `json:"maxPossibleScore"`
	Percentage       float64               `json:"percentage"`
	Grade            string                `json:"grade,omitempty"`
	Feedback         string                `json:"feedback,omitempty"`
	Passed           bool                  `json:"passed"`
	Scores           []model.ResponseScore `json:"scores,omitempty"`
}

// Mark grades one submitted session and commits the outcome atomically.
// A session outside the markable states yields Marked=false and no error.
func (s *MarkingService) Mark(ctx context.Context, sessionID uint, schemeID *uint) (*MarkResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "MarkingService.Mark")
	defer span.End()
	span.SetAttributes(attribute.Int64("session.id", int64(sessionID)))

	start := time.Now()
	result, err := s.mark(ctx, sessionID, schemeID)
	outcome := "marked"
	switch {
	case err != nil:
		outcome = string(ClassifyMarkingError(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !result.Marked:
		outcome = "skipped"
	}
	monitoring.ObserveMarking(outcome, time.Since(start))
	return result, err
}

func (s *MarkingService) mark(ctx context.Context, sessionID uint, schemeID *uint) (*MarkResult, error) {
	session, err := s.Sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	if !session.MayMark() {
		result := cannotMark(session, fmt.Sprintf("session is %s, expected submitted or under_review", session.State))
		s.carryPersisted(ctx, result, session, schemeID)
		return result, nil
	}

	scheme, err := s.resolveScheme(ctx, session.AssessmentID, schemeID)
	if err != nil {
		return nil, err
	}
	settings := scheme.Settings.Data()
	if err := settings.GradeBoundaries.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGradeBoundaries, err)
	}
	rules := RulesByQuestion(scheme.Rules)
	if len(rules) == 0 {
		return nil, fmt.Errorf("scheme %d: %w", scheme.ID, ErrNothingToGrade)
	}

	vis, err := s.Visibility.Resolve(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("resolve visibility: %w", err)
	}

	result := s.Score(vis, scheme, rules)
	now := s.Now()
	commit := MarkingCommit{
		SessionID:        session.ID,
		SchemeID:         scheme.ID,
		TotalScore:       result.TotalScore,
		MaxPossibleScore: result.MaxPossibleScore,
		Percentage:       result.Percentage,
		Grade:            result.Grade,
		Feedback:         result.Feedback,
		Scores:           result.Scores,
		MarkedAt:         now,
	}
	if err := s.Store.CommitMarking(ctx, commit); err != nil {
		if errors.Is(err, util.ErrInvalidTransition) {
			return cannotMark(session, "session left the markable states during marking"), nil
		}
		return nil, fmt.Errorf("commit marking of session %d: %w", session.ID, err)
	}
	result.Marked = true
	result.State = model.SessionMarked

	s.Log.Info("session marked",
		zap.Uint("sessionId", session.ID),
		zap.Uint("schemeId", scheme.ID),
		zap.Float64("totalScore", result.TotalScore),
		zap.Float64("maxPossibleScore", result.MaxPossibleScore),
		zap.String("grade", result.Grade),
	)
	s.notify(ctx, session.ID)
	return result, nil
}

func (s *MarkingService) resolveScheme(ctx context.Context, assessmentID uint, schemeID *uint) (*model.MarkingScheme, error) {
	if schemeID != nil {
		scheme, err := s.Schemes.FindSchemeByID(ctx, *schemeID)
		if errors.Is(err, util.ErrNotFound) {
			return nil, fmt.Errorf("scheme %d: %w", *schemeID, ErrSchemeNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("load scheme %d: %w", *schemeID, err)
		}
		if scheme.AssessmentID != assessmentID {
			return nil, fmt.Errorf("scheme %d: %w", scheme.ID, ErrSchemeMismatch)
		}
		return scheme, nil
	}
	scheme, err := s.Schemes.FindActiveScheme(ctx, assessmentID)
	if errors.Is(err, util.ErrNotFound) {
		return nil, fmt.Errorf("assessment %d: %w", assessmentID, ErrNoActiveScheme)
	}
	if err != nil {
		return nil, fmt.Errorf("load active scheme of assessment %d: %w", assessmentID, err)
	}
	return scheme, nil
}

// Score computes the marking outcome without touching storage. Only visible
// questions with a response and at least one active rule contribute.
func (s *MarkingService) Score(vis *Visibility, scheme *model.MarkingScheme, rules map[uint][]model.MarkingRule) *MarkResult {
	result := &MarkResult{SchemeID: scheme.ID}
	if vis.Session != nil {
		result.SessionID = vis.Session.ID
		result.State = vis.Session.State
	}

	for i := range vis.Questions {
		q := &vis.Questions[i]
		candidates := rules[q.ID]
		if len(candidates) == 0 {
			continue
		}
		response := vis.Response(q.ID)
		if response == nil {
			continue
		}

		var best *ScoreOutcome
		var bestRule *model.MarkingRule
		for j := range candidates {
			outcome := s.Evaluator.Evaluate(&candidates[j], q, response)
			if best == nil || outcome.Earned > best.Earned {
				best = &outcome
				bestRule = &candidates[j]
			}
		}

		score := model.ResponseScore{
			ResponseID:       response.ID,
			SessionID:        result.SessionID,
			SchemeID:         scheme.ID,
			RuleID:           bestRule.ID,
			QuestionID:       q.ID,
			ScoreEarned:      best.Earned,
			MaxPossibleScore: best.Possible,
			Feedback:         best.Details.Reason,
		}
		score.Details = datatypes.NewJSONType(best.Details)
		result.Scores = append(result.Scores, score)
		result.TotalScore += best.Earned
		result.MaxPossibleScore += best.Possible
	}

	result.TotalScore = roundScore(result.TotalScore)
	result.MaxPossibleScore = roundScore(result.MaxPossibleScore)
	result.Percentage = Percentage(result.TotalScore, result.MaxPossibleScore)

	settings := scheme.Settings.Data()
	result.Grade = settings.GradeBoundaries.Resolve(result.Percentage)
	result.Passed = result.Percentage >= settings.PassingScore
	result.Feedback = RenderFeedback(settings.FeedbackTemplates[result.Grade], FeedbackValues{
		Name:       respondentName(vis),
		Score:      result.TotalScore,
		MaxScore:   result.MaxPossibleScore,
		Percentage: result.Percentage,
	})
	return result
}

func (s *MarkingService) notify(ctx context.Context, sessionID uint) {
	if s.Notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("mark notification panicked", zap.Uint("sessionId", sessionID), zap.Any("panic", r))
		}
	}()
	if err := s.Notifier.SessionMarked(ctx, sessionID); err != nil {
		s.Log.Warn("mark notification failed", zap.Uint("sessionId", sessionID), zap.Error(err))
	}
}

// RulesByQuestion groups active rules per question, each list sorted by
// order so that the first of equally scoring rules wins.
func RulesByQuestion(rules []model.MarkingRule) map[uint][]model.MarkingRule {
	grouped := make(map[uint][]model.MarkingRule)
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		grouped[r.QuestionID] = append(grouped[r.QuestionID], r)
	}
	for _, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Order != list[j].Order {
				return list[i].Order < list[j].Order
			}
			return list[i].ID < list[j].ID
		})
	}
	return grouped
}

// Percentage is total over maxScore, rounded to two decimals.
func Percentage(total, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return math.Round(total/maxScore*100*100) / 100
}

type FeedbackValues struct {
	Name       string
	Score      float64
	MaxScore   float64
	Percentage float64
}

// RenderFeedback fills %{name}, %{score}, %{max_score} and %{percentage}.
func RenderFeedback(template string, v FeedbackValues) string {
	if template == "" {
		return ""
	}
	return strings.NewReplacer(
		"%{name}", v.Name,
		"%{score}", formatNumber(v.Score),
		"%{max_score}", formatNumber(v.MaxScore),
		"%{percentage}", formatNumber(v.Percentage),
	).Replace(template)
}

func respondentName(vis *Visibility) string {
	if vis.Respondent == nil {
		return ""
	}
	return vis.Respondent.Name
}

// carryPersisted copies the stored outcome of an already graded session into
// result when it was graded under the requested scheme, or the active one.
func (s *MarkingService) carryPersisted(ctx context.Context, result *MarkResult, session *model.ResponseSession, schemeID *uint) {
	if session.SchemeID == nil || (session.State != model.SessionMarked && session.State != model.SessionPublished) {
		return
	}
	scheme, err := s.resolveScheme(ctx, session.AssessmentID, schemeID)
	if err != nil || scheme.ID != *session.SchemeID {
		return
	}
	result.AlreadyMarked = true
	result.SchemeID = scheme.ID
	result.TotalScore = session.TotalScore
	result.MaxPossibleScore = session.MaxPossibleScore
	result.Percentage = session.Percentage
	result.Grade = session.Grade
	result.Feedback = session.Feedback
	result.Passed = session.Percentage >= scheme.Settings.Data().PassingScore
}

func cannotMark(session *model.ResponseSession, reason string) *MarkResult {
	return &MarkResult{
		SessionID: session.ID,
		Marked:    false,
		Reason:    reason,
		State:     session.State,
	}
}
