package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/util"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AssessmentService authors assessments and marking schemes. Every write is
// validated here so that the read paths can trust stored data.
type AssessmentService struct {
	Repo AuthoringStore
	Log  *zap.Logger
}

func NewAssessmentService(repo AuthoringStore, log *zap.Logger) *AssessmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssessmentService{Repo: repo, Log: log}
}

type CreateAssessmentRequest struct {
	Title               string   `json:"title" binding:"required"`
	Description         string   `json:"description"`
	RestrictedCountries []string `json:"restrictedCountries"`
}

type CreateSectionRequest struct {
	Title               string   `json:"title"`
	Order               int      `json:"order" binding:"required"`
	RestrictedCountries []string `json:"restrictedCountries"`
}

type CreateQuestionRequest struct {
	Type                model.QuestionType `json:"type" binding:"required"`
	Content             string             `json:"content"`
	Required            bool               `json:"required"`
	Order               int                `json:"order" binding:"required"`
	RestrictedCountries []string           `json:"restrictedCountries"`
}

type CreateOptionRequest struct {
	Label     string  `json:"label" binding:"required"`
	Order     int     `json:"order"`
	IsCorrect bool    `json:"isCorrect"`
	Points    float64 `json:"points"`
}

type ConditionsRequest struct {
	IsConditional bool                    `json:"isConditional"`
	Rules         []model.ConditionalRule `json:"rules"`
}

type CreateSchemeRequest struct {
	Name               string               `json:"name" binding:"required"`
	TotalPossibleScore float64              `json:"totalPossibleScore"`
	IsActive           bool                 `json:"isActive"`
	Settings           model.SchemeSettings `json:"settings"`
}

type CreateRuleRequest struct {
	QuestionID uint               `json:"questionId" binding:"required"`
	RuleType   model.RuleType     `json:"ruleType" binding:"required"`
	Points     float64            `json:"points"`
	Criteria   model.RuleCriteria `json:"criteria"`
	Order      int                `json:"order"`
	Inactive   bool               `json:"inactive"`
}

func (s *AssessmentService) CreateAssessment(ctx context.Context, req CreateAssessmentRequest) (*model.Assessment, error) {
	a := &model.Assessment{
		Title:               req.Title,
		Slug:                slug.Make(req.Title),
		Description:         req.Description,
		RestrictedCountries: normalizeCountries(req.RestrictedCountries),
	}
	if err := s.Repo.CreateAssessment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AssessmentService) GetAssessment(ctx context.Context, id uint) (*model.Assessment, error) {
	return s.Repo.FindAssessmentTree(ctx, id)
}

func (s *AssessmentService) AddSection(ctx context.Context, assessmentID uint, req CreateSectionRequest) (*model.Section, error) {
	if req.Order <= 0 {
		return nil, util.ErrInvalidOrder
	}
	if _, err := s.Repo.FindAssessmentTree(ctx, assessmentID); err != nil {
		return nil, err
	}
	taken, err := s.Repo.SectionOrderTaken(ctx, assessmentID, req.Order)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, util.ErrDuplicateSectionOrder
	}
	section := &model.Section{
		AssessmentID:        assessmentID,
		Title:               req.Title,
		Order:               req.Order,
		RestrictedCountries: normalizeCountries(req.RestrictedCountries),
	}
	if err := s.Repo.CreateSection(ctx, section); err != nil {
		return nil, err
	}
	return section, nil
}

func (s *AssessmentService) AddQuestion(ctx context.Context, sectionID uint, req CreateQuestionRequest) (*model.Question, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", util.ErrInvalidQuestionType, req.Type)
	}
	if req.Order <= 0 {
		return nil, util.ErrInvalidOrder
	}
	if _, err := s.Repo.FindSectionByID(ctx, sectionID); err != nil {
		return nil, err
	}
	q := &model.Question{
		SectionID:           sectionID,
		Type:                req.Type,
		Content:             req.Content,
		Required:            req.Required,
		Order:               req.Order,
		RestrictedCountries: normalizeCountries(req.RestrictedCountries),
	}
	if err := s.Repo.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *AssessmentService) AddOption(ctx context.Context, questionID uint, req CreateOptionRequest) (*model.Option, error) {
	q, err := s.Repo.FindQuestionByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !q.Type.IsChoice() && q.Type != model.QuestionBoolean {
		return nil, fmt.Errorf("%w: %s questions take no options", util.ErrInvalidQuestionType, q.Type)
	}
	opt := &model.Option{
		QuestionID: questionID,
		Label:      req.Label,
		Order:      req.Order,
		IsCorrect:  req.IsCorrect,
		Points:     req.Points,
	}
	if err := s.Repo.CreateOption(ctx, opt); err != nil {
		return nil, err
	}
	return opt, nil
}

// SetSectionConditions replaces a section's visibility rules. Triggers must
// live in an earlier section of the same assessment.
func (s *AssessmentService) SetSectionConditions(ctx context.Context, sectionID uint, req ConditionsRequest) (*model.Section, error) {
	section, err := s.Repo.FindSectionByID(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	tree, err := s.Repo.FindAssessmentTree(ctx, section.AssessmentID)
	if err != nil {
		return nil, err
	}
	positions := questionPositions(tree)
	for i, rule := range req.Rules {
		pos, ok := positions[rule.TriggerQuestionID]
		if !ok {
			return nil, fmt.Errorf("rule %d: %w", i, util.ErrTriggerNotFound)
		}
		if pos.sectionOrder >= section.Order {
			return nil, fmt.Errorf("rule %d: %w", i, util.ErrForwardReference)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w: %v", i, util.ErrInvalidRule, err)
		}
	}
	section.IsConditional = req.IsConditional
	section.Conditions = req.Rules
	if err := s.Repo.UpdateSectionConditions(ctx, section); err != nil {
		return nil, err
	}
	return section, nil
}

// SetQuestionConditions replaces a question's visibility rules. Triggers must
// precede the question in (section order, question order).
func (s *AssessmentService) SetQuestionConditions(ctx context.Context, questionID uint, req ConditionsRequest) (*model.Question, error) {
	q, err := s.Repo.FindQuestionByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	section, err := s.Repo.FindSectionByID(ctx, q.SectionID)
	if err != nil {
		return nil, err
	}
	tree, err := s.Repo.FindAssessmentTree(ctx, section.AssessmentID)
	if err != nil {
		return nil, err
	}
	positions := questionPositions(tree)
	owner := questionPosition{sectionOrder: section.Order, questionOrder: q.Order}
	for i, rule := range req.Rules {
		if rule.TriggerQuestionID == q.ID {
			return nil, fmt.Errorf("rule %d: %w", i, util.ErrSelfReference)
		}
		pos, ok := positions[rule.TriggerQuestionID]
		if !ok {
			return nil, fmt.Errorf("rule %d: %w", i, util.ErrTriggerNotFound)
		}
		if !pos.precedes(owner) {
			return nil, fmt.Errorf("rule %d: %w", i, util.ErrForwardReference)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w: %v", i, util.ErrInvalidRule, err)
		}
	}
	q.IsConditional = req.IsConditional
	q.Conditions = req.Rules
	if err := s.Repo.UpdateQuestionConditions(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *AssessmentService) CreateScheme(ctx context.Context, assessmentID uint, req CreateSchemeRequest) (*model.MarkingScheme, error) {
	if err := req.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w (%w): %v", util.ErrInvalidRule, ErrInvalidGradeBoundaries, err)
	}
	if _, err := s.Repo.FindAssessmentTree(ctx, assessmentID); err != nil {
		return nil, err
	}
	scheme := &model.MarkingScheme{
		AssessmentID:       assessmentID,
		Name:               req.Name,
		TotalPossibleScore: req.TotalPossibleScore,
		IsActive:           req.IsActive,
	}
	scheme.Settings = datatypes.NewJSONType(req.Settings)
	if err := s.Repo.CreateScheme(ctx, scheme); err != nil {
		return nil, err
	}
	s.Log.Info("marking scheme created",
		zap.Uint("schemeId", scheme.ID),
		zap.Uint("assessmentId", assessmentID),
		zap.Bool("active", scheme.IsActive),
	)
	return scheme, nil
}

func (s *AssessmentService) ActivateScheme(ctx context.Context, schemeID uint) (*model.MarkingScheme, error) {
	scheme, err := s.Repo.FindSchemeByID(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.ActivateScheme(ctx, scheme); err != nil {
		return nil, err
	}
	scheme.IsActive = true
	return scheme, nil
}

func (s *AssessmentService) DeleteScheme(ctx context.Context, schemeID uint) error {
	return s.Repo.DeleteScheme(ctx, schemeID)
}

// AddRule attaches a rule to a scheme. The rule's question must belong to the
// scheme's assessment and its criteria must fit the rule type.
func (s *AssessmentService) AddRule(ctx context.Context, schemeID uint, req CreateRuleRequest) (*model.MarkingRule, error) {
	scheme, err := s.Repo.FindSchemeByID(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	tree, err := s.Repo.FindAssessmentTree(ctx, scheme.AssessmentID)
	if err != nil {
		return nil, err
	}
	if _, ok := questionPositions(tree)[req.QuestionID]; !ok {
		return nil, fmt.Errorf("%w: question %d is not part of assessment %d",
			util.ErrInvalidRule, req.QuestionID, scheme.AssessmentID)
	}
	rule := &model.MarkingRule{
		SchemeID:   schemeID,
		QuestionID: req.QuestionID,
		RuleType:   req.RuleType,
		Points:     req.Points,
		IsActive:   !req.Inactive,
		Order:      req.Order,
	}
	rule.Criteria = datatypes.NewJSONType(req.Criteria)
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidRule, err)
	}
	if err := s.Repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

type questionPosition struct {
	sectionOrder  int
	questionOrder int
}

// precedes requires an earlier section, or an earlier order in the same
// section. Equal orders never precede each other.
func (p questionPosition) precedes(other questionPosition) bool {
	if p.sectionOrder != other.sectionOrder {
		return p.sectionOrder < other.sectionOrder
	}
	return p.questionOrder < other.questionOrder
}

func questionPositions(tree *model.Assessment) map[uint]questionPosition {
	positions := make(map[uint]questionPosition)
	for _, section := range tree.Sections {
		for _, q := range section.Questions {
			positions[q.ID] = questionPosition{sectionOrder: section.Order, questionOrder: q.Order}
		}
	}
	return positions
}

func normalizeCountries(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// IsAuthoringError reports whether err was caused by invalid input.
func IsAuthoringError(err error) bool {
	for _, target := range []error{
		util.ErrInvalidOrder, util.ErrDuplicateSectionOrder, util.ErrInvalidQuestionType,
		util.ErrTriggerNotFound, util.ErrForwardReference, util.ErrSelfReference,
		util.ErrInvalidRule, ErrInvalidGradeBoundaries,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
