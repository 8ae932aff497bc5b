package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"survey_marking_backend/internal/model"
)

// VisibilityService answers which sections and questions a session sees.
// Nothing is cached: every call reloads the tree, the session and its
// responses, so an edited trigger answer takes effect on the next read.
type VisibilityService struct {
	Assessments AssessmentReader
	Sessions    SessionReader
	Users       UserReader
}

func NewVisibilityService(assessments AssessmentReader, sessions SessionReader, users UserReader) *VisibilityService {
	return &VisibilityService{Assessments: assessments, Sessions: sessions, Users: users}
}

type CompletionStats struct {
	TotalVisible       int     `json:"totalVisible"`
	RequiredVisible    int     `json:"requiredVisible"`
	AnsweredVisible    int     `json:"answeredVisible"`
	AnsweredRequired   int     `json:"answeredRequired"`
	PercentComplete    float64 `json:"percentComplete"`
	UnansweredRequired []uint  `json:"unansweredRequired,omitempty"`
	CanComplete        bool    `json:"canComplete"`
}

type IntegrityWarning struct {
	HiddenQuestionID uint   `json:"hiddenQuestionId"`
	DependentKind    string `json:"dependentKind"`
	DependentID      uint   `json:"dependentId"`
	Message          string `json:"message"`
}

// Visibility is one freshly computed view of a session.
type Visibility struct {
	Session     *model.ResponseSession
	Respondent  *model.User
	Assessment  *model.Assessment
	CountryCode string
	// Sections hold only their visible questions.
	Sections  []model.Section
	Questions []model.Question

	responses        map[uint]*model.Response
	visibleSections  map[uint]bool
	visibleQuestions map[uint]bool
}

// ResolveVisibility computes the view from already loaded data.
func ResolveVisibility(assessment *model.Assessment, countryCode string, responses []model.Response) *Visibility {
	v := &Visibility{
		Assessment:       assessment,
		CountryCode:      countryCode,
		responses:        make(map[uint]*model.Response, len(responses)),
		visibleSections:  make(map[uint]bool),
		visibleQuestions: make(map[uint]bool),
	}
	for i := range responses {
		v.responses[responses[i].QuestionID] = &responses[i]
	}
	if assessment == nil || !Accessible(assessment, countryCode) {
		return v
	}

	for _, section := range sortedSections(assessment) {
		if !v.itemVisible(&section) {
			continue
		}
		questions := sortedQuestions(section)
		visible := make([]model.Question, 0, len(questions))
		for _, q := range questions {
			if v.itemVisible(&q) {
				visible = append(visible, q)
				v.visibleQuestions[q.ID] = true
			}
		}
		section.Questions = visible
		v.visibleSections[section.ID] = true
		v.Sections = append(v.Sections, section)
		v.Questions = append(v.Questions, visible...)
	}
	return v
}

// sortedSections returns a copy of the assessment's sections by order.
func sortedSections(a *model.Assessment) []model.Section {
	sections := make([]model.Section, len(a.Sections))
	copy(sections, a.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
	return sections
}

func sortedQuestions(s model.Section) []model.Question {
	questions := make([]model.Question, len(s.Questions))
	copy(questions, s.Questions)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	return questions
}

type gatedItem interface {
	model.Restrictable
	model.Conditional
}

func (v *Visibility) itemVisible(item gatedItem) bool {
	if !Accessible(item, v.CountryCode) {
		return false
	}
	rules, conditional := item.VisibilityRules()
	if !conditional {
		return true
	}
	return EvaluateConditions(rules, v.Response)
}

func (v *Visibility) Response(questionID uint) *model.Response {
	return v.responses[questionID]
}

func (v *Visibility) QuestionVisible(questionID uint) bool {
	return v.visibleQuestions[questionID]
}

func (v *Visibility) SectionVisible(sectionID uint) bool {
	return v.visibleSections[sectionID]
}

func (v *Visibility) Completion() CompletionStats {
	stats := CompletionStats{TotalVisible: len(v.Questions)}
	for i := range v.Questions {
		q := &v.Questions[i]
		answered := v.responses[q.ID].Answered(q.Type)
		if answered {
			stats.AnsweredVisible++
		}
		if !q.Required {
			continue
		}
		stats.RequiredVisible++
		if answered {
			stats.AnsweredRequired++
		} else {
			stats.UnansweredRequired = append(stats.UnansweredRequired, q.ID)
		}
	}
	if stats.TotalVisible > 0 {
		pct := float64(stats.AnsweredVisible) / float64(stats.TotalVisible) * 100
		stats.PercentComplete = math.Round(pct*100) / 100
	}
	stats.CanComplete = stats.AnsweredRequired == stats.RequiredVisible
	return stats
}

// IntegrityWarnings flags hidden questions that still control a visible item.
// Such data is not an error; the hidden answers stay stored but stop counting.
func (v *Visibility) IntegrityWarnings() []IntegrityWarning {
	if v.Assessment == nil {
		return nil
	}
	var warnings []IntegrityWarning
	check := func(kind string, id uint, rules []model.ConditionalRule) {
		for _, rule := range rules {
			if v.visibleQuestions[rule.TriggerQuestionID] {
				continue
			}
			warnings = append(warnings, IntegrityWarning{
				HiddenQuestionID: rule.TriggerQuestionID,
				DependentKind:    kind,
				DependentID:      id,
				Message: fmt.Sprintf("%s %d is visible but depends on hidden question %d",
					kind, id, rule.TriggerQuestionID),
			})
		}
	}
	for _, section := range v.Sections {
		if section.IsConditional {
			check("section", section.ID, section.Conditions)
		}
	}
	for _, q := range v.Questions {
		if q.IsConditional {
			check("question", q.ID, q.Conditions)
		}
	}
	return warnings
}

func (v *Visibility) QuestionAt(index int) *model.Question {
	if index < 0 || index >= len(v.Questions) {
		return nil
	}
	q := v.Questions[index]
	return &q
}

func (v *Visibility) NextQuestion(currentID uint) *model.Question {
	idx := v.questionIndex(currentID)
	if idx < 0 {
		return nil
	}
	return v.QuestionAt(idx + 1)
}

func (v *Visibility) PreviousQuestion(currentID uint) *model.Question {
	idx := v.questionIndex(currentID)
	if idx < 0 {
		return nil
	}
	return v.QuestionAt(idx - 1)
}

func (v *Visibility) NextSection(currentID uint) *model.Section {
	return v.sectionAt(v.sectionIndex(currentID), 1)
}

func (v *Visibility) PreviousSection(currentID uint) *model.Section {
	return v.sectionAt(v.sectionIndex(currentID), -1)
}

func (v *Visibility) sectionAt(idx, step int) *model.Section {
	if idx < 0 {
		return nil
	}
	next := idx + step
	if next < 0 || next >= len(v.Sections) {
		return nil
	}
	s := v.Sections[next]
	return &s
}

func (v *Visibility) questionIndex(id uint) int {
	for i := range v.Questions {
		if v.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *Visibility) sectionIndex(id uint) int {
	for i := range v.Sections {
		if v.Sections[i].ID == id {
			return i
		}
	}
	return -1
}

// Resolve builds the view for an already loaded session.
func (s *VisibilityService) Resolve(ctx context.Context, session *model.ResponseSession) (*Visibility, error) {
	assessment, err := s.Assessments.FindAssessmentTree(ctx, session.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("load assessment %d: %w", session.AssessmentID, err)
	}
	user, err := s.Users.FindUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", session.UserID, err)
	}
	responses, err := s.Sessions.ListResponses(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load responses of session %d: %w", session.ID, err)
	}
	v := ResolveVisibility(assessment, user.CountryCode, responses)
	v.Session = session
	v.Respondent = user
	return v, nil
}

func (s *VisibilityService) ResolveSession(ctx context.Context, sessionID uint) (*Visibility, error) {
	session, err := s.Sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, session)
}

func (s *VisibilityService) VisibleSections(ctx context.Context, sessionID uint) ([]model.Section, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.Sections, nil
}

func (s *VisibilityService) VisibleQuestions(ctx context.Context, sessionID uint) ([]model.Question, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.Questions, nil
}

func (s *VisibilityService) CompletionStats(ctx context.Context, sessionID uint) (*CompletionStats, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stats := v.Completion()
	return &stats, nil
}

func (s *VisibilityService) CanComplete(ctx context.Context, sessionID uint) (bool, error) {
	stats, err := s.CompletionStats(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return stats.CanComplete, nil
}

func (s *VisibilityService) NextVisibleQuestion(ctx context.Context, sessionID, currentQuestionID uint) (*model.Question, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.NextQuestion(currentQuestionID), nil
}

func (s *VisibilityService) PreviousVisibleQuestion(ctx context.Context, sessionID, currentQuestionID uint) (*model.Question, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.PreviousQuestion(currentQuestionID), nil
}

func (s *VisibilityService) NextVisibleSection(ctx context.Context, sessionID, currentSectionID uint) (*model.Section, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.NextSection(currentSectionID), nil
}

func (s *VisibilityService) PreviousVisibleSection(ctx context.Context, sessionID, currentSectionID uint) (*model.Section, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.PreviousSection(currentSectionID), nil
}

func (s *VisibilityService) VisibleQuestionAt(ctx context.Context, sessionID uint, index int) (*model.Question, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.QuestionAt(index), nil
}

func (s *VisibilityService) IntegrityWarnings(ctx context.Context, sessionID uint) ([]IntegrityWarning, error) {
	v, err := s.ResolveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return v.IntegrityWarnings(), nil
}
