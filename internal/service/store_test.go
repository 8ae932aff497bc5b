package service

import (
	"context"
	"sort"
	"sync"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/util"

	"gorm.io/datatypes"
)

// memStore is an in-memory stand-in for every repository port.
type memStore struct {
	mu          sync.Mutex
	nextID      uint
	assessments map[uint]*model.Assessment
	users       map[uint]*model.User
	sessions    map[uint]*model.ResponseSession
	responses   map[uint]map[uint]*model.Response
	schemes     map[uint]*model.MarkingScheme
	scores      map[uint][]model.ResponseScore

	commitErr error
	commits   int
}

func newMemStore() *memStore {
	return &memStore{
		nextID:      1000,
		assessments: make(map[uint]*model.Assessment),
		users:       make(map[uint]*model.User),
		sessions:    make(map[uint]*model.ResponseSession),
		responses:   make(map[uint]map[uint]*model.Response),
		schemes:     make(map[uint]*model.MarkingScheme),
		scores:      make(map[uint][]model.ResponseScore),
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) FindAssessmentTree(_ context.Context, id uint) (*model.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assessments[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return a, nil
}

func (m *memStore) FindUserByID(_ context.Context, id uint) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return u, nil
}

func (m *memStore) FindSessionByID(_ context.Context, id uint) (*model.ResponseSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *memStore) FindSessionByUserAndAssessment(_ context.Context, userID, assessmentID uint) (*model.ResponseSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.AssessmentID == assessmentID {
			c := *s
			return &c, nil
		}
	}
	return nil, util.ErrNotFound
}

func (m *memStore) CreateSession(_ context.Context, s *model.ResponseSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *model.ResponseSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *memStore) ListResponses(_ context.Context, sessionID uint) ([]model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Response
	for _, r := range m.responses[sessionID] {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *memStore) FindResponse(_ context.Context, sessionID, questionID uint) (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.responses[sessionID][questionID]
	if !ok {
		return nil, util.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *memStore) SaveResponse(_ context.Context, r *model.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.id()
	}
	if m.responses[r.SessionID] == nil {
		m.responses[r.SessionID] = make(map[uint]*model.Response)
	}
	c := *r
	m.responses[r.SessionID][r.QuestionID] = &c
	return nil
}

func (m *memStore) DeleteResponse(_ context.Context, sessionID, questionID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.responses[sessionID], questionID)
	return nil
}

func (m *memStore) ResetSession(_ context.Context, s *model.ResponseSession, purge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scores, s.ID)
	if purge {
		delete(m.responses, s.ID)
	}
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *memStore) FindSchemeByID(_ context.Context, id uint) (*model.MarkingScheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemes[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *memStore) FindActiveScheme(_ context.Context, assessmentID uint) (*model.MarkingScheme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.MarkingScheme
	for _, s := range m.schemes {
		if s.AssessmentID == assessmentID && s.IsActive && (found == nil || s.ID > found.ID) {
			found = s
		}
	}
	if found == nil {
		return nil, util.ErrNotFound
	}
	c := *found
	return &c, nil
}

func (m *memStore) CommitMarking(_ context.Context, c MarkingCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	s, ok := m.sessions[c.SessionID]
	if !ok || !s.MayMark() {
		return util.ErrInvalidTransition
	}
	m.commits++
	var kept []model.ResponseScore
	for _, sc := range m.scores[c.SessionID] {
		if sc.SchemeID != c.SchemeID {
			kept = append(kept, sc)
		}
	}
	m.scores[c.SessionID] = append(kept, c.Scores...)
	schemeID := c.SchemeID
	markedAt := c.MarkedAt
	s.State = model.SessionMarked
	s.SchemeID = &schemeID
	s.TotalScore = c.TotalScore
	s.MaxPossibleScore = c.MaxPossibleScore
	s.Percentage = c.Percentage
	s.Grade = c.Grade
	s.Feedback = c.Feedback
	s.MarkedAt = &markedAt
	return nil
}

// Authoring side.

func (m *memStore) CreateAssessment(_ context.Context, a *model.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	m.assessments[a.ID] = a
	return nil
}

func (m *memStore) sectionRef(id uint) *model.Section {
	for _, a := range m.assessments {
		for i := range a.Sections {
			if a.Sections[i].ID == id {
				return &a.Sections[i]
			}
		}
	}
	return nil
}

func (m *memStore) questionRef(id uint) *model.Question {
	for _, a := range m.assessments {
		for i := range a.Sections {
			for j := range a.Sections[i].Questions {
				if a.Sections[i].Questions[j].ID == id {
					return &a.Sections[i].Questions[j]
				}
			}
		}
	}
	return nil
}

func (m *memStore) FindSectionByID(_ context.Context, id uint) (*model.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sectionRef(id)
	if s == nil {
		return nil, util.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *memStore) CreateSection(_ context.Context, s *model.Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assessments[s.AssessmentID]
	if !ok {
		return util.ErrNotFound
	}
	s.ID = m.id()
	a.Sections = append(a.Sections, *s)
	return nil
}

func (m *memStore) SectionOrderTaken(_ context.Context, assessmentID uint, order int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.assessments[assessmentID].Sections {
		if s.Order == order {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) FindQuestionByID(_ context.Context, id uint) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.questionRef(id)
	if q == nil {
		return nil, util.ErrNotFound
	}
	c := *q
	return &c, nil
}

func (m *memStore) CreateQuestion(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sectionRef(q.SectionID)
	if s == nil {
		return util.ErrNotFound
	}
	q.ID = m.id()
	s.Questions = append(s.Questions, *q)
	return nil
}

func (m *memStore) CreateOption(_ context.Context, o *model.Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.questionRef(o.QuestionID)
	if q == nil {
		return util.ErrNotFound
	}
	o.ID = m.id()
	q.Options = append(q.Options, *o)
	return nil
}

func (m *memStore) UpdateSectionConditions(_ context.Context, s *model.Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.sectionRef(s.ID)
	ref.IsConditional = s.IsConditional
	ref.Conditions = s.Conditions
	return nil
}

func (m *memStore) UpdateQuestionConditions(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.questionRef(q.ID)
	ref.IsConditional = q.IsConditional
	ref.Conditions = q.Conditions
	return nil
}

func (m *memStore) CreateScheme(_ context.Context, s *model.MarkingScheme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IsActive {
		m.deactivate(s.AssessmentID)
	}
	s.ID = m.id()
	m.schemes[s.ID] = s
	return nil
}

func (m *memStore) ActivateScheme(_ context.Context, s *model.MarkingScheme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivate(s.AssessmentID)
	m.schemes[s.ID].IsActive = true
	return nil
}

func (m *memStore) deactivate(assessmentID uint) {
	for _, other := range m.schemes {
		if other.AssessmentID == assessmentID {
			other.IsActive = false
		}
	}
}

func (m *memStore) DeleteScheme(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemes[id]; !ok {
		return util.ErrNotFound
	}
	delete(m.schemes, id)
	return nil
}

func (m *memStore) CreateRule(_ context.Context, r *model.MarkingRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemes[r.SchemeID]
	if !ok {
		return util.ErrNotFound
	}
	r.ID = m.id()
	s.Rules = append(s.Rules, *r)
	return nil
}

// Fixture builders.

func question(id, sectionID uint, order int, t model.QuestionType, required bool, options ...model.Option) model.Question {
	q := model.Question{SectionID: sectionID, Type: t, Order: order, Required: required, Options: options}
	q.ID = id
	return q
}

func option(id uint, order int, correct bool, points float64) model.Option {
	o := model.Option{Order: order, IsCorrect: correct, Points: points}
	o.ID = id
	return o
}

func section(id uint, order int, questions ...model.Question) model.Section {
	s := model.Section{Order: order, Questions: questions}
	s.ID = id
	return s
}

func textResponse(sessionID, questionID uint, text string) *model.Response {
	r := &model.Response{SessionID: sessionID, QuestionID: questionID}
	r.SetValue(model.ResponseValue{Text: text})
	return r
}

func numberResponse(sessionID, questionID uint, n float64) *model.Response {
	r := &model.Response{SessionID: sessionID, QuestionID: questionID}
	r.SetValue(model.ResponseValue{Number: &n})
	return r
}

func choiceResponse(sessionID, questionID uint, optionIDs ...uint) *model.Response {
	return &model.Response{SessionID: sessionID, QuestionID: questionID, SelectedOptionIDs: optionIDs}
}

func markingRule(id, questionID uint, t model.RuleType, points float64, c model.RuleCriteria) model.MarkingRule {
	r := model.MarkingRule{QuestionID: questionID, RuleType: t, Points: points, IsActive: true}
	r.ID = id
	r.Criteria = datatypes.NewJSONType(c)
	return r
}

func (m *memStore) putUser(id uint, name, country string) {
	u := &model.User{Name: name, CountryCode: country}
	u.ID = id
	m.users[id] = u
}

func (m *memStore) putAssessment(id uint, sections ...model.Section) *model.Assessment {
	a := &model.Assessment{Title: "Survey", Sections: sections}
	a.ID = id
	for i := range a.Sections {
		a.Sections[i].AssessmentID = id
	}
	m.assessments[id] = a
	return a
}

func (m *memStore) putSession(id, assessmentID, userID uint, state model.SessionState) {
	s := &model.ResponseSession{AssessmentID: assessmentID, UserID: userID, State: state}
	s.ID = id
	m.sessions[id] = s
}

func (m *memStore) putResponses(responses ...*model.Response) {
	for _, r := range responses {
		if r.ID == 0 {
			r.ID = m.id()
		}
		if m.responses[r.SessionID] == nil {
			m.responses[r.SessionID] = make(map[uint]*model.Response)
		}
		m.responses[r.SessionID][r.QuestionID] = r
	}
}

func (m *memStore) putScheme(id, assessmentID uint, active bool, settings model.SchemeSettings, rules ...model.MarkingRule) {
	s := &model.MarkingScheme{AssessmentID: assessmentID, Name: "scheme", IsActive: active, Rules: rules}
	s.ID = id
	s.Settings = datatypes.NewJSONType(settings)
	for i := range s.Rules {
		s.Rules[i].SchemeID = id
	}
	m.schemes[id] = s
}

func (m *memStore) session(id uint) *model.ResponseSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *m.sessions[id]
	return &c
}
