package model

import (
	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionRadio          QuestionType = "radio"
	QuestionBoolean        QuestionType = "boolean"
	QuestionRichText       QuestionType = "richtext"
	QuestionDate           QuestionType = "date"
	QuestionRange          QuestionType = "range"
	QuestionFileUpload     QuestionType = "file_upload"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionRadio, QuestionBoolean, QuestionRichText,
		QuestionDate, QuestionRange, QuestionFileUpload:
		return true
	}
	return false
}

// IsChoice reports whether answers are given by selecting options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionMultipleChoice || t == QuestionRadio
}

// Restrictable is anything carrying a country denylist.
type Restrictable interface {
	Restrictions() []string
}

// Conditional is anything whose visibility may depend on earlier answers.
type Conditional interface {
	VisibilityRules() (rules []ConditionalRule, conditional bool)
}

// swagger:model Assessment
type Assessment struct {
	BaseModel
	Title               string                      `gorm:"size:255;not null" json:"title"`
	Slug                string                      `gorm:"size:255;index" json:"slug"`
	Description         string                      `gorm:"type:text" json:"description"`
	RestrictedCountries datatypes.JSONSlice[string] `json:"restrictedCountries"`
	Sections            []Section                   `gorm:"constraint:OnDelete:CASCADE" json:"sections,omitempty"`
	MarkingSchemes      []MarkingScheme             `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Assessment) TableName() string {
	return "assessments"
}

func (a *Assessment) Restrictions() []string {
	return a.RestrictedCountries
}

// OrderedQuestions flattens the tree in (section order, question order).
// Sections and questions are expected to be loaded sorted.
func (a *Assessment) OrderedQuestions() []Question {
	var qs []Question
	for _, s := range a.Sections {
		qs = append(qs, s.Questions...)
	}
	return qs
}

type Section struct {
	BaseModel
	AssessmentID        uint                                 `gorm:"not null;uniqueIndex:idx_section_assessment_order" json:"assessmentId"`
	Title               string                               `gorm:"size:255" json:"title"`
	Order               int                                  `gorm:"column:sort_order;not null;uniqueIndex:idx_section_assessment_order" json:"order"`
	RestrictedCountries datatypes.JSONSlice[string]          `json:"restrictedCountries"`
	IsConditional       bool                                 `gorm:"default:false" json:"isConditional"`
	Conditions          datatypes.JSONSlice[ConditionalRule] `json:"conditions"`
	Questions           []Question                           `gorm:"constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

func (Section) TableName() string {
	return "sections"
}

func (s *Section) Restrictions() []string {
	return s.RestrictedCountries
}

func (s *Section) VisibilityRules() ([]ConditionalRule, bool) {
	return s.Conditions, s.IsConditional
}

type Question struct {
	BaseModel
	SectionID           uint                                 `gorm:"index;not null" json:"sectionId"`
	Type                QuestionType                         `gorm:"size:30;not null" json:"type"`
	Content             string                               `gorm:"type:text" json:"content"`
	Required            bool                                 `gorm:"default:false" json:"required"`
	Order               int                                  `gorm:"column:sort_order;not null" json:"order"`
	RestrictedCountries datatypes.JSONSlice[string]          `json:"restrictedCountries"`
	IsConditional       bool                                 `gorm:"default:false" json:"isConditional"`
	Conditions          datatypes.JSONSlice[ConditionalRule] `json:"conditions"`
	Options             []Option                             `gorm:"constraint:OnDelete:CASCADE" json:"options,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

func (q *Question) Restrictions() []string {
	return q.RestrictedCountries
}

func (q *Question) VisibilityRules() ([]ConditionalRule, bool) {
	return q.Conditions, q.IsConditional
}

// CorrectOptionIDs returns the ids of options flagged correct, in option order.
func (q *Question) CorrectOptionIDs() []uint {
	var ids []uint
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func (q *Question) OptionByID(id uint) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

type Option struct {
	BaseModel
	QuestionID uint    `gorm:"index;not null" json:"questionId"`
	Label      string  `gorm:"size:255" json:"label"`
	Order      int     `gorm:"column:sort_order;not null" json:"order"`
	IsCorrect  bool    `gorm:"default:false" json:"isCorrect"`
	Points     float64 `gorm:"default:0" json:"points"`
}

func (Option) TableName() string {
	return "options"
}
