package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"
)

// DefaultGrade is the grade used when no boundary matches.
const DefaultGrade = "F"

type GradeBoundary struct {
	Grade         string  `json:"grade" validate:"required,max=20"`
	MinPercentage float64 `json:"minPercentage" validate:"gte=0,lte=100"`
}

type GradeBoundaryTable []GradeBoundary

func (t GradeBoundaryTable) Validate() error {
	seenGrades := make(map[string]bool, len(t))
	seenThresholds := make(map[float64]bool, len(t))
	for _, b := range t {
		if err := validate.Struct(b); err != nil {
			return fmt.Errorf("grade boundary %q: %w", b.Grade, err)
		}
		key := strings.TrimSpace(b.Grade)
		if seenGrades[key] {
			return fmt.Errorf("duplicate grade label %q", key)
		}
		if seenThresholds[b.MinPercentage] {
			return fmt.Errorf("duplicate threshold %.2f", b.MinPercentage)
		}
		seenGrades[key] = true
		seenThresholds[b.MinPercentage] = true
	}
	return nil
}

// Descending returns a copy sorted by threshold, highest first.
func (t GradeBoundaryTable) Descending() GradeBoundaryTable {
	sorted := make(GradeBoundaryTable, len(t))
	copy(sorted, t)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPercentage > sorted[j].MinPercentage
	})
	return sorted
}

// Resolve returns the first grade whose threshold the percentage reaches.
func (t GradeBoundaryTable) Resolve(percentage float64) string {
	for _, b := range t.Descending() {
		if percentage >= b.MinPercentage {
			return b.Grade
		}
	}
	return DefaultGrade
}

type SchemeSettings struct {
	PassingScore      float64            `json:"passingScore" validate:"gte=0"`
	GradeBoundaries   GradeBoundaryTable `json:"gradeBoundaries"`
	FeedbackTemplates map[string]string  `json:"feedbackTemplates,omitempty"`
}

func (s SchemeSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	return s.GradeBoundaries.Validate()
}

type MarkingScheme struct {
	BaseModel
	AssessmentID       uint                               `gorm:"index;not null" json:"assessmentId"`
	Name               string                             `gorm:"size:255;not null" json:"name"`
	TotalPossibleScore float64                            `gorm:"default:0" json:"totalPossibleScore"`
	IsActive           bool                               `gorm:"default:false;index" json:"isActive"`
	Settings           datatypes.JSONType[SchemeSettings] `json:"settings"`
	Rules              []MarkingRule                      `gorm:"foreignKey:SchemeID;constraint:OnDelete:CASCADE" json:"rules,omitempty"`
}

func (MarkingScheme) TableName() string {
	return "marking_schemes"
}

type RuleType string

const (
	RuleExactMatch      RuleType = "exact_match"
	RuleOptionBased     RuleType = "option_based"
	RuleRangeBased      RuleType = "range_based"
	RuleToleranceBased  RuleType = "tolerance_based"
	RuleKeywordBased    RuleType = "keyword_based"
	RuleContentAnalysis RuleType = "content_analysis"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleExactMatch, RuleOptionBased, RuleRangeBased, RuleToleranceBased,
		RuleKeywordBased, RuleContentAnalysis:
		return true
	}
	return false
}

type MarkingRule struct {
	BaseModel
	SchemeID   uint                             `gorm:"index;not null" json:"schemeId"`
	QuestionID uint                             `gorm:"index;not null" json:"questionId"`
	RuleType   RuleType                         `gorm:"size:30;not null" json:"ruleType"`
	Points     float64                          `gorm:"default:0" json:"points"`
	Criteria   datatypes.JSONType[RuleCriteria] `json:"criteria"`
	IsActive   bool                             `gorm:"not null" json:"isActive"`
	Order      int                              `gorm:"column:sort_order;default:0" json:"order"`
}

func (MarkingRule) TableName() string {
	return "marking_rules"
}

func (r *MarkingRule) Validate() error {
	if !r.RuleType.Valid() {
		return fmt.Errorf("unsupported rule type %q", r.RuleType)
	}
	if r.Points < 0 {
		return errors.New("points must not be negative")
	}
	return r.Criteria.Data().ValidateFor(r.RuleType)
}

// ScoringDetails is the diagnostic payload stored with each score.
type ScoringDetails struct {
	RuleType        RuleType       `json:"ruleType"`
	Matched         bool           `json:"matched"`
	Reason          string         `json:"reason,omitempty"`
	Unsupported     bool           `json:"unsupported,omitempty"`
	ResponseValue   string         `json:"responseValue,omitempty"`
	MatchedKeywords []string       `json:"matchedKeywords,omitempty"`
	WordCount       int            `json:"wordCount,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

type ResponseScore struct {
	BaseModel
	ResponseID       uint                               `gorm:"index;not null" json:"responseId"`
	SessionID        uint                               `gorm:"index;not null" json:"sessionId"`
	SchemeID         uint                               `gorm:"index;not null" json:"schemeId"`
	RuleID           uint                               `gorm:"not null" json:"ruleId"`
	QuestionID       uint                               `gorm:"not null" json:"questionId"`
	ScoreEarned      float64                            `json:"scoreEarned"`
	MaxPossibleScore float64                            `json:"maxPossibleScore"`
	Details          datatypes.JSONType[ScoringDetails] `json:"details"`
	Feedback         string                             `gorm:"type:text" json:"feedback"`
}

func (ResponseScore) TableName() string {
	return "response_scores"
}
