package model

import (
	"errors"
	"fmt"
)

// RuleCriteria carries exactly one typed payload, matching the rule type.
type RuleCriteria struct {
	ExactMatch *ExactMatchCriteria      `json:"exactMatch,omitempty"`
	Options    *OptionCriteria          `json:"options,omitempty"`
	Range      *RangeCriteria           `json:"range,omitempty"`
	Tolerance  *ToleranceCriteria       `json:"tolerance,omitempty"`
	Keyword    *KeywordCriteria         `json:"keyword,omitempty"`
	Content    *ContentAnalysisCriteria `json:"content,omitempty"`
}

type ExactMatchCriteria struct {
	ExpectedValues  []string `json:"expectedValues" validate:"required,min=1"`
	CaseInsensitive bool     `json:"caseInsensitive"`
}

type OptionCriteria struct {
	PartialCredit bool `json:"partialCredit"`
	// Uncapped lets the summed option points exceed the rule's points.
	Uncapped bool `json:"uncapped"`
}

type RangeCriteria struct {
	Min float64 `json:"min"`
	Max float64 `json:"max" validate:"gtefield=Min"`
}

type ToleranceCriteria struct {
	Target    float64 `json:"target"`
	Tolerance float64 `json:"tolerance" validate:"gte=0"`
}

type KeywordScoring string

const (
	KeywordProportional KeywordScoring = "proportional"
	KeywordAny          KeywordScoring = "any"
	KeywordAll          KeywordScoring = "all"
)

type KeywordCriteria struct {
	Keywords      []string       `json:"keywords" validate:"required,min=1,dive,required"`
	ScoringMethod KeywordScoring `json:"scoringMethod,omitempty" validate:"omitempty,oneof=proportional any all"`
	CaseSensitive bool           `json:"caseSensitive"`
}

// ContentAnalysisCriteria feeds the content heuristic. Weights are relative
// and normalised by the scoring policy; zero weights fall back to defaults.
type ContentAnalysisCriteria struct {
	MinWords        int      `json:"minWords" validate:"gte=0"`
	MaxWords        int      `json:"maxWords" validate:"gte=0"`
	Keywords        []string `json:"keywords,omitempty"`
	WordCountWeight float64  `json:"wordCountWeight" validate:"gte=0"`
	KeywordWeight   float64  `json:"keywordWeight" validate:"gte=0"`
}

// ValidateFor checks that the payload for t is present and well formed.
func (c RuleCriteria) ValidateFor(t RuleType) error {
	var payload any
	switch t {
	case RuleExactMatch:
		payload = c.ExactMatch
	case RuleOptionBased:
		if c.Options == nil {
			return nil
		}
		payload = c.Options
	case RuleRangeBased:
		payload = c.Range
	case RuleToleranceBased:
		payload = c.Tolerance
	case RuleKeywordBased:
		payload = c.Keyword
	case RuleContentAnalysis:
		if c.Content == nil {
			return errors.New("content_analysis criteria missing")
		}
		if c.Content.MaxWords > 0 && c.Content.MaxWords < c.Content.MinWords {
			return errors.New("content_analysis maxWords below minWords")
		}
		payload = c.Content
	default:
		return fmt.Errorf("unsupported rule type %q", t)
	}
	if isNilPayload(payload) {
		return fmt.Errorf("%s criteria missing", t)
	}
	return validate.Struct(payload)
}

func isNilPayload(p any) bool {
	switch v := p.(type) {
	case *ExactMatchCriteria:
		return v == nil
	case *OptionCriteria:
		return v == nil
	case *RangeCriteria:
		return v == nil
	case *ToleranceCriteria:
		return v == nil
	case *KeywordCriteria:
		return v == nil
	case *ContentAnalysisCriteria:
		return v == nil
	}
	return p == nil
}
