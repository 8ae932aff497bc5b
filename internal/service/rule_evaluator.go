package service

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"survey_marking_backend/internal/model"

	"golang.org/x/text/cases"
)

// ScoreOutcome is the result of applying one rule to one response.
type ScoreOutcome struct {
	Earned   float64
	Possible float64
	Details  model.ScoringDetails
}

// KeywordPolicy turns matched/total keyword counts into a fraction of the
// rule's points.
type KeywordPolicy interface {
	Fraction(method model.KeywordScoring, matched, total int) float64
}

// ContentPolicy scores free text heuristically, returning a fraction in [0,1].
type ContentPolicy interface {
	Fraction(criteria model.ContentAnalysisCriteria, wordCount, matchedKeywords int) float64
}

// DefaultKeywordPolicy scores proportionally, or all-or-nothing for any/all.
type DefaultKeywordPolicy struct{}

func (DefaultKeywordPolicy) Fraction(method model.KeywordScoring, matched, total int) float64 {
	if total == 0 {
		return 0
	}
	switch method {
	case model.KeywordProportional:
		return float64(matched) / float64(total)
	case model.KeywordAll:
		if matched == total {
			return 1
		}
		return 0
	default:
		if matched > 0 {
			return 1
		}
		return 0
	}
}

// WeightedContentPolicy blends a word-count band check with keyword coverage.
type WeightedContentPolicy struct {
	DefaultWordCountWeight float64
	DefaultKeywordWeight   float64
}

func NewWeightedContentPolicy(wordCountWeight, keywordWeight float64) WeightedContentPolicy {
	if wordCountWeight <= 0 && keywordWeight <= 0 {
		wordCountWeight, keywordWeight = 0.5, 0.5
	}
	return WeightedContentPolicy{DefaultWordCountWeight: wordCountWeight, DefaultKeywordWeight: keywordWeight}
}

func (p WeightedContentPolicy) Fraction(c model.ContentAnalysisCriteria, wordCount, matchedKeywords int) float64 {
	wcWeight, kwWeight := c.WordCountWeight, c.KeywordWeight
	if wcWeight <= 0 && kwWeight <= 0 {
		wcWeight, kwWeight = p.DefaultWordCountWeight, p.DefaultKeywordWeight
	}
	if len(c.Keywords) == 0 {
		kwWeight = 0
	}
	if wcWeight+kwWeight <= 0 {
		return 0
	}

	wordScore := 0.0
	if wordCount > 0 && wordCount >= c.MinWords && (c.MaxWords == 0 || wordCount <= c.MaxWords) {
		wordScore = 1
	} else if wordCount > 0 && wordCount < c.MinWords && c.MinWords > 0 {
		wordScore = float64(wordCount) / float64(c.MinWords)
	}

	keywordScore := 0.0
	if len(c.Keywords) > 0 {
		keywordScore = float64(matchedKeywords) / float64(len(c.Keywords))
	}
	return (wordScore*wcWeight + keywordScore*kwWeight) / (wcWeight + kwWeight)
}

// RuleEvaluator applies marking rules. It never fails: unsupported rules or
// unusable responses score zero with the reason recorded in the details.
type RuleEvaluator struct {
	Keywords KeywordPolicy

	mu      sync.RWMutex
	content ContentPolicy
}

func NewRuleEvaluator(keywords KeywordPolicy, content ContentPolicy) *RuleEvaluator {
	if keywords == nil {
		keywords = DefaultKeywordPolicy{}
	}
	if content == nil {
		content = NewWeightedContentPolicy(0, 0)
	}
	return &RuleEvaluator{Keywords: keywords, content: content}
}

// SetContentPolicy swaps the content analysis heuristic at runtime.
func (e *RuleEvaluator) SetContentPolicy(content ContentPolicy) {
	if content == nil {
		return
	}
	e.mu.Lock()
	e.content = content
	e.mu.Unlock()
}

func (e *RuleEvaluator) ContentPolicy() ContentPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.content
}

func (e *RuleEvaluator) Evaluate(rule *model.MarkingRule, question *model.Question, response *model.Response) (out ScoreOutcome) {
	out = ScoreOutcome{Possible: rule.Points, Details: model.ScoringDetails{RuleType: rule.RuleType}}
	defer func() {
		if r := recover(); r != nil {
			out.Earned = 0
			out.Details.Matched = false
			out.Details.Reason = fmt.Sprintf("evaluation aborted: %v", r)
		}
	}()
	if response == nil {
		out.Details.Reason = "no response"
		return out
	}

	criteria := rule.Criteria.Data()
	switch rule.RuleType {
	case model.RuleExactMatch:
		e.exactMatch(rule, criteria.ExactMatch, response, &out)
	case model.RuleOptionBased:
		e.optionBased(rule, criteria.Options, question, response, &out)
	case model.RuleRangeBased:
		e.rangeBased(rule, criteria.Range, response, &out)
	case model.RuleToleranceBased:
		e.toleranceBased(rule, criteria.Tolerance, response, &out)
	case model.RuleKeywordBased:
		e.keywordBased(rule, criteria.Keyword, response, &out)
	case model.RuleContentAnalysis:
		e.contentAnalysis(rule, criteria.Content, response, &out)
	default:
		out.Details.Unsupported = true
		out.Details.Reason = "unsupported rule type"
	}
	out.Earned = roundScore(out.Earned)
	return out
}

func (e *RuleEvaluator) exactMatch(rule *model.MarkingRule, c *model.ExactMatchCriteria, response *model.Response, out *ScoreOutcome) {
	if c == nil {
		out.Details.Reason = "missing exact_match criteria"
		return
	}
	value, ok := response.Value().Scalar()
	if !ok {
		out.Details.Reason = "response has no comparable value"
		return
	}
	out.Details.ResponseValue = value
	for _, expected := range c.ExpectedValues {
		if e.equal(value, expected, !c.CaseInsensitive) {
			out.Earned = rule.Points
			out.Details.Matched = true
			return
		}
	}
	out.Details.Reason = "no expected value matched"
}

func (e *RuleEvaluator) optionBased(rule *model.MarkingRule, c *model.OptionCriteria, question *model.Question, response *model.Response, out *ScoreOutcome) {
	if question == nil {
		out.Details.Reason = "question not loaded"
		return
	}
	criteria := model.OptionCriteria{}
	if c != nil {
		criteria = *c
	}

	correct := make(map[uint]bool)
	for _, id := range question.CorrectOptionIDs() {
		correct[id] = true
	}
	selected := make(map[uint]bool, len(response.SelectedOptionIDs))
	for _, id := range response.SelectedOptionIDs {
		selected[id] = true
	}
	if len(selected) == 0 {
		out.Details.Reason = "no option selected"
		return
	}

	if !criteria.PartialCredit {
		exact := len(selected) == len(correct)
		for id := range correct {
			if !selected[id] {
				exact = false
				break
			}
		}
		if exact {
			out.Earned = rule.Points
			out.Details.Matched = true
		} else {
			out.Details.Reason = "selection differs from correct options"
		}
		return
	}

	earned := 0.0
	for id := range selected {
		if !correct[id] {
			continue
		}
		if opt, ok := question.OptionByID(id); ok {
			earned += opt.Points
		}
	}
	if !criteria.Uncapped && earned > rule.Points {
		earned = rule.Points
	}
	out.Earned = earned
	out.Details.Matched = earned > 0
	out.Details.Extra = map[string]any{"selected": len(selected), "correct": len(correct)}
}

func (e *RuleEvaluator) rangeBased(rule *model.MarkingRule, c *model.RangeCriteria, response *model.Response, out *ScoreOutcome) {
	if c == nil {
		out.Details.Reason = "missing range criteria"
		return
	}
	value, ok := response.Value().Numeric()
	if !ok {
		out.Details.Reason = "response is not numeric"
		return
	}
	out.Details.ResponseValue = formatNumber(value)
	if value >= c.Min && value <= c.Max {
		out.Earned = rule.Points
		out.Details.Matched = true
		return
	}
	out.Details.Reason = "value outside range"
}

func (e *RuleEvaluator) toleranceBased(rule *model.MarkingRule, c *model.ToleranceCriteria, response *model.Response, out *ScoreOutcome) {
	if c == nil {
		out.Details.Reason = "missing tolerance criteria"
		return
	}
	value, ok := response.Value().Numeric()
	if !ok {
		out.Details.Reason = "response is not numeric"
		return
	}
	out.Details.ResponseValue = formatNumber(value)
	if math.Abs(value-c.Target) <= c.Tolerance {
		out.Earned = rule.Points
		out.Details.Matched = true
		return
	}
	out.Details.Reason = "value outside tolerance"
}

func (e *RuleEvaluator) keywordBased(rule *model.MarkingRule, c *model.KeywordCriteria, response *model.Response, out *ScoreOutcome) {
	if c == nil || len(c.Keywords) == 0 {
		out.Details.Reason = "missing keyword criteria"
		return
	}
	text, ok := response.Value().Scalar()
	if !ok {
		out.Details.Reason = "response has no text"
		return
	}
	matched := e.matchKeywords(text, c.Keywords, c.CaseSensitive)
	out.Details.MatchedKeywords = matched
	fraction := clampFraction(e.Keywords.Fraction(c.ScoringMethod, len(matched), len(c.Keywords)))
	out.Earned = rule.Points * fraction
	out.Details.Matched = fraction > 0
}

func (e *RuleEvaluator) contentAnalysis(rule *model.MarkingRule, c *model.ContentAnalysisCriteria, response *model.Response, out *ScoreOutcome) {
	if c == nil {
		out.Details.Reason = "missing content_analysis criteria"
		return
	}
	text, ok := response.Value().Scalar()
	if !ok {
		out.Details.Reason = "response has no text"
		return
	}
	words := len(strings.Fields(text))
	matched := e.matchKeywords(text, c.Keywords, false)
	out.Details.WordCount = words
	out.Details.MatchedKeywords = matched
	fraction := clampFraction(e.ContentPolicy().Fraction(*c, words, len(matched)))
	out.Earned = rule.Points * fraction
	out.Details.Matched = fraction > 0
}

func (e *RuleEvaluator) matchKeywords(text string, keywords []string, caseSensitive bool) []string {
	haystack := text
	if !caseSensitive {
		haystack = foldCase(text)
	}
	var matched []string
	for _, kw := range keywords {
		needle := strings.TrimSpace(kw)
		if needle == "" {
			continue
		}
		if !caseSensitive {
			needle = foldCase(needle)
		}
		if strings.Contains(haystack, needle) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func (e *RuleEvaluator) equal(a, b string, caseSensitive bool) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if caseSensitive {
		return a == b
	}
	return foldCase(a) == foldCase(b)
}

// foldCase builds a fresh Caser per call; Casers are not goroutine safe.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

func clampFraction(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", v)
}
