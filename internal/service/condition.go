package service

import (
	"strconv"
	"strings"

	"survey_marking_backend/internal/model"
)

// ResponseLookup resolves the answer recorded for a trigger question.
type ResponseLookup func(questionID uint) *model.Response

// EvaluateCondition decides a single rule against the trigger's response.
// A missing response, an unknown kind or an unknown operator all yield false.
func EvaluateCondition(rule model.ConditionalRule, trigger *model.Response) bool {
	if trigger == nil {
		return false
	}
	switch rule.TriggerKind {
	case model.TriggerOptionSelected:
		return evaluateOptionSelected(rule, trigger)
	case model.TriggerValueEquals:
		return evaluateValueEquals(rule, trigger)
	case model.TriggerValueRange:
		return evaluateValueRange(rule, trigger)
	}
	return false
}

// EvaluateConditions folds rules left to right; each rule's logic operator
// joins it to the result so far. No rules means the item stays hidden.
func EvaluateConditions(rules []model.ConditionalRule, lookup ResponseLookup) bool {
	if len(rules) == 0 || lookup == nil {
		return false
	}
	result := EvaluateCondition(rules[0], lookup(rules[0].TriggerQuestionID))
	for _, rule := range rules[1:] {
		met := EvaluateCondition(rule, lookup(rule.TriggerQuestionID))
		if rule.LogicOperator == model.LogicOr {
			result = result || met
		} else {
			result = result && met
		}
	}
	return result
}

func evaluateOptionSelected(rule model.ConditionalRule, trigger *model.Response) bool {
	selected := make(map[string]bool, len(trigger.SelectedOptionIDs))
	for _, id := range trigger.SelectedOptionIDs {
		selected[strconv.FormatUint(uint64(id), 10)] = true
	}
	wanted := make(map[string]bool, len(rule.TriggerValues))
	for _, v := range rule.TriggerValues {
		wanted[strings.TrimSpace(v)] = true
	}

	overlap := 0
	for v := range wanted {
		if selected[v] {
			overlap++
		}
	}

	switch rule.EffectiveOperator() {
	case model.OpContains, model.OpAny:
		return overlap > 0
	case model.OpEquals, model.OpExact:
		return overlap == len(wanted) && len(selected) == len(wanted)
	case model.OpNotContains, model.OpNone:
		return overlap == 0
	case model.OpAll:
		return overlap == len(wanted)
	}
	return false
}

func evaluateValueEquals(rule model.ConditionalRule, trigger *model.Response) bool {
	value, ok := trigger.Value().Scalar()
	if !ok {
		return false
	}

	switch rule.EffectiveOperator() {
	case model.OpEquals:
		return equalsAny(value, rule.TriggerValues)
	case model.OpNotEquals:
		return !equalsAny(value, rule.TriggerValues)
	case model.OpContains:
		for _, v := range rule.TriggerValues {
			if strings.Contains(value, v) {
				return true
			}
		}
		return false
	case model.OpGreaterThan, model.OpLessThan:
		if len(rule.TriggerValues) == 0 {
			return false
		}
		actual, err1 := strconv.ParseFloat(strings.TrimSpace(value), 64)
		threshold, err2 := strconv.ParseFloat(strings.TrimSpace(rule.TriggerValues[0]), 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if rule.EffectiveOperator() == model.OpGreaterThan {
			return actual > threshold
		}
		return actual < threshold
	}
	return false
}

func evaluateValueRange(rule model.ConditionalRule, trigger *model.Response) bool {
	if len(rule.TriggerValues) < 2 {
		return false
	}
	actual, ok := trigger.Value().Numeric()
	if !ok {
		return false
	}
	lo, err1 := strconv.ParseFloat(strings.TrimSpace(rule.TriggerValues[0]), 64)
	hi, err2 := strconv.ParseFloat(strings.TrimSpace(rule.TriggerValues[1]), 64)
	if err1 != nil || err2 != nil {
		return false
	}
	return actual >= lo && actual <= hi
}

func equalsAny(value string, candidates []string) bool {
	for _, c := range candidates {
		if value == c {
			return true
		}
	}
	return false
}
