package service

import (
	"testing"

	"survey_marking_backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateConditionOptionSelected(t *testing.T) {
	trigger := choiceResponse(1, 10, 3, 4)
	tests := []struct {
		op     model.ConditionOperator
		values []string
		want   bool
	}{
		{"", []string{"3"}, true},
		{model.OpContains, []string{"9", "4"}, true},
		{model.OpAny, []string{"9"}, false},
		{model.OpEquals, []string{"3", "4"}, true},
		{model.OpExact, []string{"3"}, false},
		{model.OpNotContains, []string{"5"}, true},
		{model.OpNone, []string{"4"}, false},
		{model.OpAll, []string{"3", "4"}, true},
		{model.OpAll, []string{"3", "5"}, false},
		{model.OpBetween, []string{"3"}, false},
	}
	for _, tt := range tests {
		rule := model.ConditionalRule{
			TriggerQuestionID: 10,
			TriggerKind:       model.TriggerOptionSelected,
			TriggerValues:     tt.values,
			Operator:          tt.op,
		}
		assert.Equal(t, tt.want, EvaluateCondition(rule, trigger), "%s %v", tt.op, tt.values)
	}
}

func TestEvaluateConditionValueEquals(t *testing.T) {
	text := textResponse(1, 10, "yes please")
	age := numberResponse(1, 11, 21)
	tests := []struct {
		name    string
		trigger *model.Response
		op      model.ConditionOperator
		values  []string
		want    bool
	}{
		{"equals default", text, "", []string{"no", "yes please"}, true},
		{"equals case sensitive", text, model.OpEquals, []string{"Yes please"}, false},
		{"not equals", text, model.OpNotEquals, []string{"no"}, true},
		{"contains", text, model.OpContains, []string{"please"}, true},
		{"greater than", age, model.OpGreaterThan, []string{"18"}, true},
		{"less than", age, model.OpLessThan, []string{"18"}, false},
		{"greater than on text", text, model.OpGreaterThan, []string{"18"}, false},
		{"greater than without threshold", age, model.OpGreaterThan, nil, false},
		{"less than without threshold", age, model.OpLessThan, []string{}, false},
		{"unknown operator", text, model.OpAll, []string{"yes please"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := model.ConditionalRule{
				TriggerQuestionID: tt.trigger.QuestionID,
				TriggerKind:       model.TriggerValueEquals,
				TriggerValues:     tt.values,
				Operator:          tt.op,
			}
			assert.Equal(t, tt.want, EvaluateCondition(rule, tt.trigger))
		})
	}
}

func TestEvaluateConditionValueRange(t *testing.T) {
	rule := model.ConditionalRule{TriggerQuestionID: 10, TriggerKind: model.TriggerValueRange, TriggerValues: []string{"1", "5"}}
	assert.True(t, EvaluateCondition(rule, numberResponse(1, 10, 1)))
	assert.True(t, EvaluateCondition(rule, numberResponse(1, 10, 5)))
	assert.False(t, EvaluateCondition(rule, numberResponse(1, 10, 5.01)))
	assert.True(t, EvaluateCondition(rule, textResponse(1, 10, " 3 ")))
	assert.False(t, EvaluateCondition(rule, textResponse(1, 10, "three")))

	broken := model.ConditionalRule{TriggerQuestionID: 10, TriggerKind: model.TriggerValueRange, TriggerValues: []string{"1"}}
	assert.False(t, EvaluateCondition(broken, numberResponse(1, 10, 1)))
}

func TestEvaluateConditionMissingResponseOrKind(t *testing.T) {
	rule := model.ConditionalRule{TriggerQuestionID: 10, TriggerKind: model.TriggerOptionSelected, TriggerValues: []string{"1"}, Operator: model.OpNone}
	assert.False(t, EvaluateCondition(rule, nil))

	unknown := model.ConditionalRule{TriggerQuestionID: 10, TriggerKind: "clicked", TriggerValues: []string{"1"}}
	assert.False(t, EvaluateCondition(unknown, choiceResponse(1, 10, 1)))
}

func TestEvaluateConditionsFoldsLeftToRight(t *testing.T) {
	responses := map[uint]*model.Response{
		1: choiceResponse(9, 1, 100),
		2: textResponse(9, 2, "no"),
		3: numberResponse(9, 3, 42),
	}
	lookup := func(id uint) *model.Response { return responses[id] }

	matches := model.ConditionalRule{TriggerQuestionID: 1, TriggerKind: model.TriggerOptionSelected, TriggerValues: []string{"100"}}
	misses := model.ConditionalRule{TriggerQuestionID: 2, TriggerKind: model.TriggerValueEquals, TriggerValues: []string{"yes"}}
	inRange := model.ConditionalRule{TriggerQuestionID: 3, TriggerKind: model.TriggerValueRange, TriggerValues: []string{"40", "50"}}

	withLogic := func(r model.ConditionalRule, op model.LogicOperator) model.ConditionalRule {
		r.LogicOperator = op
		return r
	}

	assert.False(t, EvaluateConditions(nil, lookup), "no rules hides the item")
	assert.True(t, EvaluateConditions([]model.ConditionalRule{matches}, lookup))
	assert.False(t, EvaluateConditions([]model.ConditionalRule{matches, misses}, lookup), "default logic is and")
	assert.True(t, EvaluateConditions([]model.ConditionalRule{matches, withLogic(misses, model.LogicOr)}, lookup))
	// (misses or matches) and inRange
	assert.True(t, EvaluateConditions([]model.ConditionalRule{
		misses, withLogic(matches, model.LogicOr), withLogic(inRange, model.LogicAnd),
	}, lookup))
	// (matches and misses) or inRange
	assert.True(t, EvaluateConditions([]model.ConditionalRule{
		matches, withLogic(misses, model.LogicAnd), withLogic(inRange, model.LogicOr),
	}, lookup))
	// first rule's own logic operator is ignored
	assert.False(t, EvaluateConditions([]model.ConditionalRule{withLogic(misses, model.LogicOr)}, lookup))
}
