package model

import (
	"errors"
	"fmt"
	"strconv"
)

type TriggerKind string

const (
	TriggerOptionSelected TriggerKind = "option_selected"
	TriggerValueEquals    TriggerKind = "value_equals"
	TriggerValueRange     TriggerKind = "value_range"
)

type ConditionOperator string

const (
	OpContains    ConditionOperator = "contains"
	OpAny         ConditionOperator = "any"
	OpEquals      ConditionOperator = "equals"
	OpExact       ConditionOperator = "exact"
	OpNotEquals   ConditionOperator = "not_equals"
	OpNotContains ConditionOperator = "not_contains"
	OpNone        ConditionOperator = "none"
	OpAll         ConditionOperator = "all"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpBetween     ConditionOperator = "between"
)

type LogicOperator string

const (
	LogicAnd LogicOperator = "and"
	LogicOr  LogicOperator = "or"
)

// ConditionalRule is embedded in the section or question it gates.
type ConditionalRule struct {
	TriggerQuestionID uint              `json:"triggerQuestionId" validate:"required"`
	TriggerKind       TriggerKind       `json:"triggerKind" validate:"required,oneof=option_selected value_equals value_range"`
	TriggerValues     []string          `json:"triggerValues" validate:"required,min=1"`
	Operator          ConditionOperator `json:"operator,omitempty"`
	LogicOperator     LogicOperator     `json:"logicOperator,omitempty" validate:"omitempty,oneof=and or"`
}

var operatorsByKind = map[TriggerKind][]ConditionOperator{
	TriggerOptionSelected: {OpContains, OpAny, OpEquals, OpExact, OpNotContains, OpNone, OpAll},
	TriggerValueEquals:    {OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan},
	TriggerValueRange:     {OpBetween},
}

// EffectiveOperator fills in the default operator of the trigger kind.
func (r ConditionalRule) EffectiveOperator() ConditionOperator {
	if r.Operator != "" {
		return r.Operator
	}
	switch r.TriggerKind {
	case TriggerOptionSelected:
		return OpContains
	case TriggerValueEquals:
		return OpEquals
	case TriggerValueRange:
		return OpBetween
	}
	return ""
}

// Validate checks the rule's shape. It does not check where the trigger
// question sits; that needs the assessment tree.
func (r ConditionalRule) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	op := r.EffectiveOperator()
	allowed := false
	for _, candidate := range operatorsByKind[r.TriggerKind] {
		if candidate == op {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("operator %q not supported for trigger kind %q", op, r.TriggerKind)
	}
	switch {
	case r.TriggerKind == TriggerValueRange:
		if len(r.TriggerValues) < 2 {
			return errors.New("value_range needs min and max trigger values")
		}
		lo, err1 := strconv.ParseFloat(r.TriggerValues[0], 64)
		hi, err2 := strconv.ParseFloat(r.TriggerValues[1], 64)
		if err1 != nil || err2 != nil {
			return errors.New("value_range trigger values must be numeric")
		}
		if lo > hi {
			return errors.New("value_range min exceeds max")
		}
	case op == OpGreaterThan || op == OpLessThan:
		if _, err := strconv.ParseFloat(r.TriggerValues[0], 64); err != nil {
			return fmt.Errorf("%s needs a numeric trigger value", op)
		}
	}
	return nil
}
