package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ConditionType is the closed set of condition variants a rule may use.
type ConditionType string

const (
	ConditionFieldEquals   ConditionType = "field_equals"
	ConditionFieldIn       ConditionType = "field_in"
	ConditionFieldContains ConditionType = "field_contains"
	ConditionFieldCompare  ConditionType = "field_compare"
	ConditionComposite     ConditionType = "composite"
)

// Comparison operators for ConditionFieldCompare.
const (
	OpGT  = "gt"
	OpGTE = "gte"
	OpLT  = "lt"
	OpLTE = "lte"
	OpAnd = "and"
	OpOr  = "or"
)

// Condition is a tagged-variant predicate over lead attributes, stored as
// JSON on the rule row. Unknown types never match.
type Condition struct {
	Type       ConditionType `json:"type"`
	Field      string        `json:"field,omitempty"`
	Value      any           `json:"value,omitempty"`
	Values     []any         `json:"values,omitempty"`
	Op         string        `json:"op,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty"`
}

// Match evaluates the condition against a lead's attributes.
func (c Condition) Match(attrs map[string]any) bool {
	switch c.Type {
	case ConditionFieldEquals:
		actual, ok := attrs[c.Field]
		if !ok {
			return false
		}
		return valuesEqual(actual, c.Value)

	case ConditionFieldIn:
		actual, ok := attrs[c.Field]
		if !ok {
			return false
		}
		for _, candidate := range c.Values {
			if valuesEqual(actual, candidate) {
				return true
			}
		}
		return false

	case ConditionFieldContains:
		actual, ok := attrs[c.Field]
		if !ok {
			return false
		}
		needle, ok := c.Value.(string)
		if !ok {
			return false
		}
		haystack, ok := actual.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))

	case ConditionFieldCompare:
		actual, ok := asNumber(attrs[c.Field])
		if !ok {
			return false
		}
		threshold, ok := asNumber(c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGT:
			return actual > threshold
		case OpGTE:
			return actual >= threshold
		case OpLT:
			return actual < threshold
		case OpLTE:
			return actual <= threshold
		default:
			return false
		}

	case ConditionComposite:
		if len(c.Conditions) == 0 {
			return false
		}
		if c.Op == OpOr {
			for _, sub := range c.Conditions {
				if sub.Match(attrs) {
					return true
				}
			}
			return false
		}
		// AND is the default composite operator.
		for _, sub := range c.Conditions {
			if !sub.Match(attrs) {
				return false
			}
		}
		return true
	}

	return false
}

// Validate checks the condition is structurally sound before it is stored.
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionFieldEquals:
		if c.Field == "" {
			return fmt.Errorf("field_equals condition needs a field")
		}
	case ConditionFieldIn:
		if c.Field == "" || len(c.Values) == 0 {
			return fmt.Errorf("field_in condition needs a field and values")
		}
	case ConditionFieldContains:
		if c.Field == "" {
			return fmt.Errorf("field_contains condition needs a field")
		}
		if _, ok := c.Value.(string); !ok {
			return fmt.Errorf("field_contains condition needs a string value")
		}
	case ConditionFieldCompare:
		if c.Field == "" {
			return fmt.Errorf("field_compare condition needs a field")
		}
		switch c.Op {
		case OpGT, OpGTE, OpLT, OpLTE:
		default:
			return fmt.Errorf("field_compare condition has unknown op %q", c.Op)
		}
	case ConditionComposite:
		if len(c.Conditions) == 0 {
			return fmt.Errorf("composite condition needs sub-conditions")
		}
		for _, sub := range c.Conditions {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Type)
	}
	return nil
}

// MatchConditions evaluates a rule's condition set. matchAll selects AND
// semantics; otherwise any single match suffices. An empty condition set
// matches everything (catch-all rule).
func MatchConditions(conditions []Condition, matchAll bool, attrs map[string]any) bool {
	if len(conditions) == 0 {
		return true
	}

	if matchAll {
		for _, cond := range conditions {
			if !cond.Match(attrs) {
				return false
			}
		}
		return true
	}

	for _, cond := range conditions {
		if cond.Match(attrs) {
			return true
		}
	}
	return false
}

// valuesEqual compares two attribute values. Numbers compare numerically
// (JSON decodes them as float64); strings compare case-insensitively.
func valuesEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
		return false
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(as, bs)
	}

	return a == b
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
