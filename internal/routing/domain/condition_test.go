package domain

import "testing"

func TestFieldEqualsMatchesStringsCaseInsensitively(t *testing.T) {
	cond := Condition{Type: ConditionFieldEquals, Field: "source", Value: "webform"}
	attrs := map[string]any{"source": "WebForm"}

	if !cond.Match(attrs) {
		t.Fatal("expected case-insensitive string equality to match")
	}
	if cond.Match(map[string]any{"source": "google"}) {
		t.Fatal("different value should not match")
	}
	if cond.Match(map[string]any{}) {
		t.Fatal("missing field should not match")
	}
}

func TestFieldEqualsMatchesNumbersAcrossTypes(t *testing.T) {
	cond := Condition{Type: ConditionFieldEquals, Field: "rooms", Value: float64(3)}

	if !cond.Match(map[string]any{"rooms": 3}) {
		t.Fatal("int attribute should equal float64 condition value")
	}
	if !cond.Match(map[string]any{"rooms": "3"}) {
		t.Fatal("numeric string attribute should equal numeric condition value")
	}
}

func TestFieldInMatchesAnyListedValue(t *testing.T) {
	cond := Condition{Type: ConditionFieldIn, Field: "stage", Values: []any{"new", "contacted"}}

	if !cond.Match(map[string]any{"stage": "Contacted"}) {
		t.Fatal("expected in-list match")
	}
	if cond.Match(map[string]any{"stage": "closed"}) {
		t.Fatal("value outside the list should not match")
	}
}

func TestFieldContainsIsSubstringMatch(t *testing.T) {
	cond := Condition{Type: ConditionFieldContains, Field: "email", Value: "@example."}

	if !cond.Match(map[string]any{"email": "jan@Example.com"}) {
		t.Fatal("expected substring match")
	}
	if cond.Match(map[string]any{"email": "jan@other.com"}) {
		t.Fatal("non-substring should not match")
	}
	if cond.Match(map[string]any{"email": 42}) {
		t.Fatal("non-string attribute should not match contains")
	}
}

func TestFieldCompareGreaterThan(t *testing.T) {
	cond := Condition{Type: ConditionFieldCompare, Field: "budget", Op: OpGT, Value: float64(10_000_000)}

	if !cond.Match(map[string]any{"budget": float64(15_000_000)}) {
		t.Fatal("15M should be greater than 10M")
	}
	if cond.Match(map[string]any{"budget": float64(10_000_000)}) {
		t.Fatal("gt should be strict")
	}
	if cond.Match(map[string]any{"budget": "not a number"}) {
		t.Fatal("non-numeric attribute should not match compare")
	}
}

func TestCompositeAndOr(t *testing.T) {
	and := Condition{
		Type: ConditionComposite,
		Op:   OpAnd,
		Conditions: []Condition{
			{Type: ConditionFieldEquals, Field: "source", Value: "webform"},
			{Type: ConditionFieldCompare, Field: "budget", Op: OpGTE, Value: float64(100)},
		},
	}
	or := Condition{
		Type: ConditionComposite,
		Op:   OpOr,
		Conditions: and.Conditions,
	}

	attrs := map[string]any{"source": "webform", "budget": float64(50)}
	if and.Match(attrs) {
		t.Fatal("AND composite should fail when one branch fails")
	}
	if !or.Match(attrs) {
		t.Fatal("OR composite should pass when one branch passes")
	}
}

func TestMatchConditionsEmptySetIsCatchAll(t *testing.T) {
	if !MatchConditions(nil, true, map[string]any{"anything": "x"}) {
		t.Fatal("empty condition set should match every lead")
	}
}

func TestMatchConditionsAnyVsAll(t *testing.T) {
	conds := []Condition{
		{Type: ConditionFieldEquals, Field: "source", Value: "webform"},
		{Type: ConditionFieldEquals, Field: "stage", Value: "new"},
	}
	attrs := map[string]any{"source": "webform", "stage": "contacted"}

	if MatchConditions(conds, true, attrs) {
		t.Fatal("match_all should require every condition")
	}
	if !MatchConditions(conds, false, attrs) {
		t.Fatal("any-match should accept a single matching condition")
	}
}

func TestUnknownConditionTypeNeverMatches(t *testing.T) {
	cond := Condition{Type: ConditionType("regex"), Field: "source", Value: ".*"}
	if cond.Match(map[string]any{"source": "webform"}) {
		t.Fatal("unknown condition type must not match")
	}
}

func TestLeadMatchAttributesMergesBuiltins(t *testing.T) {
	lead := Lead{
		Source:             "webform",
		Stage:              "new",
		AssignmentPriority: 2,
		Attributes:         map[string]any{"budget": float64(5)},
	}

	attrs := lead.MatchAttributes()
	if attrs["source"] != "webform" || attrs["stage"] != "new" {
		t.Fatal("built-in fields should be addressable by conditions")
	}
	if attrs["budget"] != float64(5) {
		t.Fatal("free-form attributes should be preserved")
	}
	if attrs["priority"] != float64(2) {
		t.Fatal("priority should be exposed as a number")
	}
}
