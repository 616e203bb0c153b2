package models

// ConditionType discriminates the condition tagged union.
type ConditionType string

const (
	ConditionTypeField      ConditionType = "field"
	ConditionTypeTime       ConditionType = "time"
	ConditionTypeRole       ConditionType = "role"
	ConditionTypeComposite  ConditionType = "composite"
	ConditionTypeQueryMatch ConditionType = "query_match"
)

// Field comparison operators.
const (
	OperatorEq         = "eq"
	OperatorNeq        = "neq"
	OperatorGt         = "gt"
	OperatorGte        = "gte"
	OperatorLt         = "lt"
	OperatorLte        = "lte"
	OperatorIn         = "in"
	OperatorNin        = "nin"
	OperatorContains   = "contains"
	OperatorStartsWith = "startswith"
	OperatorEndsWith   = "endswith"
)

// Composite operators.
const (
	OperatorAnd = "and"
	OperatorOr  = "or"
	OperatorNot = "not"
)

// Role checks.
const (
	RoleCheckHasRole     = "has_role"
	RoleCheckHasAnyRole  = "has_any_role"
	RoleCheckHasAllRoles = "has_all_roles"
)

// Time patterns.
const (
	TimePatternDayOfWeek     = "day_of_week"
	TimePatternTimeRange     = "time_range"
	TimePatternBusinessHours = "business_hours"
)

// FieldOperators lists every operator accepted by field conditions.
var FieldOperators = []string{
	OperatorEq, OperatorNeq, OperatorGt, OperatorGte, OperatorLt, OperatorLte,
	OperatorIn, OperatorNin, OperatorContains, OperatorStartsWith, OperatorEndsWith,
}

// Condition is a recursively composable boolean predicate. Type selects which
// of the remaining fields are meaningful; unknown types are resolved through
// the extension registry and receive Config.
type Condition struct {
	Type ConditionType `json:"type"`

	// field
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"` // also the composite operator
	Value    any    `json:"value,omitempty"`

	// time
	Pattern string         `json:"pattern,omitempty"`
	Params  map[string]any `json:"params,omitempty"`

	// role
	Check     string   `json:"check,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	UserField string   `json:"user_field,omitempty"`

	// composite
	Children []Condition `json:"children,omitempty"`

	// query_match
	QueryID string `json:"query_id,omitempty"`

	// custom condition types
	Config map[string]any `json:"config,omitempty"`
}

// FieldCondition builds a field comparison.
func FieldCondition(field, operator string, value any) Condition {
	return Condition{Type: ConditionTypeField, Field: field, Operator: operator, Value: value}
}

// TimeCondition builds a time-based condition.
func TimeCondition(pattern string, params map[string]any) Condition {
	return Condition{Type: ConditionTypeTime, Pattern: pattern, Params: params}
}

// RoleCondition builds a role check against the user referenced by userField.
func RoleCondition(check, userField string, roles ...string) Condition {
	return Condition{Type: ConditionTypeRole, Check: check, UserField: userField, Roles: roles}
}

// QueryMatchCondition delegates to the query backend.
func QueryMatchCondition(queryID string) Condition {
	return Condition{Type: ConditionTypeQueryMatch, QueryID: queryID}
}

// And is true iff every child is true.
func And(children ...Condition) Condition {
	return Condition{Type: ConditionTypeComposite, Operator: OperatorAnd, Children: children}
}

// Or is true iff any child is true.
func Or(children ...Condition) Condition {
	return Condition{Type: ConditionTypeComposite, Operator: OperatorOr, Children: children}
}

// Not inverts its single child.
func Not(child Condition) Condition {
	return Condition{Type: ConditionTypeComposite, Operator: OperatorNot, Children: []Condition{child}}
}

// TraceNode records the evaluation of one condition node.
type TraceNode struct {
	Type     ConditionType  `json:"type"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Result   bool           `json:"result"`
	Error    string         `json:"error,omitempty"`
	Children []TraceNode    `json:"children,omitempty"`
}
