package models

// ConditionOperator is the comparator applied by a WorkflowCondition.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorNotContains ConditionOperator = "not_contains"
	OperatorStartsWith  ConditionOperator = "starts_with"
	OperatorEndsWith    ConditionOperator = "ends_with"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorIsEmpty     ConditionOperator = "is_empty"
	OperatorIsNotEmpty  ConditionOperator = "is_not_empty"
)

// LogicalOperator chains a condition with the one that follows it.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// WorkflowCondition is a single field/operator/value test.
//
// LogicalOperator describes how the NEXT condition in the list combines with
// the running result, not how this one does.
type WorkflowCondition struct {
	Field           string            `json:"field"                      validate:"required"`
	Operator        ConditionOperator `json:"operator"                   validate:"required,oneof=equals not_equals contains not_contains starts_with ends_with greater_than less_than is_empty is_not_empty"`
	Value           any               `json:"value,omitempty"`
	LogicalOperator LogicalOperator   `json:"logical_operator,omitempty" validate:"omitempty,oneof=AND OR"`
}
