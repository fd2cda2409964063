package conditions

import (
	"encoding/json"
	"testing"

	"github.com/dukex/trellis/pkg/models"
	"github.com/stretchr/testify/assert"
)

func cond(field string, operator models.ConditionOperator, value any, logic models.LogicalOperator) models.WorkflowCondition {
	return models.WorkflowCondition{Field: field, Operator: operator, Value: value, LogicalOperator: logic}
}

func eventData() map[string]any {
	return map[string]any{
		"client": map[string]any{
			"name":   "Ada Lovelace",
			"status": "lead",
			"age":    36,
			"score":  "42.5",
			"email":  "ada@example.com",
			"notes":  "",
			"tags":   []any{},
			"vip":    false,
			"phone":  nil,
		},
		"amount": json.Number("100"),
	}
}

func TestEvaluate_LeftFold(t *testing.T) {
	isLead := cond("client.status", models.OperatorEquals, "lead", "")
	isCustomer := cond("client.status", models.OperatorEquals, "customer", "")

	withLogic := func(c models.WorkflowCondition, logic models.LogicalOperator) models.WorkflowCondition {
		c.LogicalOperator = logic

		return c
	}

	testCases := []struct {
		name       string
		conditions []models.WorkflowCondition
		expected   bool
	}{
		{
			name:     "empty list is true",
			expected: true,
		},
		{
			// B's OR only affects a condition after it: true AND true, then AND false.
			name:       "true then false with OR on the second",
			conditions: []models.WorkflowCondition{isLead, withLogic(isCustomer, models.LogicalOr)},
			expected:   false,
		},
		{
			name:       "OR on the first lets the second rescue",
			conditions: []models.WorkflowCondition{withLogic(isCustomer, models.LogicalOr), isLead},
			expected:   true,
		},
		{
			// true AND false = false; OR true = true; AND true = true
			name: "three conditions false OR true AND true",
			conditions: []models.WorkflowCondition{
				withLogic(isCustomer, models.LogicalOr),
				withLogic(isLead, models.LogicalAnd),
				isLead,
			},
			expected: true,
		},
		{
			// true AND true = true; OR false = true; AND false = false
			name: "three conditions true OR false AND false",
			conditions: []models.WorkflowCondition{
				withLogic(isLead, models.LogicalOr),
				withLogic(isCustomer, models.LogicalAnd),
				isCustomer,
			},
			expected: false,
		},
		{
			name: "no precedence: false AND true OR true folds to true",
			conditions: []models.WorkflowCondition{
				isCustomer,
				withLogic(isLead, models.LogicalOr),
				isLead,
			},
			expected: true,
		},
		{
			name:       "unknown logical operator defaults to AND",
			conditions: []models.WorkflowCondition{withLogic(isLead, "XOR"), isCustomer},
			expected:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Evaluate(tc.conditions, eventData()))
		})
	}
}

func TestEvaluateCondition_Operators(t *testing.T) {
	testCases := []struct {
		name     string
		field    string
		operator models.ConditionOperator
		value    any
		expected bool
	}{
		{name: "equals string", field: "client.status", operator: models.OperatorEquals, value: "lead", expected: true},
		{name: "equals int vs float", field: "client.age", operator: models.OperatorEquals, value: float64(36), expected: true},
		{name: "equals json number", field: "amount", operator: models.OperatorEquals, value: 100, expected: true},
		{name: "equals is strict across types", field: "client.age", operator: models.OperatorEquals, value: "36", expected: false},
		{name: "equals absent", field: "client.city", operator: models.OperatorEquals, value: nil, expected: false},
		{name: "equals explicit nil", field: "client.phone", operator: models.OperatorEquals, value: nil, expected: true},
		{name: "not equals", field: "client.status", operator: models.OperatorNotEquals, value: "customer", expected: true},
		{name: "not equals absent", field: "client.city", operator: models.OperatorNotEquals, value: "Paris", expected: true},
		{name: "contains", field: "client.name", operator: models.OperatorContains, value: "Love", expected: true},
		{name: "contains number coerced", field: "client.age", operator: models.OperatorContains, value: 6, expected: true},
		{name: "contains absent", field: "client.city", operator: models.OperatorContains, value: "", expected: false},
		{name: "not contains", field: "client.email", operator: models.OperatorNotContains, value: "gmail", expected: true},
		{name: "not contains absent", field: "client.city", operator: models.OperatorNotContains, value: "x", expected: true},
		{name: "starts with", field: "client.email", operator: models.OperatorStartsWith, value: "ada@", expected: true},
		{name: "ends with", field: "client.email", operator: models.OperatorEndsWith, value: ".org", expected: false},
		{name: "greater than", field: "client.age", operator: models.OperatorGreaterThan, value: 30, expected: true},
		{name: "greater than numeric string", field: "client.score", operator: models.OperatorGreaterThan, value: "40", expected: true},
		{name: "less than", field: "client.age", operator: models.OperatorLessThan, value: 18, expected: false},
		{name: "less than empty string is zero", field: "client.notes", operator: models.OperatorLessThan, value: 1, expected: true},
		{name: "greater than unparseable", field: "client.name", operator: models.OperatorGreaterThan, value: 0, expected: false},
		{name: "less than absent", field: "client.city", operator: models.OperatorLessThan, value: 100, expected: false},
		{name: "is empty string", field: "client.notes", operator: models.OperatorIsEmpty, expected: true},
		{name: "is empty absent", field: "client.city", operator: models.OperatorIsEmpty, expected: true},
		{name: "is empty nil", field: "client.phone", operator: models.OperatorIsEmpty, expected: true},
		{name: "is empty false", field: "client.vip", operator: models.OperatorIsEmpty, expected: true},
		{name: "is empty empty slice", field: "client.tags", operator: models.OperatorIsEmpty, expected: true},
		{name: "is empty number", field: "client.age", operator: models.OperatorIsEmpty, expected: false},
		{name: "is not empty", field: "client.name", operator: models.OperatorIsNotEmpty, expected: true},
		{name: "is not empty absent", field: "client.city", operator: models.OperatorIsNotEmpty, expected: false},
		{name: "unknown operator", field: "client.status", operator: "matches_regex", value: ".*", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			condition := models.WorkflowCondition{Field: tc.field, Operator: tc.operator, Value: tc.value}

			assert.Equal(t, tc.expected, EvaluateCondition(condition, eventData()))
		})
	}
}

func TestEvaluate_NonMapData(t *testing.T) {
	conditions := []models.WorkflowCondition{cond("client.status", models.OperatorIsEmpty, nil, "")}

	assert.True(t, Evaluate(conditions, nil))
	assert.True(t, Evaluate(conditions, "not a map"))
}
