// Package conditions evaluates chains of workflow conditions against event data.
package conditions

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/template"
	"github.com/spf13/cast"
)

// Evaluate folds conditions left to right. The running result starts true
// with AND; each condition combines using the logic left by the previous
// condition, then sets the logic for the next one from its own
// LogicalOperator. An empty list is true.
func Evaluate(conditions []models.WorkflowCondition, data any) bool {
	result := true
	logic := models.LogicalAnd

	for _, condition := range conditions {
		conditionResult := EvaluateCondition(condition, data)

		if logic == models.LogicalOr {
			result = result || conditionResult
		} else {
			result = result && conditionResult
		}

		logic = condition.LogicalOperator
		if logic != models.LogicalOr {
			logic = models.LogicalAnd
		}
	}

	return result
}

// EvaluateCondition applies a single condition. Unknown operators are false.
func EvaluateCondition(condition models.WorkflowCondition, data any) bool {
	fieldValue, present := template.Resolve(data, condition.Field)
	expected := condition.Value

	switch condition.Operator {
	case models.OperatorEquals:
		return present && strictEqual(fieldValue, expected)
	case models.OperatorNotEquals:
		return !present || !strictEqual(fieldValue, expected)
	case models.OperatorContains:
		return present && strings.Contains(toString(fieldValue), toString(expected))
	case models.OperatorNotContains:
		return !present || !strings.Contains(toString(fieldValue), toString(expected))
	case models.OperatorStartsWith:
		return present && strings.HasPrefix(toString(fieldValue), toString(expected))
	case models.OperatorEndsWith:
		return present && strings.HasSuffix(toString(fieldValue), toString(expected))
	case models.OperatorGreaterThan:
		return toNumber(fieldValue, present) > toNumber(expected, true)
	case models.OperatorLessThan:
		return toNumber(fieldValue, present) < toNumber(expected, true)
	case models.OperatorIsEmpty:
		return isEmpty(fieldValue, present)
	case models.OperatorIsNotEmpty:
		return !isEmpty(fieldValue, present)
	default:
		return false
	}
}

// strictEqual never converts between strings and numbers. Numeric kinds are
// compared by value so that 5 and 5.0 decoded from different sources match.
func strictEqual(actual, expected any) bool {
	if isNumber(actual) && isNumber(expected) {
		return cast.ToFloat64(actual) == cast.ToFloat64(expected)
	}

	if isNumber(actual) != isNumber(expected) {
		return false
	}

	return reflect.DeepEqual(actual, expected)
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}

func toString(value any) string {
	if value == nil {
		return ""
	}

	return template.Stringify(value)
}

// toNumber yields NaN for absent or unparseable values so that every
// comparison against them is false.
func toNumber(value any, present bool) float64 {
	if !present {
		return math.NaN()
	}

	switch typed := value.(type) {
	case nil:
		return 0
	case string:
		if strings.TrimSpace(typed) == "" {
			return 0
		}

		number, err := cast.ToFloat64E(strings.TrimSpace(typed))
		if err != nil {
			return math.NaN()
		}

		return number
	}

	number, err := cast.ToFloat64E(value)
	if err != nil {
		return math.NaN()
	}

	return number
}

// isEmpty treats absent, nil, false, zero, NaN, the empty string and empty
// collections as empty.
func isEmpty(value any, present bool) bool {
	if !present || value == nil {
		return true
	}

	switch typed := value.(type) {
	case string:
		return typed == ""
	case bool:
		return !typed
	}

	if isNumber(value) {
		number := cast.ToFloat64(value)

		return number == 0 || math.IsNaN(number)
	}

	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return reflected.Len() == 0
	default:
		return false
	}
}
