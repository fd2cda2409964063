package template

import (
	"encoding/json"
	"testing"

	"github.com/dukex/trellis/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() map[string]any {
	return map[string]any{
		"client": map[string]any{
			"name":   "Ada",
			"email":  "ada@example.com",
			"age":    36,
			"score":  12.5,
			"vip":    true,
			"phone":  nil,
			"tags":   []any{"lead", "priority"},
			"labels": map[string]string{"tier": "gold"},
		},
		"items": []any{
			map[string]any{"id": "i-1"},
		},
	}
}

func TestResolve(t *testing.T) {
	testCases := []struct {
		name     string
		path     string
		expected any
		found    bool
	}{
		{name: "top level", path: "client", expected: testData()["client"], found: true},
		{name: "nested", path: "client.name", expected: "Ada", found: true},
		{name: "trims whitespace", path: " client.email ", expected: "ada@example.com", found: true},
		{name: "explicit nil", path: "client.phone", expected: nil, found: true},
		{name: "slice index", path: "items.0.id", expected: "i-1", found: true},
		{name: "typed string map", path: "client.labels.tier", expected: "gold", found: true},
		{name: "missing leaf", path: "client.city", found: false},
		{name: "missing middle", path: "account.owner.name", found: false},
		{name: "through scalar", path: "client.name.first", found: false},
		{name: "through nil", path: "client.phone.area", found: false},
		{name: "index out of range", path: "items.3.id", found: false},
		{name: "non numeric index", path: "items.first", found: false},
		{name: "empty path", path: "", found: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			value, found := Resolve(testData(), tc.path)

			assert.Equal(t, tc.found, found)
			assert.Equal(t, tc.expected, value)
		})
	}
}

func TestInterpolate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no placeholders", input: "plain text", expected: "plain text"},
		{name: "single", input: "Hi {{client.name}}", expected: "Hi Ada"},
		{name: "inner whitespace", input: "Hi {{ client.name }}!", expected: "Hi Ada!"},
		{name: "integer", input: "age={{client.age}}", expected: "age=36"},
		{name: "float", input: "score={{client.score}}", expected: "score=12.5"},
		{name: "bool", input: "vip={{client.vip}}", expected: "vip=true"},
		{name: "nil renders empty", input: "phone=[{{client.phone}}]", expected: "phone=[]"},
		{name: "slice renders json", input: "{{client.tags}}", expected: `["lead","priority"]`},
		{name: "unresolved kept", input: "Hi {{client.nickname}}", expected: "Hi {{client.nickname}}"},
		{name: "mixed", input: "{{client.name}} <{{client.email}}> {{missing}}", expected: "Ada <ada@example.com> {{missing}}"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Interpolate(tc.input, testData()))
		})
	}
}

func TestInterpolate_JSONNull(t *testing.T) {
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"client":{"name":"Ada","phone":null,"address":{"city":null}}}`), &data))

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "null leaf renders empty", input: "phone=[{{client.phone}}]", expected: "phone=[]"},
		{name: "nested null leaf renders empty", input: "city=[{{client.address.city}}]", expected: "city=[]"},
		{name: "path through null kept", input: "{{client.phone.area}}", expected: "{{client.phone.area}}"},
		{name: "absent key kept", input: "{{client.fax}}", expected: "{{client.fax}}"},
		{name: "only null", input: "{{client.phone}}", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Interpolate(tc.input, data))
		})
	}

	assert.Equal(t, map[string]any{"to": ""}, InterpolateValue(map[string]any{"to": "{{client.phone}}"}, data))
}

func TestInterpolateValue_PreservesNonStrings(t *testing.T) {
	input := map[string]any{
		"name":    "{{client.name}}",
		"count":   float64(3),
		"enabled": false,
		"nested":  []any{"{{client.email}}", 7, nil},
	}

	out := InterpolateValue(input, testData())

	assert.Equal(t, map[string]any{
		"name":    "Ada",
		"count":   float64(3),
		"enabled": false,
		"nested":  []any{"ada@example.com", 7, nil},
	}, out)
	assert.Equal(t, "{{client.name}}", input["name"], "input must not be mutated")
}

func TestInterpolateConfig_Branch(t *testing.T) {
	nested := models.NewAction("t1", 1, &models.SendEmailConfig{To: "{{client.email}}", Subject: "s"})
	config := &models.ConditionalBranchConfig{
		Conditions:        []models.WorkflowCondition{{Field: "client.name", Operator: models.OperatorEquals, Value: "{{client.name}}"}},
		TrueBranchActions: []models.WorkflowAction{nested},
	}

	out := InterpolateConfig(config, testData()).(*models.ConditionalBranchConfig)

	assert.Equal(t, "Ada", out.Conditions[0].Value)
	assert.Equal(t, "{{client.email}}", out.TrueBranchActions[0].Config.(*models.SendEmailConfig).To)
}

func TestInterpolateConfig_Idempotent(t *testing.T) {
	configs := []models.ActionConfig{
		&models.SendEmailConfig{To: "{{client.email}}", Subject: "Hello {{client.name}}", Body: "{{unknown.path}}"},
		&models.UpdateClientFieldConfig{ClientID: "c-1", Field: "score", Value: float64(10)},
		&models.SendWebhookConfig{URL: "https://example.com/{{client.name}}", Body: map[string]any{"age": "{{client.age}}", "n": 1}},
	}

	for _, config := range configs {
		t.Run(string(config.ActionType()), func(t *testing.T) {
			once := InterpolateConfig(config, testData())
			twice := InterpolateConfig(once, testData())

			assert.Equal(t, once, twice)
		})
	}
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("x {{a.b}} y"))
	assert.False(t, HasPlaceholders("x {a.b} y"))
	assert.False(t, HasPlaceholders("{{}}"))
}
