package main

import "github.com/dukex/trellis/pkg/models"

// workflowSchema describes the shape of a workflow document. Semantic rules
// such as cron syntax and per-action config checks are left to the service
// validator.
func workflowSchema() map[string]any {
	triggerTypes := make([]any, 0, len(models.TriggerTypes()))
	for _, t := range models.TriggerTypes() {
		triggerTypes = append(triggerTypes, string(t))
	}

	actionTypes := []any{
		string(models.ActionSendEmail),
		string(models.ActionSendSMS),
		string(models.ActionCreateTask),
		string(models.ActionUpdateClientStatus),
		string(models.ActionAssignToUser),
		string(models.ActionAddNote),
		string(models.ActionSendNotification),
		string(models.ActionUpdateClientField),
		string(models.ActionWaitDelay),
		string(models.ActionConditionalBranch),
		string(models.ActionSendWebhook),
	}

	return map[string]any{
		"type":     "object",
		"required": []any{"name", "trigger", "actions"},
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "minLength": 3},
			"description": map[string]any{"type": "string"},
			"enabled":     map[string]any{"type": "boolean"},
			"trigger": map[string]any{
				"type":     "object",
				"required": []any{"type"},
				"properties": map[string]any{
					"type":          map[string]any{"enum": triggerTypes},
					"schedule_time": map[string]any{"type": "string"},
					"conditions": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":     "object",
							"required": []any{"field", "operator"},
							"properties": map[string]any{
								"field":            map[string]any{"type": "string"},
								"operator":         map[string]any{"type": "string"},
								"logical_operator": map[string]any{"enum": []any{"AND", "OR"}},
							},
						},
					},
				},
			},
			"actions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []any{"id", "type", "config"},
					"properties": map[string]any{
						"id":     map[string]any{"type": "string", "minLength": 1},
						"type":   map[string]any{"enum": actionTypes},
						"order":  map[string]any{"type": "integer"},
						"config": map[string]any{"type": "object"},
					},
				},
			},
		},
	}
}
