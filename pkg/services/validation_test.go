package services

import (
	"errors"
	"testing"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(err error) []string {
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		return nil
	}

	names := make([]string, 0, len(validationErr.Fields))
	for _, field := range validationErr.Fields {
		names = append(names, field.Field)
	}

	return names
}

func TestValidator_Validate(t *testing.T) {
	note := func(id string) models.WorkflowAction {
		return models.NewAction(id, 1, &models.AddNoteConfig{EntityID: "c-1", Note: "n"})
	}

	testCases := []struct {
		name       string
		workflow   *models.Workflow
		wantFields []string
	}{
		{
			name:     "valid workflow",
			workflow: testutil.CreateTestWorkflow(),
		},
		{
			name:     "valid scheduled workflow",
			workflow: testutil.CreateTestWorkflow(testutil.WithSchedule("0 9 * * 1-5")),
		},
		{
			name:       "nil workflow",
			wantFields: []string{"workflow"},
		},
		{
			name:       "short name",
			workflow:   testutil.CreateTestWorkflow(testutil.WithName("ab")),
			wantFields: []string{"name"},
		},
		{
			name:       "no actions",
			workflow:   testutil.CreateTestWorkflow(testutil.WithActions()),
			wantFields: []string{"actions"},
		},
		{
			name:       "unknown trigger",
			workflow:   testutil.CreateTestWorkflow(testutil.WithTrigger("invoice_paid")),
			wantFields: []string{"trigger.type"},
		},
		{
			name:       "missing cron",
			workflow:   testutil.CreateTestWorkflow(testutil.WithSchedule("")),
			wantFields: []string{"trigger.schedule_time"},
		},
		{
			name:       "invalid cron",
			workflow:   testutil.CreateTestWorkflow(testutil.WithSchedule("every day")),
			wantFields: []string{"trigger.schedule_time"},
		},
		{
			name: "invalid condition operator",
			workflow: testutil.CreateTestWorkflow(testutil.WithTrigger(models.TriggerClientCreated,
				testutil.Condition("client.status", "resembles", "lead"))),
			wantFields: []string{"trigger.conditions[0].operator"},
		},
		{
			name:       "duplicate action ids",
			workflow:   testutil.CreateTestWorkflow(testutil.WithActions(note("a"), note("a"))),
			wantFields: []string{"actions[1].id"},
		},
		{
			name: "missing config field",
			workflow: testutil.CreateTestWorkflow(testutil.WithActions(
				models.NewAction("email", 1, &models.SendEmailConfig{Subject: "s"}),
			)),
			wantFields: []string{"actions[0].config.to"},
		},
		{
			name: "mismatched type",
			workflow: testutil.CreateTestWorkflow(testutil.WithActions(models.WorkflowAction{
				ID:     "a",
				Type:   models.ActionSendSMS,
				Config: &models.AddNoteConfig{EntityID: "c-1", Note: "n"},
			})),
			wantFields: []string{"actions[0].type"},
		},
		{
			name: "zero delay",
			workflow: testutil.CreateTestWorkflow(testutil.WithActions(
				models.NewAction("wait", 1, &models.WaitDelayConfig{}),
			)),
			wantFields: []string{"actions[0].config"},
		},
		{
			name: "wait inside branch and duplicate nested id",
			workflow: testutil.CreateTestWorkflow(testutil.WithActions(
				note("a"),
				models.NewAction("branch", 2, &models.ConditionalBranchConfig{
					Conditions:         []models.WorkflowCondition{testutil.Condition("x", models.OperatorIsEmpty, nil)},
					TrueBranchActions:  []models.WorkflowAction{models.NewAction("wait", 1, &models.WaitDelayConfig{DelayMinutes: 1})},
					FalseBranchActions: []models.WorkflowAction{note("a")},
				}),
			)),
			wantFields: []string{
				"actions[1].config.true_branch_actions[0].type",
				"actions[1].config.false_branch_actions[0].id",
			},
		},
	}

	validator := NewValidator()

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Validate(tc.workflow)

			if tc.wantFields == nil {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tc.wantFields, fields(err))
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Op: "Create"}
	err.add("name", "failed on the '%s' rule", "min")
	err.add("actions[0].id", "duplicate action id %q", "a")

	assert.Equal(t, `Create: invalid workflow: name: failed on the 'min' rule; actions[0].id: duplicate action id "a"`, err.Error())
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
