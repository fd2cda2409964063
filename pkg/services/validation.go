package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dukex/trellis/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Validator checks workflow definitions before they are stored: struct tags
// through validator/v10, then the rules tags cannot express.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return &Validator{validate: validate}
}

// Validate returns a *ValidationError listing every problem, or nil.
func (v *Validator) Validate(workflow *models.Workflow) error {
	if workflow == nil {
		return &ValidationError{Op: "Validate", Fields: []FieldError{{Field: "workflow", Message: "is required"}}}
	}

	result := &ValidationError{Op: "Validate"}

	v.tags(result, "", workflow)

	if !workflow.Trigger.Type.IsValid() {
		result.add("trigger.type", "unknown trigger type %q", workflow.Trigger.Type)
	}

	if workflow.IsScheduled() {
		if workflow.Trigger.ScheduleTime == "" {
			result.add("trigger.schedule_time", "is required for scheduled_time triggers")
		} else if _, err := models.ParseCron(workflow.Trigger.ScheduleTime); err != nil {
			result.add("trigger.schedule_time", "invalid cron expression: %v", err)
		}
	} else if workflow.Trigger.ScheduleTime != "" {
		result.add("trigger.schedule_time", "is only allowed for scheduled_time triggers")
	}

	seen := make(map[string]struct{})
	v.actions(result, "actions", workflow.Actions, seen, false)

	if len(result.Fields) > 0 {
		return result
	}

	return nil
}

func (v *Validator) actions(result *ValidationError, path string, actions []models.WorkflowAction, seen map[string]struct{}, nested bool) {
	for i, action := range actions {
		field := fmt.Sprintf("%s[%d]", path, i)

		if action.ID != "" {
			if _, duplicate := seen[action.ID]; duplicate {
				result.add(field+".id", "duplicate action id %q", action.ID)
			}

			seen[action.ID] = struct{}{}
		}

		if action.ID == "" {
			result.add(field+".id", "is required")
		}

		if action.Config == nil {
			result.add(field+".config", "is required")

			continue
		}

		if action.Type != action.Config.ActionType() {
			result.add(field+".type", "%s does not match %s config", action.Type, action.Config.ActionType())
		}

		v.tags(result, field+".config", action.Config)

		switch config := action.Config.(type) {
		case *models.WaitDelayConfig:
			if nested {
				result.add(field+".type", "wait_delay is not supported inside conditional_branch")
			}

			if config.Duration() <= 0 {
				result.add(field+".config", "wait_delay requires a positive delay")
			}
		case *models.ConditionalBranchConfig:
			v.actions(result, field+".config.true_branch_actions", config.TrueBranchActions, seen, true)
			v.actions(result, field+".config.false_branch_actions", config.FalseBranchActions, seen, true)
		}
	}
}

// tags runs the validator/v10 struct tags of value and records each failure
// under prefix.
func (v *Validator) tags(result *ValidationError, prefix string, value any) {
	err := v.validate.Struct(value)
	if err == nil {
		return
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		result.add(prefix, "%v", err)

		return
	}

	for _, fieldErr := range validationErrors {
		namespace := fieldErr.Namespace()
		if dot := strings.Index(namespace, "."); dot >= 0 {
			namespace = namespace[dot+1:]
		}

		if prefix != "" {
			namespace = prefix + "." + namespace
		}

		result.add(namespace, "failed on the '%s' rule", fieldErr.Tag())
	}
}
