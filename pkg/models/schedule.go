package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// Schedule is the persisted cron registration of a scheduled_time workflow.
// NextDueAt is precomputed so the poller only has to compare timestamps.
type Schedule struct {
	ID             string    `json:"id"              validate:"required"`
	WorkflowID     string    `json:"workflow_id"     validate:"required"`
	CronExpression string    `json:"cron_expression" validate:"required"`
	NextDueAt      time.Time `json:"next_due_at"     validate:"required"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Inactive schedules are not processed by the poller
	Active bool `json:"active"`
}

// ParseCron parses a standard 5-field cron expression (minute hour day month weekday).
func ParseCron(expression string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	return parser.Parse(expression)
}

// NewSchedule creates a new Schedule with the next execution time calculated from now.
func NewSchedule(id, workflowID, cronExpression string, now time.Time) (*Schedule, error) {
	schedule := &Schedule{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: cronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	if err := schedule.Advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// Advance moves NextDueAt to the first activation strictly after reference.
func (s *Schedule) Advance(reference time.Time) error {
	cronSchedule, err := ParseCron(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(reference).UTC()
	s.UpdatedAt = reference

	return nil
}

// IsDue checks if this schedule is due for execution at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.ID == "" || s.WorkflowID == "" || s.CronExpression == "" {
		return ErrInvalidSchedule
	}

	_, err := ParseCron(s.CronExpression)

	return err
}
