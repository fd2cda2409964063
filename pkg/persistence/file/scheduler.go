package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
)

// SchedulerRepository stores resume records keyed by execution and cron
// schedules keyed by workflow.
type SchedulerRepository struct {
	resumes   store
	schedules store
	locks     *persistence.KeyedMutex
}

func NewSchedulerRepository(root string) *SchedulerRepository {
	return &SchedulerRepository{
		resumes:   newStore(root, resumesDir),
		schedules: newStore(root, schedulesDir),
		locks:     persistence.NewKeyedMutex(),
	}
}

// SaveResume records or replaces the continuation of an execution.
func (sr *SchedulerRepository) SaveResume(_ context.Context, record *models.ResumeRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	unlock := sr.locks.Lock("resume:" + record.ExecutionID)
	defer unlock()

	if err := sr.resumes.write(record.ExecutionID, record); err != nil {
		return persistence.NewExecutionError("SaveResume", record.ExecutionID, err)
	}

	return nil
}

func (sr *SchedulerRepository) DeleteResume(_ context.Context, executionID string) error {
	unlock := sr.locks.Lock("resume:" + executionID)
	defer unlock()

	return sr.resumes.remove(executionID)
}

// DueResumes returns records due at now, earliest first.
func (sr *SchedulerRepository) DueResumes(_ context.Context, now time.Time) ([]*models.ResumeRecord, error) {
	ids, err := sr.resumes.ids()
	if err != nil {
		return nil, err
	}

	due := make([]*models.ResumeRecord, 0)

	for _, id := range ids {
		var record models.ResumeRecord
		if err := sr.resumes.read(id, &record); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to load resume record %s: %w", id, err)
		}

		if record.IsDue(now) {
			due = append(due, &record)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(due[j].ResumeAt)
	})

	return due, nil
}

// SaveSchedule stores the schedule of a workflow, replacing any previous one.
func (sr *SchedulerRepository) SaveSchedule(_ context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	unlock := sr.locks.Lock("schedule:" + schedule.WorkflowID)
	defer unlock()

	if err := sr.schedules.write(schedule.WorkflowID, schedule); err != nil {
		return persistence.NewWorkflowError("SaveSchedule", schedule.WorkflowID, err)
	}

	return nil
}

func (sr *SchedulerRepository) ScheduleByWorkflow(_ context.Context, workflowID string) (*models.Schedule, error) {
	var schedule models.Schedule

	if err := sr.schedules.read(workflowID, &schedule); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewWorkflowError("ScheduleByWorkflow", workflowID, persistence.ErrScheduleNotFound)
		}

		return nil, persistence.NewWorkflowError("ScheduleByWorkflow", workflowID, err)
	}

	return &schedule, nil
}

func (sr *SchedulerRepository) DeleteScheduleByWorkflow(_ context.Context, workflowID string) error {
	unlock := sr.locks.Lock("schedule:" + workflowID)
	defer unlock()

	return sr.schedules.remove(workflowID)
}

// DueSchedules returns active schedules due at now, earliest first.
func (sr *SchedulerRepository) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	schedules, err := sr.Schedules(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Schedule, 0, len(schedules))

	for _, schedule := range schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(due[j].NextDueAt)
	})

	return due, nil
}

func (sr *SchedulerRepository) Schedules(ctx context.Context) ([]*models.Schedule, error) {
	ids, err := sr.schedules.ids()
	if err != nil {
		return nil, err
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		schedule, err := sr.ScheduleByWorkflow(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrScheduleNotFound) {
				continue
			}

			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}
