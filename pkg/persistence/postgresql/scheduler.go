package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
)

// SchedulerRepository stores resume records and cron schedules.
type SchedulerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSchedulerRepository(db *sql.DB, logger *slog.Logger) *SchedulerRepository {
	return &SchedulerRepository{db: db, logger: logger.With("component", "scheduler_repository")}
}

func (r *SchedulerRepository) SaveResume(ctx context.Context, record *models.ResumeRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resume_records (execution_id, resume_at, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (execution_id) DO UPDATE SET resume_at = EXCLUDED.resume_at
	`, record.ExecutionID, record.ResumeAt, record.CreatedAt)
	if err != nil {
		return persistence.NewExecutionError("SaveResume", record.ExecutionID, err)
	}

	return nil
}

func (r *SchedulerRepository) DeleteResume(ctx context.Context, executionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resume_records WHERE execution_id = $1`, executionID)
	if err != nil {
		return persistence.NewExecutionError("DeleteResume", executionID, err)
	}

	return nil
}

// DueResumes returns records due at now, earliest first.
func (r *SchedulerRepository) DueResumes(ctx context.Context, now time.Time) ([]*models.ResumeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT execution_id, resume_at, created_at
		FROM resume_records
		WHERE resume_at <= $1
		ORDER BY resume_at ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due resumes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.ResumeRecord, 0)

	for rows.Next() {
		var record models.ResumeRecord

		if err := rows.Scan(&record.ExecutionID, &record.ResumeAt, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resume record: %w", err)
		}

		record.ResumeAt = record.ResumeAt.UTC()
		record.CreatedAt = record.CreatedAt.UTC()
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resume records: %w", err)
	}

	return records, nil
}

// SaveSchedule stores the schedule of a workflow, replacing any previous one.
func (r *SchedulerRepository) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (workflow_id, id, cron_expression, next_due_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workflow_id) DO UPDATE SET
			id = EXCLUDED.id,
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`,
		schedule.WorkflowID,
		schedule.ID,
		schedule.CronExpression,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("SaveSchedule", schedule.WorkflowID, err)
	}

	return nil
}

const scheduleColumns = `id, workflow_id, cron_expression, next_due_at, active, created_at, updated_at`

func (r *SchedulerRepository) ScheduleByWorkflow(ctx context.Context, workflowID string) (*models.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE workflow_id = $1`, workflowID)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("ScheduleByWorkflow", workflowID, persistence.ErrScheduleNotFound)
		}

		return nil, persistence.NewWorkflowError("ScheduleByWorkflow", workflowID, err)
	}

	return schedule, nil
}

func (r *SchedulerRepository) DeleteScheduleByWorkflow(ctx context.Context, workflowID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return persistence.NewWorkflowError("DeleteScheduleByWorkflow", workflowID, err)
	}

	return nil
}

func (r *SchedulerRepository) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	return r.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE active = true AND next_due_at <= $1 ORDER BY next_due_at ASC`,
		now,
	)
}

func (r *SchedulerRepository) Schedules(ctx context.Context) ([]*models.Schedule, error) {
	return r.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at ASC`)
}

func (r *SchedulerRepository) querySchedules(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func scanSchedule(row scanner) (*models.Schedule, error) {
	var schedule models.Schedule

	err := row.Scan(
		&schedule.ID,
		&schedule.WorkflowID,
		&schedule.CronExpression,
		&schedule.NextDueAt,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.NextDueAt = schedule.NextDueAt.UTC()
	schedule.CreatedAt = schedule.CreatedAt.UTC()
	schedule.UpdatedAt = schedule.UpdatedAt.UTC()

	return &schedule, nil
}
