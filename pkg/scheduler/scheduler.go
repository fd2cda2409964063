// Package scheduler keeps the deferred work of the engine durable: resumption
// of executions suspended by wait_delay and cron activations of scheduled_time
// workflows. A poller reads due records from the SchedulerRepository and hands
// them to a Handler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/trellis/pkg/metrics"
	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/google/uuid"
)

const DefaultPollInterval = 15 * time.Second

var (
	// ErrScheduleGone tells the poller that the workflow behind a schedule no
	// longer wants to be fired; the schedule is deleted.
	ErrScheduleGone = errors.New("schedule no longer applies")

	ErrNoHandler = errors.New("scheduler handler not set")
)

// Handler continues the work a due record stands for.
type Handler interface {
	Resume(ctx context.Context, executionID string) error
	FireSchedule(ctx context.Context, workflowID string, firedAt time.Time) error
}

// Scheduler implements protocol.Scheduler on top of a SchedulerRepository.
type Scheduler struct {
	repository persistence.SchedulerRepository
	logger     *slog.Logger
	metrics    *metrics.Collector
	interval   time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	handler Handler
	ticker  *time.Ticker
	done    chan struct{}
	started bool

	// polls never overlap
	pollMu sync.Mutex

	// resumes being handled; true once the handler scheduled a new one
	handlingMu sync.Mutex
	handling   map[string]bool
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Scheduler) {
		s.metrics = collector
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(logger *slog.Logger, repository persistence.SchedulerRepository, opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		repository: repository,
		logger:     logger.With("module", "scheduler"),
		interval:   DefaultPollInterval,
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(scheduler)
	}

	return scheduler
}

func (s *Scheduler) ScheduleResume(ctx context.Context, executionID string, resumeAt time.Time) error {
	record := &models.ResumeRecord{
		ExecutionID: executionID,
		ResumeAt:    resumeAt.UTC(),
		CreatedAt:   s.now(),
	}

	if err := s.repository.SaveResume(ctx, record); err != nil {
		return fmt.Errorf("failed to persist resume of execution %s: %w", executionID, err)
	}

	s.handlingMu.Lock()
	if _, ok := s.handling[executionID]; ok {
		s.handling[executionID] = true
	}
	s.handlingMu.Unlock()

	s.logger.DebugContext(ctx, "resume scheduled", "execution_id", executionID, "resume_at", record.ResumeAt)

	return nil
}

func (s *Scheduler) CancelResume(ctx context.Context, executionID string) error {
	return s.repository.DeleteResume(ctx, executionID)
}

// RegisterCron creates or replaces the schedule of a workflow. Registering
// the expression a workflow already has keeps its next activation.
func (s *Scheduler) RegisterCron(ctx context.Context, workflowID, cronExpression string) error {
	existing, err := s.repository.ScheduleByWorkflow(ctx, workflowID)
	if err != nil && !errors.Is(err, persistence.ErrScheduleNotFound) {
		return err
	}

	if existing != nil && existing.CronExpression == cronExpression && existing.Active {
		return nil
	}

	id := uuid.NewString()
	if existing != nil {
		id = existing.ID
	}

	schedule, err := models.NewSchedule(id, workflowID, cronExpression, s.now())
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpression, err)
	}

	if existing != nil {
		schedule.CreatedAt = existing.CreatedAt
	}

	if err := s.repository.SaveSchedule(ctx, schedule); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "cron registered",
		"workflow_id", workflowID,
		"cron_expression", cronExpression,
		"next_due_at", schedule.NextDueAt,
	)

	return nil
}

func (s *Scheduler) UnregisterCron(ctx context.Context, workflowID string) error {
	return s.repository.DeleteScheduleByWorkflow(ctx, workflowID)
}

// Sync reconciles the stored schedules with workflows: every enabled
// scheduled_time workflow gets a schedule and every other schedule is dropped.
func (s *Scheduler) Sync(ctx context.Context, workflows []*models.Workflow) error {
	wanted := make(map[string]struct{})

	var errs []error

	for _, workflow := range workflows {
		if !workflow.Enabled || workflow.IsDeleted() || !workflow.IsScheduled() {
			continue
		}

		wanted[workflow.ID] = struct{}{}

		if err := s.RegisterCron(ctx, workflow.ID, workflow.Trigger.ScheduleTime); err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))
		}
	}

	schedules, err := s.repository.Schedules(ctx)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}

	for _, schedule := range schedules {
		if _, ok := wanted[schedule.WorkflowID]; ok {
			continue
		}

		if err := s.repository.DeleteScheduleByWorkflow(ctx, schedule.WorkflowID); err != nil {
			errs = append(errs, err)

			continue
		}

		s.logger.InfoContext(ctx, "stale schedule removed", "workflow_id", schedule.WorkflowID)
	}

	s.logger.InfoContext(ctx, "schedules synchronized", "scheduled_workflows", len(wanted))

	return errors.Join(errs...)
}

func (s *Scheduler) SetHandler(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handler = handler
}

// Start polls for due work every interval until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.handler = handler
	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	s.started = true

	go s.loop(ctx, s.ticker, s.done)

	s.logger.InfoContext(ctx, "scheduler started", "interval", s.interval)

	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.ticker.Stop()
	close(s.done)
	s.started = false

	s.logger.InfoContext(ctx, "scheduler stopped")

	return nil
}

func (s *Scheduler) loop(ctx context.Context, ticker *time.Ticker, done <-chan struct{}) {
	s.tick(ctx)

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.Poll(ctx, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "poll failed", "error", err)
	}
}

// Poll processes every resume record and schedule due at now. A resume record
// is deleted only once the handler accepted it, so a crash before that
// repeats the resume on the next poll.
func (s *Scheduler) Poll(ctx context.Context, now time.Time) error {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler == nil {
		return ErrNoHandler
	}

	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	return errors.Join(
		s.processResumes(ctx, handler, now),
		s.processSchedules(ctx, handler, now),
	)
}

func (s *Scheduler) processResumes(ctx context.Context, handler Handler, now time.Time) error {
	due, err := s.repository.DueResumes(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due resumes: %w", err)
	}

	if len(due) > 0 {
		s.logger.InfoContext(ctx, "processing due resumes", "count", len(due))
	}

	for _, record := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rescheduled, err := s.handleResume(ctx, handler, record.ExecutionID)
		if err != nil {
			s.logger.ErrorContext(ctx, "resume failed, retrying on next poll",
				"execution_id", record.ExecutionID,
				"error", err,
			)

			continue
		}

		// The continuation reached another wait_delay and replaced the record.
		if rescheduled {
			continue
		}

		if err := s.repository.DeleteResume(ctx, record.ExecutionID); err != nil {
			s.logger.ErrorContext(ctx, "failed to delete resume record", "execution_id", record.ExecutionID, "error", err)
		}
	}

	return nil
}

// handleResume runs the handler and reports whether it scheduled a new
// resume for the same execution meanwhile.
func (s *Scheduler) handleResume(ctx context.Context, handler Handler, executionID string) (bool, error) {
	s.handlingMu.Lock()
	if s.handling == nil {
		s.handling = make(map[string]bool)
	}
	s.handling[executionID] = false
	s.handlingMu.Unlock()

	err := handler.Resume(ctx, executionID)

	s.handlingMu.Lock()
	rescheduled := s.handling[executionID]
	delete(s.handling, executionID)
	s.handlingMu.Unlock()

	return rescheduled, err
}

func (s *Scheduler) processSchedules(ctx context.Context, handler Handler, now time.Time) error {
	due, err := s.repository.DueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to load due schedules: %w", err)
	}

	for _, schedule := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger := s.logger.With(
			"workflow_id", schedule.WorkflowID,
			"cron_expression", schedule.CronExpression,
			"due_at", schedule.NextDueAt,
		)

		err := handler.FireSchedule(ctx, schedule.WorkflowID, schedule.NextDueAt)

		switch {
		case errors.Is(err, ErrScheduleGone):
			s.metrics.CronFired("gone")
			logger.InfoContext(ctx, "dropping schedule of unscheduled workflow")

			if err := s.repository.DeleteScheduleByWorkflow(ctx, schedule.WorkflowID); err != nil {
				logger.ErrorContext(ctx, "failed to delete schedule", "error", err)
			}

			continue
		case err != nil:
			s.metrics.CronFired("failed")
			logger.ErrorContext(ctx, "scheduled run failed", "error", err)
		default:
			s.metrics.CronFired("fired")
			logger.InfoContext(ctx, "scheduled run fired")
		}

		// A missed activation fires once; the next one is computed from now.
		if err := schedule.Advance(now); err != nil {
			logger.ErrorContext(ctx, "failed to compute next activation", "error", err)

			continue
		}

		if err := s.repository.SaveSchedule(ctx, schedule); err != nil {
			logger.ErrorContext(ctx, "failed to save schedule", "error", err)
		}
	}

	return nil
}
