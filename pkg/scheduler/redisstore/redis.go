// Package redisstore keeps scheduler state in Redis. Records live in hashes
// and a sorted set per kind indexes them by due time in unix milliseconds.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "trellis"

var _ persistence.SchedulerRepository = (*SchedulerRepository)(nil)

// NewClient connects to the redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

type SchedulerRepository struct {
	client redis.UniversalClient

	resumeRecords   string
	resumeIndex     string
	scheduleRecords string
	scheduleIndex   string
}

// NewSchedulerRepository stores every key under prefix, DefaultPrefix when empty.
func NewSchedulerRepository(client redis.UniversalClient, prefix string) *SchedulerRepository {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &SchedulerRepository{
		client:          client,
		resumeRecords:   prefix + ":resumes",
		resumeIndex:     prefix + ":resumes:due",
		scheduleRecords: prefix + ":schedules",
		scheduleIndex:   prefix + ":schedules:due",
	}
}

func score(at time.Time) float64 {
	return float64(at.UnixMilli())
}

func (r *SchedulerRepository) Close() error {
	return r.client.Close()
}

func (r *SchedulerRepository) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *SchedulerRepository) SaveResume(ctx context.Context, record *models.ResumeRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.resumeRecords, record.ExecutionID, payload)
		pipe.ZAdd(ctx, r.resumeIndex, redis.Z{Score: score(record.ResumeAt), Member: record.ExecutionID})

		return nil
	})
	if err != nil {
		return persistence.NewExecutionError("SaveResume", record.ExecutionID, err)
	}

	return nil
}

func (r *SchedulerRepository) DeleteResume(ctx context.Context, executionID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.resumeRecords, executionID)
		pipe.ZRem(ctx, r.resumeIndex, executionID)

		return nil
	})
	if err != nil {
		return persistence.NewExecutionError("DeleteResume", executionID, err)
	}

	return nil
}

// DueResumes returns records due at now, earliest first.
func (r *SchedulerRepository) DueResumes(ctx context.Context, now time.Time) ([]*models.ResumeRecord, error) {
	payloads, err := r.due(ctx, r.resumeIndex, r.resumeRecords, now)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ResumeRecord, 0, len(payloads))

	for _, payload := range payloads {
		var record models.ResumeRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("failed to decode resume record: %w", err)
		}

		records = append(records, &record)
	}

	return records, nil
}

// SaveSchedule stores the schedule of a workflow, replacing any previous one.
// Inactive schedules are kept out of the due index.
func (r *SchedulerRepository) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(schedule)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.scheduleRecords, schedule.WorkflowID, payload)

		if schedule.Active {
			pipe.ZAdd(ctx, r.scheduleIndex, redis.Z{Score: score(schedule.NextDueAt), Member: schedule.WorkflowID})
		} else {
			pipe.ZRem(ctx, r.scheduleIndex, schedule.WorkflowID)
		}

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("SaveSchedule", schedule.WorkflowID, err)
	}

	return nil
}

func (r *SchedulerRepository) ScheduleByWorkflow(ctx context.Context, workflowID string) (*models.Schedule, error) {
	payload, err := r.client.HGet(ctx, r.scheduleRecords, workflowID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewWorkflowError("ScheduleByWorkflow", workflowID, persistence.ErrScheduleNotFound)
		}

		return nil, persistence.NewWorkflowError("ScheduleByWorkflow", workflowID, err)
	}

	return decodeSchedule(payload)
}

func (r *SchedulerRepository) DeleteScheduleByWorkflow(ctx context.Context, workflowID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.scheduleRecords, workflowID)
		pipe.ZRem(ctx, r.scheduleIndex, workflowID)

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("DeleteScheduleByWorkflow", workflowID, err)
	}

	return nil
}

// DueSchedules returns active schedules due at now, earliest first.
func (r *SchedulerRepository) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	payloads, err := r.due(ctx, r.scheduleIndex, r.scheduleRecords, now)
	if err != nil {
		return nil, err
	}

	schedules := make([]*models.Schedule, 0, len(payloads))

	for _, payload := range payloads {
		schedule, err := decodeSchedule(payload)
		if err != nil {
			return nil, err
		}

		if schedule.IsDue(now) {
			schedules = append(schedules, schedule)
		}
	}

	return schedules, nil
}

func (r *SchedulerRepository) Schedules(ctx context.Context) ([]*models.Schedule, error) {
	payloads, err := r.client.HGetAll(ctx, r.scheduleRecords).Result()
	if err != nil {
		return nil, err
	}

	schedules := make([]*models.Schedule, 0, len(payloads))

	for _, payload := range payloads {
		schedule, err := decodeSchedule(payload)
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].WorkflowID < schedules[j].WorkflowID
	})

	return schedules, nil
}

// due reads the members of index scored up to now and returns their payloads
// from records in score order. Members without a payload are skipped.
func (r *SchedulerRepository) due(ctx context.Context, index, records string, now time.Time) ([]string, error) {
	members, err := r.client.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", index, err)
	}

	if len(members) == 0 {
		return nil, nil
	}

	values, err := r.client.HMGet(ctx, records, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", records, err)
	}

	payloads := make([]string, 0, len(values))

	for _, value := range values {
		if payload, ok := value.(string); ok {
			payloads = append(payloads, payload)
		}
	}

	return payloads, nil
}

func decodeSchedule(payload string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := json.Unmarshal([]byte(payload), &schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}

	return &schedule, nil
}
