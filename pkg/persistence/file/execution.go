package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/dukex/trellis/pkg/models"
	"github.com/dukex/trellis/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository keeps execution history, trimmed to retention records.
type ExecutionRepository struct {
	store     store
	locks     *persistence.KeyedMutex
	retention int

	// evictMu serializes retention passes.
	evictMu sync.Mutex
}

func NewExecutionRepository(root string, retention int) *ExecutionRepository {
	return &ExecutionRepository{
		store:     newStore(root, executionsDir),
		locks:     persistence.NewKeyedMutex(),
		retention: retention,
	}
}

// Save inserts or replaces an execution and evicts the oldest finished
// records beyond retention.
func (er *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		execution.ID = uuid.NewString()
	}

	unlock := er.locks.Lock(execution.ID)
	err := er.store.write(execution.ID, execution)
	unlock()

	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return er.evict(ctx)
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	return er.get(id)
}

func (er *ExecutionRepository) get(id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	if err := er.store.read(id, &execution); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return &execution, nil
}

// List returns matching executions, most recently started first.
func (er *ExecutionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.WorkflowExecution, error) {
	all, err := er.all()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0, len(all))

	for _, execution := range all {
		if opts.Matches(execution) {
			executions = append(executions, execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		if executions[i].StartedAt.Equal(executions[j].StartedAt) {
			return executions[i].ID > executions[j].ID
		}

		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if opts.Limit > 0 && len(executions) > opts.Limit {
		executions = executions[:opts.Limit]
	}

	return executions, nil
}

// Update applies fn to a stored, unfinished execution.
func (er *ExecutionRepository) Update(
	_ context.Context,
	id string,
	fn func(*models.WorkflowExecution) error,
) (*models.WorkflowExecution, error) {
	unlock := er.locks.Lock(id)
	defer unlock()

	execution, err := er.get(id)
	if err != nil {
		return nil, err
	}

	if execution.IsFinished() {
		return nil, persistence.NewExecutionError("Update", id, persistence.ErrExecutionFinished)
	}

	if err := fn(execution); err != nil {
		return nil, err
	}

	execution.ID = id

	if err := er.store.write(id, execution); err != nil {
		return nil, persistence.NewExecutionError("Update", id, err)
	}

	return execution, nil
}

func (er *ExecutionRepository) all() ([]*models.WorkflowExecution, error) {
	ids, err := er.store.ids()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution, err := er.get(id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (er *ExecutionRepository) evict(_ context.Context) error {
	if er.retention <= 0 {
		return nil
	}

	er.evictMu.Lock()
	defer er.evictMu.Unlock()

	executions, err := er.all()
	if err != nil {
		return err
	}

	for _, id := range persistence.Evictable(executions, er.retention) {
		unlock := er.locks.Lock(id)
		err := er.store.remove(id)
		unlock()

		if err != nil {
			return persistence.NewExecutionError("Evict", id, err)
		}
	}

	return nil
}
