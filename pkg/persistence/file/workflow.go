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
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store store
	locks *persistence.KeyedMutex
	now   func() time.Time
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{
		store: newStore(root, workflowsDir),
		locks: persistence.NewKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Save inserts or replaces a workflow.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	unlock := wr.locks.Lock(workflow.ID)
	defer unlock()

	now := wr.now()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := wr.store.write(workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// GetByID retrieves a live workflow by its ID.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	return wr.getLive("GetByID", id)
}

func (wr *WorkflowRepository) getLive(op, id string) (*models.Workflow, error) {
	workflow, err := wr.get(id)
	if err != nil {
		return nil, err
	}

	if workflow.IsDeleted() {
		return nil, persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (wr *WorkflowRepository) get(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := wr.store.read(id, &workflow); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return &workflow, nil
}

// List returns the workflows matching opts, oldest first.
func (wr *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	ids, err := wr.store.ids()
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := wr.get(id)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
		}

		if opts.Matches(workflow) {
			workflows = append(workflows, workflow)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}

		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// ByTriggerType returns every live workflow listening for triggerType, enabled or not.
func (wr *WorkflowRepository) ByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return wr.List(ctx, persistence.ListWorkflowsOptions{TriggerType: triggerType})
}

// Update applies fn to the stored live workflow under the workflow's lock.
func (wr *WorkflowRepository) Update(_ context.Context, id string, fn func(*models.Workflow) error) (*models.Workflow, error) {
	unlock := wr.locks.Lock(id)
	defer unlock()

	workflow, err := wr.getLive("Update", id)
	if err != nil {
		return nil, err
	}

	if err := fn(workflow); err != nil {
		return nil, err
	}

	workflow.ID = id

	if err := wr.store.write(id, workflow); err != nil {
		return nil, persistence.NewWorkflowError("Update", id, err)
	}

	return workflow, nil
}

// Delete marks the workflow as deleted and disables it. The document is kept
// so List with IncludeDeleted can still return it.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := wr.Update(ctx, id, func(workflow *models.Workflow) error {
		now := wr.now()
		workflow.DeletedAt = &now
		workflow.Enabled = false
		workflow.UpdatedAt = now

		return nil
	})

	return err
}
