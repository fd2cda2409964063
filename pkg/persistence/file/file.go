// Package file provides file-based persistence for workflows, executions and
// scheduler state. Each record is one JSON document under root/<kind>/<id>.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/trellis/pkg/persistence"
)

const (
	workflowsDir  = "workflows"
	executionsDir = "executions"
	resumesDir    = "resumes"
	schedulesDir  = "schedules"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	schedulerRepo *SchedulerRepository
}

type Option func(*Persistence)

// WithHistoryRetention overrides how many executions are kept.
func WithHistoryRetention(retention int) Option {
	return func(p *Persistence) {
		p.executionRepo.retention = retention
	}
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string, opts ...Option) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	store := &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot, persistence.DefaultHistoryRetention),
		schedulerRepo: NewSchedulerRepository(cleanRoot),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); err != nil {
		return fmt.Errorf("file store unavailable: %w", err)
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) SchedulerRepository() persistence.SchedulerRepository {
	return fp.schedulerRepo
}

// store is a directory of JSON documents keyed by id.
type store struct {
	dir string
}

func newStore(root, kind string) store {
	return store{dir: filepath.Join(root, kind)}
}

func (s store) path(id string) (string, error) {
	if err := persistence.ValidateID(id); err != nil {
		return "", fmt.Errorf("%w: %q", err, id)
	}

	return filepath.Join(s.dir, id+".json"), nil
}

// read decodes the document for id into out. It returns fs.ErrNotExist when
// there is none.
func (s store) read(id string, out any) error {
	filePath, err := s.path(id)
	if err != nil {
		return err
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return nil
}

// write replaces the document for id. The new content is written to a
// temporary file first and renamed into place so readers never see a
// partial document.
func (s store) write(id string, value any) error {
	filePath, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to close %s: %w", id, err)
	}

	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to chmod %s: %w", id, err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to replace %s: %w", filePath, err)
	}

	return nil
}

// remove deletes the document for id. Missing documents are not an error.
func (s store) remove(id string) error {
	filePath, err := s.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", filePath, err)
	}

	return nil
}

// ids lists the ids of every stored document.
func (s store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
