// Package file provides file-based persistence for template hierarchies and the trigger ledger.
//
// Each workflow template is stored with all of its milestones and tasks as one JSON
// document, written through a temporary file and renamed into place, so a reader never
// observes a half-applied reorder.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/blueprint/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root  string
	trees *treeStore

	workflowRepo  *WorkflowTemplateRepository
	milestoneRepo *MilestoneTemplateRepository
	taskRepo      *TaskTemplateRepository
	triggerRepo   *TriggerRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	trees := &treeStore{root: cleanRoot, mu: &sync.Mutex{}}

	return &Persistence{
		root:          cleanRoot,
		trees:         trees,
		workflowRepo:  &WorkflowTemplateRepository{trees: trees},
		milestoneRepo: &MilestoneTemplateRepository{trees: trees},
		taskRepo:      &TaskTemplateRepository{trees: trees},
		triggerRepo:   NewTriggerRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowTemplateRepository() persistence.WorkflowTemplateRepository {
	return fp.workflowRepo
}

func (fp *Persistence) MilestoneTemplateRepository() persistence.MilestoneTemplateRepository {
	return fp.milestoneRepo
}

func (fp *Persistence) TaskTemplateRepository() persistence.TaskTemplateRepository {
	return fp.taskRepo
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggerRepo
}
