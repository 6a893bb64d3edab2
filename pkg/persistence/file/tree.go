package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/persistence"
)

const treesDir = "workflow_templates"

// treeStore reads and writes whole template trees. Callers hold mu for any
// read-modify-write sequence.
type treeStore struct {
	root string
	mu   *sync.Mutex
}

func (s *treeStore) dir() string {
	return filepath.Join(s.root, treesDir)
}

func (s *treeStore) path(id string) string {
	return filepath.Join(s.dir(), id+".json")
}

func (s *treeStore) load(id string) (*models.WorkflowTemplate, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, persistence.ErrWorkflowTemplateNotFound
	}

	body, err := os.ReadFile(filepath.Clean(s.path(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrWorkflowTemplateNotFound
		}

		return nil, fmt.Errorf("failed to read workflow template %s: %w", id, err)
	}

	var tree models.WorkflowTemplate

	err = json.Unmarshal(body, &tree)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow template %s: %w", id, err)
	}

	sortTree(&tree)

	return &tree, nil
}

func (s *treeStore) loadAll() ([]*models.WorkflowTemplate, error) {
	jsonFiles, err := fs.Glob(os.DirFS(s.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow template files: %w", err)
	}

	trees := make([]*models.WorkflowTemplate, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		tree, err := s.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			if persistence.IsWorkflowTemplateNotFound(err) {
				continue
			}

			return nil, err
		}

		trees = append(trees, tree)
	}

	return trees, nil
}

// save writes the tree atomically: temp file in the same directory, then rename.
func (s *treeStore) save(tree *models.WorkflowTemplate) error {
	err := os.MkdirAll(s.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflow templates directory: %w", err)
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow template %s: %w", tree.ID, err)
	}

	return writeAtomic(s.dir(), s.path(tree.ID), data)
}

func (s *treeStore) remove(id string) error {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrWorkflowTemplateNotFound
		}

		return fmt.Errorf("failed to delete workflow template %s: %w", id, err)
	}

	return nil
}

func (s *treeStore) findMilestone(id string) (*models.WorkflowTemplate, *models.MilestoneTemplate, error) {
	trees, err := s.loadAll()
	if err != nil {
		return nil, nil, err
	}

	for _, tree := range trees {
		for _, milestone := range tree.Milestones {
			if milestone.ID == id {
				return tree, milestone, nil
			}
		}
	}

	return nil, nil, persistence.ErrMilestoneTemplateNotFound
}

func (s *treeStore) findTask(id string) (*models.WorkflowTemplate, *models.MilestoneTemplate, *models.TaskTemplate, error) {
	trees, err := s.loadAll()
	if err != nil {
		return nil, nil, nil, err
	}

	for _, tree := range trees {
		for _, milestone := range tree.Milestones {
			for _, task := range milestone.Tasks {
				if task.ID == id {
					return tree, milestone, task, nil
				}
			}
		}
	}

	return nil, nil, nil, persistence.ErrTaskTemplateNotFound
}

// nameTaken reports whether an active template other than exceptID uses name.
func (s *treeStore) nameTaken(name, exceptID string) (bool, error) {
	trees, err := s.loadAll()
	if err != nil {
		return false, err
	}

	for _, tree := range trees {
		if tree.ID != exceptID && tree.Active && strings.EqualFold(tree.Name, name) {
			return true, nil
		}
	}

	return false, nil
}

func writeAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err == nil {
		err = os.Chmod(tmpName, 0600)
	}

	if err == nil {
		err = os.Rename(tmpName, target)
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %s: %w", filepath.Base(target), err)
	}

	return nil
}

func sortTree(tree *models.WorkflowTemplate) {
	sort.SliceStable(tree.Milestones, func(i, j int) bool {
		return tree.Milestones[i].Ordinal < tree.Milestones[j].Ordinal
	})

	for _, milestone := range tree.Milestones {
		sortTasks(milestone.Tasks)
	}
}

func sortTasks(tasks []*models.TaskTemplate) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Ordinal < tasks[j].Ordinal
	})
}

func now() time.Time {
	return time.Now().UTC()
}

// stripTree returns a copy of the template without children.
func stripTree(tree *models.WorkflowTemplate) *models.WorkflowTemplate {
	cp := tree.Clone()
	cp.Milestones = nil

	return cp
}

func stripMilestone(milestone *models.MilestoneTemplate) *models.MilestoneTemplate {
	cp := milestone.Clone()
	cp.Tasks = nil

	return cp
}
