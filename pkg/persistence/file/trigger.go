package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/persistence"
)

// TriggerRepository stores one file per (ticket, milestone) pair. Record links a fully
// written temp file into place, so the insert fails atomically when the pair exists,
// even across processes sharing the directory.
type TriggerRepository struct {
	root string
}

// NewTriggerRepository creates a trigger ledger rooted at root/triggers.
func NewTriggerRepository(root string) *TriggerRepository {
	return &TriggerRepository{root: filepath.Join(root, "triggers")}
}

func (r *TriggerRepository) ticketDir(ticketID string) string {
	return filepath.Join(r.root, url.PathEscape(ticketID))
}

func (r *TriggerRepository) path(ticketID, milestoneID string) string {
	return filepath.Join(r.ticketDir(ticketID), url.PathEscape(milestoneID)+".json")
}

func (r *TriggerRepository) Record(_ context.Context, record *models.TriggerRecord) error {
	dir := r.ticketDir(record.TicketID)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create trigger directory: %w", err)
	}

	ts := now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = ts
	}

	record.UpdatedAt = ts

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trigger record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = tmp.Write(data)

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("failed to write trigger record: %w", err)
	}

	err = os.Link(tmpName, r.path(record.TicketID, record.MilestoneTemplateID))
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("ticket %s milestone %s: %w", record.TicketID, record.MilestoneTemplateID, persistence.ErrTriggerAlreadyRecorded)
		}

		return fmt.Errorf("failed to record trigger: %w", err)
	}

	return nil
}

func (r *TriggerRepository) Get(_ context.Context, ticketID, milestoneID string) (*models.TriggerRecord, error) {
	return readTrigger(r.path(ticketID, milestoneID))
}

func (r *TriggerRepository) Update(_ context.Context, record *models.TriggerRecord) error {
	target := r.path(record.TicketID, record.MilestoneTemplateID)

	_, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.ErrTriggerNotFound
		}

		return fmt.Errorf("failed to stat trigger record: %w", err)
	}

	record.UpdatedAt = now()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trigger record: %w", err)
	}

	return writeAtomic(r.ticketDir(record.TicketID), target, data)
}

func (r *TriggerRepository) ListByTicket(_ context.Context, ticketID string) ([]*models.TriggerRecord, error) {
	dir := r.ticketDir(ticketID)

	names, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger records: %w", err)
	}

	records := make([]*models.TriggerRecord, 0, len(names))

	for _, name := range names {
		record, err := readTrigger(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

func readTrigger(path string) (*models.TriggerRecord, error) {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrTriggerNotFound
		}

		return nil, fmt.Errorf("failed to read trigger record: %w", err)
	}

	var record models.TriggerRecord

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger record: %w", err)
	}

	return &record, nil
}
