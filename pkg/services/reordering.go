package services

import (
	"context"
	"errors"

	"github.com/dukex/blueprint/pkg/events"
	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/ordering"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// siblings adapts one kind of ordered child (milestones of a workflow, tasks of a
// milestone) to the reorder path.
type siblings interface {
	kind() string
	load(ctx context.Context, parentID string) (ordering.Sequence, error)
	reassign(ctx context.Context, parentID string, assignments []models.OrdinalAssignment) error
}

type milestoneSiblings struct {
	repo persistence.MilestoneTemplateRepository
}

func (milestoneSiblings) kind() string { return "milestone" }

func (s milestoneSiblings) load(ctx context.Context, workflowID string) (ordering.Sequence, error) {
	milestones, err := s.repo.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return ordering.Milestones(milestones), nil
}

func (s milestoneSiblings) reassign(ctx context.Context, workflowID string, assignments []models.OrdinalAssignment) error {
	return s.repo.ReassignOrdinals(ctx, workflowID, assignments)
}

type taskSiblings struct {
	repo persistence.TaskTemplateRepository
}

func (taskSiblings) kind() string { return "task" }

func (s taskSiblings) load(ctx context.Context, milestoneID string) (ordering.Sequence, error) {
	tasks, err := s.repo.ListByMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	return ordering.Tasks(tasks), nil
}

func (s taskSiblings) reassign(ctx context.Context, milestoneID string, assignments []models.OrdinalAssignment) error {
	return s.repo.ReassignOrdinals(ctx, milestoneID, assignments)
}

// permutation derives the next order from the current one. moved is false for a no-op.
type permutation func(current ordering.Sequence) (next ordering.Sequence, moved bool, err error)

// reorderer is the single write path for sibling order. Pairwise moves and bulk
// listings both reduce to a permutation of the stored sequence followed by one atomic
// reassignment of every ordinal.
type reorderer struct {
	options
}

func (r reorderer) apply(ctx context.Context, op string, s siblings, parentID, mode string, permute permutation) (ordering.Sequence, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "reorder."+s.kind(),
		attribute.String("blueprint.reorder.parent_id", parentID),
		attribute.String("blueprint.reorder.mode", mode))
	defer span.End()

	current, err := s.load(ctx, parentID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, storeError(op, err)
	}

	next, moved, err := permute(current)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, reorderInputError(op, err)
	}

	if !moved {
		return current, nil
	}

	err = s.reassign(ctx, parentID, next.Assignments())
	if err != nil {
		otelhelper.SetError(span, err)

		if persistence.IsOrdinalSetMismatch(err) {
			r.metrics.Conflict(op)
		}

		return nil, storeError(op, err)
	}

	r.metrics.Reorder(s.kind(), mode)
	r.logger.InfoContext(ctx, "Reordered templates", "kind", s.kind(), "parent_id", parentID, "mode", mode)
	r.publish(ctx, parentID, &events.TemplatesReordered{
		BaseEvent: events.NewBaseEvent(events.TemplatesReorderedEvent),
		Kind:      s.kind(),
		ParentID:  parentID,
		Order:     next,
	})

	return next, nil
}

// move swaps id with its neighbour in direction dir; the edges are no-ops.
func (r reorderer) move(ctx context.Context, op string, s siblings, parentID, id string, dir models.Direction) (ordering.Sequence, error) {
	return r.apply(ctx, op, s, parentID, "move", func(current ordering.Sequence) (ordering.Sequence, bool, error) {
		return current.Move(id, dir)
	})
}

// bulk replaces the whole order with the caller's listing, which must name every sibling once.
func (r reorderer) bulk(ctx context.Context, op string, s siblings, parentID string, assignments []models.OrdinalAssignment) (ordering.Sequence, error) {
	for _, a := range assignments {
		err := validateStruct(op, a)
		if err != nil {
			return nil, err
		}
	}

	return r.apply(ctx, op, s, parentID, "bulk", func(current ordering.Sequence) (ordering.Sequence, bool, error) {
		next, err := current.Reassign(assignments)
		if err != nil {
			return nil, false, err
		}

		return next, true, nil
	})
}

func reorderInputError(op string, err error) error {
	switch {
	case errors.Is(err, ordering.ErrInvalidDirection):
		return NewValidationError(op, "INVALID_DIRECTION", "direction must be up or down", errors.Join(ErrInvalidDirection, err))
	case errors.Is(err, ordering.ErrItemNotInSequence):
		return newNotFoundError(op, err)
	case errors.Is(err, ordering.ErrInvalidListing):
		return NewValidationError(op, "INVALID_ORDINAL_LISTING", err.Error(), err)
	default:
		return NewValidationError(op, "INVALID_REQUEST", err.Error(), errors.Join(ErrInvalidRequest, err))
	}
}
