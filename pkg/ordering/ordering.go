// Package ordering keeps sibling ordinals contiguous (1..N) under moves and bulk reassignment.
//
// A Sequence is the arena: position i holds the id whose ordinal is i+1. Every reorder
// is a permutation of the sequence, so the result is contiguous by construction.
package ordering

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/blueprint/pkg/models"
)

var (
	// ErrInvalidListing is the parent of every listing validation failure.
	ErrInvalidListing = errors.New("invalid ordinal listing")

	ErrUnknownID         = fmt.Errorf("%w: id does not belong to this parent", ErrInvalidListing)
	ErrDuplicateID       = fmt.Errorf("%w: id listed more than once", ErrInvalidListing)
	ErrDuplicateOrdinal  = fmt.Errorf("%w: ordinal listed more than once", ErrInvalidListing)
	ErrOrdinalOutOfRange = fmt.Errorf("%w: ordinal outside 1..N", ErrInvalidListing)
	ErrIncompleteListing = fmt.Errorf("%w: listing omits an item", ErrInvalidListing)
	ErrInvalidDirection  = errors.New("direction must be up or down")
	ErrItemNotInSequence = errors.New("item is not part of the sequence")
)

// Sequence is an ordered list of sibling ids.
type Sequence []string

// FromItems builds a Sequence from items sorted by their current ordinal. Ties and
// gaps in the stored ordinals are tolerated; ids keep their relative order.
func FromItems[T any](items []T, id func(T) string, ordinal func(T) int) Sequence {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(ordinal(a), ordinal(b))
	})

	seq := make(Sequence, len(sorted))
	for i, item := range sorted {
		seq[i] = id(item)
	}

	return seq
}

// Tasks builds a Sequence from task templates.
func Tasks(tasks []*models.TaskTemplate) Sequence {
	return FromItems(tasks,
		func(t *models.TaskTemplate) string { return t.ID },
		func(t *models.TaskTemplate) int { return t.Ordinal },
	)
}

// Milestones builds a Sequence from milestone templates.
func Milestones(milestones []*models.MilestoneTemplate) Sequence {
	return FromItems(milestones,
		func(m *models.MilestoneTemplate) string { return m.ID },
		func(m *models.MilestoneTemplate) int { return m.Ordinal },
	)
}

// Index returns the position of id, or -1.
func (s Sequence) Index(id string) int {
	return slices.Index(s, id)
}

// Move swaps id with its neighbour in direction dir. moved is false when id is
// already first (up) or last (down); the returned sequence is then unchanged.
func (s Sequence) Move(id string, dir models.Direction) (Sequence, bool, error) {
	if !dir.Valid() {
		return s, false, ErrInvalidDirection
	}

	idx := s.Index(id)
	if idx < 0 {
		return s, false, ErrItemNotInSequence
	}

	target := idx - 1
	if dir == models.DirectionDown {
		target = idx + 1
	}

	if target < 0 || target >= len(s) {
		return s, false, nil
	}

	next := slices.Clone(s)
	next[idx], next[target] = next[target], next[idx]

	return next, true, nil
}

// Reassign validates a full listing against s and returns the sequence it describes.
// The listing must name every id in s exactly once with ordinals exactly 1..N.
func (s Sequence) Reassign(assignments []models.OrdinalAssignment) (Sequence, error) {
	members := make(map[string]struct{}, len(s))
	for _, id := range s {
		members[id] = struct{}{}
	}

	next := make(Sequence, len(s))
	seenIDs := make(map[string]struct{}, len(assignments))

	for _, a := range assignments {
		if _, ok := members[a.ID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownID, a.ID)
		}

		if _, dup := seenIDs[a.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
		}

		seenIDs[a.ID] = struct{}{}

		if a.Ordinal < 1 || a.Ordinal > len(s) {
			return nil, fmt.Errorf("%w: %d (N=%d)", ErrOrdinalOutOfRange, a.Ordinal, len(s))
		}

		if next[a.Ordinal-1] != "" {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateOrdinal, a.Ordinal)
		}

		next[a.Ordinal-1] = a.ID
	}

	if len(seenIDs) != len(s) {
		return nil, fmt.Errorf("%w: got %d of %d", ErrIncompleteListing, len(seenIDs), len(s))
	}

	return next, nil
}

// Without returns s with id removed; later ids shift up by one position.
func (s Sequence) Without(id string) Sequence {
	return slices.DeleteFunc(slices.Clone(s), func(v string) bool { return v == id })
}

// Assignments returns the contiguous ordinal for every id in s.
func (s Sequence) Assignments() []models.OrdinalAssignment {
	out := make([]models.OrdinalAssignment, len(s))
	for i, id := range s {
		out[i] = models.OrdinalAssignment{ID: id, Ordinal: i + 1}
	}

	return out
}
