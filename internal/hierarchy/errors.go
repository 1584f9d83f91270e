package hierarchy

import (
	"fmt"

	"github.com/vivero-tech/viverogo/internal/models"
)

// InvalidCodeFormat reports a hierarchy code that does not match its tier's
// structure: wrong segment count, bad charset, or out-of-bounds length.
type InvalidCodeFormat struct {
	Tier             Tier
	ExpectedSegments int
	GotSegments      int
	Code             string
	Reason           string
}

func (e *InvalidCodeFormat) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s code %q: %s", e.Tier, e.Code, e.Reason)
	}
	return fmt.Sprintf("invalid %s code %q: expected %d hyphen segments, got %d",
		e.Tier, e.Code, e.ExpectedSegments, e.GotSegments)
}

// SpatialContainmentViolation reports a child geometry that does not lie
// inside its parent's boundary. The write is rejected atomically.
type SpatialContainmentViolation struct {
	ParentID  uint
	ChildCode string
}

func (e *SpatialContainmentViolation) Error() string {
	return fmt.Sprintf("geometry of %q is not contained within parent boundary (parent id %d)",
		e.ChildCode, e.ParentID)
}

// TerminalStateViolation reports an attempted transition out of a terminal
// bin status.
type TerminalStateViolation struct {
	BinID uint
	From  models.BinStatus
	To    models.BinStatus
}

func (e *TerminalStateViolation) Error() string {
	return fmt.Sprintf("bin %d: cannot transition from terminal status %q to %q", e.BinID, e.From, e.To)
}

// InvalidTransition reports a status change along an edge the lifecycle
// state machine does not define.
type InvalidTransition struct {
	BinID uint
	From  models.BinStatus
	To    models.BinStatus
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("bin %d: no transition from %q to %q", e.BinID, e.From, e.To)
}

// ReferencedByError reports a RESTRICT delete blocked by live references.
type ReferencedByError struct {
	Entity   string
	ID       uint
	RefCount int64
}

func (e *ReferencedByError) Error() string {
	return fmt.Sprintf("cannot delete %s %d: still referenced by %d rows", e.Entity, e.ID, e.RefCount)
}

// DuplicateKeyError reports a unique-constraint collision on one of the
// hierarchy namespaces (code per tier, QR code for locations).
type DuplicateKeyError struct {
	Key   string
	Value string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.Key, e.Value)
}

// ParentNotFoundError reports a missing parent during a write or during
// ingestion parent resolution.
type ParentNotFoundError struct {
	Tier Tier
	Ref  string
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("no %s parent found for %q", e.Tier, e.Ref)
}

// NotFoundError reports a missing entity on update/delete paths.
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}
