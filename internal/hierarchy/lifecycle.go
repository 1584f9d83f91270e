package hierarchy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vivero-tech/viverogo/internal/models"
)

// binTransitions defines the lifecycle edges. Retired has no outgoing
// edges; it is terminal.
var binTransitions = map[models.BinStatus][]models.BinStatus{
	models.BinActive:      {models.BinMaintenance, models.BinRetired},
	models.BinMaintenance: {models.BinActive, models.BinRetired},
	models.BinRetired:     {},
}

// CanTransition reports whether the state machine defines the edge
// from -> to.
func CanTransition(from, to models.BinStatus) bool {
	for _, next := range binTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionBin moves a bin along a lifecycle edge. Transitions out of the
// terminal Retired status fail with TerminalStateViolation; undefined
// edges fail with InvalidTransition. The terminal check applies to state
// changes only — initial status assignment at creation bypasses it.
func (s *Store) TransitionBin(ctx context.Context, id uint, to models.BinStatus) (*models.StorageBin, error) {
	if !to.Valid() {
		return nil, &InvalidTransition{BinID: id, To: to}
	}

	var bin models.StorageBin
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bin, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "storage bin", ID: id}
			}
			return err
		}
		if bin.Status == to {
			return nil // no-op, already there
		}
		if bin.Status == models.BinRetired {
			return &TerminalStateViolation{BinID: id, From: bin.Status, To: to}
		}
		if !CanTransition(bin.Status, to) {
			return &InvalidTransition{BinID: id, From: bin.Status, To: to}
		}
		bin.Status = to
		return tx.Save(&bin).Error
	})
	if err != nil {
		return nil, err
	}
	return &bin, nil
}
