package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"gorm.io/gorm"

	"github.com/vivero-tech/viverogo/internal/geo"
	"github.com/vivero-tech/viverogo/internal/models"
)

// Store owns the four hierarchy tiers and their structural invariants.
// Every geometry-bearing write passes through the containment and
// derivation engine inside a single transaction.
type Store struct {
	db *gorm.DB

	// Buffer radii applied when a tier receives the wrong geometric
	// primitive (line or point where a polygon is required).
	LineBufferM  float64
	PointBufferM float64
}

// NewStore creates a hierarchy store with default buffer radii.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		LineBufferM:  geo.DefaultLineBufferM,
		PointBufferM: geo.DefaultPointBufferM,
	}
}

// DB exposes the underlying handle for callers that compose queries
// (handlers, ingestion).
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) bufferFor(g orb.Geometry) float64 {
	if _, ok := g.(orb.Point); ok {
		return s.PointBufferM
	}
	return s.LineBufferM
}

// isDuplicateErr recognizes unique-constraint violations across drivers.
// GORM translates most of them to ErrDuplicatedKey; the string checks cover
// dialects where translation is unavailable.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

// ---------------------------------------------------------------------------
// Warehouse
// ---------------------------------------------------------------------------

// WarehouseInput is the caller-supplied portion of a warehouse. Centroid
// and area are always derived, never accepted.
type WarehouseInput struct {
	Code         string
	Name         string
	FacilityType models.FacilityType
	Boundary     orb.Geometry
}

// WarehousePatch updates a warehouse; nil fields are left unchanged.
type WarehousePatch struct {
	Name         *string
	FacilityType *models.FacilityType
	Boundary     orb.Geometry
	Active       *bool
}

// CreateWarehouse validates, derives and persists a root container.
func (s *Store) CreateWarehouse(ctx context.Context, in WarehouseInput) (*models.Warehouse, error) {
	code, err := NormalizeCode(TierWarehouse, in.Code)
	if err != nil {
		return nil, err
	}
	facility := in.FacilityType
	if facility == "" {
		facility = models.FacilityGreenhouse
	}
	if !facility.Valid() {
		return nil, fmt.Errorf("unknown facility type %q", facility)
	}

	derived, err := deriveBoundary(in.Boundary, s.bufferFor(in.Boundary))
	if err != nil {
		return nil, err
	}

	wh := &models.Warehouse{
		Code:         code,
		Name:         in.Name,
		FacilityType: facility,
		Boundary:     derived.Boundary,
		Centroid:     derived.Centroid,
		AreaM2:       derived.AreaM2,
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(wh).Error; err != nil {
		if isDuplicateErr(err) {
			return nil, &DuplicateKeyError{Key: "code", Value: code}
		}
		return nil, err
	}
	return wh, nil
}

// UpdateWarehouse applies a patch. A boundary change re-derives the spatial
// attributes and re-verifies that every child area still fits inside the
// new boundary, all within one transaction.
func (s *Store) UpdateWarehouse(ctx context.Context, id uint, patch WarehousePatch) (*models.Warehouse, error) {
	var wh models.Warehouse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&wh, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "warehouse", ID: id}
			}
			return err
		}
		if patch.Name != nil {
			wh.Name = *patch.Name
		}
		if patch.FacilityType != nil {
			if !patch.FacilityType.Valid() {
				return fmt.Errorf("unknown facility type %q", *patch.FacilityType)
			}
			wh.FacilityType = *patch.FacilityType
		}
		if patch.Active != nil {
			wh.Active = *patch.Active
		}
		if patch.Boundary != nil {
			derived, err := deriveBoundary(patch.Boundary, s.bufferFor(patch.Boundary))
			if err != nil {
				return err
			}
			var areas []models.StorageArea
			if err := tx.Where("warehouse_id = ?", wh.ID).Find(&areas).Error; err != nil {
				return err
			}
			for _, area := range areas {
				if err := checkContainment(derived.Boundary.Polygon, area.Boundary.Polygon, wh.ID, area.Code); err != nil {
					return err
				}
			}
			wh.Boundary = derived.Boundary
			wh.Centroid = derived.Centroid
			wh.AreaM2 = derived.AreaM2
		}
		return tx.Save(&wh).Error
	})
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

// DeleteWarehouse removes the warehouse and every descendant area,
// location and bin in one transaction.
func (s *Store) DeleteWarehouse(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wh models.Warehouse
		if err := tx.First(&wh, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "warehouse", ID: id}
			}
			return err
		}
		var areaIDs []uint
		if err := tx.Model(&models.StorageArea{}).Where("warehouse_id = ?", id).Pluck("id", &areaIDs).Error; err != nil {
			return err
		}
		if err := deleteAreaSubtrees(tx, areaIDs); err != nil {
			return err
		}
		return tx.Delete(&wh).Error
	})
}

// FindWarehouseByCode returns the warehouse with the given code, or nil.
func (s *Store) FindWarehouseByCode(ctx context.Context, code string) (*models.Warehouse, error) {
	var wh models.Warehouse
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&wh).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

// GetWarehouse fetches a warehouse by id.
func (s *Store) GetWarehouse(ctx context.Context, id uint) (*models.Warehouse, error) {
	var wh models.Warehouse
	if err := s.db.WithContext(ctx).First(&wh, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "warehouse", ID: id}
		}
		return nil, err
	}
	return &wh, nil
}

// ListWarehouses returns all active warehouses ordered by id.
func (s *Store) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	var whs []models.Warehouse
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&whs).Error; err != nil {
		return nil, err
	}
	return whs, nil
}

// ---------------------------------------------------------------------------
// StorageArea
// ---------------------------------------------------------------------------

// AreaInput is the caller-supplied portion of a storage area.
type AreaInput struct {
	WarehouseID  uint
	ParentAreaID *uint
	Code         string
	Name         string
	Position     *models.AreaPosition
	Boundary     orb.Geometry
}

// AreaPatch updates an area; nil fields are left unchanged.
type AreaPatch struct {
	Name     *string
	Position *models.AreaPosition
	Boundary orb.Geometry
	Active   *bool
}

// CreateArea validates, derives and persists a level-2 zone. The parent
// warehouse boundary (and the parent area boundary, when nested) is
// re-read inside the write transaction before the containment check.
func (s *Store) CreateArea(ctx context.Context, in AreaInput) (*models.StorageArea, error) {
	code, err := NormalizeCode(TierArea, in.Code)
	if err != nil {
		return nil, err
	}
	if in.Position != nil && !in.Position.Valid() {
		return nil, fmt.Errorf("unknown area position %q", *in.Position)
	}

	var area models.StorageArea
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wh models.Warehouse
		if err := tx.First(&wh, in.WarehouseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ParentNotFoundError{Tier: TierWarehouse, Ref: code}
			}
			return err
		}

		derived, err := deriveBoundary(in.Boundary, s.bufferFor(in.Boundary))
		if err != nil {
			return err
		}
		if err := checkContainment(wh.Boundary.Polygon, derived.Boundary.Polygon, wh.ID, code); err != nil {
			return err
		}
		if in.ParentAreaID != nil {
			var parent models.StorageArea
			if err := tx.First(&parent, *in.ParentAreaID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &ParentNotFoundError{Tier: TierArea, Ref: code}
				}
				return err
			}
			if err := checkContainment(parent.Boundary.Polygon, derived.Boundary.Polygon, parent.ID, code); err != nil {
				return err
			}
		}

		area = models.StorageArea{
			WarehouseID:  in.WarehouseID,
			ParentAreaID: in.ParentAreaID,
			Code:         code,
			Name:         in.Name,
			Position:     in.Position,
			Boundary:     derived.Boundary,
			Centroid:     derived.Centroid,
			AreaM2:       derived.AreaM2,
			Active:       true,
		}
		if err := tx.Create(&area).Error; err != nil {
			if isDuplicateErr(err) {
				return &DuplicateKeyError{Key: "code", Value: code}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// UpdateArea applies a patch. Boundary changes re-run the full write gate:
// re-derivation, containment against the warehouse and parent area, and
// re-verification of child locations and sub-areas.
func (s *Store) UpdateArea(ctx context.Context, id uint, patch AreaPatch) (*models.StorageArea, error) {
	var area models.StorageArea
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&area, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "storage area", ID: id}
			}
			return err
		}
		if patch.Name != nil {
			area.Name = *patch.Name
		}
		if patch.Position != nil {
			if !patch.Position.Valid() {
				return fmt.Errorf("unknown area position %q", *patch.Position)
			}
			area.Position = patch.Position
		}
		if patch.Active != nil {
			area.Active = *patch.Active
		}
		if patch.Boundary != nil {
			derived, err := deriveBoundary(patch.Boundary, s.bufferFor(patch.Boundary))
			if err != nil {
				return err
			}
			var wh models.Warehouse
			if err := tx.First(&wh, area.WarehouseID).Error; err != nil {
				return err
			}
			if err := checkContainment(wh.Boundary.Polygon, derived.Boundary.Polygon, wh.ID, area.Code); err != nil {
				return err
			}
			if area.ParentAreaID != nil {
				var parent models.StorageArea
				if err := tx.First(&parent, *area.ParentAreaID).Error; err != nil {
					return err
				}
				if err := checkContainment(parent.Boundary.Polygon, derived.Boundary.Polygon, parent.ID, area.Code); err != nil {
					return err
				}
			}
			var locs []models.StorageLocation
			if err := tx.Where("storage_area_id = ?", area.ID).Find(&locs).Error; err != nil {
				return err
			}
			for _, loc := range locs {
				if err := checkContainment(derived.Boundary.Polygon, loc.Coordinates.Point, area.ID, loc.Code); err != nil {
					return err
				}
			}
			var subs []models.StorageArea
			if err := tx.Where("parent_area_id = ?", area.ID).Find(&subs).Error; err != nil {
				return err
			}
			for _, sub := range subs {
				if err := checkContainment(derived.Boundary.Polygon, sub.Boundary.Polygon, area.ID, sub.Code); err != nil {
					return err
				}
			}
			area.Boundary = derived.Boundary
			area.Centroid = derived.Centroid
			area.AreaM2 = derived.AreaM2
		}
		return tx.Save(&area).Error
	})
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// DeleteArea removes the area subtree: nested sub-areas, locations, bins.
func (s *Store) DeleteArea(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var area models.StorageArea
		if err := tx.First(&area, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "storage area", ID: id}
			}
			return err
		}
		return deleteAreaSubtrees(tx, []uint{id})
	})
}

// deleteAreaSubtrees soft-deletes the given areas plus all nested
// sub-areas, their locations and bins. Traversal is iterative since the
// self-reference can nest arbitrarily.
func deleteAreaSubtrees(tx *gorm.DB, roots []uint) error {
	if len(roots) == 0 {
		return nil
	}
	all := append([]uint{}, roots...)
	frontier := roots
	for len(frontier) > 0 {
		var next []uint
		if err := tx.Model(&models.StorageArea{}).Where("parent_area_id IN ?", frontier).Pluck("id", &next).Error; err != nil {
			return err
		}
		if len(next) == 0 {
			break
		}
		all = append(all, next...)
		frontier = next
	}

	var locIDs []uint
	if err := tx.Model(&models.StorageLocation{}).Where("storage_area_id IN ?", all).Pluck("id", &locIDs).Error; err != nil {
		return err
	}
	if len(locIDs) > 0 {
		if err := tx.Where("storage_location_id IN ?", locIDs).Delete(&models.StorageBin{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", locIDs).Delete(&models.StorageLocation{}).Error; err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", all).Delete(&models.StorageArea{}).Error
}

// FindAreaByCode returns the storage area with the given code, or nil.
func (s *Store) FindAreaByCode(ctx context.Context, code string) (*models.StorageArea, error) {
	var area models.StorageArea
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&area).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &area, nil
}

// GetArea fetches a storage area by id.
func (s *Store) GetArea(ctx context.Context, id uint) (*models.StorageArea, error) {
	var area models.StorageArea
	if err := s.db.WithContext(ctx).First(&area, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "storage area", ID: id}
		}
		return nil, err
	}
	return &area, nil
}

// ListAreas returns active areas, optionally scoped to one warehouse.
func (s *Store) ListAreas(ctx context.Context, warehouseID *uint) ([]models.StorageArea, error) {
	q := s.db.WithContext(ctx).Where("active = ?", true).Order("id")
	if warehouseID != nil {
		q = q.Where("warehouse_id = ?", *warehouseID)
	}
	var areas []models.StorageArea
	if err := q.Find(&areas).Error; err != nil {
		return nil, err
	}
	return areas, nil
}

// ---------------------------------------------------------------------------
// StorageLocation
// ---------------------------------------------------------------------------

// LocationInput is the caller-supplied portion of a storage location.
type LocationInput struct {
	StorageAreaID    uint
	Code             string
	Name             string
	QRCode           string
	Coordinates      orb.Geometry
	PositionMetadata models.JSONB
}

// LocationPatch updates a location; nil fields are left unchanged.
type LocationPatch struct {
	Name             *string
	Coordinates      orb.Geometry
	PositionMetadata models.JSONB
	Active           *bool
}

const (
	qrMinLen = 8
	qrMaxLen = 20
)

func validateQRCode(qr string) error {
	qr = strings.TrimSpace(qr)
	if len(qr) < qrMinLen || len(qr) > qrMaxLen {
		return fmt.Errorf("qr code %q length out of bounds [%d, %d]", qr, qrMinLen, qrMaxLen)
	}
	return nil
}

// CreateLocation persists a photo unit. Non-point geometry degenerates to
// its representative point; centroid always equals the coordinates and the
// area is fixed at zero.
func (s *Store) CreateLocation(ctx context.Context, in LocationInput) (*models.StorageLocation, error) {
	code, err := NormalizeCode(TierLocation, in.Code)
	if err != nil {
		return nil, err
	}
	if err := validateQRCode(in.QRCode); err != nil {
		return nil, err
	}

	var loc models.StorageLocation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var area models.StorageArea
		if err := tx.First(&area, in.StorageAreaID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ParentNotFoundError{Tier: TierArea, Ref: code}
			}
			return err
		}

		point, err := derivePoint(in.Coordinates)
		if err != nil {
			return err
		}
		if err := checkContainment(area.Boundary.Polygon, point.Point, area.ID, code); err != nil {
			return err
		}

		meta := in.PositionMetadata
		if meta == nil {
			meta = models.JSONB{}
		}
		loc = models.StorageLocation{
			StorageAreaID:    in.StorageAreaID,
			Code:             code,
			Name:             in.Name,
			QRCode:           strings.TrimSpace(in.QRCode),
			Coordinates:      point,
			Centroid:         point,
			AreaM2:           0,
			PositionMetadata: meta,
			Active:           true,
		}
		if err := tx.Create(&loc).Error; err != nil {
			if isDuplicateErr(err) {
				return s.classifyLocationDuplicate(ctx, code, loc.QRCode)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// classifyLocationDuplicate distinguishes which of the two independent
// unique namespaces (code, qr_code) collided. The lookup runs on a fresh
// session: the failed insert has already aborted the surrounding
// transaction on Postgres, and the colliding row is committed data that
// is visible outside it.
func (s *Store) classifyLocationDuplicate(ctx context.Context, code, qr string) error {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.StorageLocation{}).Where("code = ?", code).Count(&n).Error
	if err == nil && n > 0 {
		return &DuplicateKeyError{Key: "code", Value: code}
	}
	return &DuplicateKeyError{Key: "qr_code", Value: qr}
}

// UpdateLocation applies a patch; coordinate changes re-check containment
// against the owning area inside the transaction.
func (s *Store) UpdateLocation(ctx context.Context, id uint, patch LocationPatch) (*models.StorageLocation, error) {
	var loc models.StorageLocation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&loc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "storage location", ID: id}
			}
			return err
		}
		if patch.Name != nil {
			loc.Name = *patch.Name
		}
		if patch.PositionMetadata != nil {
			loc.PositionMetadata = patch.PositionMetadata
		}
		if patch.Active != nil {
			loc.Active = *patch.Active
		}
		if patch.Coordinates != nil {
			point, err := derivePoint(patch.Coordinates)
			if err != nil {
				return err
			}
			var area models.StorageArea
			if err := tx.First(&area, loc.StorageAreaID).Error; err != nil {
				return err
			}
			if err := checkContainment(area.Boundary.Polygon, point.Point, area.ID, loc.Code); err != nil {
				return err
			}
			loc.Coordinates = point
			loc.Centroid = point
			loc.AreaM2 = 0
		}
		return tx.Save(&loc).Error
	})
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// SetLatestSession records (or clears, with nil) the photo session
// reference owned by the photo pipeline.
func (s *Store) SetLatestSession(ctx context.Context, id uint, sessionID *uint) error {
	res := s.db.WithContext(ctx).Model(&models.StorageLocation{}).Where("id = ?", id).
		Update("latest_session_id", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "storage location", ID: id}
	}
	return nil
}

// DeleteLocation removes the location and its bins.
func (s *Store) DeleteLocation(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loc models.StorageLocation
		if err := tx.First(&loc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "storage location", ID: id}
			}
			return err
		}
		if err := tx.Where("storage_location_id = ?", id).Delete(&models.StorageBin{}).Error; err != nil {
			return err
		}
		return tx.Delete(&loc).Error
	})
}

// FindLocationByCode returns the location with the given code, or nil.
func (s *Store) FindLocationByCode(ctx context.Context, code string) (*models.StorageLocation, error) {
	var loc models.StorageLocation
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// FindLocationByQR resolves the physical-label identifier, the unique key
// photo-capture clients use.
func (s *Store) FindLocationByQR(ctx context.Context, qr string) (*models.StorageLocation, error) {
	var loc models.StorageLocation
	err := s.db.WithContext(ctx).Where("qr_code = ?", strings.TrimSpace(qr)).First(&loc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetLocation fetches a storage location by id.
func (s *Store) GetLocation(ctx context.Context, id uint) (*models.StorageLocation, error) {
	var loc models.StorageLocation
	if err := s.db.WithContext(ctx).First(&loc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "storage location", ID: id}
		}
		return nil, err
	}
	return &loc, nil
}

// ListLocations returns active locations, optionally scoped to one area.
func (s *Store) ListLocations(ctx context.Context, areaID *uint) ([]models.StorageLocation, error) {
	q := s.db.WithContext(ctx).Where("active = ?", true).Order("id")
	if areaID != nil {
		q = q.Where("storage_area_id = ?", *areaID)
	}
	var locs []models.StorageLocation
	if err := q.Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

// ListQRCodes returns every persisted QR code (including soft-deleted
// rows, which still occupy the namespace).
func (s *Store) ListQRCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.StorageLocation{}).Pluck("qr_code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// ---------------------------------------------------------------------------
// StorageBin
// ---------------------------------------------------------------------------

// BinInput is the caller-supplied portion of a storage bin. Status may be
// overridden at creation; afterwards it only moves via TransitionBin.
type BinInput struct {
	StorageLocationID uint
	StorageBinTypeID  *uint
	Code              string
	Label             string
	Status            models.BinStatus
	PositionMetadata  models.JSONB
}

// BinPatch updates a bin; nil fields are left unchanged. Status is not
// patchable here, that goes through the lifecycle state machine.
type BinPatch struct {
	Label            *string
	StorageBinTypeID *uint
	PositionMetadata models.JSONB
}

// CreateBin persists a leaf bin under a location.
func (s *Store) CreateBin(ctx context.Context, in BinInput) (*models.StorageBin, error) {
	code, err := NormalizeCode(TierBin, in.Code)
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = models.BinActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown bin status %q", status)
	}

	var bin models.StorageBin
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loc models.StorageLocation
		if err := tx.First(&loc, in.StorageLocationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ParentNotFoundError{Tier: TierLocation, Ref: code}
			}
			return err
		}
		if in.StorageBinTypeID != nil {
			var bt models.StorageBinType
			if err := tx.First(&bt, *in.StorageBinTypeID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &NotFoundError{Entity: "storage bin type", ID: *in.StorageBinTypeID}
				}
				return err
			}
		}

		meta := in.PositionMetadata
		if meta == nil {
			meta = models.JSONB{}
		}
		bin = models.StorageBin{
			StorageLocationID: in.StorageLocationID,
			StorageBinTypeID:  in.StorageBinTypeID,
			Code:              code,
			Label:             in.Label,
			Status:            status,
			PositionMetadata:  meta,
			Active:            true,
		}
		if err := tx.Create(&bin).Error; err != nil {
			if isDuplicateErr(err) {
				return &DuplicateKeyError{Key: "code", Value: code}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bin, nil
}

// UpdateBin applies a patch to label, type reference or metadata.
func (s *Store) UpdateBin(ctx context.Context, id uint, patch BinPatch) (*models.StorageBin, error) {
	var bin models.StorageBin
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bin, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "storage bin", ID: id}
			}
			return err
		}
		if patch.Label != nil {
			bin.Label = *patch.Label
		}
		if patch.StorageBinTypeID != nil {
			var bt models.StorageBinType
			if err := tx.First(&bt, *patch.StorageBinTypeID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &NotFoundError{Entity: "storage bin type", ID: *patch.StorageBinTypeID}
				}
				return err
			}
			bin.StorageBinTypeID = patch.StorageBinTypeID
		}
		if patch.PositionMetadata != nil {
			bin.PositionMetadata = patch.PositionMetadata
		}
		return tx.Save(&bin).Error
	})
	if err != nil {
		return nil, err
	}
	return &bin, nil
}

// DeleteBin removes a single bin.
func (s *Store) DeleteBin(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.StorageBin{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "storage bin", ID: id}
	}
	return nil
}

// FindBinByCode returns the bin with the given code, or nil.
func (s *Store) FindBinByCode(ctx context.Context, code string) (*models.StorageBin, error) {
	var bin models.StorageBin
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&bin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bin, nil
}

// GetBin fetches a bin by id.
func (s *Store) GetBin(ctx context.Context, id uint) (*models.StorageBin, error) {
	var bin models.StorageBin
	if err := s.db.WithContext(ctx).First(&bin, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "storage bin", ID: id}
		}
		return nil, err
	}
	return &bin, nil
}

// ListBins returns bins, optionally restricted to one location.
func (s *Store) ListBins(ctx context.Context, locationID *uint) ([]models.StorageBin, error) {
	q := s.db.WithContext(ctx).Order("id")
	if locationID != nil {
		q = q.Where("storage_location_id = ?", *locationID)
	}
	var bins []models.StorageBin
	if err := q.Find(&bins).Error; err != nil {
		return nil, err
	}
	return bins, nil
}

// FindBinsByMetadata filters bins on fields of the ML metadata bag: a
// minimum detection confidence and/or a container type. The JSON path
// expression is dialect-specific since the bag lives in jsonb on Postgres
// and plain text elsewhere.
func (s *Store) FindBinsByMetadata(ctx context.Context, minConfidence *float64, containerType string) ([]models.StorageBin, error) {
	q := s.db.WithContext(ctx).Model(&models.StorageBin{})
	postgres := s.db.Dialector.Name() == "postgres"

	if minConfidence != nil {
		if postgres {
			q = q.Where("(position_metadata->>'confidence')::float >= ?", *minConfidence)
		} else {
			q = q.Where("CAST(json_extract(position_metadata, '$.confidence') AS REAL) >= ?", *minConfidence)
		}
	}
	if containerType != "" {
		if postgres {
			q = q.Where("position_metadata->>'container_type' = ?", containerType)
		} else {
			q = q.Where("json_extract(position_metadata, '$.container_type') = ?", containerType)
		}
	}

	var bins []models.StorageBin
	if err := q.Order("id").Find(&bins).Error; err != nil {
		return nil, err
	}
	return bins, nil
}

// ---------------------------------------------------------------------------
// StorageBinType (flat catalog, RESTRICT on delete)
// ---------------------------------------------------------------------------

// BinTypeInput describes a container catalog entry.
type BinTypeInput struct {
	Name     string
	Category models.BinCategory
	IsGrid   bool
	Rows     *int
	Columns  *int
	VolumeL  *float64
	LengthCm *float64
	WidthCm  *float64
	HeightCm *float64
}

// CreateBinType persists a catalog entry. Grid types must declare both
// rows and columns.
func (s *Store) CreateBinType(ctx context.Context, in BinTypeInput) (*models.StorageBinType, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("unknown bin category %q", in.Category)
	}
	if in.IsGrid {
		if in.Rows == nil || in.Columns == nil || *in.Rows <= 0 || *in.Columns <= 0 {
			return nil, fmt.Errorf("grid bin type %q must declare positive rows and columns", in.Name)
		}
	}

	bt := &models.StorageBinType{
		Name:     in.Name,
		Category: in.Category,
		IsGrid:   in.IsGrid,
		Rows:     in.Rows,
		Columns:  in.Columns,
		VolumeL:  in.VolumeL,
		LengthCm: in.LengthCm,
		WidthCm:  in.WidthCm,
		HeightCm: in.HeightCm,
		Active:   true,
	}
	if err := s.db.WithContext(ctx).Create(bt).Error; err != nil {
		if isDuplicateErr(err) {
			return nil, &DuplicateKeyError{Key: "name", Value: in.Name}
		}
		return nil, err
	}
	return bt, nil
}

// DeleteBinType enforces the RESTRICT relation: the delete fails while any
// live bin still references the type.
func (s *Store) DeleteBinType(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bt models.StorageBinType
		if err := tx.First(&bt, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Entity: "storage bin type", ID: id}
			}
			return err
		}
		var refs int64
		if err := tx.Model(&models.StorageBin{}).Where("storage_bin_type_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return &ReferencedByError{Entity: "storage bin type", ID: id, RefCount: refs}
		}
		return tx.Delete(&bt).Error
	})
}

// ListBinTypes returns all active catalog entries.
func (s *Store) ListBinTypes(ctx context.Context) ([]models.StorageBinType, error) {
	var types []models.StorageBinType
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

// ---------------------------------------------------------------------------
// Point resolution (photo pipeline support)
// ---------------------------------------------------------------------------

// ResolvePoint finds the warehouse and, when possible, the storage area
// whose boundaries contain the given GPS point. This is the lookup inbound
// photos use to resolve their capture position.
func (s *Store) ResolvePoint(ctx context.Context, pt orb.Point) (*models.Warehouse, *models.StorageArea, error) {
	if err := geo.Validate(pt); err != nil {
		return nil, nil, err
	}
	warehouses, err := s.ListWarehouses(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range warehouses {
		wh := &warehouses[i]
		if !geo.Contains(wh.Boundary.Polygon, pt) {
			continue
		}
		areas, err := s.ListAreas(ctx, &wh.ID)
		if err != nil {
			return nil, nil, err
		}
		// Prefer the deepest (most specific) matching area.
		var match *models.StorageArea
		for j := range areas {
			if geo.Contains(areas[j].Boundary.Polygon, pt) {
				if match == nil || areas[j].ParentAreaID != nil {
					match = &areas[j]
				}
			}
		}
		return wh, match, nil
	}
	return nil, nil, nil
}
