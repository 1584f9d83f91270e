package models

import (
	"time"

	"gorm.io/gorm"
)

// BinStatus is the lifecycle state of a storage bin
type BinStatus string

const (
	BinActive      BinStatus = "active"
	BinMaintenance BinStatus = "maintenance"
	BinRetired     BinStatus = "retired" // terminal
)

// Valid reports whether the status is a known enum value
func (s BinStatus) Valid() bool {
	switch s {
	case BinActive, BinMaintenance, BinRetired:
		return true
	}
	return false
}

// StorageBin is the leaf tier. Bins carry no geometry of their own; their
// physical position is the parent location's point. PositionMetadata holds
// whatever the ML detection pipeline writes (mask, bbox, confidence).
type StorageBin struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	StorageLocationID uint           `gorm:"not null;index" json:"storage_location_id"`
	StorageBinTypeID  *uint          `gorm:"index" json:"storage_bin_type_id,omitempty"`
	Code              string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"code"`
	Label             string         `json:"label"`
	PositionMetadata  JSONB          `gorm:"type:jsonb;default:'{}'" json:"position_metadata"`
	Status            BinStatus      `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Active            bool           `gorm:"default:true" json:"active"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	StorageLocation *StorageLocation `gorm:"foreignKey:StorageLocationID;constraint:OnDelete:CASCADE" json:"storage_location,omitempty"`
	StorageBinType  *StorageBinType  `gorm:"foreignKey:StorageBinTypeID" json:"storage_bin_type,omitempty"`
}

// TableName specifies the table name for StorageBin model
func (StorageBin) TableName() string {
	return "storage_bins"
}

// BinCategory classifies container shapes in the bin type catalog
type BinCategory string

const (
	CategoryPlug         BinCategory = "plug"
	CategorySeedlingTray BinCategory = "seedling_tray"
	CategoryBox          BinCategory = "box"
	CategorySegment      BinCategory = "segment"
	CategoryPot          BinCategory = "pot"
)

// Valid reports whether the category is a known enum value
func (c BinCategory) Valid() bool {
	switch c {
	case CategoryPlug, CategorySeedlingTray, CategoryBox, CategorySegment, CategoryPot:
		return true
	}
	return false
}

// StorageBinType is a flat catalog entry describing the physical container,
// outside the containment hierarchy. Grid types (trays, plug sheets) must
// declare both Rows and Columns; non-grid types leave dimensions nil.
// Deleting a type is RESTRICTed while bins still reference it.
type StorageBinType struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Category  BinCategory    `gorm:"type:varchar(20);not null" json:"category"`
	IsGrid    bool           `gorm:"default:false" json:"is_grid"`
	Rows      *int           `json:"rows,omitempty"`
	Columns   *int           `json:"columns,omitempty"`
	VolumeL   *float64       `json:"volume_l,omitempty"`
	LengthCm  *float64       `json:"length_cm,omitempty"`
	WidthCm   *float64       `json:"width_cm,omitempty"`
	HeightCm  *float64       `json:"height_cm,omitempty"`
	Active    bool           `gorm:"default:true" json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Bins []StorageBin `gorm:"foreignKey:StorageBinTypeID" json:"bins,omitempty"`
}

// TableName specifies the table name for StorageBinType model
func (StorageBinType) TableName() string {
	return "storage_bin_types"
}

// Capacity returns the cell count for grid types, 1 otherwise.
func (t *StorageBinType) Capacity() int {
	if t.IsGrid && t.Rows != nil && t.Columns != nil {
		return *t.Rows * *t.Columns
	}
	return 1
}
