package models

import (
	"time"

	"gorm.io/gorm"
)

// FacilityType classifies the physical construction of a warehouse
type FacilityType string

const (
	FacilityGreenhouse FacilityType = "greenhouse"
	FacilityShadehouse FacilityType = "shadehouse"
	FacilityOpenField  FacilityType = "open_field"
	FacilityTunnel     FacilityType = "tunnel"
)

// Valid reports whether the facility type is a known enum value
func (f FacilityType) Valid() bool {
	switch f {
	case FacilityGreenhouse, FacilityShadehouse, FacilityOpenField, FacilityTunnel:
		return true
	}
	return false
}

// Warehouse is the root container of the storage hierarchy. Its boundary
// encloses every descendant area, location and bin.
type Warehouse struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Code         string         `gorm:"type:varchar(20);not null;uniqueIndex" json:"code"`
	Name         string         `gorm:"not null" json:"name"`
	FacilityType FacilityType   `gorm:"type:varchar(20);not null;default:'greenhouse'" json:"facility_type"`
	Boundary     GeoPolygon     `gorm:"not null" json:"boundary"`
	Centroid     GeoPoint       `json:"centroid"`
	AreaM2       float64        `gorm:"default:0" json:"area_m2"`
	Active       bool           `gorm:"default:true" json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Areas []StorageArea `gorm:"foreignKey:WarehouseID" json:"areas,omitempty"`
}

// TableName specifies the table name for Warehouse model
func (Warehouse) TableName() string {
	return "warehouses"
}

// AreaPosition is the compass placement of a storage area within its
// warehouse (N/S/E/W/C)
type AreaPosition string

const (
	PositionNorth  AreaPosition = "N"
	PositionSouth  AreaPosition = "S"
	PositionEast   AreaPosition = "E"
	PositionWest   AreaPosition = "W"
	PositionCenter AreaPosition = "C"
)

// Valid reports whether the position is a known enum value
func (p AreaPosition) Valid() bool {
	switch p {
	case PositionNorth, PositionSouth, PositionEast, PositionWest, PositionCenter:
		return true
	}
	return false
}

// StorageArea is a zone inside a warehouse. Areas may nest via
// ParentAreaID for sub-zoning. The boundary must lie inside the owning
// warehouse boundary (and the parent area boundary when nested).
type StorageArea struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	WarehouseID  uint           `gorm:"not null;index" json:"warehouse_id"`
	ParentAreaID *uint          `gorm:"index" json:"parent_area_id,omitempty"`
	Code         string         `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name         string         `gorm:"not null" json:"name"`
	Position     *AreaPosition  `gorm:"type:varchar(1)" json:"position,omitempty"`
	Boundary     GeoPolygon     `gorm:"not null" json:"boundary"`
	Centroid     GeoPoint       `json:"centroid"`
	AreaM2       float64        `gorm:"default:0" json:"area_m2"`
	Active       bool           `gorm:"default:true" json:"active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Warehouse  *Warehouse        `gorm:"foreignKey:WarehouseID;constraint:OnDelete:CASCADE" json:"warehouse,omitempty"`
	ParentArea *StorageArea      `gorm:"foreignKey:ParentAreaID" json:"parent_area,omitempty"`
	SubAreas   []StorageArea     `gorm:"foreignKey:ParentAreaID" json:"sub_areas,omitempty"`
	Locations  []StorageLocation `gorm:"foreignKey:StorageAreaID" json:"locations,omitempty"`
}

// TableName specifies the table name for StorageArea model
func (StorageArea) TableName() string {
	return "storage_areas"
}
