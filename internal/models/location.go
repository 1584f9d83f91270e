package models

import (
	"time"

	"gorm.io/gorm"
)

// StorageLocation is the photo unit of the hierarchy: a fixed point inside
// a storage area, labelled with a physical QR code that photo-capture
// clients resolve against. Its geometry is a single GPS point, so AreaM2
// is always 0 and Centroid equals Coordinates.
type StorageLocation struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	StorageAreaID    uint           `gorm:"not null;index" json:"storage_area_id"`
	Code             string         `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name             string         `gorm:"not null" json:"name"`
	QRCode           string         `gorm:"type:varchar(20);not null;uniqueIndex" json:"qr_code"`
	Coordinates      GeoPoint       `gorm:"not null" json:"coordinates"`
	Centroid         GeoPoint       `json:"centroid"`
	AreaM2           float64        `gorm:"default:0" json:"area_m2"`
	PositionMetadata JSONB          `gorm:"type:jsonb;default:'{}'" json:"position_metadata"`
	LatestSessionID  *uint          `json:"latest_session_id,omitempty"` // owned by the photo pipeline
	Active           bool           `gorm:"default:true" json:"active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	StorageArea *StorageArea `gorm:"foreignKey:StorageAreaID;constraint:OnDelete:CASCADE" json:"storage_area,omitempty"`
	Bins        []StorageBin `gorm:"foreignKey:StorageLocationID" json:"bins,omitempty"`
}

// TableName specifies the table name for StorageLocation model
func (StorageLocation) TableName() string {
	return "storage_locations"
}
