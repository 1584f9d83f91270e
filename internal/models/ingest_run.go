package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// IngestRun is the audit record of one survey ingestion pass. Outcomes
// carries the full per-feature report as raw JSON for later review.
type IngestRun struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	RunID            uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"run_id"`
	SourceName       string         `gorm:"type:varchar(255)" json:"source_name"`
	LoadedWarehouses int            `json:"loaded_warehouses"`
	LoadedAreas      int            `json:"loaded_areas"`
	LoadedLocations  int            `json:"loaded_locations"`
	AlreadyExisted   int            `json:"already_existed"`
	Skipped          int            `json:"skipped"`
	Failed           int            `json:"failed"`
	FallbackMatches  int            `json:"fallback_matches"`
	Outcomes         datatypes.JSON `json:"outcomes"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TableName specifies the table name for IngestRun model
func (IngestRun) TableName() string {
	return "ingest_runs"
}
