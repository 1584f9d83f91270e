package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONB type for open key/value bags (position metadata and the like)
type JSONB map[string]interface{}

// Scan implements sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONB)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	result := make(JSONB)
	err := json.Unmarshal(bytes, &result)
	*j = result
	return err
}

// Value implements driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GormDBDataType keeps jsonb on PostgreSQL and plain text elsewhere
func (JSONB) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// Float returns a numeric field from the bag, tolerating json.Number-style
// decoding variants.
func (j JSONB) Float(key string) (float64, bool) {
	v, ok := j[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// String returns a string field from the bag.
func (j JSONB) String(key string) (string, bool) {
	s, ok := j[key].(string)
	return s, ok
}

// Known ML detection fields written into StorageBin.PositionMetadata by the
// vision pipeline. The bag stays opaque beyond these accessors since the ML
// schema evolves independently.
const (
	MetaConfidence    = "confidence"
	MetaBBox          = "bbox"
	MetaContainerType = "container_type"
	MetaModelVersion  = "ml_model_version"
	MetaDetectedAt    = "detected_at"
	MetaSegmentation  = "segmentation_mask"
)

// Confidence returns the ML detection confidence, if present.
func (j JSONB) Confidence() (float64, bool) {
	return j.Float(MetaConfidence)
}

// ContainerType returns the detected container kind, if present.
func (j JSONB) ContainerType() (string, bool) {
	return j.String(MetaContainerType)
}

// ModelVersion returns the producing ML model version, if present.
func (j JSONB) ModelVersion() (string, bool) {
	return j.String(MetaModelVersion)
}

// BBox returns the detection bounding box as [x, y, w, h], if present.
func (j JSONB) BBox() ([]float64, bool) {
	raw, ok := j[MetaBBox].([]interface{})
	if !ok {
		return nil, false
	}
	box := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, false
		}
		box = append(box, f)
	}
	return box, true
}

// GeoPolygon stores an orb.Polygon as a GeoJSON geometry document. The
// column shape stays PostGIS-importable without requiring the extension.
type GeoPolygon struct {
	orb.Polygon
}

// NewGeoPolygon wraps an orb polygon for persistence.
func NewGeoPolygon(p orb.Polygon) GeoPolygon {
	return GeoPolygon{Polygon: p}
}

// Scan implements sql.Scanner interface
func (g *GeoPolygon) Scan(value interface{}) error {
	geom, err := scanGeometry(value)
	if err != nil {
		return err
	}
	if geom == nil {
		g.Polygon = nil
		return nil
	}
	poly, ok := geom.(orb.Polygon)
	if !ok {
		return fmt.Errorf("expected Polygon column, got %s", geom.GeoJSONType())
	}
	g.Polygon = poly
	return nil
}

// Value implements driver.Valuer interface
func (g GeoPolygon) Value() (driver.Value, error) {
	if g.Polygon == nil {
		return nil, nil
	}
	return valueGeometry(g.Polygon)
}

// GormDataType gives schema parsing a default column type
func (GeoPolygon) GormDataType() string {
	return "text"
}

// GormDBDataType keeps jsonb on PostgreSQL and plain text elsewhere
func (GeoPolygon) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// MarshalJSON renders the polygon as a GeoJSON geometry object
func (g GeoPolygon) MarshalJSON() ([]byte, error) {
	if g.Polygon == nil {
		return []byte("null"), nil
	}
	return geojson.NewGeometry(g.Polygon).MarshalJSON()
}

// UnmarshalJSON accepts a GeoJSON geometry object
func (g *GeoPolygon) UnmarshalJSON(data []byte) error {
	return g.Scan(data)
}

// GeoPoint stores an orb.Point as a GeoJSON geometry document.
type GeoPoint struct {
	orb.Point
	set bool
}

// NewGeoPoint wraps an orb point for persistence.
func NewGeoPoint(p orb.Point) GeoPoint {
	return GeoPoint{Point: p, set: true}
}

// IsZero reports whether the point was never set (distinct from (0,0)).
func (g GeoPoint) IsZero() bool {
	return !g.set
}

// Scan implements sql.Scanner interface
func (g *GeoPoint) Scan(value interface{}) error {
	geom, err := scanGeometry(value)
	if err != nil {
		return err
	}
	if geom == nil {
		*g = GeoPoint{}
		return nil
	}
	pt, ok := geom.(orb.Point)
	if !ok {
		return fmt.Errorf("expected Point column, got %s", geom.GeoJSONType())
	}
	g.Point = pt
	g.set = true
	return nil
}

// Value implements driver.Valuer interface
func (g GeoPoint) Value() (driver.Value, error) {
	if !g.set {
		return nil, nil
	}
	return valueGeometry(g.Point)
}

// GormDataType gives schema parsing a default column type
func (GeoPoint) GormDataType() string {
	return "text"
}

// GormDBDataType keeps jsonb on PostgreSQL and plain text elsewhere
func (GeoPoint) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// MarshalJSON renders the point as a GeoJSON geometry object
func (g GeoPoint) MarshalJSON() ([]byte, error) {
	if !g.set {
		return []byte("null"), nil
	}
	return geojson.NewGeometry(g.Point).MarshalJSON()
}

// UnmarshalJSON accepts a GeoJSON geometry object
func (g *GeoPoint) UnmarshalJSON(data []byte) error {
	return g.Scan(data)
}

func scanGeometry(value interface{}) (orb.Geometry, error) {
	if value == nil {
		return nil, nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil, fmt.Errorf("failed to unmarshal geometry value: %v", value)
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		return nil, nil
	}
	geom, err := geojson.UnmarshalGeometry(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode GeoJSON geometry: %w", err)
	}
	return geom.Geometry(), nil
}

func valueGeometry(g orb.Geometry) (driver.Value, error) {
	b, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
