package hierarchy

import (
	"github.com/paulmach/orb"

	"github.com/vivero-tech/viverogo/internal/geo"
	"github.com/vivero-tech/viverogo/internal/models"
)

// derivedBoundary is the output of the derivation engine for polygonal
// tiers: the coerced boundary plus its recomputed spatial attributes.
// Client-supplied centroid/area values never reach persistence.
type derivedBoundary struct {
	Boundary models.GeoPolygon
	Centroid models.GeoPoint
	AreaM2   float64
}

// deriveBoundary runs the geometry half of the write gate: coerce the raw
// primitive to a polygon (buffering lines/points), validate it, and
// recompute the derived fields.
func deriveBoundary(raw orb.Geometry, bufferM float64) (*derivedBoundary, error) {
	poly, err := geo.CoerceToPolygon(raw, bufferM)
	if err != nil {
		return nil, err
	}
	if err := geo.Validate(poly); err != nil {
		return nil, err
	}
	return &derivedBoundary{
		Boundary: models.NewGeoPolygon(poly),
		Centroid: models.NewGeoPoint(geo.Centroid(poly)),
		AreaM2:   geo.AreaM2(poly),
	}, nil
}

// derivePoint is the point-tier equivalent: reduce whatever primitive the
// caller supplied to a representative point and validate it. Locations
// always derive centroid = coordinates and area = 0.
func derivePoint(raw orb.Geometry) (models.GeoPoint, error) {
	pt, err := geo.RepresentativePoint(raw)
	if err != nil {
		return models.GeoPoint{}, err
	}
	if err := geo.Validate(pt); err != nil {
		return models.GeoPoint{}, err
	}
	return models.NewGeoPoint(pt), nil
}

// checkContainment asserts the child geometry lies inside the parent
// boundary. Callers must pass a parent boundary read within the same
// transaction as the child write; a cached or stale boundary would
// silently weaken the invariant.
func checkContainment(parent orb.Polygon, child orb.Geometry, parentID uint, childCode string) error {
	if !geo.Contains(parent, child) {
		return &SpatialContainmentViolation{ParentID: parentID, ChildCode: childCode}
	}
	return nil
}
