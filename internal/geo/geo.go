package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Default buffer radii in meters used when survey data supplies a line or
// point for a tier that requires a polygonal boundary.
const (
	DefaultLineBufferM  = 5.0
	DefaultPointBufferM = 10.0
)

// metersPerDegreeLat is a good enough WGS84 approximation for buffering
// survey features (facility scale, tens of meters).
const metersPerDegreeLat = 111320.0

// ValidationError reports a malformed or degenerate geometry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// Validate rejects geometries that cannot serve as hierarchy boundaries or
// coordinates: open or self-intersecting rings, zero-area polygons, and
// points outside world bounds.
func Validate(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Point:
		return validatePoint(v)
	case orb.Polygon:
		return validatePolygon(v)
	case orb.LineString:
		if len(v) < 2 {
			return &ValidationError{Reason: "line has fewer than 2 points"}
		}
		for _, p := range v {
			if err := validatePoint(p); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return &ValidationError{Reason: "geometry is nil"}
	default:
		return &ValidationError{Reason: fmt.Sprintf("unsupported geometry type %s", g.GeoJSONType())}
	}
}

func validatePoint(p orb.Point) error {
	if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
		return &ValidationError{Reason: "point has non-finite coordinates"}
	}
	if p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
		return &ValidationError{Reason: fmt.Sprintf("point (%f, %f) outside world bounds", p[0], p[1])}
	}
	return nil
}

func validatePolygon(poly orb.Polygon) error {
	if len(poly) == 0 {
		return &ValidationError{Reason: "polygon has no rings"}
	}
	outer := poly[0]
	if len(outer) < 4 {
		return &ValidationError{Reason: "outer ring has fewer than 4 points"}
	}
	if !outer.Closed() {
		return &ValidationError{Reason: "outer ring is not closed"}
	}
	for _, p := range outer {
		if err := validatePoint(p); err != nil {
			return err
		}
	}
	if math.Abs(planar.Area(poly)) == 0 {
		return &ValidationError{Reason: "polygon has zero area"}
	}
	if ringSelfIntersects(outer) {
		return &ValidationError{Reason: "outer ring self-intersects"}
	}
	return nil
}

// ringSelfIntersects checks every pair of non-adjacent segments. Survey
// boundaries are small (tens of vertices), so O(n^2) is fine.
func ringSelfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // last point repeats the first
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// Skip the adjacency between the last and first segment.
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsCross(r[i], r[i+1], r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a, b, c, d orb.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// Centroid returns the planar centroid of a polygon, or the point itself
// for point geometry.
func Centroid(g orb.Geometry) orb.Point {
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, _ := planar.CentroidArea(g)
	return c
}

// AreaM2 computes the geodesic (spheroidal) area of a polygon in square
// meters. Points and lines have no area.
func AreaM2(g orb.Geometry) float64 {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return math.Abs(orbgeo.Area(g))
	default:
		return 0.0
	}
}

// Contains reports whether inner lies entirely within outer, boundary
// inclusive. Polygons and lines are tested at every vertex and at every
// edge midpoint; the midpoints catch edges that cut across a concave
// stretch of the parent boundary between two contained vertices.
func Contains(outer orb.Polygon, inner orb.Geometry) bool {
	switch v := inner.(type) {
	case orb.Point:
		return polygonContains(outer, v)
	case orb.LineString:
		if len(v) == 0 {
			return false
		}
		return pathContained(outer, v, false)
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) == 0 {
			return false
		}
		return pathContained(outer, orb.LineString(v[0]), true)
	default:
		return false
	}
}

// pathContained checks each vertex of the path plus the midpoint of each
// segment. closed additionally samples the segment from the last vertex
// back to the first.
func pathContained(outer orb.Polygon, path orb.LineString, closed bool) bool {
	for _, p := range path {
		if !polygonContains(outer, p) {
			return false
		}
	}
	for i := 1; i < len(path); i++ {
		if !polygonContains(outer, midpoint(path[i-1], path[i])) {
			return false
		}
	}
	if closed && len(path) > 2 {
		if !polygonContains(outer, midpoint(path[len(path)-1], path[0])) {
			return false
		}
	}
	return true
}

func midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

func polygonContains(poly orb.Polygon, p orb.Point) bool {
	if planar.PolygonContains(poly, p) {
		return true
	}
	// Boundary-inclusive: a child vertex sitting exactly on the parent
	// boundary still counts as contained.
	for _, ring := range poly {
		if pointOnRing(ring, p) {
			return true
		}
	}
	return false
}

func pointOnRing(r orb.Ring, p orb.Point) bool {
	const eps = 1e-12
	for i := 0; i < len(r)-1; i++ {
		if pointOnSegment(r[i], r[i+1], p, eps) {
			return true
		}
	}
	return false
}

func pointOnSegment(a, b, p orb.Point, eps float64) bool {
	if math.Abs(cross(a, b, p)) > eps {
		return false
	}
	if p[0] < math.Min(a[0], b[0])-eps || p[0] > math.Max(a[0], b[0])+eps {
		return false
	}
	if p[1] < math.Min(a[1], b[1])-eps || p[1] > math.Max(a[1], b[1])+eps {
		return false
	}
	return true
}

// CoerceToPolygon converts whatever primitive the survey supplied into a
// polygon: polygons pass through, lines become a buffered corridor and
// points a buffered disc of radius bufferM.
func CoerceToPolygon(g orb.Geometry, bufferM float64) (orb.Polygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return v, nil
	case orb.LineString:
		if len(v) < 2 {
			return nil, &ValidationError{Reason: "cannot buffer a line with fewer than 2 points"}
		}
		return bufferLine(v, bufferM), nil
	case orb.Point:
		return bufferPoint(v, bufferM), nil
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("cannot coerce %s to polygon", g.GeoJSONType())}
	}
}

// RepresentativePoint reduces any geometry to a single point: points pass
// through, lines yield their midpoint vertex, polygons their centroid.
func RepresentativePoint(g orb.Geometry) (orb.Point, error) {
	switch v := g.(type) {
	case orb.Point:
		return v, nil
	case orb.LineString:
		if len(v) == 0 {
			return orb.Point{}, &ValidationError{Reason: "empty line has no representative point"}
		}
		return v[len(v)/2], nil
	case orb.Polygon:
		return Centroid(v), nil
	default:
		return orb.Point{}, &ValidationError{Reason: fmt.Sprintf("no representative point for %s", g.GeoJSONType())}
	}
}

// bufferPoint approximates a disc with a 16-gon.
func bufferPoint(p orb.Point, radiusM float64) orb.Polygon {
	const sides = 16
	dLat := radiusM / metersPerDegreeLat
	dLon := radiusM / (metersPerDegreeLat * math.Cos(p[1]*math.Pi/180))

	ring := make(orb.Ring, 0, sides+1)
	for i := 0; i < sides; i++ {
		angle := 2 * math.Pi * float64(i) / sides
		ring = append(ring, orb.Point{
			p[0] + dLon*math.Cos(angle),
			p[1] + dLat*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// bufferLine builds a corridor polygon by offsetting each segment
// perpendicular to its direction. Joints are not mitered; survey lines are
// short and nearly straight, so the approximation holds.
func bufferLine(ls orb.LineString, radiusM float64) orb.Polygon {
	midLat := ls[len(ls)/2][1]
	dLat := radiusM / metersPerDegreeLat
	dLon := radiusM / (metersPerDegreeLat * math.Cos(midLat*math.Pi/180))

	left := make([]orb.Point, 0, len(ls))
	right := make([]orb.Point, 0, len(ls))
	for i, p := range ls {
		var dir orb.Point
		if i == len(ls)-1 {
			dir = orb.Point{p[0] - ls[i-1][0], p[1] - ls[i-1][1]}
		} else {
			dir = orb.Point{ls[i+1][0] - p[0], ls[i+1][1] - p[1]}
		}
		norm := math.Hypot(dir[0], dir[1])
		if norm == 0 {
			norm = 1
		}
		// Unit normal, scaled per axis to meter offsets.
		nx := -dir[1] / norm
		ny := dir[0] / norm
		left = append(left, orb.Point{p[0] + nx*dLon, p[1] + ny*dLat})
		right = append(right, orb.Point{p[0] - nx*dLon, p[1] - ny*dLat})
	}

	ring := make(orb.Ring, 0, 2*len(ls)+1)
	ring = append(ring, left...)
	for i := len(right) - 1; i >= 0; i-- {
		ring = append(ring, right[i])
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
