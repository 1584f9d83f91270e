package ingest

import (
	"regexp"
	"strings"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/models"
)

// Rules holds the name heuristics that classify raw survey features into
// hierarchy tiers and extract parent tokens. Naming conventions vary by
// survey vendor, so the rules are data, not hard logic: callers may swap
// keyword lists and patterns without touching the pipeline.
type Rules struct {
	// A name matching this pattern alone (nothing but the keyword and a
	// number) is a warehouse. "Nave 5" is a warehouse; "Nave 5 norte" is
	// a zone within one.
	WarehousePattern *regexp.Regexp

	// WarehouseKeyword marks a feature as warehouse-related at all.
	WarehouseKeyword string

	// AreaKeywords mark a feature as an area regardless of other content.
	AreaKeywords []string

	// LocationKeyword marks a feature as a location. Checked first: a
	// "Cantero somb 1" is a location even though "somb" also appears.
	LocationKeyword string

	// WarehouseToken extracts the warehouse number used for fuzzy parent
	// matching ("nave 5" -> 5).
	WarehouseToken *regexp.Regexp

	// AreaToken extracts the area keyword+number used for fuzzy parent
	// matching ("somb 1", "sombraculo 1" -> 1).
	AreaToken *regexp.Regexp

	// Positions maps name fragments to compass positions.
	Positions map[string]models.AreaPosition

	// Facilities maps name fragments to facility types; unmatched
	// warehouse names default to greenhouse.
	Facilities map[string]models.FacilityType
}

// DefaultRules returns the heuristics for the survey exports this pipeline
// was built against (Spanish-language nursery surveys: nave, sombraculo,
// cantero, madre, tunnel).
func DefaultRules() Rules {
	return Rules{
		WarehousePattern: regexp.MustCompile(`^\s*nave\s*\d+\s*$`),
		WarehouseKeyword: "nave",
		AreaKeywords:     []string{"madre", "tunnel", "sombraculo", "somb"},
		LocationKeyword:  "cantero",
		WarehouseToken:   regexp.MustCompile(`nave\s*(\d+)`),
		AreaToken:        regexp.MustCompile(`somb[a-z]*\s*(\d+)`),
		Positions: map[string]models.AreaPosition{
			"norte":  models.PositionNorth,
			"sur":    models.PositionSouth,
			"este":   models.PositionEast,
			"oeste":  models.PositionWest,
			"centro": models.PositionCenter,
		},
		Facilities: map[string]models.FacilityType{
			"somb":   models.FacilityShadehouse,
			"tunnel": models.FacilityTunnel,
			"campo":  models.FacilityOpenField,
		},
	}
}

// Classify derives the hierarchy tier of a feature from its free-text
// name. The second return value is false when no rule matches; such
// features are skipped, never treated as errors.
func (r Rules) Classify(name string) (hierarchy.Tier, bool) {
	lower := strings.ToLower(name)

	if r.LocationKeyword != "" && strings.Contains(lower, r.LocationKeyword) {
		return hierarchy.TierLocation, true
	}
	for _, kw := range r.AreaKeywords {
		if strings.Contains(lower, kw) {
			return hierarchy.TierArea, true
		}
	}
	if r.WarehouseKeyword != "" && strings.Contains(lower, r.WarehouseKeyword) {
		if r.WarehousePattern.MatchString(lower) {
			return hierarchy.TierWarehouse, true
		}
		// Qualified warehouse names ("Nave 5 norte") are zones inside
		// the warehouse they mention.
		return hierarchy.TierArea, true
	}
	return "", false
}

// Position extracts a compass position from the name, if any fragment
// matches.
func (r Rules) Position(name string) *models.AreaPosition {
	lower := strings.ToLower(name)
	for frag, pos := range r.Positions {
		if strings.Contains(lower, frag) {
			p := pos
			return &p
		}
	}
	return nil
}

// Facility derives a warehouse facility type from the name.
func (r Rules) Facility(name string) models.FacilityType {
	lower := strings.ToLower(name)
	for frag, ft := range r.Facilities {
		if strings.Contains(lower, frag) {
			return ft
		}
	}
	return models.FacilityGreenhouse
}

// warehouseNumber returns the warehouse number token, or "".
func (r Rules) warehouseNumber(name string) string {
	m := r.WarehouseToken.FindStringSubmatch(strings.ToLower(name))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// areaNumber returns the area keyword number token, or "".
func (r Rules) areaNumber(name string) string {
	m := r.AreaToken.FindStringSubmatch(strings.ToLower(name))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
