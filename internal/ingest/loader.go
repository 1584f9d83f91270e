package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/datatypes"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/models"
)

// Outcome statuses reported per feature.
const (
	StatusLoaded        = "loaded"
	StatusAlreadyExists = "already_exists"
	StatusSkipped       = "skipped"
	StatusFailed        = "failed"
)

// FeatureOutcome records what happened to one survey feature.
type FeatureOutcome struct {
	Index          int    `json:"index"`
	Name           string `json:"name"`
	Tier           string `json:"tier,omitempty"`
	Code           string `json:"code,omitempty"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	FallbackParent bool   `json:"fallback_parent,omitempty"`
}

// Summary is the structured result of one ingestion run.
type Summary struct {
	RunID            uuid.UUID        `json:"run_id"`
	LoadedWarehouses int              `json:"loaded_warehouses"`
	LoadedAreas      int              `json:"loaded_areas"`
	LoadedLocations  int              `json:"loaded_locations"`
	AlreadyExisted   int              `json:"already_existed"`
	Skipped          int              `json:"skipped"`
	Failed           int              `json:"failed"`
	FallbackMatches  int              `json:"fallback_matches"`
	LastIndex        int              `json:"last_index"` // -1 when nothing was processed
	Outcomes         []FeatureOutcome `json:"outcomes"`
}

// Loader turns raw survey GeoJSON into hierarchy nodes, idempotently.
// Re-running the same file produces zero new rows.
type Loader struct {
	store    *hierarchy.Store
	rules    Rules
	qrPrefix string
}

// NewLoader creates a loader with the given matching rules.
func NewLoader(store *hierarchy.Store, rules Rules) *Loader {
	return &Loader{store: store, rules: rules, qrPrefix: DefaultQRPrefix}
}

// SetQRPrefix overrides the QR allocation prefix. Empty input keeps the
// current prefix.
func (l *Loader) SetQRPrefix(prefix string) {
	if prefix != "" {
		l.qrPrefix = prefix
	}
}

type rawFeature struct {
	index    int
	name     string
	tier     hierarchy.Tier
	geometry orb.Geometry
}

// Run ingests a GeoJSON FeatureCollection. Per-feature failures are logged
// and recorded in the summary; only infrastructure-level failures (bad
// collection, storage down, cancellation) return a non-nil error. On
// cancellation the summary still reports everything committed so far plus
// the last processed index, so a retry can resume.
func (l *Loader) Run(ctx context.Context, data []byte) (*Summary, error) {
	return l.RunNamed(ctx, data, "")
}

// RunNamed is Run with a source name (typically the survey file name)
// recorded in the run audit table.
func (l *Loader) RunNamed(ctx context.Context, data []byte, source string) (*Summary, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	summary := &Summary{RunID: uuid.New(), LastIndex: -1}
	log.Printf("🗺️  Ingestion run %s: %d features", summary.RunID, len(fc.Features))

	var warehouses, areas, locations []rawFeature
	for i, f := range fc.Features {
		name := featureName(f)
		if name == "" {
			l.record(summary, FeatureOutcome{Index: i, Status: StatusSkipped, Reason: "feature has no name property"})
			continue
		}
		if f.Geometry == nil {
			l.record(summary, FeatureOutcome{Index: i, Name: name, Status: StatusSkipped, Reason: "feature has no geometry"})
			continue
		}
		tier, ok := l.rules.Classify(name)
		if !ok {
			l.record(summary, FeatureOutcome{Index: i, Name: name, Status: StatusSkipped, Reason: "no classification rule matched"})
			continue
		}
		rf := rawFeature{index: i, name: name, tier: tier, geometry: f.Geometry}
		switch tier {
		case hierarchy.TierWarehouse:
			warehouses = append(warehouses, rf)
		case hierarchy.TierArea:
			areas = append(areas, rf)
		case hierarchy.TierLocation:
			locations = append(locations, rf)
		}
	}

	// Tier passes in file order: parents committed earlier in this run
	// are visible to later features.
	for _, rf := range warehouses {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		l.ingestWarehouse(ctx, summary, rf)
	}
	for _, rf := range areas {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		l.ingestArea(ctx, summary, rf)
	}

	if len(locations) > 0 {
		qrCodes, err := l.store.ListQRCodes(ctx)
		if err != nil {
			return summary, fmt.Errorf("failed to read QR namespace: %w", err)
		}
		nextQR := maxQRSuffix(qrCodes, l.qrPrefix) + 1
		for _, rf := range locations {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			nextQR = l.ingestLocation(ctx, summary, rf, nextQR)
		}
	}

	log.Printf("✅ Ingestion run %s done: %d warehouses, %d areas, %d locations loaded, %d existing, %d skipped, %d failed",
		summary.RunID, summary.LoadedWarehouses, summary.LoadedAreas, summary.LoadedLocations,
		summary.AlreadyExisted, summary.Skipped, summary.Failed)

	l.recordRun(ctx, summary, source)
	return summary, nil
}

// recordRun writes the audit row for a completed run. A failed write does
// not fail the run itself, the hierarchy changes are already committed.
func (l *Loader) recordRun(ctx context.Context, summary *Summary, source string) {
	outcomes, err := json.Marshal(summary.Outcomes)
	if err != nil {
		log.Printf("⚠️  Could not serialize run outcomes: %v", err)
		outcomes = []byte("[]")
	}
	run := models.IngestRun{
		RunID:            summary.RunID,
		SourceName:       source,
		LoadedWarehouses: summary.LoadedWarehouses,
		LoadedAreas:      summary.LoadedAreas,
		LoadedLocations:  summary.LoadedLocations,
		AlreadyExisted:   summary.AlreadyExisted,
		Skipped:          summary.Skipped,
		Failed:           summary.Failed,
		FallbackMatches:  summary.FallbackMatches,
		Outcomes:         datatypes.JSON(outcomes),
	}
	if err := l.store.DB().WithContext(ctx).Create(&run).Error; err != nil {
		log.Printf("⚠️  Could not record ingestion run %s: %v", summary.RunID, err)
	}
}

// RecentRuns returns the newest ingestion audit rows, newest first.
func (l *Loader) RecentRuns(ctx context.Context, limit int) ([]models.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.IngestRun
	err := l.store.DB().WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func featureName(f *geojson.Feature) string {
	if name := f.Properties.MustString("Name", ""); name != "" {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(f.Properties.MustString("name", ""))
}

func (l *Loader) record(s *Summary, o FeatureOutcome) {
	switch o.Status {
	case StatusLoaded:
		s.LastIndex = o.Index
	case StatusAlreadyExists:
		s.AlreadyExisted++
		s.LastIndex = o.Index
	case StatusSkipped:
		s.Skipped++
		log.Printf("⚠️  Skipping feature %d (%q): %s", o.Index, o.Name, o.Reason)
	case StatusFailed:
		s.Failed++
		log.Printf("❌ Feature %d (%q) failed: %s", o.Index, o.Name, o.Reason)
	}
	if o.FallbackParent {
		s.FallbackMatches++
		log.Printf("⚠️  Feature %d (%q): parent assigned by fallback, review recommended", o.Index, o.Name)
	}
	s.Outcomes = append(s.Outcomes, o)
}

func (l *Loader) ingestWarehouse(ctx context.Context, s *Summary, rf rawFeature) {
	code := hierarchy.CodeSegment(rf.name, hierarchy.TierWarehouse.MaxCodeLen())
	out := FeatureOutcome{Index: rf.index, Name: rf.name, Tier: string(rf.tier), Code: code}

	existing, err := l.store.FindWarehouseByCode(ctx, code)
	if err != nil {
		out.Status, out.Reason = StatusFailed, err.Error()
		l.record(s, out)
		return
	}
	if existing != nil {
		out.Status, out.Reason = StatusAlreadyExists, "warehouse already exists"
		l.record(s, out)
		return
	}

	_, err = l.store.CreateWarehouse(ctx, hierarchy.WarehouseInput{
		Code:         code,
		Name:         rf.name,
		FacilityType: l.rules.Facility(rf.name),
		Boundary:     rf.geometry,
	})
	if err != nil {
		l.record(s, l.writeOutcome(out, err))
		return
	}
	s.LoadedWarehouses++
	out.Status = StatusLoaded
	l.record(s, out)
}

func (l *Loader) ingestArea(ctx context.Context, s *Summary, rf rawFeature) {
	out := FeatureOutcome{Index: rf.index, Name: rf.name, Tier: string(rf.tier)}

	parent, fallback, err := l.matchWarehouse(ctx, rf.name)
	if err != nil {
		out.Status, out.Reason = StatusFailed, err.Error()
		l.record(s, out)
		return
	}
	if parent == nil {
		out.Status, out.Reason = StatusFailed, (&hierarchy.ParentNotFoundError{Tier: hierarchy.TierWarehouse, Ref: rf.name}).Error()
		l.record(s, out)
		return
	}
	out.FallbackParent = fallback

	segMax := hierarchy.TierArea.MaxCodeLen() - len(parent.Code) - 1
	seg := l.areaSegment(rf.name, segMax)
	if seg == "" {
		out.Status, out.Reason = StatusFailed, "name yields an empty code segment"
		l.record(s, out)
		return
	}
	code := parent.Code + "-" + seg
	out.Code = code

	existing, err := l.store.FindAreaByCode(ctx, code)
	if err != nil {
		out.Status, out.Reason = StatusFailed, err.Error()
		l.record(s, out)
		return
	}
	if existing != nil {
		out.Status, out.Reason = StatusAlreadyExists, "area already exists"
		l.record(s, out)
		return
	}

	_, err = l.store.CreateArea(ctx, hierarchy.AreaInput{
		WarehouseID: parent.ID,
		Code:        code,
		Name:        rf.name,
		Position:    l.rules.Position(rf.name),
		Boundary:    rf.geometry,
	})
	if err != nil {
		l.record(s, l.writeOutcome(out, err))
		return
	}
	s.LoadedAreas++
	out.Status = StatusLoaded
	l.record(s, out)
}

func (l *Loader) ingestLocation(ctx context.Context, s *Summary, rf rawFeature, nextQR int) int {
	out := FeatureOutcome{Index: rf.index, Name: rf.name, Tier: string(rf.tier)}

	parent, fallback, err := l.matchArea(ctx, rf.name)
	if err != nil {
		out.Status, out.Reason = StatusFailed, err.Error()
		l.record(s, out)
		return nextQR
	}
	if parent == nil {
		out.Status, out.Reason = StatusFailed, (&hierarchy.ParentNotFoundError{Tier: hierarchy.TierArea, Ref: rf.name}).Error()
		l.record(s, out)
		return nextQR
	}
	out.FallbackParent = fallback

	segMax := hierarchy.TierLocation.MaxCodeLen() - len(parent.Code) - 1
	seg := hierarchy.CodeSegment(rf.name, segMax)
	if seg == "" {
		out.Status, out.Reason = StatusFailed, "name yields an empty code segment"
		l.record(s, out)
		return nextQR
	}
	code := parent.Code + "-" + seg
	out.Code = code

	existing, err := l.store.FindLocationByCode(ctx, code)
	if err != nil {
		out.Status, out.Reason = StatusFailed, err.Error()
		l.record(s, out)
		return nextQR
	}
	if existing != nil {
		out.Status, out.Reason = StatusAlreadyExists, "location already exists"
		l.record(s, out)
		return nextQR
	}

	// QR numbering and code derivation are independent namespaces that
	// can drift if a prior run died between allocation and commit, so
	// each candidate number is re-checked right before the insert.
	const maxQRAttempts = 5
	for attempt := 0; attempt < maxQRAttempts; attempt++ {
		qr := fmt.Sprintf("%s%0*d", l.qrPrefix, qrSuffixDigits, nextQR)
		taken, err := l.store.FindLocationByQR(ctx, qr)
		if err != nil {
			out.Status, out.Reason = StatusFailed, err.Error()
			l.record(s, out)
			return nextQR
		}
		if taken != nil {
			nextQR++
			continue
		}

		_, err = l.store.CreateLocation(ctx, hierarchy.LocationInput{
			StorageAreaID: parent.ID,
			Code:          code,
			Name:          rf.name,
			QRCode:        qr,
			Coordinates:   rf.geometry,
		})
		if err == nil {
			s.LoadedLocations++
			out.Status = StatusLoaded
			l.record(s, out)
			return nextQR + 1
		}

		var dup *hierarchy.DuplicateKeyError
		if errors.As(err, &dup) && dup.Key == "qr_code" {
			// Lost a concurrent race on the QR namespace; take the
			// next number.
			nextQR++
			continue
		}
		l.record(s, l.writeOutcome(out, err))
		return nextQR
	}

	out.Status, out.Reason = StatusFailed, "could not allocate a free QR code"
	l.record(s, out)
	return nextQR
}

// writeOutcome maps a store error to a feature outcome. Duplicate keys are
// idempotent success; everything else is a per-feature failure.
func (l *Loader) writeOutcome(out FeatureOutcome, err error) FeatureOutcome {
	var dup *hierarchy.DuplicateKeyError
	if errors.As(err, &dup) {
		out.Status = StatusAlreadyExists
		out.Reason = dup.Error()
		return out
	}
	out.Status = StatusFailed
	out.Reason = err.Error()
	return out
}

// matchWarehouse resolves an area feature to its warehouse: positive match
// on the warehouse-number token, else fallback to the first warehouse.
// The fallback flag is recorded for operator review, never silent.
func (l *Loader) matchWarehouse(ctx context.Context, name string) (*models.Warehouse, bool, error) {
	all, err := l.store.ListWarehouses(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(all) == 0 {
		return nil, false, nil
	}
	if num := l.rules.warehouseNumber(name); num != "" {
		for i := range all {
			if l.rules.warehouseNumber(all[i].Name) == num {
				return &all[i], false, nil
			}
		}
	}
	return &all[0], true, nil
}

// matchArea resolves a location feature to its area: positive match on the
// area-keyword token first, then on the warehouse-number token, else
// fallback to the first area.
func (l *Loader) matchArea(ctx context.Context, name string) (*models.StorageArea, bool, error) {
	all, err := l.store.ListAreas(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	if len(all) == 0 {
		return nil, false, nil
	}
	if num := l.rules.areaNumber(name); num != "" {
		for i := range all {
			if l.rules.areaNumber(all[i].Name) == num {
				return &all[i], false, nil
			}
		}
	}
	if num := l.rules.warehouseNumber(name); num != "" {
		for i := range all {
			if l.rules.warehouseNumber(all[i].Name) == num {
				return &all[i], false, nil
			}
		}
	}
	return &all[0], true, nil
}

// areaSegment builds the area's own code segment: the feature name with
// the warehouse token removed ("Nave 5 norte" -> NORTE), falling back to
// the full sanitized name when nothing remains.
func (l *Loader) areaSegment(name string, maxLen int) string {
	lower := strings.ToLower(name)
	if loc := l.rules.WarehouseToken.FindStringIndex(lower); loc != nil {
		stripped := name[:loc[0]] + name[loc[1]:]
		if seg := hierarchy.CodeSegment(stripped, maxLen); seg != "" {
			return seg
		}
	}
	return hierarchy.CodeSegment(name, maxLen)
}
