package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vivero-tech/viverogo/internal/models"
)

// testStore opens an isolated in-memory database per test.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&models.Warehouse{},
		&models.StorageArea{},
		&models.StorageLocation{},
		&models.StorageBin{},
		&models.StorageBinType{},
	)
	if err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return NewStore(db)
}

func square(lon, lat, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{lon, lat},
		{lon + size, lat},
		{lon + size, lat + size},
		{lon, lat + size},
		{lon, lat},
	}}
}

// seedHierarchy creates warehouse -> area for tests that need parents.
func seedHierarchy(t *testing.T, s *Store) (*models.Warehouse, *models.StorageArea) {
	t.Helper()
	ctx := context.Background()
	wh, err := s.CreateWarehouse(ctx, WarehouseInput{
		Code:     "NAVE1",
		Name:     "Nave 1",
		Boundary: square(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("seed warehouse: %v", err)
	}
	area, err := s.CreateArea(ctx, AreaInput{
		WarehouseID: wh.ID,
		Code:        "NAVE1-NORTE",
		Name:        "Nave 1 norte",
		Boundary:    square(0.1, 0.1, 0.5),
	})
	if err != nil {
		t.Fatalf("seed area: %v", err)
	}
	return wh, area
}

func TestCreateWarehouseDerivesFields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	wh, err := s.CreateWarehouse(ctx, WarehouseInput{
		Code:     "nave1",
		Name:     "Nave 1",
		Boundary: square(10, 20, 2),
	})
	if err != nil {
		t.Fatalf("CreateWarehouse failed: %v", err)
	}
	if wh.Code != "NAVE1" {
		t.Errorf("code not normalized: %q", wh.Code)
	}
	c := wh.Centroid.Point
	if math.Abs(c[0]-11) > 1e-9 || math.Abs(c[1]-21) > 1e-9 {
		t.Errorf("derived centroid = %v, want (11, 21)", c)
	}
	if wh.AreaM2 <= 0 {
		t.Errorf("derived area = %f, want > 0", wh.AreaM2)
	}

	// Round-trip through the database must preserve derived fields.
	got, err := s.FindWarehouseByCode(ctx, "NAVE1")
	if err != nil {
		t.Fatalf("FindWarehouseByCode failed: %v", err)
	}
	if got == nil {
		t.Fatal("warehouse not found after create")
	}
	if got.AreaM2 != wh.AreaM2 {
		t.Errorf("persisted area %f != derived %f", got.AreaM2, wh.AreaM2)
	}
	if len(got.Boundary.Polygon) == 0 {
		t.Error("boundary not persisted")
	}
}

func TestCreateWarehouseDuplicateCode(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := WarehouseInput{Code: "NAVE1", Name: "Nave 1", Boundary: square(0, 0, 1)}
	if _, err := s.CreateWarehouse(ctx, in); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := s.CreateWarehouse(ctx, in)
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("second create error = %v, want *DuplicateKeyError", err)
	}
	if dup.Key != "code" {
		t.Errorf("duplicate key = %q, want code", dup.Key)
	}
}

func TestCreateAreaContainment(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	wh, _ := seedHierarchy(t, s)

	// Fully outside the warehouse boundary.
	_, err := s.CreateArea(ctx, AreaInput{
		WarehouseID: wh.ID,
		Code:        "NAVE1-SUR",
		Name:        "Nave 1 sur",
		Boundary:    square(5, 5, 1),
	})
	var scv *SpatialContainmentViolation
	if !errors.As(err, &scv) {
		t.Fatalf("error = %v, want *SpatialContainmentViolation", err)
	}
	if scv.ParentID != wh.ID || scv.ChildCode != "NAVE1-SUR" {
		t.Errorf("violation details = %+v", scv)
	}

	// Straddling the boundary is also a violation.
	_, err = s.CreateArea(ctx, AreaInput{
		WarehouseID: wh.ID,
		Code:        "NAVE1-ESTE",
		Name:        "Nave 1 este",
		Boundary:    square(0.8, 0.8, 0.5),
	})
	if !errors.As(err, &scv) {
		t.Fatalf("straddling boundary: error = %v, want *SpatialContainmentViolation", err)
	}
}

func TestCreateAreaMissingParent(t *testing.T) {
	s := testStore(t)
	_, err := s.CreateArea(context.Background(), AreaInput{
		WarehouseID: 999,
		Code:        "NAVE9-NORTE",
		Name:        "orphan",
		Boundary:    square(0, 0, 1),
	})
	var pnf *ParentNotFoundError
	if !errors.As(err, &pnf) {
		t.Fatalf("error = %v, want *ParentNotFoundError", err)
	}
}

func TestNestedAreaContainment(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	wh, parent := seedHierarchy(t, s)

	// Inside the warehouse but outside the parent area.
	_, err := s.CreateArea(ctx, AreaInput{
		WarehouseID:  wh.ID,
		ParentAreaID: &parent.ID,
		Code:         "NAVE1-NORTE_A",
		Name:         "sub-zone A",
		Boundary:     square(0.7, 0.7, 0.2),
	})
	var scv *SpatialContainmentViolation
	if !errors.As(err, &scv) {
		t.Fatalf("error = %v, want *SpatialContainmentViolation against parent area", err)
	}

	// Inside both.
	sub, err := s.CreateArea(ctx, AreaInput{
		WarehouseID:  wh.ID,
		ParentAreaID: &parent.ID,
		Code:         "NAVE1-NORTE_B",
		Name:         "sub-zone B",
		Boundary:     square(0.2, 0.2, 0.2),
	})
	if err != nil {
		t.Fatalf("nested create failed: %v", err)
	}
	if sub.ParentAreaID == nil || *sub.ParentAreaID != parent.ID {
		t.Error("parent area linkage lost")
	}
}

func TestUpdateWarehouseBoundaryRechecksChildren(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	wh, _ := seedHierarchy(t, s)

	// Shrinking the warehouse so the area no longer fits must fail.
	_, err := s.UpdateWarehouse(ctx, wh.ID, WarehousePatch{Boundary: square(0, 0, 0.2)})
	var scv *SpatialContainmentViolation
	if !errors.As(err, &scv) {
		t.Fatalf("shrink error = %v, want *SpatialContainmentViolation", err)
	}

	// Growing is fine, and derived fields are recomputed.
	updated, err := s.UpdateWarehouse(ctx, wh.ID, WarehousePatch{Boundary: square(0, 0, 2)})
	if err != nil {
		t.Fatalf("grow failed: %v", err)
	}
	if updated.AreaM2 <= wh.AreaM2 {
		t.Errorf("area not recomputed: %f <= %f", updated.AreaM2, wh.AreaM2)
	}
}

func TestCreateLocation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, area := seedHierarchy(t, s)

	loc, err := s.CreateLocation(ctx, LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000001",
		Coordinates:   orb.Point{0.3, 0.3},
	})
	if err != nil {
		t.Fatalf("CreateLocation failed: %v", err)
	}
	if loc.AreaM2 != 0 {
		t.Errorf("point location area = %f, want 0", loc.AreaM2)
	}
	if loc.Centroid.Point != loc.Coordinates.Point {
		t.Error("centroid must equal coordinates for point geometry")
	}

	// Outside the area boundary.
	_, err = s.CreateLocation(ctx, LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C2",
		Name:          "Cantero 2",
		QRCode:        "LOC000002",
		Coordinates:   orb.Point{0.9, 0.9},
	})
	var scv *SpatialContainmentViolation
	if !errors.As(err, &scv) {
		t.Fatalf("error = %v, want *SpatialContainmentViolation", err)
	}
}

func TestCreateLocationFromLineString(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, area := seedHierarchy(t, s)

	// A LineString location degenerates to its representative point.
	loc, err := s.CreateLocation(ctx, LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000001",
		Coordinates:   orb.LineString{{0.2, 0.3}, {0.3, 0.3}, {0.4, 0.3}},
	})
	if err != nil {
		t.Fatalf("CreateLocation from line failed: %v", err)
	}
	if loc.Coordinates.Point != (orb.Point{0.3, 0.3}) {
		t.Errorf("representative point = %v, want (0.3, 0.3)", loc.Coordinates.Point)
	}
	if loc.AreaM2 != 0 {
		t.Errorf("area = %f, want 0", loc.AreaM2)
	}
}

func TestLocationQRNamespace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, area := seedHierarchy(t, s)

	first := LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000001",
		Coordinates:   orb.Point{0.3, 0.3},
	}
	if _, err := s.CreateLocation(ctx, first); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	// Same QR, different code: collision in the QR namespace.
	second := first
	second.Code = "NAVE1-NORTE-C2"
	_, err := s.CreateLocation(ctx, second)
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want *DuplicateKeyError", err)
	}
	if dup.Key != "qr_code" {
		t.Errorf("duplicate key = %q, want qr_code", dup.Key)
	}

	// QR length bounds.
	bad := first
	bad.Code = "NAVE1-NORTE-C3"
	bad.QRCode = "SHORT"
	if _, err := s.CreateLocation(ctx, bad); err == nil {
		t.Error("5-char QR code accepted, want length error")
	}
}

func TestLocationDuplicateCodeClassification(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, area := seedHierarchy(t, s)

	first := LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000001",
		Coordinates:   orb.Point{0.3, 0.3},
	}
	if _, err := s.CreateLocation(ctx, first); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	// Same code, different QR: the collision must be reported on the
	// code namespace. Misreporting it as a QR collision would make the
	// ingestion loader burn its retry budget bumping QR numbers against
	// a code that can never insert.
	second := first
	second.QRCode = "LOC000099"
	_, err := s.CreateLocation(ctx, second)
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want *DuplicateKeyError", err)
	}
	if dup.Key != "code" {
		t.Errorf("duplicate key = %q, want code", dup.Key)
	}
	if dup.Value != "NAVE1-NORTE-C1" {
		t.Errorf("duplicate value = %q, want NAVE1-NORTE-C1", dup.Value)
	}
}

func TestFindLocationByQR(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, area := seedHierarchy(t, s)

	if _, err := s.CreateLocation(ctx, LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000042",
		Coordinates:   orb.Point{0.3, 0.3},
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	loc, err := s.FindLocationByQR(ctx, "LOC000042")
	if err != nil {
		t.Fatalf("FindLocationByQR failed: %v", err)
	}
	if loc == nil || loc.Code != "NAVE1-NORTE-C1" {
		t.Errorf("lookup by QR = %+v", loc)
	}

	missing, err := s.FindLocationByQR(ctx, "LOC999999")
	if err != nil {
		t.Fatalf("missing lookup errored: %v", err)
	}
	if missing != nil {
		t.Error("lookup of unknown QR returned a row")
	}
}

func TestCascadeDeleteWarehouse(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	wh, area := seedHierarchy(t, s)

	loc, err := s.CreateLocation(ctx, LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000001",
		Coordinates:   orb.Point{0.3, 0.3},
	})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	bin, err := s.CreateBin(ctx, BinInput{
		StorageLocationID: loc.ID,
		Code:              "NAVE1-NORTE-C1-B1",
		Label:             "Tray 1",
	})
	if err != nil {
		t.Fatalf("create bin: %v", err)
	}

	if err := s.DeleteWarehouse(ctx, wh.ID); err != nil {
		t.Fatalf("DeleteWarehouse failed: %v", err)
	}

	if got, _ := s.FindWarehouseByCode(ctx, "NAVE1"); got != nil {
		t.Error("warehouse still present after delete")
	}
	if got, _ := s.FindAreaByCode(ctx, "NAVE1-NORTE"); got != nil {
		t.Error("area survived cascade")
	}
	if got, _ := s.FindLocationByCode(ctx, "NAVE1-NORTE-C1"); got != nil {
		t.Error("location survived cascade")
	}
	if got, _ := s.FindBinByCode(ctx, bin.Code); got != nil {
		t.Error("bin survived cascade")
	}
}

func TestRestrictDeleteBinType(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, area := seedHierarchy(t, s)

	rows, cols := 10, 20
	bt, err := s.CreateBinType(ctx, BinTypeInput{
		Name:     "Plug tray 200",
		Category: models.CategoryPlug,
		IsGrid:   true,
		Rows:     &rows,
		Columns:  &cols,
	})
	if err != nil {
		t.Fatalf("create bin type: %v", err)
	}
	loc, err := s.CreateLocation(ctx, LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000001",
		Coordinates:   orb.Point{0.3, 0.3},
	})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	bin, err := s.CreateBin(ctx, BinInput{
		StorageLocationID: loc.ID,
		StorageBinTypeID:  &bt.ID,
		Code:              "NAVE1-NORTE-C1-B1",
	})
	if err != nil {
		t.Fatalf("create bin: %v", err)
	}

	err = s.DeleteBinType(ctx, bt.ID)
	var ref *ReferencedByError
	if !errors.As(err, &ref) {
		t.Fatalf("error = %v, want *ReferencedByError", err)
	}
	if ref.RefCount != 1 {
		t.Errorf("ref count = %d, want 1", ref.RefCount)
	}

	// After removing the referencing bin the delete goes through.
	if err := s.DeleteBin(ctx, bin.ID); err != nil {
		t.Fatalf("delete bin: %v", err)
	}
	if err := s.DeleteBinType(ctx, bt.ID); err != nil {
		t.Fatalf("delete of unreferenced type failed: %v", err)
	}
}

func TestGridBinTypeInvariant(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.CreateBinType(ctx, BinTypeInput{
		Name:     "Broken tray",
		Category: models.CategorySeedlingTray,
		IsGrid:   true, // rows/columns missing
	})
	if err == nil {
		t.Error("grid type without rows/columns accepted")
	}

	if _, err := s.CreateBinType(ctx, BinTypeInput{
		Name:     "Round pot 20",
		Category: models.CategoryPot,
	}); err != nil {
		t.Errorf("non-grid type without dimensions rejected: %v", err)
	}
}

func TestFindBinsByMetadata(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, area := seedHierarchy(t, s)

	loc, err := s.CreateLocation(ctx, LocationInput{
		StorageAreaID: area.ID,
		Code:          "NAVE1-NORTE-C1",
		Name:          "Cantero 1",
		QRCode:        "LOC000001",
		Coordinates:   orb.Point{0.3, 0.3},
	})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}

	seed := []struct {
		code string
		meta models.JSONB
	}{
		{"NAVE1-NORTE-C1-B1", models.JSONB{"confidence": 0.95, "container_type": "box"}},
		{"NAVE1-NORTE-C1-B2", models.JSONB{"confidence": 0.40, "container_type": "box"}},
		{"NAVE1-NORTE-C1-B3", models.JSONB{"confidence": 0.90, "container_type": "pot"}},
	}
	for _, b := range seed {
		if _, err := s.CreateBin(ctx, BinInput{
			StorageLocationID: loc.ID,
			Code:              b.code,
			PositionMetadata:  b.meta,
		}); err != nil {
			t.Fatalf("create bin %s: %v", b.code, err)
		}
	}

	min := 0.8
	bins, err := s.FindBinsByMetadata(ctx, &min, "box")
	if err != nil {
		t.Fatalf("FindBinsByMetadata failed: %v", err)
	}
	if len(bins) != 1 || bins[0].Code != "NAVE1-NORTE-C1-B1" {
		t.Errorf("filtered bins = %+v, want only B1", bins)
	}

	bins, err = s.FindBinsByMetadata(ctx, &min, "")
	if err != nil {
		t.Fatalf("confidence-only query failed: %v", err)
	}
	if len(bins) != 2 {
		t.Errorf("confidence >= 0.8 returned %d bins, want 2", len(bins))
	}

	conf, ok := bins[0].PositionMetadata.Confidence()
	if !ok || conf < 0.8 {
		t.Errorf("metadata accessor: confidence = %f, %v", conf, ok)
	}
}

func TestResolvePoint(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	wh, area := seedHierarchy(t, s)

	gotWh, gotArea, err := s.ResolvePoint(ctx, orb.Point{0.3, 0.3})
	if err != nil {
		t.Fatalf("ResolvePoint failed: %v", err)
	}
	if gotWh == nil || gotWh.ID != wh.ID {
		t.Errorf("resolved warehouse = %+v, want id %d", gotWh, wh.ID)
	}
	if gotArea == nil || gotArea.ID != area.ID {
		t.Errorf("resolved area = %+v, want id %d", gotArea, area.ID)
	}

	// Inside the warehouse but outside any area.
	gotWh, gotArea, err = s.ResolvePoint(ctx, orb.Point{0.05, 0.05})
	if err != nil {
		t.Fatalf("ResolvePoint failed: %v", err)
	}
	if gotWh == nil || gotArea != nil {
		t.Errorf("expected warehouse-only match, got wh=%v area=%v", gotWh, gotArea)
	}

	// Nowhere.
	gotWh, _, err = s.ResolvePoint(ctx, orb.Point{50, 50})
	if err != nil {
		t.Fatalf("ResolvePoint failed: %v", err)
	}
	if gotWh != nil {
		t.Error("point far outside matched a warehouse")
	}
}
