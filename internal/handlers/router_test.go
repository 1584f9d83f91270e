package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/ingest"
	"github.com/vivero-tech/viverogo/internal/models"
	"github.com/vivero-tech/viverogo/internal/services/printer"
)

func testRouter(t *testing.T) *Router {
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
		&models.IngestRun{},
	)
	if err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	store := hierarchy.NewStore(db)
	loader := ingest.NewLoader(store, ingest.DefaultRules())
	return NewRouter(store, loader, printer.DefaultSheetConfig("Test Facility", 3, 8))
}

func doJSON(t *testing.T, r *Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func polygonJSON(lon, lat, size float64) map[string]interface{} {
	return map[string]interface{}{
		"type": "Polygon",
		"coordinates": [][][2]float64{{
			{lon, lat},
			{lon + size, lat},
			{lon + size, lat + size},
			{lon, lat + size},
			{lon, lat},
		}},
	}
}

func TestWarehouseEndpoints(t *testing.T) {
	r := testRouter(t)

	rec := doJSON(t, r, "POST", "/api/warehouses", map[string]interface{}{
		"code":          "NAVE1",
		"name":          "Nave 1",
		"facility_type": "greenhouse",
		"boundary":      polygonJSON(0, 0, 1),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var wh models.Warehouse
	if err := json.Unmarshal(rec.Body.Bytes(), &wh); err != nil {
		t.Fatalf("decode created warehouse: %v", err)
	}
	if wh.AreaM2 <= 0 {
		t.Errorf("derived area = %f, want > 0", wh.AreaM2)
	}

	// Duplicate code is a conflict
	rec = doJSON(t, r, "POST", "/api/warehouses", map[string]interface{}{
		"code":     "NAVE1",
		"name":     "Nave 1 again",
		"boundary": polygonJSON(0, 0, 1),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, r, "GET", fmt.Sprintf("/api/warehouses/%d", wh.ID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = doJSON(t, r, "GET", "/api/warehouses/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing warehouse status = %d, want 404", rec.Code)
	}
}

func TestAreaContainmentOverHTTP(t *testing.T) {
	r := testRouter(t)

	rec := doJSON(t, r, "POST", "/api/warehouses", map[string]interface{}{
		"code":     "NAVE1",
		"name":     "Nave 1",
		"boundary": polygonJSON(0, 0, 1),
	})
	var wh models.Warehouse
	json.Unmarshal(rec.Body.Bytes(), &wh)

	// An area sticking out of the warehouse is rejected
	rec = doJSON(t, r, "POST", "/api/areas", map[string]interface{}{
		"warehouse_id": wh.ID,
		"code":         "NAVE1-FUERA",
		"name":         "Outside",
		"boundary":     polygonJSON(5, 5, 1),
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("outside area status = %d, want 422: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, "POST", "/api/areas", map[string]interface{}{
		"warehouse_id": wh.ID,
		"code":         "NAVE1-NORTE",
		"name":         "Nave 1 norte",
		"position":     "N",
		"boundary":     polygonJSON(0.1, 0.1, 0.5),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("area create status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestScanAndResolve(t *testing.T) {
	r := testRouter(t)

	rec := doJSON(t, r, "POST", "/api/warehouses", map[string]interface{}{
		"code":     "NAVE1",
		"name":     "Nave 1",
		"boundary": polygonJSON(0, 0, 1),
	})
	var wh models.Warehouse
	json.Unmarshal(rec.Body.Bytes(), &wh)

	rec = doJSON(t, r, "POST", "/api/areas", map[string]interface{}{
		"warehouse_id": wh.ID,
		"code":         "NAVE1-NORTE",
		"name":         "Nave 1 norte",
		"boundary":     polygonJSON(0.1, 0.1, 0.5),
	})
	var area models.StorageArea
	json.Unmarshal(rec.Body.Bytes(), &area)

	rec = doJSON(t, r, "POST", "/api/locations", map[string]interface{}{
		"storage_area_id": area.ID,
		"code":            "NAVE1-NORTE-C1",
		"name":            "Cantero 1",
		"qr_code":         "LOC000001",
		"coordinates":     map[string]interface{}{"type": "Point", "coordinates": []float64{0.3, 0.3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("location create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, r, "GET", "/api/scan/LOC000001", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("scan status = %d", rec.Code)
	}
	rec = doJSON(t, r, "GET", "/api/scan/LOC999999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown QR status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, r, "GET", "/api/resolve?lon=0.3&lat=0.3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}
	var resolved struct {
		Warehouse   *models.Warehouse   `json:"warehouse"`
		StorageArea *models.StorageArea `json:"storage_area"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("decode resolve: %v", err)
	}
	if resolved.Warehouse == nil || resolved.Warehouse.ID != wh.ID {
		t.Errorf("resolved warehouse = %+v, want id %d", resolved.Warehouse, wh.ID)
	}
	if resolved.StorageArea == nil || resolved.StorageArea.ID != area.ID {
		t.Errorf("resolved area = %+v, want id %d", resolved.StorageArea, area.ID)
	}

	// Photo pipeline session pointer
	var loc models.StorageLocation
	rec = doJSON(t, r, "GET", "/api/scan/LOC000001", nil)
	json.Unmarshal(rec.Body.Bytes(), &loc)

	rec = doJSON(t, r, "PUT", fmt.Sprintf("/api/locations/%d/session", loc.ID), map[string]interface{}{
		"session_id": 42,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d: %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &loc)
	if loc.LatestSessionID == nil || *loc.LatestSessionID != 42 {
		t.Errorf("latest session = %v, want 42", loc.LatestSessionID)
	}
}

func TestBinLifecycleOverHTTP(t *testing.T) {
	r := testRouter(t)

	rec := doJSON(t, r, "POST", "/api/warehouses", map[string]interface{}{
		"code":     "NAVE1",
		"name":     "Nave 1",
		"boundary": polygonJSON(0, 0, 1),
	})
	var wh models.Warehouse
	json.Unmarshal(rec.Body.Bytes(), &wh)

	rec = doJSON(t, r, "POST", "/api/areas", map[string]interface{}{
		"warehouse_id": wh.ID,
		"code":         "NAVE1-NORTE",
		"name":         "Nave 1 norte",
		"boundary":     polygonJSON(0.1, 0.1, 0.5),
	})
	var area models.StorageArea
	json.Unmarshal(rec.Body.Bytes(), &area)

	rec = doJSON(t, r, "POST", "/api/locations", map[string]interface{}{
		"storage_area_id": area.ID,
		"code":            "NAVE1-NORTE-C1",
		"name":            "Cantero 1",
		"qr_code":         "LOC000001",
		"coordinates":     map[string]interface{}{"type": "Point", "coordinates": []float64{0.3, 0.3}},
	})
	var loc models.StorageLocation
	json.Unmarshal(rec.Body.Bytes(), &loc)

	rec = doJSON(t, r, "POST", "/api/bins", map[string]interface{}{
		"storage_location_id": loc.ID,
		"code":                "NAVE1-NORTE-C1-B1",
		"label":               "Tray 1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bin create status = %d: %s", rec.Code, rec.Body.String())
	}
	var bin models.StorageBin
	json.Unmarshal(rec.Body.Bytes(), &bin)
	if bin.Status != models.BinActive {
		t.Errorf("default status = %s, want active", bin.Status)
	}

	rec = doJSON(t, r, "POST", fmt.Sprintf("/api/bins/%d/transition", bin.ID), map[string]string{
		"status": "retired",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition status = %d: %s", rec.Code, rec.Body.String())
	}

	// Retired is terminal
	rec = doJSON(t, r, "POST", fmt.Sprintf("/api/bins/%d/transition", bin.ID), map[string]string{
		"status": "active",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("terminal transition status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestIngestEndpoint(t *testing.T) {
	r := testRouter(t)

	body := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "properties": {"Name": "Nave 1"},
			 "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}
		]
	}`)

	req := httptest.NewRequest("POST", "/api/ingest?source=survey.geojson", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d: %s", rec.Code, rec.Body.String())
	}
	var summary ingest.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.LoadedWarehouses != 1 {
		t.Errorf("loaded warehouses = %d, want 1", summary.LoadedWarehouses)
	}

	rec = doJSON(t, r, "GET", "/api/ingest/runs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("runs status = %d", rec.Code)
	}
	var runs []models.IngestRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].SourceName != "survey.geojson" {
		t.Errorf("runs = %+v, want one row named survey.geojson", runs)
	}

	rec = doJSON(t, r, "POST", "/api/ingest", map[string]string{"not": "geojson"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad collection status = %d, want 400", rec.Code)
	}
}

func TestLabelSheetEndpoint(t *testing.T) {
	r := testRouter(t)

	// No locations yet
	rec := doJSON(t, r, "GET", "/api/locations/labels", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty labels status = %d, want 422", rec.Code)
	}

	doJSON(t, r, "POST", "/api/warehouses", map[string]interface{}{
		"code": "NAVE1", "name": "Nave 1", "boundary": polygonJSON(0, 0, 1),
	})
	rec = doJSON(t, r, "POST", "/api/areas", map[string]interface{}{
		"warehouse_id": 1, "code": "NAVE1-NORTE", "name": "Nave 1 norte",
		"boundary": polygonJSON(0.1, 0.1, 0.5),
	})
	var area models.StorageArea
	json.Unmarshal(rec.Body.Bytes(), &area)
	doJSON(t, r, "POST", "/api/locations", map[string]interface{}{
		"storage_area_id": area.ID, "code": "NAVE1-NORTE-C1", "name": "Cantero 1",
		"qr_code":     "LOC000001",
		"coordinates": map[string]interface{}{"type": "Point", "coordinates": []float64{0.3, 0.3}},
	})

	rec = doJSON(t, r, "GET", "/api/locations/labels", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("labels status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q, want application/pdf", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty PDF body")
	}
}
