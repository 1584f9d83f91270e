package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vivero-tech/viverogo/internal/buildinfo"
	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/ingest"
	"github.com/vivero-tech/viverogo/internal/services/printer"
)

// Router wraps the mux router and the hierarchy store
type Router struct {
	*mux.Router
	store  *hierarchy.Store
	loader *ingest.Loader
	labels printer.SheetConfig
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(store *hierarchy.Store, loader *ingest.Loader, labels printer.SheetConfig) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		store:  store,
		loader: loader,
		labels: labels,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Warehouse routes
	api.HandleFunc("/warehouses", r.listWarehouses).Methods("GET")
	api.HandleFunc("/warehouses", r.createWarehouse).Methods("POST")
	api.HandleFunc("/warehouses/{id}", r.getWarehouse).Methods("GET")
	api.HandleFunc("/warehouses/{id}", r.updateWarehouse).Methods("PATCH")
	api.HandleFunc("/warehouses/{id}", r.deleteWarehouse).Methods("DELETE")
	api.HandleFunc("/warehouses/{id}/areas", r.listWarehouseAreas).Methods("GET")

	// Storage area routes
	api.HandleFunc("/areas", r.listAreas).Methods("GET")
	api.HandleFunc("/areas", r.createArea).Methods("POST")
	api.HandleFunc("/areas/{id}", r.getArea).Methods("GET")
	api.HandleFunc("/areas/{id}", r.updateArea).Methods("PATCH")
	api.HandleFunc("/areas/{id}", r.deleteArea).Methods("DELETE")
	api.HandleFunc("/areas/{id}/locations", r.listAreaLocations).Methods("GET")

	// Storage location routes
	api.HandleFunc("/locations", r.listLocations).Methods("GET")
	api.HandleFunc("/locations", r.createLocation).Methods("POST")
	api.HandleFunc("/locations/labels", r.printLocationLabels).Methods("GET")
	api.HandleFunc("/locations/{id}", r.getLocation).Methods("GET")
	api.HandleFunc("/locations/{id}", r.updateLocation).Methods("PATCH")
	api.HandleFunc("/locations/{id}", r.deleteLocation).Methods("DELETE")
	api.HandleFunc("/locations/{id}/bins", r.listLocationBins).Methods("GET")
	api.HandleFunc("/locations/{id}/session", r.setLocationSession).Methods("PUT")

	// Scanner lookup
	api.HandleFunc("/scan/{qr}", r.scanQR).Methods("GET")

	// Bin routes
	api.HandleFunc("/bins", r.listBins).Methods("GET")
	api.HandleFunc("/bins", r.createBin).Methods("POST")
	api.HandleFunc("/bins/{id}", r.getBin).Methods("GET")
	api.HandleFunc("/bins/{id}", r.updateBin).Methods("PATCH")
	api.HandleFunc("/bins/{id}", r.deleteBin).Methods("DELETE")
	api.HandleFunc("/bins/{id}/transition", r.transitionBin).Methods("POST")

	// Bin type catalog
	api.HandleFunc("/bin-types", r.listBinTypes).Methods("GET")
	api.HandleFunc("/bin-types", r.createBinType).Methods("POST")
	api.HandleFunc("/bin-types/{id}", r.deleteBinType).Methods("DELETE")

	// GIS
	api.HandleFunc("/resolve", r.resolvePoint).Methods("GET")
	api.HandleFunc("/ingest", r.runIngest).Methods("POST")
	api.HandleFunc("/ingest/runs", r.listIngestRuns).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"commit":     buildinfo.CommitHash,
		"build_time": buildinfo.BuildTime,
		"start_time": buildinfo.StartTime,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondStoreError maps typed hierarchy errors onto HTTP statuses
func respondStoreError(w http.ResponseWriter, err error) {
	var (
		notFound   *hierarchy.NotFoundError
		noParent   *hierarchy.ParentNotFoundError
		dup        *hierarchy.DuplicateKeyError
		badCode    *hierarchy.InvalidCodeFormat
		contain    *hierarchy.SpatialContainmentViolation
		terminal   *hierarchy.TerminalStateViolation
		transition *hierarchy.InvalidTransition
		referenced *hierarchy.ReferencedByError
	)
	switch {
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &noParent):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &dup):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &referenced):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &terminal):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &transition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &badCode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &contain):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// pathID extracts the numeric {id} path variable
func pathID(req *http.Request) (uint, error) {
	raw := mux.Vars(req)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// queryUint parses an optional numeric query parameter
func queryUint(req *http.Request, key string) (*uint, error) {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, err
	}
	u := uint(v)
	return &u, nil
}
