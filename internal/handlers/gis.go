package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
)

// resolvePoint answers "which warehouse and area is this GPS fix in":
// GET /api/resolve?lon=-3.70&lat=40.41
func (r *Router) resolvePoint(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lon")
		return
	}
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lat")
		return
	}

	wh, area, err := r.store.ResolvePoint(req.Context(), orb.Point{lon, lat})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"warehouse":    wh,
		"storage_area": area,
	})
}

// runIngest accepts a raw GeoJSON FeatureCollection body and runs the
// survey ingestion pipeline over it. ?source= names the run in the audit
// table.
func (r *Router) runIngest(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	summary, err := r.loader.RunNamed(req.Context(), data, req.URL.Query().Get("source"))
	if err != nil {
		if summary != nil {
			// Partial result: the caller gets what was committed before
			// the run was interrupted.
			respondJSON(w, http.StatusInternalServerError, summary)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// listIngestRuns returns the most recent ingestion audit rows
func (r *Router) listIngestRuns(w http.ResponseWriter, req *http.Request) {
	limit := 20
	if raw := req.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = v
	}
	runs, err := r.loader.RecentRuns(req.Context(), limit)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}
