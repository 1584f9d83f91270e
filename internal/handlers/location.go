package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/models"
	"github.com/vivero-tech/viverogo/internal/services/printer"
)

type locationPayload struct {
	StorageAreaID    uint              `json:"storage_area_id"`
	Code             string            `json:"code"`
	Name             string            `json:"name"`
	QRCode           string            `json:"qr_code"`
	Coordinates      *geojson.Geometry `json:"coordinates"`
	PositionMetadata models.JSONB      `json:"position_metadata"`
}

type locationPatchPayload struct {
	Name             *string           `json:"name"`
	Coordinates      *geojson.Geometry `json:"coordinates"`
	PositionMetadata models.JSONB      `json:"position_metadata"`
	Active           *bool             `json:"active"`
}

func (r *Router) listLocations(w http.ResponseWriter, req *http.Request) {
	areaID, err := queryUint(req, "area_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid area_id")
		return
	}
	locs, err := r.store.ListLocations(req.Context(), areaID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, locs)
}

func (r *Router) getLocation(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	loc, err := r.store.GetLocation(req.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

func (r *Router) createLocation(w http.ResponseWriter, req *http.Request) {
	var payload locationPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if payload.Coordinates == nil {
		respondError(w, http.StatusBadRequest, "Coordinates are required")
		return
	}
	loc, err := r.store.CreateLocation(req.Context(), hierarchy.LocationInput{
		StorageAreaID:    payload.StorageAreaID,
		Code:             payload.Code,
		Name:             payload.Name,
		QRCode:           payload.QRCode,
		Coordinates:      payload.Coordinates.Geometry(),
		PositionMetadata: payload.PositionMetadata,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, loc)
}

func (r *Router) updateLocation(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var payload locationPatchPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	patch := hierarchy.LocationPatch{
		Name:             payload.Name,
		PositionMetadata: payload.PositionMetadata,
		Active:           payload.Active,
	}
	if payload.Coordinates != nil {
		patch.Coordinates = payload.Coordinates.Geometry()
	}
	loc, err := r.store.UpdateLocation(req.Context(), id, patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

func (r *Router) deleteLocation(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := r.store.DeleteLocation(req.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) listLocationBins(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	bins, err := r.store.ListBins(req.Context(), &id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bins)
}

// setLocationSession records (or clears, with null) the latest photo
// session pointer of a location
func (r *Router) setLocationSession(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var payload struct {
		SessionID *uint `json:"session_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := r.store.SetLatestSession(req.Context(), id, payload.SessionID); err != nil {
		respondStoreError(w, err)
		return
	}
	loc, err := r.store.GetLocation(req.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

// scanQR resolves a scanned QR payload to its storage location
func (r *Router) scanQR(w http.ResponseWriter, req *http.Request) {
	qr := mux.Vars(req)["qr"]
	loc, err := r.store.FindLocationByQR(req.Context(), qr)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if loc == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("No location for QR %q", qr))
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

// printLocationLabels streams a printable PDF label sheet. With ?area_id
// only that area's locations are printed, otherwise the whole facility.
func (r *Router) printLocationLabels(w http.ResponseWriter, req *http.Request) {
	areaID, err := queryUint(req, "area_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid area_id")
		return
	}
	locs, err := r.store.ListLocations(req.Context(), areaID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	pdf, err := printer.GenerateLocationLabels(r.labels, locs)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="location_labels.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
