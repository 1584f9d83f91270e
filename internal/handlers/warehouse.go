package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/models"
)

type warehousePayload struct {
	Code         string              `json:"code"`
	Name         string              `json:"name"`
	FacilityType models.FacilityType `json:"facility_type"`
	Boundary     *geojson.Geometry   `json:"boundary"`
}

type warehousePatchPayload struct {
	Name         *string              `json:"name"`
	FacilityType *models.FacilityType `json:"facility_type"`
	Boundary     *geojson.Geometry    `json:"boundary"`
	Active       *bool                `json:"active"`
}

func (r *Router) listWarehouses(w http.ResponseWriter, req *http.Request) {
	whs, err := r.store.ListWarehouses(req.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, whs)
}

func (r *Router) getWarehouse(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	wh, err := r.store.GetWarehouse(req.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wh)
}

func (r *Router) createWarehouse(w http.ResponseWriter, req *http.Request) {
	var payload warehousePayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if payload.Boundary == nil {
		respondError(w, http.StatusBadRequest, "Boundary is required")
		return
	}
	wh, err := r.store.CreateWarehouse(req.Context(), hierarchy.WarehouseInput{
		Code:         payload.Code,
		Name:         payload.Name,
		FacilityType: payload.FacilityType,
		Boundary:     payload.Boundary.Geometry(),
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wh)
}

func (r *Router) updateWarehouse(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var payload warehousePatchPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	patch := hierarchy.WarehousePatch{
		Name:         payload.Name,
		FacilityType: payload.FacilityType,
		Active:       payload.Active,
	}
	if payload.Boundary != nil {
		patch.Boundary = payload.Boundary.Geometry()
	}
	wh, err := r.store.UpdateWarehouse(req.Context(), id, patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wh)
}

func (r *Router) deleteWarehouse(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := r.store.DeleteWarehouse(req.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) listWarehouseAreas(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	areas, err := r.store.ListAreas(req.Context(), &id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, areas)
}
