package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/models"
)

type areaPayload struct {
	WarehouseID  uint                 `json:"warehouse_id"`
	ParentAreaID *uint                `json:"parent_area_id"`
	Code         string               `json:"code"`
	Name         string               `json:"name"`
	Position     *models.AreaPosition `json:"position"`
	Boundary     *geojson.Geometry    `json:"boundary"`
}

type areaPatchPayload struct {
	Name     *string              `json:"name"`
	Position *models.AreaPosition `json:"position"`
	Boundary *geojson.Geometry    `json:"boundary"`
	Active   *bool                `json:"active"`
}

func (r *Router) listAreas(w http.ResponseWriter, req *http.Request) {
	warehouseID, err := queryUint(req, "warehouse_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid warehouse_id")
		return
	}
	areas, err := r.store.ListAreas(req.Context(), warehouseID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, areas)
}

func (r *Router) getArea(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	area, err := r.store.GetArea(req.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, area)
}

func (r *Router) createArea(w http.ResponseWriter, req *http.Request) {
	var payload areaPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if payload.Boundary == nil {
		respondError(w, http.StatusBadRequest, "Boundary is required")
		return
	}
	area, err := r.store.CreateArea(req.Context(), hierarchy.AreaInput{
		WarehouseID:  payload.WarehouseID,
		ParentAreaID: payload.ParentAreaID,
		Code:         payload.Code,
		Name:         payload.Name,
		Position:     payload.Position,
		Boundary:     payload.Boundary.Geometry(),
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, area)
}

func (r *Router) updateArea(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var payload areaPatchPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	patch := hierarchy.AreaPatch{
		Name:     payload.Name,
		Position: payload.Position,
		Active:   payload.Active,
	}
	if payload.Boundary != nil {
		patch.Boundary = payload.Boundary.Geometry()
	}
	area, err := r.store.UpdateArea(req.Context(), id, patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, area)
}

func (r *Router) deleteArea(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := r.store.DeleteArea(req.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) listAreaLocations(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	locs, err := r.store.ListLocations(req.Context(), &id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, locs)
}
