package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/models"
)

type binPayload struct {
	StorageLocationID uint             `json:"storage_location_id"`
	StorageBinTypeID  *uint            `json:"storage_bin_type_id"`
	Code              string           `json:"code"`
	Label             string           `json:"label"`
	Status            models.BinStatus `json:"status"`
	PositionMetadata  models.JSONB     `json:"position_metadata"`
}

type binPatchPayload struct {
	Label            *string      `json:"label"`
	StorageBinTypeID *uint        `json:"storage_bin_type_id"`
	PositionMetadata models.JSONB `json:"position_metadata"`
}

type binTypePayload struct {
	Name     string             `json:"name"`
	Category models.BinCategory `json:"category"`
	IsGrid   bool               `json:"is_grid"`
	Rows     *int               `json:"rows"`
	Columns  *int               `json:"columns"`
	VolumeL  *float64           `json:"volume_l"`
	LengthCm *float64           `json:"length_cm"`
	WidthCm  *float64           `json:"width_cm"`
	HeightCm *float64           `json:"height_cm"`
}

// listBins supports filtering by location and by ML metadata fields:
// ?location_id=, ?min_confidence=, ?container_type=
func (r *Router) listBins(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	minConfRaw := q.Get("min_confidence")
	containerType := q.Get("container_type")
	if minConfRaw != "" || containerType != "" {
		var minConf *float64
		if minConfRaw != "" {
			v, err := strconv.ParseFloat(minConfRaw, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid min_confidence")
				return
			}
			minConf = &v
		}
		bins, err := r.store.FindBinsByMetadata(req.Context(), minConf, containerType)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, bins)
		return
	}

	locationID, err := queryUint(req, "location_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid location_id")
		return
	}
	bins, err := r.store.ListBins(req.Context(), locationID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bins)
}

func (r *Router) getBin(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	bin, err := r.store.GetBin(req.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bin)
}

func (r *Router) createBin(w http.ResponseWriter, req *http.Request) {
	var payload binPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	bin, err := r.store.CreateBin(req.Context(), hierarchy.BinInput{
		StorageLocationID: payload.StorageLocationID,
		StorageBinTypeID:  payload.StorageBinTypeID,
		Code:              payload.Code,
		Label:             payload.Label,
		Status:            payload.Status,
		PositionMetadata:  payload.PositionMetadata,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, bin)
}

func (r *Router) updateBin(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var payload binPatchPayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	bin, err := r.store.UpdateBin(req.Context(), id, hierarchy.BinPatch{
		Label:            payload.Label,
		StorageBinTypeID: payload.StorageBinTypeID,
		PositionMetadata: payload.PositionMetadata,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bin)
}

func (r *Router) deleteBin(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := r.store.DeleteBin(req.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// transitionBin moves a bin through its lifecycle state machine
func (r *Router) transitionBin(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var payload struct {
		Status models.BinStatus `json:"status"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	bin, err := r.store.TransitionBin(req.Context(), id, payload.Status)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bin)
}

func (r *Router) listBinTypes(w http.ResponseWriter, req *http.Request) {
	types, err := r.store.ListBinTypes(req.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, types)
}

func (r *Router) createBinType(w http.ResponseWriter, req *http.Request) {
	var payload binTypePayload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	bt, err := r.store.CreateBinType(req.Context(), hierarchy.BinTypeInput{
		Name:     payload.Name,
		Category: payload.Category,
		IsGrid:   payload.IsGrid,
		Rows:     payload.Rows,
		Columns:  payload.Columns,
		VolumeL:  payload.VolumeL,
		LengthCm: payload.LengthCm,
		WidthCm:  payload.WidthCm,
		HeightCm: payload.HeightCm,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, bt)
}

func (r *Router) deleteBinType(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if err := r.store.DeleteBinType(req.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
