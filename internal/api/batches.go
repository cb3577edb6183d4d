/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lopanworks/lopan_admin/internal/batch"
	"github.com/lopanworks/lopan_admin/internal/models"
)

// batchRequest is the JSON shape for creating or editing a batch. A batch
// with both target_date and shift set is shift-aware; leaving both empty
// creates an unscheduled batch.
type batchRequest struct {
	MachineID  string `json:"machine_id"`
	Mode       string `json:"mode"`
	TargetDate string `json:"target_date,omitempty"`
	Shift      string `json:"shift,omitempty"`
	Products   []struct {
		Name           string `json:"name"`
		PrimaryColor   string `json:"primary_color"`
		SecondaryColor string `json:"secondary_color,omitempty"`
		Stations       []int  `json:"stations"`
		DualColor      bool   `json:"dual_color,omitempty"`
	} `json:"products"`
}

func (req *batchRequest) scheduling() (models.Scheduling, bool) {
	if req.TargetDate == "" && req.Shift == "" {
		return models.Unscheduled(), true
	}
	if req.TargetDate == "" || req.Shift == "" {
		return models.Scheduling{}, false
	}
	date, err := time.Parse("2006-01-02", req.TargetDate)
	if err != nil {
		return models.Scheduling{}, false
	}
	shift := models.Shift(req.Shift)
	if !shift.Valid() {
		return models.Scheduling{}, false
	}
	return models.ShiftAware(date, shift), true
}

func (req *batchRequest) products() []batch.ProductInput {
	products := make([]batch.ProductInput, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, batch.ProductInput{
			Name:           p.Name,
			PrimaryColor:   p.PrimaryColor,
			SecondaryColor: p.SecondaryColor,
			Stations:       p.Stations,
			DualColor:      p.DualColor,
		})
	}
	return products
}

func (a *API) handleBatchesCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.MachineID == "" {
		writeError(w, http.StatusBadRequest, "machine_id_required")
		return
	}
	scheduling, ok := req.scheduling()
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_scheduling")
		return
	}

	created, err := a.batchSvc.Create(r.Context(), actor, batch.CreateInput{
		MachineID:  req.MachineID,
		Mode:       models.BatchMode(req.Mode),
		Scheduling: scheduling,
		Products:   req.products(),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleBatchesUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	scheduling, ok := req.scheduling()
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_scheduling")
		return
	}

	updated, err := a.batchSvc.Update(r.Context(), actor, chi.URLParam(r, "batchID"), batch.UpdateInput{
		MachineID:  req.MachineID,
		Mode:       models.BatchMode(req.Mode),
		Scheduling: scheduling,
		Products:   req.products(),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleBatchesGet(w http.ResponseWriter, r *http.Request) {
	found, err := a.batchSvc.Get(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (a *API) handleBatchesDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := a.batchSvc.Delete(r.Context(), actor, chi.URLParam(r, "batchID")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBatchesList(w http.ResponseWriter, r *http.Request) {
	filters := batch.ListFilters{}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.BatchStatus(raw)
		filters.Status = &status
	}
	if raw := r.URL.Query().Get("machine_id"); raw != "" {
		filters.MachineID = &raw
	}
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		filters.Date = &date
	}
	if raw := r.URL.Query().Get("shift"); raw != "" {
		shift := models.Shift(raw)
		if !shift.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_shift")
			return
		}
		filters.Shift = &shift
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filters.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	batches, total, err := a.batchSvc.List(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("list batches failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"total":   total,
	})
}

func (a *API) handleBatchesValidate(w http.ResponseWriter, r *http.Request) {
	result, err := a.batchSvc.Validate(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleBatchesSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	submitted, err := a.batchSvc.Submit(r.Context(), actor, chi.URLParam(r, "batchID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitted)
}

func (a *API) handleBatchesApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Notes   string                       `json:"notes,omitempty"`
		Summary *models.BatchApprovalSummary `json:"summary,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	approved, err := a.batchSvc.Approve(r.Context(), actor, chi.URLParam(r, "batchID"), req.Summary, req.Notes)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approved)
}

func (a *API) handleBatchesReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	rejected, err := a.batchSvc.Reject(r.Context(), actor, chi.URLParam(r, "batchID"), req.Reason)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rejected)
}

func (a *API) handleBatchesMarkApplied(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	updated, err := a.batchSvc.MarkApplied(r.Context(), actor, chi.URLParam(r, "batchID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleBatchesMarkCompleted(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	updated, err := a.batchSvc.MarkCompleted(r.Context(), actor, chi.URLParam(r, "batchID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
