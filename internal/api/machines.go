/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/models"
)

func (a *API) handleMachinesList(w http.ResponseWriter, r *http.Request) {
	var machines []models.Machine
	query := a.db.WithContext(r.Context()).Order("number ASC")
	if r.URL.Query().Get("active") == "true" {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&machines).Error; err != nil {
		a.logger.Error().Err(err).Msg("list machines failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, machines)
}

func (a *API) handleMachinesCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := a.actor(r)

	var req struct {
		Number          string `json:"number"`
		Name            string `json:"name"`
		StationCapacity int    `json:"station_capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Number == "" {
		writeError(w, http.StatusBadRequest, "number_required")
		return
	}
	if req.StationCapacity <= 0 {
		req.StationCapacity = models.DefaultStationCapacity
	}

	machine := models.Machine{
		ID:              uuid.NewString(),
		Number:          req.Number,
		Name:            req.Name,
		StationCapacity: req.StationCapacity,
		Active:          true,
	}
	if err := a.db.WithContext(r.Context()).Create(&machine).Error; err != nil {
		a.logger.Error().Err(err).Msg("create machine failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.auditMachine(r, actor.ID, actor.Name, models.AuditActionMachineCreate, &machine)
	writeJSON(w, http.StatusCreated, machine)
}

func (a *API) handleMachinesUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := a.actor(r)
	machineID := chi.URLParam(r, "machineID")

	var machine models.Machine
	if err := a.db.WithContext(r.Context()).First(&machine, "id = ?", machineID).Error; err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	var req struct {
		Name            *string `json:"name,omitempty"`
		StationCapacity *int    `json:"station_capacity,omitempty"`
		Active          *bool   `json:"active,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Name != nil {
		machine.Name = *req.Name
	}
	if req.StationCapacity != nil {
		if *req.StationCapacity <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_station_capacity")
			return
		}
		machine.StationCapacity = *req.StationCapacity
	}
	if req.Active != nil {
		machine.Active = *req.Active
	}

	if err := a.db.WithContext(r.Context()).Save(&machine).Error; err != nil {
		a.logger.Error().Err(err).Msg("update machine failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.auditMachine(r, actor.ID, actor.Name, models.AuditActionMachineUpdate, &machine)
	writeJSON(w, http.StatusOK, machine)
}

func (a *API) auditMachine(r *http.Request, userID, userName string, action models.AuditAction, machine *models.Machine) {
	entry := audit.Entry{
		UserName:   userName,
		Action:     action,
		EntityType: "machine",
		EntityID:   machine.ID,
		Details: map[string]any{
			"number":           machine.Number,
			"station_capacity": machine.StationCapacity,
			"active":           machine.Active,
		},
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := a.auditSvc.Log(r.Context(), entry); err != nil {
		a.logger.Error().Err(err).Str("machine", machine.ID).Msg("audit machine change failed")
	}
}
