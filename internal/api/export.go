/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lopanworks/lopan_admin/internal/export"
	"github.com/lopanworks/lopan_admin/internal/models"
)

func parseExportFilters(r *http.Request) export.Filters {
	filters := export.Filters{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.BatchStatus(raw)
		filters.Status = &status
	}
	if raw := r.URL.Query().Get("machine_id"); raw != "" {
		filters.MachineID = &raw
	}
	if raw := r.URL.Query().Get("start"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.Start = &t
		}
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filters.End = &t
		}
	}
	return filters
}

func (a *API) serveExport(w http.ResponseWriter, result *export.Result, err error) {
	if err != nil {
		a.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (a *API) handleExportBatchesCSV(w http.ResponseWriter, r *http.Request) {
	result, err := a.exportSvc.BatchesCSV(r.Context(), parseExportFilters(r))
	a.serveExport(w, result, err)
}

func (a *API) handleExportBatchesJSON(w http.ResponseWriter, r *http.Request) {
	result, err := a.exportSvc.BatchesJSON(r.Context(), parseExportFilters(r))
	a.serveExport(w, result, err)
}

func (a *API) handleExportAuditCSV(w http.ResponseWriter, r *http.Request) {
	result, err := a.exportSvc.AuditCSV(r.Context(), parseAuditFilters(r))
	a.serveExport(w, result, err)
}
