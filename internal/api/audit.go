/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/models"
)

// handleAuditList returns a paginated list of audit logs (administrator only).
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	filters := parseAuditFilters(r)

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit logs")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit_logs": logs,
		"total":      total,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}

// parseAuditFilters extracts query filters from the request.
func parseAuditFilters(r *http.Request) audit.QueryFilters {
	filters := audit.QueryFilters{
		Limit:  100,
		Offset: 0,
	}

	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filters.UserID = &userID
	}

	if entityID := r.URL.Query().Get("entity_id"); entityID != "" {
		filters.EntityID = &entityID
	}

	if action := r.URL.Query().Get("action"); action != "" {
		a := models.AuditAction(action)
		filters.Action = &a
	}

	if startTime := r.URL.Query().Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filters.StartTime = &t
		}
	}

	if endTime := r.URL.Query().Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filters.EndTime = &t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 1000 {
			filters.Limit = n
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	return filters
}
