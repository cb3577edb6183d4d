/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

func (a *API) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	list, err := a.notificationSvc.List(r.Context(), actor.ID, unreadOnly, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list notifications failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (a *API) handleNotificationsUnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := a.notificationSvc.UnreadCount(r.Context(), actor.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("count notifications failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

func (a *API) handleNotificationsMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err := a.notificationSvc.MarkRead(r.Context(), actor.ID, chi.URLParam(r, "notificationID"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("mark notification read failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleNotificationsMarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	updated, err := a.notificationSvc.MarkAllRead(r.Context(), actor.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("mark all notifications read failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}
