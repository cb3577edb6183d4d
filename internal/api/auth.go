/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/auth"
	"github.com/lopanworks/lopan_admin/internal/models"
)

const tokenTTL = 24 * time.Hour

// handleLogin verifies credentials and issues a JWT. Failed attempts get
// the same response regardless of whether the username exists.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "credentials_required")
		return
	}

	var user models.User
	if err := a.db.WithContext(r.Context()).First(&user, "username = ?", req.Username).Error; err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if !user.Active {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if !auth.CheckPassword(user.Password, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.Issue(a.jwtSecret, auth.Claims{
		UserID:      user.ID,
		Role:        user.Role,
		DisplayName: user.DisplayName,
	}, tokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("sign JWT failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	userID := user.ID
	if err := a.auditSvc.Log(r.Context(), audit.Entry{
		UserID:     &userID,
		UserName:   user.DisplayName,
		Action:     models.AuditActionUserLogin,
		EntityType: "user",
		EntityID:   user.ID,
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}); err != nil {
		a.logger.Error().Err(err).Msg("audit login failed")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":           user.ID,
			"username":     user.Username,
			"display_name": user.DisplayName,
			"role":         user.Role,
		},
	})
}
