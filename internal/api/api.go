/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface of the admin service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/auth"
	"github.com/lopanworks/lopan_admin/internal/batch"
	"github.com/lopanworks/lopan_admin/internal/events"
	"github.com/lopanworks/lopan_admin/internal/export"
	"github.com/lopanworks/lopan_admin/internal/models"
	"github.com/lopanworks/lopan_admin/internal/notifications"
	"github.com/lopanworks/lopan_admin/internal/shiftpolicy"
)

// API exposes HTTP handlers.
type API struct {
	db              *gorm.DB
	jwtSecret       []byte
	batchSvc        *batch.Service
	auditSvc        *audit.Service
	exportSvc       *export.Service
	notificationSvc *notifications.Service
	policy          *shiftpolicy.Policy
	bus             *events.Bus
	logger          zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, batchSvc *batch.Service, auditSvc *audit.Service, exportSvc *export.Service, notificationSvc *notifications.Service, policy *shiftpolicy.Policy, bus *events.Bus, logger zerolog.Logger) *API {
	return &API{
		db:              db,
		jwtSecret:       jwtSecret,
		batchSvc:        batchSvc,
		auditSvc:        auditSvc,
		exportSvc:       exportSvc,
		notificationSvc: notificationSvc,
		policy:          policy,
		bus:             bus,
		logger:          logger,
	}
}

// Routes mounts every endpoint under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/shifts/allowed", a.handleAllowedShifts)

			pr.Route("/machines", func(r chi.Router) {
				r.Get("/", a.handleMachinesList)
				r.Group(func(ar chi.Router) {
					ar.Use(auth.RequireRole(string(models.RoleAdministrator)))
					ar.Post("/", a.handleMachinesCreate)
					ar.Put("/{machineID}", a.handleMachinesUpdate)
				})
			})

			pr.Route("/batches", func(r chi.Router) {
				r.Get("/", a.handleBatchesList)
				r.Post("/", a.handleBatchesCreate)
				r.Route("/{batchID}", func(r chi.Router) {
					r.Get("/", a.handleBatchesGet)
					r.Put("/", a.handleBatchesUpdate)
					r.Delete("/", a.handleBatchesDelete)
					r.Get("/validation", a.handleBatchesValidate)
					r.Post("/submit", a.handleBatchesSubmit)
					r.Post("/approve", a.handleBatchesApprove)
					r.Post("/reject", a.handleBatchesReject)
					r.Post("/applied", a.handleBatchesMarkApplied)
					r.Post("/completed", a.handleBatchesMarkCompleted)
				})
			})

			pr.Route("/notifications", func(r chi.Router) {
				r.Get("/", a.handleNotificationsList)
				r.Get("/unread-count", a.handleNotificationsUnreadCount)
				r.Post("/{notificationID}/read", a.handleNotificationsMarkRead)
				r.Post("/read-all", a.handleNotificationsMarkAllRead)
			})

			pr.Group(func(ar chi.Router) {
				ar.Use(auth.RequireRole(string(models.RoleAdministrator)))
				ar.Get("/audit", a.handleAuditList)
				ar.Route("/export", func(r chi.Router) {
					r.Get("/batches.csv", a.handleExportBatchesCSV)
					r.Get("/batches.json", a.handleExportBatchesJSON)
					r.Get("/audit.csv", a.handleExportAuditCSV)
				})
			})

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor resolves the acting user from the request claims.
func (a *API) actor(r *http.Request) (batch.Actor, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return batch.Actor{}, false
	}
	return batch.Actor{
		ID:   claims.UserID,
		Name: claims.DisplayName,
		Role: claims.Role,
	}, true
}

// writeServiceError translates batch service errors to HTTP responses.
// Validation failures carry the full result so clients can render the
// issues per field.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *batch.ValidationFailedError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "validation_failed",
			"validation": validationErr.Result,
		})
	case errors.Is(err, batch.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, batch.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied")
	case errors.Is(err, batch.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition")
	case errors.Is(err, batch.ErrReasonRequired):
		writeError(w, http.StatusBadRequest, "reason_required")
	default:
		a.logger.Error().Err(err).Msg("batch operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// handleAllowedShifts reports which shifts still accept submissions for the
// requested date. Defaults to today.
func (a *API) handleAllowedShifts(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	date := now
	if raw := r.URL.Query().Get("date"); raw != "" {
		// Parse in the server's location so the calendar-day comparison
		// against now is not skewed on non-UTC hosts.
		parsed, err := time.ParseInLocation("2006-01-02", raw, now.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		date = parsed
	}

	allowed := a.policy.AllowedShifts(date, now)
	if allowed == nil {
		allowed = []models.Shift{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":           date.Format("2006-01-02"),
		"allowed_shifts": allowed,
		"restricted":     a.policy.ShiftsRestricted(date, now),
	})
}
