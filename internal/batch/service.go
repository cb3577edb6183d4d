/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package batch owns the production batch lifecycle:
// unsubmitted -> pending -> approved or rejected, with applied/completed
// timestamps after approval. Every transition is atomic against the store,
// audited after commit, and announced on the event bus.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/auth"
	"github.com/lopanworks/lopan_admin/internal/events"
	"github.com/lopanworks/lopan_admin/internal/models"
	"github.com/lopanworks/lopan_admin/internal/telemetry"
	"github.com/lopanworks/lopan_admin/internal/validation"
)

// Actor is the user performing an operation, taken from the caller's
// authenticated claims.
type Actor struct {
	ID   string
	Name string
	Role models.RoleName
}

// Service owns batch lifecycle transitions. Collaborators arrive through
// the constructor so tests can assemble the service over an in-memory store.
type Service struct {
	db        *gorm.DB
	validator *validation.Validator
	auditSvc  *audit.Service
	gate      *auth.Gate
	bus       *events.Bus
	logger    zerolog.Logger

	now func() time.Time
}

// NewService creates the batch service.
func NewService(db *gorm.DB, validator *validation.Validator, auditSvc *audit.Service, gate *auth.Gate, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		validator: validator,
		auditSvc:  auditSvc,
		gate:      gate,
		bus:       bus,
		logger:    logger.With().Str("component", "batch_service").Logger(),
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Tests pin it to a fixed instant.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ProductInput describes one product of a new or edited batch.
type ProductInput struct {
	Name           string
	PrimaryColor   string
	SecondaryColor string
	Stations       []int
	DualColor      bool
}

// CreateInput describes a new batch.
type CreateInput struct {
	MachineID  string
	Mode       models.BatchMode
	Scheduling models.Scheduling
	Products   []ProductInput
}

// Create builds an unsubmitted batch, validates it, and persists it with
// its products in one transaction. Blocking validation issues stop the
// create; warnings do not.
func (s *Service) Create(ctx context.Context, actor Actor, input CreateInput) (*models.ProductionBatch, error) {
	if decision := s.gate.Authorize(actor.Role, auth.ActionCreateBatch); !decision.Authorized {
		return nil, permissionError(decision.Reason)
	}

	now := s.now()
	batch := &models.ProductionBatch{
		ID:        uuid.NewString(),
		MachineID: input.MachineID,
		Mode:      input.Mode,
		Status:    models.BatchUnsubmitted,
		CreatedBy: actor.ID,
	}
	batch.SetScheduling(input.Scheduling)
	batch.Products = buildProducts(batch.ID, input.Products)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := nextBatchNumber(ctx, tx, now)
		if err != nil {
			return err
		}
		batch.BatchNumber = number

		result, err := s.validator.ValidateBatchTx(ctx, tx, batch, validation.IntentDraft, now)
		if err != nil {
			return err
		}
		if !result.Valid {
			return validationFailed(result)
		}

		return tx.Create(batch).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, actor, models.AuditActionBatchCreate, batch, map[string]any{
		"machine_id": batch.MachineID,
		"products":   len(batch.Products),
	})
	s.publish(events.EventBatchCreated, actor, batch)

	s.logger.Info().Str("batch", batch.BatchNumber).Str("machine", batch.MachineID).Msg("batch created")
	return batch, nil
}

// UpdateInput replaces an unsubmitted batch's products and scheduling.
type UpdateInput struct {
	MachineID  string
	Mode       models.BatchMode
	Scheduling models.Scheduling
	Products   []ProductInput
}

// Update edits a draft. Only unsubmitted batches are editable; everything
// downstream of submit is frozen except through transitions.
func (s *Service) Update(ctx context.Context, actor Actor, batchID string, input UpdateInput) (*models.ProductionBatch, error) {
	if decision := s.gate.Authorize(actor.Role, auth.ActionCreateBatch); !decision.Authorized {
		return nil, permissionError(decision.Reason)
	}

	now := s.now()
	var batch *models.ProductionBatch

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = fetchBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchUnsubmitted {
			return transitionError(batch.Status, "edit")
		}

		batch.MachineID = input.MachineID
		batch.Mode = input.Mode
		batch.SetScheduling(input.Scheduling)
		batch.UpdatedAt = now

		if err := tx.Where("batch_id = ?", batch.ID).Delete(&models.ProductConfig{}).Error; err != nil {
			return err
		}
		batch.Products = buildProducts(batch.ID, input.Products)

		result, err := s.validator.ValidateBatchTx(ctx, tx, batch, validation.IntentDraft, now)
		if err != nil {
			return err
		}
		if !result.Valid {
			return validationFailed(result)
		}

		if len(batch.Products) > 0 {
			if err := tx.Create(batch.Products).Error; err != nil {
				return err
			}
		}
		return tx.Omit("Products").Save(batch).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, actor, models.AuditActionBatchUpdate, batch, map[string]any{
		"machine_id": batch.MachineID,
		"products":   len(batch.Products),
	})
	return batch, nil
}

// Submit moves an unsubmitted batch to pending. The conflict check runs
// inside the write transaction, serialized per machine by a row lock,
// and the slot unique index rejects any duplicate claim the lock cannot
// prevent, so two submits racing for the same (machine, date, shift) slot
// can never both commit.
func (s *Service) Submit(ctx context.Context, actor Actor, batchID string) (*models.ProductionBatch, error) {
	if decision := s.gate.Authorize(actor.Role, auth.ActionSubmitBatch); !decision.Authorized {
		return nil, permissionError(decision.Reason)
	}

	now := s.now()
	var batch *models.ProductionBatch

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = fetchBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchUnsubmitted {
			return transitionError(batch.Status, "submit")
		}

		if err := lockMachine(ctx, tx, batch.MachineID); err != nil {
			return err
		}

		result, err := s.validator.ValidateBatchTx(ctx, tx, batch, validation.IntentSubmit, now)
		if err != nil {
			return err
		}
		if !result.Valid {
			return validationFailed(result)
		}

		batch.Status = models.BatchPending
		batch.SubmittedBy = &actor.ID
		batch.SubmittedAt = &now
		if err := tx.Omit("Products").Save(batch).Error; err != nil {
			if isSlotViolation(err) {
				return validationFailed(slotTakenResult(batch, now))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, actor, models.AuditActionBatchSubmit, batch, map[string]any{
		"machine_id": batch.MachineID,
	})
	s.publish(events.EventBatchSubmitted, actor, batch)

	s.logger.Info().Str("batch", batch.BatchNumber).Msg("batch submitted for approval")
	return batch, nil
}

// Approve moves a pending batch to approved. Administrator only. The
// approval summary enriches the audit record; it is never persisted on the
// batch. A submission whose shift cutoff has since passed is still
// approvable, but the stale context is recorded in the audit details.
func (s *Service) Approve(ctx context.Context, actor Actor, batchID string, summary *models.BatchApprovalSummary, notes string) (*models.ProductionBatch, error) {
	if decision := s.gate.Authorize(actor.Role, auth.ActionApproveBatch); !decision.Authorized {
		return nil, permissionError(decision.Reason)
	}

	now := s.now()
	var batch *models.ProductionBatch
	var staleReason string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = fetchBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchPending {
			return transitionError(batch.Status, "approve")
		}

		result, err := s.validator.ValidateBatchTx(ctx, tx, batch, validation.IntentReview, now)
		if err != nil {
			return err
		}
		for _, warning := range result.Warnings {
			if warning.Code == models.IssueStaleTimeContext {
				staleReason = warning.Message
			}
		}

		batch.Status = models.BatchApproved
		batch.ApprovedBy = &actor.ID
		batch.ApprovedAt = &now
		batch.ReviewNotes = notes
		return tx.Omit("Products").Save(batch).Error
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{"machine_id": batch.MachineID}
	if summary != nil {
		details["estimated_hours"] = summary.EstimatedHours
		details["priority"] = summary.Priority
		if len(summary.RiskFactors) > 0 {
			details["risk_factors"] = summary.RiskFactors
		}
		if len(summary.Recommendations) > 0 {
			details["recommendations"] = summary.Recommendations
		}
	}
	if staleReason != "" {
		details["stale_time_context"] = staleReason
	}

	s.auditTransition(ctx, actor, models.AuditActionBatchApprove, batch, details)
	s.publish(events.EventBatchApproved, actor, batch)

	s.logger.Info().Str("batch", batch.BatchNumber).Str("approved_by", actor.ID).Msg("batch approved")
	return batch, nil
}

// Reject moves a pending batch to rejected. Administrator only, and the
// reason is mandatory at this layer as well as in the UI.
func (s *Service) Reject(ctx context.Context, actor Actor, batchID, reason string) (*models.ProductionBatch, error) {
	if decision := s.gate.Authorize(actor.Role, auth.ActionRejectBatch); !decision.Authorized {
		return nil, permissionError(decision.Reason)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	now := s.now()
	var batch *models.ProductionBatch

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = fetchBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchPending {
			return transitionError(batch.Status, "reject")
		}

		batch.Status = models.BatchRejected
		batch.RejectedBy = &actor.ID
		batch.RejectedAt = &now
		batch.RejectionReason = strings.TrimSpace(reason)
		return tx.Omit("Products").Save(batch).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, actor, models.AuditActionBatchReject, batch, map[string]any{
		"machine_id": batch.MachineID,
		"reason":     batch.RejectionReason,
	})
	s.publish(events.EventBatchRejected, actor, batch)

	s.logger.Info().Str("batch", batch.BatchNumber).Str("rejected_by", actor.ID).Msg("batch rejected")
	return batch, nil
}

// MarkApplied records that production started executing an approved batch.
func (s *Service) MarkApplied(ctx context.Context, actor Actor, batchID string) (*models.ProductionBatch, error) {
	return s.markExecution(ctx, actor, batchID, models.AuditActionBatchApplied, events.EventBatchApplied, "apply",
		func(b *models.ProductionBatch, now time.Time) { b.AppliedAt = &now })
}

// MarkCompleted records that an approved batch finished production.
func (s *Service) MarkCompleted(ctx context.Context, actor Actor, batchID string) (*models.ProductionBatch, error) {
	return s.markExecution(ctx, actor, batchID, models.AuditActionBatchCompleted, events.EventBatchCompleted, "complete",
		func(b *models.ProductionBatch, now time.Time) { b.CompletedAt = &now })
}

func (s *Service) markExecution(ctx context.Context, actor Actor, batchID string, action models.AuditAction, event events.EventType, op string, stamp func(*models.ProductionBatch, time.Time)) (*models.ProductionBatch, error) {
	if decision := s.gate.Authorize(actor.Role, auth.ActionSubmitBatch); !decision.Authorized {
		return nil, permissionError(decision.Reason)
	}

	now := s.now()
	var batch *models.ProductionBatch

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = fetchBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchApproved {
			return transitionError(batch.Status, op)
		}

		stamp(batch, now)
		return tx.Omit("Products").Save(batch).Error
	})
	if err != nil {
		return nil, err
	}

	s.auditTransition(ctx, actor, action, batch, nil)
	s.publish(event, actor, batch)
	return batch, nil
}

// Delete discards an unsubmitted draft and its products.
func (s *Service) Delete(ctx context.Context, actor Actor, batchID string) error {
	if decision := s.gate.Authorize(actor.Role, auth.ActionCreateBatch); !decision.Authorized {
		return permissionError(decision.Reason)
	}

	var batch *models.ProductionBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = fetchBatch(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchUnsubmitted {
			return transitionError(batch.Status, "delete")
		}

		if err := tx.Where("batch_id = ?", batch.ID).Delete(&models.ProductConfig{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ProductionBatch{}, "id = ?", batch.ID).Error
	})
	if err != nil {
		return err
	}

	s.auditTransition(ctx, actor, models.AuditActionBatchDelete, batch, nil)
	return nil
}

// Validate runs the comprehensive validation without mutating anything, for
// preview endpoints and pre-submit UI checks.
func (s *Service) Validate(ctx context.Context, batchID string) (*models.BatchValidationResult, error) {
	batch, err := fetchBatch(ctx, s.db, batchID)
	if err != nil {
		return nil, err
	}
	intent := validation.IntentReview
	if batch.Status == models.BatchUnsubmitted {
		intent = validation.IntentSubmit
	}
	return s.validator.ValidateBatch(ctx, batch, intent, s.now())
}

// Get fetches one batch with its products.
func (s *Service) Get(ctx context.Context, batchID string) (*models.ProductionBatch, error) {
	return fetchBatch(ctx, s.db.WithContext(ctx), batchID)
}

// ListFilters narrows List results.
type ListFilters struct {
	Status    *models.BatchStatus
	MachineID *string
	Date      *time.Time
	Shift     *models.Shift
	Limit     int
	Offset    int
}

// List returns batches, newest first.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]models.ProductionBatch, int64, error) {
	var batches []models.ProductionBatch
	var total int64

	query := s.db.WithContext(ctx).Model(&models.ProductionBatch{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.MachineID != nil {
		query = query.Where("machine_id = ?", *filters.MachineID)
	}
	if filters.Date != nil {
		d := *filters.Date
		dayStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		query = query.Where("target_date >= ? AND target_date < ?", dayStart, dayStart.AddDate(0, 0, 1))
	}
	if filters.Shift != nil {
		query = query.Where("shift = ?", *filters.Shift)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Preload("Products").Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// ListForDateShift returns every batch targeting the (date, shift) slot.
func (s *Service) ListForDateShift(ctx context.Context, date time.Time, shift models.Shift) ([]models.ProductionBatch, error) {
	batches, _, err := s.List(ctx, ListFilters{Date: &date, Shift: &shift})
	return batches, err
}

// auditTransition writes the audit record for a committed transition. The
// state is already durable at this point, so a failed audit write is logged
// and tolerated rather than unwinding the transition.
func (s *Service) auditTransition(ctx context.Context, actor Actor, action models.AuditAction, batch *models.ProductionBatch, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["batch_number"] = batch.BatchNumber
	details["status"] = string(batch.Status)

	entry := audit.Entry{
		UserName:   actor.Name,
		Action:     action,
		EntityType: "production_batch",
		EntityID:   batch.ID,
		Details:    details,
	}
	if actor.ID != "" {
		id := actor.ID
		entry.UserID = &id
	}

	if err := s.auditSvc.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Str("batch", batch.ID).
			Msg("audit write failed after committed transition")
	}
}

func (s *Service) publish(event events.EventType, actor Actor, batch *models.ProductionBatch) {
	telemetry.BatchTransitionsTotal.WithLabelValues(string(event)).Inc()
	if s.bus == nil {
		return
	}
	payload := events.Payload{
		"batch_id":     batch.ID,
		"batch_number": batch.BatchNumber,
		"machine_id":   batch.MachineID,
		"status":       string(batch.Status),
		"user_id":      actor.ID,
	}
	if batch.SubmittedBy != nil {
		payload["submitted_by"] = *batch.SubmittedBy
	}
	if sched := batch.Scheduling(); sched.IsShiftAware() {
		payload["target_date"] = sched.TargetDate.Format("2006-01-02")
		payload["shift"] = string(sched.Shift)
	}
	s.bus.Publish(event, payload)
}

// validationFailed counts the blocking issues and wraps the result.
func validationFailed(result *models.BatchValidationResult) error {
	for _, issue := range result.Issues {
		telemetry.BatchValidationFailuresTotal.WithLabelValues(string(issue.Code)).Inc()
	}
	return &ValidationFailedError{Result: result}
}

// lockMachine takes a row lock on the machine so submits for the same
// machine serialize. SQLite has one writer and no FOR UPDATE syntax, so
// the lock is skipped there.
func lockMachine(ctx context.Context, tx *gorm.DB, machineID string) error {
	if tx.Dialector.Name() == "sqlite" {
		return nil
	}
	var machine models.Machine
	return tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&machine, "id = ?", machineID).Error
}

// isSlotViolation reports whether err is the slot unique index rejecting a
// duplicate (machine, date, shift) claim. Postgres names the index in the
// error; sqlite names the columns.
func isSlotViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, models.SlotIndexName) ||
		strings.Contains(msg, "production_batches.machine_id, production_batches.target_date, production_batches.shift")
}

// slotTakenResult reports the slot loss detected at the index rather than
// by the conflict query.
func slotTakenResult(batch *models.ProductionBatch, now time.Time) *models.BatchValidationResult {
	result := &models.BatchValidationResult{Valid: true, CheckedAt: now}
	sched := batch.Scheduling()
	result.AddIssue(models.ValidationIssue{
		Code: models.IssueMachineConflict,
		Message: fmt.Sprintf("another batch already claims this machine for the %s shift on %s",
			sched.Shift, sched.TargetDate.Format("2006-01-02")),
		Details: map[string]any{
			"machine_id": batch.MachineID,
		},
	})
	return result
}

func fetchBatch(ctx context.Context, tx *gorm.DB, batchID string) (*models.ProductionBatch, error) {
	var batch models.ProductionBatch
	err := tx.WithContext(ctx).Preload("Products").First(&batch, "id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func buildProducts(batchID string, inputs []ProductInput) []models.ProductConfig {
	products := make([]models.ProductConfig, 0, len(inputs))
	for _, in := range inputs {
		products = append(products, models.ProductConfig{
			ID:             uuid.NewString(),
			BatchID:        batchID,
			Name:           in.Name,
			PrimaryColor:   in.PrimaryColor,
			SecondaryColor: in.SecondaryColor,
			Stations:       append(models.IntList(nil), in.Stations...),
			DualColor:      in.DualColor,
		})
	}
	return products
}
