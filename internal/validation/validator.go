/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/models"
	"github.com/lopanworks/lopan_admin/internal/shiftpolicy"
)

// Validator gates every mutating batch operation behind a set of checks.
// Problems come back as data in a BatchValidationResult; only storage
// failures surface as Go errors.
type Validator struct {
	db     *gorm.DB
	policy *shiftpolicy.Policy
	logger zerolog.Logger
}

// NewValidator creates a new batch validator.
func NewValidator(db *gorm.DB, policy *shiftpolicy.Policy, logger zerolog.Logger) *Validator {
	return &Validator{
		db:     db,
		policy: policy,
		logger: logger.With().Str("component", "batch_validator").Logger(),
	}
}

// Intent states what the caller is about to do with the batch. The same
// checks run for every intent; intent only decides which findings block.
type Intent string

const (
	// IntentDraft covers create and edit. A machine conflict is only a
	// warning here: the slot may free up before the draft is submitted.
	IntentDraft Intent = "draft"
	// IntentSubmit is the claim on the (machine, date, shift) slot, so a
	// conflict blocks.
	IntentSubmit Intent = "submit"
	// IntentReview covers approval-time re-validation. The submission
	// already passed its gates; only drift is surfaced.
	IntentReview Intent = "review"
)

// ValidateBatch runs every check against the batch as it would exist after
// the caller's pending mutation. The result is the same for an unchanged
// batch, intent, and now.
func (v *Validator) ValidateBatch(ctx context.Context, batch *models.ProductionBatch, intent Intent, now time.Time) (*models.BatchValidationResult, error) {
	return v.ValidateBatchTx(ctx, v.db, batch, intent, now)
}

// ValidateBatchTx runs the checks on an explicit transaction handle so a
// submit can re-check conflicts inside its own write transaction.
func (v *Validator) ValidateBatchTx(ctx context.Context, tx *gorm.DB, batch *models.ProductionBatch, intent Intent, now time.Time) (*models.BatchValidationResult, error) {
	result := &models.BatchValidationResult{
		Valid:     true,
		Issues:    []models.ValidationIssue{},
		Warnings:  []models.ValidationIssue{},
		CheckedAt: now,
	}

	capacity, err := v.checkMachine(ctx, tx, batch, result)
	if err != nil {
		return nil, err
	}

	v.checkProducts(batch, capacity, result)
	v.checkShiftEligibility(batch, intent, now, result)

	if err := v.checkMachineConflict(ctx, tx, batch, intent, result); err != nil {
		return nil, err
	}

	v.checkTimeContext(batch, now, result)

	return result, nil
}

// checkMachine verifies the machine exists and returns its capacity.
func (v *Validator) checkMachine(ctx context.Context, tx *gorm.DB, batch *models.ProductionBatch, result *models.BatchValidationResult) (int, error) {
	if batch.MachineID == "" {
		result.AddIssue(models.ValidationIssue{
			Code:    models.IssueMachineMissing,
			Message: "the batch does not name a machine",
		})
		return models.DefaultStationCapacity, nil
	}

	var machine models.Machine
	err := tx.WithContext(ctx).First(&machine, "id = ?", batch.MachineID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.AddIssue(models.ValidationIssue{
			Code:    models.IssueMachineMissing,
			Message: "machine " + batch.MachineID + " does not exist",
		})
		return models.DefaultStationCapacity, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fetch machine: %w", err)
	}

	capacity := machine.StationCapacity
	if capacity <= 0 {
		capacity = models.DefaultStationCapacity
	}
	return capacity, nil
}

// checkProducts verifies every product's configuration and the station
// layout across the whole batch.
func (v *Validator) checkProducts(batch *models.ProductionBatch, capacity int, result *models.BatchValidationResult) {
	if len(batch.Products) == 0 {
		result.AddIssue(models.ValidationIssue{
			Code:    models.IssueNoProducts,
			Message: "the batch has no products",
		})
		return
	}

	claimed := map[int]string{} // station -> product name
	for _, product := range batch.Products {
		if product.Name == "" {
			result.AddIssue(models.ValidationIssue{
				Code:    models.IssueProductInvalid,
				Message: "a product is missing its name",
			})
		}
		if product.PrimaryColor == "" {
			result.AddIssue(models.ValidationIssue{
				Code:    models.IssueProductInvalid,
				Message: fmt.Sprintf("product %q is missing its primary color", product.Name),
			})
		}
		if product.DualColor && product.SecondaryColor == "" {
			result.AddIssue(models.ValidationIssue{
				Code:    models.IssueProductInvalid,
				Message: fmt.Sprintf("dual-color product %q is missing its secondary color", product.Name),
			})
		}
		if len(product.Stations) == 0 {
			result.AddIssue(models.ValidationIssue{
				Code:    models.IssueProductInvalid,
				Message: fmt.Sprintf("product %q occupies no stations", product.Name),
			})
		}

		for _, station := range product.Stations {
			if station < 1 || station > capacity {
				result.AddIssue(models.ValidationIssue{
					Code:    models.IssueStationRange,
					Message: fmt.Sprintf("product %q claims station %d outside 1-%d", product.Name, station, capacity),
					Details: map[string]any{"station": station, "capacity": capacity},
				})
				continue
			}
			if owner, taken := claimed[station]; taken {
				result.AddIssue(models.ValidationIssue{
					Code:    models.IssueStationOverlap,
					Message: fmt.Sprintf("station %d is claimed by both %q and %q", station, owner, product.Name),
					Details: map[string]any{"station": station},
				})
				continue
			}
			claimed[station] = product.Name
		}
	}
}

// checkShiftEligibility applies the cutoff policy to batches still being
// drafted or submitted. At review time the original submission stands; time
// drift is surfaced by checkTimeContext instead.
func (v *Validator) checkShiftEligibility(batch *models.ProductionBatch, intent Intent, now time.Time, result *models.BatchValidationResult) {
	scheduling := batch.Scheduling()
	if !scheduling.IsShiftAware() || intent == IntentReview {
		return
	}

	if !scheduling.Shift.Valid() {
		result.AddIssue(models.ValidationIssue{
			Code:    models.IssueShiftNotAllowed,
			Message: fmt.Sprintf("unknown shift %q", scheduling.Shift),
		})
		return
	}

	if !v.policy.IsShiftAllowed(scheduling.Shift, scheduling.TargetDate, now) {
		result.AddIssue(models.ValidationIssue{
			Code: models.IssueShiftNotAllowed,
			Message: fmt.Sprintf("the %s shift on %s is no longer schedulable",
				scheduling.Shift, scheduling.TargetDate.Format("2006-01-02")),
			Details: map[string]any{
				"shift":       string(scheduling.Shift),
				"target_date": scheduling.TargetDate.Format("2006-01-02"),
			},
		})
	}
}

// checkMachineConflict enforces at most one non-rejected batch per
// (machine, date, shift), excluding the batch under validation so a no-op
// re-validation passes.
func (v *Validator) checkMachineConflict(ctx context.Context, tx *gorm.DB, batch *models.ProductionBatch, intent Intent, result *models.BatchValidationResult) error {
	scheduling := batch.Scheduling()
	if !scheduling.IsShiftAware() {
		return nil
	}

	conflicts, err := v.conflictingBatches(ctx, tx, scheduling.TargetDate, scheduling.Shift, batch.MachineID, batch.ID)
	if err != nil {
		return fmt.Errorf("query conflicting batches: %w", err)
	}

	for _, other := range conflicts {
		issue := models.ValidationIssue{
			Code: models.IssueMachineConflict,
			Message: fmt.Sprintf("batch %s already claims this machine for the %s shift on %s",
				other.BatchNumber, scheduling.Shift, scheduling.TargetDate.Format("2006-01-02")),
			Details: map[string]any{
				"conflicting_batch_id":     other.ID,
				"conflicting_batch_number": other.BatchNumber,
				"conflicting_status":       string(other.Status),
			},
		}
		if intent == IntentSubmit {
			result.AddIssue(issue)
		} else {
			result.AddWarning(issue)
		}
	}
	return nil
}

// conflictingBatches returns the submitted, non-rejected batches holding
// the same (machine, date, shift) slot, excluding excludeID. Drafts do not
// claim the slot until they are submitted.
func (v *Validator) conflictingBatches(ctx context.Context, tx *gorm.DB, date time.Time, shift models.Shift, machineID, excludeID string) ([]models.ProductionBatch, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var conflicts []models.ProductionBatch
	query := tx.WithContext(ctx).
		Where("machine_id = ?", machineID).
		Where("shift = ?", shift).
		Where("target_date >= ? AND target_date < ?", dayStart, dayEnd).
		Where("status IN ?", []models.BatchStatus{models.BatchPending, models.BatchApproved})
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Find(&conflicts).Error; err != nil {
		return nil, err
	}
	return conflicts, nil
}

// HasConflictingBatches reports whether any other non-rejected batch claims
// the (machine, date, shift) slot.
func (v *Validator) HasConflictingBatches(ctx context.Context, date time.Time, shift models.Shift, machineID, excludeID string) (bool, error) {
	conflicts, err := v.conflictingBatches(ctx, v.db, date, shift, machineID, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// checkTimeContext warns when the shift window the batch was submitted in
// has since closed. Never blocking: the reviewer decides what to do with a
// stale submission.
func (v *Validator) checkTimeContext(batch *models.ProductionBatch, now time.Time, result *models.BatchValidationResult) {
	if batch.SubmittedAt == nil {
		return
	}
	edit := v.policy.CheckEditContext(batch.Scheduling(), *batch.SubmittedAt, now)
	if edit.Stale {
		result.AddWarning(models.ValidationIssue{
			Code:    models.IssueStaleTimeContext,
			Message: edit.Reason,
		})
	}
}
