/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package batch

import (
	"errors"
	"fmt"

	"github.com/lopanworks/lopan_admin/internal/models"
)

var (
	// ErrNotFound means the batch id resolves to nothing.
	ErrNotFound = errors.New("batch not found")

	// ErrInvalidTransition means the batch's current status does not permit
	// the requested transition.
	ErrInvalidTransition = errors.New("invalid batch state transition")

	// ErrPermissionDenied means the acting role may not perform the
	// transition.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrReasonRequired means reject was called without a reason.
	ErrReasonRequired = errors.New("rejection reason required")
)

// ValidationFailedError carries the blocking issues that stopped an
// operation. Warnings never produce this error.
type ValidationFailedError struct {
	Result *models.BatchValidationResult
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("batch validation failed with %d issue(s)", len(e.Result.Issues))
}

// TransitionError wraps ErrInvalidTransition with the offending states.
func transitionError(from models.BatchStatus, op string) error {
	return fmt.Errorf("%w: cannot %s a %s batch", ErrInvalidTransition, op, from)
}

func permissionError(reason string) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
}
