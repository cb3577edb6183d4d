/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"github.com/lopanworks/lopan_admin/internal/models"
)

// Action names a privileged workflow operation.
type Action string

const (
	ActionCreateBatch    Action = "batch.create"
	ActionSubmitBatch    Action = "batch.submit"
	ActionApproveBatch   Action = "batch.approve"
	ActionRejectBatch    Action = "batch.reject"
	ActionViewAuditTrail Action = "audit.view"
	ActionManageMachines Action = "machine.manage"
)

// Decision is the tagged outcome of an authorization check.
type Decision struct {
	Authorized bool
	Reason     string
}

// Authorized builds a positive decision.
func Authorized() Decision {
	return Decision{Authorized: true}
}

// Denied builds a negative decision with a caller-facing reason.
func Denied(reason string) Decision {
	return Decision{Reason: reason}
}

// Gate is the single place role requirements are encoded. Services check
// once per privileged transition instead of scattering role comparisons.
type Gate struct {
	rules map[Action][]models.RoleName
}

// NewGate creates a gate with the plant's standard role assignments.
func NewGate() *Gate {
	return &Gate{
		rules: map[Action][]models.RoleName{
			ActionCreateBatch:    {models.RoleAdministrator, models.RoleWorkshopManager},
			ActionSubmitBatch:    {models.RoleAdministrator, models.RoleWorkshopManager},
			ActionApproveBatch:   {models.RoleAdministrator},
			ActionRejectBatch:    {models.RoleAdministrator},
			ActionViewAuditTrail: {models.RoleAdministrator},
			ActionManageMachines: {models.RoleAdministrator},
		},
	}
}

// Authorize checks whether the role may perform the action.
func (g *Gate) Authorize(role models.RoleName, action Action) Decision {
	allowed, ok := g.rules[action]
	if !ok {
		return Denied("unknown action " + string(action))
	}
	for _, candidate := range allowed {
		if candidate == role {
			return Authorized()
		}
	}
	return Denied(string(role) + " may not perform " + string(action))
}

// Roles returns the roles permitted for an action, for API documentation
// and seeding.
func (g *Gate) Roles(action Action) []models.RoleName {
	return append([]models.RoleName(nil), g.rules[action]...)
}
