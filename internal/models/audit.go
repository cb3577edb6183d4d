/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for every state-changing workflow operation.
const (
	AuditActionBatchCreate    AuditAction = "batch.create"
	AuditActionBatchUpdate    AuditAction = "batch.update"
	AuditActionBatchDelete    AuditAction = "batch.delete"
	AuditActionBatchSubmit    AuditAction = "batch.submit"
	AuditActionBatchApprove   AuditAction = "batch.approve"
	AuditActionBatchReject    AuditAction = "batch.reject"
	AuditActionBatchApplied   AuditAction = "batch.applied"
	AuditActionBatchCompleted AuditAction = "batch.completed"
	AuditActionUserLogin      AuditAction = "user.login"
	AuditActionMachineCreate  AuditAction = "machine.create"
	AuditActionMachineUpdate  AuditAction = "machine.update"
)

// AuditLog records state transitions for compliance. The table is
// append-only; nothing in the codebase updates or deletes rows.
type AuditLog struct {
	ID         string         `gorm:"type:uuid;primaryKey"`
	Timestamp  time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	UserID     *string        `gorm:"type:uuid;index:idx_audit_user"` // NULL for system actions
	UserName   string         `gorm:"type:varchar(128)"`              // Denormalized for readability
	Action     AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	EntityType string         `gorm:"type:varchar(64)"` // "production_batch", "user", "machine"
	EntityID   string         `gorm:"type:uuid;index:idx_audit_entity"`
	Details    map[string]any `gorm:"type:jsonb;serializer:json"`
	IPAddress  string         `gorm:"type:varchar(45)"`
	UserAgent  string         `gorm:"type:varchar(512)"`
	CreatedAt  time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
