/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// NotificationType defines the type of notification.
type NotificationType string

const (
	NotificationTypeBatchSubmitted NotificationType = "batch_submitted" // A batch awaits review
	NotificationTypeBatchApproved  NotificationType = "batch_approved"  // Submitter's batch was approved
	NotificationTypeBatchRejected  NotificationType = "batch_rejected"  // Submitter's batch was rejected
)

// NotificationStatus defines the read state of an in-app notification.
type NotificationStatus string

const (
	NotificationStatusUnread NotificationStatus = "unread"
	NotificationStatusRead   NotificationStatus = "read"
)

// Notification stores an in-app notification entry.
type Notification struct {
	ID               string             `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string             `gorm:"type:uuid;index:idx_notifications_user;not null" json:"user_id"`
	NotificationType NotificationType   `gorm:"type:varchar(64);index:idx_notifications_type;not null" json:"notification_type"`
	Subject          string             `gorm:"type:varchar(255)" json:"subject,omitempty"`
	Body             string             `gorm:"type:text;not null" json:"body"`
	Status           NotificationStatus `gorm:"type:varchar(32);not null;default:'unread';index:idx_notifications_status" json:"status"`
	ReadAt           *time.Time         `json:"read_at,omitempty"`

	// Reference to the batch the notification is about.
	BatchID string `gorm:"type:uuid;index" json:"batch_id,omitempty"`

	Metadata map[string]any `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
