/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifications turns workflow events into in-app notifications.
// Submissions notify every administrator; approval and rejection outcomes
// notify the submitter.
package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/events"
	"github.com/lopanworks/lopan_admin/internal/models"
)

// Service handles notification creation and read tracking.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger

	mu      sync.RWMutex
	running bool
}

// NewService creates a new notification service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "notifications").Logger(),
	}
}

// Start subscribes to workflow events and fans them out until ctx ends.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	submitted := s.bus.Subscribe(events.EventBatchSubmitted)
	approved := s.bus.Subscribe(events.EventBatchApproved)
	rejected := s.bus.Subscribe(events.EventBatchRejected)

	defer func() {
		s.bus.Unsubscribe(events.EventBatchSubmitted, submitted)
		s.bus.Unsubscribe(events.EventBatchApproved, approved)
		s.bus.Unsubscribe(events.EventBatchRejected, rejected)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Msg("notification service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("notification service stopping")
			return
		case payload := <-submitted:
			s.handleSubmitted(ctx, payload)
		case payload := <-approved:
			s.handleOutcome(ctx, payload, models.NotificationTypeBatchApproved, "Batch Approved")
		case payload := <-rejected:
			s.handleOutcome(ctx, payload, models.NotificationTypeBatchRejected, "Batch Rejected")
		}
	}
}

// Running reports whether the event loop is active.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// handleSubmitted notifies every active administrator that a batch awaits
// review.
func (s *Service) handleSubmitted(ctx context.Context, payload events.Payload) {
	batchID, _ := payload["batch_id"].(string)
	batchNumber, _ := payload["batch_number"].(string)
	if batchID == "" {
		return
	}

	var admins []models.User
	if err := s.db.WithContext(ctx).
		Where("role = ? AND active = ?", models.RoleAdministrator, true).
		Find(&admins).Error; err != nil {
		s.logger.Error().Err(err).Msg("load administrators for submit notification")
		return
	}

	for _, admin := range admins {
		s.create(ctx, &models.Notification{
			UserID:           admin.ID,
			NotificationType: models.NotificationTypeBatchSubmitted,
			Subject:          "Batch Awaiting Review",
			Body:             fmt.Sprintf("Production batch %s was submitted and awaits your review.", batchNumber),
			BatchID:          batchID,
			Metadata:         metadataFrom(payload),
		})
	}
}

// handleOutcome notifies the submitter about an approval or rejection.
func (s *Service) handleOutcome(ctx context.Context, payload events.Payload, nType models.NotificationType, subject string) {
	batchID, _ := payload["batch_id"].(string)
	batchNumber, _ := payload["batch_number"].(string)
	submitterID, _ := payload["submitted_by"].(string)
	if batchID == "" || submitterID == "" {
		return
	}

	verb := "approved"
	if nType == models.NotificationTypeBatchRejected {
		verb = "rejected"
	}

	s.create(ctx, &models.Notification{
		UserID:           submitterID,
		NotificationType: nType,
		Subject:          subject,
		Body:             fmt.Sprintf("Production batch %s was %s.", batchNumber, verb),
		BatchID:          batchID,
		Metadata:         metadataFrom(payload),
	})
}

func (s *Service) create(ctx context.Context, n *models.Notification) {
	n.ID = uuid.NewString()
	n.Status = models.NotificationStatusUnread
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		s.logger.Error().Err(err).Str("user", n.UserID).Msg("create notification")
	}
}

func metadataFrom(payload events.Payload) map[string]any {
	meta := make(map[string]any, len(payload))
	for k, v := range payload {
		meta[k] = v
	}
	return meta
}

// List returns a user's notifications, newest first. unreadOnly narrows to
// unread ones.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("status = ?", models.NotificationStatusUnread)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

// UnreadCount returns the number of unread notifications for the user.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND status = ?", userID, models.NotificationStatusUnread).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification read. Scoped to the owning user so one
// user cannot touch another's notifications.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]any{
			"status":  models.NotificationStatusRead,
			"read_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND status = ?", userID, models.NotificationStatusUnread).
		Updates(map[string]any{
			"status":  models.NotificationStatusRead,
			"read_at": &now,
		})
	return result.RowsAffected, result.Error
}
