/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/models"
)

// Service appends workflow transitions to the audit log. Entries are only
// ever written; nothing updates or deletes them.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Entry carries the fields of one audit record. ID and timestamps are filled
// in when omitted.
type Entry struct {
	UserID     *string
	UserName   string
	Action     models.AuditAction
	EntityType string
	EntityID   string
	Details    map[string]any
	IPAddress  string
	UserAgent  string
}

// Log records an audit entry. Callers must await the returned error before
// reporting their own operation as complete so the log stays ordered with
// the transition it describes.
func (s *Service) Log(ctx context.Context, entry Entry) error {
	return s.LogTx(ctx, s.db, entry)
}

// LogTx records an audit entry on an explicit transaction handle so a state
// write and its audit record can commit together.
func (s *Service) LogTx(ctx context.Context, tx *gorm.DB, entry Entry) error {
	record := &models.AuditLog{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		UserID:     entry.UserID,
		UserName:   entry.UserName,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    entry.Details,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
		CreatedAt:  time.Now(),
	}
	if record.Details == nil {
		record.Details = make(map[string]any)
	}

	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(record.Action)).
		Str("entity_id", record.EntityID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	UserID    *string
	EntityID  *string
	Action    *models.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.EntityID != nil {
		query = query.Where("entity_id = ?", *filters.EntityID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100) // Default limit
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
