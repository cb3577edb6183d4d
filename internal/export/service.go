/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package export renders batch and audit data as downloadable files.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/models"
)

// Result is one rendered export ready to serve as a download.
type Result struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service renders exports.
type Service struct {
	db       *gorm.DB
	auditSvc *audit.Service
	logger   zerolog.Logger
}

// NewService creates the export service.
func NewService(db *gorm.DB, auditSvc *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		auditSvc: auditSvc,
		logger:   logger.With().Str("component", "export").Logger(),
	}
}

// Filters narrow which batches get exported.
type Filters struct {
	Status    *models.BatchStatus
	MachineID *string
	Start     *time.Time
	End       *time.Time
}

func (s *Service) loadBatches(ctx context.Context, filters Filters) ([]models.ProductionBatch, error) {
	query := s.db.WithContext(ctx).Model(&models.ProductionBatch{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.MachineID != nil {
		query = query.Where("machine_id = ?", *filters.MachineID)
	}
	if filters.Start != nil {
		query = query.Where("created_at >= ?", *filters.Start)
	}
	if filters.End != nil {
		query = query.Where("created_at < ?", *filters.End)
	}

	var batches []models.ProductionBatch
	err := query.Preload("Products").Order("created_at ASC").Find(&batches).Error
	return batches, err
}

// BatchesCSV renders the filtered batches as a CSV file, one row per batch
// with products flattened into a summary column.
func (s *Service) BatchesCSV(ctx context.Context, filters Filters) (*Result, error) {
	batches, err := s.loadBatches(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"batch_number", "machine_id", "mode", "status",
		"target_date", "shift", "products", "stations",
		"submitted_at", "approved_at", "rejected_at", "rejection_reason",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for i := range batches {
		batch := &batches[i]
		row := []string{
			batch.BatchNumber,
			batch.MachineID,
			string(batch.Mode),
			string(batch.Status),
			"", "",
			productSummary(batch.Products),
			stationSummary(batch.OccupiedStations()),
			formatTime(batch.SubmittedAt),
			formatTime(batch.ApprovedAt),
			formatTime(batch.RejectedAt),
			batch.RejectionReason,
		}
		if sched := batch.Scheduling(); sched.IsShiftAware() {
			row[4] = sched.TargetDate.Format("2006-01-02")
			row[5] = string(sched.Shift)
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	s.logger.Debug().Int("batches", len(batches)).Msg("rendered batch CSV export")
	return &Result{
		Filename:    fmt.Sprintf("batches-%s.csv", time.Now().Format("20060102")),
		ContentType: "text/csv; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}

// BatchesJSON renders the filtered batches, products included, as JSON.
func (s *Service) BatchesJSON(ctx context.Context, filters Filters) (*Result, error) {
	batches, err := s.loadBatches(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}

	data, err := json.MarshalIndent(batches, "", "  ")
	if err != nil {
		return nil, err
	}

	return &Result{
		Filename:    fmt.Sprintf("batches-%s.json", time.Now().Format("20060102")),
		ContentType: "application/json",
		Data:        data,
	}, nil
}

// AuditCSV renders the audit trail matching the filters as CSV.
func (s *Service) AuditCSV(ctx context.Context, filters audit.QueryFilters) (*Result, error) {
	// Export everything in range, not one page.
	if filters.Limit <= 0 {
		filters.Limit = 10000
	}
	logs, _, err := s.auditSvc.Query(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"timestamp", "user", "action", "entity_type", "entity_id", "details"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, entry := range logs {
		details, _ := json.Marshal(entry.Details)
		row := []string{
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.UserName,
			string(entry.Action),
			entry.EntityType,
			entry.EntityID,
			string(details),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return &Result{
		Filename:    fmt.Sprintf("audit-%s.csv", time.Now().Format("20060102")),
		ContentType: "text/csv; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}

func productSummary(products []models.ProductConfig) string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return strings.Join(names, "; ")
}

func stationSummary(stations []int) string {
	parts := make([]string, 0, len(stations))
	for _, station := range stations {
		parts = append(parts, strconv.Itoa(station))
	}
	return strings.Join(parts, " ")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
