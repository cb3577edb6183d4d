package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/models"
)

func setupExport(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ProductionBatch{}, &models.ProductConfig{}, &models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	auditSvc := audit.NewService(db, zerolog.Nop())
	return NewService(db, auditSvc, zerolog.Nop()), db
}

func seedBatch(t *testing.T, db *gorm.DB, status models.BatchStatus) *models.ProductionBatch {
	t.Helper()
	batch := &models.ProductionBatch{
		ID:          uuid.NewString(),
		BatchNumber: "PC-20260310-0001",
		MachineID:   uuid.NewString(),
		Mode:        models.ModeSingleColor,
		Status:      status,
		CreatedBy:   uuid.NewString(),
	}
	batch.SetScheduling(models.ShiftAware(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), models.ShiftMorning))
	batch.Products = []models.ProductConfig{
		{ID: uuid.NewString(), BatchID: batch.ID, Name: "widget-a", PrimaryColor: "red", Stations: models.IntList{2, 1}},
		{ID: uuid.NewString(), BatchID: batch.ID, Name: "widget-b", PrimaryColor: "blue", Stations: models.IntList{5}},
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return batch
}

func TestBatchesCSV(t *testing.T) {
	svc, db := setupExport(t)
	seedBatch(t, db, models.BatchPending)

	result, err := svc.BatchesCSV(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("BatchesCSV: %v", err)
	}
	if result.ContentType != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", result.ContentType)
	}

	rows, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d rows", len(rows))
	}

	row := rows[1]
	if row[0] != "PC-20260310-0001" || row[3] != "pending" {
		t.Fatalf("unexpected row %v", row)
	}
	if row[4] != "2026-03-10" || row[5] != "morning" {
		t.Fatalf("expected scheduling columns, got %v", row)
	}
	if row[6] != "widget-a; widget-b" {
		t.Fatalf("unexpected product summary %q", row[6])
	}
	if row[7] != "1 2 5" {
		t.Fatalf("stations must be sorted, got %q", row[7])
	}
}

func TestBatchesCSVFiltersByStatus(t *testing.T) {
	svc, db := setupExport(t)
	seedBatch(t, db, models.BatchPending)

	approved := models.BatchApproved
	result, err := svc.BatchesCSV(context.Background(), Filters{Status: &approved})
	if err != nil {
		t.Fatalf("BatchesCSV: %v", err)
	}
	rows, _ := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}

func TestBatchesJSON(t *testing.T) {
	svc, db := setupExport(t)
	seedBatch(t, db, models.BatchApproved)

	result, err := svc.BatchesJSON(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("BatchesJSON: %v", err)
	}

	var batches []models.ProductionBatch
	if err := json.Unmarshal(result.Data, &batches); err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if len(batches) != 1 || len(batches[0].Products) != 2 {
		t.Fatalf("expected one batch with two products, got %+v", batches)
	}
}

func TestAuditCSV(t *testing.T) {
	svc, db := setupExport(t)
	auditSvc := audit.NewService(db, zerolog.Nop())

	entityID := uuid.NewString()
	if err := auditSvc.Log(context.Background(), audit.Entry{
		UserName:   "Admin",
		Action:     models.AuditActionBatchApprove,
		EntityType: "production_batch",
		EntityID:   entityID,
		Details:    map[string]any{"priority": "high"},
	}); err != nil {
		t.Fatalf("log audit: %v", err)
	}

	result, err := svc.AuditCSV(context.Background(), audit.QueryFilters{EntityID: &entityID})
	if err != nil {
		t.Fatalf("AuditCSV: %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(rows))
	}
	if rows[1][2] != "batch.approve" || rows[1][1] != "Admin" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}
