package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/audit"
	"github.com/lopanworks/lopan_admin/internal/auth"
	"github.com/lopanworks/lopan_admin/internal/events"
	"github.com/lopanworks/lopan_admin/internal/models"
	"github.com/lopanworks/lopan_admin/internal/shiftpolicy"
	"github.com/lopanworks/lopan_admin/internal/validation"
)

var (
	adminActor   = Actor{ID: uuid.NewString(), Name: "Admin", Role: models.RoleAdministrator}
	managerActor = Actor{ID: uuid.NewString(), Name: "Manager", Role: models.RoleWorkshopManager}
)

type testEnv struct {
	svc     *Service
	db      *gorm.DB
	machine *models.Machine
	now     time.Time
}

func setupService(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Machine{},
		&models.ProductionBatch{},
		&models.ProductConfig{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	machine := &models.Machine{
		ID:              uuid.NewString(),
		Number:          "M1",
		Name:            "Line 1",
		StationCapacity: 12,
		Active:          true,
	}
	if err := db.Create(machine).Error; err != nil {
		t.Fatalf("create machine: %v", err)
	}

	validator := validation.NewValidator(db, shiftpolicy.New(nil), zerolog.Nop())
	auditSvc := audit.NewService(db, zerolog.Nop())
	svc := NewService(db, validator, auditSvc, auth.NewGate(), events.NewBus(), zerolog.Nop())

	env := &testEnv{
		svc:     svc,
		db:      db,
		machine: machine,
		now:     time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
	}
	svc.SetClock(func() time.Time { return env.now })
	return env
}

func (e *testEnv) createInput(stations ...[]int) CreateInput {
	products := make([]ProductInput, 0, len(stations))
	for i, sts := range stations {
		products = append(products, ProductInput{
			Name:         "widget-" + string(rune('a'+i)),
			PrimaryColor: "red",
			Stations:     sts,
		})
	}
	return CreateInput{
		MachineID:  e.machine.ID,
		Mode:       models.ModeSingleColor,
		Scheduling: models.ShiftAware(e.now, models.ShiftMorning),
		Products:   products,
	}
}

func TestCreateSubmitApprove(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, err := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2, 3}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if batch.Status != models.BatchUnsubmitted {
		t.Fatalf("expected unsubmitted, got %s", batch.Status)
	}
	if batch.BatchNumber != "PC-20260310-0001" {
		t.Fatalf("unexpected batch number %s", batch.BatchNumber)
	}

	batch, err = env.svc.Submit(ctx, managerActor, batch.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if batch.Status != models.BatchPending {
		t.Fatalf("expected pending, got %s", batch.Status)
	}
	if batch.SubmittedAt == nil || !batch.SubmittedAt.Equal(env.now) {
		t.Fatal("submit must stamp SubmittedAt")
	}

	summary := &models.BatchApprovalSummary{
		EstimatedHours: 6.5,
		Priority:       "normal",
		RiskFactors:    []string{"new colorway"},
	}
	batch, err = env.svc.Approve(ctx, adminActor, batch.ID, summary, "looks fine")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if batch.Status != models.BatchApproved {
		t.Fatalf("expected approved, got %s", batch.Status)
	}
	if batch.ApprovedBy == nil || *batch.ApprovedBy != adminActor.ID {
		t.Fatal("approve must record the approver")
	}

	// Exactly one approve entry referencing the batch.
	var logs []models.AuditLog
	if err := env.db.Where("action = ? AND entity_id = ?", models.AuditActionBatchApprove, batch.ID).Find(&logs).Error; err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly one approve audit entry, got %d", len(logs))
	}
	if logs[0].Details["priority"] != "normal" {
		t.Fatalf("approve audit must carry the summary priority, got %+v", logs[0].Details)
	}
}

func TestSubmitConflictingBatchFails(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	first, err := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2, 3}))
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if _, err := env.svc.Submit(ctx, managerActor, first.ID); err != nil {
		t.Fatalf("Submit first: %v", err)
	}

	// The second draft is creatable; the slot conflict only blocks submit.
	second, err := env.svc.Create(ctx, managerActor, env.createInput([]int{4, 5}))
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	_, err = env.svc.Submit(ctx, managerActor, second.ID)
	var vErr *ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}
	found := false
	for _, issue := range vErr.Result.Issues {
		if issue.Code == models.IssueMachineConflict {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected machine_conflict issue, got %+v", vErr.Result.Issues)
	}

	// The losing batch stays unsubmitted.
	reloaded, err := env.svc.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reloaded.Status != models.BatchUnsubmitted {
		t.Fatalf("failed submit must not mutate status, got %s", reloaded.Status)
	}
}

func TestSubmitAfterRejectionFreesSlot(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	first, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))
	if _, err := env.svc.Submit(ctx, managerActor, first.ID); err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	if _, err := env.svc.Reject(ctx, adminActor, first.ID, "wrong colors"); err != nil {
		t.Fatalf("Reject first: %v", err)
	}

	second, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{3, 4}))
	if _, err := env.svc.Submit(ctx, managerActor, second.ID); err != nil {
		t.Fatalf("rejected batches must release the slot: %v", err)
	}
}

func TestApproveRequiresAdministrator(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))
	if _, err := env.svc.Submit(ctx, managerActor, batch.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err := env.svc.Approve(ctx, managerActor, batch.ID, nil, "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	// No mutation, no audit entry.
	reloaded, _ := env.svc.Get(ctx, batch.ID)
	if reloaded.Status != models.BatchPending {
		t.Fatalf("denied approve must not mutate, got %s", reloaded.Status)
	}
	var count int64
	env.db.Model(&models.AuditLog{}).
		Where("action = ? AND entity_id = ?", models.AuditActionBatchApprove, batch.ID).
		Count(&count)
	if count != 0 {
		t.Fatalf("denied approve must not audit, got %d entries", count)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))
	if _, err := env.svc.Submit(ctx, managerActor, batch.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	for _, reason := range []string{"", "   ", "\t\n"} {
		if _, err := env.svc.Reject(ctx, adminActor, batch.ID, reason); !errors.Is(err, ErrReasonRequired) {
			t.Fatalf("reason %q: expected ErrReasonRequired, got %v", reason, err)
		}
	}

	reloaded, _ := env.svc.Get(ctx, batch.ID)
	if reloaded.Status != models.BatchPending {
		t.Fatalf("failed reject must leave batch pending, got %s", reloaded.Status)
	}

	if _, err := env.svc.Reject(ctx, adminActor, batch.ID, "  station plan infeasible "); err != nil {
		t.Fatalf("Reject with reason: %v", err)
	}
	reloaded, _ = env.svc.Get(ctx, batch.ID)
	if reloaded.RejectionReason != "station plan infeasible" {
		t.Fatalf("reason must be trimmed, got %q", reloaded.RejectionReason)
	}
}

func TestIllegalTransitions(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))

	// Approve/reject before submit.
	if _, err := env.svc.Approve(ctx, adminActor, batch.ID, nil, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("approve unsubmitted: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := env.svc.Reject(ctx, adminActor, batch.ID, "nope"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject unsubmitted: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := env.svc.Submit(ctx, managerActor, batch.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Double submit.
	if _, err := env.svc.Submit(ctx, managerActor, batch.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double submit: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := env.svc.Approve(ctx, adminActor, batch.ID, nil, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	// Approving an already-approved batch.
	if _, err := env.svc.Approve(ctx, adminActor, batch.ID, nil, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double approve: expected ErrInvalidTransition, got %v", err)
	}
	// Rejecting an approved batch.
	if _, err := env.svc.Reject(ctx, adminActor, batch.ID, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reject approved: expected ErrInvalidTransition, got %v", err)
	}

	reloaded, _ := env.svc.Get(ctx, batch.ID)
	if reloaded.Status != models.BatchApproved {
		t.Fatalf("illegal transitions must not mutate, got %s", reloaded.Status)
	}
}

func TestPostCutoffApprovalSucceedsWithStaleContext(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))
	if _, err := env.svc.Submit(ctx, managerActor, batch.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Move past the morning cutoff before approving.
	env.now = time.Date(2026, time.March, 10, 13, 0, 0, 0, time.UTC)

	batch, err := env.svc.Approve(ctx, adminActor, batch.ID, nil, "")
	if err != nil {
		t.Fatalf("post-cutoff approval must succeed: %v", err)
	}
	if batch.Status != models.BatchApproved {
		t.Fatalf("expected approved, got %s", batch.Status)
	}

	var logs []models.AuditLog
	env.db.Where("action = ? AND entity_id = ?", models.AuditActionBatchApprove, batch.ID).Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("expected one approve entry, got %d", len(logs))
	}
	if _, ok := logs[0].Details["stale_time_context"]; !ok {
		t.Fatalf("approve audit must record the stale time context, got %+v", logs[0].Details)
	}
}

func TestMarkAppliedAndCompleted(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1}))
	if _, err := env.svc.MarkApplied(ctx, managerActor, batch.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("apply before approval: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := env.svc.Submit(ctx, managerActor, batch.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := env.svc.Approve(ctx, adminActor, batch.ID, nil, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	batch, err := env.svc.MarkApplied(ctx, managerActor, batch.ID)
	if err != nil {
		t.Fatalf("MarkApplied: %v", err)
	}
	if batch.AppliedAt == nil {
		t.Fatal("MarkApplied must stamp AppliedAt")
	}
	if batch.Status != models.BatchApproved {
		t.Fatalf("applied batches stay approved, got %s", batch.Status)
	}

	batch, err = env.svc.MarkCompleted(ctx, managerActor, batch.ID)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if batch.CompletedAt == nil {
		t.Fatal("MarkCompleted must stamp CompletedAt")
	}
}

func TestUpdateOnlyDrafts(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))

	updated, err := env.svc.Update(ctx, managerActor, batch.ID, UpdateInput{
		MachineID:  env.machine.ID,
		Mode:       models.ModeSingleColor,
		Scheduling: models.ShiftAware(env.now, models.ShiftEvening),
		Products: []ProductInput{
			{Name: "widget-z", PrimaryColor: "blue", Stations: []int{7, 8}},
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Products) != 1 || updated.Products[0].Name != "widget-z" {
		t.Fatalf("update must replace products, got %+v", updated.Products)
	}

	if _, err := env.svc.Submit(ctx, managerActor, batch.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = env.svc.Update(ctx, managerActor, batch.ID, UpdateInput{MachineID: env.machine.ID})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("editing a pending batch: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCreateBlocksOnOverlap(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	input := env.createInput([]int{1, 2, 3}, []int{3, 4})
	_, err := env.svc.Create(ctx, managerActor, input)
	var vErr *ValidationFailedError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationFailedError, got %v", err)
	}

	var count int64
	env.db.Model(&models.ProductionBatch{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed create must not persist, found %d batches", count)
	}
}

func TestSalespersonCannotCreate(t *testing.T) {
	env := setupService(t)
	sales := Actor{ID: uuid.NewString(), Name: "Sales", Role: models.RoleSalesperson}

	_, err := env.svc.Create(context.Background(), sales, env.createInput([]int{1}))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestDeleteDraftCascades(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	batch, _ := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))
	if err := env.svc.Delete(ctx, managerActor, batch.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var products int64
	env.db.Model(&models.ProductConfig{}).Where("batch_id = ?", batch.ID).Count(&products)
	if products != 0 {
		t.Fatalf("delete must discard products, found %d", products)
	}

	if _, err := env.svc.Get(ctx, batch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBatchNumbersIncrementPerDay(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	// Distinct slots so drafts never share a machine conflict.
	first, err := env.svc.Create(ctx, managerActor, env.createInput([]int{1}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	input := env.createInput([]int{2})
	input.Scheduling = models.ShiftAware(env.now.AddDate(0, 0, 1), models.ShiftMorning)
	second, err := env.svc.Create(ctx, managerActor, input)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if first.BatchNumber != "PC-20260310-0001" || second.BatchNumber != "PC-20260310-0002" {
		t.Fatalf("unexpected numbers %s, %s", first.BatchNumber, second.BatchNumber)
	}

	env.now = env.now.AddDate(0, 0, 1)
	third, err := env.svc.Create(ctx, managerActor, env.createInput([]int{3}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if third.BatchNumber != "PC-20260311-0001" {
		t.Fatalf("sequence must restart daily, got %s", third.BatchNumber)
	}
}

func TestListForDateShift(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	morning, err := env.svc.Create(ctx, managerActor, env.createInput([]int{1, 2}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	evening := env.createInput([]int{3})
	evening.Scheduling = models.ShiftAware(env.now, models.ShiftEvening)
	if _, err := env.svc.Create(ctx, managerActor, evening); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := env.svc.ListForDateShift(ctx, env.now, models.ShiftMorning)
	if err != nil {
		t.Fatalf("ListForDateShift: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 morning batch, got %d", len(got))
	}
	if got[0].ID != morning.ID {
		t.Fatalf("expected batch %s, got %s", morning.ID, got[0].ID)
	}
}

func TestBatchNumbersSkipDeletedDrafts(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	first, err := env.svc.Create(ctx, managerActor, env.createInput([]int{1}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	input := env.createInput([]int{2})
	input.Scheduling = models.ShiftAware(env.now, models.ShiftEvening)
	second, err := env.svc.Create(ctx, managerActor, input)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second.BatchNumber != "PC-20260310-0002" {
		t.Fatalf("unexpected number %s", second.BatchNumber)
	}

	if err := env.svc.Delete(ctx, managerActor, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// The freed number must not be reissued while 0002 still exists.
	input = env.createInput([]int{3})
	input.Scheduling = models.ShiftAware(env.now.AddDate(0, 0, 1), models.ShiftMorning)
	third, err := env.svc.Create(ctx, managerActor, input)
	if err != nil {
		t.Fatalf("Create after delete: %v", err)
	}
	if third.BatchNumber != "PC-20260310-0003" {
		t.Fatalf("expected PC-20260310-0003, got %s", third.BatchNumber)
	}
}
