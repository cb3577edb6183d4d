package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/events"
	"github.com/lopanworks/lopan_admin/internal/models"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(db, events.NewBus(), zerolog.Nop()), db
}

func createUser(t *testing.T, db *gorm.DB, role models.RoleName, active bool) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.NewString(),
		Username: uuid.NewString(),
		Role:     role,
		Active:   active,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestSubmittedNotifiesActiveAdministrators(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	admin := createUser(t, db, models.RoleAdministrator, true)
	inactive := createUser(t, db, models.RoleAdministrator, false)
	manager := createUser(t, db, models.RoleWorkshopManager, true)

	svc.handleSubmitted(ctx, events.Payload{
		"batch_id":     uuid.NewString(),
		"batch_number": "PC-20260310-0001",
	})

	got, err := svc.List(ctx, admin.ID, true, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one notification for the admin, got %d", len(got))
	}
	if got[0].NotificationType != models.NotificationTypeBatchSubmitted {
		t.Fatalf("unexpected type %s", got[0].NotificationType)
	}

	for _, u := range []*models.User{inactive, manager} {
		if got, _ := svc.List(ctx, u.ID, false, 0); len(got) != 0 {
			t.Fatalf("user %s must not be notified, got %d", u.Role, len(got))
		}
	}
}

func TestOutcomeNotifiesSubmitter(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	submitter := createUser(t, db, models.RoleWorkshopManager, true)

	svc.handleOutcome(ctx, events.Payload{
		"batch_id":     uuid.NewString(),
		"batch_number": "PC-20260310-0002",
		"submitted_by": submitter.ID,
	}, models.NotificationTypeBatchRejected, "Batch Rejected")

	got, err := svc.List(ctx, submitter.ID, true, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].NotificationType != models.NotificationTypeBatchRejected {
		t.Fatalf("expected one rejection notification, got %+v", got)
	}
}

func TestMarkReadScopedToOwner(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	owner := createUser(t, db, models.RoleWorkshopManager, true)
	other := createUser(t, db, models.RoleWorkshopManager, true)

	svc.handleOutcome(ctx, events.Payload{
		"batch_id":     uuid.NewString(),
		"batch_number": "PC-20260310-0003",
		"submitted_by": owner.ID,
	}, models.NotificationTypeBatchApproved, "Batch Approved")

	got, _ := svc.List(ctx, owner.ID, true, 0)
	if len(got) != 1 {
		t.Fatalf("expected one notification, got %d", len(got))
	}

	if err := svc.MarkRead(ctx, other.ID, got[0].ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign MarkRead must fail, got %v", err)
	}
	if err := svc.MarkRead(ctx, owner.ID, got[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	count, err := svc.UnreadCount(ctx, owner.ID)
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero unread, got %d", count)
	}
}

func TestMarkAllRead(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	admin := createUser(t, db, models.RoleAdministrator, true)
	for i := 0; i < 3; i++ {
		svc.handleSubmitted(ctx, events.Payload{
			"batch_id":     uuid.NewString(),
			"batch_number": "PC-20260310-000" + string(rune('1'+i)),
		})
	}

	updated, err := svc.MarkAllRead(ctx, admin.ID)
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if updated != 3 {
		t.Fatalf("expected 3 updated, got %d", updated)
	}

	count, _ := svc.UnreadCount(ctx, admin.ID)
	if count != 0 {
		t.Fatalf("expected zero unread, got %d", count)
	}
}
