package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"voice-banking/pkg/utils"
)

func TestService_AppendValidatesByType(t *testing.T) {
	svc := NewService(&memRepo{})
	ctx := context.Background()

	if err := svc.Append(ctx, Event{CallID: "c"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if err := svc.Append(ctx, Event{Type: EventTypeCardBlocked}); err == nil {
		t.Fatalf("expected error for call event without call id")
	}
	if err := svc.Append(ctx, Event{Type: EventTypeAdminAction}); err == nil {
		t.Fatalf("expected error for admin event without actor")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

	if err := svc.LogAdminAction(context.Background(), "admin", "admin", "1.2.3.4", "flows reloaded", "{}"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.LogCallEvent(context.Background(), EventTypeVerificationGranted, "call-1", "CUST001", "verified"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.snapshot()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].IPAddress != "1.2.3.4" || evs[0].Type != EventTypeAdminAction {
		t.Fatalf("unexpected admin event: %+v", evs[0])
	}
	if evs[1].ID == "" || evs[1].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be filled: %+v", evs[1])
	}
}

func TestService_NilIsSafe(t *testing.T) {
	var svc *Service
	if err := svc.LogCallEvent(context.Background(), EventTypeEscalation, "c", "", "x"); err == nil {
		t.Fatalf("expected not configured error")
	}
}

func TestGormRepo_AppendAndList(t *testing.T) {
	db, err := utils.OpenGorm("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenGorm: %v", err)
	}
	repo, err := NewGormRepo(db)
	if err != nil {
		t.Fatalf("NewGormRepo: %v", err)
	}
	svc := NewService(repo)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	svc.clock = func() time.Time { step++; return base.Add(time.Duration(step) * time.Second) }

	if err := svc.LogCallEvent(ctx, EventTypeVerificationGranted, "call-1", "CUST001", "verified"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.LogCallEvent(ctx, EventTypeCardBlocked, "call-1", "CUST001", "CARD-1001"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.LogCallEvent(ctx, EventTypeEscalation, "call-2", "", "digital_app_support"); err != nil {
		t.Fatalf("append: %v", err)
	}

	evs, err := repo.ForCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("ForCall: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventTypeVerificationGranted || evs[1].Type != EventTypeCardBlocked {
		t.Fatalf("unexpected order: %s, %s", evs[0].Type, evs[1].Type)
	}
}
