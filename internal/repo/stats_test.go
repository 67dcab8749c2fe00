package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

func TestNotificationsStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := NotificationsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing notifications table")
	}
}

func TestNotificationsStats_ZeroRows(t *testing.T) {
	db := newMigratedDB(t)
	count, maxAt, err := NotificationsStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("NotificationsStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestNotificationsStats_ChangesOnMarkRead(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDB(t)

	n, _ := CreateNotification(ctx, db, "u1", "hi", domain.ContentMessage, "m")
	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	db.Model(&domain.Notification{}).Where("id = ?", n.ID).Update("updated_at", t1)

	count, maxAt, err := NotificationsStats(ctx, db, "u1")
	if err != nil || count != 1 || maxAt == nil || !maxAt.Equal(t1) {
		t.Fatalf("before: count=%d max=%v err=%v", count, maxAt, err)
	}

	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	if _, err := MarkNotificationRead(ctx, db, "u1", n.ID, t2); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	_, maxAt, _ = NotificationsStats(ctx, db, "u1")
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("after mark read, max=%v want %v", maxAt, t2)
	}
}

func TestConversationsStats_BothSidesOfPair(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDB(t)
	now := time.Now().UTC()

	insertMessage(t, db, "u", "a", domain.MessageSent, now)
	insertMessage(t, db, "b", "u", domain.MessageSent, now)
	insertMessage(t, db, "a", "b", domain.MessageSent, now)

	count, maxAt, err := ConversationsStats(ctx, db, "u")
	if err != nil || count != 2 || maxAt == nil {
		t.Fatalf("ConversationsStats: count=%d max=%v err=%v", count, maxAt, err)
	}
}

func TestRequestsStats_PendingOnly(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDB(t)

	r1, _ := CreateRequest(ctx, db, "a", "r", nil, "x")
	_, _ = CreateRequest(ctx, db, "b", "r", nil, "y")
	count, maxAt, err := RequestsStats(ctx, db, "r")
	if err != nil || count != 2 || maxAt == nil {
		t.Fatalf("RequestsStats: count=%d max=%v err=%v", count, maxAt, err)
	}

	_, _ = ResolveRequest(ctx, db, r1.ID, domain.RequestAccepted, time.Now().UTC())
	count, _, _ = RequestsStats(ctx, db, "r")
	if count != 1 {
		t.Fatalf("resolved requests must leave the set, count=%d", count)
	}

	count, maxAt, err = RequestsStats(ctx, db, "nobody")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("empty inbox: count=%d max=%v err=%v", count, maxAt, err)
	}
}
