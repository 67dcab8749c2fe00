package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/repo"
)

// seedNotes appends n post notifications for user straight to the ledger.
func seedNotes(t *testing.T, ts *testServices, user string, n int) []*domain.Notification {
	t.Helper()
	out := make([]*domain.Notification, 0, n)
	for i := 0; i < n; i++ {
		got, err := repo.CreateNotification(context.Background(), ts.db, user, fmt.Sprintf("note %d", i), domain.ContentPost, "P1")
		if err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
		out = append(out, got)
	}
	return out
}

func TestOutbox_PublishesOnlyAfterFlush(t *testing.T) {
	ctx := context.Background()
	ts := newServices(t)

	var box outbox
	err := ts.db.Transaction(func(tx *gorm.DB) error {
		if err := box.dispatch(ctx, tx, "R", "committed", domain.ContentMessage, "m1"); err != nil {
			return err
		}
		if err := box.dispatch(ctx, tx, "R", "x", "video", "m2"); !errors.Is(err, ErrInvalidContentType) {
			t.Fatalf("expected ErrInvalidContentType, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if len(ts.pub.published()) != 0 {
		t.Fatalf("nothing may publish before flush")
	}
	box.flush(ctx, ts.pub)
	if pub := ts.pub.published(); len(pub) != 1 || pub[0].Message != "committed" || pub[0].UserID != "R" {
		t.Fatalf("unexpected publish: %+v", pub)
	}
	if len(box.pending) != 0 {
		t.Fatalf("flush must drain the outbox")
	}

	// A rolled-back append leaves no row and is never flushed.
	var rolled outbox
	_ = ts.db.Transaction(func(tx *gorm.DB) error {
		if err := rolled.dispatch(ctx, tx, "R", "rolled back", domain.ContentMessage, "m3"); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if c := countRows(t, ts.db, &domain.Notification{}, "related_content_id = ?", "m3"); c != 0 {
		t.Fatalf("rolled back notification persisted: %d", c)
	}
}

func TestSend_PublishFailureDoesNotFail(t *testing.T) {
	ts := newServices(t)
	ts.pub.fail = errors.New("broker down")

	res, err := ts.msgs.Send(context.Background(), SendInput{SenderID: "S", ReceiverID: "R", Content: "hi", PostID: strPtr("P1")})
	if err != nil {
		t.Fatalf("Send with failing publisher: %v", err)
	}
	if c := countRows(t, ts.db, &domain.Notification{}, "related_content_id = ?", res.Request.ID); c != 1 {
		t.Fatalf("notification should be persisted, got %d", c)
	}
	if len(ts.pub.published()) != 1 {
		t.Fatalf("publish should have been attempted once")
	}
}

func TestList_LimitsAndFilter(t *testing.T) {
	ctx := context.Background()
	ts := newServices(t)
	ts.notes.MaxLimit = 3
	notes := seedNotes(t, ts, "R", 5)
	if _, err := ts.notes.MarkRead(ctx, "R", notes[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	all, err := ts.notes.List(ctx, ListInput{UserID: "R", Limit: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("limit should clamp to max 3, got %d", len(all))
	}

	def, _ := ts.notes.List(ctx, ListInput{UserID: "R"})
	if len(def) != 3 {
		t.Fatalf("default limit clamps to max as well, got %d", len(def))
	}

	tail, _ := ts.notes.List(ctx, ListInput{UserID: "R", Skip: 4, Limit: 3})
	if len(tail) != 1 {
		t.Fatalf("skip 4 of 5 should leave 1, got %d", len(tail))
	}

	neg, _ := ts.notes.List(ctx, ListInput{UserID: "R", Skip: -5, Limit: 2})
	if len(neg) != 2 {
		t.Fatalf("negative skip treated as 0, got %d", len(neg))
	}

	read := true
	onlyRead, _ := ts.notes.List(ctx, ListInput{UserID: "R", IsRead: &read})
	if len(onlyRead) != 1 || onlyRead[0].ID != notes[0].ID {
		t.Fatalf("is_read filter: %+v", onlyRead)
	}
	unread := false
	onlyUnread, _ := ts.notes.List(ctx, ListInput{UserID: "R", IsRead: &unread})
	if len(onlyUnread) != 3 {
		t.Fatalf("unread filter capped at 3, got %d", len(onlyUnread))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatalf("feed must be newest first")
		}
	}

	if _, err := ts.notes.List(ctx, ListInput{UserID: "nobody"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	empty, err := ts.notes.List(ctx, ListInput{UserID: "X"})
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty feed: %+v err=%v", empty, err)
	}
}

func TestMarkReadCountAndDelete(t *testing.T) {
	ctx := context.Background()
	ts := newServices(t)
	notes := seedNotes(t, ts, "R", 3)
	seedNotes(t, ts, "S", 1)

	if c, _ := ts.notes.CountUnread(ctx, "R"); c != 3 {
		t.Fatalf("unread = %d, want 3", c)
	}

	n, err := ts.notes.MarkRead(ctx, "R", notes[1].ID)
	if err != nil || !n.IsRead {
		t.Fatalf("MarkRead: %+v err=%v", n, err)
	}
	if n, err = ts.notes.MarkRead(ctx, "R", notes[1].ID); err != nil || !n.IsRead {
		t.Fatalf("MarkRead twice should succeed: %+v err=%v", n, err)
	}
	if _, err := ts.notes.MarkRead(ctx, "S", notes[1].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("foreign notification: expected ErrNotificationNotFound, got %v", err)
	}
	if _, err := ts.notes.MarkRead(ctx, "R", "missing"); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
	if c, _ := ts.notes.CountUnread(ctx, "R"); c != 2 {
		t.Fatalf("unread = %d, want 2", c)
	}

	got, err := ts.notes.Get(ctx, "R", notes[0].ID)
	if err != nil || got.ID != notes[0].ID {
		t.Fatalf("Get: %+v err=%v", got, err)
	}
	if _, err := ts.notes.Get(ctx, "S", notes[0].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("Get foreign: %v", err)
	}

	changed, err := ts.notes.MarkAllRead(ctx, "R")
	if err != nil || changed != 2 {
		t.Fatalf("MarkAllRead = %d err=%v, want 2", changed, err)
	}
	if c, _ := ts.notes.CountUnread(ctx, "R"); c != 0 {
		t.Fatalf("unread after mark all = %d", c)
	}
	if c, _ := ts.notes.CountUnread(ctx, "S"); c != 1 {
		t.Fatalf("other users untouched, got %d", c)
	}
	if changed, _ = ts.notes.MarkAllRead(ctx, "R"); changed != 0 {
		t.Fatalf("second MarkAllRead should change nothing, got %d", changed)
	}

	if err := ts.notes.Delete(ctx, "S", notes[2].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("Delete foreign: %v", err)
	}
	if err := ts.notes.Delete(ctx, "R", notes[2].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ts.notes.Delete(ctx, "R", notes[2].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("Delete twice: %v", err)
	}
}
