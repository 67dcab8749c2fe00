package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

func TestUpsertUser_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDB(t)

	if err := UpsertUser(ctx, db, &domain.User{ID: "u1", Name: "Ann", Role: "user"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := UpsertUser(ctx, db, &domain.User{ID: "u1", Name: "Ann B", Role: "admin"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := GetUser(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "Ann B" || !got.IsAdmin() {
		t.Fatalf("upsert did not refresh fields: %+v", got)
	}

	var n int64
	db.Model(&domain.User{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected single row, got %d", n)
	}
}

func TestUsersByIDs_SkipsUnknown(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDB(t)
	_ = UpsertUser(ctx, db, &domain.User{ID: "a", Name: "A"})
	_ = UpsertUser(ctx, db, &domain.User{ID: "b", Name: "B"})

	got, err := UsersByIDs(ctx, db, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("UsersByIDs: %v", err)
	}
	if len(got) != 2 || got["a"].Name != "A" {
		t.Fatalf("unexpected map: %+v", got)
	}
	empty, err := UsersByIDs(ctx, db, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty input: %v %v", empty, err)
	}
}

func TestUpsertPost_AndGetPost(t *testing.T) {
	ctx := context.Background()
	db := newMigratedDB(t)

	if _, err := GetPost(ctx, db, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := UpsertPost(ctx, db, &domain.Post{ID: "p1", UserID: "owner", Category: "vent", Status: "pending_approval"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := UpsertPost(ctx, db, &domain.Post{ID: "p1", UserID: "owner", Category: "vent", Status: "approved"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err := GetPost(ctx, db, "p1")
	if err != nil || p.Status != "approved" || p.UserID != "owner" {
		t.Fatalf("GetPost: %+v err=%v", p, err)
	}
}
