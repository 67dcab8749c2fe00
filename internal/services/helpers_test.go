package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// serialize limits db to one connection so concurrent transactions queue
// instead of tripping SQLite's shared-cache table locks.
func serialize(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}

func seedUser(t *testing.T, db *gorm.DB, id, name, role string) {
	t.Helper()
	if err := repo.UpsertUser(context.Background(), db, &domain.User{ID: id, Name: name, Role: role}); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func seedPost(t *testing.T, db *gorm.DB, id, owner, category, status string) {
	t.Helper()
	if err := repo.UpsertPost(context.Background(), db, &domain.Post{ID: id, UserID: owner, Category: category, Status: status}); err != nil {
		t.Fatalf("seed post %s: %v", id, err)
	}
}

// seedCommunity creates sender S, receiver R (author of vent post P1 and
// P2), outsider X and admin A.
func seedCommunity(t *testing.T, db *gorm.DB) {
	t.Helper()
	seedUser(t, db, "S", "Sam", "user")
	seedUser(t, db, "R", "Riley", "user")
	seedUser(t, db, "X", "", "user")
	seedUser(t, db, "A", "Ada", "admin")
	seedPost(t, db, "P1", "R", "vent", "approved")
	seedPost(t, db, "P2", "R", "vent", "approved")
}

func strPtr(s string) *string { return &s }

// recordingPublisher captures published notifications.
type recordingPublisher struct {
	mu   sync.Mutex
	got  []domain.Notification
	fail error
}

func (p *recordingPublisher) Publish(_ context.Context, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, n)
	return p.fail
}

func (p *recordingPublisher) published() []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Notification(nil), p.got...)
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

type testServices struct {
	db    *gorm.DB
	pub   *recordingPublisher
	gate  *GateService
	msgs  *MessageService
	reqs  *RequestService
	notes *NotificationService
	admin *AdminService
}

func newServices(t *testing.T) *testServices {
	t.Helper()
	db := newTestDB(t)
	seedCommunity(t, db)
	pub := &recordingPublisher{}
	return &testServices{
		db:    db,
		pub:   pub,
		gate:  &GateService{DB: db},
		msgs:  &MessageService{DB: db, Publisher: pub, Policy: MessagePolicy{MaxContentRunes: 50, OutreachCategory: "vent"}},
		reqs:  &RequestService{DB: db, Publisher: pub},
		notes: &NotificationService{DB: db, Publisher: pub},
		admin: &AdminService{DB: db},
	}
}

// establish opens a conversation S<->R through an accepted request on P1.
func (ts *testServices) establish(t *testing.T) *RespondResult {
	t.Helper()
	ctx := context.Background()
	res, err := ts.msgs.Send(ctx, SendInput{SenderID: "S", ReceiverID: "R", Content: "hi", PostID: strPtr("P1")})
	if err != nil || res.Type != SendKindRequest {
		t.Fatalf("send request: %+v err=%v", res, err)
	}
	out, err := ts.reqs.Respond(ctx, res.Request.ID, "R", domain.RequestAccepted)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return out
}
