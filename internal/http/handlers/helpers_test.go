package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/http/middleware"
	"github.com/tbourn/go-community-messaging/internal/notify"
	"github.com/tbourn/go-community-messaging/internal/repo"
	"github.com/tbourn/go-community-messaging/internal/services"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db *gorm.DB
	h  *Handlers
	r  *gin.Engine
}

// newFixture wires real services over an in-memory database and mounts the
// handlers under /api. A non-empty secret enables bearer authentication.
func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "S", Name: "Sam", Role: "user"},
		{ID: "R", Name: "Riley", Role: "user"},
		{ID: "X", Name: "Xan", Role: "user"},
		{ID: "A", Name: "Ada", Role: "admin"},
	} {
		u := u
		if err := repo.UpsertUser(ctx, db, &u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := repo.UpsertPost(ctx, db, &domain.Post{ID: "P1", UserID: "R", Category: "vent", Status: "approved"}); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	pub := notify.Noop{}
	h := New(Services{
		Gate:          &services.GateService{DB: db},
		Messages:      &services.MessageService{DB: db, Publisher: pub, Policy: services.MessagePolicy{MaxContentRunes: 100, OutreachCategory: "vent"}},
		Requests:      &services.RequestService{DB: db, Publisher: pub},
		Notifications: &services.NotificationService{DB: db, Publisher: pub},
		Admin:         &services.AdminService{DB: db},
	}, Options{DB: db})

	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("/api")
	if secret != "" {
		api.Use(middleware.Auth(middleware.AuthOptions{Secret: []byte(secret)}))
	}
	api.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{UserQueryKeys: []string{"sender_id"}}, h.IdempotencyLookup()))

	api.POST("/messages", h.SendMessage)
	api.GET("/messages/can-message/:user_id/:target_id", h.CanMessage)
	api.GET("/messages/requests/:user_id", h.ListPendingRequests)
	api.POST("/messages/requests/:request_id/respond", h.RespondToRequest)
	api.GET("/messages/conversations/:user_id", h.ListConversations)
	api.GET("/messages/thread/:user_id/:partner_id", h.GetThread)
	api.PATCH("/messages/:message_id", h.UpdateMessageStatus)
	api.GET("/messages/vent-outreach/:post_id", h.ListPostMessages)
	api.DELETE("/messages/:message_id", h.AdminDeleteMessage)
	api.DELETE("/messages/thread/:user_id/:partner_id", h.AdminDeleteThread)
	api.DELETE("/messages/user/:user_id/all", h.AdminDeleteUserMessages)
	api.DELETE("/messages/post/:post_id/messages", h.AdminDeletePostMessages)
	api.GET("/notifications/user/:user_id", h.ListNotifications)
	api.GET("/notifications/user/:user_id/count", h.CountUnreadNotifications)
	api.GET("/notifications/user/:user_id/:id", h.GetNotification)
	api.PATCH("/notifications/user/:user_id/:id/read", h.MarkNotificationRead)
	api.PATCH("/notifications/user/:user_id/read-all", h.MarkAllNotificationsRead)
	api.DELETE("/notifications/user/:user_id/:id", h.DeleteNotification)
	api.PUT("/directory/users/:id", h.UpsertUser)
	api.PUT("/directory/posts/:id", h.UpsertPost)

	return &fixture{db: db, h: h, r: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", v, err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	er := decode[ErrorResponse](t, w)
	if er.Code != code || er.RequestID == "" {
		t.Fatalf("error = %+v, want code %s with request id", er, code)
	}
}

type sendBody struct {
	ReceiverID string  `json:"receiver_id"`
	Content    string  `json:"content"`
	PostID     *string `json:"post_id,omitempty"`
}

func strPtr(s string) *string { return &s }

// openRequest sends S -> R on P1 and returns the created request.
func (f *fixture) openRequest(t *testing.T) *domain.MessageRequest {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/messages?sender_id=S", sendBody{ReceiverID: "R", Content: "hello there", PostID: strPtr("P1")}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	res := decode[services.SendResult](t, w)
	if res.Type != services.SendKindRequest || res.Request == nil {
		t.Fatalf("expected request variant, got %+v", res)
	}
	return res.Request
}

// establish opens and accepts a request so S and R share a conversation.
func (f *fixture) establish(t *testing.T) *domain.Message {
	t.Helper()
	req := f.openRequest(t)
	w := f.do(t, http.MethodPost, "/api/messages/requests/"+req.ID+"/respond?user_id=R", map[string]string{"status": "accepted"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	out := decode[services.RespondResult](t, w)
	if out.Message == nil {
		t.Fatalf("accept should materialize a message: %+v", out)
	}
	return out.Message
}
