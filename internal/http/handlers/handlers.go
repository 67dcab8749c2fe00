// Package handlers exposes the messaging, notification and administration
// REST endpoints.
//
// Handlers are transport-thin: they resolve the acting user, validate input,
// call application services and translate results into HTTP responses
// (including conditional responses and idempotent replays).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/http/middleware"
	"github.com/tbourn/go-community-messaging/internal/repo"
	"github.com/tbourn/go-community-messaging/internal/services"
)

//
// Service contracts (context-aware)
//

// GateService answers whether a sender may message a receiver directly.
type GateService interface {
	CanMessage(ctx context.Context, senderID, receiverID string, postID *string) (services.GateResult, error)
}

// MessageService covers sends and message store reads.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// Send delivers a message or opens a message request, depending on the gate.
	Send(ctx context.Context, in services.SendInput) (*services.SendResult, error)
	// ListConversations returns the user's conversation summaries.
	ListConversations(ctx context.Context, userID string) ([]services.ConversationSummary, error)
	// Thread returns the pair's messages and marks the partner's as read.
	Thread(ctx context.Context, userID, partnerID string) ([]domain.Message, error)
	// UpdateStatus moves a message forward on the delivery track.
	UpdateStatus(ctx context.Context, messageID, actorID string, to domain.MessageStatus) (*domain.Message, error)
	// ListPostMessages returns the outreach messages tied to a post.
	ListPostMessages(ctx context.Context, postID string) ([]domain.Message, error)
}

// RequestService covers the message request lifecycle.
type RequestService interface {
	ListPending(ctx context.Context, receiverID string) ([]domain.MessageRequest, error)
	Respond(ctx context.Context, requestID, actorID string, decision domain.RequestStatus) (*services.RespondResult, error)
}

// NotificationService covers the per-user notification feed.
type NotificationService interface {
	List(ctx context.Context, in services.ListInput) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID, id string) (*domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
}

// AdminService covers administrator cascades and directory sync.
type AdminService interface {
	DeleteMessage(ctx context.Context, adminID, messageID string) (services.DeleteResult, error)
	DeleteThread(ctx context.Context, adminID, a, b string) (services.DeleteResult, error)
	DeleteUserMessages(ctx context.Context, adminID, userID string) (services.DeleteResult, error)
	DeletePostMessages(ctx context.Context, adminID, postID string) (services.DeleteResult, error)
	SyncUser(ctx context.Context, adminID string, in services.UserInput) (*domain.User, error)
	SyncPost(ctx context.Context, adminID string, in services.PostInput) (*domain.Post, error)
}

//
// Handler wiring
//

// Services bundles the application services the handlers delegate to.
type Services struct {
	Gate          GateService
	Messages      MessageService
	Requests      RequestService
	Notifications NotificationService
	Admin         AdminService
}

// Options tunes the transport-level features that need storage of their own.
type Options struct {
	// DB backs ETags and idempotency records. Nil disables both.
	DB *gorm.DB
	// IdempotencyTTL is how long a completed send can be replayed; <= 0
	// selects 24h.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	gate    GateService
	msgs    MessageService
	reqs    RequestService
	notes   NotificationService
	admin   AdminService
	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to svc.
func New(svc Services, opts Options) *Handlers {
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		gate:    svc.Gate,
		msgs:    svc.Messages,
		reqs:    svc.Requests,
		notes:   svc.Notifications,
		admin:   svc.Admin,
		db:      opts.DB,
		idemTTL: ttl,
	}
}

// actingUser resolves who the request acts for. named is the user the
// request names in its path or query. With an authenticated principal a
// different named user is rejected with 403; without one, named wins over
// X-User-ID. On failure the response is written and ok is false.
func actingUser(c *gin.Context, named string) (uid string, ok bool) {
	named = strings.TrimSpace(named)
	if p, has := middleware.Principal(c); has {
		if named != "" && named != p {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "acting user does not match the authenticated user")
			return "", false
		}
		return p, true
	}
	if named != "" {
		return named, true
	}
	if h := strings.TrimSpace(c.GetHeader(middleware.HeaderUserID)); h != "" {
		return h, true
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "acting user required")
	return "", false
}

// IdempotencyLookup answers replay checks for middleware.IdempotencyValidator
// from the idempotency table. It returns nil when no database is configured.
func (h *Handlers) IdempotencyLookup() middleware.IdempotencyLookup {
	if h.db == nil {
		return nil
	}
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, h.db, userID, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}
