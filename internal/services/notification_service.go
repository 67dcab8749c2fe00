// Package services – NotificationService
//
// NotificationService owns the per-user notification ledger. Appends made by
// other services run inside the triggering transaction through an outbox, so
// a notification is durable exactly when the state change that caused it is.
// After commit the outbox hands the rows to the configured Publisher; publish
// failures are logged and never undo the append.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/notify"
	"github.com/tbourn/go-community-messaging/internal/observability"
	"github.com/tbourn/go-community-messaging/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// outbox collects the notifications appended inside one transaction.
type outbox struct {
	pending []domain.Notification
}

// dispatch appends one notification through tx.
func (o *outbox) dispatch(ctx context.Context, tx *gorm.DB, userID, message string, ct domain.ContentType, contentID string) error {
	if !ct.Valid() {
		return ErrInvalidContentType
	}
	n, err := repo.CreateNotification(ctx, tx, userID, message, ct, contentID)
	if err != nil {
		return err
	}
	o.pending = append(o.pending, *n)
	return nil
}

// flush publishes the collected notifications. Call it only after commit.
func (o *outbox) flush(ctx context.Context, pub notify.Publisher) {
	for _, n := range o.pending {
		observability.NotificationsDispatched.WithLabelValues(string(n.RelatedContentType)).Inc()
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, n); err != nil {
			log.Warn().Err(err).
				Str("notification_id", n.ID).
				Str("user_id", n.UserID).
				Msg("notification publish failed")
		}
	}
	o.pending = nil
}

// NotificationService implements the notification feed use-cases.
type NotificationService struct {
	DB        *gorm.DB
	Publisher notify.Publisher

	// MaxLimit caps the page size of List; 0 selects 200.
	MaxLimit int
}

// ListInput selects a window of a user's feed.
type ListInput struct {
	UserID string
	Skip   int
	Limit  int
	IsRead *bool
}

func (s *NotificationService) maxLimit() int {
	if s.MaxLimit > 0 {
		return s.MaxLimit
	}
	return maxNotificationLimit
}

// List returns the feed window described by in, newest first. The user must
// exist in the directory mirror.
func (s *NotificationService) List(ctx context.Context, in ListInput) ([]domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.Int("skip", in.Skip),
			attribute.Int("limit", in.Limit),
		),
	)
	defer span.End()

	if _, err := repo.GetUser(ctx, s.DB, in.UserID); err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}

	if in.Skip < 0 {
		in.Skip = 0
	}
	if in.Limit <= 0 {
		in.Limit = defaultNotificationLimit
	}
	if m := s.maxLimit(); in.Limit > m {
		in.Limit = m
	}

	return repo.ListNotifications(ctx, s.DB, repo.NotificationQuery{
		UserID: in.UserID,
		Skip:   in.Skip,
		Limit:  in.Limit,
		IsRead: in.IsRead,
	})
}

// CountUnread returns the number of unread notifications of userID.
func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "CountUnread", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	return repo.CountUnreadNotifications(ctx, s.DB, userID)
}

// Get returns one notification owned by userID.
func (s *NotificationService) Get(ctx context.Context, userID, id string) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.id", id),
		),
	)
	defer span.End()

	n, err := repo.GetNotification(ctx, s.DB, userID, id)
	if err != nil {
		return nil, mapNotFound(err, ErrNotificationNotFound)
	}
	return n, nil
}

// MarkRead flips one notification to read and returns it. Marking an
// already-read notification succeeds without changing it.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*domain.Notification, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.id", id),
		),
	)
	defer span.End()

	var out *domain.Notification
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.MarkNotificationRead(ctx, tx, userID, id, time.Now().UTC()); err != nil {
			return err
		}
		n, err := repo.GetNotification(ctx, tx, userID, id)
		if err != nil {
			return mapNotFound(err, ErrNotificationNotFound)
		}
		out = n
		return nil
	})
	return out, err
}

// MarkAllRead flips every unread notification of userID and returns how many
// changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "MarkAllRead", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	return repo.MarkAllNotificationsRead(ctx, s.DB, userID, time.Now().UTC())
}

// Delete removes one notification owned by userID.
func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	tr := otel.Tracer("services/NotificationService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("notification.id", id),
		),
	)
	defer span.End()

	n, err := repo.DeleteNotification(ctx, s.DB, userID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// mapNotFound converts repo.ErrNotFound to the given service sentinel and
// passes any other error through.
func mapNotFound(err, sentinel error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return sentinel
	}
	return err
}

// displayName returns the user's name, or fallback when it is blank.
func displayName(u *domain.User, fallback string) string {
	if u != nil && strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return fallback
}
