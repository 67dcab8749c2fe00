// Package services – AdminService
//
// AdminService runs the administrative cascading deletes and the directory
// mirror sync. Every cascade is a single transaction spanning messages,
// message requests, the notifications that reference them and the affected
// conversation projections, so no notification is left pointing at a row
// that no longer exists.
package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/observability"
	"github.com/tbourn/go-community-messaging/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AdminService implements administrator-only operations.
type AdminService struct {
	DB *gorm.DB
}

// DeleteResult reports what a cascade removed.
type DeleteResult struct {
	Messages      int64 `json:"messages"`
	Requests      int64 `json:"requests"`
	Notifications int64 `json:"notifications"`
}

// requireAdmin loads adminID and checks its role.
func requireAdmin(ctx context.Context, db *gorm.DB, adminID string) error {
	u, err := repo.GetUser(ctx, db, adminID)
	if err != nil {
		return mapNotFound(err, ErrNotAdmin)
	}
	if !u.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

// DeleteMessage removes one message and its notifications.
func (s *AdminService) DeleteMessage(ctx context.Context, adminID, messageID string) (DeleteResult, error) {
	return s.cascade(ctx, "DeleteMessage", adminID, repo.SelectID(messageID), false, true,
		attribute.String("message.id", messageID))
}

// DeleteThread removes every message and request exchanged between a and b.
func (s *AdminService) DeleteThread(ctx context.Context, adminID, a, b string) (DeleteResult, error) {
	return s.cascade(ctx, "DeleteThread", adminID, repo.SelectPair(a, b), true, false,
		attribute.String("pair", a+":"+b))
}

// DeleteUserMessages removes every message and request sent or received by userID.
func (s *AdminService) DeleteUserMessages(ctx context.Context, adminID, userID string) (DeleteResult, error) {
	return s.cascade(ctx, "DeleteUserMessages", adminID, repo.SelectUser(userID), true, false,
		attribute.String("user.id", userID))
}

// DeletePostMessages removes every message and request tied to postID.
func (s *AdminService) DeletePostMessages(ctx context.Context, adminID, postID string) (DeleteResult, error) {
	return s.cascade(ctx, "DeletePostMessages", adminID, repo.SelectPost(postID), true, false,
		attribute.String("post.id", postID))
}

// cascade deletes the messages (and, with withRequests, the requests)
// matched by sel together with their notifications, then rebuilds every
// affected pair projection. With mustMatch an empty selection is
// ErrMessageNotFound.
func (s *AdminService) cascade(ctx context.Context, op, adminID string, sel repo.Selector, withRequests, mustMatch bool, attrs ...attribute.KeyValue) (DeleteResult, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, op,
		trace.WithAttributes(append(attrs, attribute.String("admin.id", adminID))...),
	)
	defer span.End()

	var res DeleteResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}

		msgs, err := repo.SelectParticipants(ctx, tx, &domain.Message{}, sel)
		if err != nil {
			return err
		}
		if mustMatch && len(msgs) == 0 {
			return ErrMessageNotFound
		}
		var reqs []repo.Participants
		if withRequests {
			if reqs, err = repo.SelectParticipants(ctx, tx, &domain.MessageRequest{}, sel); err != nil {
				return err
			}
		}

		pairs := map[string][2]string{}
		msgIDs := make([]string, 0, len(msgs))
		for _, p := range msgs {
			msgIDs = append(msgIDs, p.ID)
			key, low, high := domain.PairKey(p.SenderID, p.ReceiverID)
			pairs[key] = [2]string{low, high}
		}
		reqIDs := make([]string, 0, len(reqs))
		for _, p := range reqs {
			reqIDs = append(reqIDs, p.ID)
		}

		// Notifications reference messages and requests under the same content type.
		refs := append(append([]string{}, msgIDs...), reqIDs...)
		if res.Notifications, err = repo.DeleteNotificationsFor(ctx, tx, domain.ContentMessage, refs); err != nil {
			return err
		}
		if res.Messages, err = repo.DeleteMessagesByID(ctx, tx, msgIDs); err != nil {
			return err
		}
		if res.Requests, err = repo.DeleteRequestsByID(ctx, tx, reqIDs); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := repo.RebuildConversation(ctx, tx, p[0], p[1]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	observability.AdminDeleted.WithLabelValues(observability.EntityMessage).Add(float64(res.Messages))
	observability.AdminDeleted.WithLabelValues(observability.EntityRequest).Add(float64(res.Requests))
	observability.AdminDeleted.WithLabelValues(observability.EntityNotification).Add(float64(res.Notifications))
	log.Info().
		Str("op", op).
		Str("admin_id", adminID).
		Int64("messages", res.Messages).
		Int64("requests", res.Requests).
		Int64("notifications", res.Notifications).
		Msg("admin cascade delete")
	return res, nil
}

// UserInput is a directory mirror upsert for a user.
type UserInput struct {
	ID   string
	Name string
	Role string
}

// PostInput is a directory mirror upsert for a post.
type PostInput struct {
	ID       string
	UserID   string
	Category string
	Status   string
}

// SyncUser upserts a user into the directory mirror.
func (s *AdminService) SyncUser(ctx context.Context, adminID string, in UserInput) (*domain.User, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "SyncUser",
		trace.WithAttributes(attribute.String("admin.id", adminID), attribute.String("user.id", in.ID)),
	)
	defer span.End()

	in.ID = strings.TrimSpace(in.ID)
	if in.Role = strings.ToLower(strings.TrimSpace(in.Role)); in.Role == "" {
		in.Role = "user"
	}
	if in.ID == "" {
		return nil, ErrUserNotFound
	}

	u := &domain.User{ID: in.ID, Name: strings.TrimSpace(in.Name), Role: in.Role}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}
		if err := repo.UpsertUser(ctx, tx, u); err != nil {
			return err
		}
		got, err := repo.GetUser(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		u = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SyncPost upserts a post into the directory mirror. The owner must already
// be mirrored.
func (s *AdminService) SyncPost(ctx context.Context, adminID string, in PostInput) (*domain.Post, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "SyncPost",
		trace.WithAttributes(attribute.String("admin.id", adminID), attribute.String("post.id", in.ID)),
	)
	defer span.End()

	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return nil, ErrPostNotFound
	}
	if in.Status = strings.TrimSpace(in.Status); in.Status == "" {
		in.Status = postStatusApprove
	}

	p := &domain.Post{
		ID:       in.ID,
		UserID:   strings.TrimSpace(in.UserID),
		Category: strings.ToLower(strings.TrimSpace(in.Category)),
		Status:   in.Status,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireAdmin(ctx, tx, adminID); err != nil {
			return err
		}
		if _, err := repo.GetUser(ctx, tx, p.UserID); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		if err := repo.UpsertPost(ctx, tx, p); err != nil {
			return err
		}
		got, err := repo.GetPost(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		p = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
