package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

// CreateRequest inserts a pending request. A second pending request for the
// same (sender, receiver, post) tuple fails with ErrDuplicate.
func CreateRequest(ctx context.Context, db *gorm.DB, senderID, receiverID string, postID *string, initial string) (*domain.MessageRequest, error) {
	key := domain.PendingKeyFor(senderID, receiverID, postID)
	r := &domain.MessageRequest{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		ReceiverID:     receiverID,
		PostID:         postID,
		InitialMessage: initial,
		Status:         domain.RequestPending,
		CreatedAt:      time.Now().UTC(),
		PendingKey:     &key,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetRequest fetches a request by id.
func GetRequest(ctx context.Context, db *gorm.DB, id string) (*domain.MessageRequest, error) {
	var r domain.MessageRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// RequestFilter narrows FindRequest. With AnyPost set the post context is
// ignored; otherwise PostID must match exactly (nil matches NULL).
type RequestFilter struct {
	SenderID   string
	ReceiverID string
	PostID     *string
	AnyPost    bool
	Status     domain.RequestStatus
}

// FindRequest returns the newest request matching f, or ErrNotFound.
func FindRequest(ctx context.Context, db *gorm.DB, f RequestFilter) (*domain.MessageRequest, error) {
	q := db.WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", f.SenderID, f.ReceiverID, string(f.Status))
	if !f.AnyPost {
		if f.PostID == nil {
			q = q.Where("post_id IS NULL")
		} else {
			q = q.Where("post_id = ?", *f.PostID)
		}
	}
	var r domain.MessageRequest
	if err := q.Order("created_at DESC, id DESC").First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListPendingRequests returns requests awaiting receiverID's decision,
// newest first.
func ListPendingRequests(ctx context.Context, db *gorm.DB, receiverID string) ([]domain.MessageRequest, error) {
	var out []domain.MessageRequest
	err := db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", receiverID, string(domain.RequestPending)).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// ResolveRequest moves a pending request to a terminal status and releases
// its pending key. It returns the number of rows changed: 0 means the
// request was no longer pending when the update ran.
func ResolveRequest(ctx context.Context, db *gorm.DB, id string, to domain.RequestStatus, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.MessageRequest{}).
		Where("id = ? AND status = ?", id, string(domain.RequestPending)).
		Updates(map[string]any{
			"status":       string(to),
			"responded_at": at,
			"pending_key":  nil,
		})
	return res.RowsAffected, res.Error
}
