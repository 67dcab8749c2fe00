package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

// CreateNotification appends one entry to userID's feed.
func CreateNotification(ctx context.Context, db *gorm.DB, userID, message string, ct domain.ContentType, contentID string) (*domain.Notification, error) {
	now := time.Now().UTC()
	n := &domain.Notification{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Message:            message,
		IsRead:             false,
		Timestamp:          now,
		RelatedContentType: ct,
		RelatedContentID:   contentID,
		UpdatedAt:          now,
	}
	return n, db.WithContext(ctx).Create(n).Error
}

// NotificationQuery selects a window of a user's feed.
type NotificationQuery struct {
	UserID string
	Skip   int
	Limit  int
	IsRead *bool
}

// ListNotifications returns the feed window described by q, newest first.
func ListNotifications(ctx context.Context, db *gorm.DB, q NotificationQuery) ([]domain.Notification, error) {
	tx := db.WithContext(ctx).Where("user_id = ?", q.UserID)
	if q.IsRead != nil {
		tx = tx.Where("is_read = ?", *q.IsRead)
	}
	var out []domain.Notification
	err := tx.Order("timestamp DESC, id DESC").
		Offset(q.Skip).
		Limit(q.Limit).
		Find(&out).Error
	return out, err
}

// CountUnreadNotifications counts userID's unread feed entries.
func CountUnreadNotifications(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

// GetNotification fetches one notification owned by userID.
func GetNotification(ctx context.Context, db *gorm.DB, userID, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

// MarkNotificationRead flips one unread notification to read. Already-read
// rows are left untouched, so the call reports 0 for them.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, userID, id string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Updates(map[string]any{"is_read": true, "updated_at": at})
	return res.RowsAffected, res.Error
}

// MarkAllNotificationsRead flips every unread notification of userID.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, userID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "updated_at": at})
	return res.RowsAffected, res.Error
}

// DeleteNotification removes one notification owned by userID.
func DeleteNotification(ctx context.Context, db *gorm.DB, userID, id string) (int64, error) {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}

// DeleteNotificationsFor removes every notification that references one of
// ids under content type ct.
func DeleteNotificationsFor(ctx context.Context, db *gorm.DB, ct domain.ContentType, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("related_content_type = ? AND related_content_id IN ?", string(ct), ids).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}
