package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

// stats returns the row count and newest updated_at of model restricted by
// where/args. When nothing matches, count is 0 and maxUpdatedAt is nil.
// Used by the HTTP layer to build weak ETags for polled collections.
func stats(ctx context.Context, db *gorm.DB, model any, where string, args ...any) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = db.WithContext(ctx).Model(model).Where(where, args...).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(model).Where(where, args...).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// NotificationsStats summarizes userID's notification feed.
func NotificationsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return stats(ctx, db, &domain.Notification{}, "user_id = ?", userID)
}

// ConversationsStats summarizes the projection rows involving userID.
func ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return stats(ctx, db, &domain.Conversation{}, "user_a = ? OR user_b = ?", userID, userID)
}

// RequestsStats summarizes the pending requests addressed to receiverID.
// Resolved requests leave the set, which changes the count.
func RequestsStats(ctx context.Context, db *gorm.DB, receiverID string) (int64, *time.Time, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.MessageRequest{}).
		Where("receiver_id = ? AND status = ?", receiverID, string(domain.RequestPending)).
		Count(&count).Error
	if err != nil || count == 0 {
		return count, nil, err
	}
	var row struct {
		CreatedAt time.Time
	}
	if err := db.WithContext(ctx).Model(&domain.MessageRequest{}).
		Where("receiver_id = ? AND status = ?", receiverID, string(domain.RequestPending)).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
