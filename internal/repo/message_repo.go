package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

// CreateMessage inserts m, assigning an id and timestamps when unset.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	m.Timestamp = m.Timestamp.UTC()
	m.UpdatedAt = now
	return db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by id.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// MessagesByIDs loads the given messages keyed by id.
func MessagesByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Message, error) {
	out := make(map[string]domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Message
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.ID] = m
	}
	return out, nil
}

// ListThread returns every message exchanged between a and b ordered
// deterministically (Timestamp ASC, ID ASC).
func ListThread(ctx context.Context, db *gorm.DB, a, b string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListPostMessages returns messages tied to postID, oldest first.
func ListPostMessages(ctx context.Context, db *gorm.DB, postID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MarkThreadRead transitions every unread message from senderID to
// receiverID to "read" and returns how many rows moved.
func MarkThreadRead(ctx context.Context, db *gorm.DB, senderID, receiverID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND status IN ?", senderID, receiverID, statusStrings(domain.Unread)).
		Updates(map[string]any{"status": string(domain.MessageRead), "updated_at": at})
	return res.RowsAffected, res.Error
}

// AdvanceMessage sets the status of message id from `from` to `to`. It only
// applies when the row still holds `from`, so concurrent updates cannot move
// a message backward; 0 rows affected means another writer got there first.
func AdvanceMessage(ctx context.Context, db *gorm.DB, id string, from, to domain.MessageStatus, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": at})
	return res.RowsAffected, res.Error
}

// CountUnreadFrom counts messages from senderID to receiverID that are not read.
func CountUnreadFrom(ctx context.Context, db *gorm.DB, senderID, receiverID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND status <> ?", senderID, receiverID, string(domain.MessageRead)).
		Count(&n).Error
	return n, err
}

// LatestBetween returns the newest message exchanged between a and b.
func LatestBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("timestamp DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}
