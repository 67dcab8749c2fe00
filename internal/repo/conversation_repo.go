package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

// GetConversation fetches the projection row for the unordered pair {a, b}.
func GetConversation(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	key, _, _ := domain.PairKey(a, b)
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("pair_key = ?", key).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListConversations returns the projection rows involving userID, most
// recently active first.
func ListConversations(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("last_message_at DESC, pair_key ASC").
		Find(&out).Error
	return out, err
}

// RecordMessage folds a freshly inserted message into its pair's projection:
// the row is created if missing, last_message moves to m and the receiver's
// unread counter grows by one (unless m is already read).
func RecordMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	key, low, high := domain.PairKey(m.SenderID, m.ReceiverID)
	now := time.Now().UTC()

	seed := &domain.Conversation{
		PairKey:       key,
		UserA:         low,
		UserB:         high,
		LastMessageID: m.ID,
		LastMessageAt: m.Timestamp,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return err
	}

	unreadCol := "unread_b"
	if m.ReceiverID == low {
		unreadCol = "unread_a"
	}
	inc := 1
	if m.Status == domain.MessageRead {
		inc = 0
	}
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("pair_key = ?", key).
		Updates(map[string]any{
			"last_message_id": m.ID,
			"last_message_at": m.Timestamp,
			unreadCol:         gorm.Expr(unreadCol+" + ?", inc),
			"updated_at":      now,
		}).Error
}

// RefreshUnread recounts the unread counter viewerID holds for partnerID from
// the message log.
func RefreshUnread(ctx context.Context, db *gorm.DB, viewerID, partnerID string) error {
	key, low, _ := domain.PairKey(viewerID, partnerID)
	n, err := CountUnreadFrom(ctx, db, partnerID, viewerID)
	if err != nil {
		return err
	}
	col := "unread_b"
	if viewerID == low {
		col = "unread_a"
	}
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("pair_key = ?", key).
		Updates(map[string]any{col: n, "updated_at": time.Now().UTC()}).Error
}

// RebuildConversation recomputes the projection of {a, b} from the message
// log, deleting the row when no message connects the pair anymore.
func RebuildConversation(ctx context.Context, db *gorm.DB, a, b string) error {
	key, low, high := domain.PairKey(a, b)

	last, err := LatestBetween(ctx, db, low, high)
	if errors.Is(err, ErrNotFound) {
		return db.WithContext(ctx).Where("pair_key = ?", key).Delete(&domain.Conversation{}).Error
	}
	if err != nil {
		return err
	}

	unreadA, err := CountUnreadFrom(ctx, db, high, low)
	if err != nil {
		return err
	}
	unreadB, err := CountUnreadFrom(ctx, db, low, high)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	row := &domain.Conversation{
		PairKey:       key,
		UserA:         low,
		UserB:         high,
		LastMessageID: last.ID,
		LastMessageAt: last.Timestamp,
		UnreadA:       int(unreadA),
		UnreadB:       int(unreadB),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_message_id", "last_message_at", "unread_a", "unread_b", "updated_at"}),
	}).Create(row).Error
}
