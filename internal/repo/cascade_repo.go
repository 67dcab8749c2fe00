package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

// Selector is a WHERE fragment shared by the messages and message_requests
// tables, which both carry sender_id, receiver_id and post_id.
type Selector struct {
	Where string
	Args  []any
}

// SelectPair matches rows exchanged between a and b in either direction.
func SelectPair(a, b string) Selector {
	return Selector{
		Where: "(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		Args:  []any{a, b, b, a},
	}
}

// SelectUser matches rows sent or received by userID.
func SelectUser(userID string) Selector {
	return Selector{Where: "sender_id = ? OR receiver_id = ?", Args: []any{userID, userID}}
}

// SelectPost matches rows tied to postID.
func SelectPost(postID string) Selector {
	return Selector{Where: "post_id = ?", Args: []any{postID}}
}

// SelectID matches a single row by primary key.
func SelectID(id string) Selector {
	return Selector{Where: "id = ?", Args: []any{id}}
}

// Participants is one (sender, receiver) row of a selection.
type Participants struct {
	ID         string
	SenderID   string
	ReceiverID string
}

// SelectParticipants returns the id and participants of every row of model
// matched by sel.
func SelectParticipants(ctx context.Context, db *gorm.DB, model any, sel Selector) ([]Participants, error) {
	var out []Participants
	err := db.WithContext(ctx).
		Model(model).
		Select("id", "sender_id", "receiver_id").
		Where(sel.Where, sel.Args...).
		Scan(&out).Error
	return out, err
}

// DeleteMessagesByID removes the listed messages.
func DeleteMessagesByID(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}

// DeleteRequestsByID removes the listed requests.
func DeleteRequestsByID(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.MessageRequest{})
	return res.RowsAffected, res.Error
}
