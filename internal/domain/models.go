// Package domain defines the persistence models for consent-gated messaging:
// message requests, messages, the per-pair conversation projection and the
// notification ledger, plus read-only mirrors of the users and posts owned by
// external collaborators. These types are mapped with GORM and shared across
// the repository and service layers.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a MessageRequest.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected
}

// MessageStatus is the status of a single Message on either the request
// track (requested -> accepted|rejected) or the delivery track
// (sent -> delivered -> read).
type MessageStatus string

const (
	MessageRequested MessageStatus = "requested"
	MessageAccepted  MessageStatus = "accepted"
	MessageRejected  MessageStatus = "rejected"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// DeliveryRank orders statuses on the delivery track. A message materialized
// from an accepted request enters the track at the same rank as "sent".
// The second return value is false for statuses that are not on the track.
func (s MessageStatus) DeliveryRank() (int, bool) {
	switch s {
	case MessageSent, MessageAccepted:
		return 1, true
	case MessageDelivered:
		return 2, true
	case MessageRead:
		return 3, true
	}
	return 0, false
}

// Unread lists the statuses that thread reads transition to "read".
var Unread = []MessageStatus{MessageSent, MessageDelivered, MessageAccepted}

// ContentType tags what a Notification points at.
type ContentType string

const (
	ContentPost    ContentType = "post"
	ContentComment ContentType = "comment"
	ContentMessage ContentType = "message"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentPost, ContentComment, ContentMessage:
		return true
	}
	return false
}

// User mirrors an identity owned by the external identity provider.
// Only the fields messaging needs are stored.
type User struct {
	ID        string    `json:"id"   gorm:"type:varchar(64);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null;default:''"`
	Role      string    `json:"role" gorm:"type:varchar(32);not null;default:'user'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// IsAdmin reports whether the user may run administrative operations.
func (u User) IsAdmin() bool { return strings.EqualFold(u.Role, "admin") }

// Post mirrors community content owned by the moderation pipeline. Messaging
// only consumes its identity, owner, category and moderation status.
type Post struct {
	ID        string    `json:"id"       gorm:"type:varchar(64);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);not null;index:idx_posts_owner"`
	Category  string    `json:"category" gorm:"type:varchar(32);not null;default:''"`
	Status    string    `json:"status"   gorm:"type:varchar(32);not null;default:'approved'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// MessageRequest is a proposal from Sender to open messaging with Receiver,
// optionally tied to a post. PendingKey carries the (sender, receiver, post)
// tuple while the request is pending and is NULL afterwards; the unique index
// on it keeps at most one pending request per tuple.
type MessageRequest struct {
	ID             string        `json:"id"              gorm:"type:char(36);primaryKey"`
	SenderID       string        `json:"sender_id"       gorm:"type:varchar(64);not null;index:idx_req_pair,priority:1"`
	ReceiverID     string        `json:"receiver_id"     gorm:"type:varchar(64);not null;index:idx_req_pair,priority:2;index:idx_req_inbox,priority:1"`
	PostID         *string       `json:"post_id"         gorm:"type:varchar(64);index"`
	InitialMessage string        `json:"initial_message" gorm:"type:text;not null"`
	Status         RequestStatus `json:"status"          gorm:"type:varchar(16);not null;default:'pending';index:idx_req_inbox,priority:2;check:status IN ('pending','accepted','rejected')"`
	CreatedAt      time.Time     `json:"created_at"      gorm:"index:idx_req_inbox,priority:3"`
	RespondedAt    *time.Time    `json:"responded_at,omitempty"`
	PendingKey     *string       `json:"-"               gorm:"type:varchar(255);uniqueIndex:ux_requests_pending"`
}

// TableName returns the database table name for MessageRequest.
func (MessageRequest) TableName() string { return "message_requests" }

// PendingKeyFor builds the uniqueness key of a pending request. Sender and
// receiver are length-prefixed so ids containing the separator cannot make
// two distinct tuples collide; the post id is the remainder.
func PendingKeyFor(senderID, receiverID string, postID *string) string {
	p := ""
	if postID != nil {
		p = *postID
	}
	return lengthPrefixed(senderID) + "|" + lengthPrefixed(receiverID) + "|" + p
}

// lengthPrefixed encodes id as "<len>:<id>".
func lengthPrefixed(id string) string {
	return strconv.Itoa(len(id)) + ":" + id
}

// Message is a single entry in the message log. Content is immutable once
// created; only Status moves, and only forward.
type Message struct {
	ID         string        `json:"id"          gorm:"type:char(36);primaryKey"`
	Content    string        `json:"content"     gorm:"type:text;not null"`
	SenderID   string        `json:"sender_id"   gorm:"type:varchar(64);not null;index:idx_msg_pair,priority:1"`
	ReceiverID string        `json:"receiver_id" gorm:"type:varchar(64);not null;index:idx_msg_pair,priority:2"`
	PostID     *string       `json:"post_id"     gorm:"type:varchar(64);index"`
	RequestID  *string       `json:"request_id,omitempty" gorm:"type:char(36);index"`
	Status     MessageStatus `json:"status"      gorm:"type:varchar(16);not null;check:status IN ('requested','accepted','rejected','sent','delivered','read')"`
	Timestamp  time.Time     `json:"timestamp"   gorm:"not null;index:idx_msg_pair,priority:3"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Conversation is the materialized summary of one unordered user pair.
// UserA is always the lexically smaller id; UnreadA counts messages addressed
// to UserA that are not yet read, UnreadB likewise for UserB.
type Conversation struct {
	PairKey       string    `json:"pair_key"        gorm:"type:varchar(160);primaryKey"`
	UserA         string    `json:"user_a"          gorm:"type:varchar(64);not null;index"`
	UserB         string    `json:"user_b"          gorm:"type:varchar(64);not null;index"`
	LastMessageID string    `json:"last_message_id" gorm:"type:char(36);not null;default:''"`
	LastMessageAt time.Time `json:"last_message_at" gorm:"index"`
	UnreadA       int       `json:"unread_a"        gorm:"not null;default:0"`
	UnreadB       int       `json:"unread_b"        gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// PairKey returns the order-independent key of the pair {a, b} together with
// the ordered members. The lower id is length-prefixed, so the key decodes to
// exactly one pair whatever the ids contain.
func PairKey(a, b string) (key, low, high string) {
	low, high = a, b
	if high < low {
		low, high = high, low
	}
	return lengthPrefixed(low) + ":" + high, low, high
}

// Partner returns the other member of the pair relative to userID.
func (c Conversation) Partner(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// UnreadFor returns the unread counter kept for userID.
func (c Conversation) UnreadFor(userID string) int {
	if c.UserA == userID {
		return c.UnreadA
	}
	return c.UnreadB
}

// Notification is one entry of a user's append-only feed. Only IsRead
// changes after creation, and only from false to true.
type Notification struct {
	ID                 string      `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID             string      `json:"user_id"              gorm:"type:varchar(64);not null;index:idx_notif_feed,priority:1"`
	Message            string      `json:"message"              gorm:"type:text;not null"`
	IsRead             bool        `json:"is_read"              gorm:"not null;default:false;index:idx_notif_feed,priority:2"`
	Timestamp          time.Time   `json:"timestamp"            gorm:"not null;index:idx_notif_feed,priority:3"`
	RelatedContentType ContentType `json:"related_content_type" gorm:"type:varchar(16);not null;index:idx_notif_related,priority:1"`
	RelatedContentID   string      `json:"related_content_id"   gorm:"type:varchar(64);not null;index:idx_notif_related,priority:2"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
