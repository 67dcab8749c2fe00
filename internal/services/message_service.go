// Package services – MessageService
//
// MessageService is the send entry point and the read side of the message
// log. Send consults the gate inside its transaction and either appends a
// message (established pair) or opens a pending request, so callers branch
// on SendResult.Type. Conversation summaries come from the per-pair
// projection maintained alongside every message write.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the acting user and pair identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
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
	unknownUserName   = "Unknown User"
	postStatusApprove = "approved"
)

// MessagePolicy holds the configurable rules of the send path.
type MessagePolicy struct {
	// MaxContentRunes caps content length; 0 disables the check.
	MaxContentRunes int
	// OutreachCategory, when set, is the only post category messages may
	// reference.
	OutreachCategory string
	// RequireApprovedPost rejects posts whose moderation status is not approved.
	RequireApprovedPost bool
}

// MessageService coordinates message sends and message store reads.
type MessageService struct {
	DB        *gorm.DB
	Publisher notify.Publisher
	Policy    MessagePolicy
}

// SendInput is one send-message call.
type SendInput struct {
	SenderID   string
	ReceiverID string
	Content    string
	PostID     *string
}

// SendKind tags which resource a send produced.
type SendKind string

const (
	SendKindMessage SendKind = "message"
	SendKindRequest SendKind = "request"
)

// SendResult is a tagged variant: exactly one of Message or Request is set,
// as indicated by Type.
type SendResult struct {
	Type    SendKind               `json:"type"`
	Message *domain.Message        `json:"message,omitempty"`
	Request *domain.MessageRequest `json:"request,omitempty"`
}

// normalizeContent applies NFC, folds CRLF/CR to LF and trims surrounding space.
func normalizeContent(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// Send validates the input and, in one transaction, either appends a direct
// message or creates a pending request, notifying the receiver either way.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("sender.id", in.SenderID),
			attribute.String("receiver.id", in.ReceiverID),
			attribute.Bool("post.scoped", in.PostID != nil),
		),
	)
	defer span.End()

	in.Content = normalizeContent(in.Content)
	if in.Content == "" {
		return nil, ErrEmptyContent
	}
	if s.Policy.MaxContentRunes > 0 && utf8.RuneCountInString(in.Content) > s.Policy.MaxContentRunes {
		return nil, ErrContentTooLong
	}
	if in.SenderID == in.ReceiverID {
		return nil, ErrSelfMessage
	}
	if in.PostID != nil && strings.TrimSpace(*in.PostID) == "" {
		in.PostID = nil
	}

	var (
		box outbox
		out *SendResult
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sender, err := repo.GetUser(ctx, tx, in.SenderID)
		if err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		if _, err := repo.GetUser(ctx, tx, in.ReceiverID); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		if in.PostID != nil {
			if err := s.checkPost(ctx, tx, *in.PostID, in.ReceiverID); err != nil {
				return err
			}
		}

		gate, err := canMessage(ctx, tx, in.SenderID, in.ReceiverID, in.PostID, false)
		if err != nil {
			return err
		}
		from := displayName(sender, in.SenderID)

		if gate.PendingRequest {
			return ErrPendingRequestExists
		}
		// Outreach starts from a post; a postless first message goes
		// straight to the log like any other direct message.
		if gate.CanMessageDirectly || in.PostID == nil {
			m := &domain.Message{
				Content:    in.Content,
				SenderID:   in.SenderID,
				ReceiverID: in.ReceiverID,
				PostID:     in.PostID,
				Status:     domain.MessageSent,
			}
			if err := repo.CreateMessage(ctx, tx, m); err != nil {
				return err
			}
			if err := repo.RecordMessage(ctx, tx, m); err != nil {
				return err
			}
			if err := box.dispatch(ctx, tx, in.ReceiverID, fmt.Sprintf("New message from %s", from), domain.ContentMessage, m.ID); err != nil {
				return err
			}
			out = &SendResult{Type: SendKindMessage, Message: m}
			return nil
		}

		req, err := repo.CreateRequest(ctx, tx, in.SenderID, in.ReceiverID, in.PostID, in.Content)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrPendingRequestExists
		}
		if err != nil {
			return err
		}
		if err := box.dispatch(ctx, tx, in.ReceiverID, fmt.Sprintf("New message request from %s", from), domain.ContentMessage, req.ID); err != nil {
			return err
		}
		out = &SendResult{Type: SendKindRequest, Request: req}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPendingRequestExists) {
			observability.Requests.WithLabelValues(observability.OutcomeConflict).Inc()
		}
		return nil, err
	}

	if out.Type == SendKindMessage {
		observability.MessagesCreated.WithLabelValues(observability.OriginDirect).Inc()
	} else {
		observability.Requests.WithLabelValues(observability.OutcomeCreated).Inc()
	}
	box.flush(ctx, s.Publisher)
	return out, nil
}

// checkPost enforces the post rules of a post-scoped send.
func (s *MessageService) checkPost(ctx context.Context, tx *gorm.DB, postID, receiverID string) error {
	post, err := repo.GetPost(ctx, tx, postID)
	if err != nil {
		return mapNotFound(err, ErrPostNotFound)
	}
	if c := s.Policy.OutreachCategory; c != "" && !strings.EqualFold(post.Category, c) {
		return ErrPostCategory
	}
	if post.UserID != receiverID {
		return ErrReceiverNotPostOwner
	}
	if s.Policy.RequireApprovedPost && !strings.EqualFold(post.Status, postStatusApprove) {
		return ErrPostNotApproved
	}
	return nil
}

// ConversationSummary is one entry of a user's conversation list.
type ConversationSummary struct {
	PartnerID     string          `json:"partner_id"`
	PartnerName   string          `json:"partner_name"`
	LastMessage   *domain.Message `json:"last_message"`
	UnreadCount   int             `json:"unread_count"`
	LastMessageAt time.Time       `json:"last_message_at"`
}

// ListConversations returns one summary per partner of userID, most recently
// active first.
func (s *MessageService) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListConversations", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	convs, err := repo.ListConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(convs))
	if len(convs) == 0 {
		return out, nil
	}

	partnerIDs := make([]string, 0, len(convs))
	lastIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		partnerIDs = append(partnerIDs, c.Partner(userID))
		lastIDs = append(lastIDs, c.LastMessageID)
	}
	users, err := repo.UsersByIDs(ctx, s.DB, partnerIDs)
	if err != nil {
		return nil, err
	}
	lasts, err := repo.MessagesByIDs(ctx, s.DB, lastIDs)
	if err != nil {
		return nil, err
	}

	for _, c := range convs {
		pid := c.Partner(userID)
		sum := ConversationSummary{
			PartnerID:     pid,
			PartnerName:   unknownUserName,
			UnreadCount:   c.UnreadFor(userID),
			LastMessageAt: c.LastMessageAt,
		}
		if u, ok := users[pid]; ok {
			sum.PartnerName = displayName(&u, unknownUserName)
		}
		if m, ok := lasts[c.LastMessageID]; ok {
			sum.LastMessage = &m
		}
		out = append(out, sum)
	}
	return out, nil
}

// Thread returns every message between userID and partnerID in order. As a
// side effect, unread messages from partnerID to userID become read, so a
// second call reports no unread messages.
func (s *MessageService) Thread(ctx context.Context, userID, partnerID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Thread",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("partner.id", partnerID),
		),
	)
	defer span.End()

	var out []domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetConversation(ctx, tx, userID, partnerID); err != nil {
			return mapNotFound(err, ErrNoConversation)
		}
		n, err := repo.MarkThreadRead(ctx, tx, partnerID, userID, time.Now().UTC())
		if err != nil {
			return err
		}
		if n > 0 {
			if err := repo.RefreshUnread(ctx, tx, userID, partnerID); err != nil {
				return err
			}
		}
		msgs, err := repo.ListThread(ctx, tx, userID, partnerID)
		if err != nil {
			return err
		}
		out = msgs
		return nil
	})
	return out, err
}

// UpdateStatus moves a message forward on the delivery track on behalf of
// its receiver. Re-applying the current status is a no-op.
func (s *MessageService) UpdateStatus(ctx context.Context, messageID, actorID string, to domain.MessageStatus) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", actorID),
			attribute.String("status", string(to)),
		),
	)
	defer span.End()

	if to != domain.MessageDelivered && to != domain.MessageRead {
		return nil, ErrInvalidStatus
	}

	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			return mapNotFound(err, ErrMessageNotFound)
		}
		if m.ReceiverID != actorID {
			// Senders and outsiders cannot acknowledge delivery.
			return ErrForbidden
		}
		if m.Status == to {
			out = m
			return nil
		}
		cur, ok := m.Status.DeliveryRank()
		next, _ := to.DeliveryRank()
		if !ok || next < cur {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		n, err := repo.AdvanceMessage(ctx, tx, m.ID, m.Status, to, now)
		if err != nil {
			return err
		}
		if n == 0 {
			// Another writer moved the status in between.
			return ErrInvalidTransition
		}
		if err := repo.RefreshUnread(ctx, tx, m.ReceiverID, m.SenderID); err != nil {
			return err
		}
		m.Status = to
		m.UpdatedAt = now
		out = m
		return nil
	})
	return out, err
}

// ListPostMessages returns the messages tied to postID, oldest first.
func (s *MessageService) ListPostMessages(ctx context.Context, postID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPostMessages", trace.WithAttributes(attribute.String("post.id", postID)))
	defer span.End()

	post, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		return nil, mapNotFound(err, ErrPostNotFound)
	}
	if c := s.Policy.OutreachCategory; c != "" && !strings.EqualFold(post.Category, c) {
		return nil, ErrPostCategory
	}
	return repo.ListPostMessages(ctx, s.DB, postID)
}
