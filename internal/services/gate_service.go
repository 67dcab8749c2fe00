// Package services – GateService
//
// GateService answers whether a sender may write to a receiver directly or
// must go through request approval. An established conversation between the
// pair dominates every post-scoped request state: once the pair has talked,
// any post context is open.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GateResult is the outcome of a gate check.
type GateResult struct {
	CanMessageDirectly bool    `json:"can_message_directly"`
	PendingRequest     bool    `json:"pending_request"`
	RequestRejected    bool    `json:"request_rejected"`
	RequestID          *string `json:"request_id"`
}

// GateService is the read-only RequestGate.
type GateService struct {
	DB *gorm.DB
}

// CanMessage reports the gate state from senderID to receiverID. With postID
// set only requests tied to that post are considered; with postID nil the
// request state across every post context is reported.
func (s *GateService) CanMessage(ctx context.Context, senderID, receiverID string, postID *string) (GateResult, error) {
	tr := otel.Tracer("services/GateService")
	ctx, span := tr.Start(ctx, "CanMessage",
		trace.WithAttributes(
			attribute.String("sender.id", senderID),
			attribute.String("receiver.id", receiverID),
			attribute.Bool("post.scoped", postID != nil),
		),
	)
	defer span.End()

	return canMessage(ctx, s.DB, senderID, receiverID, postID, postID == nil)
}

// canMessage is the gate evaluated against db, which may be a transaction.
// anyPost widens the request lookup to every post context.
func canMessage(ctx context.Context, db *gorm.DB, senderID, receiverID string, postID *string, anyPost bool) (GateResult, error) {
	var res GateResult

	_, err := repo.GetConversation(ctx, db, senderID, receiverID)
	switch {
	case err == nil:
		res.CanMessageDirectly = true
		return res, nil
	case !errors.Is(err, repo.ErrNotFound):
		return res, err
	}

	filter := repo.RequestFilter{
		SenderID:   senderID,
		ReceiverID: receiverID,
		PostID:     postID,
		AnyPost:    anyPost,
		Status:     domain.RequestPending,
	}
	pending, err := repo.FindRequest(ctx, db, filter)
	switch {
	case err == nil:
		res.PendingRequest = true
		id := pending.ID
		res.RequestID = &id
	case !errors.Is(err, repo.ErrNotFound):
		return res, err
	}

	filter.Status = domain.RequestRejected
	_, err = repo.FindRequest(ctx, db, filter)
	switch {
	case err == nil:
		res.RequestRejected = true
	case !errors.Is(err, repo.ErrNotFound):
		return res, err
	}
	return res, nil
}
