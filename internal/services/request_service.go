// Package services – RequestService
//
// RequestService drives a message request from pending to a terminal state.
// The receiver's decision, the first conversation message (on accept) and
// the sender's notification commit together. The pending guard is a
// conditional update, so of two concurrent responders exactly one wins and
// the other observes ErrInvalidTransition.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/notify"
	"github.com/tbourn/go-community-messaging/internal/observability"
	"github.com/tbourn/go-community-messaging/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestService implements the RequestLifecycle.
type RequestService struct {
	DB        *gorm.DB
	Publisher notify.Publisher
}

// ListPending returns the requests awaiting receiverID's decision, newest first.
func (s *RequestService) ListPending(ctx context.Context, receiverID string) ([]domain.MessageRequest, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "ListPending", trace.WithAttributes(attribute.String("user.id", receiverID)))
	defer span.End()

	return repo.ListPendingRequests(ctx, s.DB, receiverID)
}

// RespondResult is the terminal request plus the message materialized on accept.
type RespondResult struct {
	Request *domain.MessageRequest `json:"request"`
	Message *domain.Message        `json:"message,omitempty"`
}

// Respond applies the receiver's decision to a pending request.
func (s *RequestService) Respond(ctx context.Context, requestID, actorID string, decision domain.RequestStatus) (*RespondResult, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", actorID),
			attribute.String("decision", string(decision)),
		),
	)
	defer span.End()

	var (
		box outbox
		out *RespondResult
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := repo.GetRequest(ctx, tx, requestID)
		if err != nil {
			return mapNotFound(err, ErrRequestNotFound)
		}
		if req.ReceiverID != actorID {
			return ErrForbidden
		}
		if decision != domain.RequestAccepted && decision != domain.RequestRejected {
			return ErrInvalidDecision
		}
		if req.Status != domain.RequestPending {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		n, err := repo.ResolveRequest(ctx, tx, req.ID, decision, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrInvalidTransition
		}
		req.Status = decision
		req.RespondedAt = &now
		req.PendingKey = nil
		out = &RespondResult{Request: req}

		receiver, err := repo.GetUser(ctx, tx, req.ReceiverID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		who := displayName(receiver, "The recipient")

		if decision == domain.RequestRejected {
			return box.dispatch(ctx, tx, req.SenderID,
				fmt.Sprintf("%s declined your message request", who),
				domain.ContentMessage, req.ID)
		}

		reqID := req.ID
		m := &domain.Message{
			Content:    req.InitialMessage,
			SenderID:   req.SenderID,
			ReceiverID: req.ReceiverID,
			PostID:     req.PostID,
			RequestID:  &reqID,
			Status:     domain.MessageAccepted,
		}
		if err := repo.CreateMessage(ctx, tx, m); err != nil {
			return err
		}
		if err := repo.RecordMessage(ctx, tx, m); err != nil {
			return err
		}
		out.Message = m
		return box.dispatch(ctx, tx, req.SenderID,
			fmt.Sprintf("%s accepted your message request, you can now chat", who),
			domain.ContentMessage, req.ID)
	})
	if err != nil {
		return nil, err
	}

	if decision == domain.RequestAccepted {
		observability.Requests.WithLabelValues(observability.OutcomeAccepted).Inc()
		observability.MessagesCreated.WithLabelValues(observability.OriginRequest).Inc()
	} else {
		observability.Requests.WithLabelValues(observability.OutcomeRejected).Inc()
	}
	box.flush(ctx, s.Publisher)
	return out, nil
}
