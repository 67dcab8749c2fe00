// Message HTTP handlers.
//
// This file exposes the consent-gated messaging endpoints:
//   - POST  /messages                                  (send: message or request)
//   - GET   /messages/can-message/{user_id}/{target_id} (gate check)
//   - GET   /messages/requests/{user_id}               (pending inbox, ETag)
//   - POST  /messages/requests/{request_id}/respond    (accept / reject)
//   - GET   /messages/conversations/{user_id}          (conversation list, ETag)
//   - GET   /messages/thread/{user_id}/{partner_id}    (thread, marks read)
//   - PATCH /messages/{message_id}                     (delivery/read receipt)
//   - GET   /messages/vent-outreach/{post_id}          (post outreach listing)
//
// Idempotency:
// If the client supplies an Idempotency-Key on a send and a previous result
// exists for (sender, route, key), the handler answers with the recorded
// resource and status and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-messaging/internal/domain"
	"github.com/tbourn/go-community-messaging/internal/http/middleware"
	"github.com/tbourn/go-community-messaging/internal/repo"
	"github.com/tbourn/go-community-messaging/internal/services"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload of a send.
type SendMessageRequest struct {
	ReceiverID string  `json:"receiver_id" binding:"required" example:"user-42"`
	Content    string  `json:"content"     binding:"required" example:"Hey, I read your post and wanted to reach out."`
	PostID     *string `json:"post_id,omitempty" example:"post-7"`
}

// RespondRequest carries the receiver's decision on a message request.
type RespondRequest struct {
	Status domain.RequestStatus `json:"status" binding:"required" enums:"accepted,rejected" example:"accepted"`
}

// UpdateStatusRequest carries a delivery or read receipt.
type UpdateStatusRequest struct {
	Status domain.MessageStatus `json:"status" binding:"required" enums:"delivered,read" example:"read"`
}

// ListRequestsResponse wraps the pending inbox.
type ListRequestsResponse struct {
	Requests []domain.MessageRequest `json:"requests"`
}

// ListConversationsResponse wraps the conversation summaries.
type ListConversationsResponse struct {
	Conversations []services.ConversationSummary `json:"conversations"`
}

// ListMessagesResponse wraps an ordered list of messages.
type ListMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

func optionalQuery(c *gin.Context, key string) *string {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return &v
	}
	return nil
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message or open a message request
// @Description Delivers the message directly when the pair has an established conversation.
// @Description Otherwise a pending message request is created for the receiver to accept or reject.
// @Description Supports idempotency via the Idempotency-Key header (same key, same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       sender_id        query   string  false "Acting sender (ignored when authenticated)"  example(user-1)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"            example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  services.SendResult           "Created message or request"
// @Header      201  {string}  Idempotency-Replayed          "true when served from a previous attempt"
// @Failure     400  {object}  handlers.ErrorResponse        "Validation error or pending_request_exists"
// @Failure     403  {object}  handlers.ErrorResponse        "Acting user mismatch"
// @Failure     404  {object}  handlers.ErrorResponse        "User or post not found"
// @Failure     429  {object}  handlers.ErrorResponse        "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	sender, okUser := actingUser(c, c.Query("sender_id"))
	if !okUser {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "receiver_id and content required")
		return
	}

	scope := middleware.IdempotencyScope(c)
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && middleware.IsReplay(c) && h.replaySend(c, sender, scope, idemKey) {
		return
	}

	res, err := h.msgs.Send(ctx, services.SendInput{
		SenderID:   sender,
		ReceiverID: strings.TrimSpace(req.ReceiverID),
		Content:    req.Content,
		PostID:     req.PostID,
	})
	if err != nil {
		failErr(c, err)
		return
	}

	if hasKey && h.db != nil {
		h.recordSend(ctx, c, sender, scope, idemKey, res)
	}

	ok(c, http.StatusCreated, res)
}

// replaySend answers with the resource recorded for key, if it still exists.
func (h *Handlers) replaySend(c *gin.Context, sender, scope, key string) bool {
	if h.db == nil {
		return false
	}
	ctx := c.Request.Context()
	rec, err := repo.GetIdempotency(ctx, h.db, sender, scope, key, time.Now().UTC())
	if err != nil {
		return false
	}

	res := &services.SendResult{Type: services.SendKind(rec.ResourceType)}
	switch res.Type {
	case services.SendKindMessage:
		m, err := repo.GetMessage(ctx, h.db, rec.ResourceID)
		if err != nil {
			return false
		}
		res.Message = m
	case services.SendKindRequest:
		r, err := repo.GetRequest(ctx, h.db, rec.ResourceID)
		if err != nil {
			return false
		}
		res.Request = r
	default:
		return false
	}

	c.Header(middleware.HeaderIdempotencyReplayed, "true")
	ok(c, rec.Status, res)
	return true
}

// recordSend stores the send outcome under key. A concurrent attempt that
// recorded first wins; other failures are logged and ignored.
func (h *Handlers) recordSend(ctx context.Context, c *gin.Context, sender, scope, key string, res *services.SendResult) {
	id := ""
	switch {
	case res.Message != nil:
		id = res.Message.ID
	case res.Request != nil:
		id = res.Request.ID
	}
	_, err := repo.CreateIdempotency(ctx, h.db, sender, scope, key, repo.IdempotencyResult{
		ResourceType: string(res.Type),
		ResourceID:   id,
		Status:       http.StatusCreated,
	}, h.idemTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
	}
}

// CanMessage godoc
// @ID          canMessage
// @Summary     Check whether a user may message another directly
// @Description Reports an established conversation, a pending request or a previous rejection.
// @Description Without post_id the request state across all posts is reported.
// @Tags        Messages
// @Produce     json
//
// @Param       user_id    path   string  true  "Acting sender"   example(user-1)
// @Param       target_id  path   string  true  "Receiver"        example(user-42)
// @Param       post_id    query  string  false "Post context"    example(post-7)
//
// @Success     200  {object}  services.GateResult
// @Failure     403  {object}  handlers.ErrorResponse  "Acting user mismatch"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/can-message/{user_id}/{target_id} [get]
func (h *Handlers) CanMessage(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	res, err := h.gate.CanMessage(c.Request.Context(), uid, c.Param("target_id"), optionalQuery(c, "post_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListPendingRequests godoc
// @ID          listPendingRequests
// @Summary     List pending message requests
// @Description Returns the pending requests addressed to the user, newest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Requests
// @Produce     json
//
// @Param       user_id        path    string  true  "Receiver"                    example(user-42)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.ListRequestsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/requests/{user_id} [get]
func (h *Handlers) ListPendingRequests(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	if h.notModified(c, "requests", uid, repo.RequestsStats) {
		return
	}
	items, err := h.reqs.ListPending(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListRequestsResponse{Requests: items})
}

// RespondToRequest godoc
// @ID          respondToRequest
// @Summary     Accept or reject a message request
// @Description Only the receiver may respond, and only while the request is pending.
// @Description Accepting materializes the initial message and opens the conversation.
// @Tags        Requests
// @Accept      json
// @Produce     json
//
// @Param       request_id  path   string  true  "Request ID"        format(uuid)
// @Param       user_id     query  string  false "Acting receiver"   example(user-42)
// @Param       body        body   handlers.RespondRequest  true  "Decision"
//
// @Success     200  {object}  services.RespondResult
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid decision or invalid_transition"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the receiver"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/requests/{request_id}/respond [post]
func (h *Handlers) RespondToRequest(c *gin.Context) {
	uid, okUser := actingUser(c, c.Query("user_id"))
	if !okUser {
		return
	}
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	res, err := h.reqs.Respond(c.Request.Context(), c.Param("request_id"), uid, req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns one summary per partner, most recently active first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       user_id        path    string  true  "User"                        example(user-1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  handlers.ListConversationsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse "Acting user mismatch"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/conversations/{user_id} [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	if h.notModified(c, "conversations", uid, repo.ConversationsStats) {
		return
	}
	items, err := h.msgs.ListConversations(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items})
}

// GetThread godoc
// @ID          getThread
// @Summary     Read a conversation thread
// @Description Returns every message between the pair, oldest first, and marks the partner's messages as read.
// @Tags        Messages
// @Produce     json
//
// @Param       user_id     path  string  true  "Reader"   example(user-1)
// @Param       partner_id  path  string  true  "Partner"  example(user-42)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     403  {object}  handlers.ErrorResponse "No established conversation"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/thread/{user_id}/{partner_id} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	uid, okUser := actingUser(c, c.Param("user_id"))
	if !okUser {
		return
	}
	items, err := h.msgs.Thread(c.Request.Context(), uid, c.Param("partner_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items})
}

// UpdateMessageStatus godoc
// @ID          updateMessageStatus
// @Summary     Acknowledge delivery or read
// @Description Moves a message forward on the delivery track. Only the receiver may acknowledge.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       message_id  path   string  true  "Message ID"       format(uuid)
// @Param       user_id     query  string  false "Acting receiver"  example(user-42)
// @Param       body        body   handlers.UpdateStatusRequest  true  "New status"
//
// @Success     200  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse "Invalid status or invalid_transition"
// @Failure     403  {object}  handlers.ErrorResponse "Not the receiver"
// @Failure     404  {object}  handlers.ErrorResponse "Message not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/{message_id} [patch]
func (h *Handlers) UpdateMessageStatus(c *gin.Context) {
	uid, okUser := actingUser(c, c.Query("user_id"))
	if !okUser {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	m, err := h.msgs.UpdateStatus(c.Request.Context(), c.Param("message_id"), uid, req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// ListPostMessages godoc
// @ID          listPostMessages
// @Summary     List outreach messages of a post
// @Description Returns the messages tied to an outreach post, oldest first.
// @Tags        Messages
// @Produce     json
//
// @Param       post_id  path  string  true  "Post ID"  example(post-7)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     400  {object}  handlers.ErrorResponse "Post does not accept outreach"
// @Failure     404  {object}  handlers.ErrorResponse "Post not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/vent-outreach/{post_id} [get]
func (h *Handlers) ListPostMessages(c *gin.Context) {
	items, err := h.msgs.ListPostMessages(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items})
}
