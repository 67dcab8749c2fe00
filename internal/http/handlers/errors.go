// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants and the mapping from
// service sentinels to (status, code). Clients branch on the code; the
// message is for humans.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "pending_request_exists",
//	  "message": "pending request already exists"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-community-messaging/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodePendingRequestExists = "pending_request_exists"
	ErrCodeInvalidTransition    = "invalid_transition"
)

type errMapping struct {
	err    error
	status int
	code   string
}

// errTable is checked in order with errors.Is.
var errTable = []errMapping{
	{services.ErrPendingRequestExists, http.StatusBadRequest, ErrCodePendingRequestExists},
	{services.ErrInvalidTransition, http.StatusBadRequest, ErrCodeInvalidTransition},

	{services.ErrSelfMessage, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrEmptyContent, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrContentTooLong, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrPostCategory, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrReceiverNotPostOwner, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrPostNotApproved, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidDecision, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidStatus, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidContentType, http.StatusBadRequest, ErrCodeBadRequest},

	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrPostNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrMessageNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrRequestNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrNotificationNotFound, http.StatusNotFound, ErrCodeNotFound},

	{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNoConversation, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrNotAdmin, http.StatusForbidden, ErrCodeForbidden},
}

// classify returns the HTTP status and code for err. Unknown errors are 500.
func classify(err error) (int, string) {
	for _, m := range errTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// failErr writes the envelope for a service error. Internal errors never
// leak their text to clients; fail logs them.
func failErr(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		fail(c, status, code, "internal server error")
		return
	}
	fail(c, status, code, err.Error())
}
