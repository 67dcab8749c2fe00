// Package services defines the business logic of consent-gated messaging:
// the request gate, the send entry point, the request lifecycle, message
// store reads, the notification ledger and administrative cascades.
//
// This file centralizes the service-level error values so that service
// methods return them consistently and the HTTP layer can map them to
// status codes with errors.Is.
package services

import "errors"

// Not found.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPostNotFound         = errors.New("post not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrRequestNotFound      = errors.New("message request not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

// Validation.
var (
	// ErrSelfMessage is returned when sender and receiver are the same user.
	ErrSelfMessage = errors.New("cannot message yourself")

	// ErrEmptyContent is returned when the message content is blank after
	// normalization.
	ErrEmptyContent = errors.New("content is empty")

	// ErrContentTooLong is returned when content exceeds the configured
	// maximum number of runes.
	ErrContentTooLong = errors.New("content too long")

	// ErrPostCategory is returned when the referenced post is not in the
	// category that accepts outreach messages.
	ErrPostCategory = errors.New("post does not accept outreach messages")

	// ErrReceiverNotPostOwner is returned when a post-scoped message is not
	// addressed to the post's author.
	ErrReceiverNotPostOwner = errors.New("receiver is not the post owner")

	// ErrPostNotApproved is returned when approved posts are required and the
	// referenced post is not approved.
	ErrPostNotApproved = errors.New("post is not approved")

	// ErrInvalidDecision is returned when a respond call carries a decision
	// other than accepted or rejected.
	ErrInvalidDecision = errors.New("decision must be accepted or rejected")

	// ErrInvalidStatus is returned when a status update targets anything
	// other than delivered or read.
	ErrInvalidStatus = errors.New("status must be delivered or read")

	// ErrInvalidContentType is returned for unknown notification content types.
	ErrInvalidContentType = errors.New("invalid related content type")
)

// Conflicts and state machine violations.
var (
	// ErrPendingRequestExists is returned when a pending request already
	// exists for the (sender, receiver, post) tuple.
	ErrPendingRequestExists = errors.New("pending request already exists")

	// ErrInvalidTransition is returned when a request is no longer pending
	// or a message status would move backward.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Authorization.
var (
	// ErrForbidden is returned when the acting user is not allowed to act on
	// the resource (not the receiver, not a participant).
	ErrForbidden = errors.New("forbidden")

	// ErrNoConversation is returned when a thread is requested for a pair
	// with no established conversation.
	ErrNoConversation = errors.New("no established conversation")

	// ErrNotAdmin is returned when a non-administrator invokes an
	// administrative operation.
	ErrNotAdmin = errors.New("administrator role required")
)
