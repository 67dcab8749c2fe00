package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-community-messaging/internal/services"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrPendingRequestExists, http.StatusBadRequest, ErrCodePendingRequestExists},
		{fmt.Errorf("send: %w", services.ErrPendingRequestExists), http.StatusBadRequest, ErrCodePendingRequestExists},
		{services.ErrInvalidTransition, http.StatusBadRequest, ErrCodeInvalidTransition},
		{services.ErrSelfMessage, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrPostNotApproved, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrRequestNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrNoConversation, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrNotAdmin, http.StatusForbidden, ErrCodeForbidden},
		{errors.New("db down"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("classify(%v) = %d %s; want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}
