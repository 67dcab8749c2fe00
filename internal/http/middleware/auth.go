// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. Identity is owned by an
// external provider; this service only verifies HS256 tokens it shares a
// secret with and stores the principal (claim user_id, falling back to sub)
// in the Gin context under "userID". Administrative rights are not taken from
// the token; they come from the synced user directory.
//
// Without a configured secret the Authorization header is ignored, and the
// acting user is resolved from request parameters or X-User-ID downstream.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxKeyUserID = "userID"

	// HeaderUserID names the acting user when no principal is present.
	HeaderUserID = "X-User-ID"
)

// Claims is the token payload accepted by Auth.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HMAC key. Empty disables token parsing.
	Secret []byte
	// Required rejects requests that carry no valid token.
	Required bool
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

var errNoToken = errors.New("missing bearer token")

// Auth validates "Authorization: Bearer <jwt>" and records the principal.
//
// Behavior:
//   - Header absent: 401 when Required, otherwise anonymous.
//   - Header present but invalid (bad signature, expired, wrong alg, no
//     subject): always 401, even when not Required.
func Auth(opts AuthOptions) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(opts.Leeway),
	)
	keyFn := func(*jwt.Token) (any, error) { return opts.Secret, nil }

	return func(c *gin.Context) {
		if len(opts.Secret) == 0 {
			if opts.Required {
				unauthorized(c, "authentication is not configured")
				return
			}
			c.Next()
			return
		}

		raw, err := bearer(c.GetHeader("Authorization"))
		if errors.Is(err, errNoToken) {
			if opts.Required {
				unauthorized(c, "missing bearer token")
				return
			}
			c.Next()
			return
		}
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		claims := &Claims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFn); err != nil {
			unauthorized(c, "invalid token")
			return
		}
		uid := claims.UserID
		if uid == "" {
			uid = claims.Subject
		}
		if uid == "" {
			unauthorized(c, "token has no subject")
			return
		}

		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// GenerateToken signs an HS256 token for userID valid for ttl.
func GenerateToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Principal returns the authenticated user id, if any.
func Principal(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// RequestUser resolves who a request acts for: the principal first, then the
// first non-empty query parameter among keys, then X-User-ID.
func RequestUser(c *gin.Context, keys ...string) string {
	if uid, ok := Principal(c); ok {
		return uid
	}
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(c.GetHeader(HeaderUserID))
}

func bearer(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", errNoToken
	}
	scheme, tok, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization scheme must be Bearer")
	}
	if tok = strings.TrimSpace(tok); tok == "" {
		return "", errors.New("empty bearer token")
	}
	return tok, nil
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="messaging"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
