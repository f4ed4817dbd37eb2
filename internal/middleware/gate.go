package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"task_tracker/internal/apperr"
	"task_tracker/internal/auth"
	"task_tracker/internal/config"
	"task_tracker/internal/observability"

	"github.com/gin-gonic/gin"
)

// UserLookup reports whether a token subject still names a live account.
type UserLookup interface {
	Exists(ctx context.Context, id int) (bool, error)
}

// AccessGate admits a request only when it carries the shared API key and a
// valid bearer token for an existing user, checked in that order.
type AccessGate struct {
	header  string
	apiKey  []byte
	tokens  *auth.TokenService
	users   UserLookup
	metrics *observability.Metrics
}

func NewAccessGate(
	cfg config.APIKeyConfig,
	tokens *auth.TokenService,
	users UserLookup,
	metrics *observability.Metrics,
) *AccessGate {
	header := cfg.Header
	if header == "" {
		header = "X-API-Key"
	}

	return &AccessGate{
		header:  header,
		apiKey:  []byte(cfg.Value),
		tokens:  tokens,
		users:   users,
		metrics: metrics,
	}
}

// Authorize returns the authenticated user id. The API key is checked before
// the token is looked at, so a request with neither reports the key.
func (g *AccessGate) Authorize(ctx context.Context, apiKey, authorization string) (int, error) {
	if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), g.apiKey) != 1 {
		return 0, apperr.ErrMissingOrInvalidAPIKey
	}

	token, ok := bearerToken(authorization)
	if !ok {
		return 0, apperr.ErrInvalidOrExpiredToken
	}

	userID, err := g.tokens.Validate(token)
	if err != nil {
		return 0, apperr.ErrInvalidOrExpiredToken
	}

	exists, err := g.users.Exists(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("look up token subject: %w", err)
	}
	if !exists {
		return 0, apperr.ErrInvalidOrExpiredToken
	}

	return userID, nil
}

// Handler validates every request and sets userID in the context.
func (g *AccessGate) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := g.Authorize(
			c.Request.Context(),
			c.GetHeader(g.header),
			c.GetHeader("Authorization"),
		)
		if err != nil {
			g.metrics.AuthRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
			apperr.Abort(c, err)
			return
		}

		c.Set(auth.UserIDKey, userID)
		c.Next()
	}
}

// bearerToken extracts the token from "Bearer <token>". The scheme is
// matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, auth.TokenTypeBearer) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectionReason(err error) string {
	switch apperr.Lookup(err) {
	case apperr.ErrMissingOrInvalidAPIKey:
		return "api_key"
	case apperr.ErrInvalidOrExpiredToken:
		return "token"
	default:
		return "error"
	}
}
