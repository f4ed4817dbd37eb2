package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"task_tracker/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	UserIDKey = "userID"

	TokenTypeBearer = "bearer"
)

// ErrInvalidToken covers every reason a token can be refused. The cause is
// deliberately not reported.
var ErrInvalidToken = errors.New("invalid token")

// Expiry is encoded with millisecond precision, so a token stays valid until
// just before issue time plus TTL instead of up to a second less.
func init() {
	jwt.TimePrecision = time.Millisecond
}

type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now for both issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

func NewTokenService(cfg config.JWTConfig, opts ...TokenOption) *TokenService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}

	s := &TokenService{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for subject using the configured TTL.
func (s *TokenService) Issue(subject int) (*AccessToken, error) {
	token, err := s.IssueWithTTL(subject, s.ttl)
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

// IssueWithTTL signs an HS256 token whose subject is the decimal user id.
func (s *TokenService) IssueWithTTL(subject int, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(subject),
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate returns the subject of a well-formed, correctly signed, unexpired
// token. Any other input yields ErrInvalidToken.
func (s *TokenService) Validate(tokenString string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidToken
	}

	return userID, nil
}

// GetUserIDFromContext extracts userID from Gin context
func GetUserIDFromContext(c *gin.Context) (int, error) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(int)
	if !ok {
		return 0, fmt.Errorf("invalid user ID type")
	}

	return id, nil
}
