package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task_tracker/internal/apperr"
	"task_tracker/internal/auth"
	"task_tracker/internal/config"
	"task_tracker/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "shared-secret"

type MockUserLookup struct {
	mock.Mock
}

func (m *MockUserLookup) Exists(ctx context.Context, id int) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func newTestGate(users UserLookup) (*AccessGate, *auth.TokenService, *observability.Metrics) {
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-signing-key", TokenTTL: time.Hour})
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	gate := NewAccessGate(config.APIKeyConfig{Header: "X-API-Key", Value: testAPIKey}, tokens, users, metrics)
	return gate, tokens, metrics
}

func issue(t *testing.T, tokens *auth.TokenService, userID int) string {
	t.Helper()
	token, err := tokens.Issue(userID)
	require.NoError(t, err)
	return token.AccessToken
}

func TestAuthorize_Success(t *testing.T) {
	users := new(MockUserLookup)
	gate, tokens, _ := newTestGate(users)

	users.On("Exists", 7).Return(true, nil)

	userID, err := gate.Authorize(context.Background(), testAPIKey, "Bearer "+issue(t, tokens, 7))

	require.NoError(t, err)
	assert.Equal(t, 7, userID)
	users.AssertExpectations(t)
}

func TestAuthorize_SchemeIsCaseInsensitive(t *testing.T) {
	users := new(MockUserLookup)
	gate, tokens, _ := newTestGate(users)

	users.On("Exists", 7).Return(true, nil)

	for _, scheme := range []string{"bearer", "BEARER", "Bearer"} {
		userID, err := gate.Authorize(context.Background(), testAPIKey, scheme+" "+issue(t, tokens, 7))

		require.NoError(t, err, scheme)
		assert.Equal(t, 7, userID)
	}
}

func TestAuthorize_APIKeyCheckedFirst(t *testing.T) {
	users := new(MockUserLookup)
	gate, tokens, _ := newTestGate(users)
	valid := "Bearer " + issue(t, tokens, 7)

	cases := []struct {
		name          string
		apiKey        string
		authorization string
	}{
		{"missing key, valid token", "", valid},
		{"wrong key, valid token", "nope", valid},
		{"missing key, missing token", "", ""},
		{"wrong key, garbage token", "shared-secreT", "Bearer garbage"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gate.Authorize(context.Background(), tc.apiKey, tc.authorization)
			assert.ErrorIs(t, err, apperr.ErrMissingOrInvalidAPIKey)
		})
	}

	users.AssertNotCalled(t, "Exists", mock.Anything)
}

func TestAuthorize_InvalidToken(t *testing.T) {
	users := new(MockUserLookup)
	gate, _, _ := newTestGate(users)

	other := auth.NewTokenService(config.JWTConfig{Secret: "another-key", TokenTTL: time.Hour})
	otherToken, err := other.Issue(7)
	require.NoError(t, err)

	expired := auth.NewTokenService(
		config.JWTConfig{Secret: "test-signing-key", TokenTTL: time.Hour},
		auth.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }),
	)
	expiredToken, err := expired.Issue(7)
	require.NoError(t, err)

	for _, authorization := range []string{
		"",
		"Bearer",
		"Bearer ",
		"Basic dXNlcjpwYXNz",
		"Bearer not.a.jwt",
		"Bearer " + otherToken.AccessToken,
		"Bearer " + expiredToken.AccessToken,
	} {
		_, err := gate.Authorize(context.Background(), testAPIKey, authorization)
		assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken, authorization)
	}

	users.AssertNotCalled(t, "Exists", mock.Anything)
}

func TestAuthorize_DeletedUser(t *testing.T) {
	users := new(MockUserLookup)
	gate, tokens, _ := newTestGate(users)

	users.On("Exists", 7).Return(false, nil)

	_, err := gate.Authorize(context.Background(), testAPIKey, "Bearer "+issue(t, tokens, 7))

	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)
}

func TestAuthorize_StoreFailure(t *testing.T) {
	users := new(MockUserLookup)
	gate, tokens, _ := newTestGate(users)

	users.On("Exists", 7).Return(false, errors.New("connection refused"))

	_, err := gate.Authorize(context.Background(), testAPIKey, "Bearer "+issue(t, tokens, 7))

	require.Error(t, err)
	assert.Same(t, apperr.ErrInternal, apperr.Lookup(err))
}

func setupGateRouter(gate *AccessGate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", gate.Handler(), func(c *gin.Context) {
		userID, err := auth.GetUserIDFromContext(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestHandler_SetsPrincipal(t *testing.T) {
	users := new(MockUserLookup)
	gate, tokens, _ := newTestGate(users)
	router := setupGateRouter(gate)

	users.On("Exists", 3).Return(true, nil)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Authorization", "Bearer "+issue(t, tokens, 3))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id": 3}`, w.Body.String())
}

func TestHandler_Rejections(t *testing.T) {
	users := new(MockUserLookup)
	gate, tokens, metrics := newTestGate(users)
	router := setupGateRouter(gate)

	cases := []struct {
		name          string
		apiKey        string
		authorization string
		code          string
	}{
		{"no key", "", "Bearer " + issue(t, tokens, 3), apperr.ErrMissingOrInvalidAPIKey.Code},
		{"no token", testAPIKey, "", apperr.ErrInvalidOrExpiredToken.Code},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.apiKey != "" {
				req.Header.Set("X-API-Key", tc.apiKey)
			}
			if tc.authorization != "" {
				req.Header.Set("Authorization", tc.authorization)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tc.code, response["code"])
		})
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthRejectionsTotal.WithLabelValues("api_key")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthRejectionsTotal.WithLabelValues("token")))
}
