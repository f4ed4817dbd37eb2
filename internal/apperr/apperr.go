// Package apperr defines the client-visible failure taxonomy and how each
// member is written to a gin response.
package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Error is a failure that may be shown to the caller as-is.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrUsernameTaken          = &Error{Code: "username_taken", Status: http.StatusConflict, Message: "Username already taken"}
	ErrInvalidCredentials     = &Error{Code: "invalid_credentials", Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	ErrMissingOrInvalidAPIKey = &Error{Code: "missing_or_invalid_api_key", Status: http.StatusUnauthorized, Message: "Invalid or missing API Key"}
	ErrInvalidOrExpiredToken  = &Error{Code: "invalid_or_expired_token", Status: http.StatusUnauthorized, Message: "Invalid or expired token"}
	ErrNotFound               = &Error{Code: "not_found", Status: http.StatusNotFound, Message: "Task not found"}
	ErrInvalidStatus          = &Error{Code: "invalid_status", Status: http.StatusUnprocessableEntity, Message: "Status must be one of: pending, completed"}
	ErrInvalidTitle           = &Error{Code: "invalid_title", Status: http.StatusUnprocessableEntity, Message: "Title is required"}
	ErrBadRequest             = &Error{Code: "bad_request", Status: http.StatusBadRequest, Message: "Invalid request body"}
	ErrInternal               = &Error{Code: "internal_error", Status: http.StatusInternalServerError, Message: "Internal server error"}
)

// Lookup returns the taxonomy member carried by err, or ErrInternal when err
// is not part of the taxonomy.
func Lookup(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal
}

// Respond writes err as a JSON error body. Errors outside the taxonomy are
// logged and replaced by ErrInternal so no detail reaches the caller.
func Respond(c *gin.Context, err error) {
	appErr := Lookup(err)
	if appErr == ErrInternal {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Request failed")
	}
	c.JSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
}

// Abort is Respond for middleware: the remaining handlers are skipped.
func Abort(c *gin.Context, err error) {
	Respond(c, err)
	c.Abort()
}
