package user

import (
	"errors"
	"net/http"

	"task_tracker/internal/apperr"
	"task_tracker/internal/auth"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	userService UserServiceInterface
}

func NewUserController(userService UserServiceInterface) *UserController {
	return &UserController{
		userService: userService,
	}
}

type credentialsRequest struct {
	Username string `json:"username" form:"username" binding:"required,max=50"`
	Password string `json:"password" form:"password"`
}

// Register handles user registration
func (a *UserController) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.ErrBadRequest)
		return
	}

	user, err := a.userService.Signup(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, user.Profile())
}

// Login exchanges username and password for a bearer token. Both JSON and
// form-encoded bodies are accepted.
func (a *UserController) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" form:"username" binding:"required"`
		Password string `json:"password" form:"password"`
	}

	if err := c.ShouldBind(&req); err != nil {
		apperr.Respond(c, apperr.ErrBadRequest)
		return
	}

	token, err := a.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// Me returns the authenticated user's profile.
func (a *UserController) Me(c *gin.Context) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		apperr.Respond(c, apperr.ErrInvalidOrExpiredToken)
		return
	}

	user, err := a.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			err = apperr.ErrInvalidOrExpiredToken
		}
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, user.Profile())
}

// DeleteMe removes the authenticated user and all of their tasks.
func (a *UserController) DeleteMe(c *gin.Context) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		apperr.Respond(c, apperr.ErrInvalidOrExpiredToken)
		return
	}

	if err := a.userService.DeleteUser(c.Request.Context(), userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			err = apperr.ErrInvalidOrExpiredToken
		}
		apperr.Respond(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
