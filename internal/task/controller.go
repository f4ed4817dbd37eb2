package task

import (
	"errors"
	"net/http"
	"strconv"

	"task_tracker/internal/apperr"
	"task_tracker/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type TaskController struct {
	service TaskServiceInterface
}

func NewTaskController(service TaskServiceInterface) *TaskController {
	return &TaskController{
		service: service,
	}
}

type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
}

type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required,oneof=pending completed"`
}

// CreateTask handles task creation
func (tc *TaskController) CreateTask(c *gin.Context) {
	ownerID, ok := principal(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, bindingError(err, "Title", apperr.ErrInvalidTitle))
		return
	}

	task, err := tc.service.Create(c.Request.Context(), ownerID, req.Title, req.Description)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// ListTasks returns every task owned by the caller, ordered by id.
func (tc *TaskController) ListTasks(c *gin.Context) {
	ownerID, ok := principal(c)
	if !ok {
		return
	}

	tasks, err := tc.service.List(c.Request.Context(), ownerID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// GetTask handles getting task by ID
func (tc *TaskController) GetTask(c *gin.Context) {
	ownerID, ok := principal(c)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	task, err := tc.service.Get(c.Request.Context(), ownerID, taskID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// UpdateTaskStatus changes the status of one of the caller's tasks.
func (tc *TaskController) UpdateTaskStatus(c *gin.Context) {
	ownerID, ok := principal(c)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, bindingError(err, "Status", apperr.ErrInvalidStatus))
		return
	}

	task, err := tc.service.UpdateStatus(c.Request.Context(), ownerID, taskID, req.Status)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// DeleteTask removes one of the caller's tasks.
func (tc *TaskController) DeleteTask(c *gin.Context) {
	ownerID, ok := principal(c)
	if !ok {
		return
	}
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	if err := tc.service.Delete(c.Request.Context(), ownerID, taskID); err != nil {
		apperr.Respond(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func principal(c *gin.Context) (int, bool) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		apperr.Respond(c, apperr.ErrInvalidOrExpiredToken)
		return 0, false
	}
	return userID, true
}

// taskIDParam answers a malformed id with NotFound: no task can have it.
// Ids are SERIAL, so anything outside int32 is also unknown.
func taskIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		apperr.Respond(c, apperr.ErrNotFound)
		return 0, false
	}
	return int(id), true
}

// bindingError maps a validation failure on field to fieldErr and anything
// else (malformed JSON, other fields) to ErrBadRequest.
func bindingError(err error, field string, fieldErr *apperr.Error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == field {
				return fieldErr
			}
		}
	}
	return apperr.ErrBadRequest
}
