package handler

import (
	"context"
	"net/http"
	"time"

	"task_tracker/internal/auth"
	"task_tracker/internal/cache"
	"task_tracker/internal/config"
	"task_tracker/internal/middleware"
	"task_tracker/internal/observability"
	"task_tracker/internal/task"
	"task_tracker/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies are the long-lived resources the HTTP surface is built from.
type Dependencies struct {
	Config    *config.Config
	UserRepo  user.UserRepositoryInterface
	TaskRepo  task.TaskRepositoryInterface
	Cache     cache.Cache
	Publisher task.EventPublisher
	DB        Pinger
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
}

// SetupHandler initializes all dependencies and routes
func SetupHandler(deps Dependencies) (*gin.Engine, error) {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Prometheus(deps.Metrics),
	)

	// Initialize services
	tokens := auth.NewTokenService(deps.Config.JWT)
	userService, err := user.NewUserService(deps.UserRepo, auth.NewBcryptHasher(), tokens, deps.Cache, deps.Metrics)
	if err != nil {
		return nil, err
	}
	taskService := task.NewTaskService(deps.TaskRepo, deps.Cache, deps.Publisher, deps.Metrics)

	// Initialize controllers
	userController := user.NewUserController(userService)
	taskController := task.NewTaskController(taskService)

	gate := middleware.NewAccessGate(deps.Config.APIKey, tokens, userService, deps.Metrics)

	setupRoutes(r, userController, taskController, gate)
	setupOps(r, deps)

	return r, nil
}

// setupRoutes configures all application routes
func setupRoutes(r *gin.Engine, userCtrl *user.UserController, taskCtrl *task.TaskController, gate *middleware.AccessGate) {
	// Public routes - Authentication
	r.POST("/signup", userCtrl.Register)
	r.POST("/token", userCtrl.Login)

	// Protected routes
	tasks := r.Group("/tasks", gate.Handler())
	{
		tasks.POST("", taskCtrl.CreateTask)
		tasks.GET("", taskCtrl.ListTasks)
		tasks.GET("/:id", taskCtrl.GetTask)
		tasks.PUT("/:id", taskCtrl.UpdateTaskStatus)
		tasks.DELETE("/:id", taskCtrl.DeleteTask)
	}

	users := r.Group("/users", gate.Handler())
	{
		users.GET("/me", userCtrl.Me)
		users.DELETE("/me", userCtrl.DeleteMe)
	}
}

func setupOps(r *gin.Engine, deps Dependencies) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()

		if err := deps.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
