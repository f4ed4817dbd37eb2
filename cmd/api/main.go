package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task_tracker/internal/cache"
	"task_tracker/internal/config"
	"task_tracker/internal/db"
	"task_tracker/internal/handler"
	"task_tracker/internal/observability"
	"task_tracker/internal/queue"
	"task_tracker/internal/task"
	"task_tracker/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	observability.SetupLogging(cfg.AppEnv)
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.Init(&cfg.DB)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close database connection")
		}
	}()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx, database)
	cancel()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to apply schema")
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	var taskCache cache.Cache = cache.NoopCache{}
	if cfg.Redis.Enabled() {
		rdb, err := cache.SetupRedis(&cfg.Redis)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close redis connection")
			}
		}()
		taskCache = cache.NewTaskCache(rdb)
		logrus.Info("Task cache enabled")
	}

	var publisher task.EventPublisher = queue.NoopPublisher{}
	if cfg.RabbitMQ.Enabled() {
		conn, err := queue.SetupRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to RabbitMQ")
		}
		defer func() {
			if err := conn.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close RabbitMQ connection")
			}
		}()
		publisher, err = queue.NewPublisher(conn, cfg.RabbitMQ.Queue, metrics)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to set up task event publisher")
		}
		logrus.Infof("Publishing task events to %s", cfg.RabbitMQ.Queue)
	}

	r, err := handler.SetupHandler(handler.Dependencies{
		Config:    cfg,
		UserRepo:  user.NewUserRepository(database),
		TaskRepo:  task.NewTaskRepository(database),
		Cache:     taskCache,
		Publisher: publisher,
		DB:        database,
		Metrics:   metrics,
		Gatherer:  prometheus.DefaultGatherer,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build HTTP handler")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.Infof("Starting server on :%s", cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shut down")
	}
}
