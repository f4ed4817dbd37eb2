package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"task_tracker/internal/config"
	"task_tracker/internal/observability"
	"task_tracker/internal/queue"
	"task_tracker/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const metricsAddr = ":8088"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	observability.SetupLogging(cfg.AppEnv)

	if !cfg.RabbitMQ.Enabled() {
		logrus.Fatal("RABBITMQ_URL is required for the worker")
	}

	conn, err := queue.SetupRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close RabbitMQ connection")
		}
	}()

	ch, err := queue.CreateChannel(conn)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create RabbitMQ channel")
	}
	if _, err := queue.DeclareQueue(ch, cfg.RabbitMQ.Queue); err != nil {
		logrus.WithError(err).Fatal("Failed to declare RabbitMQ queue")
	}
	if err := ch.Close(); err != nil {
		logrus.WithError(err).Fatal("Failed to close RabbitMQ channel")
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logrus.Infof("Worker metrics server started on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start metrics server")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 1; i <= cfg.RabbitMQ.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := worker.New(id, cfg.RabbitMQ.Queue, metrics).Start(ctx, conn); err != nil {
				logrus.WithError(err).Errorf("Worker %d exited", id)
				stop()
			}
		}(i)
	}

	wg.Wait()
	logrus.Info("Workers stopped")
}
