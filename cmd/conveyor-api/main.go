// Conveyor API — приём запросов на деплой и чтение их состояния.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/conveyor/internal/api"
	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-api")

	// API не компилирует графы: Validate не нужен, только БД и очередь
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	apiCfg := api.Config{
		Store:          repo.NewDeploymentRepo(pool),
		Metrics:        metrics,
		MetricsHandler: promhttp.Handler(),
		Logger:         logger,
	}

	// RabbitMQ необязателен: без него оркестратор подбирает деплои polling'ом
	mqConn, err := mq.NewConnection(mq.ConnectionConfig{
		URL:    cfg.RabbitMQURL,
		Name:   "conveyor-api",
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, deployments will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		apiCfg.Requester = mq.NewPublisher(mqConn, logger)
		logger.Info("RabbitMQ connected")
	}

	handler := api.NewHandler(apiCfg)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("conveyor-api stopped")
}
