// Conveyor Orchestrator — проводит деплои через конвейер.
//
// Orchestrator:
//   - Получает запросы на деплой из RabbitMQ
//   - Читает конфигурацию деплоя из артефакта и компилирует граф
//   - Регистрирует единицы выполнения и граф, запускает execution
//   - Синхронизирует статусы запущенных деплоев
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/conveyor/internal/awsx"
	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/jobs"
	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/orchestrator"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-orchestrator")

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
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
	logger.Info("database connected")

	// AWS
	awsCfg, err := awsx.LoadConfig(ctx, cfg.Region)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	account, err := awsx.AccountID(ctx, sts.NewFromConfig(awsCfg))
	if err != nil {
		logger.Error("failed to resolve AWS account", "error", err)
		os.Exit(1)
	}
	logger.Info("AWS configured", "region", cfg.Region, "account", account)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	taskDefs := awsx.NewTaskDefinitions(ecs.NewFromConfig(awsCfg), logger)
	taskDefs.OnRegister = metrics.UnitRegistered

	stateMachines := awsx.NewStateMachines(awsx.StateMachinesConfig{
		Client:  sfn.NewFromConfig(awsCfg),
		Region:  cfg.Region,
		Account: account,
		RoleARN: cfg.StateMachineRoleARN,
		Logger:  logger,
	})

	deployments := repo.NewDeploymentRepo(pool)

	pipeline := orchestrator.NewPipeline(orchestrator.PipelineConfig{
		Store:            deployments,
		Objects:          awsx.NewObjects(s3.NewFromConfig(awsCfg)),
		Substrate:        stateMachines,
		Registry:         jobs.DefaultRegistry(),
		Registrar:        jobs.NewCachingRegistrar(taskDefs, logger),
		Settings:         jobs.SettingsFromConfig(cfg),
		ConsistencyDelay: cfg.ConsistencyDelay,
		Metrics:          metrics,
		Logger:           logger,
	})

	orchCfg := orchestrator.Config{
		Store:        deployments,
		Substrate:    stateMachines,
		Pipeline:     pipeline,
		SyncInterval: cfg.SyncInterval,
		Metrics:      metrics,
		Logger:       logger,
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(mq.ConnectionConfig{
		URL:    cfg.RabbitMQURL,
		Name:   "conveyor-orchestrator",
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		orchCfg.Conn = mqConn
		orchCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	orch := orchestrator.New(orchCfg)

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.OrchPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("conveyor-orchestrator stopped")
}
