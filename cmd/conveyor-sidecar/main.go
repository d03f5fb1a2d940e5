// Conveyor Sidecar — репортёр завершения внешней задачи.
//
// Контейнер запускается рядом с основным контейнером задачи, ждёт
// SIGTERM и отправляет по completion token ровно один отчёт:
// успех, NonZeroExitCode или Unknown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sfn"

	"github.com/shaiso/conveyor/internal/awsx"
	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/sidecar"
	"github.com/shaiso/conveyor/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()

	// Сигнал подписывается до любой работы: иначе SIGTERM убьёт процесс
	notify := make(chan os.Signal, 1)
	signal.Notify(notify, syscall.SIGTERM, syscall.SIGINT)

	cfg, err := config.LoadSidecar(os.Getenv)
	if err != nil {
		logger.Error("cannot report without a token", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		// С токеном отчёт обязателен: watcher отправит Unknown
		logger.Warn("incomplete sidecar config", "error", err)
	}

	ctx := context.Background()

	awsCfg, err := awsx.LoadConfig(ctx, "")
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	reporter := sidecar.NewReporter(awsx.NewCallback(sfn.NewFromConfig(awsCfg)), cfg.TaskToken, logger)

	watcher := sidecar.New(sidecar.Config{
		MainContainerName: cfg.MainContainerName,
		Metadata:          sidecar.NewMetadataClient(cfg.MetadataURI, nil),
		Reporter:          reporter,
		ReportTimeout:     cfg.ReportTimeout,
		Logger:            logger,
	})

	if err := watcher.Run(ctx, notify); err != nil {
		logger.Error("report failed", "error", err)
		os.Exit(1)
	}
	logger.Info("report sent")
}
