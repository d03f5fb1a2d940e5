package sidecar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// DefaultReportTimeout — бюджет на метаданные и отчёт после сигнала.
const DefaultReportTimeout = 20 * time.Second

// maxReportReserve — верхняя граница времени, оставляемого на сам отчёт.
const maxReportReserve = 5 * time.Second

// reportReserve — часть ReportTimeout, которую inspect не может потратить.
func reportReserve(timeout time.Duration) time.Duration {
	return min(timeout/4, maxReportReserve)
}

// Config — конфигурация Watcher.
type Config struct {
	// MainContainerName — контейнер, код выхода которого отчитывается.
	MainContainerName string

	// Metadata — источник метаданных задачи.
	Metadata MetadataSource

	// Reporter — отправка отчёта по токену.
	Reporter *Reporter

	// ReportTimeout — ограничение на всю работу после сигнала.
	ReportTimeout time.Duration

	Logger *slog.Logger
}

// Watcher ждёт завершения основного контейнера и отчитывается о нём.
type Watcher struct {
	container string
	metadata  MetadataSource
	reporter  *Reporter
	timeout   time.Duration
	logger    *slog.Logger
}

// New создаёт Watcher.
func New(cfg Config) *Watcher {
	timeout := cfg.ReportTimeout
	if timeout <= 0 {
		timeout = DefaultReportTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		container: cfg.MainContainerName,
		metadata:  cfg.Metadata,
		reporter:  cfg.Reporter,
		timeout:   timeout,
		logger:    logger,
	}
}

// Run блокируется до сигнала о завершении основного контейнера
// (или отмены ctx) и затем отчитывается.
//
// Отмена ctx не отменяет сам отчёт: он выполняется в отдельном
// контексте с ReportTimeout.
func (w *Watcher) Run(ctx context.Context, notify <-chan os.Signal) error {
	w.logger.Info("waiting for termination signal", "container", w.container)

	select {
	case sig := <-notify:
		w.logger.Info("termination signal received", "signal", sig.String())
	case <-ctx.Done():
		w.logger.Warn("context cancelled before termination signal", "error", ctx.Err())
	}

	return w.Finish(context.WithoutCancel(ctx))
}

// Finish проверяет основной контейнер и отправляет ровно один отчёт.
//
// Ошибка или паника до отчёта превращается в отчёт Unknown.
func (w *Watcher) Finish(ctx context.Context) (err error) {
	deadline := time.Now().Add(w.timeout)
	reserve := reportReserve(w.timeout)

	// Отчёт идёт в собственном контексте: метаданные могут исчерпать
	// свой бюджет, но не бюджет отчёта.
	reportCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.WithoutCancel(ctx), max(time.Until(deadline), reserve))
	}

	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("watcher panicked", "panic", p)
			rctx, cancel := reportCtx()
			defer cancel()
			err = w.reportUnknown(rctx, fmt.Errorf("panic: %v", p))
		}
	}()

	inspectCtx, cancelInspect := context.WithDeadline(ctx, deadline.Add(-reserve))
	defer cancelInspect()
	rep, err := w.inspect(inspectCtx)

	rctx, cancel := reportCtx()
	defer cancel()

	if err != nil {
		w.logger.Error("failed to inspect main container", "error", err)
		return w.reportUnknown(rctx, err)
	}

	return w.reporter.Report(rctx, rep)
}

// inspect строит отчёт по метаданным основного контейнера.
func (w *Watcher) inspect(ctx context.Context) (Report, error) {
	if w.metadata == nil {
		return Report{}, errors.New("no metadata source configured")
	}

	task, err := w.metadata.Task(ctx)
	if err != nil {
		return Report{}, err
	}

	c, err := task.Container(w.container)
	if err != nil {
		return Report{}, err
	}

	link, err := ContainerLogLink(c)
	if err != nil {
		return Report{}, err
	}

	output, err := Output{LogStream: link}.JSON()
	if err != nil {
		return Report{}, err
	}

	if c.ExitCode == nil {
		w.logger.Warn("main container has no exit code", "container", c.Name, "status", c.KnownStatus)
		return Report{Output: output, Error: ErrorNonZeroExitCode}, nil
	}

	w.logger.Info("main container exited", "container", c.Name, "exit_code", *c.ExitCode)
	if *c.ExitCode != 0 {
		return Report{Output: output, Error: ErrorNonZeroExitCode}, nil
	}
	return Report{Success: true, Output: output}, nil
}

func (w *Watcher) reportUnknown(ctx context.Context, cause error) error {
	reportErr := w.reporter.Report(ctx, Report{Output: UnknownCause, Error: ErrorUnknown})
	return errors.Join(fmt.Errorf("watcher failed: %w", cause), reportErr)
}
