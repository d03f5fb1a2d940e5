package sidecar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Категории ошибок в отчёте о неудаче.
const (
	// ErrorNonZeroExitCode — основной контейнер завершился с кодом != 0
	// или код выхода неизвестен.
	ErrorNonZeroExitCode = "NonZeroExitCode"

	// ErrorUnknown — сбой самого репортёра.
	ErrorUnknown = "Unknown"

	// UnknownCause — cause отчёта с категорией Unknown.
	UnknownCause = "Sidecar failed for unknown reason"
)

// CompletionClient — сторона подложки, принимающая отчёт по токену.
type CompletionClient interface {
	SendTaskSuccess(ctx context.Context, token, output string) error
	SendTaskFailure(ctx context.Context, token, errorCategory, cause string) error
}

// Report — один отчёт о завершении задачи.
type Report struct {
	Success bool

	// Output — JSON результата. Для неудачи уходит как cause.
	Output string

	// Error — категория ошибки для неудачи.
	Error string
}

// Reporter отправляет отчёт по токену не более одного раза.
//
// Первая попытка расходует токен независимо от результата: повторный
// вызов возвращает ErrAlreadyReported и до подложки не доходит.
type Reporter struct {
	client CompletionClient
	token  string
	logger *slog.Logger

	mu       sync.Mutex
	reported bool
}

// NewReporter создаёт Reporter для токена.
func NewReporter(client CompletionClient, token string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		client: client,
		token:  token,
		logger: logger,
	}
}

// Report отправляет отчёт.
func (r *Reporter) Report(ctx context.Context, rep Report) error {
	r.mu.Lock()
	if r.reported {
		r.mu.Unlock()
		r.logger.Error("completion already reported, refusing to report again",
			"success", rep.Success, "error_category", rep.Error)
		return ErrAlreadyReported
	}
	r.reported = true
	r.mu.Unlock()

	var err error
	if rep.Success {
		r.logger.Info("reporting success")
		err = r.client.SendTaskSuccess(ctx, r.token, rep.Output)
	} else {
		r.logger.Info("reporting failure", "error_category", rep.Error)
		err = r.client.SendTaskFailure(ctx, r.token, rep.Error, rep.Output)
	}

	if err != nil {
		if errors.Is(err, ErrTokenRejected) {
			r.logger.Error("completion token rejected", "error", err)
		}
		return fmt.Errorf("report completion: %w", err)
	}
	return nil
}

// Reported возвращает true, если попытка отчёта уже была.
func (r *Reporter) Reported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reported
}
