package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func SetupLogger() *slog.Logger {
	return setupLogger(os.Stdout)
}

// SetupStderrLogger — то же, что SetupLogger, но пишет в stderr.
// Используется CLI, у которого stdout занят результатом команды.
func SetupStderrLogger() *slog.Logger {
	return setupLogger(os.Stderr)
}

func setupLogger(w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := LogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithDeploymentID возвращает логгер с добавленным deployment_id.
func WithDeploymentID(logger *slog.Logger, id string) *slog.Logger {
	return logger.With("deployment_id", id)
}

// WithRepo возвращает логгер с owner/repo, веткой и коммитом пуша.
func WithRepo(logger *slog.Logger, owner, repo, branch, sha string) *slog.Logger {
	return logger.With("repo", owner+"/"+repo, "branch", branch, "sha", sha)
}

// WithEnvironment возвращает логгер с добавленным environment.
func WithEnvironment(logger *slog.Logger, env string) *slog.Logger {
	return logger.With("environment", env)
}
