package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultReportTimeout — бюджет watcher на отчёт. Платформа убивает
// контейнер примерно через 30 секунд после SIGTERM.
const DefaultReportTimeout = 20 * time.Second

// ErrMissingToken — контейнер-репортёр запущен без completion token.
var ErrMissingToken = errors.New("TASK_TOKEN is not set")

// SidecarConfig — конфигурация контейнера-репортёра.
type SidecarConfig struct {
	// TaskToken — completion token, выданный подложкой при входе в Task.
	TaskToken string

	// MainContainerName — контейнер, за которым следит watcher.
	MainContainerName string

	// MetadataURI — ECS_CONTAINER_METADATA_URI_V4.
	MetadataURI string

	// ReportTimeout — сколько времени есть на запрос метаданных и отчёт.
	ReportTimeout time.Duration
}

// LoadSidecar читает конфигурацию репортёра.
//
// Ошибка возвращается только без токена: с токеном watcher обязан
// отчитаться, даже если остальные переменные не заданы.
func LoadSidecar(getenv func(string) string) (*SidecarConfig, error) {
	cfg := &SidecarConfig{
		TaskToken:         getenv("TASK_TOKEN"),
		MainContainerName: getenv("MAIN_CONTAINER_NAME"),
		MetadataURI:       getenv("ECS_CONTAINER_METADATA_URI_V4"),
		ReportTimeout:     DefaultReportTimeout,
	}

	if v := getenv("REPORT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ReportTimeout = d
		}
	}

	if cfg.TaskToken == "" {
		return cfg, ErrMissingToken
	}
	return cfg, nil
}

// Validate проверяет, что watcher может получить метаданные.
func (c *SidecarConfig) Validate() error {
	var errs ValidationErrors
	if c.MainContainerName == "" {
		errs = append(errs, ValidationError{Field: "MAIN_CONTAINER_NAME", Message: "is required"})
	}
	if c.MetadataURI == "" {
		errs = append(errs, ValidationError{Field: "ECS_CONTAINER_METADATA_URI_V4", Message: "is required"})
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("sidecar: %w", errs)
}
