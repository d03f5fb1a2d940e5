package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// DeploymentStore — хранилище деплоев (repo.DeploymentRepo).
type DeploymentStore interface {
	Create(ctx context.Context, d *domain.Deployment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error)
	List(ctx context.Context, filter repo.DeploymentFilter) ([]domain.Deployment, error)
}

// Requester уведомляет оркестратор о новом деплое (mq.Publisher).
type Requester interface {
	PublishDeploymentRequested(ctx context.Context, id uuid.UUID) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store     DeploymentStore
	requester Requester
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	// metricsHandler отдаёт /metrics (nil — маршрут не регистрируется).
	metricsHandler http.Handler
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store DeploymentStore

	// Requester может быть nil: оркестратор подберёт деплой polling'ом.
	Requester Requester

	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:          cfg.Store,
		requester:      cfg.Requester,
		metrics:        cfg.Metrics,
		metricsHandler: cfg.MetricsHandler,
		logger:         logger,
	}
}
