package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/awsx"
	"github.com/shaiso/conveyor/internal/domain"
)

// DeploymentStore — хранилище деплоев (repo.DeploymentRepo).
type DeploymentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error)
	ListByStatus(ctx context.Context, status domain.DeploymentStatus, limit int) ([]domain.Deployment, error)
	Update(ctx context.Context, d *domain.Deployment) error
}

// StatusPublisher публикует смену статуса деплоя (mq.Publisher).
type StatusPublisher interface {
	PublishDeploymentStatus(ctx context.Context, d *domain.Deployment) error
}

// ObjectStore читает указатели и артефакты (awsx.Objects).
type ObjectStore interface {
	ResolvePointer(ctx context.Context, ptr domain.ObjectPointer) (domain.DeploymentInfo, error)
	FetchArtifact(ctx context.Context, info domain.DeploymentInfo) ([]byte, error)
}

// Substrate регистрирует и запускает графы (awsx.StateMachines).
type Substrate interface {
	Deploy(ctx context.Context, name string, definition []byte) (string, error)
	Start(ctx context.Context, stateMachineARN, name string, input []byte) (string, error)
	Describe(ctx context.Context, executionARN string) (awsx.ExecutionStatus, error)
}
