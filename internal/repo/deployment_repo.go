package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/conveyor/internal/domain"
)

const deploymentColumns = `
	id, status, source, info, state_machine_arn, execution_name, execution_arn,
	definition, error, created_at, started_at, finished_at`

// DeploymentRepo — репозиторий деплоев.
type DeploymentRepo struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepo создаёт новый DeploymentRepo.
func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

// Create сохраняет новый деплой.
func (r *DeploymentRepo) Create(ctx context.Context, d *domain.Deployment) error {
	sourceJSON, infoJSON, err := marshalTrigger(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployments (id, repo, owner, branch, sha, git_user, status, source, info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.Info.GitRepo,
		d.Info.GitOwner,
		d.Info.GitBranch,
		d.Info.GitSHA1,
		d.Info.GitUser,
		d.Status,
		sourceJSON,
		infoJSON,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// GetByID возвращает деплой по ID.
func (r *DeploymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	query := `SELECT` + deploymentColumns + ` FROM deployments WHERE id = $1`
	return scanDeployment(r.pool.QueryRow(ctx, query, id))
}

// List возвращает деплои с фильтрацией, новые первыми.
func (r *DeploymentRepo) List(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT` + deploymentColumns + `
		FROM deployments
		WHERE ($1::text IS NULL OR repo = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Repo),
		nullString(string(filter.Status)),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return collectDeployments(rows)
}

// ListByStatus возвращает деплои в статусе status, старые первыми.
func (r *DeploymentRepo) ListByStatus(ctx context.Context, status domain.DeploymentStatus, limit int) ([]domain.Deployment, error) {
	query := `SELECT` + deploymentColumns + `
		FROM deployments
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s deployments: %w", status, err)
	}
	return collectDeployments(rows)
}

// Update сохраняет изменения деплоя.
//
// Финальный деплой не меняется: для него возвращается ErrInvalidState.
func (r *DeploymentRepo) Update(ctx context.Context, d *domain.Deployment) error {
	sourceJSON, infoJSON, err := marshalTrigger(d)
	if err != nil {
		return err
	}

	var definition []byte
	if len(d.Definition) > 0 {
		definition = d.Definition
	}

	query := `
		UPDATE deployments
		SET repo = $2, owner = $3, branch = $4, sha = $5, git_user = $6,
		    status = $7, source = $8, info = $9,
		    state_machine_arn = $10, execution_name = $11, execution_arn = $12,
		    definition = $13, error = $14, started_at = $15, finished_at = $16
		WHERE id = $1
		  AND status NOT IN ('SUCCEEDED', 'FAILED', 'ABORTED')
	`
	result, err := r.pool.Exec(ctx, query,
		d.ID,
		d.Info.GitRepo,
		d.Info.GitOwner,
		d.Info.GitBranch,
		d.Info.GitSHA1,
		d.Info.GitUser,
		d.Status,
		sourceJSON,
		infoJSON,
		nullString(d.StateMachineARN),
		nullString(d.ExecutionName),
		nullString(d.ExecutionARN),
		definition,
		nullString(d.Error),
		d.StartedAt,
		d.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Различаем отсутствие записи и финальный статус
	if _, err := r.GetByID(ctx, d.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: deployment %s is already finished", ErrInvalidState, d.ID)
}

// --- Helpers ---

// DeploymentFilter — параметры фильтрации деплоев.
type DeploymentFilter struct {
	Repo   string
	Status domain.DeploymentStatus
	Limit  int
	Offset int
}

func marshalTrigger(d *domain.Deployment) (source, info []byte, err error) {
	if d.Source != nil {
		source, err = json.Marshal(d.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal source: %w", err)
		}
	}
	info, err = json.Marshal(d.Info)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal info: %w", err)
	}
	return source, info, nil
}

func collectDeployments(rows pgx.Rows) ([]domain.Deployment, error) {
	defer rows.Close()

	var deployments []domain.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// scanDeployment сканирует одну строку в Deployment.
func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	var sourceJSON, infoJSON, definition []byte
	var stateMachineARN, executionName, executionARN, deploymentError *string

	err := row.Scan(
		&d.ID,
		&d.Status,
		&sourceJSON,
		&infoJSON,
		&stateMachineARN,
		&executionName,
		&executionARN,
		&definition,
		&deploymentError,
		&d.CreatedAt,
		&d.StartedAt,
		&d.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan deployment: %w", err)
	}

	if sourceJSON != nil {
		var src domain.ObjectPointer
		if err := json.Unmarshal(sourceJSON, &src); err != nil {
			return nil, fmt.Errorf("unmarshal source: %w", err)
		}
		d.Source = &src
	}
	if err := json.Unmarshal(infoJSON, &d.Info); err != nil {
		return nil, fmt.Errorf("unmarshal info: %w", err)
	}
	if definition != nil {
		d.Definition = definition
	}

	d.StateMachineARN = deref(stateMachineARN)
	d.ExecutionName = deref(executionName)
	d.ExecutionARN = deref(executionARN)
	d.Error = deref(deploymentError)

	return &d, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
