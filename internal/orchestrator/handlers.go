package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/mq"
	"github.com/shaiso/conveyor/internal/repo"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// handleDeploymentRequested обрабатывает запрос на деплой из очереди.
func (o *Orchestrator) handleDeploymentRequested(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.DeploymentRequestedPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse deployment.requested payload", "error", err)
		return mq.Permanent(err)
	}

	o.logger.Debug("received deployment.requested event", "deployment_id", payload.DeploymentID)

	err = o.Process(ctx, payload.DeploymentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDeploymentAlreadyActive), errors.Is(err, ErrDeploymentNotRunnable):
		o.logger.Debug("deployment not processed", "deployment_id", payload.DeploymentID, "reason", err)
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return mq.Permanent(err)
	default:
		return err
	}
}

// Process проводит деплой id через конвейер.
//
// Ошибка конвейера переводит деплой в FAILED и не возвращается.
// Возвращаются ошибки чтения записи и отмена контекста: в этом случае
// деплой остаётся нефинальным и будет подобран повторно.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) error {
	if !o.tryActivate(id) {
		return ErrDeploymentAlreadyActive
	}
	defer o.deactivate(id)

	d, err := o.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load deployment %s: %w", id, err)
	}
	if d.Status != domain.DeploymentStatusPending && d.Status != domain.DeploymentStatusCompiled {
		return fmt.Errorf("%w: %s is %s", ErrDeploymentNotRunnable, id, d.Status)
	}

	err = o.pipeline.Run(ctx, d)
	if err == nil {
		o.publish(ctx, d)
		return nil
	}
	logger := telemetry.WithDeploymentID(o.logger, id.String())

	// Execution уже запущен: FAILED скрыл бы его от Sync
	if d.Status == domain.DeploymentStatusRunning && d.ExecutionARN != "" {
		logger.Warn("execution started but not saved, retrying save",
			"execution_arn", d.ExecutionARN,
			"error", err,
		)
		if uerr := o.store.Update(context.WithoutCancel(ctx), d); uerr != nil {
			return errors.Join(err, uerr)
		}
		o.publish(ctx, d)
		return nil
	}

	if ctx.Err() != nil {
		return err
	}

	logger.Error("deployment failed", "error", err)

	d.MarkFailed(err)
	if uerr := o.store.Update(ctx, d); uerr != nil {
		return errors.Join(err, uerr)
	}
	o.metrics.DeploymentFinished(string(d.Status))
	o.publish(ctx, d)
	return nil
}

// poll подбирает деплои, не дошедшие до запуска.
func (o *Orchestrator) poll(ctx context.Context) {
	for _, status := range []domain.DeploymentStatus{domain.DeploymentStatusPending, domain.DeploymentStatusCompiled} {
		deployments, err := o.store.ListByStatus(ctx, status, o.batchSize)
		if err != nil {
			o.logger.Error("failed to list deployments", "status", status, "error", err)
			continue
		}
		if len(deployments) > 0 {
			o.logger.Debug("poll found deployments", "status", status, "count", len(deployments))
		}

		for i := range deployments {
			if ctx.Err() != nil {
				return
			}
			id := deployments[i].ID
			if o.IsActive(id) {
				continue
			}
			if err := o.Process(ctx, id); err != nil && !errors.Is(err, ErrDeploymentAlreadyActive) {
				o.logger.Error("failed to process deployment from poll", "deployment_id", id, "error", err)
			}
		}
	}
}

// sync обновляет статусы запущенных деплоев.
func (o *Orchestrator) sync(ctx context.Context) {
	deployments, err := o.store.ListByStatus(ctx, domain.DeploymentStatusRunning, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list running deployments", "error", err)
		return
	}

	for i := range deployments {
		if ctx.Err() != nil {
			return
		}
		if err := o.Sync(ctx, &deployments[i]); err != nil {
			o.logger.Error("failed to sync deployment",
				"deployment_id", deployments[i].ID,
				"execution_arn", deployments[i].ExecutionARN,
				"error", err,
			)
		}
	}
}

// Sync сверяет RUNNING деплой с его execution и фиксирует финальный
// статус, если execution завершился.
func (o *Orchestrator) Sync(ctx context.Context, d *domain.Deployment) error {
	if d.Status != domain.DeploymentStatusRunning || d.ExecutionARN == "" {
		return nil
	}

	exec, err := o.substrate.Describe(ctx, d.ExecutionARN)
	if err != nil {
		return err
	}

	status, finished := domain.ExecutionStatusToDeployment(exec.Status)
	if !finished {
		return nil
	}

	msg := exec.Error
	switch {
	case exec.Error != "" && exec.Cause != "":
		msg = fmt.Sprintf("%s: %s", exec.Error, exec.Cause)
	case exec.Cause != "":
		msg = exec.Cause
	}
	d.MarkFinished(status, msg)

	if err := o.store.Update(ctx, d); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return nil
		}
		return err
	}

	telemetry.WithDeploymentID(o.logger, d.ID.String()).Info("deployment finished",
		"status", d.Status,
		"execution_arn", d.ExecutionARN,
		"duration", d.Duration(),
	)
	o.metrics.DeploymentFinished(string(d.Status))
	o.publish(ctx, d)
	return nil
}

// publish публикует статус; ошибка публикации только логируется.
func (o *Orchestrator) publish(ctx context.Context, d *domain.Deployment) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishDeploymentStatus(ctx, d); err != nil {
		o.logger.Warn("failed to publish deployment status",
			"deployment_id", d.ID,
			"status", d.Status,
			"error", err,
		)
	}
}
