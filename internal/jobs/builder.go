package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/domain"
)

// BuilderConfig — конфигурация Builder.
type BuilderConfig struct {
	// Registry — реестр типов. По умолчанию DefaultRegistry().
	Registry *Registry

	// Registrar — регистрация единиц выполнения.
	Registrar UnitRegistrar

	Settings     Settings
	Info         domain.DeploymentInfo
	Applications config.Applications

	Logger *slog.Logger
}

// Builder строит шаги всех окружений одного деплоя.
type Builder struct {
	registry  *Registry
	registrar UnitRegistrar
	settings  Settings
	info      domain.DeploymentInfo
	apps      config.Applications
	logger    *slog.Logger
}

// NewBuilder создаёт Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		registry:  registry,
		registrar: cfg.Registrar,
		settings:  cfg.Settings,
		info:      cfg.Info,
		apps:      cfg.Applications,
		logger:    logger,
	}
}

// BuildEnvironments строит список шагов для каждого окружения flow.
//
// Каждое окружение получает свой набор Job в порядке steps. Все имена
// типов проверяются до первого вызова конструктора.
func (b *Builder) BuildEnvironments(ctx context.Context, flow domain.FlowSpec, steps []config.StepRef) (map[string][]domain.Job, error) {
	if err := b.registry.CheckComplete(steps); err != nil {
		return nil, err
	}

	envs := flow.Environments()
	result := make(map[string][]domain.Job, len(envs))

	for _, env := range envs {
		jobs, err := b.buildEnvironment(ctx, env, steps)
		if err != nil {
			return nil, err
		}
		result[env] = jobs

		b.logger.Debug("environment built", "environment", env, "jobs", len(jobs))
	}

	return result, nil
}

func (b *Builder) buildEnvironment(ctx context.Context, env string, steps []config.StepRef) ([]domain.Job, error) {
	tctx := NewContext(b.info, env)
	jobs := make([]domain.Job, 0, len(steps))
	seen := make(map[string]int, len(steps))

	for i, step := range steps {
		field := fmt.Sprintf("deployment.steps[%d]", i)

		ctor, err := b.registry.Get(step.Name)
		if err != nil {
			return nil, domain.NewConfigurationError(env, field, err.Error(), err)
		}

		params, err := RenderParams(step.Params, tctx)
		if err != nil {
			return nil, domain.NewConfigurationError(env, field, err.Error(), err)
		}

		job, err := ctor(ctx, &Request{
			Environment:  env,
			Info:         b.info,
			Applications: b.apps,
			Settings:     b.settings,
			Registrar:    b.registrar,
			Params:       params,
		})
		if err != nil {
			return nil, annotate(err, env, field)
		}

		if prev, dup := seen[job.Name()]; dup {
			return nil, domain.NewConfigurationError(env, field,
				fmt.Sprintf("job name %q already used by deployment.steps[%d]", job.Name(), prev),
				domain.ErrInvalidParameter)
		}
		seen[job.Name()] = i

		jobs = append(jobs, job)
	}

	return jobs, nil
}

// VersionFetch строит ведущий шаг получения версий.
func (b *Builder) VersionFetch() (domain.Job, error) {
	return VersionFetch(b.settings, b.info, b.apps)
}

// annotate добавляет окружение к ошибке конфигурации конструктора.
func annotate(err error, env, field string) error {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		if cfgErr.Environment == "" {
			cfgErr.Environment = env
		}
		return err
	}
	return fmt.Errorf("environment %s, %s: %w", env, field, err)
}
