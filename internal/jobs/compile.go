package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/engine"
)

// CompileInput — всё, что нужно для сборки графа одного пуша.
type CompileInput struct {
	Info       domain.DeploymentInfo
	Deployment *config.Deployment

	Registry  *Registry
	Registrar UnitRegistrar
	Settings  Settings
	Logger    *slog.Logger
}

// Compile строит шаги всех окружений и собирает граф деплоя.
//
// Ошибки конфигурации возвращаются до регистрации первой единицы
// выполнения, если это ошибки имён типов.
func Compile(ctx context.Context, in CompileInput) (engine.Definition, error) {
	if in.Deployment == nil {
		return engine.Definition{}, fmt.Errorf("compile %s: %w", in.Info.GitRepo, config.ErrInvalidDeployment)
	}

	b := NewBuilder(BuilderConfig{
		Registry:     in.Registry,
		Registrar:    in.Registrar,
		Settings:     in.Settings,
		Info:         in.Info,
		Applications: in.Deployment.Applications,
		Logger:       in.Logger,
	})

	envs, err := b.BuildEnvironments(ctx, in.Deployment.Flow, in.Deployment.Steps())
	if err != nil {
		return engine.Definition{}, err
	}

	fetch, err := b.VersionFetch()
	if err != nil {
		return engine.Definition{}, err
	}

	return engine.Compile(engine.Input{
		Flow:         in.Deployment.Flow,
		Environments: envs,
		VersionFetch: fetch,
		Comment:      fmt.Sprintf("Deployment of %s/%s", in.Info.GitOwner, in.Info.GitRepo),
	})
}
