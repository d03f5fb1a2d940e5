package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/domain"
	"github.com/shaiso/conveyor/internal/jobs"
	"github.com/shaiso/conveyor/internal/telemetry"
)

// CompileOptions — параметры офлайн-компиляции.
type CompileOptions struct {
	// ConfigPath — файл конфигурации деплоя (.deployment/config.yaml).
	ConfigPath string

	// ArtifactPath — zip артефакт, из которого читается конфигурация.
	ArtifactPath string

	// SettingsPath — YAML файл конфигурации сервиса; перекрывает CONVEYOR_CONFIG.
	SettingsPath string

	Info domain.DeploymentInfo
}

// NewCompileCmd создаёт команду офлайн-компиляции графа деплоя.
//
// Ничего не регистрирует: ARN единиц выполнения — детерминированные
// заглушки. Параметры сервиса берутся из окружения, как у оркестратора.
func NewCompileCmd(outputFn func() *Output) *cobra.Command {
	var opts CompileOptions

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a deployment configuration into a state machine definition",
		Example: `  conveyor compile --config .deployment/config.yaml --owner nsbno --repo trafficinfo --branch main --sha 0123abc
  conveyor compile --artifact build.zip --owner nsbno --repo trafficinfo --branch main --sha 0123abc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			definition, err := Compile(cmd.Context(), opts, os.Getenv)
			if err != nil {
				return err
			}
			outputFn().RawJSON(definition)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Deployment configuration file")
	cmd.Flags().StringVar(&opts.ArtifactPath, "artifact", "", "Artifact zip containing "+config.ArtifactConfigPath)
	cmd.Flags().StringVar(&opts.SettingsPath, "settings", "", "Service configuration YAML (default: $"+config.ConfigFileEnv+")")
	cmd.MarkFlagsMutuallyExclusive("config", "artifact")
	cmd.MarkFlagsOneRequired("config", "artifact")

	cmd.Flags().StringVar(&opts.Info.GitOwner, "owner", "", "Repository owner")
	cmd.Flags().StringVar(&opts.Info.GitRepo, "repo", "", "Repository name")
	cmd.Flags().StringVar(&opts.Info.GitBranch, "branch", "", "Branch name")
	cmd.Flags().StringVar(&opts.Info.GitSHA1, "sha", "", "Commit SHA")
	cmd.Flags().StringVar(&opts.Info.GitUser, "user", "", "User who pushed")
	cmd.Flags().StringVar(&opts.Info.ArtifactBucket, "artifact-bucket", "", "Artifact bucket (default: ARTIFACT_BUCKET)")

	return cmd
}

// Compile собирает граф деплоя без обращения к подложке.
func Compile(ctx context.Context, opts CompileOptions, getenv func(string) string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(func(key string) string {
		if key == config.ConfigFileEnv && opts.SettingsPath != "" {
			return opts.SettingsPath
		}
		return getenv(key)
	})
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	info := opts.Info
	if info.ArtifactBucket == "" {
		info.ArtifactBucket = cfg.ArtifactBucket
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	deployment, err := loadDeployment(opts)
	if err != nil {
		return nil, err
	}

	def, err := jobs.Compile(ctx, jobs.CompileInput{
		Info:       info,
		Deployment: deployment,
		Registry:   jobs.DefaultRegistry(),
		Registrar:  jobs.DryRunRegistrar{Region: cfg.Region},
		Settings:   jobs.SettingsFromConfig(cfg),
		Logger:     telemetry.FromContext(ctx),
	})
	if err != nil {
		return nil, err
	}
	return def.JSON()
}

func loadDeployment(opts CompileOptions) (*config.Deployment, error) {
	switch {
	case opts.ConfigPath != "":
		return config.LoadDeploymentFile(opts.ConfigPath)
	case opts.ArtifactPath != "":
		artifact, err := os.ReadFile(opts.ArtifactPath)
		if err != nil {
			return nil, fmt.Errorf("read artifact: %w", err)
		}
		return config.LoadArtifact(artifact)
	default:
		return nil, errors.New("either --config or --artifact is required")
	}
}
