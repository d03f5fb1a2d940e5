package jobs

import (
	"github.com/shaiso/conveyor/internal/config"
)

// Settings — часть конфигурации сервиса, нужная конструкторам шагов.
type Settings struct {
	Region string

	VersionFunctionARN string
	VersionRoleARN     string
	VersionSSMPrefix   string
	ArtifactBucket     string

	// DeployAccounts — окружение в нижнем регистре → ID аккаунта.
	DeployAccounts map[string]string

	Cluster          string
	Subnets          []string
	TaskRoleARN      string
	ExecutionRoleARN string
	LogGroup         string
	SidecarImage     string
}

// SettingsFromConfig извлекает настройки шагов из конфигурации сервиса.
func SettingsFromConfig(cfg *config.Config) Settings {
	accounts := make(map[string]string, len(cfg.DeployAccounts))
	for env, id := range cfg.DeployAccounts {
		accounts[env] = id
	}

	return Settings{
		Region:             cfg.Region,
		VersionFunctionARN: cfg.VersionFunctionARN,
		VersionRoleARN:     cfg.VersionRoleARN,
		VersionSSMPrefix:   cfg.VersionSSMPrefix,
		ArtifactBucket:     cfg.ArtifactBucket,
		DeployAccounts:     accounts,
		Cluster:            cfg.Cluster,
		Subnets:            append([]string(nil), cfg.Subnets...),
		TaskRoleARN:        cfg.TaskRoleARN,
		ExecutionRoleARN:   cfg.ExecutionRoleARN,
		LogGroup:           cfg.LogGroup,
		SidecarImage:       cfg.SidecarImage,
	}
}
