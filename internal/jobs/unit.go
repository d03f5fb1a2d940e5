package jobs

import (
	"strings"

	"github.com/shaiso/conveyor/internal/domain"
)

// Константы единицы выполнения.
const (
	// ReporterContainerName — контейнер с watcher.
	ReporterContainerName = "completion-reporter"

	// TokenEnv — переменная репортёра с completion token.
	TokenEnv = "TASK_TOKEN"

	// TokenPath — откуда подложка подставляет токен.
	TokenPath = "$$.Task.Token"

	// MainContainerEnv — переменная репортёра с именем основного контейнера.
	MainContainerEnv = "MAIN_CONTAINER_NAME"

	LaunchTypeFargate = "FARGATE"
	NetworkModeAwsvpc = "awsvpc"
	DefaultCPU        = "256"
	DefaultMemory     = "512"
)

// Family — семейство единицы выполнения: имя шага в нижнем регистре,
// пробелы заменены на "_".
func Family(jobName string) string {
	return strings.ReplaceAll(strings.ToLower(jobName), " ", "_")
}

// BuildExecutionUnit описывает единицу выполнения внешней задачи.
//
// Основной контейнер выполняет команду через /bin/sh -c с переменными
// шага как есть. Репортёр не essential: он должен пережить завершение
// основного контейнера, чтобы отчитаться.
func BuildExecutionUnit(s Settings, spec ExternalTaskSpec) domain.ExecutionUnit {
	family := Family(spec.Name)
	logs := domain.LogSpec{
		Group:        s.LogGroup,
		Region:       s.Region,
		StreamPrefix: spec.LogStreamPrefix,
	}

	env := make(map[string]string, len(spec.Environment))
	for k, v := range spec.Environment {
		env[k] = v
	}

	return domain.ExecutionUnit{
		Family:           family,
		TaskRoleARN:      s.TaskRoleARN,
		ExecutionRoleARN: s.ExecutionRoleARN,
		NetworkMode:      NetworkModeAwsvpc,
		Compatibility:    LaunchTypeFargate,
		CPU:              DefaultCPU,
		Memory:           DefaultMemory,
		Containers: []domain.ContainerSpec{
			{
				Name:        family,
				Image:       spec.Image,
				EntryPoint:  []string{"/bin/sh", "-c"},
				Command:     []string{spec.Command},
				Environment: env,
				Essential:   true,
				Logs:        logs,
			},
			{
				Name:        ReporterContainerName,
				Image:       s.SidecarImage,
				Environment: map[string]string{MainContainerEnv: family},
				Essential:   false,
				Logs:        logs,
			},
		},
	}
}
