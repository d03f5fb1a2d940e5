package jobs

import (
	"context"
	"fmt"

	"github.com/shaiso/conveyor/internal/domain"
)

// FunctionCallSpec — параметры шага-вызова функции.
type FunctionCallSpec struct {
	Name     string
	Function string
	Payload  map[string]any
}

// NewFunctionCall создаёт шаг вида function-call.
// Побочных эффектов нет.
func NewFunctionCall(spec FunctionCallSpec) (domain.Job, error) {
	if spec.Name == "" {
		return domain.Job{}, domain.MissingParameter("", "function call", "name")
	}
	if spec.Function == "" {
		return domain.Job{}, domain.MissingParameter("", spec.Name, "function")
	}

	payload := spec.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	return domain.NewJob(spec.Name, domain.JobKindFunctionCall, map[string]any{
		"FunctionName": spec.Function,
		"Payload":      payload,
	})
}

// ExternalTaskSpec — параметры шага-контейнерной задачи.
type ExternalTaskSpec struct {
	Name            string
	Image           string
	Command         string
	LogStreamPrefix string
	Environment     map[string]string
}

// NewExternalTask создаёт шаг вида external-task.
//
// Регистрирует в подложке единицу выполнения из двух контейнеров
// (основной + репортёр), поэтому имеет сетевой побочный эффект.
// Повторные вызовы с тем же содержимым дедуплицируются, если
// registrar — CachingRegistrar.
func NewExternalTask(ctx context.Context, registrar UnitRegistrar, settings Settings, spec ExternalTaskSpec) (domain.Job, error) {
	if spec.Name == "" {
		return domain.Job{}, domain.MissingParameter("", "external task", "name")
	}
	for _, p := range []struct{ name, value string }{
		{"image", spec.Image},
		{"command", spec.Command},
		{"log_stream_prefix", spec.LogStreamPrefix},
	} {
		if p.value == "" {
			return domain.Job{}, domain.MissingParameter("", spec.Name, p.name)
		}
	}
	if err := checkTaskSettings(settings); err != nil {
		return domain.Job{}, err
	}
	if registrar == nil {
		return domain.Job{}, fmt.Errorf("job %q: no execution unit registrar configured", spec.Name)
	}

	unit := BuildExecutionUnit(settings, spec)
	arn, err := registrar.Register(ctx, unit)
	if err != nil {
		return domain.Job{}, fmt.Errorf("register execution unit %s: %w", unit.Family, err)
	}

	return domain.NewJob(spec.Name, domain.JobKindExternalTask, TaskParameters(settings, arn))
}

// checkTaskSettings проверяет настройки, без которых задачу не запустить.
func checkTaskSettings(s Settings) error {
	switch {
	case s.Cluster == "":
		return domain.NewConfigurationError("", "ECS_CLUSTER", "cluster is not configured", domain.ErrMissingParameter)
	case len(s.Subnets) == 0:
		return domain.NewConfigurationError("", "SUBNETS", "no subnets configured", domain.ErrMissingParameter)
	case s.SidecarImage == "":
		return domain.NewConfigurationError("", "SIDECAR_IMAGE", "reporter image is not configured", domain.ErrMissingParameter)
	}
	return nil
}

// TaskParameters — параметры Task узла для запуска задачи с ожиданием
// completion token. Токен попадает только в контейнер-репортёр.
func TaskParameters(s Settings, taskDefinitionARN string) map[string]any {
	subnets := make([]any, len(s.Subnets))
	for i, subnet := range s.Subnets {
		subnets[i] = subnet
	}

	return map[string]any{
		"LaunchType":     LaunchTypeFargate,
		"Cluster":        s.Cluster,
		"TaskDefinition": taskDefinitionARN,
		"NetworkConfiguration": map[string]any{
			"AwsvpcConfiguration": map[string]any{
				"Subnets":        subnets,
				"AssignPublicIp": "ENABLED",
			},
		},
		"Overrides": map[string]any{
			"ContainerOverrides": []any{
				map[string]any{
					"Name": ReporterContainerName,
					"Environment": []any{
						map[string]any{
							"Name":    TokenEnv,
							"Value.$": TokenPath,
						},
					},
				},
			},
		},
	}
}
