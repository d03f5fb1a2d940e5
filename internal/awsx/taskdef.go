package awsx

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/shaiso/conveyor/internal/domain"
)

// ECSAPI — используемая часть клиента ECS.
type ECSAPI interface {
	RegisterTaskDefinition(ctx context.Context, in *ecs.RegisterTaskDefinitionInput, optFns ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error)
}

// TaskDefinitions регистрирует единицы выполнения как task definition.
// Реализует jobs.UnitRegistrar.
type TaskDefinitions struct {
	client ECSAPI
	logger *slog.Logger

	// OnRegister вызывается после каждой успешной регистрации.
	OnRegister func()
}

// NewTaskDefinitions создаёт адаптер.
func NewTaskDefinitions(client ECSAPI, logger *slog.Logger) *TaskDefinitions {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskDefinitions{client: client, logger: logger}
}

// Register регистрирует новую ревизию и возвращает её ARN.
func (t *TaskDefinitions) Register(ctx context.Context, unit domain.ExecutionUnit) (string, error) {
	out, err := t.client.RegisterTaskDefinition(ctx, TaskDefinitionInput(unit))
	if err != nil {
		return "", fmt.Errorf("register task definition %s: %w", unit.Family, err)
	}
	if out.TaskDefinition == nil {
		return "", fmt.Errorf("register task definition %s: empty response", unit.Family)
	}

	arn := aws.ToString(out.TaskDefinition.TaskDefinitionArn)
	t.logger.Debug("task definition registered", "family", unit.Family, "arn", arn)
	if t.OnRegister != nil {
		t.OnRegister()
	}
	return arn, nil
}

// TaskDefinitionInput переводит единицу выполнения в запрос ECS.
func TaskDefinitionInput(unit domain.ExecutionUnit) *ecs.RegisterTaskDefinitionInput {
	containers := make([]types.ContainerDefinition, 0, len(unit.Containers))
	for _, c := range unit.Containers {
		containers = append(containers, containerDefinition(c))
	}

	return &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(unit.Family),
		TaskRoleArn:             optionalString(unit.TaskRoleARN),
		ExecutionRoleArn:        optionalString(unit.ExecutionRoleARN),
		NetworkMode:             types.NetworkMode(unit.NetworkMode),
		RequiresCompatibilities: []types.Compatibility{types.Compatibility(unit.Compatibility)},
		Cpu:                     aws.String(unit.CPU),
		Memory:                  aws.String(unit.Memory),
		ContainerDefinitions:    containers,
	}
}

func containerDefinition(c domain.ContainerSpec) types.ContainerDefinition {
	def := types.ContainerDefinition{
		Name:        aws.String(c.Name),
		Image:       aws.String(c.Image),
		EntryPoint:  c.EntryPoint,
		Command:     c.Command,
		Essential:   aws.Bool(c.Essential),
		Environment: environment(c.Environment),
	}

	if c.Logs.Group != "" {
		def.LogConfiguration = &types.LogConfiguration{
			LogDriver: types.LogDriverAwslogs,
			Options: map[string]string{
				"awslogs-group":         c.Logs.Group,
				"awslogs-region":        c.Logs.Region,
				"awslogs-stream-prefix": c.Logs.StreamPrefix,
			},
		}
	}
	return def
}

// environment — переменные, отсортированные по имени.
func environment(env map[string]string) []types.KeyValuePair {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]types.KeyValuePair, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, types.KeyValuePair{
			Name:  aws.String(name),
			Value: aws.String(env[name]),
		})
	}
	return pairs
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
