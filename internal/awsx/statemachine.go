package awsx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
)

// SFNAPI — используемая часть клиента Step Functions.
type SFNAPI interface {
	CreateStateMachine(ctx context.Context, in *sfn.CreateStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.CreateStateMachineOutput, error)
	UpdateStateMachine(ctx context.Context, in *sfn.UpdateStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.UpdateStateMachineOutput, error)
	StartExecution(ctx context.Context, in *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeExecution(ctx context.Context, in *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
}

// StateMachinesConfig — конфигурация StateMachines.
type StateMachinesConfig struct {
	Client  SFNAPI
	Region  string
	Account string

	// RoleARN — роль, с которой создаётся новый граф.
	RoleARN string

	Logger *slog.Logger
}

// StateMachines регистрирует и запускает графы деплоя.
type StateMachines struct {
	client  SFNAPI
	region  string
	account string
	roleARN string
	logger  *slog.Logger
}

// NewStateMachines создаёт адаптер.
func NewStateMachines(cfg StateMachinesConfig) *StateMachines {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachines{
		client:  cfg.Client,
		region:  cfg.Region,
		account: cfg.Account,
		roleARN: cfg.RoleARN,
		logger:  logger,
	}
}

// ARN — ARN графа по имени.
func (s *StateMachines) ARN(name string) string {
	return fmt.Sprintf("arn:aws:states:%s:%s:stateMachine:%s", s.region, s.account, name)
}

// Deploy обновляет граф с именем name, а если его нет — создаёт.
// Повторная регистрация под тем же именем не создаёт дубликат.
func (s *StateMachines) Deploy(ctx context.Context, name string, definition []byte) (string, error) {
	arn := s.ARN(name)

	_, err := s.client.UpdateStateMachine(ctx, &sfn.UpdateStateMachineInput{
		StateMachineArn: aws.String(arn),
		Definition:      aws.String(string(definition)),
	})
	if err == nil {
		s.logger.Info("state machine updated", "state_machine_arn", arn)
		return arn, nil
	}

	var notExist *types.StateMachineDoesNotExist
	if !errors.As(err, &notExist) {
		return "", fmt.Errorf("update state machine %s: %w", name, err)
	}

	out, err := s.client.CreateStateMachine(ctx, &sfn.CreateStateMachineInput{
		Name:       aws.String(name),
		Definition: aws.String(string(definition)),
		RoleArn:    aws.String(s.roleARN),
		Type:       types.StateMachineTypeStandard,
	})
	if err != nil {
		return "", fmt.Errorf("create state machine %s: %w", name, err)
	}

	arn = aws.ToString(out.StateMachineArn)
	s.logger.Info("state machine created", "state_machine_arn", arn)
	return arn, nil
}

// Start запускает execution и возвращает его ARN.
func (s *StateMachines) Start(ctx context.Context, stateMachineARN, name string, input []byte) (string, error) {
	out, err := s.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(stateMachineARN),
		Name:            aws.String(name),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return "", fmt.Errorf("start execution %s: %w", name, err)
	}

	arn := aws.ToString(out.ExecutionArn)
	s.logger.Info("execution started", "execution_arn", arn)
	return arn, nil
}

// ExecutionStatus — состояние execution.
type ExecutionStatus struct {
	Status   string
	Error    string
	Cause    string
	StopDate *time.Time
}

// Describe возвращает состояние execution.
func (s *StateMachines) Describe(ctx context.Context, executionARN string) (ExecutionStatus, error) {
	out, err := s.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(executionARN),
	})
	if err != nil {
		return ExecutionStatus{}, fmt.Errorf("describe execution %s: %w", executionARN, err)
	}

	return ExecutionStatus{
		Status:   string(out.Status),
		Error:    aws.ToString(out.Error),
		Cause:    aws.ToString(out.Cause),
		StopDate: out.StopDate,
	}, nil
}
