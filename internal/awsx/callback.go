package awsx

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/smithy-go"

	"github.com/shaiso/conveyor/internal/sidecar"
)

// CallbackAPI — часть клиента Step Functions для отчёта по токену.
type CallbackAPI interface {
	SendTaskSuccess(ctx context.Context, in *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, in *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

// Коды ошибок, означающие, что токен больше не принимается.
var rejectedTokenCodes = map[string]bool{
	"TaskTimedOut":     true,
	"InvalidToken":     true,
	"TaskDoesNotExist": true,
}

// Callback реализует sidecar.CompletionClient поверх Step Functions.
type Callback struct {
	client CallbackAPI
}

// NewCallback создаёт Callback.
func NewCallback(client CallbackAPI) *Callback {
	return &Callback{client: client}
}

// SendTaskSuccess отправляет успешный результат.
func (c *Callback) SendTaskSuccess(ctx context.Context, token, output string) error {
	_, err := c.client.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(token),
		Output:    aws.String(output),
	})
	return callbackError("send task success", err)
}

// SendTaskFailure отправляет неудачу с категорией и причиной.
func (c *Callback) SendTaskFailure(ctx context.Context, token, errorCategory, cause string) error {
	_, err := c.client.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(token),
		Error:     aws.String(errorCategory),
		Cause:     aws.String(cause),
	})
	return callbackError("send task failure", err)
}

func callbackError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && rejectedTokenCodes[apiErr.ErrorCode()] {
		return fmt.Errorf("%s: %w: %s", op, sidecar.ErrTokenRejected, apiErr.ErrorCode())
	}
	return fmt.Errorf("%s: %w", op, err)
}
