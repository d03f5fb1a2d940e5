package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeDeploymentRequested MessageType = "deployment.requested"
	MessageTypeDeploymentStatus    MessageType = "deployment.status"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// DeploymentRequestedPayload — принят новый деплой.
type DeploymentRequestedPayload struct {
	DeploymentID uuid.UUID `json:"deployment_id"`
}

// DeploymentStatusPayload — деплой сменил статус.
type DeploymentStatusPayload struct {
	DeploymentID uuid.UUID               `json:"deployment_id"`
	Repo         string                  `json:"repo"`
	Branch       string                  `json:"branch"`
	SHA          string                  `json:"sha"`
	Status       domain.DeploymentStatus `json:"status"`
	ExecutionARN string                  `json:"execution_arn,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

// StatusPayload собирает событие статуса из деплоя.
func StatusPayload(d *domain.Deployment) DeploymentStatusPayload {
	return DeploymentStatusPayload{
		DeploymentID: d.ID,
		Repo:         d.Info.GitOwner + "/" + d.Info.GitRepo,
		Branch:       d.Info.GitBranch,
		SHA:          d.Info.GitSHA1,
		Status:       d.Status,
		ExecutionARN: d.ExecutionARN,
		Error:        d.Error,
	}
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishDeploymentRequested публикует новый деплой.
// Потребитель: Orchestrator.
func (p *Publisher) PublishDeploymentRequested(ctx context.Context, id uuid.UUID) error {
	msg := NewMessage(MessageTypeDeploymentRequested, DeploymentRequestedPayload{DeploymentID: id})
	return p.Publish(ctx, ExchangeDeployments, RoutingKeyRequested, msg)
}

// PublishDeploymentStatus публикует смену статуса деплоя.
func (p *Publisher) PublishDeploymentStatus(ctx context.Context, d *domain.Deployment) error {
	msg := NewMessage(MessageTypeDeploymentStatus, StatusPayload(d))
	return p.Publish(ctx, ExchangeDeployments, RoutingKeyStatus, msg)
}
