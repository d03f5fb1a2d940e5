package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeDeployments Exchange = "conveyor.deployments"
	ExchangeDLQ         Exchange = "conveyor.dlq"
)

// Queues — имена очередей.
const (
	QueueDeploymentsRequested Queue = "deployments.requested"
	QueueDeploymentsStatus    Queue = "deployments.status"
	QueueDLQDeployments       Queue = "dlq.deployments"
)

// Routing keys.
const (
	RoutingKeyRequested      RoutingKey = "requested"
	RoutingKeyStatus         RoutingKey = "status"
	RoutingKeyDLQDeployments RoutingKey = "deployments"
)

type queueSpec struct {
	name       Queue
	exchange   Exchange
	routingKey RoutingKey
	args       amqp.Table
}

// topology — вся топология: очередь, её обменник и ключ.
func topology() []queueSpec {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQDeployments),
	}

	return []queueSpec{
		// deployments.requested — с DLQ: триггер, который не удалось
		// обработать, не должен потеряться
		{QueueDeploymentsRequested, ExchangeDeployments, RoutingKeyRequested, dlqArgs},

		// deployments.status — события смены статуса
		{QueueDeploymentsStatus, ExchangeDeployments, RoutingKeyStatus, nil},

		// dlq.deployments — сама DLQ очередь
		{QueueDLQDeployments, ExchangeDLQ, RoutingKeyDLQDeployments, nil},
	}
}

// SetupTopology объявляет обменники, очереди и привязки.
// Объявления идемпотентны.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeDeployments, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, q := range topology() {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}

			err = ch.QueueBind(string(q.name), string(q.routingKey), string(q.exchange), false, nil)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.name, q.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conveyor RabbitMQ Topology:

    conveyor.deployments (direct)
    ├── deployments.requested [routing: requested]
    │       Consumer: Orchestrator
    │       DLQ: dlq.deployments
    └── deployments.status [routing: status]
            Consumer: external subscribers

    conveyor.dlq (direct)
    └── dlq.deployments [routing: deployments]
            Manual processing
  `
}
