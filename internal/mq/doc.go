// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений о деплоях
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - deployment.requested — принят триггер деплоя (API → orchestrator)
//   - deployment.status    — деплой сменил статус (orchestrator → подписчики)
//
// Exchanges:
//   - conveyor.deployments — события деплоев
//   - conveyor.dlq         — dead letter queue
package mq
