// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (хранилище, publisher, метрики, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery, metrics)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - deployment_handler.go — обработчики для /deployments и /events
//
// API принимает триггеры деплоя и отдаёт состояние деплоев и их графы.
package api
