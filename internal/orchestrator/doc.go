// Package orchestrator проводит деплои от триггера до запущенного
// execution и синхронизирует их статусы.
//
// Orchestrator отвечает за:
//   - Получение запросов на деплой из очереди RabbitMQ
//   - Сборку графа деплоя из артефакта репозитория
//   - Регистрацию графа в подложке и запуск execution
//   - Периодическую синхронизацию статусов запущенных execution
//
// Ошибки конфигурации и подложки переводят деплой в FAILED и не
// возвращаются в очередь; отмена контекста возвращает сообщение.
package orchestrator
