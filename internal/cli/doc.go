// Package cli реализует инструмент командной строки conveyor.
//
// # Обзор
//
// Команды deploy и deployment работают через HTTP API и не импортируют
// внутренние пакеты сервиса. Команда compile, наоборот, собирает граф
// локально теми же пакетами, что и оркестратор, но с dry-run регистрацией
// единиц выполнения.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для conveyor API. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	deployments, err := client.ListDeployments(cli.ListDeploymentsOpts{Repo: "trafficinfo"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) с цветными статусами — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor compile ... | jq .
//
// ## Commands
//
//   - compile: офлайн-компиляция конфигурации деплоя
//   - deploy: отправка триггера деплоя
//   - deployment: list, show, definition
//
// Каждая группа создаётся через фабричную функцию (NewDeploymentCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
