// Package awsx — адаптеры подложки поверх aws-sdk-go-v2.
//
//   - statemachine.go — регистрация графа (create-or-update), запуск и
//     статус execution
//   - callback.go — отчёт по completion token для репортёра
//   - taskdef.go — регистрация единиц выполнения как task definition
//   - objects.go — чтение указателей и артефактов из хранилища
//   - identity.go — аккаунт текущих credentials
//
// Каждый адаптер принимает узкий интерфейс клиента SDK, так что в тестах
// клиент подменяется фейком.
package awsx
