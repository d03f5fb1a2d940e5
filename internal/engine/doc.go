// Package engine содержит компилятор графа деплоя.
//
// Включает:
//   - states.go   — модель узлов и детерминированная JSON сериализация
//   - chain.go    — цепочка шагов окружения с ребром ошибки на каждом шаге
//   - stage.go    — этап: Parallel (fan-out) + Choice (fan-in с проверкой ошибок)
//   - compiler.go — сборка всего графа из FlowSpec
//   - validate.go — проверка инвариантов графа
//   - dag.go      — граф переходов фрагмента (циклы, достижимость, порядок)
//
// Engine только описывает форму графа. Выполняет его внешняя подложка.
package engine
