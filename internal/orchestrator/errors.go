package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrDeploymentAlreadyActive — деплой уже обрабатывается.
	ErrDeploymentAlreadyActive = errors.New("deployment already being processed")

	// ErrDeploymentNotRunnable — деплой уже запущен или завершён.
	ErrDeploymentNotRunnable = errors.New("deployment is not in a runnable status")

	// ErrMissingInfo — у деплоя нет ни данных пуша, ни указателя на них.
	ErrMissingInfo = errors.New("deployment has neither info nor source")
)
