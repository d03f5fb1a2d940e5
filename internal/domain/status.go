package domain

// DeploymentStatus — статус деплоя.
//
// Жизненный цикл:
//
//	PENDING → COMPILED → RUNNING → SUCCEEDED
//	                             ↘ FAILED
//	                             ↘ ABORTED
//	(любой нефинальный) → FAILED
type DeploymentStatus string

const (
	// DeploymentStatusPending — триггер принят, граф ещё не собран.
	DeploymentStatusPending DeploymentStatus = "PENDING"

	// DeploymentStatusCompiled — граф собран и зарегистрирован в подложке.
	DeploymentStatusCompiled DeploymentStatus = "COMPILED"

	// DeploymentStatusRunning — execution запущен.
	DeploymentStatusRunning DeploymentStatus = "RUNNING"

	// DeploymentStatusSucceeded — все этапы прошли.
	DeploymentStatusSucceeded DeploymentStatus = "SUCCEEDED"

	// DeploymentStatusFailed — ошибка компиляции, регистрации или этапа.
	DeploymentStatusFailed DeploymentStatus = "FAILED"

	// DeploymentStatusAborted — execution остановлен извне.
	DeploymentStatusAborted DeploymentStatus = "ABORTED"
)

// IsTerminal возвращает true, если статус финальный.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeploymentStatusSucceeded, DeploymentStatusFailed, DeploymentStatusAborted:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление.
func (s DeploymentStatus) String() string {
	return string(s)
}

// ParseDeploymentStatus парсит строку; пустая строка для неизвестного значения.
func ParseDeploymentStatus(s string) DeploymentStatus {
	switch DeploymentStatus(s) {
	case DeploymentStatusPending, DeploymentStatusCompiled, DeploymentStatusRunning,
		DeploymentStatusSucceeded, DeploymentStatusFailed, DeploymentStatusAborted:
		return DeploymentStatus(s)
	default:
		return ""
	}
}

// ExecutionStatusToDeployment сопоставляет статус execution подложки
// со статусом деплоя. Второе значение false, если execution ещё идёт.
func ExecutionStatusToDeployment(executionStatus string) (DeploymentStatus, bool) {
	switch executionStatus {
	case "SUCCEEDED":
		return DeploymentStatusSucceeded, true
	case "FAILED", "TIMED_OUT":
		return DeploymentStatusFailed, true
	case "ABORTED":
		return DeploymentStatusAborted, true
	default:
		return DeploymentStatusRunning, false
	}
}
