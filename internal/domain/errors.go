package domain

import (
	"errors"
	"fmt"
)

// Ошибки конфигурации деплоя.
var (
	// ErrUnknownJobType — тип шага не зарегистрирован в реестре.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrMissingParameter — не задан обязательный параметр шага.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrInvalidParameter — параметр имеет неверный тип или значение.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnresolvedEnvironment — flow ссылается на окружение без списка шагов.
	ErrUnresolvedEnvironment = errors.New("unresolved environment reference")

	// ErrDuplicateEnvironment — окружение встречается в flow больше одного раза.
	ErrDuplicateEnvironment = errors.New("environment referenced more than once")

	// ErrEmptyFlow — flow не содержит ни одного этапа.
	ErrEmptyFlow = errors.New("flow has no stages")

	// ErrEmptyStage — параллельная группа без окружений.
	ErrEmptyStage = errors.New("stage has no environments")

	// ErrInvalidDeploymentInfo — в DeploymentInfo не хватает полей.
	ErrInvalidDeploymentInfo = errors.New("invalid deployment info")
)

// ConfigurationError — ошибка конфигурации с контекстом.
//
// Возвращается на этапе компиляции: неизвестный тип шага, пропущенный
// параметр, ссылка на несуществующее окружение. Никогда не пропускается молча.
type ConfigurationError struct {
	Field       string // поле конфигурации ("flow", "deployment.steps[1]", "account_id")
	Environment string // окружение, если ошибка к нему относится
	Message     string
	Err         error
}

// Error реализует интерфейс error.
func (e *ConfigurationError) Error() string {
	prefix := "configuration"
	if e.Environment != "" {
		prefix += " (" + e.Environment + ")"
	}
	if e.Field != "" {
		prefix += " " + e.Field
	}
	return prefix + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError создаёт ошибку конфигурации.
func NewConfigurationError(env, field, message string, err error) *ConfigurationError {
	return &ConfigurationError{
		Field:       field,
		Environment: env,
		Message:     message,
		Err:         err,
	}
}

// MissingParameter — сокращение для ConfigurationError с ErrMissingParameter.
func MissingParameter(env, job, param string) *ConfigurationError {
	return NewConfigurationError(env, param,
		fmt.Sprintf("job %q requires parameter %q", job, param), ErrMissingParameter)
}

// UnknownJobTypeError — имя типа шага не найдено в реестре.
type UnknownJobTypeError struct {
	Name  string
	Known []string
}

// Error реализует интерфейс error.
func (e *UnknownJobTypeError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown job type %q", e.Name)
	}
	return fmt.Sprintf("unknown job type %q (known: %v)", e.Name, e.Known)
}

// Is позволяет сравнивать через errors.Is(err, ErrUnknownJobType).
func (e *UnknownJobTypeError) Is(target error) bool {
	return target == ErrUnknownJobType
}
