package domain

import (
	"encoding/json"
	"fmt"
)

// JobKind — способ выполнения шага деплоя.
type JobKind string

const (
	// JobKindFunctionCall — лёгкий синхронный вызов функции.
	JobKindFunctionCall JobKind = "function-call"

	// JobKindExternalTask — контейнерная задача, которая сообщает результат
	// через одноразовый completion token.
	JobKindExternalTask JobKind = "external-task"
)

// Valid проверяет, что вид шага известен.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindFunctionCall, JobKindExternalTask:
		return true
	default:
		return false
	}
}

// Job — неизменяемое описание одного шага в окружении.
//
// Создаётся конструкторами пакета jobs один раз на окружение.
// Поля закрыты: Parameters возвращает копию, поэтому граф, собранный
// из Job, не может изменить его задним числом.
type Job struct {
	name       string
	kind       JobKind
	parameters map[string]any
}

// NewJob создаёт Job. Параметры копируются.
func NewJob(name string, kind JobKind, parameters map[string]any) (Job, error) {
	if name == "" {
		return Job{}, NewConfigurationError("", "name", "job has empty name", ErrMissingParameter)
	}
	if !kind.Valid() {
		return Job{}, NewConfigurationError("", "kind",
			fmt.Sprintf("job %q has unsupported kind %q", name, kind), ErrInvalidParameter)
	}
	return Job{
		name:       name,
		kind:       kind,
		parameters: CloneMap(parameters),
	}, nil
}

// Name возвращает имя шага (уникально внутри окружения).
func (j Job) Name() string { return j.name }

// Kind возвращает вид шага.
func (j Job) Kind() JobKind { return j.kind }

// Parameters возвращает копию параметров шага.
func (j Job) Parameters() map[string]any {
	return CloneMap(j.parameters)
}

// IsZero возвращает true для незаполненного Job.
func (j Job) IsZero() bool {
	return j.name == "" && j.kind == ""
}

// MarshalJSON — для API и CLI.
func (j Job) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string         `json:"name"`
		Kind       JobKind        `json:"kind"`
		Parameters map[string]any `json:"parameters,omitempty"`
	}{j.name, j.kind, j.parameters})
}

// CloneMap делает глубокую копию map[string]any.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue делает глубокую копию значения из map/slice структур.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = CloneMap(item)
		}
		return out
	default:
		return v
	}
}
