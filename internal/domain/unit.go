package domain

import "sort"

// ExecutionUnit — неизменяемое описание единицы выполнения внешней задачи
// (task definition): основной контейнер и контейнер-репортёр.
type ExecutionUnit struct {
	Family           string          `json:"family"`
	TaskRoleARN      string          `json:"task_role_arn"`
	ExecutionRoleARN string          `json:"execution_role_arn"`
	NetworkMode      string          `json:"network_mode"`
	Compatibility    string          `json:"compatibility"`
	CPU              string          `json:"cpu"`
	Memory           string          `json:"memory"`
	Containers       []ContainerSpec `json:"containers"`
}

// ContainerSpec — один контейнер единицы выполнения.
type ContainerSpec struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	EntryPoint  []string          `json:"entry_point,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Essential   bool              `json:"essential"`
	Logs        LogSpec           `json:"logs"`
}

// LogSpec — настройки awslogs драйвера.
type LogSpec struct {
	Group        string `json:"group"`
	Region       string `json:"region"`
	StreamPrefix string `json:"stream_prefix"`
}

// Container возвращает контейнер по имени.
func (u ExecutionUnit) Container(name string) (ContainerSpec, bool) {
	for _, c := range u.Containers {
		if c.Name == name {
			return c, true
		}
	}
	return ContainerSpec{}, false
}

// SortedEnvironment возвращает имена переменных в стабильном порядке.
func (c ContainerSpec) SortedEnvironment() []string {
	names := make([]string, 0, len(c.Environment))
	for name := range c.Environment {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
