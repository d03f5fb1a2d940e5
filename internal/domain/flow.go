package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlowSpec — верхнеуровневая последовательность этапов деплоя.
//
// В YAML каждый элемент — либо имя окружения, либо список имён,
// которые выполняются параллельно:
//
//	flow:
//	  - [service, test, stage]
//	  - prod
type FlowSpec []StageEntry

// StageEntry — один этап flow: одно окружение или параллельная группа.
type StageEntry struct {
	// Environments — окружения этапа в порядке объявления.
	// Порядок значим: индекс окружения = индекс результата ветки.
	Environments []string

	// Parallel — этап был объявлен списком (даже из одного элемента).
	Parallel bool
}

// Single создаёт этап из одного окружения.
func Single(env string) StageEntry {
	return StageEntry{Environments: []string{env}}
}

// Group создаёт параллельный этап.
func Group(envs ...string) StageEntry {
	return StageEntry{Environments: envs, Parallel: true}
}

// Name возвращает имя этапа: окружения через ", ".
func (s StageEntry) Name() string {
	return strings.Join(s.Environments, ", ")
}

// UnmarshalYAML принимает скаляр или последовательность скаляров.
func (s *StageEntry) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var env string
		if err := value.Decode(&env); err != nil {
			return err
		}
		*s = Single(env)
		return nil

	case yaml.SequenceNode:
		var envs []string
		if err := value.Decode(&envs); err != nil {
			return fmt.Errorf("line %d: stage group must be a list of environment names: %w", value.Line, err)
		}
		*s = Group(envs...)
		return nil

	default:
		return fmt.Errorf("line %d: stage must be an environment name or a list of names", value.Line)
	}
}

// MarshalYAML сохраняет исходную форму этапа.
func (s StageEntry) MarshalYAML() (any, error) {
	if !s.Parallel && len(s.Environments) == 1 {
		return s.Environments[0], nil
	}
	return s.Environments, nil
}

// UnmarshalJSON принимает строку или массив строк.
func (s *StageEntry) UnmarshalJSON(data []byte) error {
	var env string
	if err := json.Unmarshal(data, &env); err == nil {
		*s = Single(env)
		return nil
	}

	var envs []string
	if err := json.Unmarshal(data, &envs); err != nil {
		return fmt.Errorf("stage must be an environment name or a list of names: %w", err)
	}
	*s = Group(envs...)
	return nil
}

// MarshalJSON сохраняет исходную форму этапа.
func (s StageEntry) MarshalJSON() ([]byte, error) {
	if !s.Parallel && len(s.Environments) == 1 {
		return json.Marshal(s.Environments[0])
	}
	return json.Marshal(s.Environments)
}

// Environments возвращает все окружения flow в порядке первого упоминания.
func (f FlowSpec) Environments() []string {
	seen := make(map[string]bool)
	envs := make([]string, 0)
	for _, stage := range f {
		for _, env := range stage.Environments {
			if seen[env] {
				continue
			}
			seen[env] = true
			envs = append(envs, env)
		}
	}
	return envs
}

// Validate проверяет форму flow: есть этапы, нет пустых групп,
// окружение встречается только один раз.
func (f FlowSpec) Validate() error {
	if len(f) == 0 {
		return NewConfigurationError("", "flow", "flow has no stages", ErrEmptyFlow)
	}

	seen := make(map[string]int)
	for i, stage := range f {
		if len(stage.Environments) == 0 {
			return NewConfigurationError("", fmt.Sprintf("flow[%d]", i),
				"stage has no environments", ErrEmptyStage)
		}
		for _, env := range stage.Environments {
			if strings.TrimSpace(env) == "" {
				return NewConfigurationError("", fmt.Sprintf("flow[%d]", i),
					"stage contains an empty environment name", ErrEmptyStage)
			}
			if prev, ok := seen[env]; ok {
				return NewConfigurationError(env, fmt.Sprintf("flow[%d]", i),
					fmt.Sprintf("environment already used in flow[%d]", prev), ErrDuplicateEnvironment)
			}
			seen[env] = i
		}
	}
	return nil
}
