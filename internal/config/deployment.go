package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/conveyor/internal/domain"
)

// ErrInvalidDeployment — конфигурация деплоя не прошла проверку схемы.
var ErrInvalidDeployment = errors.New("invalid deployment configuration")

// Deployment — конфигурация деплоя репозитория (.deployment/config.yaml).
//
//	flow:
//	  - [service, test, stage]
//	  - prod
//	deployment:
//	  steps:
//	    - bump_versions
//	    - deploy_terraform:
//	        image: vydev/terraform:1.1.0
//	applications:
//	  lambda: [api]
type Deployment struct {
	// Flow — порядок этапов.
	Flow domain.FlowSpec `yaml:"flow" json:"flow"`

	// Deployment — шаги, которые выполняет каждое окружение.
	Deployment DeploymentSteps `yaml:"deployment" json:"deployment"`

	// Applications — приложения по категориям артефактов.
	Applications Applications `yaml:"applications" json:"applications"`
}

// DeploymentSteps — секция deployment.
type DeploymentSteps struct {
	Steps []StepRef `yaml:"steps" json:"steps"`
}

// Applications — деплоящиеся единицы по категориям.
type Applications struct {
	ECR      []string `yaml:"ecr" json:"ecr"`
	Lambda   []string `yaml:"lambda" json:"lambda"`
	Frontend []string `yaml:"frontend" json:"frontend"`
}

// Steps возвращает шаги деплоя.
func (d *Deployment) Steps() []StepRef {
	return d.Deployment.Steps
}

// StepRef — ссылка на предопределённый тип шага.
//
// В YAML это либо имя типа, либо словарь из одного ключа с
// переопределениями параметров:
//
//	- bump_versions
//	- run_task:
//	    name: Smoke Tests
//	    image: alpine
//	    command: ./smoke.sh
type StepRef struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// UnmarshalYAML принимает скаляр или словарь из одного ключа.
func (s *StepRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&s.Name)

	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("line %d: step must have exactly one type name, got %d", value.Line, len(value.Content)/2)
		}
		if err := value.Content[0].Decode(&s.Name); err != nil {
			return err
		}
		var params map[string]any
		if err := value.Content[1].Decode(&params); err != nil {
			return fmt.Errorf("line %d: parameters of %q must be a mapping: %w", value.Line, s.Name, err)
		}
		s.Params = params
		return nil

	default:
		return fmt.Errorf("line %d: step must be a name or a single-key mapping", value.Line)
	}
}

// ParseDeployment разбирает и проверяет конфигурацию деплоя.
//
// Сначала документ проверяется JSON схемой (форма), затем
// семантически (flow без дублей, непустые шаги).
func ParseDeployment(data []byte) (*Deployment, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML: %v", ErrInvalidDeployment, err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var dep Deployment
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeployment, err)
	}

	if err := dep.Validate(); err != nil {
		return nil, err
	}
	return &dep, nil
}

// LoadDeploymentFile читает конфигурацию деплоя с диска.
func LoadDeploymentFile(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading deployment config: %w", err)
	}
	return ParseDeployment(data)
}

// Validate проверяет семантику конфигурации.
func (d *Deployment) Validate() error {
	if err := d.Flow.Validate(); err != nil {
		return err
	}

	if len(d.Deployment.Steps) == 0 {
		return domain.NewConfigurationError("", "deployment.steps", "at least one step is required", domain.ErrMissingParameter)
	}
	for i, step := range d.Deployment.Steps {
		if step.Name == "" {
			return domain.NewConfigurationError("", fmt.Sprintf("deployment.steps[%d]", i),
				"step type name is empty", domain.ErrInvalidParameter)
		}
	}
	return nil
}
