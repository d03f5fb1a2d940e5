package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/conveyor/internal/config"
	"github.com/shaiso/conveyor/internal/domain"
)

// Constructor строит Job одного типа для одного окружения.
type Constructor func(ctx context.Context, req *Request) (domain.Job, error)

// Request — входные данные конструктора.
type Request struct {
	// Environment — окружение, для которого строится шаг.
	Environment string

	// Info — пуш, который деплоится.
	Info domain.DeploymentInfo

	// Applications — приложения из конфигурации деплоя.
	Applications config.Applications

	// Settings — настройки сервиса.
	Settings Settings

	// Registrar — регистрирует единицы выполнения внешних задач.
	Registrar UnitRegistrar

	// Params — переопределения из конфигурации, уже отрендеренные.
	Params map[string]any
}

// Registry — реестр типов шагов.
//
// Позволяет регистрировать и получать конструкторы по имени типа.
// Потокобезопасен.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// DefaultRegistry создаёт реестр со всеми предопределёнными типами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(TypeBumpVersions, bumpVersions)
	r.Register(TypeDeployTerraform, deployTerraform)
	r.Register(TypeRunTask, runTask)
	r.Register(TypeInvokeFunction, invokeFunction)

	return r
}

// Register регистрирует конструктор.
// Если тип с таким именем уже есть, он будет перезаписан.
func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = c
}

// Get возвращает конструктор по имени типа.
// Для неизвестного имени возвращает *domain.UnknownJobTypeError.
func (r *Registry) Get(name string) (Constructor, error) {
	r.mu.RLock()
	c, exists := r.constructors[name]
	r.mu.RUnlock()

	if !exists {
		return nil, &domain.UnknownJobTypeError{Name: name, Known: r.Names()}
	}
	return c, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.constructors[name]
	return exists
}

// Names возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckComplete проверяет, что все шаги конфигурации ссылаются на
// известные типы. Вызывается до любых побочных эффектов.
func (r *Registry) CheckComplete(steps []config.StepRef) error {
	for i, step := range steps {
		if _, err := r.Get(step.Name); err != nil {
			return domain.NewConfigurationError("", fmt.Sprintf("deployment.steps[%d]", i), err.Error(), err)
		}
	}
	return nil
}
