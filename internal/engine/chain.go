package engine

import (
	"fmt"

	"github.com/shaiso/conveyor/internal/domain"
)

// StateID возвращает идентификатор узла шага: "<окружение> - <шаг>".
func StateID(env, jobName string) string {
	return env + " - " + jobName
}

// ErrorCatcherID — Pass узел, поглощающий ошибку шагов окружения.
func ErrorCatcherID(env string) string {
	return env + " - Error Catcher"
}

// NoJobsID — единственный узел окружения без шагов.
func NoJobsID(env string) string {
	return env + " - No Jobs"
}

// BuildChain строит линейную цепочку узлов окружения.
//
// Каждый шаг становится Task узлом "<env> - <name>" в исходном порядке.
// Все Task узлы ловят любую ошибку и переходят в общий для окружения
// Pass узел "<env> - Error Catcher", который завершает ветку: ошибка
// одного окружения не обрывает соседние ветки Parallel узла, а остаётся
// в результате ветки как поле Error.
//
// Последний шаг и Error Catcher завершают фрагмент (End).
// Пустой список шагов даёт один Pass узел.
func BuildChain(env string, jobs []domain.Job) (Graph, error) {
	if env == "" {
		return Graph{}, NewGraphError("", "environment has empty name", ErrEmptyStateID)
	}

	if len(jobs) == 0 {
		id := NoJobsID(env)
		return Graph{
			StartAt: id,
			States: []NamedState{{
				ID:    id,
				State: State{Type: StatePass, Comment: "No jobs configured for " + env, End: true},
			}},
		}, nil
	}

	catcher := ErrorCatcherID(env)
	states := make([]NamedState, 0, len(jobs)+1)
	seen := make(map[string]bool, len(jobs))

	for i, job := range jobs {
		id := StateID(env, job.Name())
		if seen[id] {
			return Graph{}, NewGraphError(id,
				fmt.Sprintf("job %q appears twice in environment %q", job.Name(), env), ErrDuplicateStateID)
		}
		seen[id] = true

		state, err := taskState(job)
		if err != nil {
			return Graph{}, err
		}
		state.Catch = []CatchRule{{ErrorEquals: []string{ErrorsAll}, Next: catcher}}

		if i < len(jobs)-1 {
			state.Next = StateID(env, jobs[i+1].Name())
		} else {
			state.End = true
		}

		states = append(states, NamedState{ID: id, State: state})
	}

	if seen[catcher] {
		return Graph{}, NewGraphError(catcher, "job name collides with the error catcher", ErrDuplicateStateID)
	}
	states = append(states, NamedState{
		ID:    catcher,
		State: State{Type: StatePass, End: true},
	})

	return Graph{StartAt: states[0].ID, States: states}, nil
}

// taskState строит Task узел для шага по его виду.
func taskState(job domain.Job) (State, error) {
	var resource string
	switch job.Kind() {
	case domain.JobKindFunctionCall:
		resource = ResourceFunctionInvoke
	case domain.JobKindExternalTask:
		resource = ResourceTaskCallback
	default:
		return State{}, NewGraphError(job.Name(),
			fmt.Sprintf("no task resource for job kind %q", job.Kind()), ErrUnsupportedJobKind)
	}

	return State{
		Type:       StateTask,
		Resource:   resource,
		Parameters: job.Parameters(),
	}, nil
}
