package engine

import (
	"fmt"

	"github.com/shaiso/conveyor/internal/domain"
)

// Идентификаторы общих узлов графа деплоя.
const (
	// FailedID — общий Fail узел для всех этапов.
	FailedID = "Deployment Failed"

	// SucceededID — завершающий Succeed узел.
	SucceededID = "Deployment Succeeded"

	// VersionsPath — куда версионный шаг кладёт свой результат.
	VersionsPath = "$.versions"
)

// Input — всё, что нужно компилятору.
type Input struct {
	// Flow — последовательность этапов.
	Flow domain.FlowSpec

	// Environments — шаги каждого окружения (окружение → шаги по порядку).
	// Окружение с пустым списком допустимо, отсутствующее — нет.
	Environments map[string][]domain.Job

	// VersionFetch — ведущий шаг получения версий артефактов.
	// Если не задан, граф начинается с первого этапа.
	VersionFetch domain.Job

	// Comment — комментарий верхнего уровня.
	Comment string
}

// Compile собирает полный граф деплоя.
//
// Порядок узлов верхнего уровня:
//
//	[версии] → Parallel(этап 1) → Choice → ... → Parallel(этап N) → Choice → Succeed, Fail
//
// Choice этапа k при отсутствии ошибок ведёт в Parallel этапа k+1,
// последний — в Succeed.
//
// Одинаковый вход даёт побайтно одинаковый JSON.
func Compile(in Input) (Definition, error) {
	if err := in.Flow.Validate(); err != nil {
		return Definition{}, err
	}

	// Все ссылки на окружения должны разрешаться до построения графа
	for i, stage := range in.Flow {
		for _, env := range stage.Environments {
			if _, ok := in.Environments[env]; !ok {
				return Definition{}, domain.NewConfigurationError(env, fmt.Sprintf("flow[%d]", i),
					fmt.Sprintf("environment %q has no job list", env), domain.ErrUnresolvedEnvironment)
			}
		}
	}

	stageNames := make([]string, len(in.Flow))
	for i, stage := range in.Flow {
		stageNames[i] = stage.Name()
	}

	stages := make([]Stage, 0, len(in.Flow))
	for i, entry := range in.Flow {
		branches := make([]Graph, 0, len(entry.Environments))
		for _, env := range entry.Environments {
			chain, err := BuildChain(env, in.Environments[env])
			if err != nil {
				return Definition{}, err
			}
			branches = append(branches, chain)
		}

		onSuccess := SucceededID
		if i+1 < len(stageNames) {
			onSuccess = stageNames[i+1]
		}

		stage, err := BuildStage(stageNames[i], branches, FailedID, onSuccess)
		if err != nil {
			return Definition{}, err
		}
		stages = append(stages, stage)
	}

	states := make([]NamedState, 0, 2*len(stages)+3)

	if !in.VersionFetch.IsZero() {
		fetch, err := versionFetchState(in.VersionFetch, stages[0].EntryID())
		if err != nil {
			return Definition{}, err
		}
		states = append(states, fetch)
	}

	for _, stage := range stages {
		states = append(states, stage.States()...)
	}

	states = append(states,
		NamedState{ID: SucceededID, State: State{Type: StateSucceed}},
		NamedState{ID: FailedID, State: State{
			Type:  StateFail,
			Error: "DeploymentFailed",
			Cause: "One or more environments in a stage reported an error",
		}},
	)

	def := Definition{
		Comment: in.Comment,
		Graph:   Graph{StartAt: states[0].ID, States: states},
	}

	if err := Validate(def); err != nil {
		return Definition{}, err
	}

	return def, nil
}

// versionFetchState строит ведущий Task узел.
// Из ответа функции оставляется только Payload, чтобы шаги окружений
// могли ссылаться на $.versions.Payload.
func versionFetchState(job domain.Job, next string) (NamedState, error) {
	state, err := taskState(job)
	if err != nil {
		return NamedState{}, err
	}
	state.ResultSelector = map[string]any{"Payload.$": "$.Payload"}
	state.ResultPath = VersionsPath
	state.Catch = []CatchRule{{ErrorEquals: []string{ErrorsAll}, Next: FailedID}}
	state.Next = next

	return NamedState{ID: job.Name(), State: state}, nil
}
