package engine

import (
	"fmt"
)

// ResultsPath — куда Parallel узел кладёт массив результатов веток.
const ResultsPath = "$.results"

// CheckID — Choice узел этапа.
func CheckID(stageName string) string {
	return stageName + " - Check for errors"
}

// BranchErrorVariable — путь к полю Error результата ветки i.
func BranchErrorVariable(i int) string {
	return fmt.Sprintf("%s[%d].Error", ResultsPath, i)
}

// Stage — пара узлов этапа: Parallel (fan-out) и следующий за ним
// Choice (fan-in с проверкой ошибок).
type Stage struct {
	Parallel NamedState
	Choice   NamedState
}

// EntryID возвращает ID входного узла этапа.
func (s Stage) EntryID() string {
	return s.Parallel.ID
}

// States возвращает узлы этапа по порядку.
func (s Stage) States() []NamedState {
	return []NamedState{s.Parallel, s.Choice}
}

// BuildStage оборачивает ветки в Parallel узел и добавляет Choice узел.
//
// Результат ветки i лежит в $.results[i], поэтому порядок branches
// определяет порядок проверок. Язык правил не умеет проверять наличие
// поля по wildcard, так что Choice перечисляет каждый индекс: Or над
// IsPresent($.results[i].Error) для всех i в [0, N). Любая ветка с
// ошибкой уводит в onFailure, иначе переход в onSuccess.
//
// Этап из одного окружения тоже проходит через Parallel с одной веткой.
func BuildStage(name string, branches []Graph, onFailure, onSuccess string) (Stage, error) {
	if name == "" {
		return Stage{}, NewGraphError("", "stage has empty name", ErrEmptyStateID)
	}
	if len(branches) == 0 {
		return Stage{}, NewGraphError(name, "stage has no branches", ErrEmptyBranches)
	}
	if onFailure == "" || onSuccess == "" {
		return Stage{}, NewGraphError(CheckID(name), "stage transitions are not set", ErrNoTransition)
	}

	copied := make([]Graph, len(branches))
	for i, b := range branches {
		if b.Len() == 0 {
			return Stage{}, NewGraphError(name, fmt.Sprintf("branch %d is empty", i), ErrEmptyGraph)
		}
		copied[i] = Graph{StartAt: b.StartAt, States: append([]NamedState(nil), b.States...)}
	}

	checkID := CheckID(name)

	parallel := NamedState{
		ID: name,
		State: State{
			Type:       StateParallel,
			Branches:   copied,
			ResultPath: ResultsPath,
			Next:       checkID,
		},
	}

	checks := make([]ChoiceRule, len(copied))
	for i := range copied {
		checks[i] = ChoiceRule{
			Variable:  BranchErrorVariable(i),
			IsPresent: boolPtr(true),
		}
	}

	choice := NamedState{
		ID: checkID,
		State: State{
			Type: StateChoice,
			Choices: []ChoiceRule{{
				Or:   checks,
				Next: onFailure,
			}},
			Default: onSuccess,
		},
	}

	return Stage{Parallel: parallel, Choice: choice}, nil
}
