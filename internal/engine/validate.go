package engine

import (
	"fmt"
)

// Validate выполняет полную проверку графа.
//
// Проверяет:
//   - ID узлов непусты и уникальны во всём графе, включая ветки
//   - у Task/Pass/Parallel ровно одно из Next и End
//   - у Choice/Fail/Succeed нет ни Next, ни End
//   - у каждого Task узла есть ребро ошибки
//   - Choice содержит правила, Parallel содержит ветки
//   - переходы внутри каждого фрагмента ведут на его узлы,
//     без циклов, все узлы достижимы (делегируется TransitionGraph)
func Validate(def Definition) error {
	return validateGraph(def.Graph, make(map[string]bool))
}

// validateGraph проверяет фрагмент; ids — уже встреченные ID во всём графе.
func validateGraph(g Graph, ids map[string]bool) error {
	if len(g.States) == 0 {
		return NewGraphError(g.StartAt, "fragment has no states", ErrEmptyGraph)
	}

	for _, ns := range g.States {
		if ns.ID == "" {
			return NewGraphError("", "state has empty ID", ErrEmptyStateID)
		}
		if ids[ns.ID] {
			return NewGraphError(ns.ID, fmt.Sprintf("duplicate state ID: %s", ns.ID), ErrDuplicateStateID)
		}
		ids[ns.ID] = true

		if err := ValidateState(ns.ID, ns.State); err != nil {
			return err
		}

		for _, branch := range ns.State.Branches {
			if err := validateGraph(branch, ids); err != nil {
				return err
			}
		}
	}

	if _, err := BuildTransitionGraph(g); err != nil {
		return err
	}

	return nil
}

// ValidateState проверяет инварианты одного узла.
func ValidateState(id string, s State) error {
	switch s.Type {
	case StateTask, StatePass, StateParallel:
		if s.Next != "" && s.End {
			return NewGraphError(id, "state has both Next and End", ErrNextAndEnd)
		}
		if s.Next == "" && !s.End {
			return NewGraphError(id, "state has neither Next nor End", ErrNoTransition)
		}

	case StateChoice, StateFail, StateSucceed:
		if s.Next != "" || s.End {
			return NewGraphError(id, fmt.Sprintf("%s state must not have Next or End", s.Type), ErrUnexpectedTransition)
		}

	default:
		return NewGraphError(id, fmt.Sprintf("unknown state type: %q", s.Type), ErrUnknownStateType)
	}

	switch s.Type {
	case StateTask:
		if len(s.Catch) == 0 {
			return NewGraphError(id, "task has no error edge", ErrMissingCatch)
		}
	case StateChoice:
		if len(s.Choices) == 0 {
			return NewGraphError(id, "choice has no rules", ErrEmptyChoices)
		}
	case StateParallel:
		if len(s.Branches) == 0 {
			return NewGraphError(id, "parallel has no branches", ErrEmptyBranches)
		}
	}

	return nil
}
