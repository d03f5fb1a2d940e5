package engine

import "errors"

// Ошибки инвариантов графа.
var (
	// ErrEmptyGraph — граф или ветка без узлов.
	ErrEmptyGraph = errors.New("graph has no states")

	// ErrEmptyStateID — узел без идентификатора.
	ErrEmptyStateID = errors.New("state has empty ID")

	// ErrDuplicateStateID — идентификатор узла встречается дважды.
	ErrDuplicateStateID = errors.New("duplicate state ID")

	// ErrUnknownStateType — неизвестный тип узла.
	ErrUnknownStateType = errors.New("unknown state type")

	// ErrMissingStart — StartAt не указывает на узел фрагмента.
	ErrMissingStart = errors.New("start state not found")

	// ErrNextAndEnd — у узла заданы и Next, и End.
	ErrNextAndEnd = errors.New("state has both next and end")

	// ErrNoTransition — у узла нет ни Next, ни End.
	ErrNoTransition = errors.New("state has neither next nor end")

	// ErrUnexpectedTransition — у Choice/Fail/Succeed задан Next или End.
	ErrUnexpectedTransition = errors.New("terminal or choice state has next or end")

	// ErrUnknownTransition — переход на несуществующий узел.
	ErrUnknownTransition = errors.New("transition to unknown state")

	// ErrMissingCatch — Task узел без ребра ошибки.
	ErrMissingCatch = errors.New("task state has no error edge")

	// ErrEmptyChoices — Choice узел без правил.
	ErrEmptyChoices = errors.New("choice state has no rules")

	// ErrEmptyBranches — Parallel узел без веток.
	ErrEmptyBranches = errors.New("parallel state has no branches")

	// ErrCyclicTransition — переходы образуют цикл.
	ErrCyclicTransition = errors.New("cyclic transition detected")

	// ErrUnreachableState — узел недостижим из StartAt.
	ErrUnreachableState = errors.New("state is unreachable")

	// ErrUnsupportedJobKind — вид шага, для которого нет Task ресурса.
	ErrUnsupportedJobKind = errors.New("unsupported job kind")
)

// GraphError — нарушение инварианта графа с контекстом.
type GraphError struct {
	StateID string // узел, где обнаружено нарушение
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *GraphError) Error() string {
	if e.StateID != "" {
		return "state " + e.StateID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *GraphError) Unwrap() error {
	return e.Err
}

// NewGraphError создаёт ошибку графа.
func NewGraphError(stateID, message string, err error) *GraphError {
	return &GraphError{
		StateID: stateID,
		Message: message,
		Err:     err,
	}
}
