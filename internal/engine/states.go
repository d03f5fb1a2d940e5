package engine

import (
	"bytes"
	"encoding/json"
)

// StateType — тип узла графа.
type StateType string

const (
	StateTask     StateType = "Task"
	StateParallel StateType = "Parallel"
	StateChoice   StateType = "Choice"
	StatePass     StateType = "Pass"
	StateFail     StateType = "Fail"
	StateSucceed  StateType = "Succeed"
)

// Ресурсы подложки для Task узлов.
const (
	// ResourceFunctionInvoke — синхронный вызов функции.
	ResourceFunctionInvoke = "arn:aws:states:::lambda:invoke"

	// ResourceTaskCallback — запуск контейнерной задачи с ожиданием
	// completion token.
	ResourceTaskCallback = "arn:aws:states:::ecs:runTask.waitForTaskToken"
)

// ErrorsAll — catch на любую ошибку.
const ErrorsAll = "States.ALL"

// State — один узел графа в терминах языка состояний.
//
// Поля сериализуются в фиксированном порядке, пустые опускаются.
// Для Task/Pass/Parallel ровно одно из Next и End должно быть задано;
// Choice/Fail/Succeed не имеют ни того, ни другого.
type State struct {
	Type           StateType      `json:"Type"`
	Comment        string         `json:"Comment,omitempty"`
	Resource       string         `json:"Resource,omitempty"`
	Parameters     map[string]any `json:"Parameters,omitempty"`
	ResultSelector map[string]any `json:"ResultSelector,omitempty"`
	ResultPath     string         `json:"ResultPath,omitempty"`
	Branches       []Graph        `json:"Branches,omitempty"`
	Choices        []ChoiceRule   `json:"Choices,omitempty"`
	Default        string         `json:"Default,omitempty"`
	Error          string         `json:"Error,omitempty"`
	Cause          string         `json:"Cause,omitempty"`
	Catch          []CatchRule    `json:"Catch,omitempty"`
	Next           string         `json:"Next,omitempty"`
	End            bool           `json:"End,omitempty"`
}

// CatchRule — ребро ошибки.
type CatchRule struct {
	ErrorEquals []string `json:"ErrorEquals"`
	Next        string   `json:"Next"`
}

// ChoiceRule — правило Choice узла. Либо составное (Or), либо
// проверка переменной; Next задаётся только на верхнем уровне.
type ChoiceRule struct {
	Or        []ChoiceRule `json:"Or,omitempty"`
	Variable  string       `json:"Variable,omitempty"`
	IsPresent *bool        `json:"IsPresent,omitempty"`
	Next      string       `json:"Next,omitempty"`
}

// NamedState — узел с идентификатором.
type NamedState struct {
	ID    string
	State State
}

// Graph — самодостаточный фрагмент графа: точка входа и узлы
// в порядке построения.
type Graph struct {
	StartAt string
	States  []NamedState
}

// Definition — полный граф деплоя.
type Definition struct {
	Comment string
	Graph
}

// Len возвращает количество узлов верхнего уровня.
func (g Graph) Len() int {
	return len(g.States)
}

// Lookup возвращает узел верхнего уровня по ID.
func (g Graph) Lookup(id string) (State, bool) {
	for _, ns := range g.States {
		if ns.ID == id {
			return ns.State, true
		}
	}
	return State{}, false
}

// IDs возвращает ID узлов верхнего уровня по порядку.
func (g Graph) IDs() []string {
	ids := make([]string, len(g.States))
	for i, ns := range g.States {
		ids[i] = ns.ID
	}
	return ids
}

// Walk обходит все узлы, включая узлы внутри веток, в порядке построения.
func (g Graph) Walk(fn func(id string, s State)) {
	for _, ns := range g.States {
		fn(ns.ID, ns.State)
		for _, branch := range ns.State.Branches {
			branch.Walk(fn)
		}
	}
}

// CountAll возвращает количество узлов на всех уровнях.
func (g Graph) CountAll() int {
	n := 0
	g.Walk(func(string, State) { n++ })
	return n
}

// MarshalJSON пишет States в порядке построения, а не в алфавитном.
func (g Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"StartAt":`)
	if err := writeJSON(&buf, g.StartAt); err != nil {
		return nil, err
	}
	buf.WriteString(`,"States":`)
	if err := writeStates(&buf, g.States); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON пишет Comment, StartAt и States.
func (d Definition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if d.Comment != "" {
		buf.WriteString(`"Comment":`)
		if err := writeJSON(&buf, d.Comment); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	buf.WriteString(`"StartAt":`)
	if err := writeJSON(&buf, d.StartAt); err != nil {
		return nil, err
	}
	buf.WriteString(`,"States":`)
	if err := writeStates(&buf, d.States); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// JSON возвращает сериализованный граф с отступами.
func (d Definition) JSON() ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func writeStates(buf *bytes.Buffer, states []NamedState) error {
	buf.WriteByte('{')
	for i, ns := range states {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(buf, ns.ID); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeJSON(buf, ns.State); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
