package engine

import (
	"fmt"
)

// Node — узел графа переходов.
type Node struct {
	// ID — идентификатор узла.
	ID string

	// InDegree — количество входящих переходов.
	InDegree int

	// Targets — узлы, в которые можно перейти из этого.
	Targets []*Node

	// Sources — узлы, из которых можно перейти в этот.
	Sources []*Node
}

// TransitionGraph — граф переходов одного фрагмента (верхний уровень
// или одна ветка Parallel). Узлы веток в него не входят: ветка —
// отдельная область видимости со своим StartAt.
type TransitionGraph struct {
	// Nodes — все узлы фрагмента (stateID → Node).
	Nodes map[string]*Node

	// Root — узел StartAt.
	Root *Node

	// Order — топологический порядок узлов.
	Order []*Node

	// ids — порядок объявления, для детерминированного обхода.
	ids []string
}

// BuildTransitionGraph строит граф переходов фрагмента и проверяет:
// переходы ведут на существующие узлы, циклов нет, все узлы достижимы
// из StartAt.
func BuildTransitionGraph(g Graph) (*TransitionGraph, error) {
	tg := &TransitionGraph{
		Nodes: make(map[string]*Node, len(g.States)),
		ids:   make([]string, 0, len(g.States)),
	}

	// Первый проход: узлы
	for _, ns := range g.States {
		if _, exists := tg.Nodes[ns.ID]; exists {
			return nil, NewGraphError(ns.ID, "duplicate state ID", ErrDuplicateStateID)
		}
		tg.Nodes[ns.ID] = &Node{ID: ns.ID}
		tg.ids = append(tg.ids, ns.ID)
	}

	// Второй проход: переходы
	for _, ns := range g.States {
		for _, target := range transitions(ns.State) {
			to, exists := tg.Nodes[target]
			if !exists {
				return nil, NewGraphError(ns.ID,
					fmt.Sprintf("transition to unknown state %q", target), ErrUnknownTransition)
			}
			tg.addEdge(tg.Nodes[ns.ID], to)
		}
	}

	root, exists := tg.Nodes[g.StartAt]
	if !exists {
		return nil, NewGraphError(g.StartAt, "StartAt does not name a state", ErrMissingStart)
	}
	tg.Root = root

	order, err := tg.topologicalSort()
	if err != nil {
		return nil, err
	}
	tg.Order = order

	if err := tg.checkReachable(); err != nil {
		return nil, err
	}

	return tg, nil
}

// transitions возвращает все исходящие переходы узла.
func transitions(s State) []string {
	out := make([]string, 0, 2)
	if s.Next != "" {
		out = append(out, s.Next)
	}
	for _, rule := range s.Choices {
		if rule.Next != "" {
			out = append(out, rule.Next)
		}
	}
	if s.Default != "" {
		out = append(out, s.Default)
	}
	for _, c := range s.Catch {
		if c.Next != "" {
			out = append(out, c.Next)
		}
	}
	return out
}

// addEdge добавляет переход. Повторный переход между теми же узлами
// (например, Next и Catch в один узел) учитывается один раз.
func (tg *TransitionGraph) addEdge(from, to *Node) {
	for _, src := range to.Sources {
		if src.ID == from.ID {
			return
		}
	}
	from.Targets = append(from.Targets, to)
	to.Sources = append(to.Sources, from)
	to.InDegree++
}

// topologicalSort — алгоритм Кана. Ошибка, если есть цикл.
func (tg *TransitionGraph) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(tg.Nodes))
	queue := make([]*Node, 0)
	for _, id := range tg.ids {
		node := tg.Nodes[id]
		inDegree[id] = node.InDegree
		if node.InDegree == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*Node, 0, len(tg.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, target := range node.Targets {
			inDegree[target.ID]--
			if inDegree[target.ID] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if len(order) != len(tg.Nodes) {
		for _, id := range tg.ids {
			if inDegree[id] > 0 {
				return nil, NewGraphError(id, "state is part of a cycle", ErrCyclicTransition)
			}
		}
		return nil, ErrCyclicTransition
	}

	return order, nil
}

// checkReachable проверяет, что все узлы достижимы из Root.
func (tg *TransitionGraph) checkReachable() error {
	visited := map[string]bool{tg.Root.ID: true}
	stack := []*Node{tg.Root}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, target := range node.Targets {
			if !visited[target.ID] {
				visited[target.ID] = true
				stack = append(stack, target)
			}
		}
	}

	for _, id := range tg.ids {
		if !visited[id] {
			return NewGraphError(id, "state cannot be reached from "+tg.Root.ID, ErrUnreachableState)
		}
	}
	return nil
}

// OrderIDs возвращает топологический порядок в виде ID.
func (tg *TransitionGraph) OrderIDs() []string {
	ids := make([]string, len(tg.Order))
	for i, n := range tg.Order {
		ids[i] = n.ID
	}
	return ids
}

// Terminals возвращает узлы без исходящих переходов в порядке объявления.
func (tg *TransitionGraph) Terminals() []string {
	out := make([]string, 0)
	for _, id := range tg.ids {
		if len(tg.Nodes[id].Targets) == 0 {
			out = append(out, id)
		}
	}
	return out
}
