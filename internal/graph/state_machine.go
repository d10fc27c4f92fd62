package graph

import (
	"container/heap"
	"fmt"
)

// Transition performs an atomic validated transition for a single task. The
// caller supplies the expected prior state so races are observable; state
// is mutated if and only if the transition is valid.
func Transition(state ExecutionState, taskID string, from, to TaskState) error {
	cur, ok := state[taskID]
	if !ok {
		return fmt.Errorf("unknown task in state: %q", taskID)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", taskID, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", taskID, from, to)
	}
	state[taskID] = to
	return nil
}

func isAllowedTransition(from, to TaskState) bool {
	switch from {
	case StatePending:
		return to == StateReady || to == StateSkipped || to == StateFailed
	case StateReady:
		return to == StateRunning || to == StateSkipped || to == StateFailed
	case StateRunning:
		return to == StateSucceeded || to == StateReady || to == StateFailed
	default:
		return false
	}
}

// FailAndPropagate transitions taskID from running to failed and
// transitively marks every downstream dependent still in pending or ready
// as skipped, recording taskID as each one's skip-cause.
//
// Determinism: traversal visits canonical indices via a min-heap, so the
// set and order of newly-skipped ids is independent of map iteration order.
// A node already terminal (including already skipped by an earlier
// failure) is left unchanged — its skip-cause stays the first failing
// upstream task on whichever path was propagated first.
//
// Returns the skip-cause for every task newly transitioned to skipped.
func FailAndPropagate(g *Graph, state ExecutionState, taskID string) (map[string]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	node, ok := g.nodesByID[taskID]
	if !ok {
		return nil, fmt.Errorf("unknown task: %q", taskID)
	}

	cur, ok := state[taskID]
	if !ok {
		return nil, fmt.Errorf("unknown task in state: %q", taskID)
	}
	if cur != StateRunning && cur != StateFailed {
		return nil, fmt.Errorf("cannot fail %q from state %s", taskID, cur)
	}
	if cur == StateRunning {
		state[taskID] = StateFailed
	}

	start := node.canonicalIndex
	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &indexHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	skipCause := make(map[string]string)

	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		name := g.nodes[u].Task.ID
		st, ok := state[name]
		if !ok {
			return nil, fmt.Errorf("missing state for %q", name)
		}

		switch st {
		case StatePending, StateReady:
			state[name] = StateSkipped
			skipCause[name] = taskID
		case StateRunning:
			return nil, fmt.Errorf("invariant violation: downstream task %q is running during failure propagation", name)
		default:
			// Terminal already (succeeded impossible here since it is
			// downstream of a failure that just occurred, but failed/skipped
			// from a prior cascade are left with their existing skip-cause).
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}

	return skipCause, nil
}
