package graph

import "container/heap"

// validateAcyclic walks the graph once from every canonical root, tracking
// the current descent as an explicit stack rather than a parent-pointer
// map. The first back-edge onto that stack is both the proof a cycle
// exists and, by slicing the stack from the repeated node forward, the
// witness CycleError reports — no second pass over the graph is needed.
func (g *Graph) validateAcyclic() error {
	visited := make([]bool, len(g.nodes))
	stackPos := make([]int, len(g.nodes)) // index within stack, or -1 if not on it
	for i := range stackPos {
		stackPos[i] = -1
	}
	var stack []int

	var descend func(u int) []int
	descend = func(u int) []int {
		visited[u] = true
		stackPos[u] = len(stack)
		stack = append(stack, u)

		for _, v := range g.outgoing[u] {
			if pos := stackPos[v]; pos >= 0 {
				witness := append([]int(nil), stack[pos:]...)
				return append(witness, v)
			}
			if !visited[v] {
				if witness := descend(v); witness != nil {
					return witness
				}
			}
		}

		stackPos[u] = -1
		stack = stack[:len(stack)-1]
		return nil
	}

	for i := range g.nodes {
		if visited[i] {
			continue
		}
		if witness := descend(i); witness != nil {
			return cycleError(g.indicesToIDs(witness))
		}
	}
	return nil
}

func (g *Graph) indicesToIDs(indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = g.nodes[idx].Task.ID
	}
	return out
}

// indexHeap is a min-heap of canonical node indices, giving topoOrderIndices
// a deterministic pick among several simultaneously-ready nodes.
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices peels off zero-indegree nodes with Kahn's algorithm,
// breaking ties by canonical index so the resulting order (and anything
// derived from it, like Depth) is stable across runs.
func (g *Graph) topoOrderIndices() []int {
	remaining := make([]int, len(g.indeg))
	copy(remaining, g.indeg)

	ready := &indexHeap{}
	heap.Init(ready)
	for i, d := range remaining {
		if d == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]int, 0, len(remaining))
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		order = append(order, u)
		for _, v := range g.outgoing[u] {
			remaining[v]--
			if remaining[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}
	return order
}
