package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

type edgeIndex struct {
	from int
	to   int
}

// Graph is an immutable, validated DAG definition built from a Workflow. It
// is safe for concurrent read access — the scheduler is its only mutator of
// any associated runtime state, and that state lives outside Graph (see
// state.go's ExecutionState).
type Graph struct {
	Name string

	nodesByID map[string]*Node
	nodes     []*Node // canonical order

	edges []edgeIndex

	outgoing [][]int
	incoming [][]int
	indeg    []int
	depth    []int

	hash GraphHash
}

// New builds and validates a Graph from a flat task list and dependency
// edges derived from each task's Deps field. Validation rejects empty or
// duplicate ids, edges referencing unknown tasks, self-loops, and any
// cycle. A dependency listed more than once collapses to a single edge.
func New(name string, tasks []Task) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, invalidf("workflow %q has no tasks", name)
	}

	nodesByID := make(map[string]*Node, len(tasks))
	nodes := make([]*Node, 0, len(tasks))

	for _, t := range tasks {
		if t.ID == "" {
			return nil, invalidf("task id is required")
		}
		if _, exists := nodesByID[t.ID]; exists {
			return nil, invalidf("duplicate task id: %q", t.ID)
		}
		node := &Node{Task: t, DefinitionHash: computeTaskDefHash(t)}
		nodesByID[t.ID] = node
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool {
		ai, aj := nodes[i], nodes[j]
		if ai.DefinitionHash != aj.DefinitionHash {
			return ai.DefinitionHash < aj.DefinitionHash
		}
		return ai.Task.ID < aj.Task.ID
	})
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	idToIndex := make(map[string]int, len(nodes))
	for _, n := range nodes {
		idToIndex[n.Task.ID] = n.canonicalIndex
	}

	var edges []Edge
	for _, t := range tasks {
		for _, dep := range t.Deps {
			edges = append(edges, Edge{From: dep, To: t.ID})
		}
	}

	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		fromIdx, okFrom := idToIndex[e.From]
		toIdx, okTo := idToIndex[e.To]
		if !okFrom {
			return nil, invalidf("task %q depends on unknown task %q", e.To, e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown task (to): %q", e.To)
		}
		if e.From == e.To {
			return nil, invalidf("self-loop: %q depends on itself", e.From)
		}
		pair := edgeIndex{from: fromIdx, to: toIdx}
		if _, dup := seen[pair]; dup {
			continue // duplicate dep entries collapse silently, unlike a malformed edge list
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &Graph{
		Name:      name,
		nodesByID: nodesByID,
		nodes:     nodes,
		edges:     mapped,
		outgoing:  outgoing,
		incoming:  incoming,
		indeg:     indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}

	g.depth = g.computeDepth()
	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity for this graph.
func (g *Graph) Hash() GraphHash { return g.hash }

// Node returns a node by task id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodesByID[id]
	return n, ok
}

// Nodes returns the nodes in canonical order. The caller must not mutate.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// TaskIDs returns every task id in canonical order.
func (g *Graph) TaskIDs() []string {
	out := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Task.ID
	}
	return out
}

// Dependents returns the ids of tasks that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	n, ok := g.nodesByID[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.outgoing[n.canonicalIndex]))
	for _, idx := range g.outgoing[n.canonicalIndex] {
		out = append(out, g.nodes[idx].Task.ID)
	}
	return out
}

// Dependencies returns the ids of tasks that id directly depends on.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodesByID[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[n.canonicalIndex]))
	for _, idx := range g.incoming[n.canonicalIndex] {
		out = append(out, g.nodes[idx].Task.ID)
	}
	return out
}

// Depth returns the deterministic topological depth of id: the length of
// the longest path from any root to id. The scheduler does not use it for
// dispatch ordering; tasks made ready in the same transition are ordered
// by task id.
func (g *Graph) Depth(id string) (int, bool) {
	n, ok := g.nodesByID[id]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.topoOrderIndices() {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic topological ordering of task
// ids. Since the graph is validated on construction, this never fails —
// used directly by plan mode (SPEC_FULL.md §10).
func (g *Graph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	ids := make([]string, 0, len(order))
	for _, idx := range order {
		ids = append(ids, g.nodes[idx].Task.ID)
	}
	return ids
}

func (g *Graph) computeGraphHash() GraphHash {
	h := sha256.New()

	writeField := func(data []byte) {
		n := uint64(len(data))
		var lenBytes [8]byte
		for i := 0; i < 8; i++ {
			lenBytes[7-i] = byte(n >> (8 * i))
		}
		h.Write(lenBytes[:])
		h.Write(data)
	}

	writeField([]byte{byte(len(g.nodes))})
	for _, n := range g.nodes {
		writeField([]byte(n.DefinitionHash))
	}

	writeField([]byte{byte(len(g.edges))})
	for _, e := range g.edges {
		writeField([]byte{byte(e.from >> 24), byte(e.from >> 16), byte(e.from >> 8), byte(e.from)})
		writeField([]byte{byte(e.to >> 24), byte(e.to >> 16), byte(e.to >> 8), byte(e.to)})
	}

	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}
