// Package graph models a workflow as an immutable, validated DAG plus the
// mutable per-run state the scheduler drives through it.
package graph

import "taskflow/internal/value"

// GraphHash is the deterministic identity of a Graph, derived solely from
// task definitions and dependency structure — stable across insertion order.
type GraphHash string

func (h GraphHash) String() string { return string(h) }

// TaskDefHash is the deterministic identity of a single task's declarative
// definition, used as a component of GraphHash and exposed for diagnostics.
type TaskDefHash string

func (h TaskDefHash) String() string { return string(h) }

// Task is the immutable, validated definition of one workflow node
// (spec.md §3's TaskSpec).
type Task struct {
	ID           string
	FuncRef      string
	Args         []value.Value
	Deps         []string
	Retries      int
	TimeoutSec   float64 // 0 means unbounded
	Tags         []string
	Cacheable    bool
}

// Edge represents a dependency relation: To depends on From.
type Edge struct {
	From string
	To   string
}

// Node is an immutable node in the Graph, carrying the task definition plus
// its position in the graph's canonical ordering.
type Node struct {
	Task           Task
	DefinitionHash TaskDefHash
	canonicalIndex int
}

func (n *Node) CanonicalIndex() int { return n.canonicalIndex }
