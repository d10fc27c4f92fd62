package cli

import (
	"fmt"
	"strings"

	"taskflow/internal/cache"
	"taskflow/internal/fingerprint"
	"taskflow/internal/graph"
	"taskflow/internal/value"
)

// PlanStep is one line of a dry-run report: the task's position in
// topological order and whether a cache lookup would hit without running
// anything, grounded in the Python original's plan mode (SPEC_FULL.md §10).
type PlanStep struct {
	TaskID      string
	CacheStatus string // "hit" | "miss" | "unknown" (depends on an upstream result) | "bypass" (not cacheable)
}

// Plan reports the topological dispatch order of g and, for every task
// whose arguments contain no unresolved refs, whether it would be a cache
// hit. Tasks whose args reference a sibling's result can't be previewed
// without running their upstream dependency first, so they're reported as
// "unknown" rather than guessed at.
func Plan(g *graph.Graph, c cache.Cache) ([]PlanStep, error) {
	steps := make([]PlanStep, 0, len(g.TaskIDs()))
	for _, id := range g.TopologicalOrder() {
		node, ok := g.Node(id)
		if !ok {
			return nil, fmt.Errorf("plan: unknown task %q", id)
		}
		steps = append(steps, PlanStep{TaskID: id, CacheStatus: planStatus(node.Task, c)})
	}
	return steps, nil
}

func planStatus(t graph.Task, c cache.Cache) string {
	if !t.Cacheable {
		return "bypass"
	}
	for _, a := range t.Args {
		if value.ContainsRef(a) {
			return "unknown"
		}
	}
	key, err := fingerprint.Fingerprint(t.FuncRef, t.Args)
	if err != nil {
		return "unknown"
	}
	has, err := c.Has(key)
	if err != nil || !has {
		return "miss"
	}
	return "hit"
}

// FormatPlan renders steps as the one-line-per-task report printed for
// `taskflow run --plan`.
func FormatPlan(steps []PlanStep) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "%s\t%s\n", s.TaskID, s.CacheStatus)
	}
	return b.String()
}
