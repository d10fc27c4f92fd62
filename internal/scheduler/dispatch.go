package scheduler

import "taskflow/internal/graph"

// DispatchOrder is a pure function implementing spec.md §4.6 step 2's
// admission rule over a snapshot of ready tasks and in-flight counters: it
// performs no mutation, so it can be exercised directly by tests (and by
// diagnostics/plan tooling) without running a live scheduler loop.
//
// ready is consulted head-first. A task is admitted if, after accounting
// for every previously admitted task in this same call, the global cap and
// every tag cap it carries still have room. Once the global cap is
// exhausted the scan stops entirely — everything from that point on
// (including tasks that would have passed their own tag check) stays
// blocked, matching "while ready is non-empty and the global cap is not
// reached". A task blocked purely by tag saturation does not stop the
// scan: later ready tasks are still tried. Relative order of blocked is
// preserved, matching "tasks blocked only on tag limits are not removed
// from ready".
func DispatchOrder(
	nodes map[string]*graph.Node,
	ready []string,
	globalLimit, globalInFlight int,
	tagLimits map[string]int,
	tagInFlight map[string]int,
) (admit, blocked []string) {
	remaining := globalLimit - globalInFlight
	tagUsed := make(map[string]int, len(tagInFlight))
	for k, v := range tagInFlight {
		tagUsed[k] = v
	}

	for i, id := range ready {
		if remaining <= 0 {
			blocked = append(blocked, ready[i:]...)
			break
		}

		node := nodes[id]
		saturated := false
		if node != nil {
			for _, tag := range node.Task.Tags {
				if limit, capped := tagLimits[tag]; capped && tagUsed[tag] >= limit {
					saturated = true
					break
				}
			}
		}

		if saturated {
			blocked = append(blocked, id)
			continue
		}

		admit = append(admit, id)
		remaining--
		if node != nil {
			for _, tag := range node.Task.Tags {
				tagUsed[tag]++
			}
		}
	}

	return admit, blocked
}
