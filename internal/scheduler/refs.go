package scheduler

import (
	"fmt"

	"taskflow/internal/value"
)

// resolveRefs walks v replacing every value.KindRef with the referenced
// task's recorded result, grounded on original_source/parallelx/engine.py's
// _resolve_refs: a ref to a task that did not succeed is an error, not a
// silent null.
func resolveRefs(v value.Value, results map[string]value.Value) (value.Value, error) {
	switch v.Kind() {
	case value.KindRef:
		taskID, _ := v.RefTaskID()
		res, ok := results[taskID]
		if !ok {
			return value.Value{}, fmt.Errorf("ref to task %q did not produce a successful result", taskID)
		}
		return res, nil
	case value.KindSeq:
		items, _ := v.Seq()
		out := make([]value.Value, len(items))
		for i, item := range items {
			r, err := resolveRefs(item, results)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = r
		}
		return value.Seq(out...), nil
	case value.KindMap:
		m, _ := v.Map()
		out := make(map[string]value.Value, len(m))
		for k, item := range m {
			r, err := resolveRefs(item, results)
			if err != nil {
				return value.Value{}, err
			}
			out[k] = r
		}
		return value.Map(out), nil
	default:
		return v, nil
	}
}

func resolveArgs(args []value.Value, results map[string]value.Value) ([]value.Value, error) {
	out := make([]value.Value, len(args))
	for i, a := range args {
		r, err := resolveRefs(a, results)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
