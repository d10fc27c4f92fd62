// Package workflow loads and validates the external JSON workflow
// description (spec.md §6) into a graph.Graph, the concrete external
// collaborator SPEC_FULL.md §6.1 names as the swappable front end to the
// scheduling core.
package workflow

import (
	"fmt"

	"taskflow/internal/value"
)

// taskDoc mirrors spec.md §6's TaskSpec JSON shape. Fields are pointers
// where a distinct "absent" is needed to apply a default.
type taskDoc struct {
	ID        string          `json:"id"`
	Fn        string          `json:"fn"`
	Args      []value.Value   `json:"args"`
	Deps      []string        `json:"deps"`
	Retries   *int            `json:"retries"`
	Timeout   *float64        `json:"timeout"`
	Tags      []string        `json:"tags"`
	Cacheable *bool           `json:"cacheable"`
}

// workflowDoc mirrors spec.md §6's top-level workflow document.
type workflowDoc struct {
	Name  string    `json:"name"`
	Tasks []taskDoc `json:"tasks"`
}

// SchemaError reports a field-level validation failure, naming the
// offending path (spec.md §6's "SchemaError listing the offending path").
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error at %s: %s", e.Path, e.Reason)
}

func schemaErrorf(path, format string, args ...any) error {
	return &SchemaError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
