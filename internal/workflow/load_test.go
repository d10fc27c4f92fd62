package workflow

import (
	"strings"
	"testing"
)

func TestLoadAppliesDefaultsAndBuildsGraph(t *testing.T) {
	doc := `{
		"name": "wf",
		"tasks": [
			{"id": "a", "fn": "math:add", "args": [1, 2]},
			{"id": "b", "fn": "math:add", "deps": ["a"], "args": [{"ref": "a"}, 1]}
		]
	}`
	g, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.TaskIDs()) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(g.TaskIDs()))
	}
	node, ok := g.Node("b")
	if !ok {
		t.Fatal("expected node b")
	}
	if !node.Task.Cacheable {
		t.Fatal("expected default cacheable=true")
	}
	if node.Task.Retries != 0 {
		t.Fatalf("expected default retries=0, got %d", node.Task.Retries)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	doc := `{"name": "wf", "tasks": [{"id": "a", "fn": "x", "bogus": 1}]}`
	if _, err := Load([]byte(doc)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	doc := `{"name": "wf", "tasks": [{"id": "a", "fn": "x"}]}{}`
	if _, err := Load([]byte(doc)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	doc := `{"name": "wf", "tasks": [{"id": "a", "fn": "x"}, {"id": "a", "fn": "y"}]}`
	_, err := Load([]byte(doc))
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
	var se *SchemaError
	if !asSchemaError(err, &se) {
		t.Fatalf("expected SchemaError, got %T: %v", err, err)
	}
	if !strings.Contains(se.Path, "tasks[1]") {
		t.Fatalf("unexpected path: %s", se.Path)
	}
}

func TestLoadRejectsUnknownDep(t *testing.T) {
	doc := `{"name": "wf", "tasks": [{"id": "a", "fn": "x", "deps": ["missing"]}]}`
	if _, err := Load([]byte(doc)); err == nil {
		t.Fatal("expected error for unknown dep")
	}
}

func TestLoadRejectsCycle(t *testing.T) {
	doc := `{
		"name": "wf",
		"tasks": [
			{"id": "a", "fn": "x", "deps": ["b"]},
			{"id": "b", "fn": "x", "deps": ["a"]}
		]
	}`
	if _, err := Load([]byte(doc)); err == nil {
		t.Fatal("expected cycle error")
	}
}

func asSchemaError(err error, target **SchemaError) bool {
	se, ok := err.(*SchemaError)
	if !ok {
		return false
	}
	*target = se
	return true
}
