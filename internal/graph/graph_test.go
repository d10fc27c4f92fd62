package graph

import "testing"

func chainTasks() []Task {
	return []Task{
		{ID: "a", FuncRef: "f", Cacheable: true},
		{ID: "b", FuncRef: "f", Deps: []string{"a"}, Cacheable: true},
		{ID: "c", FuncRef: "f", Deps: []string{"b"}, Cacheable: true},
	}
}

func TestNewBuildsLinearChain(t *testing.T) {
	g, err := New("wf", chainTasks())
	if err != nil {
		t.Fatal(err)
	}
	order := g.TopologicalOrder()
	if len(order) != 3 {
		t.Fatalf("got %d tasks in topo order, want 3", len(order))
	}
	da, _ := g.Depth("a")
	db, _ := g.Depth("b")
	dc, _ := g.Depth("c")
	if !(da < db && db < dc) {
		t.Fatalf("depths not strictly increasing: a=%d b=%d c=%d", da, db, dc)
	}
}

func TestNewRejectsCycle(t *testing.T) {
	tasks := []Task{
		{ID: "a", FuncRef: "f", Deps: []string{"b"}},
		{ID: "b", FuncRef: "f", Deps: []string{"a"}},
	}
	_, err := New("wf", tasks)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	var cycleErr *CycleError
	if ce, ok := err.(*CycleError); ok {
		cycleErr = ce
	}
	if cycleErr == nil {
		t.Fatalf("expected *CycleError, got %T: %v", err, err)
	}
}

func TestNewRejectsDuplicateID(t *testing.T) {
	tasks := []Task{
		{ID: "a", FuncRef: "f"},
		{ID: "a", FuncRef: "g"},
	}
	if _, err := New("wf", tasks); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestNewRejectsDanglingDep(t *testing.T) {
	tasks := []Task{
		{ID: "a", FuncRef: "f", Deps: []string{"missing"}},
	}
	if _, err := New("wf", tasks); err == nil {
		t.Fatal("expected dangling dependency error")
	}
}

func TestGraphHashStableAcrossInsertionOrder(t *testing.T) {
	g1, err := New("wf", chainTasks())
	if err != nil {
		t.Fatal(err)
	}
	reversed := []Task{chainTasks()[2], chainTasks()[1], chainTasks()[0]}
	g2, err := New("wf", reversed)
	if err != nil {
		t.Fatal(err)
	}
	if g1.Hash() != g2.Hash() {
		t.Fatalf("graph hash depends on insertion order: %s != %s", g1.Hash(), g2.Hash())
	}
}

func TestFailAndPropagateSkipsDescendants(t *testing.T) {
	tasks := []Task{
		{ID: "a", FuncRef: "f"},
		{ID: "b", FuncRef: "f", Deps: []string{"a"}},
		{ID: "c", FuncRef: "f", Deps: []string{"a"}},
	}
	g, err := New("wf", tasks)
	if err != nil {
		t.Fatal(err)
	}
	st := NewExecutionState(g)
	if err := Transition(st, "a", StatePending, StateReady); err != nil {
		t.Fatal(err)
	}
	if err := Transition(st, "a", StateReady, StateRunning); err != nil {
		t.Fatal(err)
	}

	cause, err := FailAndPropagate(g, st, "a")
	if err != nil {
		t.Fatal(err)
	}
	if st["a"] != StateFailed {
		t.Fatalf("a should be failed, got %s", st["a"])
	}
	for _, id := range []string{"b", "c"} {
		if st[id] != StateSkipped {
			t.Fatalf("%s should be skipped, got %s", id, st[id])
		}
		if cause[id] != "a" {
			t.Fatalf("%s skip-cause = %q, want %q", id, cause[id], "a")
		}
	}
}
