// Package value defines the canonical tagged-union argument/result type that
// crosses every boundary in taskflow: function arguments, cached results,
// and isolated-pool serialization all speak this form, never native Go types.
package value

import (
	"fmt"
	"sort"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSeq
	KindMap
	// KindRef is not a JSON value; it is resolved away before a task reaches
	// a pool. See graph.Task.Args and scheduler's ref-resolution step.
	KindRef
)

// Value is an immutable tagged union over the JSON value set plus Ref, the
// workflow-description placeholder for "the output of another task".
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Int(i int64) Value            { return Value{kind: KindInt, i: i} }
func Float(f float64) Value        { return Value{kind: KindFloat, f: f} }
func String(s string) Value        { return Value{kind: KindString, s: s} }
func Ref(taskID string) Value      { return Value{kind: KindRef, s: taskID} }

func Seq(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindSeq, seq: out}
}

func Map(m map[string]Value) Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Value{kind: KindMap, m: out}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)         { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)         { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)     { return v.f, v.kind == KindFloat }
func (v Value) String() (string, bool)     { return v.s, v.kind == KindString }
func (v Value) RefTaskID() (string, bool)  { return v.s, v.kind == KindRef }

// Seq returns the sequence's elements. The caller must not mutate the result.
func (v Value) Seq() ([]Value, bool) { return v.seq, v.kind == KindSeq }

// Map returns the map's entries. The caller must not mutate the result.
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// SortedKeys returns the map's keys in lexicographic order. Panics if v is
// not a map; callers are expected to check Kind first.
func (v Value) SortedKeys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep structural equality. Per spec.md §9's Open Question,
// an int and a float holding the same numeric value are NOT equal: 1 and
// 1.0 are distinct canonical values and must fingerprint differently.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString, KindRef:
		return a.s == b.s
	case KindSeq:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ContainsRef reports whether v or any of its descendants is a Ref, i.e.
// whether it still needs resolution before it can cross a fingerprint or a
// pool boundary.
func ContainsRef(v Value) bool {
	switch v.kind {
	case KindRef:
		return true
	case KindSeq:
		for _, e := range v.seq {
			if ContainsRef(e) {
				return true
			}
		}
		return false
	case KindMap:
		for _, e := range v.m {
			if ContainsRef(e) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// GoString formats a Value for diagnostics. It is not a serialization format.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindRef:
		return fmt.Sprintf("ref(%s)", v.s)
	case KindSeq:
		return fmt.Sprintf("seq(len=%d)", len(v.seq))
	case KindMap:
		return fmt.Sprintf("map(len=%d)", len(v.m))
	default:
		return "<invalid>"
	}
}
