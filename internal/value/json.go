package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// refMarker is the workflow-description shape {"ref": "<task_id>"} that
// decodes to a Value of KindRef. Confirmed load-bearing by the original
// implementation's _resolve_refs walk, not a distillation artifact.
type refMarker struct {
	Ref string `json:"ref"`
}

// MarshalJSON encodes a Value using the canonical JSON the cache and the
// isolated pool both rely on. Object keys come out in sorted order, since
// encoding/json sorts the keys of map[string]Value, so equal values encode
// to identical bytes.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindRef:
		return json.Marshal(refMarker{Ref: v.s})
	case KindSeq:
		return json.Marshal(v.seq)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("value: invalid kind %d", v.kind)
	}
}

// UnmarshalJSON decodes a Value, distinguishing ints from floats by whether
// the JSON number token contains a '.' or an exponent — the same convention
// the cache's fingerprint relies on to keep 1 and 1.0 distinct.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func fromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		return numberValue(x)
	case string:
		return String(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			cv, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = cv
		}
		return Seq(items...), nil
	case map[string]any:
		if len(x) == 1 {
			if refID, ok := x["ref"].(string); ok {
				return Ref(refID), nil
			}
		}
		m := make(map[string]Value, len(x))
		for k, e := range x {
			cv, err := fromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = cv
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported JSON type %T", raw)
	}
}

func numberValue(n json.Number) (Value, error) {
	s := n.String()
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			f, err := n.Float64()
			if err != nil {
				return Value{}, fmt.Errorf("value: invalid float %q: %w", s, err)
			}
			return Float(f), nil
		}
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return Value{}, fmt.Errorf("value: invalid number %q: %w", s, err)
		}
		return Float(f), nil
	}
	return Int(i), nil
}
