// Package fingerprint derives the deterministic, content-addressed cache key
// from a function reference and its resolved arguments.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"taskflow/internal/value"
)

// version is written into every digest so a future change to the encoding
// rules changes every fingerprint rather than silently colliding with the
// previous scheme.
const version byte = 1

// Error reports that an argument tree could not be fingerprinted because it
// contains a Ref that was not resolved before dispatch, or some other value
// outside the JSON value set. Per spec.md §7, a FingerprintError downgrades
// the task to cache-bypass; it is not a task failure.
type Error struct {
	FuncRef string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("fingerprint: %s: %s", e.FuncRef, e.Reason)
}

var errUnresolvedRef = errors.New("argument contains an unresolved ref")

// Fingerprint computes the hex-encoded sha256 digest of (funcRef, args),
// canonicalizing the argument tree so that map keys are always visited in
// sorted order and integers never collide with equal-valued floats.
func Fingerprint(funcRef string, args []value.Value) (string, error) {
	for _, a := range args {
		if value.ContainsRef(a) {
			return "", &Error{FuncRef: funcRef, Reason: errUnresolvedRef.Error()}
		}
	}

	h := sha256.New()
	h.Write([]byte{version})

	writeField := func(data []byte) {
		n := uint64(len(data))
		var lenBytes [8]byte
		for i := 0; i < 8; i++ {
			lenBytes[7-i] = byte(n >> (8 * i))
		}
		h.Write(lenBytes[:])
		h.Write(data)
	}

	writeField([]byte(funcRef))
	writeField([]byte{byte(len(args))})
	for _, a := range args {
		if err := writeValue(writeField, a); err != nil {
			return "", &Error{FuncRef: funcRef, Reason: err.Error()}
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// tag bytes distinguish kinds so that, e.g., the empty string and the empty
// sequence never collide, and an int and an equal-valued float never collide.
const (
	tagNull byte = iota
	tagBoolFalse
	tagBoolTrue
	tagInt
	tagFloat
	tagString
	tagSeq
	tagMap
)

func writeValue(writeField func([]byte), v value.Value) error {
	switch v.Kind() {
	case value.KindNull:
		writeField([]byte{tagNull})
		return nil
	case value.KindBool:
		b, _ := v.Bool()
		if b {
			writeField([]byte{tagBoolTrue})
		} else {
			writeField([]byte{tagBoolFalse})
		}
		return nil
	case value.KindInt:
		i, _ := v.Int()
		writeField([]byte{tagInt})
		writeField([]byte(fmt.Sprintf("%d", i)))
		return nil
	case value.KindFloat:
		f, _ := v.Float()
		writeField([]byte{tagFloat})
		writeField([]byte(fmt.Sprintf("%g", f)))
		return nil
	case value.KindString:
		s, _ := v.String()
		writeField([]byte{tagString})
		writeField([]byte(s))
		return nil
	case value.KindSeq:
		seq, _ := v.Seq()
		writeField([]byte{tagSeq})
		writeField([]byte{byte(len(seq))})
		for _, e := range seq {
			if err := writeValue(writeField, e); err != nil {
				return err
			}
		}
		return nil
	case value.KindMap:
		m, _ := v.Map()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeField([]byte{tagMap})
		writeField([]byte{byte(len(keys))})
		for _, k := range keys {
			writeField([]byte(k))
			if err := writeValue(writeField, m[k]); err != nil {
				return err
			}
		}
		return nil
	case value.KindRef:
		return errUnresolvedRef
	default:
		return fmt.Errorf("value outside the JSON value set (kind=%d)", v.Kind())
	}
}
