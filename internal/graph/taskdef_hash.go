package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"taskflow/internal/value"
)

// computeTaskDefHash hashes the declarative fields of a task definition:
// function reference, arguments, retry policy, timeout, tags, and the
// cacheable flag. Deps are deliberately excluded — they are represented
// structurally as graph edges and folded into GraphHash separately.
//
// All fields are length-prefixed to avoid ambiguity, the same technique
// used by fingerprint.Fingerprint for argument trees.
func computeTaskDefHash(t Task) TaskDefHash {
	h := sha256.New()

	writeField := func(data []byte) {
		n := uint64(len(data))
		var lenBytes [8]byte
		for i := 0; i < 8; i++ {
			lenBytes[7-i] = byte(n >> (8 * i))
		}
		h.Write(lenBytes[:])
		h.Write(data)
	}

	writeField([]byte(t.FuncRef))

	writeField([]byte{byte(len(t.Args))})
	for _, a := range t.Args {
		writeArgValue(writeField, a)
	}

	writeField([]byte(fmt.Sprintf("%d", t.Retries)))
	writeField([]byte(fmt.Sprintf("%g", t.TimeoutSec)))

	sortedTags := make([]string, len(t.Tags))
	copy(sortedTags, t.Tags)
	sort.Strings(sortedTags)
	writeField([]byte{byte(len(sortedTags))})
	for _, tag := range sortedTags {
		writeField([]byte(tag))
	}

	if t.Cacheable {
		writeField([]byte{1})
	} else {
		writeField([]byte{0})
	}

	return TaskDefHash(hex.EncodeToString(h.Sum(nil)))
}

// writeArgValue canonicalizes a single argument for hashing. Unlike
// fingerprint.Fingerprint, this accepts KindRef values as-is (a Ref is
// itself part of the task's declarative definition before resolution).
func writeArgValue(writeField func([]byte), v value.Value) {
	switch v.Kind() {
	case value.KindNull:
		writeField([]byte{0})
	case value.KindBool:
		b, _ := v.Bool()
		if b {
			writeField([]byte{1, 1})
		} else {
			writeField([]byte{1, 0})
		}
	case value.KindInt:
		i, _ := v.Int()
		writeField([]byte(fmt.Sprintf("i%d", i)))
	case value.KindFloat:
		f, _ := v.Float()
		writeField([]byte(fmt.Sprintf("f%g", f)))
	case value.KindString:
		s, _ := v.String()
		writeField([]byte("s" + s))
	case value.KindRef:
		id, _ := v.RefTaskID()
		writeField([]byte("r" + id))
	case value.KindSeq:
		seq, _ := v.Seq()
		writeField([]byte{byte(len(seq))})
		for _, e := range seq {
			writeArgValue(writeField, e)
		}
	case value.KindMap:
		m, _ := v.Map()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		writeField([]byte{byte(len(keys))})
		for _, k := range keys {
			writeField([]byte(k))
			writeArgValue(writeField, m[k])
		}
	}
}
