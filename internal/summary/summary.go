// Package summary produces the structured run record the scheduler emits
// on termination (spec.md §4.7), with byte-stable JSON encoding modeled on
// the teacher's hand-rolled ExecutionTrace marshaler so equal RunSummary
// values always encode to identical bytes. Each run carries its own RunID
// and timestamps, so summaries of two separate runs differ in those fields.
package summary

import (
	"bytes"
	"encoding/json"
	"time"

	"taskflow/internal/value"
)

// Outcome is one task's terminal record (spec.md §3's TaskOutcome).
type Outcome struct {
	TaskID       string
	Status       string // succeeded | failed | skipped
	Attempts     int
	StartedAt    time.Duration // monotonic, relative to run start
	EndedAt      time.Duration
	WallTime     time.Duration
	Cached       bool
	Result       *value.Value // set only when Status == succeeded
	ErrorKind    string       // set only when Status == failed
	ErrorMessage string
	SkipCause    string // set only when Status == skipped
}

// RunSummary is spec.md §4.7's emitted record: workflow name, wall-clock
// start/end, and outcomes in completion order. GraphHash and RunID are
// supplemented fields (SPEC_FULL.md §10): GraphHash identifies which
// workflow revision produced the run, RunID distinguishes repeated runs of
// the same workflow from one another in logs and stored summaries.
type RunSummary struct {
	WorkflowName string
	RunID        string
	GraphHash    string
	StartedAt    time.Time
	EndedAt      time.Time
	Outcomes     []Outcome // completion order, not submission order
}

// TallyByStatus returns the count of outcomes per terminal status.
func (s *RunSummary) TallyByStatus() map[string]int {
	tally := make(map[string]int)
	for _, o := range s.Outcomes {
		tally[o.Status]++
	}
	return tally
}

// TotalAttempts sums attempts used across every outcome.
func (s *RunSummary) TotalAttempts() int {
	total := 0
	for _, o := range s.Outcomes {
		total += o.Attempts
	}
	return total
}

// TotalRetried counts outcomes that needed more than one attempt.
func (s *RunSummary) TotalRetried() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Attempts > 1 {
			n++
		}
	}
	return n
}

// TotalCacheHits counts outcomes synthesized from a cache hit.
func (s *RunSummary) TotalCacheHits() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Cached {
			n++
		}
	}
	return n
}

// LongestTask returns the task id with the greatest wall-time, or "" if
// there are no outcomes.
func (s *RunSummary) LongestTask() (string, time.Duration) {
	var id string
	var longest time.Duration
	for _, o := range s.Outcomes {
		if o.WallTime > longest {
			longest = o.WallTime
			id = o.TaskID
		}
	}
	return id, longest
}

// CanonicalJSON returns the byte-stable JSON encoding used for golden-file
// comparisons and --summary-json output.
func (s *RunSummary) CanonicalJSON() ([]byte, error) {
	return json.Marshal(s)
}

// MarshalJSON fixes field order and omits empty optional outcome fields,
// mirroring the teacher's ExecutionTrace.MarshalJSON.
func (s RunSummary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeKV := func(first bool, key string, val any) error {
		if !first {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(vb)
		return nil
	}

	if err := writeKV(true, "workflowName", s.WorkflowName); err != nil {
		return nil, err
	}
	if err := writeKV(false, "runId", s.RunID); err != nil {
		return nil, err
	}
	if err := writeKV(false, "graphHash", s.GraphHash); err != nil {
		return nil, err
	}
	if err := writeKV(false, "startedAt", s.StartedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if err := writeKV(false, "endedAt", s.EndedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if err := writeKV(false, "tallyByStatus", s.TallyByStatus()); err != nil {
		return nil, err
	}
	if err := writeKV(false, "totalAttempts", s.TotalAttempts()); err != nil {
		return nil, err
	}
	if err := writeKV(false, "totalRetried", s.TotalRetried()); err != nil {
		return nil, err
	}
	if err := writeKV(false, "totalCacheHits", s.TotalCacheHits()); err != nil {
		return nil, err
	}

	buf.WriteString(",\"outcomes\":[")
	for i, o := range s.Outcomes {
		if i > 0 {
			buf.WriteByte(',')
		}
		ob, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		buf.Write(ob)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order on Outcome and omits empty optionals
// (result/error/skip-cause), matching the pattern of TraceEvent.MarshalJSON.
func (o Outcome) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, val any) error {
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(vb)
		return nil
	}

	if err := write("taskId", o.TaskID); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := write("status", o.Status); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := write("attempts", o.Attempts); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := write("startedAtMs", o.StartedAt.Milliseconds()); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := write("endedAtMs", o.EndedAt.Milliseconds()); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := write("wallTimeMs", o.WallTime.Milliseconds()); err != nil {
		return nil, err
	}
	if o.Cached {
		buf.WriteByte(',')
		if err := write("cached", true); err != nil {
			return nil, err
		}
	}
	if o.Result != nil {
		buf.WriteByte(',')
		if err := write("result", *o.Result); err != nil {
			return nil, err
		}
	}
	if o.ErrorKind != "" {
		buf.WriteByte(',')
		if err := write("errorKind", o.ErrorKind); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		if err := write("errorMessage", o.ErrorMessage); err != nil {
			return nil, err
		}
	}
	if o.SkipCause != "" {
		buf.WriteByte(',')
		if err := write("skipCause", o.SkipCause); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reverses MarshalJSON's millisecond encoding back into
// time.Duration. Marshaling then unmarshaling an Outcome yields an equal
// value when its durations are whole milliseconds; any sub-millisecond
// part of StartedAt, EndedAt or WallTime is dropped by the encoding.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var aux struct {
		TaskID       string       `json:"taskId"`
		Status       string       `json:"status"`
		Attempts     int          `json:"attempts"`
		StartedAtMs  int64        `json:"startedAtMs"`
		EndedAtMs    int64        `json:"endedAtMs"`
		WallTimeMs   int64        `json:"wallTimeMs"`
		Cached       bool         `json:"cached"`
		Result       *value.Value `json:"result"`
		ErrorKind    string       `json:"errorKind"`
		ErrorMessage string       `json:"errorMessage"`
		SkipCause    string       `json:"skipCause"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = Outcome{
		TaskID:       aux.TaskID,
		Status:       aux.Status,
		Attempts:     aux.Attempts,
		StartedAt:    time.Duration(aux.StartedAtMs) * time.Millisecond,
		EndedAt:      time.Duration(aux.EndedAtMs) * time.Millisecond,
		WallTime:     time.Duration(aux.WallTimeMs) * time.Millisecond,
		Cached:       aux.Cached,
		Result:       aux.Result,
		ErrorKind:    aux.ErrorKind,
		ErrorMessage: aux.ErrorMessage,
		SkipCause:    aux.SkipCause,
	}
	return nil
}
