package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Envelope kinds are the type values consumed directly into session state
// instead of the generic raw log.
const (
	KindContent    = "content"
	KindThinking   = "thinking"
	KindMetrics    = "metrics"
	KindDerivative = "derivative_ready"
	KindDone       = "done"
)

// RawEvent is one decoded progress message from the orchestrator stream.
// The backend's event vocabulary is unversioned: only Type is guaranteed,
// everything else is advisory. The full original payload is preserved in
// Fields so no unknown field is ever lost. Events are immutable once
// appended to a session log.
type RawEvent struct {
	Seq       int
	Type      string
	Agent     string
	Node      string
	Timestamp float64 // raw wire value, second or millisecond resolution, 0 if absent
	Received  time.Time
	Fields    map[string]any
}

// Decode parses one wire frame into a RawEvent. The only requirement is a
// JSON object with a string "type" field; all other fields pass through
// untouched into the Fields bag.
func Decode(frame []byte, received time.Time) (*RawEvent, error) {
	if !gjson.ValidBytes(frame) {
		return nil, fmt.Errorf("invalid json frame")
	}
	typ := gjson.GetBytes(frame, "type")
	if typ.Type != gjson.String || typ.Str == "" {
		return nil, fmt.Errorf("frame missing type discriminator")
	}

	var fields map[string]any
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	ev := &RawEvent{
		Type:     typ.Str,
		Agent:    gjson.GetBytes(frame, "agent").Str,
		Node:     gjson.GetBytes(frame, "node").Str,
		Received: received,
		Fields:   fields,
	}

	// timestamp arrives as a number or a numeric string depending on
	// which backend agent emitted the event
	switch ts := gjson.GetBytes(frame, "timestamp"); ts.Type {
	case gjson.Number:
		ev.Timestamp = ts.Num
	case gjson.String:
		if f, err := strconv.ParseFloat(ts.Str, 64); err == nil {
			ev.Timestamp = f
		}
	}

	return ev, nil
}

// Str returns the named payload field as a string, or "" when absent or
// not a string.
func (e *RawEvent) Str(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// Float returns the named payload field as a float64 and whether it was
// present as a number.
func (e *RawEvent) Float(key string) (float64, bool) {
	f, ok := e.Fields[key].(float64)
	return f, ok
}

// Text returns the streamed-text payload of a content or thinking
// envelope, checking the field names the backend has been observed to use.
func (e *RawEvent) Text() string {
	for _, key := range []string{"text", "content", "delta"} {
		if s := e.Str(key); s != "" {
			return s
		}
	}
	return ""
}

// When returns the event's own timestamp normalized to a time.Time,
// falling back to arrival time when the backend omitted one. Values above
// 1e12 are treated as milliseconds, everything else as seconds.
func (e *RawEvent) When() time.Time {
	if e.Timestamp == 0 {
		return e.Received
	}
	ms := e.Timestamp
	if ms <= 1e12 {
		ms *= 1000
	}
	return time.UnixMilli(int64(ms))
}

// MarshalJSON emits the original wire payload, so exported logs round-trip
// the backend's open schema rather than this package's view of it.
func (e *RawEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields)
}

// Derivative is an announcement that a downloadable artifact became
// available mid- or post-task.
type Derivative struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Derivative extracts the artifact announcement from a derivative_ready
// envelope. ok is false when either required field is missing.
func (e *RawEvent) Derivative() (Derivative, bool) {
	d := Derivative{Kind: e.Str("kind"), URL: e.Str("url")}
	if d.Kind == "" || d.URL == "" {
		return Derivative{}, false
	}
	return d, true
}
