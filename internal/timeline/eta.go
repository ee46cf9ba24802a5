package timeline

import (
	"encoding/json"
	"math"
)

// expectedDuration is the assumed wall-clock budget per stage, in seconds.
// Like the progress point values, these are placeholders calibrated by eye
// against typical generations, not a backend contract.
var expectedDuration = map[StageKey]float64{
	StagePlanning:   6,
	StageFiles:      5,
	StageResearch:   25,
	StageRetrieval:  8,
	StageWriting:    30,
	StageEvaluation: 10,
}

// ETA is the predicted remaining time for a stage. Three states: unknown
// (stage has no events yet), done (progress reached 100), or a concrete
// number of seconds. It serializes as null, "done", or a number.
type ETA struct {
	Seconds int64
	Done    bool
	Known   bool
}

// MarshalJSON renders the tri-state wire form consumed by the UI.
func (e ETA) MarshalJSON() ([]byte, error) {
	switch {
	case !e.Known:
		return []byte("null"), nil
	case e.Done:
		return json.Marshal("done")
	default:
		return json.Marshal(e.Seconds)
	}
}

// Predict estimates the remaining seconds for a stage from its first event
// timestamp, the current time, and the current progress percentage. Both
// timestamps are unix values in either second or millisecond resolution;
// anything above 1e12 is treated as milliseconds.
func Predict(stage StageKey, firstEventTS, nowTS, progressPct float64) ETA {
	if firstEventTS == 0 {
		return ETA{}
	}
	if progressPct >= 100 {
		return ETA{Known: true, Done: true}
	}

	expected, ok := expectedDuration[stage]
	if !ok {
		return ETA{}
	}

	elapsed := toSeconds(nowTS) - toSeconds(firstEventTS)
	remaining := expected*(1-progressPct/100) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return ETA{Known: true, Seconds: int64(math.Floor(remaining))}
}

func toSeconds(ts float64) float64 {
	if ts > 1e12 {
		return ts / 1000
	}
	return ts
}
