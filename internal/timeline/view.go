package timeline

import (
	"time"

	"github.com/scribeflow/timeline-gateway/internal/event"
)

// StageView is the derived, read-only view of one pipeline stage. Views
// hold no state of their own: they are recomputed from the session log on
// every read.
type StageView struct {
	Stage       StageKey          `json:"stage"`
	Events      []*event.RawEvent `json:"events"`
	ProgressPct float64           `json:"progress_pct"`
	ETA         ETA               `json:"eta_seconds"`
}

// Build groups the ordered session log by stage and attaches progress and
// ETA estimates. done reports whether the session observed a terminal
// signal; now anchors the ETA arithmetic so the function stays pure.
func Build(events []*event.RawEvent, done bool, now time.Time) []StageView {
	grouped := make(map[StageKey][]*event.RawEvent, len(Order))
	for _, ev := range events {
		stage := Classify(ev)
		grouped[stage] = append(grouped[stage], ev)
	}

	views := make([]StageView, 0, len(Order))
	for _, stage := range Order {
		stageEvents := grouped[stage]
		view := StageView{Stage: stage, Events: stageEvents}
		if stage != StageOther {
			view.ProgressPct = Estimate(stage, stageEvents, events, done)
			view.ETA = Predict(stage, firstTimestamp(stageEvents), nowTimestamp(now), view.ProgressPct)
		}
		if view.Events == nil {
			view.Events = []*event.RawEvent{}
		}
		views = append(views, view)
	}
	return views
}

func firstTimestamp(events []*event.RawEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	return float64(events[0].When().UnixMilli())
}

func nowTimestamp(now time.Time) float64 {
	return float64(now.UnixMilli())
}
