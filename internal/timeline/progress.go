package timeline

import (
	"strings"

	"github.com/scribeflow/timeline-gateway/internal/event"
)

// Heuristic point values per observed event. The backend publishes no
// progress contract, so these approximate its typical event cadence.
// TODO: tune against recorded production event traces once the trace
// archive has accumulated enough sessions.
const (
	searchToolPoints     = 15
	retrieverToolPoints  = 10
	sourcesUpdatePoints  = 50
	writingFloor         = 10
	writingCeiling       = 95
	evaluatorStartPct    = 40
	evaluatorFeedbackPct = 80
)

// Estimate computes a 0–100 completion percentage for one stage from the
// events observed so far. stageEvents is the subsequence of the session
// log classified into the stage; all is the full log (some stages score
// on signals that classify elsewhere); done reports whether a terminal
// signal was observed anywhere in the session.
//
// Estimates degrade to 0 when expected signals are absent and are
// non-decreasing as more events arrive within one session.
func Estimate(stage StageKey, stageEvents, all []*event.RawEvent, done bool) float64 {
	switch stage {
	case StagePlanning:
		return estimatePlanning(stageEvents)
	case StageFiles:
		return estimateFiles(stageEvents)
	case StageResearch:
		return estimateResearch(all)
	case StageRetrieval:
		return estimateRetrieval(stageEvents)
	case StageWriting:
		return estimateWriting(stageEvents, done)
	case StageEvaluation:
		return estimateEvaluation(stageEvents)
	default:
		return 0
	}
}

func estimatePlanning(events []*event.RawEvent) float64 {
	pct := 0.0
	for _, ev := range events {
		switch {
		case ev.Type == "agent:result" && ev.Str("summary") != "":
			return 100
		case ev.Type == "planning_started" || strings.HasPrefix(ev.Type, "progress:plan"):
			pct = 50
		}
	}
	return pct
}

func estimateFiles(events []*event.RawEvent) float64 {
	pct := 0.0
	for _, ev := range events {
		switch fileStatus(ev) {
		case "processed":
			return 100
		case "processing":
			pct = 50
		}
	}
	return pct
}

func fileStatus(ev *event.RawEvent) string {
	switch ev.Type {
	case "files:processed":
		return "processed"
	case "files:processing", "file_processing":
		if s := ev.Str("status"); s == "processed" {
			return s
		}
		return "processing"
	}
	return ev.Str("status")
}

// estimateResearch scores over the full log: retriever tool calls classify
// into the retrieval stage but still evidence research activity.
func estimateResearch(all []*event.RawEvent) float64 {
	points := 0.0
	for _, ev := range all {
		agent := strings.ToLower(ev.Agent)
		switch {
		case ev.Type == "agent:result" && agentStages[agent] == StageResearch:
			return 100
		case isToolEvent(ev) && agentStages[agent] == StageResearch:
			points += searchToolPoints
		case isToolEvent(ev) && agentStages[agent] == StageRetrieval:
			points += retrieverToolPoints
		}
	}
	return min(points, 100)
}

func isToolEvent(ev *event.RawEvent) bool {
	return ev.Type == "agent:tool" || strings.HasPrefix(ev.Type, "agent:tool:")
}

func estimateRetrieval(events []*event.RawEvent) float64 {
	points := 0.0
	for _, ev := range events {
		if ev.Type == "sources_update" {
			points += sourcesUpdatePoints
		}
	}
	return min(points, 100)
}

func estimateWriting(events []*event.RawEvent, done bool) float64 {
	if done {
		return 100
	}
	started := false
	tokens := 0
	for _, ev := range events {
		if ev.Type == "writer_started" || ev.Node == "writer" {
			started = true
		}
		if strings.HasPrefix(ev.Type, "token") {
			tokens++
		}
	}
	if !started {
		return 0
	}
	return min(writingFloor+float64(tokens), writingCeiling)
}

// estimateEvaluation is override-based, not additive: the latest pipeline
// milestone wins.
func estimateEvaluation(events []*event.RawEvent) float64 {
	pct := 0.0
	for _, ev := range events {
		switch ev.Type {
		case "formatter_started":
			pct = 100
		case "evaluator_feedback":
			pct = max(pct, evaluatorFeedbackPct)
		case "evaluator_started":
			pct = max(pct, evaluatorStartPct)
		}
	}
	return pct
}
