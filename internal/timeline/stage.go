package timeline

import (
	"strings"

	"github.com/scribeflow/timeline-gateway/internal/event"
)

// StageKey names one phase of the backend writing pipeline.
type StageKey string

const (
	StagePlanning   StageKey = "planning"
	StageFiles      StageKey = "files"
	StageResearch   StageKey = "research"
	StageRetrieval  StageKey = "retrieval"
	StageWriting    StageKey = "writing"
	StageEvaluation StageKey = "evaluation"
	StageOther      StageKey = "other"
)

// Order is the fixed pipeline ordering used for timeline rendering.
// StageOther is the trailing catch-all and is excluded from the default
// filter toggles.
var Order = []StageKey{
	StagePlanning,
	StageFiles,
	StageResearch,
	StageRetrieval,
	StageWriting,
	StageEvaluation,
	StageOther,
}

var researchNodes = map[string]bool{"search": true, "arxiv": true, "scholar": true}

// agentStages maps an event's agent tag to a stage when the type itself
// is an opaque agent:* envelope.
var agentStages = map[string]StageKey{
	"planner":        StagePlanning,
	"research_swarm": StageResearch,
	"search":         StageResearch,
	"arxiv":          StageResearch,
	"scholar":        StageResearch,
	"retriever":      StageRetrieval,
	"retrieval":      StageRetrieval,
	"writer":         StageWriting,
	"formatter":      StageWriting,
	"evaluator":      StageEvaluation,
	"qa":             StageEvaluation,
}

// Classify maps one raw event to its pipeline stage. Pure and total: the
// same event always yields the same stage. Type-based rules win over
// agent-tag inference; rules are evaluated in pipeline order and the
// first match wins.
func Classify(ev *event.RawEvent) StageKey {
	typ := ev.Type

	switch {
	case typ == "planning_started" || strings.HasPrefix(typ, "progress:plan"):
		return StagePlanning
	case strings.HasPrefix(typ, "files:") || typ == "file_processing":
		return StageFiles
	case strings.HasPrefix(typ, "search") || researchNodes[ev.Node]:
		return StageResearch
	case typ == "sources_update" || strings.HasPrefix(typ, "progress:retriev"):
		return StageRetrieval
	case typ == "writer_started" || ev.Node == "writer" ||
		strings.HasPrefix(typ, "token") || strings.HasPrefix(typ, "content"):
		return StageWriting
	case typ == "evaluator_started" || typ == "evaluator_feedback" || typ == "formatter_started":
		return StageEvaluation
	}

	if strings.HasPrefix(typ, "agent:") {
		if stage, ok := agentStages[strings.ToLower(ev.Agent)]; ok {
			return stage
		}
	}

	return StageOther
}
