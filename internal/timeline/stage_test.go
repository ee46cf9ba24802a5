package timeline

import (
	"testing"
	"time"

	"github.com/scribeflow/timeline-gateway/internal/event"
)

func mkEvent(t *testing.T, frame string) *event.RawEvent {
	t.Helper()
	ev, err := event.Decode([]byte(frame), time.Now())
	if err != nil {
		t.Fatalf("decode %s: %v", frame, err)
	}
	return ev
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  StageKey
	}{
		{"planning started", `{"type":"planning_started"}`, StagePlanning},
		{"planning progress", `{"type":"progress:plan","pct":30}`, StagePlanning},
		{"files prefix", `{"type":"files:processing","name":"draft.docx"}`, StageFiles},
		{"file processing alias", `{"type":"file_processing"}`, StageFiles},
		{"search type prefix", `{"type":"search_started","query":"q"}`, StageResearch},
		{"research node", `{"type":"node_update","node":"arxiv"}`, StageResearch},
		{"scholar node", `{"type":"node_update","node":"scholar"}`, StageResearch},
		{"sources update", `{"type":"sources_update"}`, StageRetrieval},
		{"retrieval progress", `{"type":"progress:retrieval","pct":10}`, StageRetrieval},
		{"writer started", `{"type":"writer_started"}`, StageWriting},
		{"writer node", `{"type":"node_update","node":"writer"}`, StageWriting},
		{"token stream", `{"type":"token","text":"a"}`, StageWriting},
		{"evaluator started", `{"type":"evaluator_started"}`, StageEvaluation},
		{"evaluator feedback", `{"type":"evaluator_feedback","feedback_samples":[]}`, StageEvaluation},
		{"formatter started", `{"type":"formatter_started"}`, StageEvaluation},

		// agent-tag inference applies only when no type rule matched
		{"agent planner", `{"type":"agent:status","agent":"planner"}`, StagePlanning},
		{"agent search tool", `{"type":"agent:tool","agent":"search"}`, StageResearch},
		{"agent research swarm", `{"type":"agent:result","agent":"research_swarm"}`, StageResearch},
		{"agent retriever", `{"type":"agent:tool","agent":"retriever"}`, StageRetrieval},
		{"agent writer", `{"type":"agent:status","agent":"Writer"}`, StageWriting},
		{"agent qa", `{"type":"agent:result","agent":"qa"}`, StageEvaluation},

		// type rule wins even when the agent tag says otherwise
		{"type beats agent", `{"type":"sources_update","agent":"writer"}`, StageRetrieval},

		{"unknown agent tag", `{"type":"agent:status","agent":"mystery"}`, StageOther},
		{"unrecognized type", `{"type":"heartbeat"}`, StageOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := mkEvent(t, tt.frame)
			if got := Classify(ev); got != tt.want {
				t.Errorf("Classify(%s) = %q, want %q", tt.frame, got, tt.want)
			}
			// pure: a second call must agree
			if again := Classify(ev); again != Classify(ev) {
				t.Errorf("classification unstable for %s", tt.frame)
			}
		})
	}
}

func TestOrderEndsWithCatchAll(t *testing.T) {
	if Order[len(Order)-1] != StageOther {
		t.Fatalf("catch-all must trail the pipeline, got %v", Order)
	}
	seen := map[StageKey]bool{}
	for _, s := range Order {
		if seen[s] {
			t.Errorf("duplicate stage %q", s)
		}
		seen[s] = true
	}
}
