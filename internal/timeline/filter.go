package timeline

import (
	"sort"
	"strings"
	"time"

	"github.com/scribeflow/timeline-gateway/internal/event"
)

// Agents derives the selectable agent facets from a session log: unique,
// case-normalized, sorted. Events without an agent tag contribute nothing.
func Agents(events []*event.RawEvent) []string {
	seen := map[string]bool{}
	var agents []string
	for _, ev := range events {
		if ev.Agent == "" {
			continue
		}
		a := strings.ToLower(ev.Agent)
		if !seen[a] {
			seen[a] = true
			agents = append(agents, a)
		}
	}
	sort.Strings(agents)
	return agents
}

// Stages returns the stage facets offered as default filter toggles: the
// fixed pipeline enumeration without the catch-all.
func Stages() []StageKey {
	return Order[:len(Order)-1]
}

// Filter returns the events passing every non-empty selected facet set.
// An empty agent set and an empty stage set impose no constraint, so no
// selection means the full log.
func Filter(events []*event.RawEvent, agents []string, stages []StageKey) []*event.RawEvent {
	agentSet := map[string]bool{}
	for _, a := range agents {
		agentSet[strings.ToLower(a)] = true
	}
	stageSet := map[StageKey]bool{}
	for _, s := range stages {
		stageSet[s] = true
	}

	out := []*event.RawEvent{}
	for _, ev := range events {
		if len(agentSet) > 0 && !agentSet[strings.ToLower(ev.Agent)] {
			continue
		}
		if len(stageSet) > 0 && !stageSet[Classify(ev)] {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// DetailView is the inspector rendering of one event: the classified
// header fields that are present, plus the complete original payload for
// debugging. Missing optional fields are omitted, never an error.
type DetailView struct {
	Seq       int            `json:"seq"`
	Type      string         `json:"type"`
	Stage     StageKey       `json:"stage"`
	Agent     string         `json:"agent,omitempty"`
	Node      string         `json:"node,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Received  time.Time      `json:"received"`
	Payload   map[string]any `json:"payload"`
}

// Inspect builds the detail view for a single event.
func Inspect(ev *event.RawEvent) DetailView {
	view := DetailView{
		Seq:      ev.Seq,
		Type:     ev.Type,
		Stage:    Classify(ev),
		Agent:    ev.Agent,
		Node:     ev.Node,
		Received: ev.Received,
		Payload:  ev.Fields,
	}
	if ev.Timestamp != 0 {
		view.Timestamp = ev.When().UTC().Format(time.RFC3339Nano)
	}
	return view
}
