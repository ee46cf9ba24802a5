package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/scribeflow/timeline-gateway/internal/event"
)

func rawEvent(t *testing.T, frame string) *event.RawEvent {
	t.Helper()
	ev, err := event.Decode([]byte(frame), time.Now())
	if err != nil {
		t.Fatalf("decode %s: %v", frame, err)
	}
	return ev
}

func TestAppendRawAssignsSequence(t *testing.T) {
	s := NewStore()
	s.Reset("task-1")

	for i := 0; i < 3; i++ {
		s.AppendRaw(rawEvent(t, `{"type":"agent:status"}`))
	}

	events := s.Events()
	if len(events) != 3 {
		t.Fatalf("len = %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != i {
			t.Errorf("events[%d].Seq = %d", i, ev.Seq)
		}
	}
}

func TestTextGrowthIsMonotonic(t *testing.T) {
	s := NewStore()
	s.Reset("task-1")

	prev := 0
	for _, delta := range []string{"The ", "quick ", "", "fox"} {
		s.AppendText(delta)
		s.AppendReasoning(delta)
		snap := s.Snapshot()
		if len(snap.StreamedText) < prev {
			t.Fatalf("streamed text shrank: %d -> %d", prev, len(snap.StreamedText))
		}
		if snap.ReasoningText != snap.StreamedText {
			t.Fatalf("reasoning diverged: %q vs %q", snap.ReasoningText, snap.StreamedText)
		}
		prev = len(snap.StreamedText)
	}
	if got := s.Snapshot().StreamedText; got != "The quick fox" {
		t.Errorf("streamed text = %q", got)
	}
}

func TestApplyMetricsOverwritesPerField(t *testing.T) {
	s := NewStore()
	s.Reset("task-1")

	cost := 1.2
	s.ApplyMetrics(Metrics{Cost: &cost})

	plag := 4.0
	s.ApplyMetrics(Metrics{PlagiarismScore: &plag})

	got := s.Snapshot().Metrics
	if got.Cost == nil || *got.Cost != 1.2 {
		t.Errorf("cost = %v, want 1.2 retained", got.Cost)
	}
	if got.PlagiarismScore == nil || *got.PlagiarismScore != 4 {
		t.Errorf("plagiarism = %v", got.PlagiarismScore)
	}
	if got.QualityScore != nil {
		t.Errorf("quality should stay unreported, got %v", *got.QualityScore)
	}

	cost2 := 2.5
	s.ApplyMetrics(Metrics{Cost: &cost2})
	if got := s.Snapshot().Metrics; *got.Cost != 2.5 || *got.PlagiarismScore != 4 {
		t.Errorf("second overwrite wrong: %+v", got)
	}
}

func TestDerivativesAppendWithoutDedup(t *testing.T) {
	s := NewStore()
	s.Reset("task-1")

	d := event.Derivative{Kind: "docx", URL: "https://cdn.example/a.docx"}
	s.AddDerivative(d)
	s.AddDerivative(d)

	got := s.Snapshot().Derivatives
	if len(got) != 2 {
		t.Fatalf("len = %d, duplicates must be preserved", len(got))
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := NewStore()
	s.Reset("task-a")
	s.AppendRaw(rawEvent(t, `{"type":"planning_started"}`))
	s.AppendText("body")
	s.AppendReasoning("thoughts")
	cost := 9.9
	s.ApplyMetrics(Metrics{Cost: &cost})
	s.AddDerivative(event.Derivative{Kind: "pdf", URL: "https://x"})
	s.MarkDone()
	s.SetConnState(StateOpen)

	s.Reset("task-b")

	snap := s.Snapshot()
	if snap.ID != "task-b" {
		t.Errorf("id = %q", snap.ID)
	}
	if len(snap.Events) != 0 || snap.StreamedText != "" || snap.ReasoningText != "" {
		t.Errorf("accumulated state survived reset: %+v", snap)
	}
	if snap.Metrics.Cost != nil || len(snap.Derivatives) != 0 || snap.Done {
		t.Errorf("derived state survived reset: %+v", snap)
	}
	if snap.ConnState != StateIdle {
		t.Errorf("conn state = %q", snap.ConnState)
	}

	// sequence numbering restarts with the new session
	s.AppendRaw(rawEvent(t, `{"type":"planning_started"}`))
	if ev, _ := s.Event(0); ev == nil || ev.Seq != 0 {
		t.Errorf("sequence did not restart: %+v", ev)
	}
}

func TestEventLookup(t *testing.T) {
	s := NewStore()
	s.Reset("task-1")
	s.AppendRaw(rawEvent(t, `{"type":"a"}`))

	if _, ok := s.Event(0); !ok {
		t.Error("seq 0 should exist")
	}
	if _, ok := s.Event(1); ok {
		t.Error("seq 1 should not exist")
	}
	if _, ok := s.Event(-1); ok {
		t.Error("negative seq should not exist")
	}
}

func TestExportJSON(t *testing.T) {
	s := NewStore()
	s.Reset("task-9")
	s.AppendRaw(rawEvent(t, `{"type":"planning_started"}`))
	s.AppendRaw(rawEvent(t, `{"type":"agent:result","agent":"planner","summary":"prompt_orchestrated"}`))

	doc, err := s.ExportJSON()
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		SessionID string           `json:"session_id"`
		Events    []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(doc, &got); err != nil {
		t.Fatalf("export is not valid json: %v", err)
	}
	if got.SessionID != "task-9" {
		t.Errorf("session_id = %q", got.SessionID)
	}
	if len(got.Events) != 2 {
		t.Fatalf("exported %d events", len(got.Events))
	}
	if got.Events[1]["summary"] != "prompt_orchestrated" {
		t.Errorf("payload fields lost in export: %v", got.Events[1])
	}
}
