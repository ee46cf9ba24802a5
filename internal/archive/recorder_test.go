package archive

import (
	"testing"
	"time"

	"github.com/scribeflow/timeline-gateway/internal/event"
	"github.com/scribeflow/timeline-gateway/internal/session"
)

func finishedSnapshot(t *testing.T) session.Snapshot {
	t.Helper()
	ev, err := event.Decode([]byte(`{"type":"planning_started"}`), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return session.Snapshot{
		ID:        "task-1",
		Events:    []*event.RawEvent{ev},
		StartedAt: time.Now(),
		Done:      true,
	}
}

// Close notifications arrive from detached goroutines, so a Record can
// straggle in after shutdown has closed the recorder. It must be dropped,
// not crash the process.
func TestRecordAfterCloseIsNoOp(t *testing.T) {
	r := NewRecorder(nil)
	r.Close()

	defer func() {
		if p := recover(); p != nil {
			t.Fatalf("Record after Close panicked: %v", p)
		}
	}()
	r.Record(finishedSnapshot(t), "done")
}

func TestCloseIsIdempotent(t *testing.T) {
	r := NewRecorder(nil)
	r.Close()
	r.Close()
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Record(finishedSnapshot(t), "done")
	r.Close()
}
