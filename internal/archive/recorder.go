package archive

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scribeflow/timeline-gateway/internal/metrics"
	"github.com/scribeflow/timeline-gateway/internal/session"
	"github.com/scribeflow/timeline-gateway/internal/timeline"
)

type recordMsg struct {
	sess   Session
	events []Event
}

// Recorder writes finished sessions asynchronously via a buffered channel
// so channel teardown never blocks on the database. All methods are
// nil-safe (no-op on nil receiver), letting the archive stay optional.
// Record after Close is a no-op: close notifications arrive from detached
// goroutines and may straggle past shutdown.
type Recorder struct {
	store *Store

	mu     sync.Mutex
	closed bool
	ch     chan recordMsg
	done   chan struct{}
}

// NewRecorder creates a recorder over the given store. Must call Close
// when done.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		ch:    make(chan recordMsg, 16),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for msg := range r.ch {
		if err := r.store.SaveSession(msg.sess, msg.events); err != nil {
			metrics.ArchiveWrites.WithLabelValues("error").Inc()
			slog.Warn("archive write failed", "session_id", msg.sess.SessionID, "error", err)
			continue
		}
		metrics.ArchiveWrites.WithLabelValues("ok").Inc()
	}
}

// Record enqueues a finished session snapshot for persistence. Sessions
// that never received an event are not archived.
func (r *Recorder) Record(snap session.Snapshot, reason string) {
	if r == nil || snap.ID == "" || len(snap.Events) == 0 {
		return
	}

	endedAt := time.Now()
	sess := Session{
		ID:              uuid.NewString(),
		SessionID:       snap.ID,
		StartedAt:       snap.StartedAt,
		EndedAt:         &endedAt,
		Reason:          reason,
		EventCount:      len(snap.Events),
		StreamedChars:   len(snap.StreamedText),
		Cost:            snap.Metrics.Cost,
		PlagiarismScore: snap.Metrics.PlagiarismScore,
		QualityScore:    snap.Metrics.QualityScore,
	}

	events := make([]Event, 0, len(snap.Events))
	for _, ev := range snap.Events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		events = append(events, Event{
			ID:         uuid.NewString(),
			Seq:        ev.Seq,
			Type:       ev.Type,
			Agent:      ev.Agent,
			Stage:      string(timeline.Classify(ev)),
			ReceivedAt: ev.Received,
			Payload:    payload,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		metrics.ArchiveWrites.WithLabelValues("dropped").Inc()
		return
	}
	r.ch <- recordMsg{sess: sess, events: events}
}

// Close drains pending writes and shuts down the background goroutine.
// Idempotent; subsequent Record calls become no-ops.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.ch)
	<-r.done
}
