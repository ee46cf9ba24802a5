package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/scribeflow/timeline-gateway/internal/event"
)

// ConnState is the lifecycle state of a session's push channel.
type ConnState string

const (
	StateIdle       ConnState = "idle"
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
	StateError      ConnState = "error"
)

// Metrics holds the latest generation metrics snapshot. Each field is
// overwritten independently when the backend reports it; nil means the
// backend has not reported that metric yet.
type Metrics struct {
	Cost            *float64 `json:"cost,omitempty"`
	PlagiarismScore *float64 `json:"plagiarism_score,omitempty"`
	QualityScore    *float64 `json:"quality_score,omitempty"`
}

// Store accumulates the state of one generation session. There is exactly
// one writer (the stream router); readers take consistent snapshots under
// the lock. A Store is reused across session switches via Reset.
type Store struct {
	mu sync.RWMutex

	id            string
	connState     ConnState
	rawEvents     []*event.RawEvent
	streamedText  string
	reasoningText string
	metrics       Metrics
	derivatives   []event.Derivative
	done          bool
	startedAt     time.Time
	nextSeq       int
}

// NewStore creates an empty store in the idle state.
func NewStore() *Store {
	return &Store{connState: StateIdle}
}

// Reset clears all accumulated state and binds the store to a new session
// id. It must run exactly once per new id, before any event for that id
// is applied.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.connState = StateIdle
	s.rawEvents = nil
	s.streamedText = ""
	s.reasoningText = ""
	s.metrics = Metrics{}
	s.derivatives = nil
	s.done = false
	s.startedAt = time.Now()
	s.nextSeq = 0
}

// SetConnState records a channel lifecycle transition.
func (s *Store) SetConnState(state ConnState) {
	s.mu.Lock()
	s.connState = state
	s.mu.Unlock()
}

// AppendRaw appends one event to the ordered raw log and assigns its
// arrival sequence number.
func (s *Store) AppendRaw(ev *event.RawEvent) {
	s.mu.Lock()
	ev.Seq = s.nextSeq
	s.nextSeq++
	s.rawEvents = append(s.rawEvents, ev)
	s.mu.Unlock()
}

// AppendText grows the streamed output text. Growth is monotonic: deltas
// are only ever appended.
func (s *Store) AppendText(delta string) {
	s.mu.Lock()
	s.streamedText += delta
	s.mu.Unlock()
}

// AppendReasoning grows the accumulated reasoning text.
func (s *Store) AppendReasoning(delta string) {
	s.mu.Lock()
	s.reasoningText += delta
	s.mu.Unlock()
}

// ApplyMetrics overwrites each metric the patch carries; fields the patch
// omits keep their previous value.
func (s *Store) ApplyMetrics(patch Metrics) {
	s.mu.Lock()
	if patch.Cost != nil {
		s.metrics.Cost = patch.Cost
	}
	if patch.PlagiarismScore != nil {
		s.metrics.PlagiarismScore = patch.PlagiarismScore
	}
	if patch.QualityScore != nil {
		s.metrics.QualityScore = patch.QualityScore
	}
	s.mu.Unlock()
}

// AddDerivative appends an artifact announcement. Announcements are
// order-preserving and never deduplicated.
func (s *Store) AddDerivative(d event.Derivative) {
	s.mu.Lock()
	s.derivatives = append(s.derivatives, d)
	s.mu.Unlock()
}

// MarkDone records that the backend signalled terminal completion.
func (s *Store) MarkDone() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

// ID returns the bound session id ("" before the first Reset).
func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// ConnState returns the current channel state.
func (s *Store) ConnState() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

// Snapshot is a point-in-time view of a session for derived computation
// and API responses. Events are shared immutable references; the slice
// itself is safe against later appends.
type Snapshot struct {
	ID            string             `json:"session_id"`
	ConnState     ConnState          `json:"connection_state"`
	Events        []*event.RawEvent  `json:"-"`
	StreamedText  string             `json:"streamed_text"`
	ReasoningText string             `json:"reasoning_text"`
	Metrics       Metrics            `json:"metrics"`
	Derivatives   []event.Derivative `json:"derivatives"`
	Done          bool               `json:"done"`
	StartedAt     time.Time          `json:"started_at"`
	EventCount    int                `json:"event_count"`
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:            s.id,
		ConnState:     s.connState,
		Events:        s.rawEvents[:len(s.rawEvents):len(s.rawEvents)],
		StreamedText:  s.streamedText,
		ReasoningText: s.reasoningText,
		Metrics:       s.metrics,
		Derivatives:   append([]event.Derivative{}, s.derivatives...),
		Done:          s.done,
		StartedAt:     s.startedAt,
		EventCount:    len(s.rawEvents),
	}
}

// Events returns the ordered raw log. Callers must treat the result as
// append-only and never mutate the referenced events.
func (s *Store) Events() []*event.RawEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rawEvents[:len(s.rawEvents):len(s.rawEvents)]
}

// Event returns the raw event at the given arrival sequence number.
func (s *Store) Event(seq int) (*event.RawEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 0 || seq >= len(s.rawEvents) {
		return nil, false
	}
	return s.rawEvents[seq], true
}

// ExportJSON serializes the full ordered raw log as one JSON document,
// suitable for a downloadable artifact.
func (s *Store) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.rawEvents
	if events == nil {
		events = []*event.RawEvent{}
	}
	doc := struct {
		SessionID string            `json:"session_id"`
		Events    []*event.RawEvent `json:"events"`
	}{
		SessionID: s.id,
		Events:    events,
	}
	return json.MarshalIndent(doc, "", "  ")
}
