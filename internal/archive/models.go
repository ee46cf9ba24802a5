package archive

import (
	"encoding/json"
	"time"
)

// Session is one archived generation session.
type Session struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Reason          string     `json:"reason"`
	EventCount      int        `json:"event_count"`
	StreamedChars   int        `json:"streamed_chars"`
	Cost            *float64   `json:"cost,omitempty"`
	PlagiarismScore *float64   `json:"plagiarism_score,omitempty"`
	QualityScore    *float64   `json:"quality_score,omitempty"`
}

// Event is one archived raw event, retained with its classification so
// past timelines can be rebuilt without re-running the classifier.
type Event struct {
	ID         string          `json:"id"`
	SessionRow string          `json:"-"`
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	Agent      string          `json:"agent,omitempty"`
	Stage      string          `json:"stage"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}
