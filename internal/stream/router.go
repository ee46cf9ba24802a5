package stream

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/scribeflow/timeline-gateway/internal/event"
	"github.com/scribeflow/timeline-gateway/internal/metrics"
	"github.com/scribeflow/timeline-gateway/internal/session"
)

// Router applies inbound frames to a session store. Routing is total:
// every frame either updates targeted state, appends to the raw log, or
// is dropped — a bad frame never propagates an error back into the
// transport loop.
type Router struct {
	store *session.Store
	hub   *Hub
}

// NewRouter creates a router writing to the given store and notifying the
// given hub after every applied frame.
func NewRouter(store *session.Store, hub *Hub) *Router {
	return &Router{store: store, hub: hub}
}

// Route decodes and applies one frame. It reports whether the frame was a
// terminal done signal, which the connection manager uses to close the
// channel.
func (r *Router) Route(frame []byte) (terminal bool) {
	ev, err := event.Decode(frame, time.Now())
	if err != nil {
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		slog.Debug("dropped malformed frame", "error", err)
		return false
	}

	switch ev.Type {
	case event.KindContent:
		r.store.AppendText(ev.Text())
	case event.KindThinking:
		r.store.AppendReasoning(ev.Text())
	case event.KindMetrics:
		r.store.ApplyMetrics(metricsPatch(ev))
	case event.KindDerivative:
		d, ok := ev.Derivative()
		if !ok {
			metrics.FramesDropped.WithLabelValues("incomplete_derivative").Inc()
			return false
		}
		r.store.AddDerivative(d)
	case event.KindDone:
		r.store.MarkDone()
		terminal = true
	default:
		r.store.AppendRaw(ev)
		metrics.FramesRouted.WithLabelValues("raw").Inc()
		r.notify(ev.Type)
		return false
	}

	metrics.FramesRouted.WithLabelValues(ev.Type).Inc()
	r.notify(ev.Type)
	return terminal
}

// notify broadcasts a compact update stamp; UI subscribers re-derive the
// timeline from the store on receipt.
func (r *Router) notify(kind string) {
	note, err := json.Marshal(map[string]any{
		"type":        "timeline_update",
		"session_id":  r.store.ID(),
		"last_kind":   kind,
		"event_count": len(r.store.Events()),
	})
	if err != nil {
		return
	}
	r.hub.Broadcast(note)
}

// metricsPatch builds the partial metrics overwrite from a metrics
// envelope; each field is independently optional.
func metricsPatch(ev *event.RawEvent) session.Metrics {
	var patch session.Metrics
	if v, ok := ev.Float("cost"); ok {
		patch.Cost = &v
	}
	if v, ok := ev.Float("plagiarism_score"); ok {
		patch.PlagiarismScore = &v
	}
	if v, ok := ev.Float("quality_score"); ok {
		patch.QualityScore = &v
	}
	return patch
}
