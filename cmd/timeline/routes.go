package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scribeflow/timeline-gateway/internal/archive"
	"github.com/scribeflow/timeline-gateway/internal/metrics"
	"github.com/scribeflow/timeline-gateway/internal/timeline"
)

type deps struct {
	cfg          config
	registry     *registry
	archiveStore *archive.Store
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/sessions/{id}/open", d.handleOpen)
	mux.HandleFunc("POST /api/sessions/{id}/close", d.handleClose)
	mux.HandleFunc("GET /api/sessions/{id}", d.handleSession)
	mux.HandleFunc("GET /api/sessions/{id}/timeline", d.handleTimeline)
	mux.HandleFunc("GET /api/sessions/{id}/events", d.handleEvents)
	mux.HandleFunc("GET /api/sessions/{id}/events/{seq}", d.handleInspect)
	mux.HandleFunc("GET /api/sessions/{id}/export", d.handleExport)
	mux.HandleFunc("GET /api/sessions/{id}/stream", d.handleStream)

	registerArchiveRoutes(mux, d.archiveStore, d.cfg.archivePageSize)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleOpen(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := d.registry.open(r.Context(), id); err != nil {
		slog.Error("session open failed", "session_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "open", "session_id": id})
}

func (d deps) handleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !d.registry.close(id) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "closed", "session_id": id})
}

func (d deps) handleSession(w http.ResponseWriter, r *http.Request) {
	rt, ok := d.registry.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	snap := rt.store.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (d deps) handleTimeline(w http.ResponseWriter, r *http.Request) {
	rt, ok := d.registry.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	snap := rt.store.Snapshot()
	resp := map[string]any{
		"session_id":       snap.ID,
		"connection_state": snap.ConnState,
		"stages":           timeline.Build(snap.Events, snap.Done, time.Now()),
		"agents":           timeline.Agents(snap.Events),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (d deps) handleEvents(w http.ResponseWriter, r *http.Request) {
	rt, ok := d.registry.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	agents := splitParam(r.URL.Query().Get("agents"))
	stages := stageParam(r.URL.Query().Get("stages"))

	events := timeline.Filter(rt.store.Events(), agents, stages)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"events": events, "total": len(events)})
}

func (d deps) handleInspect(w http.ResponseWriter, r *http.Request) {
	rt, ok := d.registry.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		http.Error(w, "bad sequence number", http.StatusBadRequest)
		return
	}
	ev, ok := rt.store.Event(seq)
	if !ok {
		http.Error(w, "no such event", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(timeline.Inspect(ev))
}

func (d deps) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rt, ok := d.registry.get(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	doc, err := rt.store.ExportJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ExportsTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session-"+id+"-events.json"))
	w.Write(doc)
}

// handleStream feeds hub notifications to the UI as Server-Sent Events.
// Consumers re-fetch the timeline on each notification; the engine itself
// carries no timers.
func (d deps) handleStream(w http.ResponseWriter, r *http.Request) {
	rt, ok := d.registry.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := rt.hub.Subscribe()
	defer rt.hub.Unsubscribe(ch)
	slog.Info("stream client connected", "session_id", r.PathValue("id"), "remote", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			slog.Info("stream client disconnected", "remote", r.RemoteAddr)
			return
		case msg := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func registerArchiveRoutes(mux *http.ServeMux, store *archive.Store, pageSize int) {
	mux.HandleFunc("GET /api/archive/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "archive disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", pageSize)
		offset := queryInt(r, "offset", 0)
		sessions, total, err := store.ListSessions(limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/archive/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "archive disabled", http.StatusNotFound)
			return
		}
		sess, events, err := store.GetSession(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"session": sess, "events": events})
	})
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// stageParam converts the stages query parameter, silently ignoring
// values outside the fixed enumeration.
func stageParam(raw string) []timeline.StageKey {
	known := map[timeline.StageKey]bool{}
	for _, s := range timeline.Order {
		known[s] = true
	}
	var out []timeline.StageKey
	for _, part := range splitParam(raw) {
		if s := timeline.StageKey(strings.ToLower(part)); known[s] {
			out = append(out, s)
		}
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
