package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/scribeflow/timeline-gateway/internal/archive"
	"github.com/scribeflow/timeline-gateway/internal/session"
	"github.com/scribeflow/timeline-gateway/internal/stream"
)

// sessionRuntime bundles the per-session engine: one store, one hub, one
// connection manager.
type sessionRuntime struct {
	store *session.Store
	hub   *stream.Hub
	mgr   *stream.Manager
}

// registry owns the live session engines, keyed by session id, with
// admission control on concurrently open channels. Closed sessions stay
// readable until the process exits; the archive covers everything older.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionRuntime
	max      int
	wsURL    string
	recorder *archive.Recorder
}

func newRegistry(wsURL string, maxConcurrent int, recorder *archive.Recorder) *registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 50
	}
	return &registry{
		sessions: map[string]*sessionRuntime{},
		max:      maxConcurrent,
		wsURL:    wsURL,
		recorder: recorder,
	}
}

// open returns the engine for a session id, creating it if needed, and
// (re)opens its push channel. Reopening after a drop is the caller's
// decision; the engine never retries on its own.
func (g *registry) open(ctx context.Context, id string) (*sessionRuntime, error) {
	g.mu.Lock()
	rt, ok := g.sessions[id]
	if !ok {
		if g.openCountLocked() >= g.max {
			g.mu.Unlock()
			return nil, fmt.Errorf("at capacity (%d live sessions)", g.max)
		}
		store := session.NewStore()
		hub := stream.NewHub()
		mgr := stream.NewManager(g.wsURL, store, hub)
		mgr.OnClosed = func(snap session.Snapshot, reason string) {
			g.recorder.Record(snap, reason)
		}
		rt = &sessionRuntime{store: store, hub: hub, mgr: mgr}
		g.sessions[id] = rt
	}
	g.mu.Unlock()

	if err := rt.mgr.Open(ctx, id); err != nil {
		return nil, err
	}
	return rt, nil
}

func (g *registry) openCountLocked() int {
	n := 0
	for _, rt := range g.sessions {
		switch rt.store.ConnState() {
		case session.StateConnecting, session.StateOpen:
			n++
		}
	}
	return n
}

// get returns the engine for a session id without side effects.
func (g *registry) get(id string) (*sessionRuntime, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rt, ok := g.sessions[id]
	return rt, ok
}

// close tears down a session's channel. Accumulated state stays readable.
func (g *registry) close(id string) bool {
	rt, ok := g.get(id)
	if !ok {
		return false
	}
	rt.mgr.Close()
	return true
}

// shutdown closes every live channel.
func (g *registry) shutdown() {
	g.mu.Lock()
	runtimes := make([]*sessionRuntime, 0, len(g.sessions))
	for _, rt := range g.sessions {
		runtimes = append(runtimes, rt)
	}
	g.mu.Unlock()

	for _, rt := range runtimes {
		rt.mgr.Close()
	}
}
