// Package hub is the session registry: it creates session engines, hands
// out lookups, enforces the session cap and reaps sessions nobody has
// touched within the TTL.
package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/engine"
	"groundwork/mapcore/internal/metrics"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrFull     = errors.New("session limit reached")
)

type Options struct {
	MaxSessions  int
	SessionTTL   time.Duration
	ReapInterval time.Duration
}

type entry struct {
	sess   *engine.Session
	cancel context.CancelFunc
}

type Hub struct {
	log  zerolog.Logger
	m    *metrics.Metrics
	opts Options

	mu       sync.Mutex
	baseCtx  context.Context
	sessions map[string]*entry
}

func New(log zerolog.Logger, m *metrics.Metrics, opts Options) *Hub {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 256
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	return &Hub{
		log:      log,
		m:        m,
		opts:     opts,
		sessions: make(map[string]*entry),
	}
}

// Create registers a new session and starts its engine goroutine. Session
// lifetimes hang off the hub's Run context, never off a request context.
func (h *Hub) Create(opts engine.Options) (*engine.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.sessions) >= h.opts.MaxSessions {
		return nil, ErrFull
	}

	base := h.baseCtx
	if base == nil {
		base = context.Background()
	}

	id := uuid.NewString()
	sess := engine.New(id, h.log, opts)

	sctx, cancel := context.WithCancel(base)
	go sess.Run(sctx)

	h.sessions[id] = &entry{sess: sess, cancel: cancel}
	h.m.IncActiveSessions()
	h.log.Info().Str("session_id", id).Int("sessions", len(h.sessions)).Msg("session created")
	return sess, nil
}

// Get looks a session up by id.
func (h *Hub) Get(id string) (*engine.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.sess, nil
}

// Close tears a session down and removes it from the registry.
func (h *Hub) Close(id string) error {
	h.mu.Lock()
	e, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	h.closeEntry(id, e)
	return nil
}

func (h *Hub) closeEntry(id string, e *entry) {
	e.sess.Close()
	e.cancel()
	h.m.DecActiveSessions()
	h.log.Info().Str("session_id", id).Msg("session closed")
}

// CloseAll tears every session down; used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	doomed := h.sessions
	h.sessions = make(map[string]*entry)
	h.mu.Unlock()

	for id, e := range doomed {
		h.closeEntry(id, e)
	}
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Run anchors session lifetimes to ctx and reaps idle sessions until it
// ends.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.baseCtx = ctx
	h.mu.Unlock()

	ticker := time.NewTicker(h.opts.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reap(time.Now())
		}
	}
}

func (h *Hub) reap(now time.Time) {
	h.mu.Lock()
	var doomed []*entry
	var ids []string
	for id, e := range h.sessions {
		if now.Sub(e.sess.LastActive()) > h.opts.SessionTTL {
			doomed = append(doomed, e)
			ids = append(ids, id)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	for i, e := range doomed {
		h.log.Info().Str("session_id", ids[i]).Dur("ttl", h.opts.SessionTTL).Msg("reaping idle session")
		h.closeEntry(ids[i], e)
	}
}
