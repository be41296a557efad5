package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"groundwork/mapcore/internal/engine"
	"groundwork/mapcore/internal/surface"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Renderers embed in host applications on arbitrary origins; auth is the
	// deployment's concern (the service sits behind the host's backend).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSurfaceSocket bridges a renderer to its session. Outbound frames are
// op batches; inbound frames are renderer events (load, styleload, move,
// click, hover). One renderer per session: a new attach replaces the old
// send and the replaced socket starves out.
func (h *Handler) handleSurfaceSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("surface socket upgrade failed")
		return
	}
	defer conn.Close()

	// Sends happen on the session goroutine and must not block, so they go
	// through a buffered channel. A renderer that cannot keep up loses the
	// socket and re-attaches to a full replay instead of a gapped stream.
	out := make(chan []surface.Op, 256)
	done := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { close(done) })
	}

	if err := sess.AttachRenderer(func(ops []surface.Op) {
		select {
		case out <- ops:
		default:
			h.log.Warn().Str("session_id", sess.ID()).Msg("renderer too slow, dropping socket")
			closeConn()
		}
	}); err != nil {
		return
	}
	defer sess.DetachRenderer()

	go func() {
		for {
			select {
			case <-done:
				conn.Close()
				return
			case ops := <-out:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ops); err != nil {
					closeConn()
					return
				}
			}
		}
	}()

	for {
		var ev surface.Event
		if err := conn.ReadJSON(&ev); err != nil {
			closeConn()
			return
		}
		sess.HandleRendererEvent(ev)
	}
}

// handleEventsSocket streams high-level interaction events to the host
// application. The host side is write-mostly; inbound frames are read and
// discarded to service pings and detect the close.
func (h *Handler) handleEventsSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("events socket upgrade failed")
		return
	}
	defer conn.Close()

	out := make(chan engine.HostEvent, 256)
	done := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { close(done) })
	}

	if err := sess.AttachHost(func(ev engine.HostEvent) {
		select {
		case out <- ev:
		default:
			h.log.Warn().Str("session_id", sess.ID()).Msg("host too slow, dropping events socket")
			closeConn()
		}
	}); err != nil {
		return
	}
	defer sess.DetachHost()

	go func() {
		for {
			select {
			case <-done:
				conn.Close()
				return
			case ev := <-out:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					closeConn()
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeConn()
			return
		}
	}
}
