// Package httpapi exposes the session API: session lifecycle and state
// snapshots over plain HTTP, plus the two websockets that bridge a session
// to its renderer and its host application.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/config"
	"groundwork/mapcore/internal/db"
	"groundwork/mapcore/internal/engine"
	"groundwork/mapcore/internal/featurestore"
	"groundwork/mapcore/internal/hub"
	"groundwork/mapcore/internal/metrics"
)

type Handler struct {
	log   zerolog.Logger
	hub   *hub.Hub
	pool  *db.Pool
	store featurestore.Store
	cfg   config.Config
	m     *metrics.Metrics
}

// NewHandler wires the API. pool and store may be nil; sessions then start
// empty and the host pushes all collections over PUT.
func NewHandler(log zerolog.Logger, h *hub.Hub, pool *db.Pool, store featurestore.Store, cfg config.Config, m *metrics.Metrics) *Handler {
	return &Handler{log: log, hub: h, pool: pool, store: store, cfg: cfg, m: m}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.m.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.With(middleware.Timeout(15*time.Second)).Get("/basemaps", h.handleListBasemaps)

			r.Route("/sessions", func(r chi.Router) {
				r.With(middleware.Timeout(15*time.Second)).Post("/", h.handleCreateSession)

				r.Route("/{id}", func(r chi.Router) {
					// Websockets are long-lived and stay outside the
					// request timeout.
					r.Get("/surface", h.handleSurfaceSocket)
					r.Get("/events", h.handleEventsSocket)

					r.Group(func(r chi.Router) {
						r.Use(middleware.Timeout(15 * time.Second))
						r.Get("/", h.handleGetSession)
						r.Delete("/", h.handleDeleteSession)
						r.Put("/viewport", h.handlePutViewport)
						r.Put("/basemap", h.handlePutBasemap)
						r.Put("/layers", h.handlePutLayers)
						r.Put("/tool", h.handlePutTool)
						r.Put("/rings", h.handlePutRings)
						r.Put("/collections/{domain}", h.handlePutCollection)
					})
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = r.URL.Path
		}
		h.m.ObserveHTTPRequest(r.Method, routePattern, ww.Status(), elapsed)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// session resolves the {id} URL parameter, writing the 404 itself when the
// session is gone.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := h.hub.Get(id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
		return nil, false
	}
	return sess, true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "db": "not configured"})
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) handleListBasemaps(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"basemaps": h.cfg.Basemaps,
		"default":  h.cfg.DefaultBasemap(),
	})
}
