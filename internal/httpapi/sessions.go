package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"groundwork/mapcore/internal/engine"
	"groundwork/mapcore/internal/featurestore"
	"groundwork/mapcore/internal/hub"
	"groundwork/mapcore/internal/scene"
)

type lonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// point validates a host-supplied center. Out-of-range coordinates count
// as unparseable and fall back to the configured default center.
func (c *lonLat) point(fallback orb.Point) orb.Point {
	if c == nil || c.Lon < -180 || c.Lon > 180 || c.Lat < -90 || c.Lat > 90 {
		return fallback
	}
	return orb.Point{c.Lon, c.Lat}
}

type sessionCreate struct {
	ProjectID string   `json:"project_id,omitempty"`
	Basemap   string   `json:"basemap,omitempty"`
	Center    *lonLat  `json:"center,omitempty"`
	Zoom      *float64 `json:"zoom,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionCreate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	basemap := req.Basemap
	if basemap == "" {
		basemap = h.cfg.DefaultBasemap()
	}
	styles := h.cfg.Styles()
	if _, ok := styles[basemap]; !ok {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown basemap", map[string]any{"basemap": basemap})
		return
	}

	center := req.Center.point(h.cfg.DefaultCenterPoint())
	if req.Center == nil && req.ProjectID != "" && h.store != nil {
		if lon, lat, err := h.store.Center(r.Context(), req.ProjectID); err == nil {
			center = orb.Point{lon, lat}
		} else if !errors.Is(err, featurestore.ErrNotFound) {
			h.log.Warn().Err(err).Str("project_id", req.ProjectID).Msg("project center lookup failed")
		}
	}
	zoom := h.cfg.DefaultZoom
	if req.Zoom != nil {
		zoom = *req.Zoom
	}

	sess, err := h.hub.Create(engine.Options{
		Styles:           styles,
		Basemap:          basemap,
		Center:           center,
		Zoom:             zoom,
		RingRadiiMiles:   h.cfg.RingRadiiMiles,
		RefParcelMinZoom: h.cfg.RefParcelMinZoom,
		ParcelIDFields:   h.cfg.ParcelIDFields,
		Metrics:          h.m,
	})
	if err != nil {
		if errors.Is(err, hub.ErrFull) {
			h.writeError(w, http.StatusServiceUnavailable, "session_limit", "session limit reached", nil)
			return
		}
		h.log.Error().Err(err).Msg("session create failed")
		h.writeError(w, http.StatusInternalServerError, "internal", "failed to create session", nil)
		return
	}

	if req.ProjectID != "" && h.store != nil {
		h.hydrate(r.Context(), sess, req.ProjectID)
	}

	summary, err := sess.Summarize()
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sess.ID()).Msg("summarize after create failed")
		h.writeError(w, http.StatusInternalServerError, "internal", "failed to create session", nil)
		return
	}
	h.writeJSON(w, http.StatusCreated, summary)
}

// hydrate seeds a fresh session from the project database. Missing
// documents are normal; load failures are logged and skipped so a broken
// domain never blocks the session (the host can re-push over PUT).
func (h *Handler) hydrate(ctx context.Context, sess *engine.Session, projectID string) {
	for _, d := range scene.CollectionDomains() {
		fc, err := h.store.Collection(ctx, projectID, d)
		if err != nil {
			if !errors.Is(err, featurestore.ErrNotFound) {
				h.log.Warn().Err(err).Str("project_id", projectID).Str("domain", string(d)).Msg("collection hydrate failed")
			}
			continue
		}
		if err := sess.SetCollection(d, fc); err != nil {
			h.log.Warn().Err(err).Str("domain", string(d)).Msg("collection push failed")
		}
	}

	cfg, err := h.store.RefParcelConfig(ctx, projectID)
	if err != nil {
		if !errors.Is(err, featurestore.ErrNotFound) {
			h.log.Warn().Err(err).Str("project_id", projectID).Msg("parcel config hydrate failed")
		}
		return
	}
	if err := sess.SetRefParcelConfig(cfg); err != nil {
		h.log.Warn().Err(err).Msg("parcel config push failed")
	}
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	summary, err := sess.Summarize()
	if err != nil {
		h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.hub.Close(id); err != nil {
		h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type viewportUpdate struct {
	Center *lonLat  `json:"center"`
	Zoom   *float64 `json:"zoom,omitempty"`
}

func (h *Handler) handlePutViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req viewportUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	center := req.Center.point(h.cfg.DefaultCenterPoint())
	if err := sess.SetViewport(center, req.Zoom); err != nil {
		h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type basemapUpdate struct {
	ID string `json:"id"`
}

func (h *Handler) handlePutBasemap(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req basemapUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if _, ok := h.cfg.Styles()[req.ID]; !ok {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown basemap", map[string]any{"basemap": req.ID})
		return
	}

	if err := sess.SetBasemap(req.ID); err != nil {
		if errors.Is(err, engine.ErrClosed) {
			h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
			return
		}
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type layersUpdate struct {
	Layers []scene.LayerNode `json:"layers"`
}

func (h *Handler) handlePutLayers(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req layersUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if err := sess.SetLayerTree(req.Layers); err != nil {
		h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type toolUpdate struct {
	Tool        string `json:"tool"`
	SelectionID string `json:"selection_id,omitempty"`
}

func (h *Handler) handlePutTool(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req toolUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	tool, err := scene.ParseTool(req.Tool)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"tool": req.Tool})
		return
	}
	if err := sess.SetTool(tool, req.SelectionID); err != nil {
		h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type ringsUpdate struct {
	Visible        bool    `json:"visible"`
	SelectedRadius float64 `json:"selected_radius,omitempty"`
}

func (h *Handler) handlePutRings(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ringsUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if err := sess.SetRings(req.Visible, req.SelectedRadius); err != nil {
		h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type collectionUpdate struct {
	Collection json.RawMessage `json:"collection"`
	SubjectID  string          `json:"subject_id,omitempty"`
	CompIDs    []string        `json:"comp_ids,omitempty"`
}

func (h *Handler) handlePutCollection(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	domain, err := scene.ParseDomain(chi.URLParam(r, "domain"))
	if err != nil || domain == scene.DomainRings {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown collection domain", map[string]any{"domain": chi.URLParam(r, "domain")})
		return
	}

	var req collectionUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	var fc *geojson.FeatureCollection
	if len(req.Collection) > 0 && string(req.Collection) != "null" {
		fc, err = geojson.UnmarshalFeatureCollection(req.Collection)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid feature collection", map[string]any{"error": err.Error()})
			return
		}
		if len(fc.Features) > h.cfg.MaxCollectionFeatures {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "collection too large", map[string]any{
				"features": len(fc.Features),
				"max":      h.cfg.MaxCollectionFeatures,
			})
			return
		}
	}

	if domain == scene.DomainRefParcels && (req.SubjectID != "" || len(req.CompIDs) > 0) {
		if err := sess.SetRefParcelConfig(scene.RefParcelConfig{SubjectID: req.SubjectID, CompIDs: req.CompIDs}); err != nil {
			h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
			return
		}
	}
	if err := sess.SetCollection(domain, fc); err != nil {
		h.writeError(w, http.StatusGone, "closed", "session is closed", nil)
		return
	}

	count := 0
	if fc != nil {
		count = len(fc.Features)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "features": count})
}
