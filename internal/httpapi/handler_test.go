package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/config"
	"groundwork/mapcore/internal/engine"
	"groundwork/mapcore/internal/featurestore"
	"groundwork/mapcore/internal/hub"
	"groundwork/mapcore/internal/scene"
)

type fakeStore struct {
	collection func(ctx context.Context, projectID string, d scene.Domain) (*geojson.FeatureCollection, error)
	parcelCfg  func(ctx context.Context, projectID string) (scene.RefParcelConfig, error)
	center     func(ctx context.Context, projectID string) (float64, float64, error)
}

func (f *fakeStore) Collection(ctx context.Context, projectID string, d scene.Domain) (*geojson.FeatureCollection, error) {
	if f.collection == nil {
		return nil, featurestore.ErrNotFound
	}
	return f.collection(ctx, projectID, d)
}

func (f *fakeStore) RefParcelConfig(ctx context.Context, projectID string) (scene.RefParcelConfig, error) {
	if f.parcelCfg == nil {
		return scene.RefParcelConfig{}, featurestore.ErrNotFound
	}
	return f.parcelCfg(ctx, projectID)
}

func (f *fakeStore) Center(ctx context.Context, projectID string) (float64, float64, error) {
	if f.center == nil {
		return 0, 0, featurestore.ErrNotFound
	}
	return f.center(ctx, projectID)
}

func newTestAPI(t *testing.T, cfg config.Config, store featurestore.Store) http.Handler {
	t.Helper()
	hb := hub.New(zerolog.Nop(), nil, hub.Options{MaxSessions: cfg.MaxSessions})
	t.Cleanup(hb.CloseAll)
	return NewHandler(zerolog.Nop(), hb, nil, store, cfg, nil).Router()
}

func doJSON(t *testing.T, api http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)
	return rr
}

func createSession(t *testing.T, api http.Handler, body any) engine.Summary {
	t.Helper()
	rr := doJSON(t, api, http.MethodPost, "/api/v1/sessions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: status %d, body %s", rr.Code, rr.Body.String())
	}
	var s engine.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return s
}

func pointCollection(n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		f := geojson.NewFeature(orb.Point{-86.7 + float64(i)*0.01, 36.1})
		f.Properties["name"] = fmt.Sprintf("p%d", i)
		fc.Append(f)
	}
	return fc
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	rr := doJSON(t, api, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestReadyZ_NoDatabaseConfigured(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	rr := doJSON(t, api, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "not configured") {
		t.Fatalf("expected db note in body, got %s", rr.Body.String())
	}
}

func TestListBasemaps(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	rr := doJSON(t, api, http.MethodGet, "/api/v1/basemaps", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var resp struct {
		Basemaps []config.Basemap `json:"basemaps"`
		Default  string           `json:"default"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Default != "streets" || len(resp.Basemaps) != 3 {
		t.Fatalf("unexpected catalog: default %q, %d entries", resp.Default, len(resp.Basemaps))
	}
}

func TestCreateSession_Defaults(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)

	s := createSession(t, api, map[string]any{})
	if s.ID == "" {
		t.Fatalf("expected a session id")
	}
	if s.Basemap != "streets" {
		t.Fatalf("basemap = %q, want streets", s.Basemap)
	}
	if s.Zoom != 11 {
		t.Fatalf("zoom = %v, want 11", s.Zoom)
	}
	if s.StyleRevision != 0 {
		t.Fatalf("style revision must be 0 before the renderer acks, got %d", s.StyleRevision)
	}
}

func TestCreateSession_UnknownBasemap(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	rr := doJSON(t, api, http.MethodPost, "/api/v1/sessions", map[string]any{"basemap": "terrain"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "unknown basemap") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestCreateSession_UnknownField(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	rr := doJSON(t, api, http.MethodPost, "/api/v1/sessions", map[string]any{"basemaps": "streets"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
}

func TestCreateSession_SessionCap(t *testing.T) {
	cfg := config.Default()
	cfg.MaxSessions = 1
	api := newTestAPI(t, cfg, nil)

	createSession(t, api, map[string]any{})
	rr := doJSON(t, api, http.MethodPost, "/api/v1/sessions", map[string]any{})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rr.Code)
	}
}

func TestCreateSession_HydratesFromStore(t *testing.T) {
	store := &fakeStore{
		collection: func(_ context.Context, projectID string, d scene.Domain) (*geojson.FeatureCollection, error) {
			if projectID != "proj-1" {
				t.Fatalf("unexpected project id %q", projectID)
			}
			if d == scene.DomainSaleComps {
				return pointCollection(3), nil
			}
			return nil, featurestore.ErrNotFound
		},
		parcelCfg: func(_ context.Context, _ string) (scene.RefParcelConfig, error) {
			return scene.RefParcelConfig{SubjectID: "12-345-678"}, nil
		},
		center: func(_ context.Context, _ string) (float64, float64, error) {
			return -87.5, 36.5, nil
		},
	}
	api := newTestAPI(t, config.Default(), store)

	s := createSession(t, api, map[string]any{"project_id": "proj-1"})
	if s.FeatureCounts[scene.DomainSaleComps] != 3 {
		t.Fatalf("sale comps count = %d, want 3", s.FeatureCounts[scene.DomainSaleComps])
	}
	if s.Center != (orb.Point{-87.5, 36.5}) {
		t.Fatalf("center = %v, want project center", s.Center)
	}
}

func TestCreateSession_ExplicitCenterBeatsProject(t *testing.T) {
	store := &fakeStore{
		center: func(_ context.Context, _ string) (float64, float64, error) {
			return -87.5, 36.5, nil
		},
	}
	api := newTestAPI(t, config.Default(), store)

	s := createSession(t, api, map[string]any{
		"project_id": "proj-1",
		"center":     map[string]any{"lon": -86.0, "lat": 36.0},
	})
	if s.Center != (orb.Point{-86.0, 36.0}) {
		t.Fatalf("center = %v, want the request center", s.Center)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	rr := doJSON(t, api, http.MethodGet, "/api/v1/sessions/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rr.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	s := createSession(t, api, map[string]any{})

	rr := doJSON(t, api, http.MethodDelete, "/api/v1/sessions/"+s.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rr.Code)
	}
	rr = doJSON(t, api, http.MethodGet, "/api/v1/sessions/"+s.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d after delete, want 404", rr.Code)
	}
}

func TestPutViewport(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	s := createSession(t, api, map[string]any{})

	rr := doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/viewport", map[string]any{
		"center": map[string]any{"lon": -86.5, "lat": 36.3},
		"zoom":   14.0,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, api, http.MethodGet, "/api/v1/sessions/"+s.ID, nil)
	var got engine.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Center != (orb.Point{-86.5, 36.3}) || got.Zoom != 14 {
		t.Fatalf("viewport = %v @ %v", got.Center, got.Zoom)
	}
}

func TestPutBasemap_Unknown(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	s := createSession(t, api, map[string]any{})

	rr := doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/basemap", map[string]any{"id": "terrain"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
}

func TestPutTool(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	s := createSession(t, api, map[string]any{})

	rr := doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/tool", map[string]any{"tool": "polygon"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/tool", map[string]any{"tool": "lasso"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d for unknown tool, want 400", rr.Code)
	}
}

func TestPutCollection(t *testing.T) {
	cfg := config.Default()
	cfg.MaxCollectionFeatures = 5
	api := newTestAPI(t, cfg, nil)
	s := createSession(t, api, map[string]any{})

	raw, err := json.Marshal(pointCollection(3))
	if err != nil {
		t.Fatalf("marshal collection: %v", err)
	}

	rr := doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/collections/annotations", map[string]any{
		"collection": json.RawMessage(raw),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, api, http.MethodGet, "/api/v1/sessions/"+s.ID, nil)
	var got engine.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FeatureCounts[scene.DomainAnnotations] != 3 {
		t.Fatalf("annotation count = %d, want 3", got.FeatureCounts[scene.DomainAnnotations])
	}
}

func TestPutCollection_TooLarge(t *testing.T) {
	cfg := config.Default()
	cfg.MaxCollectionFeatures = 2
	api := newTestAPI(t, cfg, nil)
	s := createSession(t, api, map[string]any{})

	raw, err := json.Marshal(pointCollection(3))
	if err != nil {
		t.Fatalf("marshal collection: %v", err)
	}
	rr := doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/collections/annotations", map[string]any{
		"collection": json.RawMessage(raw),
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "too large") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestPutCollection_BadDomain(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	s := createSession(t, api, map[string]any{})

	for _, domain := range []string{"rings", "weather"} {
		rr := doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/collections/"+domain, map[string]any{
			"collection": nil,
		})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("domain %q: status %d, want 400", domain, rr.Code)
		}
	}
}

func TestPutCollection_RefParcelConfig(t *testing.T) {
	api := newTestAPI(t, config.Default(), nil)
	s := createSession(t, api, map[string]any{})

	raw, err := json.Marshal(pointCollection(2))
	if err != nil {
		t.Fatalf("marshal collection: %v", err)
	}
	rr := doJSON(t, api, http.MethodPut, "/api/v1/sessions/"+s.ID+"/collections/reference_parcels", map[string]any{
		"collection": json.RawMessage(raw),
		"subject_id": "12-345-678",
		"comp_ids":   []string{"99-999-999"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}
}
