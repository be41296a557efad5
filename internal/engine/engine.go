// Package engine runs one map session: a single goroutine that owns the
// viewport controller, the reconciler and the interaction router, drains a
// command channel, and re-runs the domain passes whose dependencies changed
// after every command. All external touches — snapshot setters, renderer
// events, socket attachment, teardown — are closures posted to that
// channel, which preserves the cooperative single-threaded model of the
// rendering core.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/classify"
	"groundwork/mapcore/internal/interact"
	"groundwork/mapcore/internal/markers"
	"groundwork/mapcore/internal/metrics"
	"groundwork/mapcore/internal/reconcile"
	"groundwork/mapcore/internal/scene"
	"groundwork/mapcore/internal/surface"
	"groundwork/mapcore/internal/viewport"
)

var ErrClosed = errors.New("session closed")

// Options carries the per-session configuration resolved from the catalog.
type Options struct {
	Styles           map[string]string
	Basemap          string
	Center           orb.Point
	Zoom             float64
	RingRadiiMiles   []float64
	RefParcelMinZoom float64
	ParcelIDFields   []string
	Metrics          *metrics.Metrics
}

// HostEvent is one high-level interaction event streamed to the host
// application.
type HostEvent struct {
	Type        string           `json:"type"`
	Center      *orb.Point       `json:"center,omitempty"`
	Zoom        float64          `json:"zoom,omitempty"`
	Bounds      *[4]float64      `json:"bounds,omitempty"`
	LngLat      *orb.Point       `json:"lnglat,omitempty"`
	Feature     *geojson.Feature `json:"feature,omitempty"`
	RadiusMiles float64          `json:"radius_miles,omitempty"`
}

// Summary is the session introspection payload for the HTTP API.
type Summary struct {
	ID            string               `json:"id"`
	Basemap       string               `json:"basemap"`
	StyleRevision uint64               `json:"style_revision"`
	Center        orb.Point            `json:"center"`
	Zoom          float64              `json:"zoom"`
	Tool          scene.Tool           `json:"tool"`
	Counts        surface.Counts       `json:"counts"`
	FeatureCounts map[scene.Domain]int `json:"feature_counts"`
	RingsVisible  bool                 `json:"rings_visible"`
}

type Session struct {
	id   string
	log  zerolog.Logger
	m    *metrics.Metrics
	opts Options

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once
	lastTouch atomic.Int64

	// Everything below is owned by the Run goroutine.
	vc     *viewport.Controller
	rec    *reconcile.Reconciler
	mk     *markers.Manager
	router *interact.Router

	view        scene.Viewport
	collections map[scene.Domain]*geojson.FeatureCollection
	versions    map[scene.Domain]uint64
	treeVis     map[string]bool
	refCfg      scene.RefParcelConfig
	refCfgVer   uint64
	tool        scene.Tool
	selectionID string

	ringsVisible   bool
	selectedRadius float64

	lastFP map[string]string

	rendererSend func([]surface.Op)
	hostSend     func(HostEvent)
	mapClickOff  int
}

func New(id string, log zerolog.Logger, opts Options) *Session {
	if len(opts.RingRadiiMiles) == 0 {
		opts.RingRadiiMiles = []float64{1, 3, 5}
	}
	if opts.RefParcelMinZoom == 0 {
		opts.RefParcelMinZoom = 15
	}
	if len(opts.ParcelIDFields) == 0 {
		opts.ParcelIDFields = classify.DefaultIDFields()
	}

	s := &Session{
		id:   id,
		log:  log.With().Str("session_id", id).Logger(),
		m:    opts.Metrics,
		opts: opts,

		cmds: make(chan func(), 64),
		done: make(chan struct{}),

		view:        scene.Viewport{Center: opts.Center, Zoom: opts.Zoom},
		collections: make(map[scene.Domain]*geojson.FeatureCollection),
		versions:    make(map[scene.Domain]uint64),
		tool:        scene.ToolNone,
		lastFP:      make(map[string]string),
	}
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

// LastActive reports when a command was last posted, for idle reaping.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastTouch.Load())
}

func (s *Session) touch() {
	s.lastTouch.Store(time.Now().UnixNano())
}

// Run drains the command loop until the context ends or Close is called.
// It must be started exactly once, before any setter is used.
func (s *Session) Run(ctx context.Context) {
	s.init()
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case fn := <-s.cmds:
			fn()
			s.reconcileAll()
			s.flushOps()
		}
	}
}

func (s *Session) init() {
	s.router = interact.New(s.log)
	s.rec = reconcile.New(s.log, s.m)
	s.mk = markers.NewManager()

	s.vc = viewport.New(s.log, viewport.Options{
		Styles: s.opts.Styles,
		OnRevision: func(rev uint64) {
			if rev > 1 {
				s.m.IncStyleSwap()
			}
			// The swap dropped every feature-state entry with the style.
			s.router.ResetHover()
		},
		OnMove: func(center orb.Point, zoom float64, bounds [4]float64) {
			s.router.FireViewportChange(interact.ViewportChange{Center: center, Zoom: zoom, Bounds: bounds})
		},
	})

	s.router.SetCallbacks(interact.Callbacks{
		ViewportChanged: func(v interact.ViewportChange) {
			c, b := v.Center, v.Bounds
			s.emitHost(HostEvent{Type: "viewport_change", Center: &c, Zoom: v.Zoom, Bounds: &b})
		},
		MapClick: func(at orb.Point) {
			s.emitHost(HostEvent{Type: "map_click", LngLat: &at})
		},
		FeatureClick: func(f *geojson.Feature) {
			s.emitHost(HostEvent{Type: "feature_click", Feature: f})
		},
		ParcelToggle: func(f *geojson.Feature) {
			s.emitHost(HostEvent{Type: "parcel_toggle", Feature: f})
		},
		RingClick: func(radius float64, at orb.Point) {
			s.emitHost(HostEvent{Type: "ring_click", RadiusMiles: radius, LngLat: &at})
		},
	})

	if err := s.vc.Initialize(s.opts.Basemap, s.opts.Center, s.opts.Zoom); err != nil {
		s.log.Error().Err(err).Msg("viewport initialize failed")
		return
	}
	surf := s.vc.Surface()
	s.mapClickOff = surf.On(surface.EventClick, "", func(ev surface.Event) {
		s.router.FireMapClick(ev.LngLat)
	})
}

func (s *Session) teardown() {
	if surf := s.vc.Surface(); surf != nil {
		surf.Off(s.mapClickOff)
	}
	s.vc.Teardown()
	s.rec.DropListeners()
	s.rendererSend = nil
	s.hostSend = nil
	s.log.Debug().Msg("session torn down")
}

// Close requests teardown. Idempotent; commands posted after Close fail
// with ErrClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// do posts a closure to the loop without waiting for it.
func (s *Session) do(fn func()) bool {
	s.touch()
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call posts a closure and waits for its result.
func (s *Session) call(fn func() error) error {
	errc := make(chan error, 1)
	if !s.do(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// SetViewport applies a host-requested recenter. A nil zoom keeps the
// current zoom.
func (s *Session) SetViewport(center orb.Point, zoom *float64) error {
	return s.call(func() error {
		s.view.Center = center
		if zoom != nil {
			s.view.Zoom = *zoom
		}
		s.vc.SetCenter(center, zoom)
		return nil
	})
}

// SetBasemap requests a basemap swap. The style revision bumps only when
// the renderer acks the new style.
func (s *Session) SetBasemap(id string) error {
	return s.call(func() error {
		return s.vc.SetBasemap(id)
	})
}

// SetLayerTree replaces the layer-visibility tree.
func (s *Session) SetLayerTree(nodes []scene.LayerNode) error {
	return s.call(func() error {
		s.treeVis = scene.EffectiveVisibility(nodes)
		return nil
	})
}

// SetTool replaces the active tool and the current selection id.
func (s *Session) SetTool(tool scene.Tool, selectionID string) error {
	return s.call(func() error {
		s.tool = tool
		s.selectionID = selectionID
		s.router.SetTool(s.vc.Surface(), tool)
		return nil
	})
}

// SetRings toggles ring rendering and moves the selected-radius emphasis.
func (s *Session) SetRings(visible bool, selectedRadius float64) error {
	return s.call(func() error {
		s.ringsVisible = visible
		s.selectedRadius = selectedRadius
		return nil
	})
}

// SetCollection replaces one domain's feature collection.
func (s *Session) SetCollection(d scene.Domain, fc *geojson.FeatureCollection) error {
	return s.call(func() error {
		s.collections[d] = fc
		s.versions[d]++
		return nil
	})
}

// SetRefParcelConfig replaces the subject/comp identifier configuration.
func (s *Session) SetRefParcelConfig(cfg scene.RefParcelConfig) error {
	return s.call(func() error {
		s.refCfg = cfg
		s.refCfgVer++
		return nil
	})
}

// HandleRendererEvent ingests one event from the attached renderer. Events
// arriving after Close are dropped.
func (s *Session) HandleRendererEvent(ev surface.Event) {
	s.do(func() {
		surf := s.vc.Surface()
		if surf == nil {
			return
		}
		surf.Dispatch(ev)
	})
}

// AttachRenderer connects a renderer socket. The current mirror state is
// replayed as a synthetic op sequence so mid-session attachment starts from
// a consistent picture. Send runs on the session goroutine and must not
// block.
func (s *Session) AttachRenderer(send func([]surface.Op)) error {
	return s.call(func() error {
		s.rendererSend = send
		surf := s.vc.Surface()
		if surf == nil {
			return nil
		}
		// Drop ops accumulated with no renderer attached; the replay below
		// already reflects them.
		surf.TakeOps()
		if ops := surf.ReplayOps(); len(ops) > 0 {
			s.m.AddSurfaceOps(len(ops))
			send(ops)
		}
		return nil
	})
}

// DetachRenderer disconnects the renderer socket; the session keeps its
// mirror and replays on the next attach.
func (s *Session) DetachRenderer() {
	s.do(func() { s.rendererSend = nil })
}

// AttachHost connects the host event socket. Send runs on the session
// goroutine and must not block.
func (s *Session) AttachHost(send func(HostEvent)) error {
	return s.call(func() error {
		s.hostSend = send
		return nil
	})
}

func (s *Session) DetachHost() {
	s.do(func() { s.hostSend = nil })
}

// Summarize reports the session's current shape.
func (s *Session) Summarize() (Summary, error) {
	var out Summary
	err := s.call(func() error {
		counts := make(map[scene.Domain]int, len(s.collections))
		for d, fc := range s.collections {
			if fc != nil {
				counts[d] = len(fc.Features)
			}
		}
		out = Summary{
			ID:            s.id,
			Basemap:       s.vc.Basemap(),
			StyleRevision: s.vc.StyleRevision(),
			Center:        s.view.Center,
			Zoom:          s.view.Zoom,
			Tool:          s.tool,
			Counts:        s.vc.Surface().Counts(),
			FeatureCounts: counts,
			RingsVisible:  s.ringsVisible,
		}
		return nil
	})
	return out, err
}

// Inspect runs fn on the session goroutine with the live surface mirror.
// Intended for tests and diagnostics; fn must not retain the pointer.
func (s *Session) Inspect(fn func(*surface.State)) error {
	return s.call(func() error {
		fn(s.vc.Surface())
		return nil
	})
}

func (s *Session) emitHost(ev HostEvent) {
	if s.hostSend == nil {
		return
	}
	s.hostSend(ev)
}

func (s *Session) flushOps() {
	surf := s.vc.Surface()
	if surf == nil {
		return
	}
	ops := surf.TakeOps()
	if len(ops) == 0 {
		return
	}
	s.m.AddSurfaceOps(len(ops))
	if s.rendererSend != nil {
		s.rendererSend(ops)
	}
}
