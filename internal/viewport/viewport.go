// Package viewport owns the single live rendering-surface handle for a
// session: one-time initialization, basemap swaps, non-animated recenters
// and teardown. It also tracks the style revision — the monotonic counter
// every reconciliation pass depends on, bumped exactly once per completed
// basemap swap so the destructive reset forces a full re-sync.
package viewport

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/surface"
)

// Options wires the controller's notifications. Callbacks run on the
// session goroutine during event dispatch.
type Options struct {
	// Styles maps basemap ids to style URLs.
	Styles map[string]string

	// OnRevision fires after every style-revision bump, including the
	// initial load.
	OnRevision func(rev uint64)

	// OnMove fires when the camera settles after a pan or zoom.
	OnMove func(center orb.Point, zoom float64, bounds [4]float64)
}

type Controller struct {
	log    zerolog.Logger
	styles map[string]string

	onRevision func(uint64)
	onMove     func(orb.Point, float64, [4]float64)

	surf       *surface.State
	revision   uint64
	basemapID  string
	pendingURL string
	handles    []int

	// appliedCenter/appliedZoom is the last host-applied camera; the no-op
	// check in SetCenter compares against it. camCenter/camZoom track the
	// observed camera, which user pans move without touching the applied
	// point.
	appliedCenter orb.Point
	appliedZoom   float64
	placed        bool
	camCenter     orb.Point
	camZoom       float64
}

func New(log zerolog.Logger, opts Options) *Controller {
	return &Controller{
		log:        log,
		styles:     opts.Styles,
		onRevision: opts.OnRevision,
		onMove:     opts.OnMove,
	}
}

// Initialize creates the surface with the initial basemap and camera and
// registers the lifecycle listeners. Calling it again on a live controller
// is a no-op.
func (c *Controller) Initialize(basemapID string, center orb.Point, zoom float64) error {
	if c.surf != nil {
		return nil
	}
	url, ok := c.styles[basemapID]
	if !ok {
		return fmt.Errorf("unknown basemap %q", basemapID)
	}

	c.surf = surface.New(url, center, zoom)
	c.basemapID = basemapID
	c.pendingURL = ""
	c.appliedCenter = center
	c.appliedZoom = zoom
	c.camCenter = center
	c.camZoom = zoom
	c.placed = true

	c.handles = append(c.handles,
		c.surf.On(surface.EventLoad, "", c.handleLoad),
		c.surf.On(surface.EventStyleLoad, "", c.handleStyleLoad),
		c.surf.On(surface.EventMoveEnd, "", c.handleMoveEnd),
	)
	return nil
}

func (c *Controller) handleLoad(surface.Event) {
	if c.revision != 0 {
		// Renderers re-attaching mid-session replay from current state and
		// must not re-arm the initial revision.
		return
	}
	c.revision = 1
	c.log.Debug().Uint64("style_revision", c.revision).Msg("surface loaded")
	if c.onRevision != nil {
		c.onRevision(c.revision)
	}
}

func (c *Controller) handleStyleLoad(ev surface.Event) {
	if c.pendingURL == "" {
		c.log.Debug().Str("style", ev.Style).Msg("ignoring style ack with no swap in flight")
		return
	}
	if ev.Style != c.pendingURL {
		// A newer swap superseded this one; last request wins.
		c.log.Debug().Str("style", ev.Style).Str("pending", c.pendingURL).Msg("ignoring stale style ack")
		return
	}
	c.pendingURL = ""
	c.revision++
	c.log.Info().Uint64("style_revision", c.revision).Str("basemap", c.basemapID).Msg("basemap swap completed")
	if c.onRevision != nil {
		c.onRevision(c.revision)
	}
}

func (c *Controller) handleMoveEnd(ev surface.Event) {
	c.camCenter = ev.Center
	if ev.Zoom != nil {
		c.camZoom = *ev.Zoom
	}
	if c.onMove != nil {
		c.onMove(ev.Center, c.camZoom, ev.Bounds)
	}
}

// SetBasemap requests a style swap. Re-requesting the active (or already
// in-flight) basemap is a no-op; the revision bumps only when the swap
// completes.
func (c *Controller) SetBasemap(id string) error {
	if c == nil || c.surf == nil {
		return nil
	}
	if id == c.basemapID {
		return nil
	}
	url, ok := c.styles[id]
	if !ok {
		return fmt.Errorf("unknown basemap %q", id)
	}
	c.basemapID = id
	c.pendingURL = url
	c.surf.SetStyle(url)
	return nil
}

// SetCenter jumps the camera without animation. Re-requesting the last
// applied point (with no new zoom) is skipped, so a host re-push of an
// unchanged center never fights a deliberate user pan. A nil zoom keeps the
// camera's current zoom.
func (c *Controller) SetCenter(center orb.Point, zoom *float64) {
	if c == nil || c.surf == nil {
		return
	}
	if c.placed && center == c.appliedCenter && (zoom == nil || *zoom == c.appliedZoom) {
		return
	}
	z := c.camZoom
	if zoom != nil {
		z = *zoom
	}
	c.surf.Jump(center, z)
	c.appliedCenter = center
	c.appliedZoom = z
	c.camCenter = center
	c.camZoom = z
	c.placed = true
}

// Teardown releases the controller's listeners and drops the surface
// handle. Safe to call repeatedly and before Initialize.
func (c *Controller) Teardown() {
	if c == nil || c.surf == nil {
		return
	}
	for _, h := range c.handles {
		c.surf.Off(h)
	}
	c.handles = nil
	c.surf = nil
	c.pendingURL = ""
}

// Surface returns the exclusively-owned surface handle, nil before
// Initialize and after Teardown. Other components must reach the surface
// through this accessor on every use, never by holding their own copy.
func (c *Controller) Surface() *surface.State {
	if c == nil {
		return nil
	}
	return c.surf
}

// StyleRevision returns the monotonic re-sync counter. Zero means the
// initial style has not finished loading and no reconciliation may run.
func (c *Controller) StyleRevision() uint64 {
	if c == nil {
		return 0
	}
	return c.revision
}

// Basemap returns the id of the applied (or in-flight) basemap.
func (c *Controller) Basemap() string {
	if c == nil {
		return ""
	}
	return c.basemapID
}

// PendingStyleURL returns the style URL of an in-flight swap, empty when
// none is pending.
func (c *Controller) PendingStyleURL() string {
	if c == nil {
		return ""
	}
	return c.pendingURL
}

// Ready reports whether reconciliation may touch the surface: it exists,
// the initial style has loaded and no swap is in flight.
func (c *Controller) Ready() bool {
	return c != nil && c.surf != nil && c.revision > 0 && c.pendingURL == ""
}

// LastCenter returns the observed camera center, including user pans.
func (c *Controller) LastCenter() orb.Point {
	if c == nil {
		return orb.Point{}
	}
	return c.camCenter
}

// LastZoom returns the observed camera zoom.
func (c *Controller) LastZoom() float64 {
	if c == nil {
		return 0
	}
	return c.camZoom
}
