// Package interact translates layer-scoped pointer events into the
// high-level callbacks the host application consumes, runs the cursor state
// machine keyed by the active tool, and enforces the single-hover invariant
// per pointer-tracked layer.
package interact

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/scene"
	"groundwork/mapcore/internal/surface"
)

// Cursor names as the renderer understands them; empty is the default.
const (
	CursorDefault    = ""
	CursorCrosshair  = "crosshair"
	CursorMove       = "move"
	CursorNotAllowed = "not-allowed"
	CursorPointer    = "pointer"
)

// ViewportChange is the settle notification payload. Bounds is
// [west, south, east, north].
type ViewportChange struct {
	Center orb.Point  `json:"center"`
	Zoom   float64    `json:"zoom"`
	Bounds [4]float64 `json:"bounds"`
}

// Callbacks are the caller-supplied hooks. Any of them may be nil. The
// router holds the latest set in a single slot replaced wholesale, and all
// listeners read through that slot at dispatch time, so swapping callbacks
// never requires re-registering surface listeners.
type Callbacks struct {
	ViewportChanged func(ViewportChange)
	MapClick        func(at orb.Point)
	FeatureClick    func(f *geojson.Feature)
	ParcelToggle    func(f *geojson.Feature)
	RingClick       func(radiusMiles float64, at orb.Point)
}

type hoverRef struct {
	source  string
	feature string
}

type Router struct {
	log  zerolog.Logger
	cbs  Callbacks
	tool scene.Tool

	// hovered holds at most one highlighted feature per tracked layer.
	hovered map[string]hoverRef
}

func New(log zerolog.Logger) *Router {
	return &Router{
		log:     log,
		tool:    scene.ToolNone,
		hovered: make(map[string]hoverRef),
	}
}

// SetCallbacks replaces the callback slot.
func (r *Router) SetCallbacks(cbs Callbacks) {
	if r == nil {
		return
	}
	r.cbs = cbs
}

// SetTool updates the active tool and applies its cursor.
func (r *Router) SetTool(surf *surface.State, tool scene.Tool) {
	if r == nil {
		return
	}
	r.tool = tool
	if surf != nil {
		surf.SetCursor(cursorFor(tool))
	}
}

func (r *Router) Tool() scene.Tool {
	if r == nil {
		return scene.ToolNone
	}
	return r.tool
}

func cursorFor(tool scene.Tool) string {
	switch tool {
	case scene.ToolPoint, scene.ToolLine, scene.ToolPolygon:
		return CursorCrosshair
	case scene.ToolEdit:
		return CursorMove
	case scene.ToolDelete:
		return CursorNotAllowed
	default:
		return CursorDefault
	}
}

// FireViewportChange forwards a settle notification.
func (r *Router) FireViewportChange(v ViewportChange) {
	if r == nil || r.cbs.ViewportChanged == nil {
		return
	}
	r.cbs.ViewportChanged(v)
}

// FireMapClick forwards a click that no feature absorbed. Draw tools
// capture map clicks for drawing, so those are swallowed here.
func (r *Router) FireMapClick(at orb.Point) {
	if r == nil || r.cbs.MapClick == nil {
		return
	}
	if r.tool.IsDraw() {
		return
	}
	r.cbs.MapClick(at)
}

// FireFeatureClick forwards a click on a drawn annotation.
func (r *Router) FireFeatureClick(f *geojson.Feature) {
	if r == nil || r.cbs.FeatureClick == nil || f == nil {
		return
	}
	r.cbs.FeatureClick(f)
}

// FireParcelToggle forwards a click on a reference-parcel overlay.
func (r *Router) FireParcelToggle(f *geojson.Feature) {
	if r == nil || r.cbs.ParcelToggle == nil || f == nil {
		return
	}
	r.cbs.ParcelToggle(f)
}

// FireRingClick forwards a ring click. Draw tools capture all clicks for
// drawing, so those suppress it; edit and delete act on existing features
// and leave ring selection available.
func (r *Router) FireRingClick(radiusMiles float64, at orb.Point) {
	if r == nil || r.cbs.RingClick == nil {
		return
	}
	if r.tool.IsDraw() {
		return
	}
	r.cbs.RingClick(radiusMiles, at)
}

// HoverEnter highlights a feature on a tracked layer. The previous
// highlight for that layer is cleared first, as one atomic swap, so rapid
// pointer movement can never leave two features highlighted at once.
func (r *Router) HoverEnter(surf *surface.State, layerID, sourceID, featureID string) {
	if r == nil || surf == nil || featureID == "" {
		return
	}
	if prev, ok := r.hovered[layerID]; ok {
		surf.ClearFeatureState(prev.source, prev.feature, "hover")
	}
	if err := surf.SetFeatureState(sourceID, featureID, "hover", true); err != nil {
		// The source can disappear between the renderer event and dispatch
		// (mid-swap); drop the highlight rather than carrying a stale slot.
		delete(r.hovered, layerID)
		return
	}
	r.hovered[layerID] = hoverRef{source: sourceID, feature: featureID}
	if r.tool == scene.ToolNone {
		surf.SetCursor(CursorPointer)
	}
}

// HoverLeave clears the tracked layer's highlight and restores the default
// cursor when no tool is active.
func (r *Router) HoverLeave(surf *surface.State, layerID string) {
	if r == nil || surf == nil {
		return
	}
	if prev, ok := r.hovered[layerID]; ok {
		surf.ClearFeatureState(prev.source, prev.feature, "hover")
		delete(r.hovered, layerID)
	}
	if r.tool == scene.ToolNone {
		surf.SetCursor(CursorDefault)
	}
}

// ResetHover drops every hover slot without touching the surface. Called
// after a style swap, which already cleared all feature state.
func (r *Router) ResetHover() {
	if r == nil {
		return
	}
	for k := range r.hovered {
		delete(r.hovered, k)
	}
}

// HoveredOn reports the currently highlighted feature for a layer.
func (r *Router) HoveredOn(layerID string) (source, feature string, ok bool) {
	if r == nil {
		return "", "", false
	}
	ref, ok := r.hovered[layerID]
	return ref.source, ref.feature, ok
}

// FeatureID renders a feature's id for feature-state addressing. GeoJSON
// ids decode as strings or numbers.
func FeatureID(f *geojson.Feature) (string, bool) {
	if f == nil || f.ID == nil {
		return "", false
	}
	switch id := f.ID.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	default:
		return "", false
	}
}
