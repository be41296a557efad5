package surface

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// OpKind names one imperative instruction mirrored to the renderer.
type OpKind string

const (
	OpAddSource         OpKind = "addSource"
	OpRemoveSource      OpKind = "removeSource"
	OpAddLayer          OpKind = "addLayer"
	OpRemoveLayer       OpKind = "removeLayer"
	OpRaiseLayer        OpKind = "raiseLayer"
	OpSetStyle          OpKind = "setStyle"
	OpJumpTo            OpKind = "jumpTo"
	OpAddMarker         OpKind = "addMarker"
	OpRemoveMarker      OpKind = "removeMarker"
	OpSetFeatureState   OpKind = "setFeatureState"
	OpClearFeatureState OpKind = "clearFeatureState"
	OpSetCursor         OpKind = "setCursor"
	OpListen            OpKind = "listen"
	OpUnlisten          OpKind = "unlisten"
)

// LayerType is the rendering primitive a layer draws with.
type LayerType string

const (
	LayerFill   LayerType = "fill"
	LayerLine   LayerType = "line"
	LayerCircle LayerType = "circle"
)

// SourceSpec is a GeoJSON source as the renderer sees it.
type SourceSpec struct {
	ID   string                     `json:"id"`
	Data *geojson.FeatureCollection `json:"data"`
}

// LayerSpec describes one styled layer bound to a source. Paint and layout
// follow the renderer's property naming; Filter is a style expression.
type LayerSpec struct {
	ID      string         `json:"id"`
	Type    LayerType      `json:"type"`
	Source  string         `json:"source"`
	Paint   map[string]any `json:"paint,omitempty"`
	Layout  map[string]any `json:"layout,omitempty"`
	Filter  []any          `json:"filter,omitempty"`
	MinZoom float64        `json:"minzoom,omitempty"`
}

// MarkerSpec is a DOM overlay marker with an optional popup. Markers live
// outside the style, so they survive a style replacement.
type MarkerSpec struct {
	ID    string    `json:"id"`
	At    orb.Point `json:"at"`
	Color string    `json:"color,omitempty"`
	Popup string    `json:"popup,omitempty"`
}

// FeatureRef addresses one feature's transient state within a source.
type FeatureRef struct {
	Source  string `json:"source"`
	Feature string `json:"feature"`
	Key     string `json:"key"`
}

// Op is one journal entry streamed to the renderer. Kind selects which of
// the optional payload fields are meaningful.
type Op struct {
	Kind    OpKind      `json:"op"`
	Source  *SourceSpec `json:"source,omitempty"`
	Layer   *LayerSpec  `json:"layer,omitempty"`
	Marker  *MarkerSpec `json:"marker,omitempty"`
	Style   string      `json:"style,omitempty"`
	ID      string      `json:"id,omitempty"`
	Event   EventType   `json:"event,omitempty"`
	Center  *orb.Point  `json:"center,omitempty"`
	Zoom    float64     `json:"zoom,omitempty"`
	Cursor  string      `json:"cursor,omitempty"`
	Feature *FeatureRef `json:"feature,omitempty"`
	Value   any         `json:"value,omitempty"`
}

// EventType names one renderer-originated event.
type EventType string

const (
	EventLoad       EventType = "load"
	EventStyleLoad  EventType = "styleload"
	EventMoveEnd    EventType = "moveend"
	EventClick      EventType = "click"
	EventMouseEnter EventType = "mouseenter"
	EventMouseLeave EventType = "mouseleave"
)

// Event is one renderer-originated event. Layer is set for events scoped to
// a listened layer and empty for map-level events. Bounds is [west, south,
// east, north]. Zoom is nil when the event carries no camera zoom; zero is
// a valid zoom.
type Event struct {
	Type    EventType        `json:"type"`
	Layer   string           `json:"layer,omitempty"`
	Style   string           `json:"style,omitempty"`
	LngLat  orb.Point        `json:"lnglat"`
	Center  orb.Point        `json:"center"`
	Zoom    *float64         `json:"zoom,omitempty"`
	Bounds  [4]float64       `json:"bounds"`
	Feature *geojson.Feature `json:"feature,omitempty"`
}

// HandlerFunc receives dispatched events for one listener registration.
type HandlerFunc func(Event)
