// Package surface keeps an authoritative in-memory mirror of the remote
// rendering surface. Mutators validate against the mirror and append wire
// ops to a journal; a session drains the journal to the attached renderer.
// Renderer-originated events come back in through Dispatch.
//
// A State is owned by a single session goroutine and is not safe for
// concurrent use.
package surface

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrDuplicateSource = errors.New("duplicate source id")
	ErrDuplicateLayer  = errors.New("duplicate layer id")
	ErrDuplicateMarker = errors.New("duplicate marker id")
	ErrSourceMissing   = errors.New("source not found")
	ErrLayerMissing    = errors.New("layer not found")
	ErrMarkerMissing   = errors.New("marker not found")
	ErrSourceInUse     = errors.New("source still has layers")
)

type listener struct {
	handle int
	typ    EventType
	layer  string
	fn     HandlerFunc
}

// State mirrors the renderer: style, camera, sources, layers (in paint
// order), markers, transient feature state, the pointer cursor and the set
// of registered event listeners.
type State struct {
	loaded  bool
	styleID string
	center  orb.Point
	zoom    float64
	cursor  string

	sources     map[string]*SourceSpec
	sourceOrder []string
	layers      map[string]*LayerSpec
	layerOrder  []string
	markers     map[string]*MarkerSpec
	markerOrder []string

	// featState is source id -> feature id -> key -> value.
	featState map[string]map[string]map[string]any

	listeners  map[int]*listener
	nextHandle int

	journal []Op
}

func New(styleID string, center orb.Point, zoom float64) *State {
	return &State{
		styleID:   styleID,
		center:    center,
		zoom:      zoom,
		sources:   make(map[string]*SourceSpec),
		layers:    make(map[string]*LayerSpec),
		markers:   make(map[string]*MarkerSpec),
		featState: make(map[string]map[string]map[string]any),
		listeners: make(map[int]*listener),
	}
}

func (s *State) Loaded() bool      { return s != nil && s.loaded }
func (s *State) StyleID() string   { return s.styleID }
func (s *State) Center() orb.Point { return s.center }
func (s *State) Zoom() float64     { return s.zoom }
func (s *State) Cursor() string    { return s.cursor }

// AddSource registers a GeoJSON source. Duplicate ids are rejected; the
// reconciliation algorithm removes before adding, so hitting this error
// indicates a reconciler bug.
func (s *State) AddSource(id string, data *geojson.FeatureCollection) error {
	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, id)
	}
	spec := &SourceSpec{ID: id, Data: data}
	s.sources[id] = spec
	s.sourceOrder = append(s.sourceOrder, id)
	s.journal = append(s.journal, Op{Kind: OpAddSource, Source: spec})
	return nil
}

// RemoveSource drops a source. Layers must be removed first.
func (s *State) RemoveSource(id string) error {
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceMissing, id)
	}
	for _, l := range s.layers {
		if l.Source == id {
			return fmt.Errorf("%w: %s (layer %s)", ErrSourceInUse, id, l.ID)
		}
	}
	delete(s.sources, id)
	s.sourceOrder = removeString(s.sourceOrder, id)
	delete(s.featState, id)
	s.journal = append(s.journal, Op{Kind: OpRemoveSource, ID: id})
	return nil
}

// AddLayer appends a layer to the top of the paint order. The layer's
// source must already exist.
func (s *State) AddLayer(spec LayerSpec) error {
	if _, ok := s.layers[spec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, spec.ID)
	}
	if _, ok := s.sources[spec.Source]; !ok {
		return fmt.Errorf("%w: %s (wanted by layer %s)", ErrSourceMissing, spec.Source, spec.ID)
	}
	stored := spec
	s.layers[spec.ID] = &stored
	s.layerOrder = append(s.layerOrder, spec.ID)
	s.journal = append(s.journal, Op{Kind: OpAddLayer, Layer: &stored})
	return nil
}

func (s *State) RemoveLayer(id string) error {
	if _, ok := s.layers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrLayerMissing, id)
	}
	delete(s.layers, id)
	s.layerOrder = removeString(s.layerOrder, id)
	s.journal = append(s.journal, Op{Kind: OpRemoveLayer, ID: id})
	return nil
}

// RaiseLayer moves a layer to the top of the paint order.
func (s *State) RaiseLayer(id string) error {
	if _, ok := s.layers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrLayerMissing, id)
	}
	s.layerOrder = removeString(s.layerOrder, id)
	s.layerOrder = append(s.layerOrder, id)
	s.journal = append(s.journal, Op{Kind: OpRaiseLayer, ID: id})
	return nil
}

// Layer returns the stored spec for id.
func (s *State) Layer(id string) (LayerSpec, bool) {
	l, ok := s.layers[id]
	if !ok {
		return LayerSpec{}, false
	}
	return *l, true
}

// LayersWithPrefix returns layer ids under an id prefix in paint order.
func (s *State) LayersWithPrefix(prefix string) []string {
	var out []string
	for _, id := range s.layerOrder {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}

// SourcesWithPrefix returns source ids under an id prefix in add order.
func (s *State) SourcesWithPrefix(prefix string) []string {
	var out []string
	for _, id := range s.sourceOrder {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}

func (s *State) AddMarker(spec MarkerSpec) error {
	if _, ok := s.markers[spec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMarker, spec.ID)
	}
	stored := spec
	s.markers[spec.ID] = &stored
	s.markerOrder = append(s.markerOrder, spec.ID)
	s.journal = append(s.journal, Op{Kind: OpAddMarker, Marker: &stored})
	return nil
}

func (s *State) RemoveMarker(id string) error {
	if _, ok := s.markers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMarkerMissing, id)
	}
	delete(s.markers, id)
	s.markerOrder = removeString(s.markerOrder, id)
	s.journal = append(s.journal, Op{Kind: OpRemoveMarker, ID: id})
	return nil
}

// MarkersWithPrefix returns marker ids under an id prefix in add order.
func (s *State) MarkersWithPrefix(prefix string) []string {
	var out []string
	for _, id := range s.markerOrder {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}

// SetFeatureState sets a transient per-feature flag. The source must exist;
// the feature id is opaque to the mirror.
func (s *State) SetFeatureState(sourceID, featureID, key string, value any) error {
	if _, ok := s.sources[sourceID]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceMissing, sourceID)
	}
	bySource := s.featState[sourceID]
	if bySource == nil {
		bySource = make(map[string]map[string]any)
		s.featState[sourceID] = bySource
	}
	byFeature := bySource[featureID]
	if byFeature == nil {
		byFeature = make(map[string]any)
		bySource[featureID] = byFeature
	}
	byFeature[key] = value
	s.journal = append(s.journal, Op{
		Kind:    OpSetFeatureState,
		Feature: &FeatureRef{Source: sourceID, Feature: featureID, Key: key},
		Value:   value,
	})
	return nil
}

// ClearFeatureState removes a transient flag. It is lenient: clearing state
// that is already gone (for example after a style replacement) is a no-op.
func (s *State) ClearFeatureState(sourceID, featureID, key string) {
	byFeature := s.featState[sourceID][featureID]
	if byFeature == nil {
		return
	}
	if _, ok := byFeature[key]; !ok {
		return
	}
	delete(byFeature, key)
	if len(byFeature) == 0 {
		delete(s.featState[sourceID], featureID)
	}
	s.journal = append(s.journal, Op{
		Kind:    OpClearFeatureState,
		Feature: &FeatureRef{Source: sourceID, Feature: featureID, Key: key},
	})
}

// FeatureState reads a transient flag back.
func (s *State) FeatureState(sourceID, featureID, key string) (any, bool) {
	v, ok := s.featState[sourceID][featureID][key]
	return v, ok
}

// SetCursor updates the pointer cursor. The empty string is the default
// cursor. Redundant sets are dropped to keep the journal quiet.
func (s *State) SetCursor(cursor string) {
	if s.cursor == cursor {
		return
	}
	s.cursor = cursor
	s.journal = append(s.journal, Op{Kind: OpSetCursor, Cursor: cursor})
}

// SetStyle replaces the basemap style. This is destructive: every source,
// layer and feature-state entry is dropped atomically. Markers and listener
// registrations live outside the style and survive.
func (s *State) SetStyle(styleID string) {
	s.styleID = styleID
	s.sources = make(map[string]*SourceSpec)
	s.sourceOrder = nil
	s.layers = make(map[string]*LayerSpec)
	s.layerOrder = nil
	s.featState = make(map[string]map[string]map[string]any)
	s.journal = append(s.journal, Op{Kind: OpSetStyle, Style: styleID})
}

// Jump moves the camera without animation.
func (s *State) Jump(center orb.Point, zoom float64) {
	s.center = center
	s.zoom = zoom
	c := center
	s.journal = append(s.journal, Op{Kind: OpJumpTo, Center: &c, Zoom: zoom})
}

// On registers a listener. Layer-scoped registrations are mirrored to the
// renderer so it knows which layers to hit-test; lifecycle events (load,
// styleload, moveend) are always delivered and need no listen op.
func (s *State) On(typ EventType, layerID string, fn HandlerFunc) int {
	s.nextHandle++
	h := s.nextHandle
	s.listeners[h] = &listener{handle: h, typ: typ, layer: layerID, fn: fn}
	if layerID != "" {
		s.journal = append(s.journal, Op{Kind: OpListen, Event: typ, ID: layerID})
	}
	return h
}

// Off unregisters a listener handle. Unknown handles are ignored so cleanup
// paths can run from both re-renders and teardown.
func (s *State) Off(handle int) {
	l, ok := s.listeners[handle]
	if !ok {
		return
	}
	delete(s.listeners, handle)
	if l.layer != "" {
		s.journal = append(s.journal, Op{Kind: OpUnlisten, Event: l.typ, ID: l.layer})
	}
}

// Dispatch routes one renderer event to matching listeners. Lifecycle
// events update the mirrored camera/load state first. Listener sets are
// snapshotted before invocation so handlers may register and unregister
// freely.
func (s *State) Dispatch(ev Event) {
	switch ev.Type {
	case EventLoad:
		s.loaded = true
	case EventMoveEnd:
		s.center = ev.Center
		if ev.Zoom != nil {
			s.zoom = *ev.Zoom
		}
	}

	var matched []*listener
	for _, l := range s.listeners {
		if l.typ == ev.Type && l.layer == ev.Layer {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].handle < matched[j].handle })
	for _, l := range matched {
		l.fn(ev)
	}
}

// TakeOps drains the journal.
func (s *State) TakeOps() []Op {
	ops := s.journal
	s.journal = nil
	return ops
}

// PendingOps reports the journal length without draining it.
func (s *State) PendingOps() int { return len(s.journal) }

// ReplayOps synthesizes the op sequence that rebuilds the current mirror on
// a renderer attaching mid-session. The live journal is untouched.
func (s *State) ReplayOps() []Op {
	var ops []Op
	ops = append(ops, Op{Kind: OpSetStyle, Style: s.styleID})
	c := s.center
	ops = append(ops, Op{Kind: OpJumpTo, Center: &c, Zoom: s.zoom})
	for _, id := range s.sourceOrder {
		ops = append(ops, Op{Kind: OpAddSource, Source: s.sources[id]})
	}
	for _, id := range s.layerOrder {
		ops = append(ops, Op{Kind: OpAddLayer, Layer: s.layers[id]})
	}
	for _, sourceID := range s.sourceOrder {
		byFeature := s.featState[sourceID]
		featIDs := make([]string, 0, len(byFeature))
		for fid := range byFeature {
			featIDs = append(featIDs, fid)
		}
		sort.Strings(featIDs)
		for _, fid := range featIDs {
			keys := make([]string, 0, len(byFeature[fid]))
			for k := range byFeature[fid] {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				ops = append(ops, Op{
					Kind:    OpSetFeatureState,
					Feature: &FeatureRef{Source: sourceID, Feature: fid, Key: k},
					Value:   byFeature[fid][k],
				})
			}
		}
	}
	for _, id := range s.markerOrder {
		ops = append(ops, Op{Kind: OpAddMarker, Marker: s.markers[id]})
	}
	if s.cursor != "" {
		ops = append(ops, Op{Kind: OpSetCursor, Cursor: s.cursor})
	}
	handles := make([]int, 0, len(s.listeners))
	for h := range s.listeners {
		handles = append(handles, h)
	}
	sort.Ints(handles)
	for _, h := range handles {
		l := s.listeners[h]
		if l.layer != "" {
			ops = append(ops, Op{Kind: OpListen, Event: l.typ, ID: l.layer})
		}
	}
	return ops
}

// Counts summarizes mirror occupancy for session introspection.
type Counts struct {
	Sources   int `json:"sources"`
	Layers    int `json:"layers"`
	Markers   int `json:"markers"`
	Listeners int `json:"listeners"`
}

func (s *State) Counts() Counts {
	if s == nil {
		return Counts{}
	}
	return Counts{
		Sources:   len(s.sources),
		Layers:    len(s.layers),
		Markers:   len(s.markers),
		Listeners: len(s.listeners),
	}
}

// LayerOrder returns all layer ids bottom-to-top.
func (s *State) LayerOrder() []string {
	out := make([]string, len(s.layerOrder))
	copy(out, s.layerOrder)
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
