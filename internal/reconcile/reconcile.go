// Package reconcile brings the rendering surface's sources and layers for
// one data domain in line with a declarative target. The algorithm is the
// same for every domain: unregister the listeners stored from the previous
// pass, remove the domain's layers then its source, stop if the domain is
// hidden or empty, then add the source, the layers in declared paint order
// and the new listeners. Removal always precedes addition, so duplicate-id
// failures cannot occur; a pass against a missing surface is a silent no-op
// retried on the next dependency change.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/metrics"
	"groundwork/mapcore/internal/surface"
)

// Listener wires one event handler to a layer added by the same pass. The
// reconciler owns the registration handle and unregisters it before the
// next pass touches the domain.
type Listener struct {
	Event surface.EventType
	Layer string
	Fn    surface.HandlerFunc
}

// Pass is one domain's target state. Prefix doubles as the source id; every
// layer and listener of the pass must live under it.
type Pass struct {
	Prefix    string
	Visible   bool
	Data      *geojson.FeatureCollection
	Layers    []surface.LayerSpec
	Listeners []Listener
}

// Reconciler applies passes and remembers per-prefix listener handles so a
// re-run can deterministically unregister them first. One reconciler serves
// all domains of a session; it is not safe for concurrent use.
type Reconciler struct {
	log     zerolog.Logger
	m       *metrics.Metrics
	handles map[string][]int
}

func New(log zerolog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		log:     log,
		m:       m,
		handles: make(map[string][]int),
	}
}

// Apply runs one reconciliation pass. A nil surface means the viewport is
// uninitialized or mid-swap; the pass is skipped, not failed.
func (r *Reconciler) Apply(surf *surface.State, p Pass) error {
	if r == nil || surf == nil {
		return nil
	}
	if p.Prefix == "" {
		return fmt.Errorf("reconcile pass without a prefix")
	}

	r.clear(surf, p.Prefix)

	if !p.Visible || p.Data == nil || len(p.Data.Features) == 0 {
		return nil
	}

	if err := surf.AddSource(p.Prefix, p.Data); err != nil {
		return fmt.Errorf("add source %s: %w", p.Prefix, err)
	}
	for _, spec := range p.Layers {
		if !strings.HasPrefix(spec.ID, p.Prefix) {
			return fmt.Errorf("layer %q outside prefix %q", spec.ID, p.Prefix)
		}
		if spec.Source == "" {
			spec.Source = p.Prefix
		}
		if err := surf.AddLayer(spec); err != nil {
			return fmt.Errorf("add layer %s: %w", spec.ID, err)
		}
	}
	r.m.AddLayersAdded(len(p.Layers))

	for _, l := range p.Listeners {
		if !strings.HasPrefix(l.Layer, p.Prefix) {
			return fmt.Errorf("listener layer %q outside prefix %q", l.Layer, p.Prefix)
		}
		h := surf.On(l.Event, l.Layer, l.Fn)
		r.handles[p.Prefix] = append(r.handles[p.Prefix], h)
	}
	return nil
}

// Clear removes everything the reconciler owns under prefix. Used when a
// domain goes away entirely and from teardown; safe to call repeatedly.
func (r *Reconciler) Clear(surf *surface.State, prefix string) {
	if r == nil || surf == nil {
		return
	}
	r.clear(surf, prefix)
}

func (r *Reconciler) clear(surf *surface.State, prefix string) {
	for _, h := range r.handles[prefix] {
		surf.Off(h)
	}
	delete(r.handles, prefix)

	layers := surf.LayersWithPrefix(prefix)
	for _, id := range layers {
		if err := surf.RemoveLayer(id); err != nil {
			r.log.Error().Err(err).Str("layer", id).Msg("remove layer failed")
		}
	}
	r.m.AddLayersRemoved(len(layers))
	for _, id := range surf.SourcesWithPrefix(prefix) {
		if err := surf.RemoveSource(id); err != nil {
			r.log.Error().Err(err).Str("source", id).Msg("remove source failed")
		}
	}
}

// DropListeners forgets every stored handle without touching the surface.
// Called when the surface itself is torn down and the handles are dead.
func (r *Reconciler) DropListeners() {
	if r == nil {
		return
	}
	for k := range r.handles {
		delete(r.handles, k)
	}
}

// Raise moves every layer under prefix to the top of the paint order,
// preserving their relative order. Drawn annotations are re-raised after
// each pass so they stay visible through demographic ring shading.
func (r *Reconciler) Raise(surf *surface.State, prefix string) {
	if r == nil || surf == nil {
		return
	}
	for _, id := range surf.LayersWithPrefix(prefix) {
		if err := surf.RaiseLayer(id); err != nil {
			r.log.Error().Err(err).Str("layer", id).Msg("raise layer failed")
		}
	}
}
