package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"groundwork/mapcore/internal/classify"
	"groundwork/mapcore/internal/interact"
	"groundwork/mapcore/internal/markers"
	"groundwork/mapcore/internal/reconcile"
	"groundwork/mapcore/internal/rings"
	"groundwork/mapcore/internal/scene"
	"groundwork/mapcore/internal/surface"
)

const centerPinPrefix = "mapcore-center"

// reconcileAll re-runs every domain whose dependency fingerprint changed
// since its last applied pass. Nothing runs while the surface is missing,
// unloaded or mid-swap; the skipped work happens on the styleload bump.
func (s *Session) reconcileAll() {
	if !s.vc.Ready() {
		return
	}
	surf := s.vc.Surface()

	changed := false
	for _, d := range scene.Domains() {
		fp := s.fingerprint(d)
		if s.lastFP[string(d)] == fp {
			continue
		}
		if err := s.applyDomain(surf, d); err != nil {
			// A failed pass indicates a reconciler bug; the next dependency
			// change rebuilds the domain from scratch.
			s.log.Error().Err(err).Str("domain", string(d)).Msg("reconcile pass failed")
			delete(s.lastFP, string(d))
			continue
		}
		s.lastFP[string(d)] = fp
		s.m.IncReconcilePass(string(d))
		changed = true
	}

	s.syncCenterPin(surf)

	if changed {
		// Drawn annotations stay above ring shading and every other overlay.
		s.rec.Raise(surf, reconcile.SourceID(scene.DomainAnnotations))
	}
}

// fingerprint encodes everything a domain's pass depends on. A style
// revision bump changes every fingerprint, forcing the full re-add after
// the destructive reset.
func (s *Session) fingerprint(d scene.Domain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%t|%d", s.vc.StyleRevision(), s.domainVisible(d), s.versions[d])

	switch d {
	case scene.DomainRings:
		fmt.Fprintf(&b, "|%t|%v|%v|%v", s.ringsVisible, s.view.Center, s.opts.RingRadiiMiles, s.selectedRadius)
	case scene.DomainAnnotations:
		fmt.Fprintf(&b, "|%s", s.selectionID)
	case scene.DomainRefParcels:
		fmt.Fprintf(&b, "|%d", s.refCfgVer)
	}
	return b.String()
}

// domainVisible reads the layer tree; a domain absent from the tree is
// visible by default so sessions work before the host pushes a tree.
func (s *Session) domainVisible(d scene.Domain) bool {
	if s.treeVis == nil {
		return true
	}
	v, ok := s.treeVis[string(d)]
	if !ok {
		return true
	}
	return v
}

func (s *Session) applyDomain(surf *surface.State, d scene.Domain) error {
	prefix := reconcile.SourceID(d)
	visible := s.domainVisible(d)

	switch d {
	case scene.DomainPlanParcels:
		return s.rec.Apply(surf, reconcile.Pass{
			Prefix:  prefix,
			Visible: visible,
			Data:    s.collections[d],
			Layers:  reconcile.PlanParcelLayers(prefix),
		})

	case scene.DomainBoundary:
		return s.rec.Apply(surf, reconcile.Pass{
			Prefix:  prefix,
			Visible: visible,
			Data:    s.collections[d],
			Layers:  reconcile.BoundaryLayers(prefix),
		})

	case scene.DomainTaxParcels:
		return s.rec.Apply(surf, reconcile.Pass{
			Prefix:  prefix,
			Visible: visible,
			Data:    s.collections[d],
			Layers:  reconcile.TaxParcelLayers(prefix),
		})

	case scene.DomainSaleComps, scene.DomainRentComps:
		return s.applyComps(surf, d, prefix, visible)

	case scene.DomainAnnotations:
		return s.applyAnnotations(surf, prefix, visible)

	case scene.DomainRings:
		return s.applyRings(surf, prefix, visible)

	case scene.DomainRefParcels:
		return s.applyRefParcels(surf, prefix, visible)
	}
	return fmt.Errorf("unknown domain %q", d)
}

func (s *Session) applyComps(surf *surface.State, d scene.Domain, prefix string, visible bool) error {
	fc := s.collections[d]
	if err := s.rec.Apply(surf, reconcile.Pass{
		Prefix:  prefix,
		Visible: visible,
		Data:    fc,
		Layers:  reconcile.CompLayers(prefix, d),
	}); err != nil {
		return err
	}

	kind := markers.KindSale
	if d == scene.DomainRentComps {
		kind = markers.KindRent
	}
	var specs []surface.MarkerSpec
	if visible {
		var skipped int
		specs, skipped = markers.BuildSpecs(kind, prefix+"-marker", fc)
		if skipped > 0 {
			s.m.AddDroppedFeatures(skipped)
			s.log.Debug().Int("skipped", skipped).Str("domain", string(d)).Msg("skipped malformed comparables")
		}
	}
	return s.mk.Sync(surf, prefix+"-marker", specs)
}

func (s *Session) applyAnnotations(surf *surface.State, prefix string, visible bool) error {
	hitLayers := []string{prefix + "-fill", prefix + "-line", prefix + "-point"}

	var listeners []reconcile.Listener
	for _, layer := range hitLayers {
		listeners = append(listeners,
			reconcile.Listener{Event: surface.EventClick, Layer: layer, Fn: func(ev surface.Event) {
				s.router.FireFeatureClick(ev.Feature)
			}},
			reconcile.Listener{Event: surface.EventMouseEnter, Layer: layer, Fn: func(ev surface.Event) {
				if id, ok := interact.FeatureID(ev.Feature); ok {
					s.router.HoverEnter(s.vc.Surface(), layer, prefix, id)
				}
			}},
			reconcile.Listener{Event: surface.EventMouseLeave, Layer: layer, Fn: func(surface.Event) {
				s.router.HoverLeave(s.vc.Surface(), layer)
			}},
		)
	}

	return s.rec.Apply(surf, reconcile.Pass{
		Prefix:    prefix,
		Visible:   visible,
		Data:      s.collections[scene.DomainAnnotations],
		Layers:    reconcile.AnnotationLayers(prefix, s.selectionID),
		Listeners: listeners,
	})
}

func (s *Session) applyRings(surf *surface.State, prefix string, visible bool) error {
	visible = visible && s.ringsVisible

	var fc *geojson.FeatureCollection
	if visible {
		fc = reconcile.RingCollection(rings.Generate(s.view.Center, s.opts.RingRadiiMiles, s.selectedRadius))
	}

	fill := prefix + "-fill"
	return s.rec.Apply(surf, reconcile.Pass{
		Prefix:  prefix,
		Visible: visible,
		Data:    fc,
		Layers:  reconcile.RingLayers(prefix),
		Listeners: []reconcile.Listener{
			{Event: surface.EventClick, Layer: fill, Fn: func(ev surface.Event) {
				if ev.Feature == nil {
					return
				}
				if r, ok := propFloat(ev.Feature.Properties, "radius_miles"); ok {
					s.router.FireRingClick(r, ev.LngLat)
				}
			}},
		},
	})
}

func (s *Session) applyRefParcels(surf *surface.State, prefix string, visible bool) error {
	var fc *geojson.FeatureCollection
	if src := s.collections[scene.DomainRefParcels]; src != nil {
		b := classify.Partition(src, s.refCfg.SubjectID, s.refCfg.CompIDs, s.opts.ParcelIDFields)
		fc = reconcile.TagBuckets(b.Subject, b.Comp, b.Other)
	}

	var listeners []reconcile.Listener
	for _, bucket := range []string{reconcile.BucketOther, reconcile.BucketComp, reconcile.BucketSubject} {
		layer := prefix + "-" + bucket + "-fill"
		listeners = append(listeners,
			reconcile.Listener{Event: surface.EventClick, Layer: layer, Fn: func(ev surface.Event) {
				s.router.FireParcelToggle(ev.Feature)
			}},
			reconcile.Listener{Event: surface.EventMouseEnter, Layer: layer, Fn: func(ev surface.Event) {
				if id, ok := refParcelFeatureID(ev.Feature, s.opts.ParcelIDFields); ok {
					s.router.HoverEnter(s.vc.Surface(), layer, prefix, id)
				}
			}},
			reconcile.Listener{Event: surface.EventMouseLeave, Layer: layer, Fn: func(surface.Event) {
				s.router.HoverLeave(s.vc.Surface(), layer)
			}},
		)
	}

	return s.rec.Apply(surf, reconcile.Pass{
		Prefix:    prefix,
		Visible:   visible,
		Data:      fc,
		Layers:    reconcile.RefParcelLayers(prefix, s.opts.RefParcelMinZoom),
		Listeners: listeners,
	})
}

// syncCenterPin keeps the project-center marker in step with the requested
// center. Markers survive style swaps, so only a center change re-syncs.
func (s *Session) syncCenterPin(surf *surface.State) {
	fp := fmt.Sprintf("%v", s.view.Center)
	if s.lastFP[centerPinPrefix] == fp {
		return
	}
	spec := markers.CenterSpec(centerPinPrefix, s.view.Center)
	if err := s.mk.Sync(surf, centerPinPrefix, []surface.MarkerSpec{spec}); err != nil {
		s.log.Error().Err(err).Msg("center pin sync failed")
		return
	}
	s.lastFP[centerPinPrefix] = fp
}

// refParcelFeatureID prefers the parcel identifier for hover feature-state
// addressing; parcels rarely carry GeoJSON ids of their own.
func refParcelFeatureID(f *geojson.Feature, fields []string) (string, bool) {
	if f == nil {
		return "", false
	}
	if id, ok := interact.FeatureID(f); ok {
		return id, true
	}
	return classify.PrimaryID(f, fields)
}

func propFloat(props geojson.Properties, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
