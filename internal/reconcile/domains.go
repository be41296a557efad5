package reconcile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"groundwork/mapcore/internal/scene"
	"groundwork/mapcore/internal/surface"
)

// SourceID returns the surface source id for a domain. Every layer of the
// domain lives under this prefix.
func SourceID(d scene.Domain) string {
	return "mapcore-" + string(d)
}

// Layer ordering within a domain follows one rule: fills first, strokes
// above them, selection emphasis above its neutral counterpart, so area
// shading never obscures a required highlight stroke.

// PlanParcelLayers renders the development plan's parcel polygons.
func PlanParcelLayers(prefix string) []surface.LayerSpec {
	return []surface.LayerSpec{
		{
			ID:    prefix + "-fill",
			Type:  surface.LayerFill,
			Paint: map[string]any{"fill-color": "#3b82f6", "fill-opacity": 0.15},
		},
		{
			ID:    prefix + "-line",
			Type:  surface.LayerLine,
			Paint: map[string]any{"line-color": "#1d4ed8", "line-width": 1.5},
		},
	}
}

// BoundaryLayers renders the project boundary. Geometry arrives as a
// polygon in the usual case but degrades to a point when only a site pin
// is known, so both primitives are declared with type filters.
func BoundaryLayers(prefix string) []surface.LayerSpec {
	return []surface.LayerSpec{
		{
			ID:     prefix + "-fill",
			Type:   surface.LayerFill,
			Filter: []any{"==", "$type", "Polygon"},
			Paint:  map[string]any{"fill-color": "#dc2626", "fill-opacity": 0.05},
		},
		{
			ID:     prefix + "-line",
			Type:   surface.LayerLine,
			Filter: []any{"==", "$type", "Polygon"},
			Paint: map[string]any{
				"line-color":     "#dc2626",
				"line-width":     2.5,
				"line-dasharray": []any{2, 2},
			},
		},
		{
			ID:     prefix + "-point",
			Type:   surface.LayerCircle,
			Filter: []any{"==", "$type", "Point"},
			Paint: map[string]any{
				"circle-color":        "#dc2626",
				"circle-radius":       6,
				"circle-stroke-color": "#ffffff",
				"circle-stroke-width": 2,
			},
		},
	}
}

// TaxParcelLayers renders county tax-parcel outlines.
func TaxParcelLayers(prefix string) []surface.LayerSpec {
	return []surface.LayerSpec{
		{
			ID:    prefix + "-fill",
			Type:  surface.LayerFill,
			Paint: map[string]any{"fill-color": "#9ca3af", "fill-opacity": 0.08},
		},
		{
			ID:    prefix + "-line",
			Type:  surface.LayerLine,
			Paint: map[string]any{"line-color": "#6b7280", "line-width": 0.8},
		},
	}
}

// CompLayers renders a comparable collection. Comparables carry point or
// polygon geometry; points draw as circles, polygons as fill plus stroke.
func CompLayers(prefix string, kind scene.Domain) []surface.LayerSpec {
	color := "#059669"
	if kind == scene.DomainRentComps {
		color = "#7c3aed"
	}
	return []surface.LayerSpec{
		{
			ID:     prefix + "-fill",
			Type:   surface.LayerFill,
			Filter: []any{"==", "$type", "Polygon"},
			Paint:  map[string]any{"fill-color": color, "fill-opacity": 0.2},
		},
		{
			ID:     prefix + "-line",
			Type:   surface.LayerLine,
			Filter: []any{"==", "$type", "Polygon"},
			Paint:  map[string]any{"line-color": color, "line-width": 1.5},
		},
		{
			ID:     prefix + "-circle",
			Type:   surface.LayerCircle,
			Filter: []any{"==", "$type", "Point"},
			Paint: map[string]any{
				"circle-color":        color,
				"circle-radius":       5,
				"circle-stroke-color": "#ffffff",
				"circle-stroke-width": 1.5,
			},
		},
	}
}

// AnnotationLayers renders user-drawn features. The selected feature gets
// an emphasis stroke painted above the neutral layers; selection is derived
// from the host's current selection id, never stored on the feature.
func AnnotationLayers(prefix, selectedID string) []surface.LayerSpec {
	specs := []surface.LayerSpec{
		{
			ID:     prefix + "-fill",
			Type:   surface.LayerFill,
			Filter: []any{"==", "$type", "Polygon"},
			Paint:  map[string]any{"fill-color": "#f59e0b", "fill-opacity": 0.25},
		},
		{
			ID:    prefix + "-line",
			Type:  surface.LayerLine,
			Paint: map[string]any{"line-color": "#d97706", "line-width": 2},
		},
		{
			ID:     prefix + "-point",
			Type:   surface.LayerCircle,
			Filter: []any{"==", "$type", "Point"},
			Paint: map[string]any{
				"circle-color":        "#f59e0b",
				"circle-radius":       6,
				"circle-stroke-color": "#ffffff",
				"circle-stroke-width": 2,
			},
		},
	}
	if selectedID != "" {
		specs = append(specs,
			surface.LayerSpec{
				ID:     prefix + "-selected-line",
				Type:   surface.LayerLine,
				Filter: []any{"==", "$id", selectedID},
				Paint:  map[string]any{"line-color": "#2563eb", "line-width": 3.5},
			},
			surface.LayerSpec{
				ID:     prefix + "-selected-point",
				Type:   surface.LayerCircle,
				Filter: []any{"all", []any{"==", "$type", "Point"}, []any{"==", "$id", selectedID}},
				Paint: map[string]any{
					"circle-color":        "#2563eb",
					"circle-radius":       8,
					"circle-stroke-color": "#ffffff",
					"circle-stroke-width": 2,
				},
			},
		)
	}
	return specs
}

// RingLayers renders the demographic rings. Stroke weight and fill opacity
// are data-driven off the per-ring selected flag, so selecting a ring needs
// no layer rebuild, only new ring features.
func RingLayers(prefix string) []surface.LayerSpec {
	return []surface.LayerSpec{
		{
			ID:   prefix + "-fill",
			Type: surface.LayerFill,
			Paint: map[string]any{
				"fill-color":   "#0ea5e9",
				"fill-opacity": []any{"case", []any{"get", "selected"}, 0.18, 0.08},
			},
		},
		{
			ID:   prefix + "-line",
			Type: surface.LayerLine,
			Paint: map[string]any{
				"line-color": "#0284c7",
				"line-width": []any{"case", []any{"get", "selected"}, 3, 1.5},
			},
		},
	}
}

// BucketProperty tags each reference-parcel feature with its classifier
// bucket so the overlay layers can filter on it.
const BucketProperty = "bucket"

const (
	BucketSubject = "subject"
	BucketComp    = "comp"
	BucketOther   = "other"
)

// RefParcelLayers renders the subject/comp/other overlays. Neutral parcels
// paint first, comp parcels above them, the subject parcel on top, so the
// emphasis is never obscured. All six layers carry the configured minimum
// zoom; reference parcels are too dense to draw zoomed out.
func RefParcelLayers(prefix string, minZoom float64) []surface.LayerSpec {
	group := func(bucket, fillColor, lineColor string, fillOpacity, lineWidth float64) []surface.LayerSpec {
		return []surface.LayerSpec{
			{
				ID:      prefix + "-" + bucket + "-fill",
				Type:    surface.LayerFill,
				Filter:  []any{"==", BucketProperty, bucket},
				MinZoom: minZoom,
				Paint:   map[string]any{"fill-color": fillColor, "fill-opacity": fillOpacity},
			},
			{
				ID:      prefix + "-" + bucket + "-line",
				Type:    surface.LayerLine,
				Filter:  []any{"==", BucketProperty, bucket},
				MinZoom: minZoom,
				Paint:   map[string]any{"line-color": lineColor, "line-width": lineWidth},
			},
		}
	}

	var specs []surface.LayerSpec
	specs = append(specs, group(BucketOther, "#9ca3af", "#6b7280", 0.05, 0.6)...)
	specs = append(specs, group(BucketComp, "#059669", "#047857", 0.2, 1.5)...)
	specs = append(specs, group(BucketSubject, "#dc2626", "#b91c1c", 0.3, 2.5)...)
	return specs
}

// TagBuckets builds the collection the reference-parcel overlays render:
// every input feature reappears exactly once with its bucket written into a
// copied property map. Input features are never mutated.
func TagBuckets(subject, comp, other []*geojson.Feature) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	appendBucket := func(features []*geojson.Feature, bucket string) {
		for _, f := range features {
			if f == nil {
				continue
			}
			tagged := geojson.NewFeature(f.Geometry)
			tagged.ID = f.ID
			for k, v := range f.Properties {
				tagged.Properties[k] = v
			}
			tagged.Properties[BucketProperty] = bucket
			out.Append(tagged)
		}
	}
	appendBucket(subject, BucketSubject)
	appendBucket(comp, BucketComp)
	appendBucket(other, BucketOther)
	return out
}

// RingCollection wraps generated ring features for the reconciler.
func RingCollection(features []*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}

// CollectionBound is a convenience for session summaries: the bound of a
// collection or the zero bound when empty.
func CollectionBound(fc *geojson.FeatureCollection) orb.Bound {
	if fc == nil || len(fc.Features) == 0 {
		return orb.Bound{}
	}
	b := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	return b
}
