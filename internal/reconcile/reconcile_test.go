package reconcile

import (
	"reflect"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/scene"
	"groundwork/mapcore/internal/surface"
)

func testSurface() *surface.State {
	return surface.New("https://styles.example/streets.json", orb.Point{-86.78, 36.17}, 11)
}

func parcels(n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		lon := float64(i) * 0.01
		f := geojson.NewFeature(orb.Polygon{{
			{lon, 0}, {lon + 0.005, 0}, {lon + 0.005, 0.005}, {lon, 0.005}, {lon, 0},
		}})
		fc.Append(f)
	}
	return fc
}

func planPass(data *geojson.FeatureCollection, visible bool) Pass {
	prefix := SourceID(scene.DomainPlanParcels)
	return Pass{
		Prefix:  prefix,
		Visible: visible,
		Data:    data,
		Layers:  PlanParcelLayers(prefix),
	}
}

func TestApply_AddsSourceAndLayersInOrder(t *testing.T) {
	surf := testSurface()
	r := New(zerolog.Nop(), nil)

	if err := r.Apply(surf, planPass(parcels(2), true)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	prefix := SourceID(scene.DomainPlanParcels)
	if got := surf.SourcesWithPrefix(prefix); len(got) != 1 {
		t.Fatalf("expected one source, got %v", got)
	}
	want := []string{prefix + "-fill", prefix + "-line"}
	if got := surf.LayersWithPrefix(prefix); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected layers %v, got %v", want, got)
	}
}

func TestApply_IsIdempotent(t *testing.T) {
	surf := testSurface()
	r := New(zerolog.Nop(), nil)
	p := planPass(parcels(3), true)

	if err := r.Apply(surf, p); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := surf.LayerOrder()

	if err := r.Apply(surf, p); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if got := surf.LayerOrder(); !reflect.DeepEqual(got, first) {
		t.Fatalf("repeated apply must not drift: first %v, second %v", first, got)
	}
	if counts := surf.Counts(); counts.Sources != 1 || counts.Layers != 2 {
		t.Fatalf("unexpected counts after re-apply: %+v", counts)
	}
}

func TestApply_HiddenOrEmptyRendersNothing(t *testing.T) {
	cases := []struct {
		name string
		pass Pass
	}{
		{"hidden", planPass(parcels(2), false)},
		{"nil data", planPass(nil, true)},
		{"empty data", planPass(geojson.NewFeatureCollection(), true)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			surf := testSurface()
			r := New(zerolog.Nop(), nil)

			// Start from a populated state so the removal half runs too.
			if err := r.Apply(surf, planPass(parcels(2), true)); err != nil {
				t.Fatalf("seed apply: %v", err)
			}
			if err := r.Apply(surf, tc.pass); err != nil {
				t.Fatalf("apply: %v", err)
			}
			if counts := surf.Counts(); counts.Sources != 0 || counts.Layers != 0 {
				t.Fatalf("expected empty surface, got %+v", counts)
			}
		})
	}
}

func TestApply_NilSurfaceIsANoop(t *testing.T) {
	r := New(zerolog.Nop(), nil)
	if err := r.Apply(nil, planPass(parcels(1), true)); err != nil {
		t.Fatalf("apply against nil surface must no-op, got %v", err)
	}
}

func TestApply_ReplacesListeners(t *testing.T) {
	surf := testSurface()
	r := New(zerolog.Nop(), nil)
	prefix := SourceID(scene.DomainAnnotations)

	var firstCalls, secondCalls int
	pass := Pass{
		Prefix:  prefix,
		Visible: true,
		Data:    parcels(1),
		Layers:  AnnotationLayers(prefix, ""),
		Listeners: []Listener{
			{Event: surface.EventClick, Layer: prefix + "-fill", Fn: func(surface.Event) { firstCalls++ }},
		},
	}
	if err := r.Apply(surf, pass); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	pass.Listeners = []Listener{
		{Event: surface.EventClick, Layer: prefix + "-fill", Fn: func(surface.Event) { secondCalls++ }},
	}
	if err := r.Apply(surf, pass); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	surf.Dispatch(surface.Event{Type: surface.EventClick, Layer: prefix + "-fill"})
	if firstCalls != 0 {
		t.Fatalf("stale listener must be unregistered, got %d calls", firstCalls)
	}
	if secondCalls != 1 {
		t.Fatalf("expected one call to the current listener, got %d", secondCalls)
	}
}

func TestApply_RecoversAfterStyleReset(t *testing.T) {
	surf := testSurface()
	r := New(zerolog.Nop(), nil)
	p := planPass(parcels(2), true)

	if err := r.Apply(surf, p); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := surf.LayerOrder()

	// A basemap swap destroys every source and layer atomically.
	surf.SetStyle("https://styles.example/satellite.json")
	if counts := surf.Counts(); counts.Layers != 0 || counts.Sources != 0 {
		t.Fatalf("style reset should clear the surface, got %+v", counts)
	}

	if err := r.Apply(surf, p); err != nil {
		t.Fatalf("re-apply after reset: %v", err)
	}
	if got := surf.LayerOrder(); !reflect.DeepEqual(got, before) {
		t.Fatalf("expected identical layers after reset, before %v after %v", before, got)
	}
}

func TestApply_RejectsLayerOutsidePrefix(t *testing.T) {
	surf := testSurface()
	r := New(zerolog.Nop(), nil)
	p := planPass(parcels(1), true)
	p.Layers = append(p.Layers, surface.LayerSpec{ID: "rogue-layer", Type: surface.LayerLine})

	if err := r.Apply(surf, p); err == nil {
		t.Fatalf("expected prefix violation error")
	}
}

func TestRaise_MovesDomainAboveOthers(t *testing.T) {
	surf := testSurface()
	r := New(zerolog.Nop(), nil)

	annPrefix := SourceID(scene.DomainAnnotations)
	ringPrefix := SourceID(scene.DomainRings)

	if err := r.Apply(surf, Pass{
		Prefix: annPrefix, Visible: true, Data: parcels(1),
		Layers: AnnotationLayers(annPrefix, ""),
	}); err != nil {
		t.Fatalf("apply annotations: %v", err)
	}
	if err := r.Apply(surf, Pass{
		Prefix: ringPrefix, Visible: true, Data: parcels(1),
		Layers: RingLayers(ringPrefix),
	}); err != nil {
		t.Fatalf("apply rings: %v", err)
	}

	r.Raise(surf, annPrefix)

	order := surf.LayerOrder()
	want := []string{
		ringPrefix + "-fill", ringPrefix + "-line",
		annPrefix + "-fill", annPrefix + "-line", annPrefix + "-point",
	}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected annotations on top in original order, got %v", order)
	}
}

func TestRefParcelLayers_SubjectPaintsAboveCompAboveOther(t *testing.T) {
	prefix := SourceID(scene.DomainRefParcels)
	specs := RefParcelLayers(prefix, 15)

	pos := make(map[string]int, len(specs))
	for i, s := range specs {
		pos[s.ID] = i
		if s.MinZoom != 15 {
			t.Fatalf("layer %s must carry the configured min zoom, got %v", s.ID, s.MinZoom)
		}
	}
	if !(pos[prefix+"-other-fill"] < pos[prefix+"-comp-fill"] && pos[prefix+"-comp-fill"] < pos[prefix+"-subject-fill"]) {
		t.Fatalf("bucket emphasis must paint above its neutral counterpart: %v", pos)
	}
}

func TestTagBuckets_PreservesCardinalityAndProperties(t *testing.T) {
	mk := func(id string) *geojson.Feature {
		f := geojson.NewFeature(orb.Point{0, 0})
		f.Properties["apn"] = id
		return f
	}
	subject := []*geojson.Feature{mk("12-345-678")}
	comp := []*geojson.Feature{mk("99-111-222"), mk("99-111-333")}
	other := []*geojson.Feature{mk("55-555-555")}

	fc := TagBuckets(subject, comp, other)
	if len(fc.Features) != 4 {
		t.Fatalf("expected 4 features, got %d", len(fc.Features))
	}
	if got := fc.Features[0].Properties[BucketProperty]; got != BucketSubject {
		t.Fatalf("expected subject bucket first, got %v", got)
	}
	if got := fc.Features[0].Properties["apn"]; got != "12-345-678" {
		t.Fatalf("original properties must carry over, got %v", got)
	}
	// Inputs stay untouched.
	if _, ok := subject[0].Properties[BucketProperty]; ok {
		t.Fatalf("input feature must not be mutated")
	}
}
