package rings

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

func TestGenerate_CountSelectionAndClosure(t *testing.T) {
	feats := Generate(orb.Point{0, 0}, []float64{1, 3, 5}, 3)
	if len(feats) != 3 {
		t.Fatalf("expected 3 rings, got %d", len(feats))
	}

	var selected int
	for _, f := range feats {
		sel, _ := f.Properties["selected"].(bool)
		r, _ := f.Properties["radius_miles"].(float64)
		if sel {
			selected++
			if r != 3 {
				t.Fatalf("wrong ring selected: %v", r)
			}
		}

		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) != 1 {
			t.Fatalf("expected single-ring polygon, got %T", f.Geometry)
		}
		ring := poly[0]
		if ring[0] != ring[len(ring)-1] {
			t.Fatalf("ring for radius %v is not closed", r)
		}
	}
	if selected != 1 {
		t.Fatalf("expected exactly one selected ring, got %d", selected)
	}
}

func TestGenerate_VerticesLieOnTheCircle(t *testing.T) {
	center := orb.Point{-86.78, 36.17}
	const radius = 5.0

	feats := Generate(center, []float64{radius}, 0)
	if len(feats) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(feats))
	}
	ring := feats[0].Geometry.(orb.Polygon)[0]
	if len(ring) != vertexCount+1 {
		t.Fatalf("expected %d vertices, got %d", vertexCount+1, len(ring))
	}

	want := radius * metersPerMile
	for i, v := range ring {
		d := geo.Distance(center, v)
		if math.Abs(d-want) > want*1e-6 {
			t.Fatalf("vertex %d is %.3fm from center, want %.3fm", i, d, want)
		}
	}
}

func TestGenerate_NoSelectionAndBadRadii(t *testing.T) {
	feats := Generate(orb.Point{0, 0}, []float64{1, 3, 5}, 2)
	for _, f := range feats {
		if sel, _ := f.Properties["selected"].(bool); sel {
			t.Fatalf("no ring should be selected for an unknown radius")
		}
	}

	feats = Generate(orb.Point{0, 0}, []float64{0, -2, 1}, 0)
	if len(feats) != 1 {
		t.Fatalf("non-positive radii should be skipped, got %d rings", len(feats))
	}
}

func TestGenerate_LabelFormatting(t *testing.T) {
	feats := Generate(orb.Point{0, 0}, []float64{1, 2.5}, 0)
	if got := feats[0].Properties["label"]; got != "1 mi" {
		t.Fatalf("label = %v, want %q", got, "1 mi")
	}
	if got := feats[1].Properties["label"]; got != "2.5 mi" {
		t.Fatalf("label = %v, want %q", got, "2.5 mi")
	}
}
