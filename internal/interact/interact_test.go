package interact

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"groundwork/mapcore/internal/scene"
	"groundwork/mapcore/internal/surface"
)

func hoverSurface(t *testing.T) *surface.State {
	t.Helper()
	s := surface.New("style-a", orb.Point{0, 0}, 10)
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))
	if err := s.AddSource("mc-reference-parcels-other", fc); err != nil {
		t.Fatalf("add source: %v", err)
	}
	return s
}

func TestCursorStateMachine(t *testing.T) {
	s := surface.New("style-a", orb.Point{0, 0}, 10)
	r := New(zerolog.Nop())

	cases := []struct {
		tool scene.Tool
		want string
	}{
		{scene.ToolPoint, CursorCrosshair},
		{scene.ToolLine, CursorCrosshair},
		{scene.ToolPolygon, CursorCrosshair},
		{scene.ToolEdit, CursorMove},
		{scene.ToolDelete, CursorNotAllowed},
		{scene.ToolNone, CursorDefault},
	}
	for _, tc := range cases {
		r.SetTool(s, tc.tool)
		if got := s.Cursor(); got != tc.want {
			t.Fatalf("cursor for %s = %q, want %q", tc.tool, got, tc.want)
		}
	}
}

func TestSingleHoverInvariant(t *testing.T) {
	s := hoverSurface(t)
	r := New(zerolog.Nop())
	layer := "mc-reference-parcels-other-fill"
	src := "mc-reference-parcels-other"

	r.HoverEnter(s, layer, src, "A")
	r.HoverEnter(s, layer, src, "B")
	r.HoverEnter(s, layer, src, "C")

	if _, ok := s.FeatureState(src, "A", "hover"); ok {
		t.Fatalf("feature A still highlighted")
	}
	if _, ok := s.FeatureState(src, "B", "hover"); ok {
		t.Fatalf("feature B still highlighted")
	}
	if v, ok := s.FeatureState(src, "C", "hover"); !ok || v != true {
		t.Fatalf("feature C should be the only highlight")
	}

	_, feature, ok := r.HoveredOn(layer)
	if !ok || feature != "C" {
		t.Fatalf("hover slot = %q ok=%v, want C", feature, ok)
	}
}

func TestHoverLeave_RestoresCursorOnlyWithoutTool(t *testing.T) {
	s := hoverSurface(t)
	r := New(zerolog.Nop())
	layer := "mc-reference-parcels-other-fill"
	src := "mc-reference-parcels-other"

	r.HoverEnter(s, layer, src, "A")
	if s.Cursor() != CursorPointer {
		t.Fatalf("expected pointer cursor on hover, got %q", s.Cursor())
	}
	r.HoverLeave(s, layer)
	if s.Cursor() != CursorDefault {
		t.Fatalf("expected default cursor after leave, got %q", s.Cursor())
	}
	if _, _, ok := r.HoveredOn(layer); ok {
		t.Fatalf("hover slot should be empty after leave")
	}

	// With a draw tool active the hover must not override the tool cursor.
	r.SetTool(s, scene.ToolPolygon)
	r.HoverEnter(s, layer, src, "B")
	if s.Cursor() != CursorCrosshair {
		t.Fatalf("draw cursor must win over hover affordance, got %q", s.Cursor())
	}
	r.HoverLeave(s, layer)
	if s.Cursor() != CursorCrosshair {
		t.Fatalf("leave must not reset the cursor while a tool is active, got %q", s.Cursor())
	}
}

func TestRingClick_SuppressedOnlyWhileDrawing(t *testing.T) {
	r := New(zerolog.Nop())
	var rings int
	r.SetCallbacks(Callbacks{
		RingClick: func(radius float64, at orb.Point) { rings++ },
	})

	r.FireRingClick(3, orb.Point{1, 1})
	if rings != 1 {
		t.Fatalf("expected ring click with no tool, got %d", rings)
	}

	for _, tool := range []scene.Tool{scene.ToolPoint, scene.ToolLine, scene.ToolPolygon} {
		r.SetTool(nil, tool)
		r.FireRingClick(3, orb.Point{1, 1})
	}
	if rings != 1 {
		t.Fatalf("ring clicks must be suppressed while a draw tool is active, got %d", rings)
	}

	// Edit and delete are not draw tools; ring selection stays available.
	for _, tool := range []scene.Tool{scene.ToolEdit, scene.ToolDelete, scene.ToolNone} {
		r.SetTool(nil, tool)
		r.FireRingClick(3, orb.Point{1, 1})
	}
	if rings != 4 {
		t.Fatalf("expected ring clicks under edit/delete/none, got %d", rings)
	}
}

func TestMapClick_SwallowedWhileDrawing(t *testing.T) {
	r := New(zerolog.Nop())
	var clicks int
	r.SetCallbacks(Callbacks{MapClick: func(orb.Point) { clicks++ }})

	r.FireMapClick(orb.Point{1, 2})
	r.SetTool(nil, scene.ToolPolygon)
	r.FireMapClick(orb.Point{1, 2})
	r.SetTool(nil, scene.ToolEdit)
	r.FireMapClick(orb.Point{1, 2})

	// Draw tools swallow map clicks; edit does not.
	if clicks != 2 {
		t.Fatalf("expected 2 map clicks, got %d", clicks)
	}
}

func TestCallbackCellsReadThroughAtFireTime(t *testing.T) {
	r := New(zerolog.Nop())
	var first, second int
	r.SetCallbacks(Callbacks{FeatureClick: func(*geojson.Feature) { first++ }})
	r.SetCallbacks(Callbacks{FeatureClick: func(*geojson.Feature) { second++ }})

	f := geojson.NewFeature(orb.Point{0, 0})
	r.FireFeatureClick(f)

	if first != 0 || second != 1 {
		t.Fatalf("latest callback must win: first=%d second=%d", first, second)
	}

	// Nil callbacks and nil features are dropped quietly.
	r.SetCallbacks(Callbacks{})
	r.FireFeatureClick(f)
	r.FireParcelToggle(nil)
}

func TestFeatureID(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	if _, ok := FeatureID(f); ok {
		t.Fatalf("feature without id should not resolve")
	}

	f.ID = "12345678"
	if id, ok := FeatureID(f); !ok || id != "12345678" {
		t.Fatalf("string id = %q ok=%v", id, ok)
	}

	f.ID = float64(42)
	if id, ok := FeatureID(f); !ok || id != "42" {
		t.Fatalf("numeric id = %q ok=%v", id, ok)
	}
}

func TestResetHover_DropsSlotsWithoutSurfaceCalls(t *testing.T) {
	s := hoverSurface(t)
	r := New(zerolog.Nop())
	layer := "mc-reference-parcels-other-fill"
	r.HoverEnter(s, layer, "mc-reference-parcels-other", "A")

	s.SetStyle("style-b") // destroys all feature state
	r.ResetHover()

	if _, _, ok := r.HoveredOn(layer); ok {
		t.Fatalf("hover slots should be empty after reset")
	}
}
