// Package markers manages the overlay markers for comparable features and
// the project-center pin. Every re-render removes a domain's previous
// markers before adding the new set, so marker ids can never collide.
package markers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"groundwork/mapcore/internal/surface"
)

// Kind selects the popup field-priority list for a comparable.
type Kind string

const (
	KindSale Kind = "sale"
	KindRent Kind = "rent"
)

const (
	saleColor   = "#059669"
	rentColor   = "#7c3aed"
	centerColor = "#dc2626"
)

// popupField maps one property to its popup label. Fields render in list
// order; absent fields are simply omitted.
type popupField struct {
	key   string
	label string
}

var saleFields = []popupField{
	{"address", "Address"},
	{"sale_price", "Sale Price"},
	{"sale_date", "Sale Date"},
	{"price_per_acre", "Price/Acre"},
	{"acreage", "Acreage"},
	{"grantor", "Grantor"},
	{"grantee", "Grantee"},
}

var rentFields = []popupField{
	{"address", "Address"},
	{"rent_per_month", "Rent/Month"},
	{"rent_per_sf", "Rent/SF"},
	{"acreage", "Acreage"},
	{"tenant", "Tenant"},
	{"lease_date", "Lease Date"},
}

// Anchor reduces a comparable geometry to its single marker anchor: points
// map to themselves, multipoints to their first vertex, polygons to their
// planar centroid. Degenerate polygons (zero area or a non-finite centroid)
// report ok=false so the caller can skip the feature.
func Anchor(g orb.Geometry) (orb.Point, bool) {
	switch geom := g.(type) {
	case orb.Point:
		return geom, true
	case orb.MultiPoint:
		if len(geom) == 0 {
			return orb.Point{}, false
		}
		return geom[0], true
	case orb.Polygon, orb.MultiPolygon:
		c, area := planar.CentroidArea(g)
		if area == 0 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
			return orb.Point{}, false
		}
		return c, true
	default:
		return orb.Point{}, false
	}
}

// PopupContent renders the popup body for one comparable as label/value
// lines. No field is mandatory; an empty result means no popup.
func PopupContent(kind Kind, props geojson.Properties) string {
	fields := saleFields
	if kind == KindRent {
		fields = rentFields
	}
	var lines []string
	for _, f := range fields {
		v, ok := props[f.key]
		if !ok {
			continue
		}
		s := formatValue(v)
		if s == "" {
			continue
		}
		lines = append(lines, f.label+": "+s)
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// BuildSpecs derives marker specs for a comparable collection. Malformed
// features are skipped, not fatal; the skip count is returned for logging.
func BuildSpecs(kind Kind, prefix string, fc *geojson.FeatureCollection) ([]surface.MarkerSpec, int) {
	if fc == nil {
		return nil, 0
	}
	color := saleColor
	if kind == KindRent {
		color = rentColor
	}
	specs := make([]surface.MarkerSpec, 0, len(fc.Features))
	skipped := 0
	for i, f := range fc.Features {
		at, ok := Anchor(f.Geometry)
		if !ok {
			skipped++
			continue
		}
		specs = append(specs, surface.MarkerSpec{
			ID:    fmt.Sprintf("%s-%d", prefix, i),
			At:    at,
			Color: color,
			Popup: PopupContent(kind, f.Properties),
		})
	}
	return specs, skipped
}

// CenterSpec is the single project-center pin.
func CenterSpec(prefix string, center orb.Point) surface.MarkerSpec {
	return surface.MarkerSpec{
		ID:    prefix + "-pin",
		At:    center,
		Color: centerColor,
	}
}

// Manager remembers which marker ids each domain currently owns so a
// re-render can remove them before adding replacements. Cleanup is
// idempotent and safe from both re-render and teardown paths.
type Manager struct {
	owned map[string][]string
}

func NewManager() *Manager {
	return &Manager{owned: make(map[string][]string)}
}

// Sync replaces the markers owned under prefix with specs. Previous markers
// are removed first; ids no longer present on the surface are ignored.
func (m *Manager) Sync(surf *surface.State, prefix string, specs []surface.MarkerSpec) error {
	if m == nil || surf == nil {
		return nil
	}
	for _, id := range m.owned[prefix] {
		_ = surf.RemoveMarker(id)
	}
	delete(m.owned, prefix)

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		if !strings.HasPrefix(spec.ID, prefix) {
			return fmt.Errorf("marker id %q outside prefix %q", spec.ID, prefix)
		}
		if err := surf.AddMarker(spec); err != nil {
			return err
		}
		ids = append(ids, spec.ID)
	}
	if len(ids) > 0 {
		m.owned[prefix] = ids
	}
	return nil
}

// Clear removes every marker under prefix.
func (m *Manager) Clear(surf *surface.State, prefix string) {
	if m == nil {
		return
	}
	if surf != nil {
		for _, id := range m.owned[prefix] {
			_ = surf.RemoveMarker(id)
		}
	}
	delete(m.owned, prefix)
}
