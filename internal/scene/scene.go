package scene

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Tool is the active draw/edit tool reported by the host application.
type Tool string

const (
	ToolNone    Tool = "none"
	ToolPoint   Tool = "point"
	ToolLine    Tool = "line"
	ToolPolygon Tool = "polygon"
	ToolEdit    Tool = "edit"
	ToolDelete  Tool = "delete"
)

// ParseTool accepts the wire spelling of a tool. The empty string maps to
// ToolNone so hosts can clear the tool by omitting it.
func ParseTool(s string) (Tool, error) {
	switch t := Tool(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return ToolNone, nil
	case ToolNone, ToolPoint, ToolLine, ToolPolygon, ToolEdit, ToolDelete:
		return t, nil
	default:
		return ToolNone, fmt.Errorf("unknown tool %q", s)
	}
}

// IsDraw reports whether the tool captures map clicks for drawing.
func (t Tool) IsDraw() bool {
	switch t {
	case ToolPoint, ToolLine, ToolPolygon:
		return true
	default:
		return false
	}
}

// Domain identifies one reconciled data domain. The values double as wire
// identifiers in the HTTP API and as layer-tree node ids.
type Domain string

const (
	DomainPlanParcels Domain = "plan_parcels"
	DomainBoundary    Domain = "boundary"
	DomainTaxParcels  Domain = "tax_parcels"
	DomainSaleComps   Domain = "sale_comps"
	DomainRentComps   Domain = "rent_comps"
	DomainAnnotations Domain = "annotations"
	DomainRings       Domain = "rings"
	DomainRefParcels  Domain = "reference_parcels"
)

// Domains returns every reconciled domain in paint order, bottom first.
// Reference parcels sit under the ring shading; annotations are raised to
// the top of the paint order after every pass.
func Domains() []Domain {
	return []Domain{
		DomainTaxParcels,
		DomainRefParcels,
		DomainPlanParcels,
		DomainBoundary,
		DomainSaleComps,
		DomainRentComps,
		DomainRings,
		DomainAnnotations,
	}
}

// CollectionDomains returns the domains whose data arrives as a feature
// collection pushed by the host (everything except rings, which are
// synthesized from the project center).
func CollectionDomains() []Domain {
	return []Domain{
		DomainPlanParcels,
		DomainBoundary,
		DomainTaxParcels,
		DomainSaleComps,
		DomainRentComps,
		DomainAnnotations,
		DomainRefParcels,
	}
}

func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range CollectionDomains() {
		if d == known {
			return d, nil
		}
	}
	if d == DomainRings {
		return d, nil
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// Viewport is the host-requested camera state. Center is WGS-84 lon/lat.
// This is the project center the host asked for, not the camera position the
// user may have panned to; rings and the center marker follow this value.
type Viewport struct {
	Center orb.Point
	Zoom   float64
}

// LayerNode is one node of the host's layer-visibility tree. Only the
// visibility flags matter to rendering; label and expanded are panel
// concerns carried for round-tripping.
type LayerNode struct {
	ID       string      `json:"id"`
	Label    string      `json:"label,omitempty"`
	Visible  bool        `json:"visible"`
	Expanded bool        `json:"expanded,omitempty"`
	Children []LayerNode `json:"children,omitempty"`
}

// EffectiveVisibility flattens a layer tree into per-node visibility: a node
// is effectively visible only when it and all of its ancestors are visible.
func EffectiveVisibility(nodes []LayerNode) map[string]bool {
	out := make(map[string]bool)
	var walk func(nodes []LayerNode, ancestorsVisible bool)
	walk = func(nodes []LayerNode, ancestorsVisible bool) {
		for _, n := range nodes {
			v := ancestorsVisible && n.Visible
			out[n.ID] = v
			walk(n.Children, v)
		}
	}
	walk(nodes, true)
	return out
}

// RefParcelConfig carries the subject/comp identifier configuration used to
// bucket the reference-parcel collection.
type RefParcelConfig struct {
	SubjectID string   `json:"subject_id,omitempty"`
	CompIDs   []string `json:"comp_ids,omitempty"`
}
