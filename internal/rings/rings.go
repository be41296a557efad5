// Package rings synthesizes the demographic catchment rings drawn around a
// project center: one closed polygon per configured radius, discretized
// finely enough that the great-circle approximation error is invisible at
// working zoom levels.
package rings

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// vertexCount divides 360 evenly; 72 vertices keeps the worst-case chord
// error well under typical parcel dimensions.
const vertexCount = 72

const metersPerMile = 1609.344

// Generate builds one ring feature per radius, centered on center (WGS-84
// lon/lat, radii in miles). Each feature carries radius_miles, label and a
// selected flag; selectedRadius picks at most one ring for emphasis and any
// value outside radii selects none. Rings are regenerated on every call,
// never cached.
func Generate(center orb.Point, radiiMiles []float64, selectedRadius float64) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(radiiMiles))
	for _, r := range radiiMiles {
		if r <= 0 {
			continue
		}
		ring := make(orb.Ring, 0, vertexCount+1)
		for i := 0; i < vertexCount; i++ {
			bearing := float64(i) * 360.0 / vertexCount
			ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, r*metersPerMile))
		}
		ring = append(ring, ring[0])

		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = "ring-" + formatRadius(r)
		f.Properties["radius_miles"] = r
		f.Properties["label"] = formatRadius(r) + " mi"
		f.Properties["selected"] = r == selectedRadius
		out = append(out, f)
	}
	return out
}

func formatRadius(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}
