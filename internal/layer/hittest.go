package layer

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// hits reports whether geometry g, in tile-local units, is under p. tol is
// the pick radius around p in the same units.
func hits(g orb.Geometry, p orb.Point, tol float64) bool {
	switch g := g.(type) {
	case orb.Point:
		return planar.Distance(g, p) <= tol
	case orb.MultiPoint:
		for _, pt := range g {
			if planar.Distance(pt, p) <= tol {
				return true
			}
		}
		return false
	case orb.LineString, orb.MultiLineString, orb.Ring:
		return planar.DistanceFrom(g, p) <= tol
	case orb.Polygon:
		return planar.PolygonContains(g, p) || nearBoundary(g, p, tol)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p) || nearBoundary(g, p, tol)
	case orb.Collection:
		for _, c := range g {
			if hits(c, p, tol) {
				return true
			}
		}
		return false
	case orb.Bound:
		return g.Pad(tol).Contains(p)
	default:
		return false
	}
}

func nearBoundary(g orb.Geometry, p orb.Point, tol float64) bool {
	return tol > 0 && planar.DistanceFrom(g, p) <= tol
}
