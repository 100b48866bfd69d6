package tiling

import "github.com/paulmach/orb"

// View is the consumer's camera: a world-space centre, the size of one
// screen pixel in world units and the screen size in pixels. Screen Y grows
// downwards, world Y grows northwards.
type View struct {
	Center     orb.Point `json:"center"`
	Resolution float64   `json:"resolution"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
}

// Bounds is the world rectangle visible on screen.
func (v View) Bounds() orb.Bound {
	halfW := float64(v.Width) * v.Resolution / 2
	halfH := float64(v.Height) * v.Resolution / 2
	return orb.Bound{
		Min: orb.Point{v.Center.X() - halfW, v.Center.Y() - halfH},
		Max: orb.Point{v.Center.X() + halfW, v.Center.Y() + halfH},
	}
}

func (v View) ScreenToMap(x, y float64) orb.Point {
	return orb.Point{
		v.Center.X() + (x-float64(v.Width)/2)*v.Resolution,
		v.Center.Y() - (y-float64(v.Height)/2)*v.Resolution,
	}
}

func (v View) MapToScreen(p orb.Point) (float64, float64) {
	return (p.X()-v.Center.X())/v.Resolution + float64(v.Width)/2,
		(v.Center.Y()-p.Y())/v.Resolution + float64(v.Height)/2
}

// Pan moves the map by a screen-space drag of (dx, dy) pixels.
func (v View) Pan(dx, dy float64) View {
	v.Center = orb.Point{v.Center.X() - dx*v.Resolution, v.Center.Y() + dy*v.Resolution}
	return v
}

// Zoom scales the resolution by factor keeping the map point under the
// screen position (x, y) fixed. factor < 1 zooms in.
func (v View) Zoom(factor, x, y float64) View {
	if !(factor > 0) {
		return v
	}
	anchor := v.ScreenToMap(x, y)
	v.Resolution *= factor
	moved := v.ScreenToMap(x, y)
	v.Center = orb.Point{
		v.Center.X() + anchor.X() - moved.X(),
		v.Center.Y() + anchor.Y() - moved.Y(),
	}
	return v
}
