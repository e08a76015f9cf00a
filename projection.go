package geoglobe

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// DefaultRadius is the globe radius in scene units. The boundary overlay,
// the textured sphere and the camera distance are all expressed against it.
const DefaultRadius = 100.0

// SurfacePoint is a 3D coordinate on the globe surface.
type SurfacePoint = r3.Vector

// Project maps a geographic coordinate in degrees onto a sphere of the given
// radius. Longitude is negated so that eastward data runs the same way as the
// equirectangular earth texture wrapped around the sphere.
//
// The north pole maps to +Y and (0, 0) maps to +X.
func Project(lon, lat, radius float64) SurfacePoint {
	latRad := lat * math.Pi / 180
	lonRad := -lon * math.Pi / 180

	return r3.Vector{
		X: radius * math.Cos(latRad) * math.Cos(lonRad),
		Y: radius * math.Sin(latRad),
		Z: radius * math.Cos(latRad) * math.Sin(lonRad),
	}
}

// Unproject is the inverse of Project. The point does not need to lie on the
// sphere; only its direction from the centre is used. The origin has no
// direction and yields (0, 0).
func Unproject(p SurfacePoint) (lon, lat float64) {
	if p.Norm2() == 0 {
		return 0, 0
	}
	// s2 keeps +Z as the pole and measures longitude towards +Y, which is
	// -Z in the globe frame.
	ll := s2.LatLngFromPoint(s2.Point{Vector: r3.Vector{X: p.X, Y: -p.Z, Z: p.Y}})
	return ll.Lng.Degrees(), ll.Lat.Degrees()
}
