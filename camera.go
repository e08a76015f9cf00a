package geoglobe

import (
	"math"

	"github.com/golang/geo/r3"
)

// Camera is a perspective camera looking at Target from Position.
type Camera struct {
	Position r3.Vector
	Target   r3.Vector
	Up       r3.Vector
	FOV      float64 // Vertical field of view in degrees
	Aspect   float64 // Viewport width / height
	Near     float64
	Far      float64
}

// DefaultCamera returns the camera the globe viewer starts with: 75° field of
// view, placed on +Z at twice the default globe radius, looking at the centre.
func DefaultCamera(aspect float64) Camera {
	if aspect <= 0 {
		aspect = 1
	}
	return Camera{
		Position: r3.Vector{Z: 2 * DefaultRadius},
		Up:       r3.Vector{Y: 1},
		FOV:      75,
		Aspect:   aspect,
		Near:     0.1,
		Far:      1000,
	}
}

// NDC converts a pointer position in pixels, measured from the top-left of a
// viewport of the given size, to normalised device coordinates in [-1, 1]
// with +Y up.
func NDC(clientX, clientY, width, height float64) (x, y float64) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return clientX/width*2 - 1, -(clientY/height)*2 + 1
}

// Ray returns the world-space ray through the given normalised device
// coordinates. The ray starts at the camera position.
func (c Camera) Ray(ndcX, ndcY float64) Ray {
	forward := c.Target.Sub(c.Position).Normalize()
	up := c.Up
	if up.Norm2() == 0 {
		up = r3.Vector{Y: 1}
	}
	right := forward.Cross(up).Normalize()
	trueUp := right.Cross(forward)

	aspect := c.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	tanHalf := math.Tan(c.FOV * math.Pi / 360)

	dir := forward.
		Add(right.Mul(ndcX * tanHalf * aspect)).
		Add(trueUp.Mul(ndcY * tanHalf))
	return Ray{Origin: c.Position, Direction: dir.Normalize()}
}

// IntersectSphere returns the nearest non-negative distance along ray at
// which it meets a sphere of the given radius centred at the origin.
func IntersectSphere(ray Ray, radius float64) (float64, bool) {
	dir := ray.Direction.Normalize()
	if dir.Norm2() == 0 {
		return 0, false
	}
	b := 2 * ray.Origin.Dot(dir)
	c := ray.Origin.Dot(ray.Origin) - radius*radius
	disc := b*b - 4*c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := (-b - sq) / 2
	if t < 0 {
		t = (-b + sq) / 2
		if t < 0 {
			return 0, false
		}
	}
	return t, true
}
