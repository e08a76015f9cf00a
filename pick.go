package geoglobe

import (
	"math"

	"github.com/golang/geo/r3"
)

// DefaultLineThreshold is how close, in scene units, a ray has to pass to a
// boundary segment to count as hitting it.
const DefaultLineThreshold = 1.0

// intersectEpsilon guards against near-parallel rays and self hits.
const intersectEpsilon = 1e-9

// Ray is a half-line in the globe's frame. Direction does not need to be
// normalised.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// At returns the point at distance t along the normalised ray.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Direction.Normalize().Mul(t))
}

// RotateY rotates the ray about the +Y axis by angle radians. Rotating a
// world ray by the negated globe rotation expresses it in the globe's
// local frame.
func (r Ray) RotateY(angle float64) Ray {
	return Ray{Origin: rotateY(r.Origin, angle), Direction: rotateY(r.Direction, angle)}
}

func rotateY(v r3.Vector, angle float64) r3.Vector {
	s, c := math.Sincos(angle)
	return r3.Vector{X: c*v.X + s*v.Z, Y: v.Y, Z: -s*v.X + c*v.Z}
}

// PickOptions configures Resolve.
type PickOptions struct {
	LineThreshold float64 // Max ray-to-segment distance for a line hit (0 = DefaultLineThreshold)
}

// PickResult is the nearest geometry hit by a ray.
type PickResult struct {
	CountryID   string
	CountryName string
	Kind        MeshKind  // Which half of the mesh was hit
	Distance    float64   // Distance from the ray origin to the hit
	Point       r3.Vector // Hit point on the ray
}

// Resolve returns the tags of the nearest line or fill geometry hit by ray,
// and false when nothing is hit. Equal distances resolve to the earlier mesh,
// and within a mesh lines win over fill. Resolve never modifies the meshes.
func Resolve(ray Ray, meshes []TaggedMesh, opts ...PickOptions) (PickResult, bool) {
	options := PickOptions{}
	if len(opts) > 0 {
		options = opts[0]
	}
	threshold := options.LineThreshold
	if threshold <= 0 {
		threshold = DefaultLineThreshold
	}

	dir := ray.Direction.Normalize()
	if dir.Norm2() == 0 {
		return PickResult{}, false
	}
	unit := Ray{Origin: ray.Origin, Direction: dir}

	var (
		best  PickResult
		found bool
	)
	consider := func(g *Geometry, t float64) {
		if !found || t < best.Distance {
			best = PickResult{
				CountryID:   g.CountryID,
				CountryName: g.CountryName,
				Kind:        g.Kind,
				Distance:    t,
				Point:       unit.Origin.Add(dir.Mul(t)),
			}
			found = true
		}
	}

	for i := range meshes {
		lines := &meshes[i].Lines
		if t, ok := intersectLines(unit, lines, threshold); ok {
			consider(lines, t)
		}
		fill := &meshes[i].Fill
		if t, ok := intersectFill(unit, fill); ok {
			consider(fill, t)
		}
	}
	return best, found
}

// missesBounds reports whether the ray cannot come within slack of the
// geometry's bounding sphere.
func missesBounds(r Ray, g *Geometry, slack float64) bool {
	if len(g.Vertices) == 0 {
		return true
	}
	radius := g.bound + slack
	toCenter := g.center.Sub(r.Origin)
	along := toCenter.Dot(r.Direction)
	if along < 0 {
		return toCenter.Norm2() > radius*radius
	}
	closest := r.Origin.Add(r.Direction.Mul(along))
	return closest.Sub(g.center).Norm2() > radius*radius
}

func intersectFill(r Ray, g *Geometry) (float64, bool) {
	if missesBounds(r, g, 0) {
		return 0, false
	}
	var (
		best  float64
		found bool
	)
	for i := 0; i+2 < len(g.Vertices); i += 3 {
		t, ok := rayTriangle(r, g.Vertices[i], g.Vertices[i+1], g.Vertices[i+2])
		if ok && (!found || t < best) {
			best, found = t, true
		}
	}
	return best, found
}

func intersectLines(r Ray, g *Geometry, threshold float64) (float64, bool) {
	if missesBounds(r, g, threshold) {
		return 0, false
	}
	var (
		best  float64
		found bool
	)
	for i := 0; i+1 < len(g.Vertices); i += 2 {
		t, dist2 := raySegment(r, g.Vertices[i], g.Vertices[i+1])
		if dist2 > threshold*threshold {
			continue
		}
		if !found || t < best {
			best, found = t, true
		}
	}
	return best, found
}

// rayTriangle is the Möller-Trumbore test. Triangles are hit from either side
// since the fill is drawn double sided.
func rayTriangle(r Ray, a, b, c r3.Vector) (float64, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < intersectEpsilon {
		return 0, false
	}
	inv := 1 / det

	tv := r.Origin.Sub(a)
	u := tv.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := tv.Cross(e1)
	v := r.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < intersectEpsilon {
		return 0, false
	}
	return t, true
}

// raySegment returns the distance along a unit ray to the point closest to
// segment [p, q], and the squared distance between the closest points.
func raySegment(r Ray, p, q r3.Vector) (t, dist2 float64) {
	d := q.Sub(p)
	w := r.Origin.Sub(p)
	e := d.Dot(d)
	c := r.Direction.Dot(w)

	var s float64 // parameter on the segment, in [0, 1]
	if e <= intersectEpsilon {
		t = math.Max(0, -c)
	} else {
		b := r.Direction.Dot(d)
		f := d.Dot(w)
		denom := e - b*b
		if denom > intersectEpsilon {
			t = math.Max(0, (b*f-c*e)/denom)
		}
		s = (b*t + f) / e
		switch {
		case s < 0:
			s = 0
			t = math.Max(0, -c)
		case s > 1:
			s = 1
			t = math.Max(0, b-c)
		}
	}

	onRay := r.Origin.Add(r.Direction.Mul(t))
	onSeg := p.Add(d.Mul(s))
	return t, onRay.Sub(onSeg).Norm2()
}
