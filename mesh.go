package geoglobe

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// MeshKind tells line geometry from fill geometry without inspecting the
// renderer's objects.
type MeshKind uint8

const (
	KindLine MeshKind = iota + 1
	KindFill
)

func (k MeshKind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindFill:
		return "fill"
	}
	return fmt.Sprintf("MeshKind(%d)", uint8(k))
}

// MarshalText encodes the kind as "line" or "fill".
func (k MeshKind) MarshalText() ([]byte, error) {
	switch k {
	case KindLine, KindFill:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("unknown mesh kind %d", uint8(k))
}

// Country identifiers touched by the Taiwan override.
const (
	TaiwanNumericID = "158"
	TaiwanAlpha3    = "TWN"
	ChinaNumericID  = "156"
)

// ErrUnsupportedGeometry is reported by BuildMesh for geometry types other
// than Polygon and MultiPolygon. The mesh returned with it is empty but valid.
var ErrUnsupportedGeometry = errors.New("unsupported geometry type")

// Geometry is one renderable primitive of a country. Line vertices come in
// pairs (one segment each), fill vertices in triples (one triangle each).
type Geometry struct {
	Kind        MeshKind
	CountryID   string
	CountryName string
	Vertices    []SurfacePoint

	center SurfacePoint
	bound  float64
}

// Segments returns the number of line segments held by a line geometry.
func (g *Geometry) Segments() int { return len(g.Vertices) / 2 }

// Triangles returns the number of triangles held by a fill geometry.
func (g *Geometry) Triangles() int { return len(g.Vertices) / 3 }

// Positions flattens the vertices into x, y, z triples, the layout a GPU
// position attribute expects.
func (g *Geometry) Positions() []float32 {
	out := make([]float32, 0, len(g.Vertices)*3)
	for _, v := range g.Vertices {
		out = append(out, float32(v.X), float32(v.Y), float32(v.Z))
	}
	return out
}

// computeBounds records a bounding sphere used to skip whole geometries
// during picking.
func (g *Geometry) computeBounds() {
	if len(g.Vertices) == 0 {
		g.center, g.bound = r3.Vector{}, 0
		return
	}
	lo, hi := g.Vertices[0], g.Vertices[0]
	for _, v := range g.Vertices[1:] {
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	g.center = lo.Add(hi).Mul(0.5)
	for _, v := range g.Vertices {
		if d := v.Distance(g.center); d > g.bound {
			g.bound = d
		}
	}
}

// TaggedMesh is the boundary and fill geometry built for one country. Both
// halves always carry the same tags.
type TaggedMesh struct {
	Lines Geometry
	Fill  Geometry
}

// CountryID returns the tag shared by both halves of the mesh.
func (m *TaggedMesh) CountryID() string { return m.Lines.CountryID }

// CountryName returns the display name shared by both halves of the mesh.
func (m *TaggedMesh) CountryName() string { return m.Lines.CountryName }

// Empty reports whether the mesh contributes nothing to the scene.
func (m *TaggedMesh) Empty() bool {
	return len(m.Lines.Vertices) == 0 && len(m.Fill.Vertices) == 0
}

// SelectCountryID picks the identifier a country is tagged with: the feature
// id when present, otherwise its ISO alpha-3 code, then the Taiwan override.
func SelectCountryID(featureID, isoA3 string) string {
	id := featureID
	if id == "" {
		id = isoA3
	}
	return OverrideCountryID(id)
}

// OverrideCountryID folds Taiwan into China's numeric identifier. Every other
// identifier is returned unchanged.
func OverrideCountryID(id string) string {
	if id == TaiwanNumericID || id == TaiwanAlpha3 {
		return ChinaNumericID
	}
	return id
}

// BuildMesh projects every ring of a Polygon or MultiPolygon onto a sphere of
// the given radius and returns the combined boundary segments and fan-filled
// triangles for the country.
//
// Rings are not closed by the builder, and the fill is a fan anchored at each
// ring's first vertex, so concave rings and holes are filled approximately.
// Rings too short to form a segment or triangle contribute nothing.
//
// For any other geometry type an empty mesh is returned together with
// ErrUnsupportedGeometry; the mesh is still tagged and usable.
func BuildMesh(geom orb.Geometry, countryID, countryName string, radius float64) (TaggedMesh, error) {
	id := OverrideCountryID(countryID)
	mesh := TaggedMesh{
		Lines: Geometry{Kind: KindLine, CountryID: id, CountryName: countryName},
		Fill:  Geometry{Kind: KindFill, CountryID: id, CountryName: countryName},
	}

	var err error
	switch g := geom.(type) {
	case orb.Polygon:
		mesh.addPolygon(g, radius)
	case orb.MultiPolygon:
		for _, p := range g {
			mesh.addPolygon(p, radius)
		}
	case nil:
		err = fmt.Errorf("%w: no geometry", ErrUnsupportedGeometry)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedGeometry, geom.GeoJSONType())
	}

	mesh.Lines.computeBounds()
	mesh.Fill.computeBounds()
	return mesh, err
}

func (m *TaggedMesh) addPolygon(p orb.Polygon, radius float64) {
	for _, ring := range p {
		m.addRing(ring, radius)
	}
}

func (m *TaggedMesh) addRing(ring orb.Ring, radius float64) {
	if len(ring) == 0 {
		return
	}
	points := make([]SurfacePoint, len(ring))
	for i, pt := range ring {
		points[i] = Project(pt.Lon(), pt.Lat(), radius)
		if i > 0 {
			m.Lines.Vertices = append(m.Lines.Vertices, points[i-1], points[i])
		}
	}
	for i := 1; i < len(points)-1; i++ {
		m.Fill.Vertices = append(m.Fill.Vertices, points[0], points[i], points[i+1])
	}
}
