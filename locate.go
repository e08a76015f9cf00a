package geoglobe

import (
	"math"
	"sync"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// locateGeohashPrecision sets the memo cell size for Locate. Precision 9 is
// roughly 5m x 5m, far below what a click on the globe can resolve.
const locateGeohashPrecision = 9

// maxLocateMemo bounds the memo; it is dropped wholesale when full.
const maxLocateMemo = 4096

// sphericalPolygon is one polygon of a country on the sphere.
type sphericalPolygon struct {
	outer *s2.Loop
	holes []*s2.Loop
	bound s2.Rect
}

func (p *sphericalPolygon) containsPoint(ll s2.LatLng, pt s2.Point) bool {
	if !p.bound.ContainsLatLng(ll) || !p.outer.ContainsPoint(pt) {
		return false
	}
	for _, h := range p.holes {
		if h.ContainsPoint(pt) {
			return false
		}
	}
	return true
}

// locator answers which country contains a geographic point. Unlike the fan
// fill used for picking, it honours concave outlines and holes.
type locator struct {
	polygons [][]sphericalPolygon // Indexed like the country slice

	mu   sync.Mutex
	memo map[string]int // geohash -> country index, -1 for no country
}

func newLocator(countries []Country) *locator {
	l := &locator{
		polygons: make([][]sphericalPolygon, len(countries)),
		memo:     make(map[string]int),
	}
	for i, c := range countries {
		switch g := c.Geometry.(type) {
		case orb.Polygon:
			if p, ok := newSphericalPolygon(g); ok {
				l.polygons[i] = append(l.polygons[i], p)
			}
		case orb.MultiPolygon:
			for _, poly := range g {
				if p, ok := newSphericalPolygon(poly); ok {
					l.polygons[i] = append(l.polygons[i], p)
				}
			}
		}
	}
	return l
}

func newSphericalPolygon(p orb.Polygon) (sphericalPolygon, bool) {
	if len(p) == 0 {
		return sphericalPolygon{}, false
	}
	outer := loopFromRing(p[0])
	if outer == nil {
		return sphericalPolygon{}, false
	}
	sp := sphericalPolygon{outer: outer, bound: outer.RectBound()}
	for _, r := range p[1:] {
		if h := loopFromRing(r); h != nil {
			sp.holes = append(sp.holes, h)
		}
	}
	return sp, true
}

// loopFromRing converts a GeoJSON ring to an s2 loop. The closing vertex and
// repeated vertices are dropped, and the loop is normalised to enclose the
// smaller of its two regions. Rings with fewer than three distinct vertices
// return nil.
func loopFromRing(r orb.Ring) *s2.Loop {
	pts := make([]s2.Point, 0, len(r))
	for _, pt := range r {
		p := s2.PointFromLatLng(s2.LatLngFromDegrees(pt.Lat(), pt.Lon()))
		if n := len(pts); n > 0 && pts[n-1].ApproxEqual(p) {
			continue
		}
		pts = append(pts, p)
	}
	if n := len(pts); n > 1 && pts[0].ApproxEqual(pts[n-1]) {
		pts = pts[:n-1]
	}
	if len(pts) < 3 {
		return nil
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop
}

// locate returns the index of the first country containing (lat, lon).
func (l *locator) locate(lat, lon float64) (int, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return -1, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return -1, false
	}

	key := geohash.EncodeWithPrecision(lat, lon, locateGeohashPrecision)
	l.mu.Lock()
	idx, ok := l.memo[key]
	l.mu.Unlock()
	if ok {
		return idx, idx >= 0
	}

	idx = l.scan(lat, lon)

	l.mu.Lock()
	if len(l.memo) >= maxLocateMemo {
		l.memo = make(map[string]int)
	}
	l.memo[key] = idx
	l.mu.Unlock()
	return idx, idx >= 0
}

func (l *locator) scan(lat, lon float64) int {
	ll := s2.LatLngFromDegrees(lat, lon)
	pt := s2.PointFromLatLng(ll)
	for i, polys := range l.polygons {
		for j := range polys {
			if polys[j].containsPoint(ll, pt) {
				return i
			}
		}
	}
	return -1
}
