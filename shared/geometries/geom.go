package geometries

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/capxml"
	"github.com/helloharbor/harbor-workers/cap-alerts/shared/models"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

const SRID = 4326

// CircleVertices is the number of vertices used to approximate a cap:circle.
const CircleVertices = 64

const earthRadiusKm = float64(6371.0088)
const geohashChars = 7

// ErrEmptyShape is returned for a circle with zero radius.
var ErrEmptyShape = errors.New("shape has no area")

type MalformedGeometryError struct {
	Kind   models.ShapeKind
	Text   string
	Reason string
}

func (e *MalformedGeometryError) Error() string {
	return fmt.Sprintf("malformed %s %q: %s", e.Kind, e.Text, e.Reason)
}

// Shape is either a Circle or a Polygon.
type Shape interface {
	Kind() models.ShapeKind
	loop() (*s2.Loop, error)
	ring(loop *s2.Loop) orb.Ring
}

// Circle is a cap:circle. Center is (lon, lat).
type Circle struct {
	Center   orb.Point
	RadiusKm float64
}

func (Circle) Kind() models.ShapeKind { return models.ShapeCircle }

// Polygon is a cap:polygon ring in (lon, lat) order, closed, without
// consecutive duplicate vertices.
type Polygon struct {
	Ring orb.Ring
}

func (Polygon) Kind() models.ShapeKind { return models.ShapePolygon }

// ParseCircle reads "lat,lon radius" with the radius in kilometers.
func ParseCircle(text string) (Circle, error) {
	bad := func(reason string) (Circle, error) {
		return Circle{}, &MalformedGeometryError{Kind: models.ShapeCircle, Text: text, Reason: reason}
	}

	fields := capxml.SpaceTokens(text)
	if len(fields) != 2 {
		return bad(fmt.Sprintf("found %d tokens, req 2", len(fields)))
	}
	center, err := parseVertex(fields[0])
	if err != nil {
		return bad(err.Error())
	}
	radius, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return bad("radius is not a number")
	}
	if radius < 0 {
		return bad("negative radius")
	}
	if radius/earthRadiusKm >= math.Pi {
		return bad("radius larger than the earth")
	}

	return Circle{Center: center, RadiusKm: radius}, nil
}

// ParsePolygon reads whitespace separated "lat,lon" pairs.
func ParsePolygon(text string) (Polygon, error) {
	bad := func(reason string) (Polygon, error) {
		return Polygon{}, &MalformedGeometryError{Kind: models.ShapePolygon, Text: text, Reason: reason}
	}

	var ring orb.Ring
	for _, tok := range capxml.SpaceTokens(text) {
		pt, err := parseVertex(tok)
		if err != nil {
			return bad(err.Error())
		}
		if n := len(ring); n > 0 && ring[n-1].Equal(pt) {
			continue
		}
		ring = append(ring, pt)
	}

	// alerts are inconsistent about repeating the first vertex
	if n := len(ring); n > 1 && ring[0].Equal(ring[n-1]) {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return bad(fmt.Sprintf("found %d distinct vertices, req 3", len(ring)))
	}

	// ipaws polygons come in with either winding. s2 puts the interior on
	// the left of the loop, so a clockwise ring reads as nearly the whole
	// sphere. anything over a hemisphere is backwards.
	if s2.LoopFromPoints(toS2(ring)).Area() > 2*math.Pi {
		ring.Reverse()
	}

	return Polygon{Ring: append(ring, ring[0])}, nil
}

func parseVertex(tok string) (orb.Point, error) {
	coords := strings.Split(tok, ",")
	if len(coords) != 2 {
		return orb.Point{}, fmt.Errorf("vertex %q poorly formed", tok)
	}
	lat, errLat := strconv.ParseFloat(coords[0], 64)
	lon, errLng := strconv.ParseFloat(coords[1], 64)
	if errLat != nil || errLng != nil {
		return orb.Point{}, fmt.Errorf("vertex %q poorly formed", tok)
	}
	if !(lat >= -90 && lat <= 90) || !(lon >= -180 && lon <= 180) {
		return orb.Point{}, fmt.Errorf("vertex %q out of range", tok)
	}
	return orb.Point{lon, lat}, nil
}

func toS2(ring orb.Ring) []s2.Point {
	points := make([]s2.Point, 0, len(ring))
	for _, p := range ring {
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat(), p.Lon())))
	}
	return points
}

func (c Circle) loop() (*s2.Loop, error) {
	if c.RadiusKm == 0 {
		return nil, ErrEmptyShape
	}
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(c.Center.Lat(), c.Center.Lon()))
	return s2.RegularLoop(center, s1.Angle(c.RadiusKm/earthRadiusKm), CircleVertices), nil
}

func (c Circle) ring(loop *s2.Loop) orb.Ring {
	vertices := make([]orb.Point, 0, CircleVertices)
	for _, v := range loop.Vertices() {
		ll := s2.LatLngFromPoint(v)
		vertices = append(vertices, orb.Point{ll.Lng.Degrees(), ll.Lat.Degrees()})
	}
	return closeRing(vertices, loop)
}

func (p Polygon) loop() (*s2.Loop, error) {
	if len(p.Ring) < 4 || !p.Ring.Closed() {
		return nil, &MalformedGeometryError{Kind: models.ShapePolygon, Text: wkt.MarshalString(p.Ring), Reason: "ring not closed"}
	}
	return s2.LoopFromPoints(toS2(p.Ring[:len(p.Ring)-1])), nil
}

func (p Polygon) ring(loop *s2.Loop) orb.Ring {
	if !containsPole(loop) {
		return p.Ring
	}
	return closeRing(p.Ring[:len(p.Ring)-1], loop)
}

var (
	northPole = s2.PointFromCoords(0, 0, 1)
	southPole = s2.PointFromCoords(0, 0, -1)
)

func containsPole(loop *s2.Loop) bool {
	return loop.ContainsPoint(northPole) || loop.ContainsPoint(southPole)
}

// closeRing closes vertices, given in loop order, into a lon/lat ring. A
// loop around a pole has no lon/lat ring of its own, so it is cut at the
// antimeridian and run along the map edge to the pole.
func closeRing(vertices []orb.Point, loop *s2.Loop) orb.Ring {
	north := loop.ContainsPoint(northPole)
	if !north && !loop.ContainsPoint(southPole) {
		return append(orb.Ring(vertices), vertices[0])
	}

	// around the north pole the loop runs east, around the south pole west
	start := 0
	for i, v := range vertices {
		if (north && v.Lon() < vertices[start].Lon()) || (!north && v.Lon() > vertices[start].Lon()) {
			start = i
		}
	}
	edge, pole := 180.0, 90.0
	if !north {
		edge, pole = -180.0, -90.0
	}

	n := len(vertices)
	first, last := vertices[start], vertices[(start+n-1)%n]
	ring := make(orb.Ring, 0, n+5)
	ring = appendDistinct(ring, orb.Point{-edge, first.Lat()})
	for i := 0; i < n; i++ {
		ring = appendDistinct(ring, vertices[(start+i)%n])
	}
	ring = appendDistinct(ring, orb.Point{edge, last.Lat()})
	ring = appendDistinct(ring, orb.Point{edge, pole})
	ring = appendDistinct(ring, orb.Point{-edge, pole})
	return append(ring, ring[0])
}

func appendDistinct(ring orb.Ring, p orb.Point) orb.Ring {
	if n := len(ring); n > 0 && ring[n-1].Equal(p) {
		return ring
	}
	return append(ring, p)
}

// Build turns a shape into the stored polygon, tagged with its kind and the
// geohash of its centroid. Rings are lon/lat with geodesic edges, the way
// PostGIS reads geography, so a ring may cross the antimeridian.
func Build(s Shape) (models.AreaPolygon, error) {
	loop, err := s.loop()
	if err != nil {
		return models.AreaPolygon{}, err
	}
	centroid := s2.LatLngFromPoint(loop.Centroid())
	lng := centroid.Lng.Degrees()
	if lng >= 180 {
		lng -= 360
	}

	return models.AreaPolygon{
		Kind:    s.Kind(),
		Geom:    orb.Polygon{s.ring(loop)},
		SRID:    SRID,
		Geohash: geohash.EncodeWithPrecision(centroid.Lat.Degrees(), lng, geohashChars),
	}, nil
}

// EWKT renders a polygon the way PostGIS reads it, e.g.
// SRID=4326;POLYGON((-118.25 34 ...)).
func EWKT(p orb.Polygon) string {
	return fmt.Sprintf("SRID=%d;%s", SRID, wkt.MarshalString(p))
}
