package region

import (
	"encoding/json"
	"fmt"
	"math"
)

// Point is a geographic coordinate. It serializes as [lat, lon].
type Point struct {
	Lat float64
	Lon float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lon})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	p.Lat, p.Lon = pair[0], pair[1]
	return nil
}

// Polygon is a closed ring: the first vertex is repeated as the last. Rings
// produced by Extract run counter-clockwise in (lon, lat) and start at the
// southernmost, then westernmost, vertex.
type Polygon []Point

// Area returns the planar area of the ring in square degrees.
func (p Polygon) Area() float64 {
	return math.Abs(p.signedArea())
}

func (p Polygon) signedArea() float64 {
	if len(p) < 4 {
		return 0
	}
	var sum float64
	for i := 0; i < len(p)-1; i++ {
		a, b := p[i], p[i+1]
		sum += a.Lon*b.Lat - b.Lon*a.Lat
	}
	return sum / 2
}

// Contains reports whether the point lies inside the ring using an even-odd
// ray cast along the longitude axis.
func (p Polygon) Contains(lat, lon float64) bool {
	inside := false
	for i := 0; i < len(p)-1; i++ {
		a, b := p[i], p[i+1]
		if (a.Lat > lat) == (b.Lat > lat) {
			continue
		}
		x := a.Lon + (lat-a.Lat)*(b.Lon-a.Lon)/(b.Lat-a.Lat)
		if lon < x {
			inside = !inside
		}
	}
	return inside
}

// Closed reports whether the ring repeats its first vertex at the end.
func (p Polygon) Closed() bool {
	return len(p) >= 4 && p[0] == p[len(p)-1]
}
