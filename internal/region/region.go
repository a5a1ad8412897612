// Package region extracts highest posterior density credible regions from a
// density surface: the smallest set of grid cells reaching a confidence
// level, its boundary polygon, and a probability-weighted center.
package region

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/JaimeStill/geoassign/internal/density"
)

// Policy selects how a spatially disconnected cell set becomes one polygon.
type Policy string

const (
	// PolicyConvexHull returns the convex hull of every accumulated cell,
	// connected or not.
	PolicyConvexHull Policy = "convex_hull"
	// PolicyLargestComponent keeps only the component holding the most mass.
	PolicyLargestComponent Policy = "largest_component"
)

// ParsePolicy resolves a policy name. The empty string selects
// PolicyConvexHull.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyConvexHull:
		return PolicyConvexHull, nil
	case PolicyLargestComponent:
		return PolicyLargestComponent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Options tunes extraction.
type Options struct {
	Policy Policy
}

// DefaultOptions returns the extraction defaults.
func DefaultOptions() Options {
	return Options{Policy: PolicyConvexHull}
}

// CredibleRegion is the serialized result handed to map clients.
type CredibleRegion struct {
	Confidence float64 `json:"confidence"`
	NSamples   int     `json:"n_samples"`
	Center     Point   `json:"center"`
	Polygon    Polygon `json:"polygon"`

	cells    []int
	cellMass float64
}

// CellMass is the total surface mass of the accumulated cell set. It is only
// known for regions produced by Extract.
func (cr *CredibleRegion) CellMass() float64 { return cr.cellMass }

// Cells returns the accumulated cell indices in accumulation order.
func (cr *CredibleRegion) Cells() []int { return slices.Clone(cr.cells) }

// Extract computes the credible region of s at confidence.
func Extract(s *density.Surface, confidence float64, opts Options) (*CredibleRegion, error) {
	if !(confidence > 0 && confidence < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidConfidence, confidence)
	}
	if opts.Policy == "" {
		opts.Policy = PolicyConvexHull
	}

	cells, mass, err := accumulate(s, confidence)
	if err != nil {
		return nil, err
	}

	components := label(s, cells)

	var (
		ring       []vertex
		represents []int
	)

	// The hull covers every accumulated cell, so it grows with confidence
	// even when components merge.
	switch opts.Policy {
	case PolicyConvexHull:
		var points []vertex
		for _, comp := range components {
			points = append(points, comp.ring...)
		}
		ring = convexHull(points)
		represents = cells
	case PolicyLargestComponent:
		best := components[0]
		for _, comp := range components[1:] {
			if comp.mass > best.mass {
				best = comp
			}
		}
		ring = best.ring
		represents = best.cells
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, opts.Policy)
	}

	return &CredibleRegion{
		Confidence: confidence,
		NSamples:   s.NSamples(),
		Center:     centroid(s, represents),
		Polygon:    toPolygon(s, rotateToOrigin(ring)),
		cells:      cells,
		cellMass:   mass,
	}, nil
}

// accumulate takes cells in descending mass, ties broken by ascending
// index, until their total reaches confidence.
func accumulate(s *density.Surface, confidence float64) ([]int, float64, error) {
	order := make([]int, s.Len())
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if n := cmp.Compare(s.Mass(b), s.Mass(a)); n != 0 {
			return n
		}
		return cmp.Compare(a, b)
	})

	var sum float64
	for k, i := range order {
		sum += s.Mass(i)
		if sum >= confidence {
			return order[:k+1], sum, nil
		}
	}
	return nil, sum, fmt.Errorf(
		"%w: total mass %v below confidence %v",
		ErrRegionExtractionFailure, sum, confidence,
	)
}

type component struct {
	cells []int
	mass  float64
	ring  []vertex
}

// label splits the cell set into 4-connected components, ordered by their
// lowest cell index, and traces each component's outer ring.
func label(s *density.Surface, cells []int) []component {
	rows, cols := s.Rows(), s.Cols()
	in := make([]bool, s.Len())
	for _, i := range cells {
		in[i] = true
	}

	seeds := slices.Clone(cells)
	slices.Sort(seeds)

	id := make([]int, s.Len())
	var components []component

	for _, seed := range seeds {
		if id[seed] != 0 {
			continue
		}
		n := len(components) + 1
		comp := component{}
		queue := []int{seed}
		id[seed] = n

		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			comp.cells = append(comp.cells, i)
			comp.mass += s.Mass(i)

			r, c := i/cols, i%cols
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nr, nc := r+d[0], c+d[1]
				if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
					continue
				}
				j := nr*cols + nc
				if in[j] && id[j] == 0 {
					id[j] = n
					queue = append(queue, j)
				}
			}
		}

		slices.Sort(comp.cells)
		member := func(r, c int) bool {
			if r < 0 || r >= rows || c < 0 || c >= cols {
				return false
			}
			return id[r*cols+c] == n
		}
		comp.ring = traceOuter(member, comp.cells, cols)
		components = append(components, comp)
	}

	return components
}

func centroid(s *density.Surface, cells []int) Point {
	var lat, lon, total float64
	for _, i := range cells {
		m := s.Mass(i)
		cl, cn := s.Center(s.Cell(i))
		lat += m * cl
		lon += m * cn
		total += m
	}
	if total == 0 {
		return Point{}
	}
	return Point{Lat: lat / total, Lon: lon / total}
}

func toPolygon(s *density.Surface, ring []vertex) Polygon {
	poly := make(Polygon, 0, len(ring)+1)
	for _, v := range ring {
		lat, lon := s.Corner(v.r, v.c)
		poly = append(poly, Point{Lat: lat, Lon: lon})
	}
	if len(poly) > 0 {
		poly = append(poly, poly[0])
	}
	return poly
}
