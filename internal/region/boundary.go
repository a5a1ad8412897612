package region

import (
	"cmp"
	"slices"
)

// vertex is a grid corner: row r runs south to north, column c west to east.
type vertex struct {
	r, c int
}

type edge struct {
	from, to vertex
	dr, dc   int
	used     bool
}

// traceOuter returns the outer boundary of a 4-connected cell set as a ring
// of grid corners, counter-clockwise in (c, r), without the closing repeat
// and with collinear vertices removed.
//
// Every exposed cell side becomes a directed edge with the cell on its left.
// Edges are chained into loops; where two edges leave the same corner the
// right turn is taken, which keeps each loop on a single empty region so the
// exterior comes out as one simple ring and holes as clockwise rings.
func traceOuter(member func(r, c int) bool, cells []int, cols int) []vertex {
	var edges []*edge
	out := make(map[vertex][]*edge)

	add := func(from, to vertex) {
		e := &edge{from: from, to: to, dr: to.r - from.r, dc: to.c - from.c}
		edges = append(edges, e)
		out[from] = append(out[from], e)
	}

	for _, i := range cells {
		r, c := i/cols, i%cols
		if !member(r-1, c) {
			add(vertex{r, c}, vertex{r, c + 1})
		}
		if !member(r, c+1) {
			add(vertex{r, c + 1}, vertex{r + 1, c + 1})
		}
		if !member(r+1, c) {
			add(vertex{r + 1, c + 1}, vertex{r + 1, c})
		}
		if !member(r, c-1) {
			add(vertex{r + 1, c}, vertex{r, c})
		}
	}

	var best []vertex
	bestArea := 0
	for _, start := range edges {
		if start.used {
			continue
		}
		ring := walk(start, out)
		if a := twiceArea(ring); a > bestArea {
			best, bestArea = ring, a
		}
	}

	return simplify(best)
}

func walk(start *edge, out map[vertex][]*edge) []vertex {
	var ring []vertex
	cur := start
	for {
		cur.used = true
		ring = append(ring, cur.from)
		if cur.to == start.from {
			return ring
		}
		next := pick(cur, out[cur.to])
		if next == nil {
			return ring
		}
		cur = next
	}
}

func pick(in *edge, candidates []*edge) *edge {
	// Right of heading (dc, dr) in (c, r) space is (dr, -dc).
	rdr, rdc := -in.dc, in.dr

	var fallback *edge
	for _, e := range candidates {
		if e.used {
			continue
		}
		if e.dr == rdr && e.dc == rdc {
			return e
		}
		if fallback == nil {
			fallback = e
		}
	}
	return fallback
}

// twiceArea is the doubled signed shoelace area in (c, r) space; positive
// for counter-clockwise rings.
func twiceArea(ring []vertex) int {
	sum := 0
	for i, a := range ring {
		b := ring[(i+1)%len(ring)]
		sum += a.c*b.r - b.c*a.r
	}
	return sum
}

func simplify(ring []vertex) []vertex {
	if len(ring) < 3 {
		return ring
	}
	out := make([]vertex, 0, len(ring))
	n := len(ring)
	for i, v := range ring {
		prev := ring[(i+n-1)%n]
		next := ring[(i+1)%n]
		if cross(prev, v, next) != 0 {
			out = append(out, v)
		}
	}
	return out
}

func cross(o, a, b vertex) int {
	return (a.c-o.c)*(b.r-o.r) - (a.r-o.r)*(b.c-o.c)
}

// convexHull returns the counter-clockwise hull of points in (c, r) space
// using Andrew's monotone chain. Collinear points are dropped.
func convexHull(points []vertex) []vertex {
	pts := slices.Clone(points)
	slices.SortFunc(pts, func(a, b vertex) int {
		if n := cmp.Compare(a.c, b.c); n != 0 {
			return n
		}
		return cmp.Compare(a.r, b.r)
	})
	pts = slices.Compact(pts)
	if len(pts) < 3 {
		return pts
	}

	hull := make([]vertex, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// rotateToOrigin starts the ring at its southernmost, then westernmost,
// vertex.
func rotateToOrigin(ring []vertex) []vertex {
	if len(ring) == 0 {
		return ring
	}
	first := 0
	for i, v := range ring {
		o := ring[first]
		if v.r < o.r || (v.r == o.r && v.c < o.c) {
			first = i
		}
	}
	return append(slices.Clone(ring[first:]), ring[:first]...)
}
