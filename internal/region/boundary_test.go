package region

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grid builds a cell set from rows drawn north to south, '#' marking members.
func grid(rows ...string) (member func(r, c int) bool, cells []int, cols int) {
	n := len(rows)
	cols = len(rows[0])
	set := make(map[int]bool)
	for i, line := range rows {
		r := n - 1 - i
		for c, ch := range line {
			if ch == '#' {
				set[r*cols+c] = true
				cells = append(cells, r*cols+c)
			}
		}
	}
	slices.Sort(cells)
	member = func(r, c int) bool {
		if r < 0 || r >= n || c < 0 || c >= cols {
			return false
		}
		return set[r*cols+c]
	}
	return member, cells, cols
}

func TestTraceOuterSquare(t *testing.T) {
	member, cells, cols := grid(
		"##",
		"##",
	)

	ring := rotateToOrigin(traceOuter(member, cells, cols))

	want := []vertex{{0, 0}, {0, 2}, {2, 2}, {2, 0}}
	assert.Equal(t, want, ring)
}

func TestTraceOuterLShape(t *testing.T) {
	member, cells, cols := grid(
		"#.",
		"##",
	)

	ring := rotateToOrigin(traceOuter(member, cells, cols))

	want := []vertex{{0, 0}, {0, 2}, {1, 2}, {1, 1}, {2, 1}, {2, 0}}
	assert.Equal(t, want, ring)
	assert.Equal(t, 6, twiceArea(ring))
}

func TestTraceOuterIgnoresHole(t *testing.T) {
	member, cells, cols := grid(
		"###",
		"#.#",
		"###",
	)

	ring := rotateToOrigin(traceOuter(member, cells, cols))

	want := []vertex{{0, 0}, {0, 3}, {3, 3}, {3, 0}}
	assert.Equal(t, want, ring)
}

func TestTraceOuterPinchedHole(t *testing.T) {
	// The hole touches the outer ring's interior diagonally at one corner.
	member, cells, cols := grid(
		"###",
		"#.#",
		"##.",
	)

	ring := traceOuter(member, cells, cols)

	// Eight cells: the hole stays inside the outer ring.
	assert.Equal(t, 16, twiceArea(ring))
	seen := make(map[vertex]bool)
	for _, v := range ring {
		require.False(t, seen[v], "ring revisits %v: %v", v, ring)
		seen[v] = true
	}
}

func TestConvexHull(t *testing.T) {
	points := []vertex{
		{0, 0}, {0, 1}, {0, 2},
		{1, 1},
		{2, 0}, {2, 2},
		{0, 0},
	}

	hull := rotateToOrigin(convexHull(points))

	want := []vertex{{0, 0}, {0, 2}, {2, 2}, {2, 0}}
	assert.Equal(t, want, hull)
}
