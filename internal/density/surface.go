package density

// Surface is a normalized density grid. Row 0 is the southernmost band and
// column 0 the westernmost; cell (r, c) spans
// [MinLat + r*CellLat, MinLat + (r+1)*CellLat] by
// [MinLon + c*CellLon, MinLon + (c+1)*CellLon]. Cell masses sum to 1.
type Surface struct {
	rows      int
	cols      int
	minLat    float64
	minLon    float64
	cellLat   float64
	cellLon   float64
	mass      []float64
	bandwidth Bandwidth
	nSamples  int
}

func (s *Surface) Rows() int            { return s.rows }
func (s *Surface) Cols() int            { return s.cols }
func (s *Surface) Len() int             { return len(s.mass) }
func (s *Surface) MinLat() float64      { return s.minLat }
func (s *Surface) MinLon() float64      { return s.minLon }
func (s *Surface) CellLat() float64     { return s.cellLat }
func (s *Surface) CellLon() float64     { return s.cellLon }
func (s *Surface) Bandwidth() Bandwidth { return s.bandwidth }
func (s *Surface) NSamples() int        { return s.nSamples }

// MaxLat is the northern edge of the grid.
func (s *Surface) MaxLat() float64 { return s.minLat + float64(s.rows)*s.cellLat }

// MaxLon is the eastern edge of the grid.
func (s *Surface) MaxLon() float64 { return s.minLon + float64(s.cols)*s.cellLon }

// Index flattens a row and column into a cell index.
func (s *Surface) Index(r, c int) int { return r*s.cols + c }

// Cell splits a flat index into row and column.
func (s *Surface) Cell(i int) (r, c int) { return i / s.cols, i % s.cols }

// Mass returns the probability mass of the cell at flat index i.
func (s *Surface) Mass(i int) float64 { return s.mass[i] }

// At returns the probability mass of cell (r, c).
func (s *Surface) At(r, c int) float64 { return s.mass[s.Index(r, c)] }

// Center returns the latitude and longitude of the center of cell (r, c).
func (s *Surface) Center(r, c int) (lat, lon float64) {
	return s.minLat + (float64(r)+0.5)*s.cellLat,
		s.minLon + (float64(c)+0.5)*s.cellLon
}

// Corner returns the latitude and longitude of grid vertex (r, c), the
// south-west corner of cell (r, c). Vertices range over [0, Rows] x [0, Cols].
func (s *Surface) Corner(r, c int) (lat, lon float64) {
	return s.minLat + float64(r)*s.cellLat,
		s.minLon + float64(c)*s.cellLon
}

// Locate returns the cell containing the point, or ok=false when the point
// lies outside the grid.
func (s *Surface) Locate(lat, lon float64) (r, c int, ok bool) {
	if lat < s.minLat || lon < s.minLon || lat > s.MaxLat() || lon > s.MaxLon() {
		return 0, 0, false
	}
	r = min(int((lat-s.minLat)/s.cellLat), s.rows-1)
	c = min(int((lon-s.minLon)/s.cellLon), s.cols-1)
	return r, c, true
}
