// Package density builds a gridded kernel density estimate over posterior
// location samples. Bandwidths follow Silverman's rule of thumb independently
// per axis, and each grid cell holds the probability mass the estimate assigns
// to it.
package density

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/JaimeStill/geoassign/internal/posterior"
)

const (
	// kernelCutoff bounds the kernel support in bandwidths.
	kernelCutoff = 4.0
	// minBandwidth is the smallest bandwidth, in degrees, treated as non-zero.
	minBandwidth = 1e-9
)

// MaxResolution bounds Options.Resolution. A surface holds Resolution²
// cells.
const MaxResolution = 2000

// Options tunes the estimate.
type Options struct {
	// MinSamples is the fewest samples accepted.
	MinSamples int
	// Resolution is the number of grid cells along each axis.
	Resolution int
	// MarginBandwidths expands the sample bounding box on every side.
	MarginBandwidths float64
	// Workers bounds row-band concurrency. Zero uses runtime.NumCPU.
	Workers int
}

// DefaultOptions returns the estimator defaults.
func DefaultOptions() Options {
	return Options{
		MinSamples:       30,
		Resolution:       100,
		MarginBandwidths: 3,
	}
}

// Validate rejects a resolution above MaxResolution. Zero or negative
// fields fall back to the defaults.
func (o Options) Validate() error {
	if o.Resolution > MaxResolution {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidResolution, o.Resolution, MaxResolution)
	}
	return nil
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MinSamples <= 0 {
		o.MinSamples = d.MinSamples
	}
	if o.Resolution <= 0 {
		o.Resolution = d.Resolution
	}
	if o.MarginBandwidths <= 0 {
		o.MarginBandwidths = d.MarginBandwidths
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Bandwidth holds the kernel bandwidth along each axis, in degrees.
type Bandwidth struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Silverman computes the per-axis bandwidth for samples using
// 0.9 * min(sd, IQR/1.34) * n^(-1/5), with sd the sample standard deviation
// and the IQR taken from type-7 (linear between order statistics) quartiles.
// When the IQR is zero the standard deviation is used alone.
func Silverman(samples []posterior.Sample) Bandwidth {
	lats := make([]float64, len(samples))
	lons := make([]float64, len(samples))
	for i, s := range samples {
		lats[i] = s.Lat
		lons[i] = s.Lon
	}
	return Bandwidth{
		Lat: silverman(lats),
		Lon: silverman(lons),
	}
}

func silverman(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	sd := stat.StdDev(sorted, nil)
	iqr := quantile7(0.75, sorted) - quantile7(0.25, sorted)

	spread := sd
	if iqr > 0 {
		spread = math.Min(sd, iqr/1.34)
	}

	return 0.9 * spread * math.Pow(float64(len(values)), -0.2)
}

// quantile7 interpolates linearly between the order statistics around
// (n-1)p. gonum's LinInterp interpolates the empirical CDF instead, which
// widens the quartiles of small samples.
func quantile7(p float64, sorted []float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Estimate builds a Surface from samples. It fails with ErrInsufficientSamples
// below the configured minimum and with ErrDegenerateSampleDistribution when
// the bandwidth along either axis collapses.
func Estimate(ctx context.Context, samples []posterior.Sample, opts Options) (*Surface, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.normalized()

	if len(samples) < opts.MinSamples {
		return nil, fmt.Errorf(
			"%w: got %d, need at least %d",
			ErrInsufficientSamples, len(samples), opts.MinSamples,
		)
	}

	bw := Silverman(samples)
	if bw.Lat < minBandwidth || bw.Lon < minBandwidth {
		return nil, fmt.Errorf(
			"%w: bandwidth lat=%g lon=%g",
			ErrDegenerateSampleDistribution, bw.Lat, bw.Lon,
		)
	}

	s := newSurface(samples, bw, opts)
	kernels := buildKernels(samples, s)

	if err := s.accumulate(ctx, kernels, opts.Workers); err != nil {
		return nil, err
	}

	if err := s.normalize(); err != nil {
		return nil, err
	}

	return s, nil
}

func newSurface(samples []posterior.Sample, bw Bandwidth, opts Options) *Surface {
	minLat, maxLat := samples[0].Lat, samples[0].Lat
	minLon, maxLon := samples[0].Lon, samples[0].Lon
	for _, s := range samples[1:] {
		minLat = math.Min(minLat, s.Lat)
		maxLat = math.Max(maxLat, s.Lat)
		minLon = math.Min(minLon, s.Lon)
		maxLon = math.Max(maxLon, s.Lon)
	}

	minLat = math.Max(-90, minLat-opts.MarginBandwidths*bw.Lat)
	maxLat = math.Min(90, maxLat+opts.MarginBandwidths*bw.Lat)
	minLon = math.Max(-180, minLon-opts.MarginBandwidths*bw.Lon)
	maxLon = math.Min(180, maxLon+opts.MarginBandwidths*bw.Lon)

	n := opts.Resolution
	return &Surface{
		rows:      n,
		cols:      n,
		minLat:    minLat,
		minLon:    minLon,
		cellLat:   (maxLat - minLat) / float64(n),
		cellLon:   (maxLon - minLon) / float64(n),
		mass:      make([]float64, n*n),
		bandwidth: bw,
		nSamples:  len(samples),
	}
}

// window is the slice of cells along one axis that a sample's kernel covers,
// with the kernel mass falling in each cell.
type window struct {
	start   int
	weights []float64
}

func (w window) contains(i int) bool {
	return i >= w.start && i < w.start+len(w.weights)
}

type kernel struct {
	row window
	col window
}

func buildKernels(samples []posterior.Sample, s *Surface) []kernel {
	kernels := make([]kernel, len(samples))
	for i, sample := range samples {
		kernels[i] = kernel{
			row: axisWindow(sample.Lat, s.bandwidth.Lat, s.minLat, s.cellLat, s.rows),
			col: axisWindow(sample.Lon, s.bandwidth.Lon, s.minLon, s.cellLon, s.cols),
		}
	}
	return kernels
}

// axisWindow integrates a Gaussian kernel centered at x over the cells it
// reaches within kernelCutoff bandwidths.
func axisWindow(x, h, origin, cell float64, cells int) window {
	lo := int(math.Floor((x - kernelCutoff*h - origin) / cell))
	hi := int(math.Floor((x + kernelCutoff*h - origin) / cell))
	lo = max(lo, 0)
	hi = min(hi, cells-1)

	w := window{start: lo}
	if hi < lo {
		return w
	}

	w.weights = make([]float64, hi-lo+1)
	for i := lo; i <= hi; i++ {
		left := origin + float64(i)*cell
		right := left + cell
		w.weights[i-lo] = normalCDF((right-x)/h) - normalCDF((left-x)/h)
	}
	return w
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// accumulate sums kernel mass into the grid. Rows are split into bands that
// are filled concurrently; within a cell, samples are added in input order so
// the result does not depend on scheduling.
func (s *Surface) accumulate(ctx context.Context, kernels []kernel, workers int) error {
	bands := min(workers, s.rows)
	bandSize := (s.rows + bands - 1) / bands

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bands)

	for start := 0; start < s.rows; start += bandSize {
		end := min(start+bandSize, s.rows)
		g.Go(func() error {
			for r := start; r < end; r++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				s.accumulateRow(r, kernels)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("estimate density: %w", err)
	}
	return nil
}

func (s *Surface) accumulateRow(r int, kernels []kernel) {
	row := s.mass[r*s.cols : (r+1)*s.cols]
	for _, k := range kernels {
		if !k.row.contains(r) {
			continue
		}
		wy := k.row.weights[r-k.row.start]
		for j, wx := range k.col.weights {
			row[k.col.start+j] += wy * wx
		}
	}
}

func (s *Surface) normalize() error {
	var total float64
	for _, m := range s.mass {
		total += m
	}

	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return fmt.Errorf("%w: kernel mass does not cover the grid", ErrDegenerateSampleDistribution)
	}

	for i := range s.mass {
		s.mass[i] /= total
	}
	return nil
}
