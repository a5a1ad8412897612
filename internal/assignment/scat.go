// Package assignment runs the external genetic-assignment tool. The Runner
// interface hides the subprocess so the pipeline can be exercised with fakes.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JaimeStill/geoassign/internal/posterior"
)

// Request describes one assignment run.
type Request struct {
	// InputPath is the uploaded VCF on local disk.
	InputPath string
	// WorkDir is a scratch directory owned by the caller.
	WorkDir    string
	Species    string
	PanelSize  int
	Iterations int
	Thin       int
	Burn       int
}

// Output is what a successful run left behind.
type Output struct {
	Dir           string
	PosteriorName string
	Posterior     []byte
	Format        posterior.Options
	Files         []FileDescriptor
}

// Runner runs the assignment tool.
type Runner interface {
	Run(ctx context.Context, req Request) (*Output, error)
}

// SCAT runs SCAT3 in assignment mode against a species reference grid.
type SCAT struct {
	cfg    *Config
	exec   *Executor
	logger *slog.Logger
}

// NewSCAT creates a SCAT runner.
func NewSCAT(cfg *Config, exec *Executor, logger *slog.Logger) *SCAT {
	return &SCAT{
		cfg:    cfg,
		exec:   exec,
		logger: logger.With("runner", "scat"),
	}
}

// Run converts the VCF, invokes
//
//	SCAT3 -A 1 1 -g <grid> <genotype> <location> <outdir> <loci> <niter> <nthin> <nburn>
//
// and reads the posterior sample file from the output directory.
func (s *SCAT) Run(ctx context.Context, req Request) (*Output, error) {
	grid, err := s.gridFile(req.Species)
	if err != nil {
		return nil, err
	}

	genotypes, err := s.convert(req)
	if err != nil {
		return nil, err
	}

	genotypePath := filepath.Join(req.WorkDir, "genotype_scat.txt")
	locationPath := filepath.Join(req.WorkDir, "location_scat.txt")
	outDir := filepath.Join(req.WorkDir, "output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	cmd := Command{
		Path: s.cfg.Binary,
		Args: []string{
			"-A", "1", "1",
			"-g", grid,
			genotypePath,
			locationPath,
			outDir,
			strconv.Itoa(req.PanelSize),
			strconv.Itoa(req.Iterations),
			strconv.Itoa(req.Thin),
			strconv.Itoa(req.Burn),
		},
		Dir:     req.WorkDir,
		Timeout: s.cfg.TimeoutDuration(),
	}

	s.logger.Info("running assignment tool",
		"species", req.Species,
		"samples", len(genotypes.Samples),
		"variants", genotypes.Variants,
		"panel_size", req.PanelSize,
	)

	res, err := s.exec.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	files, err := ListFiles(outDir)
	if err != nil {
		return nil, err
	}

	name, data, err := s.readPosterior(outDir, genotypes.Samples)
	if err != nil {
		return nil, err
	}

	s.logger.Info("assignment tool finished",
		"duration", res.Duration,
		"posterior", name,
		"files", len(files),
	)

	return &Output{
		Dir:           outDir,
		PosteriorName: name,
		Posterior:     data,
		Format:        posterior.SCATOptions(),
		Files:         files,
	}, nil
}

func (s *SCAT) gridFile(species string) (string, error) {
	species = strings.TrimSpace(species)
	if species == "" || species != filepath.Base(species) || strings.HasPrefix(species, ".") {
		return "", fmt.Errorf("%w: %q", ErrUnknownSpecies, species)
	}

	grid := filepath.Join(s.cfg.ReferenceDir, species, s.cfg.GridFile)
	if _, err := os.Stat(grid); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrUnknownSpecies, species)
		}
		return "", fmt.Errorf("stat grid file: %w", err)
	}
	return grid, nil
}

func (s *SCAT) convert(req Request) (*Genotypes, error) {
	in, err := os.Open(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open genotype input: %w", err)
	}
	defer in.Close()

	g, err := ReadVCF(in)
	if err != nil {
		return nil, err
	}

	if err := writeFile(filepath.Join(req.WorkDir, "genotype_scat.txt"), g.WriteGenotypes); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(req.WorkDir, "location_scat.txt"), g.WriteLocations); err != nil {
		return nil, err
	}
	return g, nil
}

// readPosterior finds the posterior samples: the configured file name first,
// then a file named after the first sample.
func (s *SCAT) readPosterior(dir string, samples []string) (string, []byte, error) {
	candidates := []string{s.cfg.PosteriorFile}
	if len(samples) > 0 {
		candidates = append(candidates, samples[0])
	}

	for _, name := range candidates {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return name, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("read posterior file: %w", err)
		}
	}
	return "", nil, fmt.Errorf("%w: looked for %s", ErrMissingOutput, strings.Join(candidates, ", "))
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
