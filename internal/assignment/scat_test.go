package assignment_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/posterior"
)

// fakeSCAT records its arguments and writes a three-draw posterior plus
// the acceptance-rate trailer into the output directory ($8).
const fakeSCAT = `echo "$@" > "$8/args.txt"
printf '%s\n' '-10.5 -55.25' '-10.0 -55.0' '-9.5 -54.75' 'Acceptance rate 0.42' > "$8/LegadoSP"
`

type scatFixture struct {
	cfg     *assignment.Config
	input   string
	workDir string
}

func newSCATFixture(t *testing.T, script string) scatFixture {
	t.Helper()

	binary := writeScript(t, script)
	root := t.TempDir()

	refDir := filepath.Join(root, "reference")
	require.NoError(t, os.MkdirAll(filepath.Join(refDir, "panthera_onca"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "panthera_onca", "grid.txt"), []byte("grid\n"), 0o644))

	input := filepath.Join(root, "input.vcf")
	require.NoError(t, os.WriteFile(input, []byte(sampleVCF), 0o644))

	workDir := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(workDir, 0o755))

	cfg := &assignment.Config{Binary: binary, ReferenceDir: refDir}
	require.NoError(t, cfg.Finalize(nil))

	return scatFixture{cfg: cfg, input: input, workDir: workDir}
}

func (f scatFixture) runner() *assignment.SCAT {
	exec := assignment.NewExecutor(f.cfg.SpawnRetries, f.cfg.SpawnBackoffDuration(), discard())
	return assignment.NewSCAT(f.cfg, exec, discard())
}

func (f scatFixture) request(species string) assignment.Request {
	return assignment.Request{
		InputPath:  f.input,
		WorkDir:    f.workDir,
		Species:    species,
		PanelSize:  84,
		Iterations: 100,
		Thin:       100,
		Burn:       100,
	}
}

func TestSCATRun(t *testing.T) {
	f := newSCATFixture(t, fakeSCAT)

	out, err := f.runner().Run(context.Background(), f.request("panthera_onca"))
	require.NoError(t, err)

	assert.Equal(t, "LegadoSP", out.PosteriorName)
	assert.Equal(t, filepath.Join(f.workDir, "output"), out.Dir)

	samples, err := posterior.Parse(bytes.NewReader(out.Posterior), out.Format)
	require.NoError(t, err)
	assert.Equal(t, []posterior.Sample{
		{Lat: -10.5, Lon: -55.25},
		{Lat: -10.0, Lon: -55.0},
		{Lat: -9.5, Lon: -54.75},
	}, samples)

	names := make([]string, len(out.Files))
	for i, fd := range out.Files {
		names[i] = fd.Name
		assert.Positive(t, fd.Size)
		assert.WithinDuration(t, time.Now(), fd.Modified, time.Minute)
	}
	assert.Equal(t, []string{"LegadoSP", "args.txt"}, names)

	args, err := os.ReadFile(filepath.Join(out.Dir, "args.txt"))
	require.NoError(t, err)
	want := strings.Join([]string{
		"-A", "1", "1",
		"-g", filepath.Join(f.cfg.ReferenceDir, "panthera_onca", "grid.txt"),
		filepath.Join(f.workDir, "genotype_scat.txt"),
		filepath.Join(f.workDir, "location_scat.txt"),
		out.Dir,
		"84", "100", "100", "100",
	}, " ")
	assert.Equal(t, want, strings.TrimSpace(string(args)))

	geno, err := os.ReadFile(filepath.Join(f.workDir, "genotype_scat.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(geno), "jag01 1 1 -9\n"))
}

func TestSCATPosteriorFallback(t *testing.T) {
	// Older builds name the posterior file after the first sample.
	f := newSCATFixture(t, "printf '1.0 2.0\\ntrailer\\n' > \"$8/jag01\"\n")

	out, err := f.runner().Run(context.Background(), f.request("panthera_onca"))
	require.NoError(t, err)
	assert.Equal(t, "jag01", out.PosteriorName)
}

func TestSCATMissingOutput(t *testing.T) {
	f := newSCATFixture(t, "exit 0\n")

	_, err := f.runner().Run(context.Background(), f.request("panthera_onca"))
	require.ErrorIs(t, err, assignment.ErrMissingOutput)
}

func TestSCATToolFailure(t *testing.T) {
	f := newSCATFixture(t, "echo 'invalid panel size' >&2\nexit 1\n")

	_, err := f.runner().Run(context.Background(), f.request("panthera_onca"))
	require.ErrorIs(t, err, assignment.ErrToolFailure)
	assert.Contains(t, err.Error(), "invalid panel size")
}

func TestSCATUnknownSpecies(t *testing.T) {
	f := newSCATFixture(t, fakeSCAT)

	for _, species := range []string{"puma_concolor", "", "../panthera_onca", ".hidden"} {
		t.Run(species, func(t *testing.T) {
			_, err := f.runner().Run(context.Background(), f.request(species))
			require.ErrorIs(t, err, assignment.ErrUnknownSpecies)
		})
	}

	_, err := os.Stat(filepath.Join(f.workDir, "genotype_scat.txt"))
	assert.True(t, os.IsNotExist(err), "conversion ran for an unknown species")
}

func TestSCATInvalidInput(t *testing.T) {
	f := newSCATFixture(t, fakeSCAT)
	require.NoError(t, os.WriteFile(f.input, []byte("not a vcf\n"), 0o644))

	_, err := f.runner().Run(context.Background(), f.request("panthera_onca"))
	require.ErrorIs(t, err, assignment.ErrInvalidInput)
}

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &assignment.Config{}
		require.NoError(t, cfg.Finalize(nil))

		assert.Equal(t, "SCAT3", cfg.Binary)
		assert.Equal(t, "LegadoSP", cfg.PosteriorFile)
		assert.Equal(t, 30*time.Minute, cfg.TimeoutDuration())
		assert.Equal(t, 100, cfg.Iterations)
		assert.Equal(t, 3, cfg.SpawnRetries)
		assert.Equal(t, 200*time.Millisecond, cfg.SpawnBackoffDuration())
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_SCAT_BINARY", "/opt/scat/SCAT3")
		t.Setenv("TEST_SCAT_TIMEOUT", "90s")
		t.Setenv("TEST_SCAT_ITERATIONS", "500")

		cfg := &assignment.Config{}
		require.NoError(t, cfg.Finalize(&assignment.Env{
			Binary:     "TEST_SCAT_BINARY",
			Timeout:    "TEST_SCAT_TIMEOUT",
			Iterations: "TEST_SCAT_ITERATIONS",
		}))

		assert.Equal(t, "/opt/scat/SCAT3", cfg.Binary)
		assert.Equal(t, 90*time.Second, cfg.TimeoutDuration())
		assert.Equal(t, 500, cfg.Iterations)
	})

	t.Run("merge", func(t *testing.T) {
		cfg := &assignment.Config{Binary: "SCAT3", Iterations: 100}
		cfg.Merge(&assignment.Config{Iterations: 250})

		assert.Equal(t, "SCAT3", cfg.Binary)
		assert.Equal(t, 250, cfg.Iterations)
	})

	t.Run("invalid timeout", func(t *testing.T) {
		cfg := &assignment.Config{Timeout: "soon"}
		assert.Error(t, cfg.Finalize(nil))
	})
}
