package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JaimeStill/geoassign/internal/density"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/region"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := rootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func writePosterior(t *testing.T, n int, lat, lon float64) string {
	t.Helper()

	rng := rand.New(rand.NewPCG(1, 2))
	var b strings.Builder
	for range n {
		fmt.Fprintf(&b, "%.6f %.6f\n", lat+rng.NormFloat64()*0.5, lon+rng.NormFloat64()*0.5)
	}
	b.WriteString("Acceptance rate 0.40\n")

	path := filepath.Join(t.TempDir(), "LegadoSP")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRegionCommand(t *testing.T) {
	path := writePosterior(t, 500, -10, -55)

	out, err := run(t, "region", path, "--confidence", "0.8")
	require.NoError(t, err)

	var cr region.CredibleRegion
	require.NoError(t, json.Unmarshal([]byte(out), &cr))
	assert.Equal(t, 0.8, cr.Confidence)
	assert.Equal(t, 500, cr.NSamples)
	assert.InDelta(t, -10, cr.Center.Lat, 0.2)
	assert.InDelta(t, -55, cr.Center.Lon, 0.2)
	assert.True(t, cr.Polygon.Closed())
	assert.True(t, cr.Polygon.Contains(cr.Center.Lat, cr.Center.Lon))

	again, err := run(t, "region", path, "--confidence", "0.8")
	require.NoError(t, err)
	assert.Equal(t, out, again, "output is not deterministic")
}

func TestRegionCommandErrors(t *testing.T) {
	path := writePosterior(t, 500, -10, -55)

	tests := []struct {
		name   string
		args   []string
		target error
	}{
		{"confidence", []string{"region", path, "--confidence", "1.5"}, region.ErrInvalidConfidence},
		{"policy", []string{"region", path, "--policy", "biggest"}, region.ErrUnknownPolicy},
		{"resolution", []string{"region", path, "--resolution", "100000"}, density.ErrInvalidResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.ErrorIs(t, err, tt.target)
		})
	}

	_, err := run(t, "region")
	assert.Error(t, err)

	_, err = run(t, "region", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFingerprintCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.vcf")
	require.NoError(t, os.WriteFile(path, []byte("##fileformat=VCFv4.2\n"), 0o644))

	out, err := run(t, "fingerprint", path, "--species", "panthera_onca", "--panel-size", "84", "--burn", "50")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	hash, err := fingerprint.HashContent(f)
	require.NoError(t, err)

	want := fingerprint.New(fingerprint.Params{
		ContentHash: hash,
		Species:     "panthera_onca",
		PanelSize:   84,
		Iterations:  100,
		Thin:        100,
		Burn:        50,
	})
	assert.Equal(t, fmt.Sprintf("content_hash %s\nfingerprint  %s\n", hash, want), out)

	_, err = run(t, "fingerprint", path, "--panel-size", "84")
	assert.ErrorContains(t, err, "species")

	_, err = run(t, "fingerprint", path, "--species", "panthera_onca", "--panel-size=-3")
	require.ErrorIs(t, err, fingerprint.ErrInvalidParam)
}
