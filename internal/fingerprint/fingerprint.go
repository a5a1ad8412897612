// Package fingerprint identifies inference runs by their inputs and owns the
// fingerprint to job mapping. The Cache guarantees at most one computation
// per fingerprint and publishes immutable job snapshots.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// version prefixes the canonical encoding so a future change to the
// parameter set cannot collide with older fingerprints.
const version = "geoassign/fingerprint/v1"

// Fingerprint is the hex SHA-256 digest identifying one inference run.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Valid reports whether f has the shape of a digest produced by New.
func (f Fingerprint) Valid() bool {
	if len(f) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(string(f))
	return err == nil
}

// Params is every input that changes the assignment tool's output. PanelSize
// is the number of loci in the genotype panel.
type Params struct {
	ContentHash string `json:"content_hash"`
	Species     string `json:"species"`
	PanelSize   int    `json:"panel_size"`
	Iterations  int    `json:"iterations"`
	Thin        int    `json:"thin"`
	Burn        int    `json:"burn"`
}

// Validate reports ErrInvalidParam for missing or non-positive values.
func (p Params) Validate() error {
	switch {
	case p.ContentHash == "":
		return fmt.Errorf("%w: content_hash is required", ErrInvalidParam)
	case p.Species == "":
		return fmt.Errorf("%w: species is required", ErrInvalidParam)
	case p.PanelSize <= 0:
		return fmt.Errorf("%w: panel_size must be positive", ErrInvalidParam)
	case p.Iterations <= 0:
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidParam)
	case p.Thin <= 0:
		return fmt.Errorf("%w: thin must be positive", ErrInvalidParam)
	case p.Burn < 0:
		return fmt.Errorf("%w: burn must not be negative", ErrInvalidParam)
	}
	return nil
}

func (p Params) canonical() string {
	var b strings.Builder
	field := func(k, v string) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v))
		b.WriteByte('\n')
	}

	b.WriteString(version)
	b.WriteByte('\n')
	field("content", strings.ToLower(p.ContentHash))
	field("species", strings.ToLower(strings.TrimSpace(p.Species)))
	field("panel", strconv.Itoa(p.PanelSize))
	field("iterations", strconv.Itoa(p.Iterations))
	field("thin", strconv.Itoa(p.Thin))
	field("burn", strconv.Itoa(p.Burn))
	return b.String()
}

// New derives the fingerprint of p.
func New(p Params) Fingerprint {
	sum := sha256.Sum256([]byte(p.canonical()))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// HashContent returns the hex SHA-256 digest of everything read from r.
func HashContent(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
