package assignment

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// missingAllele is SCAT's code for an unobserved allele.
const missingAllele = "-9"

// Genotypes is a VCF call set decoded into SCAT allele codes.
type Genotypes struct {
	Samples []string
	// Alleles[s][v] holds the two haplotype codes for sample s at variant v.
	Alleles  [][][2]string
	Variants int
}

// ReadVCF decodes the genotype calls of a VCF file. Allele index k is coded
// k+1, so the reference allele is 1 and the first alternate 2; missing calls
// become -9.
func ReadVCF(r io.Reader) (*Genotypes, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	g := &Genotypes{}
	header := false

	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "##") {
			continue
		}

		fields := strings.Split(line, "\t")

		if strings.HasPrefix(line, "#CHROM") {
			if len(fields) < 10 {
				return nil, fmt.Errorf("%w: line %d: header names no samples", ErrInvalidInput, n)
			}
			g.Samples = fields[9:]
			g.Alleles = make([][][2]string, len(g.Samples))
			header = true
			continue
		}

		if !header {
			return nil, fmt.Errorf("%w: line %d: variant before #CHROM header", ErrInvalidInput, n)
		}
		if len(fields) != 9+len(g.Samples) {
			return nil, fmt.Errorf(
				"%w: line %d: %d columns, want %d",
				ErrInvalidInput, n, len(fields), 9+len(g.Samples),
			)
		}

		for s, call := range fields[9:] {
			g.Alleles[s] = append(g.Alleles[s], decodeCall(call))
		}
		g.Variants++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !header {
		return nil, fmt.Errorf("%w: missing #CHROM header", ErrInvalidInput)
	}
	if g.Variants == 0 {
		return nil, fmt.Errorf("%w: no variant records", ErrInvalidInput)
	}
	return g, nil
}

// decodeCall converts the GT subfield of a sample column.
func decodeCall(call string) [2]string {
	gt, _, _ := strings.Cut(call, ":")

	alleles := strings.FieldsFunc(gt, func(r rune) bool {
		return r == '/' || r == '|'
	})

	switch len(alleles) {
	case 1:
		a := code(alleles[0])
		return [2]string{a, a}
	case 2:
		return [2]string{code(alleles[0]), code(alleles[1])}
	default:
		return [2]string{missingAllele, missingAllele}
	}
}

func code(allele string) string {
	k, err := strconv.Atoi(allele)
	if err != nil || k < 0 {
		return missingAllele
	}
	return strconv.Itoa(k + 1)
}

// WriteGenotypes writes two lines per sample, one per haplotype, each
// carrying the sample name, its 1-based index and one code per variant.
func (g *Genotypes) WriteGenotypes(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for s, name := range g.Samples {
		for h := range 2 {
			bw.WriteString(name)
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(s + 1))
			for _, pair := range g.Alleles[s] {
				bw.WriteByte(' ')
				bw.WriteString(pair[h])
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// WriteLocations writes one line per sample naming its index. Samples under
// assignment have no known origin, so coordinates are written as zero.
func (g *Genotypes) WriteLocations(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for s, name := range g.Samples {
		fmt.Fprintf(bw, "%s %d %.6f %.6f\n", name, s+1, 0.0, 0.0)
	}
	return bw.Flush()
}
