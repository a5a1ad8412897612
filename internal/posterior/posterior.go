// Package posterior parses the posterior location samples written by the
// genetic-assignment tool into typed (latitude, longitude) draws.
package posterior

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Sample is a single posterior draw of a plausible geographic origin.
type Sample struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports ErrOutOfRangeCoordinate when the sample lies outside
// geographic bounds or is not a finite number.
func (s Sample) Validate() error {
	if math.IsNaN(s.Lat) || math.IsInf(s.Lat, 0) || s.Lat < -90 || s.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrOutOfRangeCoordinate, s.Lat)
	}
	if math.IsNaN(s.Lon) || math.IsInf(s.Lon, 0) || s.Lon < -180 || s.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrOutOfRangeCoordinate, s.Lon)
	}
	return nil
}

// Options controls how raw tool output is interpreted.
type Options struct {
	// SkipTrailer drops the final non-blank line of text output. SCAT
	// appends its acceptance rate there.
	SkipTrailer bool
}

// SCATOptions returns the options matching SCAT posterior files.
func SCATOptions() Options {
	return Options{SkipTrailer: true}
}

// Parse reads posterior samples from r. Text output is whitespace separated
// with latitude and longitude in the first two columns; output starting with
// '[' or '{' is decoded as JSON records.
func Parse(r io.Reader, opts Options) ([]Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptySampleSet
	}

	if trimmed[0] == '[' || trimmed[0] == '{' {
		return parseJSON(trimmed)
	}
	return parseText(data, opts)
}

// ParseFile reads posterior samples from the file at path.
func ParseFile(path string, opts Options) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open posterior file: %w", err)
	}
	defer f.Close()

	return Parse(f, opts)
}

type line struct {
	number int
	text   string
}

func parseText(data []byte, opts Options) ([]Sample, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []line
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		lines = append(lines, line{number: n, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}

	if opts.SkipTrailer && len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, ErrEmptySampleSet
	}

	samples := make([]Sample, 0, len(lines))
	for _, l := range lines {
		s, ok := parseRecord(l.text)
		if !ok {
			continue
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", l.number, err)
		}
		samples = append(samples, s)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no line holds a latitude/longitude record", ErrMalformedOutput)
	}
	return samples, nil
}

func parseRecord(text string) (Sample, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return Sample{}, false
	}

	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Sample{}, false
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Sample{}, false
	}
	return Sample{Lat: lat, Lon: lon}, true
}

type record struct {
	Lat       *float64 `json:"lat"`
	Latitude  *float64 `json:"latitude"`
	Lon       *float64 `json:"lon"`
	Lng       *float64 `json:"lng"`
	Longitude *float64 `json:"longitude"`
}

func (r record) sample() (Sample, bool) {
	lat := firstSet(r.Lat, r.Latitude)
	lon := firstSet(r.Lon, r.Lng, r.Longitude)
	if lat == nil || lon == nil {
		return Sample{}, false
	}
	return Sample{Lat: *lat, Lon: *lon}, true
}

func firstSet(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func parseJSON(data []byte) ([]Sample, error) {
	var records []record

	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var rec record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: %w", ErrMalformedOutput, len(records)+1, err)
			}
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, ErrEmptySampleSet
	}

	samples := make([]Sample, 0, len(records))
	for i, rec := range records {
		s, ok := rec.sample()
		if !ok {
			return nil, fmt.Errorf("%w: record %d missing latitude or longitude", ErrMalformedOutput, i+1)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}
