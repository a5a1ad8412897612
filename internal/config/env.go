package config

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"
)

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// validateDurations checks every named value in key order so the first
// reported error is stable.
func validateDurations(values map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(values)) {
		d, err := time.ParseDuration(values[name])
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: must not be negative", name)
		}
	}
	return nil
}
