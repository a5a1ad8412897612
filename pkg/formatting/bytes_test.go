package formatting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/geoassign/pkg/formatting"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n         int64
		precision int
		want      string
	}{
		{0, 2, "0 B"},
		{512, 0, "512 B"},
		{1536, 1, "1.5 KB"},
		{50 * 1024 * 1024, 0, "50 MB"},
		{3 * 1024 * 1024 * 1024, -1, "3 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatting.FormatBytes(tt.n, tt.precision))
		})
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"4096", 4096},
		{"50MB", 50 * 1024 * 1024},
		{"50 mb", 50 * 1024 * 1024},
		{"1.5GB", 1536 * 1024 * 1024},
		{"64KiB", 64 * 1024},
		{" 2 TB ", 2 << 40},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := formatting.ParseBytes(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBytesErrors(t *testing.T) {
	for _, in := range []string{"", "MB", "12 parsecs", "1.2.3KB", "99999999EB"} {
		t.Run(in, func(t *testing.T) {
			_, err := formatting.ParseBytes(in)
			assert.Error(t, err)
		})
	}
}
