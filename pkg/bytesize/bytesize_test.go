package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"1024", 1024},
		{"1KB", KB},
		{"1kb", KB},
		{"5MB", 5 * MB},
		{"1.5 GB", Size(1.5 * float64(GB))},
		{"2GiB", 2 * GB},
		{"3T", 3 * TB},
		{"0", 0},
		{"10 B", 10},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12XB", "-5MB"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   Size
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{KB, "1KB"},
		{5 * MB, "5MB"},
		{Size(1.5 * float64(GB)), "1.5GB"},
		{2 * TB, "2TB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in))
		assert.Equal(t, tt.want, tt.in.String())
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus") })
}
