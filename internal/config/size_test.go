package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize_ChunkSizes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"", 0},
		{defaultChunkSize, 100 * mebibyte},
		{"256KiB", minChunkSize},
		{"262144", minChunkSize},
		{"8MiB", 8_388_608},
		{"8 MiB", 8_388_608},
		{"8mib", 8_388_608},
		{"0.5MiB", 524_288},
		{"1.5GiB", 1_610_612_736},
		{"10MB", 10_000_000},
		{"1TiB", tebibyte},
		{"300B", 300},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseSize_FractionRoundsDown(t *testing.T) {
	got, err := ParseSize("0.0001KiB")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestParseSize_Rejects(t *testing.T) {
	tests := []struct {
		input string
		msg   string
	}{
		{"big", "invalid size"},
		{"MiB", "invalid size"},
		{"-1", "must be non-negative"},
		{"-8MiB", "must be non-negative"},
		{"9999999TiB", "too large"},
		{"1e300GB", "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseSize(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestValidateTransfer_ChunkSizeBounds(t *testing.T) {
	assert.Empty(t, validateTransfer(&TransferConfig{ChunkSize: "256KiB"}))

	errs := validateTransfer(&TransferConfig{ChunkSize: "255KiB"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "at least 256KiB")

	errs = validateTransfer(&TransferConfig{ChunkSize: "9999999TiB"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "transfer.chunk_size")
}
