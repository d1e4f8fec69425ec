package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_TopLevel(t *testing.T) {
	path := writeTestConfig(t, `
unknown_section = "value"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.Contains(t, err.Error(), "top level")
}

func TestLoad_UnknownKey_InSection(t *testing.T) {
	//nolint:misspell // intentional typo to test unknown key detection
	path := writeTestConfig(t, "[transfer]\nchunk_szie = \"1MiB\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[transfer]")
	assert.Contains(t, err.Error(), `did you mean "chunk_size"`)
}

func TestLoad_UnknownKey_NestedSection(t *testing.T) {
	path := writeTestConfig(t, "[destination.upload]\nbuckt = \"ingest\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[destination.upload]")
	assert.Contains(t, err.Error(), `"bucket"`)
}

func TestLoad_UnknownSection_ReportedOnce(t *testing.T) {
	path := writeTestConfig(t, "[sourse]\npage_size = 10\nclient_secrets = \"x\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(err.Error(), "unknown config key"))
	assert.Contains(t, err.Error(), `did you mean "source"`)
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[logging]\ncompletely_unrelated = true\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 1, levenshtein("bucket", "buckt"))
	assert.Equal(t, 2, levenshtein("chunk_szie", "chunk_size"))
}
