package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIgnoredTerms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignored.txt")
	require.NoError(t, os.WriteFile(path, []byte("# release junk\nCAM\n\n  HDTS \nsample\n"), 0o644))

	terms, err := LoadIgnoredTerms(path)
	require.NoError(t, err)
	assert.Equal(t, 3, terms.Len())

	ok, term := terms.Match("Movie.2024.hdts.x264-GRP")
	assert.True(t, ok)
	assert.Equal(t, "HDTS", term)

	ok, _ = terms.Match("Movie.2024.1080p.BluRay.x264-GRP")
	assert.False(t, ok)
}

func TestLoadIgnoredTermsMissingFile(t *testing.T) {
	terms, err := LoadIgnoredTerms(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, terms.Len())
	ok, _ := terms.Match("anything")
	assert.False(t, ok)
}
