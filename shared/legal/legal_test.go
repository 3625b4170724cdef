package legal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	lib, err := Load()
	require.NoError(t, err)

	index := lib.Index()
	require.Len(t, index, 2)
	assert.Equal(t, "privacy", index[0].Slug)
	assert.Equal(t, "terms", index[1].Slug)

	terms, err := lib.Get("terms")
	require.NoError(t, err)
	assert.Equal(t, "Terms of Service", terms.Title)
	assert.Equal(t, "2.1", terms.Version)
	assert.Equal(t, 2024, terms.Effective.Year())
	assert.True(t, len(terms.Body) > 0)
	assert.NotContains(t, terms.Body, "version:")

	_, err = lib.Get("cookies")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestParse_Rejects(t *testing.T) {
	_, err := parse("x", []byte("# no front matter"))
	assert.ErrorIs(t, err, errNoFrontMatter)

	_, err = parse("x", []byte("---\ntitle: X\n"))
	assert.ErrorIs(t, err, errNoFrontMatter)

	_, err = parse("x", []byte("---\ntitle: X\nversion: \"1\"\neffective: \"soon\"\n---\nbody"))
	assert.Error(t, err)

	_, err = parse("x", []byte("---\ntitle: X\nauthor: someone\n---\nbody"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestParse_Body(t *testing.T) {
	doc, err := parse("x", []byte("---\r\ntitle: X\r\nversion: \"3\"\r\neffective: \"2025-01-31\"\r\n---\r\n\r\n# Heading\r\ntext\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "# Heading\ntext", doc.Body)
	assert.Equal(t, "3", doc.Version)
}
