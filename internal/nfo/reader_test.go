package nfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNFO = `<?xml version="1.0" encoding="UTF-8"?>
<tvshow>
  <title>Bangkok Nights</title>
  <originaltitle>ราตรีกรุงเทพ</originaltitle>
  <plot>A street vendor navigates the city after dark.</plot>
  <genre>Drama</genre>
  <genre>Romance</genre>
  <year>2024</year>
</tvshow>`

func TestReadMediaMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvshow.nfo")
	require.NoError(t, os.WriteFile(path, []byte(sampleNFO), 0o644))

	meta, err := ReadMediaMeta(path)
	require.NoError(t, err)
	assert.Equal(t, "Bangkok Nights", meta.Title)
	assert.Equal(t, "ราตรีกรุงเทพ", meta.OriginalTitle)
	assert.Equal(t, []string{"Drama", "Romance"}, meta.Genre)
	assert.Equal(t, 2024, meta.Year)
	assert.Contains(t, meta.Plot, "street vendor")
}

func TestReadMediaMetaRejectsWrongExtension(t *testing.T) {
	_, err := ReadMediaMeta("/tmp/whatever.xml")
	require.Error(t, err)
}

func TestReadMediaMetaSafeFallsBackToSiblingNFO(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.nfo"), []byte(sampleNFO), 0o644))

	meta := ReadMediaMetaSafe(filepath.Join(dir, "missing.nfo"))
	assert.Equal(t, "Bangkok Nights", meta.Title)
}

func TestReadMediaMetaSafeEmptyOnGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.nfo")
	require.NoError(t, os.WriteFile(path, []byte("not xml at all <<<"), 0o644))

	meta := ReadMediaMetaSafe(path)
	assert.Empty(t, meta.Title)
	assert.Empty(t, meta.Genre)
}

func TestReadMediaMetaSafeEmptyPath(t *testing.T) {
	meta := ReadMediaMetaSafe("")
	assert.Empty(t, meta.Title)
}
