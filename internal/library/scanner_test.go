package library

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func writeFixture(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func mkdirFixture(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func singleSource(root, id, name string) []SourceConfig {
	return []SourceConfig{{ID: id, Name: name, Path: root}}
}

func scanOne(t *testing.T, s *Scanner) *Library {
	t.Helper()
	lib, err := s.Scan(context.Background())
	require.NoError(t, err)
	return lib
}

func TestScan_SidecarSubtitleFlags(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "lakorn")
	showDir := filepath.Join(root, "Bad Genius", "Season 1")
	mkdirFixture(t, showDir)
	writeFixture(t, filepath.Join(showDir, "episode01.mkv"))
	writeFixture(t, filepath.Join(showDir, "episode01.th.srt"))
	writeFixture(t, filepath.Join(showDir, "episode01.en.srt"))

	scanner := NewScanner(
		singleSource(root, "lakorn", "Thai Dramas"),
		language.English,
		WithEmbeddedDetector(func(string) (bool, bool, []string) {
			return false, false, nil
		}),
	)
	lib := scanOne(t, scanner)

	require.Len(t, lib.Sources, 1)
	require.Len(t, lib.Items, 1)
	require.Len(t, lib.Episodes, 1)

	// The item resolves to the series dir, not the season dir.
	item := lib.Items[0]
	assert.Equal(t, "Bad Genius", item.Name)
	assert.Equal(t, filepath.Join(root, "Bad Genius"), item.Path)

	ep := lib.Episodes[0]
	assert.Equal(t, "Season 1", ep.Season)
	assert.True(t, ep.Subtitles.HasSource)
	assert.True(t, ep.Subtitles.HasTarget)
	assert.False(t, ep.Subtitles.HasEmbedded)
	assert.False(t, ep.Subtitles.HasEmbeddedTarget)
	assert.ElementsMatch(t, []string{"th", "en"}, ep.Subtitles.Languages)

	// An English sidecar already exists, nothing left to do.
	assert.False(t, ep.Processable)
}

func TestScan_SeriesRootMarkedByNFO(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "shows")
	seriesDir := filepath.Join(root, "Hormones")
	seasonDir := filepath.Join(seriesDir, "Season 2")
	mkdirFixture(t, seasonDir)

	// tvshow.nfo at series level marks the series root.
	writeFixture(t, filepath.Join(seriesDir, "tvshow.nfo"))
	writeFixture(t, filepath.Join(seasonDir, "Hormones - S02E07 - Dao WEBRip-1080p.mkv"))
	writeFixture(t, filepath.Join(seasonDir, "Hormones - S02E07 - Dao WEBRip-1080p.srt"))

	scanner := NewScanner(singleSource(root, "shows", "Shows"), language.English)
	lib := scanOne(t, scanner)

	require.Len(t, lib.Items, 1)
	assert.Equal(t, "Hormones", lib.Items[0].Name)
	assert.Equal(t, seriesDir, lib.Items[0].Path)

	require.Len(t, lib.Episodes, 1)
	ep := lib.Episodes[0]
	assert.Equal(t, "Season 2", ep.Season)
	assert.Equal(t, "E07 Dao", ep.Name)
	assert.Equal(t, filepath.Join(seriesDir, "tvshow.nfo"), ep.NFOPath)
}

func TestScan_MovieLayoutHasNoSeason(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "movies")
	movieDir := filepath.Join(root, "Pee Mak")
	mkdirFixture(t, movieDir)
	writeFixture(t, filepath.Join(movieDir, "pee-mak.mkv"))

	scanner := NewScanner(singleSource(root, "movies", "Movies"), language.English)
	lib := scanOne(t, scanner)

	require.Len(t, lib.Items, 1)
	assert.Equal(t, "Pee Mak", lib.Items[0].Name)
	require.Len(t, lib.Episodes, 1)
	assert.Empty(t, lib.Episodes[0].Season)
}

func TestScan_SeasonsGroupUnderOneItem(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "tv")
	seriesDir := filepath.Join(root, "Girl From Nowhere")
	for _, season := range []string{"Season 1", "Season 2"} {
		mkdirFixture(t, filepath.Join(seriesDir, season))
		writeFixture(t, filepath.Join(seriesDir, season, "ep01.mkv"))
	}
	writeFixture(t, filepath.Join(seriesDir, "tvshow.nfo"))

	scanner := NewScanner(singleSource(root, "tv", "TV"), language.English)
	lib := scanOne(t, scanner)

	require.Len(t, lib.Items, 1)
	assert.Equal(t, "Girl From Nowhere", lib.Items[0].Name)
	assert.Equal(t, 2, lib.Items[0].EpisodeCount)

	var seasons []string
	for _, ep := range lib.Episodes {
		seasons = append(seasons, ep.Season)
	}
	assert.ElementsMatch(t, []string{"Season 1", "Season 2"}, seasons)
}

func TestScan_SidecarLanguageNormalization(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "shows")
	showDir := filepath.Join(root, "Krasue")
	mkdirFixture(t, showDir)

	writeFixture(t, filepath.Join(showDir, "ep01.mkv"))
	// Our own output suffix is a tool marker, not a language token.
	writeFixture(t, filepath.Join(showDir, "ep01_segtrans.srt"))
	// Three-letter ISO codes normalize to their two-letter base.
	writeFixture(t, filepath.Join(showDir, "ep01.tha.srt"))
	writeFixture(t, filepath.Join(showDir, "ep01.fre.srt"))

	scanner := NewScanner(singleSource(root, "shows", "Shows"), language.English)
	lib := scanOne(t, scanner)
	require.Len(t, lib.Episodes, 1)

	langs := lib.Episodes[0].Subtitles.Languages
	assert.ElementsMatch(t, []string{"th", "fr"}, langs)
}

func TestCleanEpisodeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hormones - S02E07 - Dao WEBRip-1080p", "E07 Dao"},
		{"Girl From Nowhere - S01E05 - The Rank BluRay-1080p", "E05 The Rank"},
		{"Bad.Genius.S01E03.The.Heist.720p.WEB-DL", "E03 The.Heist"},
		{"Kun Pan - S01E02 - The Charm x264-TEAM", "E02 The Charm"},
		{"Love Destiny - S01E09 - Karma HDTV-720p", "E09 Karma"},
		{"S03E11", "E11"},
		{"Pee Mak", "Pee Mak"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanEpisodeName(tt.input))
		})
	}
}

func TestResolveSeriesPath(t *testing.T) {
	tmp := t.TempDir()
	sourcePath := filepath.Join(tmp, "source")
	seriesDir := filepath.Join(sourcePath, "Thong Ek")
	seasonDir := filepath.Join(seriesDir, "Season 1")
	mkdirFixture(t, seasonDir)
	mediaPath := filepath.Join(seasonDir, "ep01.mkv")

	t.Run("tvshow.nfo marks the root", func(t *testing.T) {
		nfoPath := filepath.Join(seriesDir, "tvshow.nfo")
		writeFixture(t, nfoPath)
		defer os.Remove(nfoPath)

		assert.Equal(t, seriesDir, resolveSeriesPath(sourcePath, mediaPath))
	})

	t.Run("no nfo falls back to first dir under the source", func(t *testing.T) {
		assert.Equal(t, seriesDir, resolveSeriesPath(sourcePath, mediaPath))
	})

	t.Run("media directly under the source", func(t *testing.T) {
		got := resolveSeriesPath(sourcePath, filepath.Join(sourcePath, "movie.mkv"))
		assert.Equal(t, sourcePath, got)
	})
}

func TestResolveSeasonName(t *testing.T) {
	tests := []struct {
		name       string
		seriesPath string
		mediaPath  string
		want       string
	}{
		{"season dir", "/tv/Hormones", "/tv/Hormones/Season 2/ep07.mkv", "Season 2"},
		{"flat series", "/tv/Hormones", "/tv/Hormones/ep07.mkv", ""},
		{"extras below a season", "/tv/Hormones", "/tv/Hormones/Season 3/extras/ep01.mkv", "Season 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveSeasonName(tt.seriesPath, tt.mediaPath))
		})
	}
}

func TestNormalizeLangCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"th", "th"},
		{"tha", "th"},
		{"eng", "en"},
		{"fre", "fr"},
		{"vie", "vi"},
		{"jpn", "ja"},
		{"segtrans", ""},
		{"forced", ""},
		{"default", ""},
		{"sdh", "sdh"}, // a real ISO 639-3 code (Shehri), so it survives
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeLangCode(tt.input))
		})
	}
}

func TestScan_CachesUntilInvalidate(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "shows")
	showDir := filepath.Join(root, "Krasue")
	mkdirFixture(t, showDir)
	writeFixture(t, filepath.Join(showDir, "ep01.mkv"))
	writeFixture(t, filepath.Join(showDir, "ep01.tha.srt"))

	var detectorCalls atomic.Int32
	scanner := NewScanner(
		singleSource(root, "shows", "Shows"),
		language.English,
		WithEmbeddedDetector(func(string) (bool, bool, []string) {
			detectorCalls.Add(1)
			return false, false, nil
		}),
		WithCacheTTL(10*time.Second),
	)

	scanOne(t, scanner)
	scanOne(t, scanner)
	assert.Equal(t, int32(1), detectorCalls.Load(), "second scan should hit the cache")

	scanner.Invalidate()
	scanOne(t, scanner)
	assert.Equal(t, int32(2), detectorCalls.Load())
}

func TestScan_SubtitleMatchNeedsBoundaryAfterMediaBase(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "shows")
	showDir := filepath.Join(root, "Series")
	mkdirFixture(t, showDir)

	// ep10.en.srt must not be attributed to ep1.mkv.
	writeFixture(t, filepath.Join(showDir, "ep1.mkv"))
	writeFixture(t, filepath.Join(showDir, "ep10.en.srt"))

	scanner := NewScanner(singleSource(root, "shows", "Shows"), language.English)
	lib := scanOne(t, scanner)
	require.Len(t, lib.Episodes, 1)

	ep := lib.Episodes[0]
	assert.Equal(t, filepath.Join(showDir, "ep1.mkv"), ep.MediaPath)
	assert.False(t, ep.Subtitles.HasSource)
	assert.False(t, ep.Subtitles.HasTarget)
	assert.True(t, ep.Processable, "missing target subtitle keeps the episode processable")
}

func TestScan_TargetLanguageSwitchTakesEffect(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "shows")
	showDir := filepath.Join(root, "Krasue")
	mkdirFixture(t, showDir)
	writeFixture(t, filepath.Join(showDir, "ep01.mkv"))
	writeFixture(t, filepath.Join(showDir, "ep01.eng.srt"))

	scanner := NewScanner(
		singleSource(root, "shows", "Shows"),
		language.French,
		WithCacheTTL(10*time.Second),
	)

	lib := scanOne(t, scanner)
	require.Len(t, lib.Episodes, 1)
	assert.True(t, lib.Episodes[0].Processable, "no French subtitle yet")

	// Switching the target also bypasses the cached scan.
	require.NoError(t, scanner.UpdateTargetLanguage("en"))

	lib = scanOne(t, scanner)
	require.Len(t, lib.Episodes, 1)
	assert.True(t, lib.Episodes[0].Subtitles.HasTarget)
	assert.False(t, lib.Episodes[0].Processable)
}

func TestScan_EmbeddedTargetStreamSkipsProcessing(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "shows")
	showDir := filepath.Join(root, "Krasue")
	mkdirFixture(t, showDir)
	writeFixture(t, filepath.Join(showDir, "ep01.mkv"))

	scanner := NewScanner(
		singleSource(root, "shows", "Shows"),
		language.English,
		WithEmbeddedDetector(func(string) (bool, bool, []string) {
			// The detector reports streams but no target flag; the
			// language list alone must mark the target as present.
			return true, false, []string{"tha", "eng"}
		}),
	)
	lib := scanOne(t, scanner)
	require.Len(t, lib.Episodes, 1)

	ep := lib.Episodes[0]
	assert.True(t, ep.Subtitles.HasEmbedded)
	assert.True(t, ep.Subtitles.HasEmbeddedTarget)
	assert.False(t, ep.Processable)
	assert.ElementsMatch(t, []string{"th", "en"}, ep.Subtitles.Languages)
}
