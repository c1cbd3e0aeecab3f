package nfo

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pranot/segtrans/internal/translate"
)

// xmlShowInfo covers both tvshow.nfo and episode-level NFO files; the
// root element name differs but the fields we care about do not.
type xmlShowInfo struct {
	Title         string `xml:"title"`
	OriginalTitle string `xml:"originaltitle"`
	Plot          string `xml:"plot"`
	Genres        []struct {
		Genre string `xml:",chardata"`
	} `xml:"genre"`
	Year int `xml:"year"`
}

// ReadMediaMeta parses a Jellyfin/Kodi style NFO file into the
// metadata fields used to build translation context.
func ReadMediaMeta(path string) (translate.MediaMeta, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".nfo") {
		return translate.MediaMeta{}, fmt.Errorf("file extension must be .nfo: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return translate.MediaMeta{}, fmt.Errorf("read nfo: %w", err)
	}

	var show xmlShowInfo
	if err := xml.Unmarshal(data, &show); err != nil {
		return translate.MediaMeta{}, fmt.Errorf("parse nfo %s: %w", path, err)
	}

	meta := translate.MediaMeta{
		Title:         strings.TrimSpace(show.Title),
		OriginalTitle: strings.TrimSpace(show.OriginalTitle),
		Plot:          strings.TrimSpace(show.Plot),
		Year:          show.Year,
	}
	for _, g := range show.Genres {
		if genre := strings.TrimSpace(g.Genre); genre != "" {
			meta.Genre = append(meta.Genre, genre)
		}
	}
	return meta, nil
}

// ReadMediaMetaSafe tolerates a missing or unparseable NFO: it falls
// back to any .nfo file in the same directory and returns empty
// metadata rather than an error when nothing usable exists. Metadata
// only enriches prompts, so its absence never blocks a job.
func ReadMediaMetaSafe(path string) translate.MediaMeta {
	if path == "" {
		return translate.MediaMeta{}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		matches, globErr := filepath.Glob(filepath.Join(filepath.Dir(path), "*.nfo"))
		if globErr != nil || len(matches) == 0 {
			return translate.MediaMeta{}
		}
		path = matches[0]
	}

	meta, err := ReadMediaMeta(path)
	if err != nil {
		return translate.MediaMeta{}
	}
	return meta
}
