package termmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
)

// Filename builds the canonical term map filename for a language pair,
// e.g. "term_map.th-en.json". Codes are reduced to their two-letter base
// so "tha" and "th" name the same file.
func Filename(sourceLang, targetLang string) string {
	return fmt.Sprintf("term_map.%s-%s.json", baseCode(sourceLang), baseCode(targetLang))
}

// FilePath joins dir with the canonical filename for the pair.
func FilePath(dir, sourceLang, targetLang string) string {
	return filepath.Join(dir, Filename(sourceLang, targetLang))
}

// FindInAncestors searches startDir and each parent directory for a term
// map file of the given pair. A hit closest to the media wins, so a
// season-level map overrides a library-level one. Returns "" when no
// ancestor has one.
func FindInAncestors(startDir, sourceLang, targetLang string) string {
	filename := Filename(sourceLang, targetLang)

	for dir := startDir; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if filepath.Dir(dir) == dir {
			return ""
		}
	}
}

// Load reads a term map from its JSON file.
func Load(path string) (TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tm TermMap
	if err := json.Unmarshal(data, &tm); err != nil {
		return nil, err
	}
	return tm, nil
}

// Save writes the term map as indented JSON so it stays hand-editable.
func Save(path string, tm TermMap) error {
	data, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func baseCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}
