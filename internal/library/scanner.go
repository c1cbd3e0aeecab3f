package library

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
)

// EmbeddedDetector reports whether a media file carries embedded subtitle
// streams, whether any of them is in the target language, and the stream
// language tags it found.
type EmbeddedDetector func(mediaPath string) (hasEmbeddedSubtitle bool, hasEmbeddedTargetSubtitle bool, languages []string)

type scannerOptions struct {
	embeddedDetector EmbeddedDetector
	cacheTTL         time.Duration
}

type Option func(*scannerOptions)

func WithEmbeddedDetector(detector EmbeddedDetector) Option {
	return func(o *scannerOptions) {
		o.embeddedDetector = detector
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	library *Library
}

// Scanner walks configured media sources and classifies each media file by
// subtitle availability. Scan results are cached briefly so concurrent API
// reads do not hammer the filesystem.
type Scanner struct {
	sources          []SourceConfig
	targetLanguage   language.Tag
	embeddedDetector EmbeddedDetector

	mu            sync.RWMutex
	cacheTTL      time.Duration
	cache         *scanCache
	configVersion uint64
}

func NewScanner(
	sources []SourceConfig,
	targetLanguage language.Tag,
	opts ...Option,
) *Scanner {
	options := scannerOptions{
		embeddedDetector: func(string) (bool, bool, []string) { return false, false, nil },
		cacheTTL:         5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Scanner{
		sources:          sources,
		targetLanguage:   targetLanguage,
		embeddedDetector: options.embeddedDetector,
		cacheTTL:         options.cacheTTL,
	}
}

func (s *Scanner) TargetLanguage() string {
	s.mu.RLock()
	target := s.targetLanguage
	s.mu.RUnlock()

	base, _ := target.Base()
	return base.String()
}

// UpdateTargetLanguage switches the target language and drops the cached
// scan, since Processable flags depend on it.
func (s *Scanner) UpdateTargetLanguage(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.targetLanguage != tag {
		s.targetLanguage = tag
		s.cache = nil
		s.configVersion++
	}
	s.mu.Unlock()
	return nil
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

// Scan walks every configured source and returns the assembled library.
// A cached result is returned as long as the TTL has not elapsed and the
// configuration has not changed since it was built.
func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	version := s.configVersion
	cacheTTL := s.cacheTTL
	if s.cache != nil && s.cache.version == version && (cacheTTL <= 0 || time.Since(s.cache.scanned) < cacheTTL) {
		cached := s.cache.library.clone()
		s.mu.RUnlock()
		return cached, nil
	}
	sources := append([]SourceConfig(nil), s.sources...)
	target := s.targetLanguage
	detect := s.embeddedDetector
	s.mu.RUnlock()

	lib := &Library{
		Sources:  make([]Source, 0, len(sources)),
		Items:    make([]Item, 0),
		Episodes: make([]Episode, 0),
	}
	for _, sourceCfg := range sources {
		if err := scanSource(ctx, lib, sourceCfg, target, detect); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if s.configVersion == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			library: lib.clone(),
		}
	}
	s.mu.Unlock()

	return lib, nil
}

// scanSource appends one source's items and episodes to lib. Sources whose
// path does not exist are skipped rather than failing the whole scan, so a
// temporarily unmounted share does not break the library view.
func scanSource(ctx context.Context, lib *Library, cfg SourceConfig, target language.Tag, detect EmbeddedDetector) error {
	if cfg.Path == "" {
		return nil
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	mediaFiles, err := listMediaFiles(cfg.Path)
	if err != nil {
		return err
	}

	itemIdxByPath := make(map[string]int)
	for _, mediaPath := range mediaFiles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		itemPath := resolveSeriesPath(cfg.Path, mediaPath)
		itemIdx, ok := itemIdxByPath[itemPath]
		if !ok {
			lib.Items = append(lib.Items, Item{
				ID:       cfg.ID + "|" + itemPath,
				SourceID: cfg.ID,
				Name:     filepath.Base(itemPath),
				Path:     itemPath,
			})
			itemIdx = len(lib.Items) - 1
			itemIdxByPath[itemPath] = itemIdx
		}

		episode, err := buildEpisode(cfg.ID, lib.Items[itemIdx].ID, itemPath, mediaPath, target, detect)
		if err != nil {
			return err
		}
		lib.Episodes = append(lib.Episodes, episode)
		lib.Items[itemIdx].EpisodeCount++
	}

	lib.Sources = append(lib.Sources, Source{
		ID:        cfg.ID,
		Name:      cfg.Name,
		Path:      cfg.Path,
		ItemCount: len(itemIdxByPath),
	})
	return nil
}

// buildEpisode inspects one media file and its sidecar files and fills in
// the subtitle status that decides whether the episode needs processing.
func buildEpisode(sourceID, itemID, itemPath, mediaPath string, target language.Tag, detect EmbeddedDetector) (Episode, error) {
	baseName := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	mediaDir := filepath.Dir(mediaPath)

	subs, err := collectSidecarSubtitles(mediaDir, baseName, target)
	if err != nil {
		return Episode{}, err
	}

	hasEmbedded, hasEmbeddedTarget, embeddedLangs := detect(mediaPath)
	if !hasEmbeddedTarget {
		for _, l := range embeddedLangs {
			if matchesTarget(l, target) || matchesTarget(normalizeLangCode(l), target) {
				hasEmbeddedTarget = true
				break
			}
		}
	}
	hasTarget := len(subs.target) > 0 || hasEmbeddedTarget

	return Episode{
		ID:        mediaPath,
		SourceID:  sourceID,
		ItemID:    itemID,
		Name:      cleanEpisodeName(baseName),
		Season:    resolveSeasonName(itemPath, mediaPath),
		MediaPath: mediaPath,
		NFOPath:   locateNFO(mediaDir, baseName, itemPath),
		Subtitles: SubtitleStatus{
			HasSource:         len(subs.source) > 0 || hasEmbedded,
			HasTarget:         hasTarget,
			HasEmbedded:       hasEmbedded,
			HasEmbeddedTarget: hasEmbeddedTarget,
			SourcePaths:       subs.source,
			TargetPaths:       subs.target,
			Languages:         mergeLanguages(subs.languages, embeddedLangs),
		},
		Processable: !hasTarget,
	}, nil
}

// mergeLanguages combines sidecar and embedded language codes, normalizing
// the embedded ones and dropping duplicates. Sidecar codes arrive already
// normalized from collectSidecarSubtitles.
func mergeLanguages(sidecar, embedded []string) []string {
	merged := sidecar
	seen := make(map[string]bool, len(sidecar))
	for _, l := range sidecar {
		seen[l] = true
	}
	for _, l := range embedded {
		normalized := normalizeLangCode(l)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		merged = append(merged, normalized)
	}
	return merged
}

// resolveSeriesPath walks from the media file's directory upward toward
// sourcePath, looking for a tvshow.nfo file. The directory holding it is
// taken as the series root. Without one, the first subdirectory under
// sourcePath is used, or sourcePath itself when the media file sits
// directly in it.
func resolveSeriesPath(sourcePath, mediaPath string) string {
	dir := filepath.Dir(mediaPath)
	for dir != sourcePath && strings.HasPrefix(dir, sourcePath) {
		nfo := filepath.Join(dir, "tvshow.nfo")
		if _, err := os.Stat(nfo); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	rel, err := filepath.Rel(sourcePath, filepath.Dir(mediaPath))
	if err != nil || rel == "." {
		return sourcePath
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return filepath.Join(sourcePath, first)
}

// resolveSeasonName returns the name of the subdirectory of seriesPath
// containing the media file, e.g. "Season 1". Empty when the media sits
// directly inside seriesPath.
func resolveSeasonName(seriesPath, mediaPath string) string {
	mediaDir := filepath.Dir(mediaPath)
	if mediaDir == seriesPath {
		return ""
	}
	rel, err := filepath.Rel(seriesPath, mediaDir)
	if err != nil || rel == "." {
		return ""
	}
	return strings.SplitN(rel, string(filepath.Separator), 2)[0]
}

var sonarrPattern = regexp.MustCompile(`(?i)S\d+E(\d+)`)
var qualitySuffixPattern = regexp.MustCompile(`(?i)\s*[-. ](WEBRip|WEBDL|WEB-DL|BluRay|BDRip|HDRip|DVDRip|HDTV|AMZN|NF|DSNP|HULU|ATVP|PMTP|IT|DDP?\d|AAC|x264|x265|HEVC|H\.?264|H\.?265|10bit|\d{3,4}p).*$`)

// cleanEpisodeName turns a Sonarr-style filename into a short display name,
// e.g. "Hormones - S02E07 - Dao WEBRip-1080p" becomes "E07 Dao".
// Filenames without an S##E## marker are returned unchanged.
func cleanEpisodeName(basename string) string {
	m := sonarrPattern.FindStringSubmatchIndex(basename)
	if m == nil {
		return basename
	}
	epNum := basename[m[2]:m[3]]
	title := strings.TrimSpace(basename[m[1]:])
	title = strings.TrimLeft(title, "-. ")
	title = qualitySuffixPattern.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)
	if title == "" {
		return "E" + epNum
	}
	return "E" + epNum + " " + title
}

var subtitleExts = []string{
	".srt", ".ass", ".ssa", ".vtt", ".sub", ".idx", ".sup", ".txt",
}

var mediaExts = []string{
	".mkv", ".mp4", ".m4v", ".mov", ".avi", ".wmv", ".flv", ".webm",
	".ogv", ".3gp", ".3g2", ".f4v", ".asf", ".rm", ".rmvb", ".ts",
	".m2ts", ".mts", ".vob", ".mpg", ".mpeg", ".m2v", ".divx", ".xvid",
}

func listMediaFiles(root string) ([]string, error) {
	found := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(mediaExts, strings.ToLower(filepath.Ext(path))) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

type sidecarSubtitles struct {
	source    []string
	target    []string
	languages []string
}

// collectSidecarSubtitles gathers external subtitle files next to the media
// file. A sidecar counts only when its stem starts with the media base name.
// Files whose language token matches the target land in target, everything
// else (including files without a recognizable token) in source.
func collectSidecarSubtitles(dir string, mediaBase string, target language.Tag) (sidecarSubtitles, error) {
	subs := sidecarSubtitles{
		source: make([]string, 0),
		target: make([]string, 0),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return subs, err
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !slices.Contains(subtitleExts, ext) {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		if !stemBelongsTo(stem, mediaBase) {
			continue
		}

		token := trailingLangToken(stem, mediaBase)
		if lang := normalizeLangCode(token); lang != "" && !seen[lang] {
			seen[lang] = true
			subs.languages = append(subs.languages, lang)
		}

		fullPath := filepath.Join(dir, name)
		if token != "" && matchesTarget(token, target) {
			subs.target = append(subs.target, fullPath)
		} else {
			subs.source = append(subs.source, fullPath)
		}
	}

	return subs, nil
}

// trailingLangToken extracts the language token from a subtitle stem such
// as "episode.th.forced" relative to the media base name. The rightmost
// recognizable token wins, so forced/sdh markers after it are ignored.
func trailingLangToken(stem, mediaBase string) string {
	remain := strings.TrimPrefix(stem, mediaBase)
	remain = strings.TrimLeft(remain, "._- ")
	if remain == "" {
		return ""
	}

	parts := strings.FieldsFunc(remain, func(r rune) bool {
		return r == '.' || r == '_' || r == ' '
	})
	for i := len(parts) - 1; i >= 0; i-- {
		token := strings.ToLower(parts[i])
		if normalizeLangCode(token) != "" || token == "chs" || token == "cht" {
			return token
		}
	}
	return ""
}

// normalizeLangCode validates a language token and returns its ISO 639-1
// base code ("fre" becomes "fr", "eng" becomes "en", "chi" becomes "zh").
// Unrecognized tokens normalize to "".
func normalizeLangCode(token string) string {
	if token == "" {
		return ""
	}
	tag, err := language.Parse(token)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

func matchesTarget(token string, target language.Tag) bool {
	token = strings.ToLower(strings.ReplaceAll(token, "_", "-"))
	if token == "" {
		return false
	}

	base, _ := target.Base()
	targetBase := strings.ToLower(base.String())
	if token == targetBase || strings.HasPrefix(token, targetBase+"-") {
		return true
	}

	// Three-letter aliases common in sidecar naming.
	switch targetBase {
	case "zh":
		return token == "chi" || token == "chs" || token == "cht"
	case "en":
		return token == "eng"
	case "th":
		return token == "tha"
	}

	return false
}

// locateNFO prefers an episode-level <base>.nfo next to the media file and
// falls back to the series-level tvshow.nfo.
func locateNFO(mediaDir, mediaBase, seriesPath string) string {
	episodeNFO := filepath.Join(mediaDir, mediaBase+".nfo")
	if _, err := os.Stat(episodeNFO); err == nil {
		return episodeNFO
	}
	seriesNFO := filepath.Join(seriesPath, "tvshow.nfo")
	if _, err := os.Stat(seriesNFO); err == nil {
		return seriesNFO
	}
	return ""
}

// stemBelongsTo reports whether a subtitle stem refers to the media base
// name, either exactly or followed by a separator and more tokens.
func stemBelongsTo(stem, mediaBase string) bool {
	if stem == mediaBase {
		return true
	}
	if !strings.HasPrefix(stem, mediaBase) || len(stem) <= len(mediaBase) {
		return false
	}
	switch stem[len(mediaBase)] {
	case '.', '_', '-', ' ':
		return true
	}
	return false
}

// clone returns a deep copy so cached results cannot be mutated by callers.
func (l *Library) clone() *Library {
	if l == nil {
		return nil
	}

	dst := &Library{
		Sources:  make([]Source, len(l.Sources)),
		Items:    make([]Item, len(l.Items)),
		Episodes: make([]Episode, len(l.Episodes)),
	}
	copy(dst.Sources, l.Sources)
	copy(dst.Items, l.Items)
	copy(dst.Episodes, l.Episodes)

	for i := range dst.Episodes {
		dst.Episodes[i].Subtitles.SourcePaths = append([]string(nil), l.Episodes[i].Subtitles.SourcePaths...)
		dst.Episodes[i].Subtitles.TargetPaths = append([]string(nil), l.Episodes[i].Subtitles.TargetPaths...)
		dst.Episodes[i].Subtitles.Languages = append([]string(nil), l.Episodes[i].Subtitles.Languages...)
	}
	return dst
}
