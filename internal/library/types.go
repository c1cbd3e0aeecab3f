package library

// SourceConfig is one media root as declared in configuration.
type SourceConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Source is a configured media root with scan results attached.
type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	ItemCount int    `json:"item_count"`
}

// Item is a series or movie directory directly under a source.
type Item struct {
	ID           string `json:"id"`
	SourceID     string `json:"source_id"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	EpisodeCount int    `json:"episode_count"`
}

// SubtitleStatus records what subtitles exist for an episode, split by
// sidecar files and embedded streams.
type SubtitleStatus struct {
	HasSource         bool     `json:"has_source"`
	HasTarget         bool     `json:"has_target"`
	HasEmbedded       bool     `json:"has_embedded"`
	HasEmbeddedTarget bool     `json:"has_embedded_target"`
	SourcePaths       []string `json:"source_paths"`
	TargetPaths       []string `json:"target_paths"`
	Languages         []string `json:"languages"`
}

type Episode struct {
	ID        string         `json:"id"`
	SourceID  string         `json:"source_id"`
	ItemID    string         `json:"item_id"`
	Name      string         `json:"name"`
	Season    string         `json:"season"`
	MediaPath string         `json:"media_path"`
	NFOPath   string         `json:"nfo_path,omitempty"`
	Subtitles SubtitleStatus `json:"subtitles"`
	// Processable means the episode still lacks a target-language
	// subtitle. A missing source subtitle does not block processing;
	// the transcription stage covers it.
	Processable bool `json:"processable"`
}

// Library is one full scan snapshot.
type Library struct {
	Sources  []Source  `json:"sources"`
	Items    []Item    `json:"items"`
	Episodes []Episode `json:"episodes"`
}
