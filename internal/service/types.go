package service

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"github.com/pranot/segtrans/internal/pipeline"
)

// outputSuffix marks subtitles produced by this tool so library scans
// can tell them apart from hand-made ones.
const outputSuffix = "segtrans"

// RunSummary is the result of one end-to-end job run.
type RunSummary struct {
	JobID       string
	MediaFile   string
	OutputPath  string
	Transcribe  *pipeline.Stats
	Translate   *pipeline.Stats
	Interrupted bool
}

// OutputPath derives the subtitle path written next to the media file,
// e.g. "ep01.mkv" -> "ep01.segtrans.en.srt".
func OutputPath(mediaFile string, target language.Tag) string {
	base := strings.TrimSuffix(mediaFile, filepath.Ext(mediaFile))
	targetBase, _ := target.Base()
	return base + "." + outputSuffix + "." + targetBase.String() + ".srt"
}
