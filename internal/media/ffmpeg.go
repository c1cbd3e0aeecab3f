package media

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"golang.org/x/text/language"

	"github.com/pranot/segtrans/internal/subtitle"
	"github.com/pranot/segtrans/pkg/file"
	"github.com/pranot/segtrans/pkg/log"
)

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	filePath   string
	fileDir    string
	fileName   string
}

func NewFfmpeg(mediaPath string) ffmpeg {
	mediaPath = filepath.Clean(mediaPath)
	return ffmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		filePath:   mediaPath,
		fileDir:    filepath.Dir(mediaPath),
		fileName:   filepath.Base(mediaPath),
	}
}

// probeStream is the slice of ffprobe's stream JSON we care about.
type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Tags      struct {
		Language string `json:"language"`
		Title    string `json:"title"`
	} `json:"tags"`
}

// ProbeDuration reads the container duration in seconds via ffprobe.
func (ff ffmpeg) ProbeDuration() (float64, error) {
	output, err := ff.runProbe(ff.probeDurationArgs(ff.filePath))
	if err != nil {
		log.Error("Failed to run ffprobe: %v", err)
		return 0, err
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", result.Format.Duration, err)
	}
	return duration, nil
}

// ExtractAudio writes a mono 16 kHz wav into toDir and returns its path.
// Whisper-style recognizers expect this layout.
func (ff ffmpeg) ExtractAudio(toDir string, name string) (string, error) {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return "", err
	}
	output := filepath.Join(toDir, name)
	return output, exec.Command(cmdPath, ff.extractAudioArgs(output)...).Run()
}

// DefExtractAudio extracts audio into the media's own directory.
func (ff ffmpeg) DefExtractAudio() (string, error) {
	return ff.ExtractAudio(
		ff.fileDir,
		fmt.Sprintf("segtrans_%s", file.ReplaceExt(ff.fileName, ".wav")))
}

// ReadSubtitleDescription lists the embedded subtitle streams of the
// media file.
func (ff ffmpeg) ReadSubtitleDescription() (subtitle.Descriptions, error) {
	// ffprobe can exit non-zero while still printing usable stream
	// data, so keep the output and only fail when it yields nothing.
	output, runErr := ff.runProbe(ff.readProbeArgs(ff.filePath))
	if runErr != nil && len(output) == 0 {
		log.Error("Failed to run ffprobe: %v", runErr)
		return nil, runErr
	}

	var result struct {
		Streams []probeStream `json:"streams"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		log.Error("Failed to parse ffprobe output: %v", err)
		return nil, err
	}

	descriptions := describeSubtitleStreams(result.Streams)
	if runErr != nil && len(descriptions) == 0 {
		return nil, runErr
	}
	return descriptions, nil
}

func describeSubtitleStreams(streams []probeStream) subtitle.Descriptions {
	descriptions := make([]subtitle.Description, 0, len(streams))
	for _, stream := range streams {
		if stream.CodecType != "subtitle" {
			continue
		}
		lang := stream.Tags.Language
		desc := subtitle.Description{
			Language:    lang,
			SubLanguage: stream.Tags.Title,
			LangTag:     language.All.Make(lang),
		}
		// Streams without a language tag still count, just as und.
		if lang == "" {
			desc.Language = "und"
			desc.LangTag = language.Und
		}
		descriptions = append(descriptions, desc)
	}
	return descriptions
}

func (ff ffmpeg) runProbe(args []string) ([]byte, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return nil, err
	}
	return exec.Command(cmdPath, args...).Output()
}

func (ffmpeg) readProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams",
		"s",
		path,
	}
}

func (ffmpeg) probeDurationArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}
}

func (ff ffmpeg) extractAudioArgs(targetPath string) []string {
	return []string{
		"-i", ff.filePath,
		"-vn", // drop video
		"-ac", "1", // mono
		"-ar", "16000", // 16 kHz
		"-c:a", "pcm_s16le",
		"-y",
		targetPath,
	}
}
