package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pranot/segtrans/internal/segment"
	"github.com/pranot/segtrans/pkg/file"
	"github.com/pranot/segtrans/pkg/log"
)

// Transcriber turns an audio file into timed text segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]segment.Segment, error)
}

// whisperCLI shells out to a whisper-compatible command that writes a
// JSON transcript next to the requested output directory.
type whisperCLI struct {
	bin      string
	model    string
	language string
}

func NewWhisperCLI(bin, model, language string) Transcriber {
	if bin == "" {
		bin = "whisper"
	}
	return &whisperCLI{bin: bin, model: model, language: language}
}

// whisperOutput mirrors the JSON the whisper CLI emits.
type whisperOutput struct {
	Language string `json:"language"`
	Segments []struct {
		ID         int     `json:"id"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
		Words      []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

func (w *whisperCLI) Transcribe(ctx context.Context, audioPath string) ([]segment.Segment, error) {
	cmdPath, err := exec.LookPath(w.bin)
	if err != nil {
		return nil, fmt.Errorf("locate whisper binary: %w", err)
	}

	outDir, err := os.MkdirTemp("", "segtrans-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, cmdPath, w.args(audioPath, outDir)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("whisper failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	base := file.ReplaceExt(filepath.Base(audioPath), ".json")
	data, err := os.ReadFile(filepath.Join(outDir, base))
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}

	return w.toSegments(out)
}

func (w *whisperCLI) toSegments(out whisperOutput) ([]segment.Segment, error) {
	segments := make([]segment.Segment, 0, len(out.Segments))
	for _, s := range out.Segments {
		seg, err := segment.New(s.ID, s.Start, s.End, strings.TrimSpace(s.Text), confidence(s.AvgLogprob))
		if err != nil {
			return nil, fmt.Errorf("transcript segment %d: %w", s.ID, err)
		}
		for _, word := range s.Words {
			seg.Words = append(seg.Words, segment.Word{
				Text:        strings.TrimSpace(word.Word),
				Start:       word.Start,
				End:         word.End,
				Probability: word.Probability,
			})
		}
		segments = append(segments, seg)
	}

	if overlaps, err := segment.ValidateSequence(segments); err != nil {
		return nil, err
	} else {
		for _, o := range overlaps {
			log.Warn("Transcript: %s", o)
		}
	}
	return segments, nil
}

// confidence maps whisper's average log probability into [0,1].
func confidence(avgLogprob float64) float64 {
	c := math.Exp(avgLogprob)
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

func (w *whisperCLI) args(audioPath, outDir string) []string {
	args := []string{
		audioPath,
		"--model", w.model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--word_timestamps", "True",
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	return args
}
