package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DefaultReader reads SRT subtitle files from disk.
type DefaultReader struct {
	path string
}

func NewReader(
	path string,
) Reader {
	return &DefaultReader{
		path: path,
	}
}

// Read parses the subtitle file. Only SRT is supported; other sidecar
// formats are rejected up front.
func (r *DefaultReader) Read() (*File, error) {
	if !strings.HasSuffix(strings.ToLower(r.path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", r.path)
	}

	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("subtitle file does not exist: %s", r.path)
	}

	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer file.Close()

	return readSRT(file, r.path)
}

// ReadSRTBytes parses SRT data held in memory, e.g. a stream extracted
// from a media container. path labels the origin for diagnostics.
func ReadSRTBytes(data []byte, path string) (*File, error) {
	return readSRT(bytes.NewReader(data), path)
}

type parseState int

const (
	wantIndex parseState = iota
	wantTiming
	wantText
)

// readSRT parses cue blocks of the form index line, timing line, one or
// more text lines, blank separator. Stray non-numeric lines between cues
// are skipped rather than failing the parse; malformed timing lines fail.
func readSRT(r io.Reader, path string) (*File, error) {
	var (
		lines     []Line
		cue       Line
		textLines []string
	)

	state := wantIndex
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())

		switch state {
		case wantIndex:
			if raw == "" {
				continue
			}
			index, err := strconv.Atoi(raw)
			if err != nil {
				continue
			}
			cue.Index = index
			state = wantTiming

		case wantTiming:
			if raw == "" {
				continue
			}
			start, end, err := parseSRTTime(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			cue.StartTime = start
			cue.EndTime = end
			textLines = textLines[:0]
			state = wantText

		case wantText:
			if raw != "" {
				textLines = append(textLines, raw)
				continue
			}
			if len(textLines) > 0 {
				cue.Text = strings.Join(textLines, "\n")
				lines = append(lines, cue)
				cue = Line{}
			}
			textLines = textLines[:0]
			state = wantIndex
		}
	}

	// Final cue when the file lacks a trailing blank line.
	if state == wantText && len(textLines) > 0 {
		cue.Text = strings.Join(textLines, "\n")
		lines = append(lines, cue)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle data: %w", err)
	}

	return &File{
		Lines:    lines,
		Language: detectLanguage(lines),
		Format:   "SRT",
		Path:     path,
	}, nil
}

// srtTimePattern matches timing lines like "00:02:16,612 --> 00:02:19,376".
var srtTimePattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3}) --> (\d{2}):(\d{2}):(\d{2}),(\d{3})`)

func parseSRTTime(timeString string) (time.Duration, time.Duration, error) {
	matches := srtTimePattern.FindStringSubmatch(timeString)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}
	return srtDuration(matches[1:5]), srtDuration(matches[5:9]), nil
}

// srtDuration builds a duration from already-validated hour, minute,
// second and millisecond capture groups.
func srtDuration(groups []string) time.Duration {
	h, _ := strconv.Atoi(groups[0])
	m, _ := strconv.Atoi(groups[1])
	s, _ := strconv.Atoi(groups[2])
	ms, _ := strconv.Atoi(groups[3])

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}

// detectLanguage runs per-line detection and takes the majority vote.
// Subtitles routinely mix languages (song lyrics, onomatopoeia), so a
// single-line detection would be too noisy.
func detectLanguage(lines []Line) language.Tag {
	if len(lines) == 0 {
		return language.Und
	}

	votes := make(map[string]int)
	for _, line := range lines {
		iso := whatlanggo.DetectLang(line.Text).Iso6391()
		votes[iso]++
	}

	var top string
	var topCount int
	for iso, count := range votes {
		if count > topCount {
			top = iso
			topCount = count
		}
	}

	return language.All.Make(top)
}
