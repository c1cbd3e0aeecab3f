package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// DefaultWriter writes SRT subtitle files.
type DefaultWriter struct{}

func NewWriter() Writer {
	return &DefaultWriter{}
}

// Write renders the subtitle to path in SRT form. Lines without a
// translation fall back to their source text, so a partially translated
// file still plays with every cue present.
func (w *DefaultWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("nothing to write")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create subtitle file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range subtitle.Lines {
		writeCue(writer, line)
	}
	return writer.Flush()
}

func writeCue(w *bufio.Writer, line Line) {
	text := line.TranslatedText
	if text == "" {
		text = line.Text
	}
	fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
		line.Index,
		formatDuration(line.StartTime),
		formatDuration(line.EndTime),
		text,
	)
}

// formatDuration renders a duration as an SRT timestamp, e.g.
// "00:02:16,612".
func formatDuration(d time.Duration) string {
	millis := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d",
		millis/3600000,
		millis/60000%60,
		millis/1000%60,
		millis%1000,
	)
}
