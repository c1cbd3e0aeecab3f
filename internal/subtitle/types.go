package subtitle

import (
	"time"

	"golang.org/x/text/language"

	"github.com/pranot/segtrans/internal/segment"
)

// Reader is the interface for reading subtitle files
type Reader interface {
	Read() (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line represents a single subtitle line
type Line struct {
	Index          int           // subtitle index
	StartTime      time.Duration // start time
	EndTime        time.Duration // end time
	Text           string        // subtitle text
	TranslatedText string        // translated text
}

// File represents subtitle file
type File struct {
	Lines    []Line
	Language language.Tag
	Format   string // e.g. SRT, ASS, VTT etc
	Path     string // origin of the data, may be a pseudo URL
}

// Description identifies one embedded subtitle stream of a container.
type Description struct {
	Language    string
	SubLanguage string
	LangTag     language.Tag
}

type Descriptions []Description

// HasLanguage reports whether any stream matches the given base
// language.
func (ds Descriptions) HasLanguage(tag language.Tag) bool {
	want, _ := tag.Base()
	for _, d := range ds {
		got, _ := d.LangTag.Base()
		if got == want {
			return true
		}
	}
	return false
}

// FromSegments converts pipeline segments into subtitle lines. Indexes
// are 1-based per SRT convention; translated text goes to
// TranslatedText so the writer can fall back to the source text for
// failed segments.
func FromSegments(segments []segment.Segment, translations map[int]string, lang language.Tag) *File {
	lines := make([]Line, 0, len(segments))
	for i, seg := range segments {
		line := Line{
			Index:     i + 1,
			StartTime: time.Duration(seg.StartTime * float64(time.Second)),
			EndTime:   time.Duration(seg.EndTime * float64(time.Second)),
			Text:      seg.Text,
		}
		if translations != nil {
			line.TranslatedText = translations[seg.ID]
		}
		lines = append(lines, line)
	}
	return &File{Lines: lines, Language: lang, Format: "SRT"}
}
