package media

import "github.com/pranot/segtrans/internal/subtitle"

// Operator abstracts the external media toolchain.
type Operator interface {
	// ProbeDuration returns the container duration in seconds.
	ProbeDuration() (float64, error)
	// ExtractAudio writes a mono 16 kHz wav suitable for speech
	// recognition and returns its path.
	ExtractAudio(toDir string, name string) (string, error)
	// ReadSubtitleDescription lists the embedded subtitle streams.
	ReadSubtitleDescription() (subtitle.Descriptions, error)
}

func NewOperator(
	mediaPath string,
) Operator {
	return NewFfmpeg(mediaPath)
}
