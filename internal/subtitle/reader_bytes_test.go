package subtitle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSRTBytes(t *testing.T) {
	// No trailing blank line: the final cue must still be captured.
	data := []byte("1\n00:00:01,000 --> 00:00:02,000\nสวัสดีครับ\n\n" +
		"2\n00:00:03,000 --> 00:00:04,000\nไปไหนมา")

	file, err := ReadSRTBytes(data, "embedded://stream-3")
	require.NoError(t, err)

	require.Len(t, file.Lines, 2)
	assert.Equal(t, "สวัสดีครับ", file.Lines[0].Text)
	assert.Equal(t, "ไปไหนมา", file.Lines[1].Text)
	assert.Equal(t, 3*time.Second, file.Lines[1].StartTime)
	assert.Equal(t, "SRT", file.Format)
	assert.Equal(t, "embedded://stream-3", file.Path)
}

func TestReadSRTBytes_SkipsStrayLinesBetweenCues(t *testing.T) {
	data := []byte("WEBVTT-style junk\n\n1\n00:00:01,000 --> 00:00:02,000\nหนึ่ง\n\n" +
		"not-a-number\n2\n00:00:03,000 --> 00:00:04,000\nสอง\n\n")

	file, err := ReadSRTBytes(data, "embedded://stream-0")
	require.NoError(t, err)

	require.Len(t, file.Lines, 2)
	assert.Equal(t, 1, file.Lines[0].Index)
	assert.Equal(t, 2, file.Lines[1].Index)
}
