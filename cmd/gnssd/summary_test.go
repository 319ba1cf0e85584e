package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnssd/internal/forsense"
	"gnssd/internal/replay"
)

func TestSummarizeCapture(t *testing.T) {
	s := summarizeCapture(sampleRecords())

	assert.Equal(t, 1, s.Segments)
	assert.Equal(t, 3, s.Chunks)
	assert.Equal(t, 6, s.Messages)
	assert.Equal(t, 250*time.Millisecond, s.MaxDuration)
	assert.Equal(t, map[string]int{"GPYJ": 1, "GPGGA": 1, "GPATT": 1}, s.Frames)
	assert.Equal(t, map[string]int{forsense.ResultChecksum: 1}, s.Dropped)
}

func TestSummarizeCapture_SegmentsResetOrigin(t *testing.T) {
	gga := forsense.EncodeFrame(testGGA)
	s := summarizeCapture([]replay.Record{
		record(0, gga),
		record(2*time.Second, gga),
		{At: 2 * time.Second},
		record(3*time.Second, gga),
	})
	assert.Equal(t, 2, s.Segments)
	assert.Equal(t, 2*time.Second, s.MaxDuration)
	assert.Equal(t, 3, s.Frames["GPGGA"])

	assert.Zero(t, summarizeCapture(nil).Chunks)
}

func TestSummarizeCapture_PartialFrameDoesNotCrossSegments(t *testing.T) {
	s := summarizeCapture(reconnectRecords())
	assert.Equal(t, 2, s.Segments)
	assert.Equal(t, 1, s.Messages)
	assert.Equal(t, map[string]int{"GPGGA": 1}, s.Frames)
	assert.Empty(t, s.Dropped)
}

func TestSummaryCommand(t *testing.T) {
	path := writeCapture(t, sampleRecords())

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"summary", "--capture", path})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "chunks: 3\n")
	assert.Contains(t, text, "messages: 6\n")
	assert.Contains(t, text, "frames:\n  GPATT: 1\n  GPGGA: 1\n  GPYJ: 1\n")
	assert.Contains(t, text, "dropped:\n  checksum: 1\n")
}

func TestSummaryCommand_RequiresCapture(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"summary"})
	assert.Error(t, cmd.Execute())
}
