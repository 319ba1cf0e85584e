package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gnssd/internal/forsense"
	"gnssd/internal/parser"
	"gnssd/internal/replay"
)

type captureSummary struct {
	Segments    int
	Chunks      int
	Bytes       int
	Messages    int
	MaxDuration time.Duration
	// Frames counts complete frames by type; Dropped counts the rejected
	// ones by reason.
	Frames  map[string]int
	Dropped map[string]int
}

type summaryObserver struct {
	s *captureSummary
}

func (o summaryObserver) FrameDecoded(ft forsense.FrameType, result string, _ int) {
	o.s.Frames[string(ft)]++
	if result != forsense.ResultOK {
		o.s.Dropped[result]++
	}
}

// summarizeCapture parses every segment with its own parser, matching the
// live service's reset on reconnect.
func summarizeCapture(records []replay.Record) captureSummary {
	s := captureSummary{Frames: map[string]int{}, Dropped: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	newParser := func() *parser.Parser {
		return forsense.NewParser(0,
			forsense.WithLogger(zerolog.Nop()),
			forsense.WithObserver(summaryObserver{s: &s}))
	}

	var p *parser.Parser
	origin := time.Duration(0)
	for _, r := range records {
		if r.IsStart() || p == nil {
			s.Segments++
			p = newParser()
		}
		if r.IsStart() {
			origin = r.At
			continue
		}
		s.Chunks++
		s.Bytes += len(r.Chunk)
		if at := r.At - origin; at > s.MaxDuration {
			s.MaxDuration = at
		}
		p.AppendData(r.Chunk)
		s.Messages += len(p.ParseAllMessages())
	}
	return s
}

func printSummary(w io.Writer, path string, s captureSummary) {
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "chunks: %d\n", s.Chunks)
	fmt.Fprintf(w, "bytes: %d\n", s.Bytes)
	fmt.Fprintf(w, "messages: %d\n", s.Messages)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	printCounts(w, "frames", s.Frames)
	printCounts(w, "dropped", s.Dropped)
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}

func summaryCmd() *cobra.Command {
	var capture string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print frame statistics for a capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadCapture(capture)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), capture, summarizeCapture(records))
			return nil
		},
	}
	cmd.Flags().StringVar(&capture, "capture", "", "Capture file")
	_ = cmd.MarkFlagRequired("capture")
	return cmd
}
