package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gnssd/internal/forsense"
	"gnssd/internal/logging"
	"gnssd/internal/parser"
	"gnssd/internal/replay"
	"gnssd/internal/sink"
)

type replayOptions struct {
	capture     string
	speed       float64
	loop        bool
	jsonl       string
	bufferBytes int
}

func replayCmd() *cobra.Command {
	var o replayOptions
	var logLevel string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Feed a capture through the parser and emit messages as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := logging.Configure(logging.Config{Level: logLevel}); err != nil {
				return err
			}
			records, err := loadCapture(o.capture)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if o.jsonl != "" && o.jsonl != "-" {
				f, err := os.Create(o.jsonl)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			n, err := replayCapture(ctx, records, o, sink.NewJSONLWriter(out))
			log.Info().Uint64("messages", n).Str("capture", o.capture).Msg("replay finished")
			return err
		},
	}
	cmd.Flags().StringVar(&o.capture, "capture", "", "Capture file written by record.enable")
	cmd.Flags().Float64Var(&o.speed, "speed", 0, "Playback speed (1 = real time, 0 = as fast as possible)")
	cmd.Flags().BoolVar(&o.loop, "loop", false, "Loop the capture until interrupted")
	cmd.Flags().StringVar(&o.jsonl, "jsonl", "-", "JSONL output path, - for stdout")
	cmd.Flags().IntVar(&o.bufferBytes, "buffer-bytes", 0, "Parser buffer size (0 = default)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")
	_ = cmd.MarkFlagRequired("capture")
	return cmd
}

func loadCapture(path string) ([]replay.Record, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("capture path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return replay.NewReader(f).ReadAll()
}

// replayCapture plays records through the parser, preserving the recorded
// chunk boundaries, and writes every parsed message to w. Each START gets a
// fresh parser, as each new connection does in the live service.
func replayCapture(ctx context.Context, records []replay.Record, o replayOptions, w *sink.JSONLWriter) (uint64, error) {
	var p *parser.Parser
	err := replay.Play(ctx, records, o.speed, o.loop, nil, func(r replay.Record) error {
		if r.IsStart() {
			p = forsense.NewParser(o.bufferBytes)
			return nil
		}
		p.AppendData(r.Chunk)
		return w.Write(time.Now(), p.ParseAllMessages())
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return w.Count(), err
}
