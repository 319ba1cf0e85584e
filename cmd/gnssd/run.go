package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gnssd/internal/config"
	"gnssd/internal/gps"
	"gnssd/internal/indicator"
	"gnssd/internal/logging"
	"gnssd/internal/metrics"
	"gnssd/internal/parser"
	"gnssd/internal/replay"
	"gnssd/internal/sim"
	"gnssd/internal/udp"
	"gnssd/internal/web"
)

func runCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Read the receiver and serve status until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			logs := web.NewLogBuffer(2000)
			lc := logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Tee:    logs,
				File: logging.FileConfig{
					Path:       cfg.Log.File,
					MaxSizeMB:  cfg.Log.MaxSizeMB,
					MaxBackups: cfg.Log.MaxBackups,
					MaxAgeDays: cfg.Log.MaxAgeDays,
					Compress:   cfg.Log.Compress,
				},
			}
			if _, err := logging.Configure(lc); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runLive(ctx, cfg, logs)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "./gnssd.yaml", "Path to YAML config")
	return cmd
}

func runLive(ctx context.Context, cfg config.Config, logs *web.LogBuffer) error {
	rt, err := newRuntime(cfg, logs)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Start(ctx); err != nil {
		return err
	}
	listen := rt.cfg.Web.Listen
	log.Info().Str("listen", listen).Msg("gnssd starting")

	err = web.Serve(ctx, listen, rt.Handler())
	log.Info().Msg("gnssd stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

const captureFlushInterval = time.Second

// runtime owns every long-lived component of the daemon.
type runtime struct {
	cfg  config.Config
	log  zerolog.Logger
	logs *web.LogBuffer

	reg     *prometheus.Registry
	metrics *metrics.ParserMetrics
	status  *web.Status
	stream  *web.Stream

	gpsSvc   *gps.Service
	recorder *replay.Writer
	fwd      *udp.Forwarder
	ind      *indicator.Service
}

func newRuntime(cfg config.Config, logs *web.LogBuffer) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	r := &runtime{
		cfg:     c,
		log:     log.With().Str("component", "runtime").Logger(),
		logs:    logs,
		reg:     reg,
		metrics: metrics.NewParserMetrics(reg),
		status:  web.NewStatus(),
		stream:  web.NewStream(0),
	}

	if c.Record.Enable {
		w, err := replay.CreateWriter(c.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("capture init failed: %w", err)
		}
		r.recorder = w
	}
	if c.Forward.Enable {
		f, err := udp.NewForwarder(c.Forward.Dest)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("udp forwarder init failed: %w", err)
		}
		r.fwd = f
	}

	opts := []gps.Option{gps.WithMetrics(r.metrics), gps.WithMessageHook(r.onMessages)}
	if r.recorder != nil {
		opts = append(opts, gps.WithStreamHook(r.onStream), gps.WithChunkHook(r.onChunk))
	}
	r.gpsSvc = gps.New(gpsConfig(c.Sensor), opts...)
	metrics.NewFixValidGauge(reg, r.gpsSvc.FixValid)

	r.ind = indicator.New(indicator.Config{
		Enable: c.Indicator.Enable,
		Chip:   c.Indicator.Chip,
		Pin:    *c.Indicator.Pin,
	}, r.gpsSvc.FixValid)

	r.status.SetStatic(staticInfo(c))
	r.status.Register("sensor", func() any { return r.gpsSvc.Snapshot() })
	r.status.Register("indicator", func() any { return r.ind.Snapshot() })
	r.status.Register("stream", func() any {
		return map[string]any{"clients": r.stream.Clients(), "dropped": r.stream.Dropped()}
	})
	if r.fwd != nil {
		r.status.Register("forward", func() any { return r.fwd.Stats() })
	}
	return r, nil
}

func gpsConfig(s config.SensorConfig) gps.Config {
	return gps.Config{
		Enable:         s.Enable,
		Format:         s.Format,
		Source:         s.Source,
		Device:         s.Device,
		Baud:           s.Baud,
		TCPAddr:        s.TCPAddr,
		BufferBytes:    s.BufferBytes,
		StaleAfter:     s.StaleAfter,
		ReconnectDelay: s.ReconnectDelay,
		Sim: sim.Vehicle{
			CenterLatDeg: s.Sim.CenterLatDeg,
			CenterLonDeg: s.Sim.CenterLonDeg,
			AltM:         s.Sim.AltM,
			RadiusM:      s.Sim.RadiusM,
			Period:       s.Sim.Period,
		},
		SimRateHz: s.Sim.RateHz,
	}
}

func staticInfo(c config.Config) map[string]any {
	info := map[string]any{
		"format":      c.Sensor.Format,
		"source":      c.Sensor.Source,
		"stale_after": c.Sensor.StaleAfter.String(),
		"web_listen":  c.Web.Listen,
	}
	switch c.Sensor.Source {
	case gps.SourceSerial:
		info["device"] = c.Sensor.Device
		info["baud"] = c.Sensor.Baud
	case gps.SourceTCP:
		info["tcp_addr"] = c.Sensor.TCPAddr
	}
	if c.Record.Enable {
		info["record_path"] = c.Record.Path
	}
	if c.Forward.Enable {
		info["forward_dest"] = c.Forward.Dest
	}
	return info
}

func (r *runtime) onStream(now time.Time) {
	if err := r.recorder.StartSegment(now); err != nil {
		r.log.Warn().Err(err).Msg("capture segment failed")
	}
}

func (r *runtime) onChunk(now time.Time, chunk []byte) {
	if err := r.recorder.WriteChunk(now, chunk); err != nil {
		r.log.Warn().Err(err).Msg("capture write failed")
	}
}

func (r *runtime) onMessages(msgs []parser.ParsedMessage) {
	r.stream.Publish(time.Now(), msgs)
	if r.fwd == nil || !hasRaw(msgs) {
		return
	}
	err := r.fwd.Forward(msgs)
	r.metrics.ObserveForward(err)
	if err != nil {
		r.log.Debug().Err(err).Msg("forward failed")
	}
}

func hasRaw(msgs []parser.ParsedMessage) bool {
	for _, m := range msgs {
		if m.IsRaw() {
			return true
		}
	}
	return false
}

func (r *runtime) Start(ctx context.Context) error {
	if err := r.gpsSvc.Start(ctx); err != nil {
		// Not fatal: the error is reported in the sensor snapshot.
		r.log.Error().Err(err).Msg("sensor init failed")
	}
	if r.recorder != nil {
		go r.recorder.FlushEvery(ctx, captureFlushInterval, func(err error) {
			r.log.Warn().Err(err).Msg("capture flush failed")
		})
	}
	return r.ind.Start(ctx)
}

func (r *runtime) Handler() http.Handler {
	return web.Handler(r.status, r.logs, r.stream, metrics.Handler(r.reg))
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	// Stop the producer before closing its sinks.
	if r.gpsSvc != nil {
		r.gpsSvc.Close()
	}
	if r.ind != nil {
		r.ind.Close()
	}
	if r.fwd != nil {
		_ = r.fwd.Close()
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			r.log.Warn().Err(err).Msg("capture close failed")
		}
	}
}
