package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gnssd/internal/forsense"
	"gnssd/internal/nav"
	"gnssd/internal/parser"
	"gnssd/internal/sim"
)

const FormatForsense = "forsense"

// Config controls the sensor service. Zero values select defaults.
type Config struct {
	Enable bool

	// Format selects the parser family. Only "forsense" is supported.
	Format string

	// Source is "serial", "tcp" or "sim".
	Source string

	// Device may be empty to auto-detect.
	Device string
	Baud   int

	TCPAddr string

	BufferBytes    int
	StaleAfter     time.Duration
	ReconnectDelay time.Duration

	Sim       sim.Vehicle
	SimRateHz float64
}

// Metrics receives service counters.
type Metrics interface {
	forsense.Observer
	AddBytes(n int)
	AddMessages(msgs []parser.ParsedMessage)
}

type Snapshot struct {
	Enabled  bool   `json:"enabled"`
	Format   string `json:"format,omitempty"`
	Source   string `json:"source,omitempty"`
	State    string `json:"state"`
	Valid    bool   `json:"valid"`
	FixStale bool   `json:"fix_stale"`

	Position *nav.GnssBestPose `json:"position,omitempty"`
	Ins      *nav.Ins          `json:"ins,omitempty"`
	InsStat  *nav.InsStat      `json:"ins_stat,omitempty"`
	Imu      *nav.Imu          `json:"imu,omitempty"`
	Heading  *nav.Heading      `json:"heading,omitempty"`

	LastMessageUTC string  `json:"last_message_utc,omitempty"`
	FixAgeSec      float64 `json:"fix_age_sec,omitempty"`

	Bytes       uint64 `json:"bytes"`
	Messages    uint64 `json:"messages"`
	Passthrough uint64 `json:"passthrough"`
	Reconnects  uint64 `json:"reconnects"`

	LastError string `json:"last_error,omitempty"`
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithChunkHook registers fn to see every raw chunk before parsing.
func WithChunkHook(fn func(now time.Time, chunk []byte)) Option {
	return func(s *Service) { s.onChunk = append(s.onChunk, fn) }
}

// WithStreamHook registers fn to run each time a new stream is attached,
// before its first chunk.
func WithStreamHook(fn func(now time.Time)) Option {
	return func(s *Service) { s.onStream = append(s.onStream, fn) }
}

// WithMessageHook registers fn to see every non-empty batch of messages.
func WithMessageHook(fn func(msgs []parser.ParsedMessage)) Option {
	return func(s *Service) { s.onMessages = append(s.onMessages, fn) }
}

func withSource(src Source) Option {
	return func(s *Service) { s.src = src }
}

func withClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	cfg     Config
	src     Source
	log     zerolog.Logger
	metrics Metrics
	now     func() time.Time

	onStream   []func(time.Time)
	onChunk    []func(time.Time, []byte)
	onMessages []func([]parser.ParsedMessage)

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards the aggregated state below and the active closer.
	mu      sync.Mutex
	closer  io.Closer
	parser  *parser.Parser
	agg     aggregate
	lastErr string
	state   string

	last atomic.Value // Snapshot
}

type aggregate struct {
	pose    *nav.GnssBestPose
	ins     *nav.Ins
	insStat *nav.InsStat
	imu     *nav.Imu
	heading *nav.Heading

	lastMsg     time.Time
	bytes       uint64
	messages    uint64
	passthrough uint64
	opened      uint64
	reconnects  uint64
}

func New(cfg Config, opts ...Option) *Service {
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = FormatForsense
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	s := &Service{
		cfg:   cfg,
		log:   log.With().Str("component", "gps").Logger(),
		now:   time.Now,
		state: "stopped",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publishLocked()
	return s
}

// newParser builds the frame parser for a sensor format.
func newParser(format string, bufferSize int, l zerolog.Logger, obs forsense.Observer) (*parser.Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatForsense:
		opts := []forsense.Option{forsense.WithLogger(l)}
		if obs != nil {
			opts = append(opts, forsense.WithObserver(obs))
		}
		return forsense.NewParser(bufferSize, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported sensor format %q", format)
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	// Fail early on a bad format rather than on every reconnect.
	if _, err := newParser(s.cfg.Format, s.cfg.BufferBytes, s.log, nil); err != nil {
		s.setErrorLocked(err.Error())
		return err
	}
	if s.src == nil {
		src, err := newSource(s.cfg)
		if err != nil {
			s.setErrorLocked(err.Error())
			return err
		}
		s.src = src
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = "connecting"
	s.publishLocked()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(childCtx)
	}()

	s.log.Info().Str("source", s.src.String()).Str("format", s.cfg.Format).Msg("gps enabled")
	return nil
}

func (s *Service) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.setState("stopped", "")
			return
		}

		s.setState("connecting", "")
		rc, err := s.src.Open(ctx)
		if err != nil {
			s.setState("error", err.Error())
			s.log.Warn().Err(err).Str("source", s.src.String()).Msg("open failed")
			if !sleepCtx(ctx, s.cfg.ReconnectDelay) {
				s.setState("stopped", "")
				return
			}
			continue
		}

		if err := s.attach(rc); err != nil {
			_ = rc.Close()
			s.setState("error", err.Error())
			return
		}
		now := s.now()
		for _, fn := range s.onStream {
			fn(now)
		}
		s.setState("connected", "")
		err = s.readStream(ctx, rc)
		s.detach()
		_ = rc.Close()

		if ctx.Err() != nil {
			s.setState("stopped", "")
			return
		}
		s.setState("disconnected", errString(err))
		s.log.Warn().Err(err).Str("source", s.src.String()).Msg("stream ended, reconnecting")
		if !sleepCtx(ctx, s.cfg.ReconnectDelay) {
			s.setState("stopped", "")
			return
		}
	}
}

// attach installs a fresh parser for a new stream so stale partial frames from
// a previous connection are never joined with new bytes.
func (s *Service) attach(rc io.Closer) error {
	p, err := newParser(s.cfg.Format, s.cfg.BufferBytes, s.log, s.metrics)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agg.opened > 0 {
		s.agg.reconnects++
	}
	s.agg.opened++
	s.closer = rc
	s.parser = p
	return nil
}

func (s *Service) detach() {
	s.mu.Lock()
	s.closer = nil
	s.mu.Unlock()
}

func (s *Service) readStream(ctx context.Context, r io.Reader) error {
	chunk := make([]byte, 1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.ingest(s.now(), chunk[:n])
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// ingest feeds one chunk through the parser and folds the results into the
// aggregate.
func (s *Service) ingest(now time.Time, chunk []byte) {
	for _, fn := range s.onChunk {
		fn(now, chunk)
	}
	if s.metrics != nil {
		s.metrics.AddBytes(len(chunk))
	}

	s.mu.Lock()
	if s.parser == nil {
		p, err := newParser(s.cfg.Format, s.cfg.BufferBytes, s.log, s.metrics)
		if err != nil {
			s.setErrorLocked(err.Error())
			s.mu.Unlock()
			return
		}
		s.parser = p
	}
	s.parser.AppendData(chunk)
	msgs := s.parser.ParseAllMessages()
	s.agg.bytes += uint64(len(chunk))
	for _, m := range msgs {
		s.applyLocked(now, m)
	}
	s.publishLocked()
	s.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	if s.metrics != nil {
		s.metrics.AddMessages(msgs)
	}
	for _, fn := range s.onMessages {
		fn(msgs)
	}
}

func (s *Service) applyLocked(now time.Time, m parser.ParsedMessage) {
	s.agg.messages++
	s.agg.lastMsg = now
	if m.IsRaw() {
		s.agg.passthrough++
		return
	}
	switch rec := m.Record.(type) {
	case *nav.GnssBestPose:
		s.agg.pose = rec
	case *nav.Ins:
		s.agg.ins = rec
	case *nav.InsStat:
		s.agg.insStat = rec
	case *nav.Imu:
		s.agg.imu = rec
	case *nav.Heading:
		s.agg.heading = rec
	default:
		s.log.Debug().Stringer("type", m.Type).Msg("ignoring message")
	}
}

func (s *Service) publishLocked() {
	src := strings.ToLower(strings.TrimSpace(s.cfg.Source))
	if s.src != nil {
		src = s.src.String()
	}
	snap := Snapshot{
		Enabled:     s.cfg.Enable,
		Format:      s.cfg.Format,
		Source:      src,
		State:       s.state,
		Position:    s.agg.pose,
		Ins:         s.agg.ins,
		InsStat:     s.agg.insStat,
		Imu:         s.agg.imu,
		Heading:     s.agg.heading,
		Bytes:       s.agg.bytes,
		Messages:    s.agg.messages,
		Passthrough: s.agg.passthrough,
		Reconnects:  s.agg.reconnects,
		LastError:   s.lastErr,
	}
	if !s.agg.lastMsg.IsZero() {
		snap.LastMessageUTC = s.agg.lastMsg.UTC().Format(time.RFC3339Nano)
	}
	s.last.Store(snapshotState{snap: snap, lastMsg: s.agg.lastMsg})
}

type snapshotState struct {
	snap    Snapshot
	lastMsg time.Time
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

// Snapshot returns the latest published state with freshness evaluated at
// the time of the call.
func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v, ok := s.last.Load().(snapshotState)
	if !ok {
		return Snapshot{}
	}
	snap := v.snap
	if !v.lastMsg.IsZero() {
		age := s.now().Sub(v.lastMsg)
		snap.FixAgeSec = age.Seconds()
		snap.FixStale = age > s.cfg.StaleAfter
	}
	snap.Valid = snap.Position != nil && snap.Position.SolType.Valid() && !snap.FixStale && !v.lastMsg.IsZero()
	return snap
}

// FixValid reports whether a fresh, valid position is available.
func (s *Service) FixValid() bool {
	return s.Snapshot().Valid
}

func (s *Service) setState(state, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	} else if state == "connected" {
		s.lastErr = ""
	}
	s.publishLocked()
}

func (s *Service) setErrorLocked(msg string) {
	s.lastErr = msg
	s.publishLocked()
}

func errString(err error) string {
	if err == nil || errors.Is(err, io.EOF) {
		return ""
	}
	return err.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
