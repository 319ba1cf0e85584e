package gps

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnssd/internal/forsense"
	"gnssd/internal/metrics"
	"gnssd/internal/nav"
	"gnssd/internal/parser"
	"gnssd/internal/sim"
)

const testGPYJ = "GPYJ,2200,345600.50,90.5,1.2,-0.5,0.1,0.2,0.3,0.01,0.02,1.0,31.2,121.5,20.5,1.0,2.0,0.1,2.24,12,10,42,1,OK"

const testGGA = "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"

// pipeSource hands out one pipe per Open; tests write into the writers.
type pipeSource struct {
	mu      sync.Mutex
	writers chan *io.PipeWriter
	opens   int
}

func newPipeSource() *pipeSource {
	return &pipeSource{writers: make(chan *io.PipeWriter, 4)}
}

func (p *pipeSource) Open(ctx context.Context) (io.ReadCloser, error) {
	r, w := io.Pipe()
	p.mu.Lock()
	p.opens++
	p.mu.Unlock()
	p.writers <- w
	return r, nil
}

func (p *pipeSource) String() string { return "pipe" }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeMetrics struct {
	mu       sync.Mutex
	bytes    int
	messages int
	frames   []string
}

func (m *fakeMetrics) FrameDecoded(ft forsense.FrameType, result string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, string(ft)+":"+result)
}

func (m *fakeMetrics) AddBytes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes += n
}

func (m *fakeMetrics) AddMessages(msgs []parser.ParsedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages += len(msgs)
}

func testService(t *testing.T, cfg Config, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)}
	cfg.Enable = true
	opts = append([]Option{WithLogger(zerolog.Nop()), withClock(clk.Now)}, opts...)
	return New(cfg, opts...), clk
}

func TestIngest_AggregatesLatestRecords(t *testing.T) {
	m := &fakeMetrics{}
	s, _ := testService(t, Config{}, WithMetrics(m))

	var batches [][]parser.ParsedMessage
	s.onMessages = append(s.onMessages, func(msgs []parser.ParsedMessage) {
		batches = append(batches, msgs)
	})

	frame := forsense.EncodeFrame(testGPYJ)
	s.ingest(s.now(), frame[:10])
	assert.Empty(t, batches)
	s.ingest(s.now(), frame[10:])

	require.Len(t, batches, 1)
	snap := s.Snapshot()
	require.NotNil(t, snap.Position)
	assert.True(t, snap.Valid)
	assert.False(t, snap.FixStale)
	assert.InDelta(t, 31.2, snap.Position.LatitudeDeg, 1e-9)
	require.NotNil(t, snap.Heading)
	assert.InDelta(t, 90.5, snap.Heading.HeadingDeg, 1e-9)
	require.NotNil(t, snap.Ins)
	require.NotNil(t, snap.Imu)
	require.NotNil(t, snap.InsStat)
	assert.Equal(t, uint64(len(frame)), snap.Bytes)
	assert.Equal(t, uint64(5), snap.Messages)

	assert.Equal(t, len(frame), m.bytes)
	assert.Equal(t, 5, m.messages)
	assert.Equal(t, []string{"GPYJ:ok"}, m.frames)
}

func TestSnapshot_GoesStale(t *testing.T) {
	s, clk := testService(t, Config{StaleAfter: time.Second})
	s.ingest(clk.Now(), forsense.EncodeFrame(testGPYJ))
	require.True(t, s.Snapshot().Valid)

	clk.Advance(1500 * time.Millisecond)
	snap := s.Snapshot()
	assert.True(t, snap.FixStale)
	assert.False(t, snap.Valid)
	assert.InDelta(t, 1.5, snap.FixAgeSec, 1e-9)
	assert.False(t, s.FixValid())
}

func TestFixValidGauge_DropsWhenStale(t *testing.T) {
	s, clk := testService(t, Config{StaleAfter: time.Second})
	reg := prometheus.NewRegistry()
	g := metrics.NewFixValidGauge(reg, s.FixValid)

	gauge := func() float64 {
		var out dto.Metric
		require.NoError(t, g.Write(&out))
		return out.GetGauge().GetValue()
	}

	s.ingest(clk.Now(), forsense.EncodeFrame(testGPYJ))
	assert.Equal(t, 1.0, gauge())

	clk.Advance(10 * time.Second)
	s.ingest(clk.Now(), []byte("noise"))
	assert.False(t, s.Snapshot().Valid)
	assert.Equal(t, 0.0, gauge())
}

func TestSnapshot_NoFixIsInvalid(t *testing.T) {
	s, clk := testService(t, Config{})
	// Status 00: no satellite solution.
	body := "GPYJ,2200,1.0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,00,0,"
	s.ingest(clk.Now(), forsense.EncodeFrame(body))

	snap := s.Snapshot()
	require.NotNil(t, snap.Position)
	assert.Equal(t, nav.SolNone, snap.Position.SolType)
	assert.False(t, snap.Valid)
}

func TestIngest_CountsPassthrough(t *testing.T) {
	s, clk := testService(t, Config{})
	var raw []string
	s.onMessages = append(s.onMessages, func(msgs []parser.ParsedMessage) {
		for _, m := range msgs {
			if m.IsRaw() {
				raw = append(raw, string(m.Raw))
			}
		}
	})
	s.ingest(clk.Now(), forsense.EncodeFrame(testGGA))

	assert.Equal(t, []string{string(forsense.EncodeFrame(testGGA))}, raw)
	assert.Equal(t, uint64(1), s.Snapshot().Passthrough)
	assert.Nil(t, s.Snapshot().Position)
}

func TestNewParser_UnknownFormat(t *testing.T) {
	_, err := newParser("ubx", 0, zerolog.Nop(), nil)
	assert.Error(t, err)

	s, _ := testService(t, Config{Format: "ubx"}, withSource(newPipeSource()))
	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, s.Snapshot().LastError, "unsupported sensor format")
}

func TestStart_DisabledIsNoop(t *testing.T) {
	s := New(Config{Enable: false}, WithLogger(zerolog.Nop()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "stopped", s.Snapshot().State)
	s.Close()
}

func TestService_ReadsAndReconnects(t *testing.T) {
	src := newPipeSource()
	var chunks, streams int
	var mu sync.Mutex
	s, _ := testService(t, Config{ReconnectDelay: 10 * time.Millisecond},
		withSource(src),
		WithStreamHook(func(time.Time) {
			mu.Lock()
			streams++
			mu.Unlock()
		}),
		WithChunkHook(func(time.Time, []byte) {
			mu.Lock()
			chunks++
			mu.Unlock()
		}))
	s.now = time.Now

	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	w := <-src.writers
	// A partial frame on the first connection must not leak into the next.
	_, err := w.Write(forsense.EncodeFrame(testGPYJ))
	require.NoError(t, err)
	_, err = w.Write([]byte("$GPYJ,2200,1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Snapshot().Messages == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "connected", s.Snapshot().State)

	_ = w.CloseWithError(errors.New("cable pulled"))

	w2 := <-src.writers
	_, err = w2.Write(forsense.EncodeFrame(testGGA))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Snapshot().Passthrough == 1 }, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, uint64(6), snap.Messages)
	assert.Equal(t, uint64(1), snap.Reconnects)
	mu.Lock()
	assert.GreaterOrEqual(t, chunks, 3)
	assert.Equal(t, 2, streams)
	mu.Unlock()
}

func TestService_TCPSource(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(forsense.EncodeFrame(testGPYJ))
		time.Sleep(200 * time.Millisecond)
	}()

	s := New(Config{Enable: true, Source: SourceTCP, TCPAddr: ln.Addr().String()}, WithLogger(zerolog.Nop()))
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	require.Eventually(t, func() bool { return s.Snapshot().Valid }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "tcp:"+ln.Addr().String(), s.Snapshot().Source)
}

func TestService_SimSource(t *testing.T) {
	cfg := Config{
		Enable:    true,
		Source:    SourceSim,
		Sim:       sim.Vehicle{CenterLatDeg: 31, CenterLonDeg: 121, RadiusM: 20, Period: 10 * time.Second},
		SimRateHz: 50,
	}
	s := New(cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return s.Snapshot().Valid }, 2*time.Second, 10*time.Millisecond)
	s.Close()
	assert.Equal(t, "stopped", s.Snapshot().State)
	assert.InDelta(t, 31, s.Snapshot().Position.LatitudeDeg, 0.01)
}

func TestNewSource(t *testing.T) {
	_, err := newSource(Config{Source: "carrier-pigeon"})
	assert.Error(t, err)
	_, err = newSource(Config{Source: SourceTCP})
	assert.Error(t, err)

	src, err := newSource(Config{Device: "/dev/ttyUSB3"})
	require.NoError(t, err)
	assert.Equal(t, "serial:/dev/ttyUSB3", src.String())
}
