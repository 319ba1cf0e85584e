package gps

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"gnssd/internal/sim"
)

// Source opens one byte stream from the sensor. The service reopens it after
// the stream ends.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

const (
	SourceSerial = "serial"
	SourceTCP    = "tcp"
	SourceSim    = "sim"
)

func newSource(cfg Config) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", SourceSerial:
		return &serialSource{device: strings.TrimSpace(cfg.Device), baud: cfg.Baud}, nil
	case SourceTCP:
		if strings.TrimSpace(cfg.TCPAddr) == "" {
			return nil, fmt.Errorf("tcp source requires an address")
		}
		return &tcpSource{addr: cfg.TCPAddr, dialTimeout: 2 * time.Second}, nil
	case SourceSim:
		return &simSource{vehicle: cfg.Sim, rateHz: cfg.SimRateHz}, nil
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
	}
}

type serialSource struct {
	device string
	baud   int
}

func (s *serialSource) Open(ctx context.Context) (io.ReadCloser, error) {
	device := s.device
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			return nil, fmt.Errorf("serial auto-detect failed: no USB serial device found")
		}
	}
	baud := s.baud
	if baud == 0 {
		baud = 115200
	}
	f, err := openSerial(device, baud)
	if err != nil {
		return nil, fmt.Errorf("open %s at %d baud: %w", device, baud, err)
	}
	return f, nil
}

func (s *serialSource) String() string {
	if s.device == "" {
		return "serial:auto"
	}
	return "serial:" + s.device
}

type tcpSource struct {
	addr        string
	dialTimeout time.Duration
}

func (s *tcpSource) Open(ctx context.Context) (io.ReadCloser, error) {
	d := &net.Dialer{Timeout: s.dialTimeout}
	return d.DialContext(ctx, "tcp", s.addr)
}

func (s *tcpSource) String() string { return "tcp:" + s.addr }

type simSource struct {
	vehicle sim.Vehicle
	rateHz  float64
}

func (s *simSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rate := s.rateHz
	if rate <= 0 {
		rate = 10
	}
	ctx, cancel := context.WithCancel(ctx)
	return &simStream{
		ctx:     ctx,
		cancel:  cancel,
		vehicle: s.vehicle,
		ticker:  time.NewTicker(time.Duration(float64(time.Second) / rate)),
	}, nil
}

func (s *simSource) String() string { return "sim" }

// simStream emits one batch of frames per tick through the io.Reader
// interface so it exercises the same path as a real device.
type simStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	vehicle sim.Vehicle
	ticker  *time.Ticker
	pending []byte
}

func (r *simStream) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case now := <-r.ticker.C:
			r.pending = r.vehicle.Frames(now)
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *simStream) Close() error {
	r.cancel()
	r.ticker.Stop()
	return nil
}
