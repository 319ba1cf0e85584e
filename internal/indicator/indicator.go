// Package indicator drives a GPIO line high while the navigation fix is
// valid, for an LED on the receiver enclosure.
package indicator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type line interface {
	SetValue(v int) error
	Close() error
}

var openGPIOFn = openGPIO

type Config struct {
	Enable   bool
	Chip     string
	Pin      int
	Interval time.Duration
}

type Snapshot struct {
	Enabled   bool      `json:"enabled"`
	Available bool      `json:"available"`
	On        bool      `json:"on"`
	UpdatedAt time.Time `json:"last_update_utc,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type Service struct {
	cfg   Config
	valid func() bool
	log   zerolog.Logger

	mu   sync.RWMutex
	snap Snapshot

	lineMu sync.Mutex
	line   line

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New returns a service that polls valid and mirrors it onto the line.
func New(cfg Config, valid func() bool) *Service {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	return &Service{
		cfg:    cfg,
		valid:  valid,
		log:    log.With().Str("component", "indicator").Logger(),
		snap:   Snapshot{Enabled: cfg.Enable},
		stopCh: make(chan struct{}),
	}
}

// Start opens the line and begins polling. A missing GPIO is recorded in
// the snapshot, not returned, so the rest of the daemon keeps running.
func (s *Service) Start(ctx context.Context) error {
	if s == nil || !s.cfg.Enable {
		return nil
	}
	l, err := openGPIOFn(s.cfg.Chip, s.cfg.Pin)
	if err != nil {
		s.log.Warn().Err(err).Msg("fix indicator unavailable")
		s.setState(func(sn *Snapshot) { sn.LastError = err.Error() })
		return nil
	}
	s.lineMu.Lock()
	s.line = l
	s.lineMu.Unlock()
	s.setState(func(sn *Snapshot) { sn.Available = true })
	s.log.Info().Str("chip", s.cfg.Chip).Int("pin", s.cfg.Pin).Msg("fix indicator enabled")

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	last := -1
	for {
		on := 0
		if s.valid != nil && s.valid() {
			on = 1
		}
		if on != last {
			s.lineMu.Lock()
			err := s.line.SetValue(on)
			s.lineMu.Unlock()
			if err != nil {
				s.setState(func(sn *Snapshot) { sn.LastError = err.Error() })
			} else {
				last = on
				s.setState(func(sn *Snapshot) {
					sn.On = on == 1
					sn.LastError = ""
				})
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
		}
	}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Close stops polling and leaves the line low.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	s.lineMu.Lock()
	defer s.lineMu.Unlock()
	if s.line != nil {
		_ = s.line.SetValue(0)
		_ = s.line.Close()
		s.line = nil
	}
	s.setState(func(sn *Snapshot) { sn.On = false })
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.UpdatedAt = time.Now().UTC()
}
