package web

import (
	"sort"
	"sync"
	"time"
)

// Status aggregates what /api/status reports: static configuration plus a
// live view from each registered component.
type Status struct {
	start time.Time

	mu         sync.RWMutex
	static     map[string]any
	components map[string]func() any
}

func NewStatus() *Status {
	return &Status{
		start:      time.Now().UTC(),
		static:     map[string]any{},
		components: map[string]func() any{},
	}
}

func (s *Status) SetStatic(info map[string]any) {
	if info == nil {
		return
	}
	s.mu.Lock()
	s.static = info
	s.mu.Unlock()
}

// Register adds a component whose snapshot fn is called on every request.
// fn must be safe for concurrent use.
func (s *Status) Register(name string, fn func() any) {
	s.mu.Lock()
	s.components[name] = fn
	s.mu.Unlock()
}

type StatusSnapshot struct {
	Service    string         `json:"service"`
	NowUTC     string         `json:"now_utc"`
	UptimeSec  int64          `json:"uptime_sec"`
	Config     map[string]any `json:"config"`
	Components map[string]any `json:"components"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	s.mu.RLock()
	static := s.static
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	fns := make(map[string]func() any, len(s.components))
	for k, v := range s.components {
		fns[k] = v
	}
	s.mu.RUnlock()

	sort.Strings(names)
	comps := make(map[string]any, len(names))
	for _, name := range names {
		comps[name] = fns[name]()
	}

	return StatusSnapshot{
		Service:    "gnssd",
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(s.start).Seconds()),
		Config:     static,
		Components: comps,
	}
}
