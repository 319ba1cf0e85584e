package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogLines = 2000
	defaultLogTail  = 200
	maxLogTail      = 5000
)

// LogBuffer keeps the most recent log lines in a fixed ring. It is an
// io.Writer so it can sit behind the zerolog console writer.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []string
	next    int
	full    bool
	partial []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = defaultLogLines
	}
	return &LogBuffer{ring: make([]string, maxLines)}
}

// Write splits p into lines. A trailing fragment without a newline is held
// until the rest arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := p
	if len(b.partial) > 0 {
		data = append(b.partial, p...)
		b.partial = nil
	}
	for {
		line, rest, found := bytes.Cut(data, []byte{'\n'})
		if !found {
			if len(line) > 0 {
				b.partial = append([]byte(nil), line...)
			}
			return len(p), nil
		}
		b.push(string(bytes.TrimRight(line, "\r")))
		data = rest
	}
}

func (b *LogBuffer) push(line string) {
	if line == "" {
		return
	}
	if b.full {
		b.dropped++
	}
	b.ring[b.next] = line
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
}

// Snapshot returns up to tail of the newest lines, oldest first, and the
// number of lines evicted so far.
func (b *LogBuffer) Snapshot(tail int) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.ring)
	}
	if tail <= 0 {
		tail = defaultLogTail
	}
	tail = min(tail, n)

	lines = make([]string, 0, tail)
	start := b.next - tail
	for i := 0; i < tail; i++ {
		lines = append(lines, b.ring[(start+i+len(b.ring))%len(b.ring)])
	}
	return lines, b.dropped
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

type logsQuery struct {
	tail   int
	substr string
	text   bool
}

func parseLogsQuery(r *http.Request) (logsQuery, error) {
	q := logsQuery{
		tail:   defaultLogTail,
		substr: r.URL.Query().Get("q"),
		text:   strings.EqualFold(r.URL.Query().Get("format"), "text"),
	}
	if s := strings.TrimSpace(r.URL.Query().Get("tail")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxLogTail {
			return q, fmt.Errorf("tail must be an integer in [1,%d]", maxLogTail)
		}
		q.tail = v
	}
	return q, nil
}

// Handler serves /api/logs. Query: tail=N, q=substring, format=text.
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q, err := parseLogsQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		lines, dropped := b.Snapshot(q.tail)
		if q.substr != "" {
			lines = filterLines(lines, q.substr)
		}
		w.Header().Set("Cache-Control", "no-store")

		if q.text {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			if dropped > 0 {
				fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, line := range lines {
				fmt.Fprintln(w, line)
			}
			return
		}

		writeJSON(w, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		})
	})
}

func filterLines(lines []string, substr string) []string {
	out := lines[:0]
	for _, l := range lines {
		if strings.Contains(l, substr) {
			out = append(out, l)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
