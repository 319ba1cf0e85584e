package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Capture format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<hex>
//   where t_ns is nanoseconds since START and hex is one raw chunk exactly as
//   it was read from the sensor, so replay reproduces the original split points.

type Record struct {
	At    time.Duration
	Chunk []byte
}

// IsStart reports whether r is a START marker.
func (r Record) IsStart() bool {
	return r.Chunk == nil
}

type Reader struct {
	s    *bufio.Scanner
	line int
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{s: s}
}

// Next returns the next record or io.EOF.
func (rr *Reader) Next() (Record, error) {
	for rr.s.Scan() {
		rr.line++
		line := strings.TrimSpace(rr.s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			return Record{}, nil
		}
		rec, err := parseLine(line)
		if err != nil {
			return Record{}, fmt.Errorf("line %d: %w", rr.line, err)
		}
		return rec, nil
	}
	if err := rr.s.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

func (rr *Reader) ReadAll() ([]Record, error) {
	recs := make([]Record, 0, 1024)
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

func parseLine(line string) (Record, error) {
	comma := strings.IndexByte(line, ',')
	if comma < 0 {
		return Record{}, fmt.Errorf("invalid capture line (missing comma): %q", line)
	}
	tsStr := strings.TrimSpace(line[:comma])
	hexStr := strings.ReplaceAll(strings.TrimSpace(line[comma+1:]), " ", "")
	if tsStr == "" || hexStr == "" {
		return Record{}, fmt.Errorf("invalid capture line (empty field): %q", line)
	}

	tsNs, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid capture timestamp %q: %w", tsStr, err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid capture timestamp (negative): %d", tsNs)
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Record{}, fmt.Errorf("invalid capture hex payload: %w", err)
	}
	return Record{At: time.Duration(tsNs), Chunk: b}, nil
}

// Writer appends chunks to a capture file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	empty  bool // no chunk since the last START
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now(), empty: true}, nil
}

// StartSegment marks the beginning of a new sensor stream. Later chunk
// times are relative to now. A segment with no chunks is reused rather than
// followed by a second START.
func (ww *Writer) StartSegment(now time.Time) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("capture writer is closed")
	}
	ww.start = now
	if ww.empty {
		return nil
	}
	if _, err := ww.w.WriteString("START\n"); err != nil {
		return err
	}
	ww.empty = true
	return nil
}

func (ww *Writer) WriteChunk(now time.Time, chunk []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("capture writer is closed")
	}
	if len(chunk) == 0 {
		return errors.New("chunk is empty")
	}

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	ww.empty = false
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(chunk))
	return err
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

// FlushEvery flushes buffered chunks to disk every interval until ctx is
// done.
func (ww *Writer) FlushEvery(ctx context.Context, interval time.Duration, onErr func(error)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := ww.Flush(); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Play replays records with their relative timing, calling cb for every
// record. Each pass opens with a START record, even when the capture lacks
// one, so cb can reset per-stream state on IsStart. START markers also reset
// the timing origin.
//
// speed: 1.0 = real time, 2.0 = twice as fast. A speed of 0 disables waits.
func Play(ctx context.Context, records []Record, speed float64, loop bool, sleeper Sleeper, cb func(r Record) error) error {
	if speed < 0 {
		return fmt.Errorf("speed must be >= 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	for {
		var origin, lastAt time.Duration
		var haveLast bool

		if !records[0].IsStart() {
			if err := cb(Record{}); err != nil {
				return err
			}
		}
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.IsStart() {
				origin = r.At
				lastAt = 0
				haveLast = false
				if err := cb(r); err != nil {
					return err
				}
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast && speed > 0 {
				wait := time.Duration(float64(at-lastAt) / speed)
				if wait > 0 {
					if err := sleeper.Sleep(ctx, wait); err != nil {
						return err
					}
				}
			}

			if err := cb(r); err != nil {
				return err
			}
			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
