// Package sink writes parsed navigation messages as JSON lines.
package sink

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"gnssd/internal/parser"
)

type JSONLWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   uint64
}

type jsonRecord struct {
	TS   string `json:"ts"`
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
	Raw  string `json:"raw,omitempty"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write emits one line per message, in order. It stops at the first encode
// error.
func (j *JSONLWriter) Write(at time.Time, msgs []parser.ParsedMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, m := range msgs {
		if err := j.enc.Encode(newRecord(at, m)); err != nil {
			return err
		}
		j.n++
	}
	return nil
}

func newRecord(at time.Time, m parser.ParsedMessage) jsonRecord {
	rec := jsonRecord{TS: at.UTC().Format(time.RFC3339Nano), Type: m.Type.String()}
	if m.IsRaw() {
		rec.Raw = string(m.Raw)
	} else {
		rec.Data = m.Record
	}
	return rec
}

// Marshal encodes one message in the same shape as a JSONL line, without
// the trailing newline.
func Marshal(at time.Time, m parser.ParsedMessage) ([]byte, error) {
	return json.Marshal(newRecord(at, m))
}

// Count returns the number of lines written.
func (j *JSONLWriter) Count() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.n
}
