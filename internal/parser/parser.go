// Package parser drives frame extraction from an append-only byte stream.
//
// A Parser owns a bounded buffer and a two-state machine (seek header, process
// payload). Frame families plug in through FrameHandler; the parser only
// tracks progress and guarantees that ParseAllMessages terminates.
package parser

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gnssd/internal/buffer"
)

// FrameHandler implements header discovery and frame extraction for one
// protocol family.
type FrameHandler interface {
	// ProcessHeader reports whether the buffer now starts with a known header.
	// It may drain bytes that cannot begin a header, but must keep any tail
	// that could still grow into one.
	ProcessHeader(buf *buffer.Buffer) bool

	// ProcessPayload returns ok=true once a complete frame has been located
	// and drained, whatever the decode outcome; msgs may be empty. It returns
	// ok=false without touching the buffer while the frame is incomplete.
	ProcessPayload(buf *buffer.Buffer) (msgs []ParsedMessage, ok bool)
}

// Parser is not safe for concurrent use. Each stream needs its own instance.
type Parser struct {
	buf     *buffer.Buffer
	state   ParseState
	handler FrameHandler
	log     zerolog.Logger
}

type Option func(*Parser)

func WithBufferSize(n int) Option {
	return func(p *Parser) {
		p.buf = buffer.New(n)
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Parser) {
		p.log = l
	}
}

func New(h FrameHandler, opts ...Option) *Parser {
	p := &Parser{
		buf:     buffer.New(buffer.DefaultMaxSize),
		state:   SeekHeader,
		handler: h,
		log:     log.With().Str("component", "parser").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AppendData queues bytes for the next ParseAllMessages call.
func (p *Parser) AppendData(data []byte) {
	if dropped := p.buf.Append(data); dropped > 0 {
		// The head of the current frame may be gone; start over.
		p.log.Warn().Int("dropped", dropped).Int("max", p.buf.MaxSize()).Msg("buffer overflow, discarding oldest bytes")
		p.state = SeekHeader
	}
}

// ParseAllMessages extracts every complete frame currently buffered and
// returns their messages in arrival order.
func (p *Parser) ParseAllMessages() []ParsedMessage {
	var out []ParsedMessage
	for {
		before := p.buf.Len()
		prev := p.state

		msgs, ok := p.step()
		if ok {
			out = append(out, msgs...)
			continue
		}
		if p.buf.Len() < before {
			continue
		}
		if prev == SeekHeader && p.state == ProcessPayload {
			continue
		}
		p.log.Trace().Int("buffered", p.buf.Len()).Stringer("state", p.state).Msg("no progress, waiting for data")
		return out
	}
}

func (p *Parser) step() ([]ParsedMessage, bool) {
	switch p.state {
	case SeekHeader:
		if p.handler.ProcessHeader(p.buf) {
			p.state = ProcessPayload
		}
		return nil, false
	case ProcessPayload:
		msgs, ok := p.handler.ProcessPayload(p.buf)
		if !ok {
			return nil, false
		}
		p.state = SeekHeader
		return msgs, true
	default:
		p.log.Error().Stringer("state", p.state).Msg("unknown parser state, resetting")
		p.state = SeekHeader
		return nil, false
	}
}

func (p *Parser) State() ParseState {
	return p.state
}

// Buffered returns the number of bytes waiting to be parsed.
func (p *Parser) Buffered() int {
	return p.buf.Len()
}
