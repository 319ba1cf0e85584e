// Package forsense decodes the Forsense GNSS/INS text protocol.
//
// Frames look like NMEA sentences:
//
//	$GPYJ,<23 fields>*HH\r\n
//
// where HH is the XOR of every byte between '$' and '*'. Handler plugs into
// parser.Parser and turns each valid frame into navigation messages.
package forsense

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gnssd/internal/buffer"
	"gnssd/internal/parser"
)

const (
	frameStart        = '$'
	checksumDelimiter = '*'
	crcLength         = 2
)

var frameTerminator = []byte("\r\n")

type FrameType string

const (
	FrameGPYJ  FrameType = "GPYJ"
	FrameGPCHC FrameType = "GPCHC"
	FrameGPATT FrameType = "GPATT"
	FrameGPGGA FrameType = "GPGGA"
)

type header struct {
	token     []byte
	frameType FrameType
}

var defaultHeaders = []header{
	{token: []byte("$GPYJ"), frameType: FrameGPYJ},
	{token: []byte("$GPCHC"), frameType: FrameGPCHC},
	{token: []byte("$GPATT"), frameType: FrameGPATT},
	{token: []byte("$GPGGA"), frameType: FrameGPGGA},
}

// FrameTypes lists the frame types the handler recognizes, in header table
// order.
func FrameTypes() []string {
	out := make([]string, 0, len(defaultHeaders))
	for _, h := range defaultHeaders {
		out = append(out, string(h.frameType))
	}
	return out
}

// Observer is told about every complete frame, valid or not.
type Observer interface {
	FrameDecoded(frameType FrameType, result string, messages int)
}

type Handler struct {
	headers  []header
	current  header
	log      zerolog.Logger
	observer Observer
}

type Option func(*Handler)

func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) {
		h.log = l
	}
}

func WithObserver(o Observer) Option {
	return func(h *Handler) {
		h.observer = o
	}
}

func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		headers: defaultHeaders,
		log:     log.With().Str("component", "forsense").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewParser returns a stream parser for Forsense frames. bufferSize <= 0
// selects the default buffer size.
func NewParser(bufferSize int, opts ...Option) *parser.Parser {
	h := NewHandler(opts...)
	popts := []parser.Option{parser.WithLogger(h.log)}
	if bufferSize > 0 {
		popts = append(popts, parser.WithBufferSize(bufferSize))
	}
	return parser.New(h, popts...)
}

// ProcessHeader moves the buffer to the earliest known header. When none is
// present, everything except a tail that could still become a header is
// dropped.
func (h *Handler) ProcessHeader(buf *buffer.Buffer) bool {
	view := buf.Peek()
	best := -1
	var found header
	for _, hd := range h.headers {
		i := bytes.Index(view, hd.token)
		if i < 0 {
			continue
		}
		if best < 0 || i < best || (i == best && len(hd.token) > len(found.token)) {
			best, found = i, hd
		}
	}
	if best < 0 {
		buf.Drain(len(view) - h.partialHeaderTail(view))
		return false
	}
	if best > 0 {
		h.log.Debug().Int("skipped", best).Msg("skipping bytes before header")
	}
	buf.Drain(best)
	h.current = found
	h.log.Debug().Str("frame_type", string(found.frameType)).Msg("header found")
	return true
}

// partialHeaderTail returns the length of the longest suffix of b that is a
// proper prefix of a known header token.
func (h *Handler) partialHeaderTail(b []byte) int {
	longest := 0
	for _, hd := range h.headers {
		n := min(len(hd.token)-1, len(b))
		for k := n; k > longest; k-- {
			if bytes.HasPrefix(hd.token, b[len(b)-k:]) {
				longest = k
				break
			}
		}
	}
	return longest
}

// ProcessPayload consumes the current frame once its terminator has arrived.
// Invalid frames are logged, counted and dropped.
func (h *Handler) ProcessPayload(buf *buffer.Buffer) ([]parser.ParsedMessage, bool) {
	term, ok := buf.Find(frameTerminator, len(h.current.token))
	if !ok {
		return nil, false
	}
	frameLen := term + len(frameTerminator)
	frame := buf.Peek()[:frameLen]

	msgs, err := h.decodeFrame(frame)
	if err != nil {
		h.log.Warn().Err(err).
			Str("frame_type", string(h.current.frameType)).
			Str("reason", resultOf(err)).
			Bytes("frame", frame).
			Msg("dropping frame")
		msgs = nil
	}
	if h.observer != nil {
		h.observer.FrameDecoded(h.current.frameType, resultOf(err), len(msgs))
	}
	buf.Drain(frameLen)
	return msgs, true
}

func (h *Handler) decodeFrame(frame []byte) ([]parser.ParsedMessage, error) {
	if err := validateFrame(frame, len(h.current.token)); err != nil {
		return nil, err
	}
	delim := len(frame) - len(frameTerminator) - crcLength - 1
	payload := frame[:delim]

	switch h.current.frameType {
	case FrameGPYJ, FrameGPCHC:
		h.noteShort(payload, len(gpyjFields))
		rec, err := decodeFields(payload, gpyjFields)
		if err != nil {
			return nil, err
		}
		return rec.Messages(), nil
	case FrameGPATT:
		h.noteShort(payload, len(gpattFields))
		rec, err := decodeFields(payload, gpattFields)
		if err != nil {
			return nil, err
		}
		return rec.Messages(), nil
	case FrameGPGGA:
		return []parser.ParsedMessage{parser.NewRaw(parser.MessageGPGGA, frame)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, h.current.frameType)
	}
}

func (h *Handler) noteShort(payload []byte, want int) {
	if got := bytes.Count(payload, []byte(fieldSeparator)); got < want {
		h.log.Debug().
			Str("frame_type", string(h.current.frameType)).
			Int("fields", got).
			Int("schema_fields", want).
			Msg("short frame, missing fields left zero")
	}
}

// validateFrame checks length, delimiter position and checksum of a complete
// frame whose header token is headerLen bytes long.
func validateFrame(frame []byte, headerLen int) error {
	minLen := headerLen + 1 + crcLength + len(frameTerminator)
	if len(frame) < minLen {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrFrameTooShort, len(frame), minLen)
	}
	delim := len(frame) - len(frameTerminator) - crcLength - 1
	if frame[delim] != checksumDelimiter {
		return fmt.Errorf("%w: %q at offset %d", ErrBadDelimiter, frame[delim], delim)
	}
	return VerifyChecksum(frame[1:delim], frame[delim+1:delim+1+crcLength])
}
