package parser

import "fmt"

type ParseState int

const (
	// SeekHeader looks for the start of the next frame.
	SeekHeader ParseState = iota
	// ProcessPayload waits for, then consumes, the frame whose header was found.
	ProcessPayload
)

func (s ParseState) String() string {
	switch s {
	case SeekHeader:
		return "seek_header"
	case ProcessPayload:
		return "process_payload"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MessageType tags the kind of record a frame produced.
type MessageType int

const (
	MessageNone MessageType = iota
	MessageGNSS
	MessageGNSSRange
	MessageIMU
	MessageINS
	MessageINSStat
	MessageWheel
	MessageEphemerides
	MessageObservation
	MessageBDGGA
	MessageGPGGA
	MessageBDSEphemerides
	MessageRawIMU
	MessageGPSEphemerides
	MessageGLOEphemerides
	MessageBestGNSSPos
	MessageHeading
)

var messageTypeNames = [...]string{
	MessageNone:           "none",
	MessageGNSS:           "gnss",
	MessageGNSSRange:      "gnss_range",
	MessageIMU:            "imu",
	MessageINS:            "ins",
	MessageINSStat:        "ins_stat",
	MessageWheel:          "wheel",
	MessageEphemerides:    "ephemerides",
	MessageObservation:    "observation",
	MessageBDGGA:          "bdgga",
	MessageGPGGA:          "gpgga",
	MessageBDSEphemerides: "bds_ephemerides",
	MessageRawIMU:         "raw_imu",
	MessageGPSEphemerides: "gps_ephemerides",
	MessageGLOEphemerides: "glo_ephemerides",
	MessageBestGNSSPos:    "best_gnss_pos",
	MessageHeading:        "heading",
}

func (t MessageType) String() string {
	if t >= 0 && int(t) < len(messageTypeNames) {
		return messageTypeNames[t]
	}
	return fmt.Sprintf("message(%d)", int(t))
}

// ParsedMessage is one output of a decoded frame. Exactly one of Record and
// Raw is set; build values with NewRecord or NewRaw.
type ParsedMessage struct {
	Type   MessageType
	Record any
	Raw    []byte
}

func NewRecord(t MessageType, rec any) ParsedMessage {
	return ParsedMessage{Type: t, Record: rec}
}

// NewRaw copies raw so the message does not alias parser storage.
func NewRaw(t MessageType, raw []byte) ParsedMessage {
	return ParsedMessage{Type: t, Raw: append([]byte(nil), raw...)}
}

func (m ParsedMessage) IsRaw() bool {
	return m.Record == nil
}
