package forsense

import "errors"

var (
	ErrFrameTooShort    = errors.New("frame too short")
	ErrBadDelimiter     = errors.New("bad checksum delimiter")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrFieldCount       = errors.New("unexpected field count")
	ErrFieldDecode      = errors.New("field decode failed")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// Result labels used for frame observations.
const (
	ResultOK           = "ok"
	ResultTooShort     = "too_short"
	ResultBadDelimiter = "bad_delimiter"
	ResultChecksum     = "checksum"
	ResultFieldCount   = "field_count"
	ResultFieldDecode  = "field_decode"
	ResultUnknownType  = "unknown_type"
	ResultError        = "error"
)

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrFrameTooShort):
		return ResultTooShort
	case errors.Is(err, ErrBadDelimiter):
		return ResultBadDelimiter
	case errors.Is(err, ErrChecksumMismatch):
		return ResultChecksum
	case errors.Is(err, ErrFieldCount):
		return ResultFieldCount
	case errors.Is(err, ErrFieldDecode):
		return ResultFieldDecode
	case errors.Is(err, ErrUnknownFrameType):
		return ResultUnknownType
	default:
		return ResultError
	}
}
