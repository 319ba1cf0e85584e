package forsense

import (
	"encoding/hex"
	"fmt"
)

// Checksum is the NMEA-style running XOR of data.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// VerifyChecksum checks data against its 2-hex-character trailer (either case).
func VerifyChecksum(data []byte, crcText []byte) error {
	want, err := parseHexByte(string(crcText))
	if err != nil {
		return fmt.Errorf("%w: bad checksum text %q: %v", ErrChecksumMismatch, crcText, err)
	}
	if got := Checksum(data); got != want {
		return fmt.Errorf("%w: calculated %02X, frame says %q", ErrChecksumMismatch, got, crcText)
	}
	return nil
}

// EncodeFrame wraps body (header token without '$' plus fields) into a
// complete wire frame: $body*HH\r\n.
func EncodeFrame(body string) []byte {
	out := make([]byte, 0, len(body)+1+1+crcLength+len(frameTerminator))
	out = append(out, frameStart)
	out = append(out, body...)
	out = append(out, checksumDelimiter)
	out = fmt.Appendf(out, "%02X", Checksum([]byte(body)))
	out = append(out, frameTerminator...)
	return out
}

func parseHexByte(s string) (byte, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("want 2 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}
