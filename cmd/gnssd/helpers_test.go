package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gnssd/internal/forsense"
	"gnssd/internal/replay"
)

const testGPYJ = "GPYJ,2200,345600.50,90.5,1.2,-0.5,0.1,0.2,0.3,0.01,0.02,1.0,31.2,121.5,20.5,1.0,2.0,0.1,2.24,12,10,42,1,OK"

const testGGA = "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"

const testGPATT = "GPATT,1,A,2,R,3,P,4,5,6,7"

// corruptChecksum flips the last checksum digit of an encoded frame.
func corruptChecksum(frame []byte) []byte {
	out := append([]byte(nil), frame...)
	i := len(out) - 3
	if out[i] == '0' {
		out[i] = '1'
	} else {
		out[i] = '0'
	}
	return out
}

func record(at time.Duration, chunk []byte) replay.Record {
	return replay.Record{At: at, Chunk: chunk}
}

func writeCapture(t *testing.T, records []replay.Record) string {
	t.Helper()
	var b strings.Builder
	for _, r := range records {
		if r.IsStart() {
			b.WriteString("START\n")
			continue
		}
		fmt.Fprintf(&b, "%d,%s\n", r.At.Nanoseconds(), hex.EncodeToString(r.Chunk))
	}
	path := filepath.Join(t.TempDir(), "capture.log")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func sampleRecords() []replay.Record {
	gpyj := forsense.EncodeFrame(testGPYJ)
	return []replay.Record{
		{},
		record(0, gpyj[:17]),
		record(100*time.Millisecond, append(gpyj[17:], forsense.EncodeFrame(testGGA)...)),
		record(250*time.Millisecond, corruptChecksum(forsense.EncodeFrame(testGPATT))),
	}
}

// reconnectRecords is a capture where the first connection dropped in the
// middle of a frame.
func reconnectRecords() []replay.Record {
	return []replay.Record{
		{},
		record(0, []byte("$GPYJ,2200,34")),
		{},
		record(10*time.Millisecond, forsense.EncodeFrame(testGGA)),
	}
}
