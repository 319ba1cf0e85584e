package forsense

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnssd/internal/nav"
	"gnssd/internal/parser"
)

const gpyjBody = "GPYJ,2200,345600.50,90.5,1.2,-0.5,0.1,0.2,0.3,0.01,0.02,1.0,31.2,121.5,20.5,1.0,2.0,0.1,2.24,12,10,42,1,OK"

const gpattBody = "GPATT,123519.00,A,1.5,R,-2.5,P,270.25,0.1,0.2,0.3"

const ggaBody = "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"

type frameResult struct {
	frameType FrameType
	result    string
	messages  int
}

type recordingObserver struct {
	results []frameResult
}

func (o *recordingObserver) FrameDecoded(ft FrameType, result string, messages int) {
	o.results = append(o.results, frameResult{ft, result, messages})
}

func (o *recordingObserver) last(t *testing.T) frameResult {
	t.Helper()
	require.NotEmpty(t, o.results)
	return o.results[len(o.results)-1]
}

func newTestParser(obs *recordingObserver) *parser.Parser {
	opts := []Option{WithLogger(zerolog.Nop())}
	if obs != nil {
		opts = append(opts, WithObserver(obs))
	}
	return NewParser(0, opts...)
}

func frame(body string) string {
	return string(EncodeFrame(body))
}

func parse(t *testing.T, input string) []parser.ParsedMessage {
	t.Helper()
	p := newTestParser(nil)
	p.AppendData([]byte(input))
	return p.ParseAllMessages()
}

func messageTypes(msgs []parser.ParsedMessage) []parser.MessageType {
	out := make([]parser.MessageType, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type)
	}
	return out
}

var gpyjFanOut = []parser.MessageType{
	parser.MessageBestGNSSPos,
	parser.MessageIMU,
	parser.MessageINS,
	parser.MessageINSStat,
	parser.MessageHeading,
}

func TestEncodeFrame(t *testing.T) {
	got := string(EncodeFrame("GPGGA,1"))
	sum := byte('G') ^ 'P' ^ 'G' ^ 'G' ^ 'A' ^ ',' ^ '1'
	assert.True(t, strings.HasPrefix(got, "$GPGGA,1*"))
	assert.True(t, strings.HasSuffix(got, "\r\n"))
	assert.Equal(t, sum, Checksum([]byte("GPGGA,1")))
	assert.NoError(t, VerifyChecksum([]byte("GPGGA,1"), []byte(got[len(got)-4:len(got)-2])))
}

func TestGPYJ_FanOut(t *testing.T) {
	msgs := parse(t, frame(gpyjBody))
	require.Equal(t, gpyjFanOut, messageTypes(msgs))

	wantTime := 2200*float64(nav.SecondsPerWeek) + 345600.5

	pose := msgs[0].Record.(*nav.GnssBestPose)
	assert.InDelta(t, wantTime, pose.MeasurementTime, 1e-6)
	assert.Equal(t, nav.SolRTKFixed, pose.SolType)
	assert.Equal(t, nav.SolComputed, pose.SolStatus)
	assert.InDelta(t, 31.2, pose.LatitudeDeg, 1e-9)
	assert.InDelta(t, 121.5, pose.LongitudeDeg, 1e-9)
	assert.InDelta(t, 20.5, pose.HeightMSL, 1e-9)
	assert.Equal(t, 22, pose.NumSatsTracked)
	assert.InDelta(t, 1.0, pose.DifferentialAge, 1e-9)

	imu := msgs[1].Record.(*nav.Imu)
	assert.InDelta(t, 1.0*nav.StandardGravity, imu.LinearAcceleration.Z, 1e-9)
	assert.InDelta(t, 0.01*nav.StandardGravity, imu.LinearAcceleration.X, 1e-9)
	assert.InDelta(t, 0.3*degToRad, imu.AngularVelocity.Z, 1e-12)

	ins := msgs[2].Record.(*nav.Ins)
	assert.Equal(t, nav.InsGood, ins.Type)
	assert.InDelta(t, 90.5*degToRad, ins.EulerAngles.Z, 1e-12)
	assert.InDelta(t, -0.5*degToRad, ins.EulerAngles.X, 1e-12)
	assert.Equal(t, nav.Vec3{X: 1.0, Y: 2.0, Z: 0.1}, ins.LinearVelocity)

	stat := msgs[3].Record.(*nav.InsStat)
	assert.Equal(t, uint32(SystemIntegratedNav), stat.InsStatus)
	assert.Equal(t, nav.SolRTKFixed, stat.PosType)

	hdg := msgs[4].Record.(*nav.Heading)
	assert.InDelta(t, 90.5, hdg.HeadingDeg, 1e-9)
	assert.InDelta(t, 1.2, hdg.PitchDeg, 1e-9)
	assert.Equal(t, nav.SolComputed, hdg.SolStatus)
}

func TestGPCHC_UsesGPYJSchema(t *testing.T) {
	body := "GPCHC" + strings.TrimPrefix(gpyjBody, "GPYJ")
	assert.Equal(t, gpyjFanOut, messageTypes(parse(t, frame(body))))
}

func TestGPATT_Heading(t *testing.T) {
	msgs := parse(t, frame(gpattBody))
	require.Len(t, msgs, 1)
	require.Equal(t, parser.MessageHeading, msgs[0].Type)

	hdg := msgs[0].Record.(*nav.Heading)
	assert.InDelta(t, 270.25, hdg.HeadingDeg, 1e-9)
	assert.InDelta(t, -2.5, hdg.PitchDeg, 1e-9)
	assert.InDelta(t, 0.3, hdg.HeadingStdDev, 1e-9)
	assert.InDelta(t, 0.2, hdg.PitchStdDev, 1e-9)
	assert.Equal(t, nav.SolComputed, hdg.SolStatus)

	invalid := strings.Replace(gpattBody, ",A,", ",V,", 1)
	msgs = parse(t, frame(invalid))
	require.Len(t, msgs, 1)
	assert.Equal(t, nav.SolInsufficientObs, msgs[0].Record.(*nav.Heading).SolStatus)
}

func TestGPGGA_Passthrough(t *testing.T) {
	f := frame(ggaBody)
	msgs := parse(t, "noise"+f)
	require.Len(t, msgs, 1)
	assert.Equal(t, parser.MessageGPGGA, msgs[0].Type)
	assert.True(t, msgs[0].IsRaw())
	assert.Equal(t, f, string(msgs[0].Raw))
}

func TestSplitAppendInvariance(t *testing.T) {
	stream := "garbage\r\n" + frame(gpyjBody) + "$G" + frame(ggaBody) + "xx" + frame(gpattBody)
	want := messageTypes(parse(t, stream))
	require.Len(t, want, 7)

	for i := 0; i <= len(stream); i++ {
		p := newTestParser(nil)
		p.AppendData([]byte(stream[:i]))
		got := messageTypes(p.ParseAllMessages())
		p.AppendData([]byte(stream[i:]))
		got = append(got, messageTypes(p.ParseAllMessages())...)
		require.Equal(t, want, got, "split at %d", i)
	}
}

func TestByteAtATime(t *testing.T) {
	stream := frame(ggaBody) + frame(gpyjBody)
	p := newTestParser(nil)
	var got []parser.MessageType
	for i := 0; i < len(stream); i++ {
		p.AppendData([]byte{stream[i]})
		got = append(got, messageTypes(p.ParseAllMessages())...)
	}
	assert.Equal(t, append([]parser.MessageType{parser.MessageGPGGA}, gpyjFanOut...), got)
}

func TestBackToBackFrames(t *testing.T) {
	stream := frame(gpyjBody) + frame(gpyjBody) + frame(gpyjBody)
	assert.Len(t, parse(t, stream), 15)
}

func TestChecksum_CaseInsensitive(t *testing.T) {
	f := frame(gpattBody)
	lower := f[:len(f)-4] + strings.ToLower(f[len(f)-4:])
	assert.Len(t, parse(t, lower), 1)
}

func TestChecksum_BitFlipDropsOnlyThatFrame(t *testing.T) {
	good := frame(gpattBody)
	for i := 1; i < strings.IndexByte(good, '*'); i++ {
		bad := []byte(good)
		bad[i] ^= 0x01
		if bad[i] == ',' || bad[i] == '*' || bad[i] == '$' || bad[i] == '\r' {
			continue
		}
		obs := &recordingObserver{}
		p := newTestParser(obs)
		p.AppendData(append(bad, good...))
		msgs := p.ParseAllMessages()
		if i < len("$GPATT") {
			// A damaged header is skipped as garbage.
			assert.Len(t, msgs, 1, "flip at %d", i)
			continue
		}
		require.Len(t, msgs, 1, "flip at %d", i)
		require.Len(t, obs.results, 2)
		assert.Equal(t, ResultChecksum, obs.results[0].result, "flip at %d", i)
		assert.Equal(t, ResultOK, obs.results[1].result)
	}
}

func TestRejectedFrames(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		result string
	}{
		{"too short", "$GPYJ*0\r\n", ResultTooShort},
		{"bare header", "$GPYJ\r\n", ResultTooShort},
		{"bad delimiter", "$GPYJ,1,2#00\r\n", ResultBadDelimiter},
		{"bad checksum text", "$GPYJ,1,2*ZZ\r\n", ResultChecksum},
		{"wrong checksum", "$GPYJ,1,2*00\r\n", ResultChecksum},
		{"too many fields", frame(gpyjBody + ",extra"), ResultFieldCount},
		{"bad float", frame(strings.Replace(gpyjBody, "90.5", "90.5x", 1)), ResultFieldDecode},
		{"bad int", frame(strings.Replace(gpyjBody, "2200", "22.0", 1)), ResultFieldDecode},
		{"status too long", frame(strings.Replace(gpyjBody, ",42,", ",042,", 1)), ResultFieldDecode},
		{"status not hex", frame(strings.Replace(gpyjBody, ",42,", ",4G,", 1)), ResultFieldDecode},
		{"nan", frame(strings.Replace(gpyjBody, "90.5", "NaN", 1)), ResultFieldDecode},
		{"hex float", frame(strings.Replace(gpyjBody, "90.5", "0x1p4", 1)), ResultFieldDecode},
		{"digit separator", frame(strings.Replace(gpyjBody, "90.5", "9_0.5", 1)), ResultFieldDecode},
		{"indicator too long", frame(strings.Replace(gpattBody, ",R,", ",RR,", 1)), ResultFieldDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			p := newTestParser(obs)
			p.AppendData([]byte(tt.input + frame(ggaBody)))

			msgs := p.ParseAllMessages()
			require.Len(t, msgs, 1, "following frame must survive")
			assert.Equal(t, parser.MessageGPGGA, msgs[0].Type)
			require.Len(t, obs.results, 2)
			assert.Equal(t, tt.result, obs.results[0].result)
			assert.Zero(t, obs.results[0].messages)
			assert.Zero(t, p.Buffered())
		})
	}
}

func TestFewerFieldsThanSchema(t *testing.T) {
	msgs := parse(t, frame("GPYJ,2200,10.5"))
	require.Equal(t, gpyjFanOut, messageTypes(msgs))
	pose := msgs[0].Record.(*nav.GnssBestPose)
	assert.InDelta(t, 2200*float64(nav.SecondsPerWeek)+10.5, pose.MeasurementTime, 1e-6)
	assert.Equal(t, nav.SolNone, pose.SolType)
}

func TestFewerFieldsThanSchema_LoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	p := NewParser(0, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	p.AppendData([]byte(frame("GPATT,1,A") + frame(gpattBody)))
	require.Len(t, p.ParseAllMessages(), 2)

	assert.Equal(t, 1, strings.Count(buf.String(), "short frame"))
	assert.Contains(t, buf.String(), `"fields":2`)
	assert.Contains(t, buf.String(), `"schema_fields":10`)
}

func TestSignAndSpaceNormalization(t *testing.T) {
	body := strings.Replace(gpyjBody, ",90.5,", ",- 90.5 ,", 1)
	msgs := parse(t, frame(body))
	require.Len(t, msgs, 5)
	assert.InDelta(t, -90.5, msgs[4].Record.(*nav.Heading).HeadingDeg, 1e-9)
}

func TestPartialHeaderIsKept(t *testing.T) {
	obs := &recordingObserver{}
	p := newTestParser(obs)
	p.AppendData([]byte("junk$GP"))

	assert.Empty(t, p.ParseAllMessages())
	assert.Equal(t, parser.SeekHeader, p.State())
	assert.Equal(t, 3, p.Buffered())

	// Calling again without data makes no progress and returns.
	assert.Empty(t, p.ParseAllMessages())
	assert.Equal(t, 3, p.Buffered())

	p.AppendData([]byte(strings.TrimPrefix(frame(ggaBody), "$GP")))
	msgs := p.ParseAllMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, frame(ggaBody), string(msgs[0].Raw))
}

func TestGarbageWithoutHeaderIsDropped(t *testing.T) {
	p := newTestParser(nil)
	p.AppendData([]byte("hello world\r\n*12\r\n"))
	assert.Empty(t, p.ParseAllMessages())
	assert.Zero(t, p.Buffered())
}

func TestEarliestHeaderWins(t *testing.T) {
	stream := frame(ggaBody) + frame(gpyjBody)
	msgs := parse(t, stream)
	require.Len(t, msgs, 6)
	assert.Equal(t, parser.MessageGPGGA, msgs[0].Type)
	assert.Equal(t, parser.MessageBestGNSSPos, msgs[1].Type)
}

func TestHeaderTieGoesToLongerToken(t *testing.T) {
	h := NewHandler(WithLogger(zerolog.Nop()))
	h.headers = []header{
		{token: []byte("$GP"), frameType: "SHORT"},
		{token: []byte("$GPGGA"), frameType: FrameGPGGA},
	}
	p := parser.New(h, parser.WithLogger(zerolog.Nop()))
	p.AppendData([]byte(frame(ggaBody)))
	msgs := p.ParseAllMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, parser.MessageGPGGA, msgs[0].Type)
}

func TestUnknownFrameType(t *testing.T) {
	obs := &recordingObserver{}
	h := NewHandler(WithLogger(zerolog.Nop()), WithObserver(obs))
	h.headers = []header{{token: []byte("$GPXX"), frameType: "GPXX"}}
	p := parser.New(h, parser.WithLogger(zerolog.Nop()))
	p.AppendData([]byte(frame("GPXX,1,2")))

	assert.Empty(t, p.ParseAllMessages())
	assert.Equal(t, ResultUnknownType, obs.last(t).result)
	assert.Zero(t, p.Buffered())
}

func TestOverflowResynchronizes(t *testing.T) {
	p := NewParser(128, WithLogger(zerolog.Nop()))
	// A header whose frame never completes before the buffer overflows.
	p.AppendData([]byte("$GPYJ,1,2,3"))
	assert.Empty(t, p.ParseAllMessages())

	p.AppendData([]byte(strings.Repeat("z", 60)))
	p.AppendData([]byte(frame(ggaBody)))
	msgs := p.ParseAllMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, parser.MessageGPGGA, msgs[0].Type)
}
