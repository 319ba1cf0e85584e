// Package sim generates synthetic Forsense output for bench testing without
// a receiver attached.
package sim

import (
	"fmt"
	"math"
	"time"

	"gnssd/internal/forsense"
	"gnssd/internal/nav"
)

const metersPerDegLat = 111320.0

var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

// Vehicle drives a deterministic figure-eight around a center point.
type Vehicle struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltM         float64
	RadiusM      float64
	Period       time.Duration
}

// State is the vehicle's kinematic state at one instant.
type State struct {
	LatDeg        float64
	LonDeg        float64
	AltM          float64
	HeadingDeg    float64
	VelocityEast  float64
	VelocityNorth float64
	YawRateDegS   float64
}

func (v Vehicle) withDefaults() Vehicle {
	if v.Period <= 0 {
		v.Period = 60 * time.Second
	}
	if v.RadiusM <= 0 {
		v.RadiusM = 50
	}
	return v
}

// At returns the state for now. The same now always yields the same state.
func (v Vehicle) At(now time.Time) State {
	v = v.withDefaults()
	period := v.Period.Seconds()
	phase := float64(now.UnixNano()%v.Period.Nanoseconds()) / float64(v.Period.Nanoseconds())

	//	x = R cos(w)      east
	//	y = R/2 sin(2w)   north
	w := 2 * math.Pi * phase
	omega := 2 * math.Pi / period
	x := v.RadiusM * math.Cos(w)
	y := 0.5 * v.RadiusM * math.Sin(2*w)
	ve := -v.RadiusM * omega * math.Sin(w)
	vn := v.RadiusM * omega * math.Cos(2*w)

	// Finite difference keeps the yaw rate consistent with the heading.
	const dt = 0.01
	w2 := w + omega*dt
	ve2 := -v.RadiusM * omega * math.Sin(w2)
	vn2 := v.RadiusM * omega * math.Cos(2*w2)
	h1 := headingDeg(ve, vn)
	dh := math.Remainder(headingDeg(ve2, vn2)-h1, 360)

	return State{
		LatDeg:        v.CenterLatDeg + y/metersPerDegLat,
		LonDeg:        v.CenterLonDeg + x/(metersPerDegLat*math.Cos(v.CenterLatDeg*math.Pi/180)),
		AltM:          v.AltM,
		HeadingDeg:    h1,
		VelocityEast:  ve,
		VelocityNorth: vn,
		YawRateDegS:   dh / dt,
	}
}

func headingDeg(ve, vn float64) float64 {
	return math.Mod(math.Atan2(ve, vn)*180/math.Pi+360, 360)
}

// GPSTime splits now into GPS week and seconds of week. Leap seconds are
// ignored.
func GPSTime(now time.Time) (week int, sec float64) {
	d := now.Sub(gpsEpoch).Seconds()
	week = int(d / nav.SecondsPerWeek)
	return week, d - float64(week)*nav.SecondsPerWeek
}

// Frames returns one GPYJ frame followed by one GPGGA frame for now.
func (v Vehicle) Frames(now time.Time) []byte {
	st := v.At(now)
	out := forsense.EncodeFrame(gpyjBody(now, st))
	return append(out, forsense.EncodeFrame(ggaBody(now, st))...)
}

func gpyjBody(now time.Time, st State) string {
	week, sec := GPSTime(now)
	speed := math.Hypot(st.VelocityEast, st.VelocityNorth)
	const status = 0x42 // RTK fixed, integrated navigation
	return fmt.Sprintf("GPYJ,%d,%.3f,%.3f,%.3f,%.3f,%.4f,%.4f,%.4f,%.5f,%.5f,%.5f,%.8f,%.8f,%.3f,%.3f,%.3f,%.3f,%.3f,%d,%d,%02X,%d,%s",
		week, sec,
		st.HeadingDeg, 0.0, 0.0,
		0.0, 0.0, st.YawRateDegS,
		0.0, 0.0, 1.0,
		st.LatDeg, st.LonDeg, st.AltM,
		st.VelocityEast, st.VelocityNorth, 0.0, speed,
		14, 12, status, 1, "0")
}

func ggaBody(now time.Time, st State) string {
	utc := now.UTC()
	return fmt.Sprintf("GPGGA,%02d%02d%05.2f,%s,%s,4,14,0.8,%.3f,M,0.000,M,1.0,0000",
		utc.Hour(), utc.Minute(), float64(utc.Second())+float64(utc.Nanosecond())/1e9,
		nmeaCoord(st.LatDeg, 2, "N", "S"),
		nmeaCoord(st.LonDeg, 3, "E", "W"),
		st.AltM)
}

func nmeaCoord(deg float64, width int, pos, neg string) string {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	d := math.Floor(deg)
	m := (deg - d) * 60
	return fmt.Sprintf("%0*d%07.4f,%s", width, int(d), m, hemi)
}
