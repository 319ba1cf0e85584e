// Package nav holds the receiver-independent navigation records produced by
// the frame decoders.
package nav

import "fmt"

// SecondsPerWeek converts a GPS week number to seconds.
const SecondsPerWeek = 604800

// StandardGravity is g in m/s^2.
const StandardGravity = 9.80665

type SolutionStatus int

const (
	SolComputed SolutionStatus = iota
	SolInsufficientObs
	SolColdStart
)

func (s SolutionStatus) String() string {
	switch s {
	case SolComputed:
		return "computed"
	case SolInsufficientObs:
		return "insufficient_obs"
	case SolColdStart:
		return "cold_start"
	default:
		return fmt.Sprintf("sol_status(%d)", int(s))
	}
}

func (s SolutionStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SolutionType is the positioning mode behind a fix.
type SolutionType int

const (
	SolNone SolutionType = iota
	SolSingle
	SolPSRDiff
	SolPropagated
	SolRTKFloat
	SolRTKFixed
	SolINSPSRSP
	SolINSPSRDiff
	SolINSRTKFloat
	SolINSRTKFixed
)

var solutionTypeNames = [...]string{
	SolNone:        "none",
	SolSingle:      "single",
	SolPSRDiff:     "psrdiff",
	SolPropagated:  "propagated",
	SolRTKFloat:    "rtk_float",
	SolRTKFixed:    "rtk_fixed",
	SolINSPSRSP:    "ins_psrsp",
	SolINSPSRDiff:  "ins_psrdiff",
	SolINSRTKFloat: "ins_rtk_float",
	SolINSRTKFixed: "ins_rtk_fixed",
}

func (t SolutionType) String() string {
	if t >= 0 && int(t) < len(solutionTypeNames) {
		return solutionTypeNames[t]
	}
	return fmt.Sprintf("sol_type(%d)", int(t))
}

func (t SolutionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Valid reports whether the solution carries a usable position.
func (t SolutionType) Valid() bool {
	return t != SolNone
}

type InsType int

const (
	InsInvalid InsType = iota
	InsConverging
	InsGood
)

func (t InsType) String() string {
	switch t {
	case InsInvalid:
		return "invalid"
	case InsConverging:
		return "converging"
	case InsGood:
		return "good"
	default:
		return fmt.Sprintf("ins_type(%d)", int(t))
	}
}

func (t InsType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type PointLLH struct {
	LatDeg  float64 `json:"lat_deg"`
	LonDeg  float64 `json:"lon_deg"`
	HeightM float64 `json:"height_m"`
}

// GnssBestPose is the best available GNSS position.
type GnssBestPose struct {
	MeasurementTime float64        `json:"measurement_time"`
	SolStatus       SolutionStatus `json:"sol_status"`
	SolType         SolutionType   `json:"sol_type"`
	LatitudeDeg     float64        `json:"latitude_deg"`
	LongitudeDeg    float64        `json:"longitude_deg"`
	HeightMSL       float64        `json:"height_msl"`
	NumSatsTracked  int            `json:"num_sats_tracked"`
	NumSatsInSol    int            `json:"num_sats_in_sol"`
	DifferentialAge float64        `json:"differential_age"`
}

// Imu is body-frame inertial data in SI units.
type Imu struct {
	MeasurementTime    float64 `json:"measurement_time"`
	LinearAcceleration Vec3    `json:"linear_acceleration"` // m/s^2
	AngularVelocity    Vec3    `json:"angular_velocity"`    // rad/s
}

// Ins is the integrated navigation solution.
//
// EulerAngles are radians: X roll, Y pitch, Z heading clockwise from true
// north. LinearVelocity is east/north/up in m/s.
type Ins struct {
	MeasurementTime float64  `json:"measurement_time"`
	Position        PointLLH `json:"position"`
	EulerAngles     Vec3     `json:"euler_angles"`
	LinearVelocity  Vec3     `json:"linear_velocity"`
	Type            InsType  `json:"type"`
}

type InsStat struct {
	MeasurementTime float64      `json:"measurement_time"`
	InsStatus       uint32       `json:"ins_status"`
	PosType         SolutionType `json:"pos_type"`
}

type Heading struct {
	MeasurementTime float64        `json:"measurement_time"`
	SolStatus       SolutionStatus `json:"sol_status"`
	PosType         SolutionType   `json:"pos_type"`
	HeadingDeg      float64        `json:"heading_deg"`
	PitchDeg        float64        `json:"pitch_deg"`
	HeadingStdDev   float64        `json:"heading_std_dev"`
	PitchStdDev     float64        `json:"pitch_std_dev"`
	TrackedSats     int            `json:"tracked_sats"`
	SolutionSats    int            `json:"solution_sats"`
}
