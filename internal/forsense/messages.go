package forsense

import "fmt"

// Status packs the receiver state: low nibble system status, high nibble
// satellite status.
type Status uint8

func (s Status) System() SystemStatus       { return SystemStatus(s & 0x0F) }
func (s Status) Satellite() SatelliteStatus { return SatelliteStatus(s >> 4) }

type SystemStatus uint8

const (
	SystemInit SystemStatus = iota
	SystemSatelliteNav
	SystemIntegratedNav
	SystemInertialOnly
)

func (s SystemStatus) String() string {
	switch s {
	case SystemInit:
		return "init"
	case SystemSatelliteNav:
		return "satellite_nav"
	case SystemIntegratedNav:
		return "integrated_nav"
	case SystemInertialOnly:
		return "inertial_only"
	default:
		return fmt.Sprintf("system(%d)", uint8(s))
	}
}

type SatelliteStatus uint8

const (
	SatNone SatelliteStatus = iota
	SatSingle
	SatPseudorangeDiff
	SatDeadReckoning
	SatRTKFixed
	SatRTKFloat
	SatSingleNoHeading
	SatPseudorangeDiffNoHeading
	SatRTKFixedNoHeading
	SatRTKFloatNoHeading
)

// HasHeading reports whether the dual-antenna heading is part of the solution.
func (s SatelliteStatus) HasHeading() bool {
	return s >= SatSingle && s <= SatRTKFloat && s != SatDeadReckoning
}

// GPYJ is one $GPYJ/$GPCHC record as sent by the receiver. Angles are
// degrees, gyro rates deg/s, accelerations g, velocities m/s.
type GPYJ struct {
	GPSWeek       int
	GPSTime       float64 // seconds of week
	Heading       float64
	Pitch         float64
	Roll          float64
	GyroX         float64
	GyroY         float64
	GyroZ         float64
	AccX          float64
	AccY          float64
	AccZ          float64
	Latitude      float64
	Longitude     float64
	Altitude      float64
	VelocityEast  float64
	VelocityNorth float64
	VelocityUp    float64
	Speed         float64
	NSV1          int // satellites on the primary antenna
	NSV2          int // satellites on the secondary antenna
	Status        Status
	Age           int // differential age, seconds
	WarningCS     string
}

// GPATT is one $GPATT attitude record.
type GPATT struct {
	Time               float64
	Status             byte // 'A' valid
	RollAngle          float64
	RollIndicator      byte
	PitchAngle         float64
	PitchIndicator     byte
	HeadingAngle       float64
	RollUncertainty    float64
	PitchUncertainty   float64
	HeadingUncertainty float64
}

func (g GPATT) Valid() bool {
	return g.Status == 'A'
}
