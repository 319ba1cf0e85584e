package forsense

import (
	"math"

	"gnssd/internal/nav"
	"gnssd/internal/parser"
)

const degToRad = math.Pi / 180

func solutionType(s SatelliteStatus) nav.SolutionType {
	switch s {
	case SatSingle, SatSingleNoHeading:
		return nav.SolSingle
	case SatPseudorangeDiff, SatPseudorangeDiffNoHeading:
		return nav.SolPSRDiff
	case SatDeadReckoning:
		return nav.SolPropagated
	case SatRTKFixed, SatRTKFixedNoHeading:
		return nav.SolRTKFixed
	case SatRTKFloat, SatRTKFloatNoHeading:
		return nav.SolRTKFloat
	default:
		return nav.SolNone
	}
}

func solutionStatus(s SatelliteStatus) nav.SolutionStatus {
	if solutionType(s) == nav.SolNone {
		return nav.SolInsufficientObs
	}
	return nav.SolComputed
}

func insType(s SystemStatus) nav.InsType {
	switch s {
	case SystemIntegratedNav:
		return nav.InsGood
	case SystemSatelliteNav, SystemInertialOnly:
		return nav.InsConverging
	default:
		return nav.InsInvalid
	}
}

// measurementTime is GPS seconds since the GPS epoch.
func (r *GPYJ) measurementTime() float64 {
	return float64(r.GPSWeek)*nav.SecondsPerWeek + r.GPSTime
}

func (r *GPYJ) bestPose() *nav.GnssBestPose {
	sat := r.Status.Satellite()
	return &nav.GnssBestPose{
		MeasurementTime: r.measurementTime(),
		SolStatus:       solutionStatus(sat),
		SolType:         solutionType(sat),
		LatitudeDeg:     r.Latitude,
		LongitudeDeg:    r.Longitude,
		HeightMSL:       r.Altitude,
		NumSatsTracked:  r.NSV1 + r.NSV2,
		NumSatsInSol:    r.NSV1,
		DifferentialAge: float64(r.Age),
	}
}

func (r *GPYJ) imu() *nav.Imu {
	return &nav.Imu{
		MeasurementTime: r.measurementTime(),
		LinearAcceleration: nav.Vec3{
			X: r.AccX * nav.StandardGravity,
			Y: r.AccY * nav.StandardGravity,
			Z: r.AccZ * nav.StandardGravity,
		},
		AngularVelocity: nav.Vec3{
			X: r.GyroX * degToRad,
			Y: r.GyroY * degToRad,
			Z: r.GyroZ * degToRad,
		},
	}
}

func (r *GPYJ) ins() *nav.Ins {
	return &nav.Ins{
		MeasurementTime: r.measurementTime(),
		Position: nav.PointLLH{
			LatDeg:  r.Latitude,
			LonDeg:  r.Longitude,
			HeightM: r.Altitude,
		},
		EulerAngles: nav.Vec3{
			X: r.Roll * degToRad,
			Y: r.Pitch * degToRad,
			Z: r.Heading * degToRad,
		},
		LinearVelocity: nav.Vec3{X: r.VelocityEast, Y: r.VelocityNorth, Z: r.VelocityUp},
		Type:           insType(r.Status.System()),
	}
}

func (r *GPYJ) insStat() *nav.InsStat {
	return &nav.InsStat{
		MeasurementTime: r.measurementTime(),
		InsStatus:       uint32(r.Status.System()),
		PosType:         solutionType(r.Status.Satellite()),
	}
}

func (r *GPYJ) heading() *nav.Heading {
	sat := r.Status.Satellite()
	st := solutionStatus(sat)
	if !sat.HasHeading() {
		st = nav.SolInsufficientObs
	}
	return &nav.Heading{
		MeasurementTime: r.measurementTime(),
		SolStatus:       st,
		PosType:         solutionType(sat),
		HeadingDeg:      r.Heading,
		PitchDeg:        r.Pitch,
		TrackedSats:     r.NSV1 + r.NSV2,
		SolutionSats:    r.NSV2,
	}
}

// Messages fans one record out into the five navigation messages, always in
// the order best pose, IMU, INS, INS status, heading.
func (r *GPYJ) Messages() []parser.ParsedMessage {
	return []parser.ParsedMessage{
		parser.NewRecord(parser.MessageBestGNSSPos, r.bestPose()),
		parser.NewRecord(parser.MessageIMU, r.imu()),
		parser.NewRecord(parser.MessageINS, r.ins()),
		parser.NewRecord(parser.MessageINSStat, r.insStat()),
		parser.NewRecord(parser.MessageHeading, r.heading()),
	}
}

// Messages turns an attitude record into a single heading message. GPATT
// carries no week number, so MeasurementTime is the frame's time field as is.
func (g *GPATT) Messages() []parser.ParsedMessage {
	st := nav.SolComputed
	if !g.Valid() {
		st = nav.SolInsufficientObs
	}
	return []parser.ParsedMessage{
		parser.NewRecord(parser.MessageHeading, &nav.Heading{
			MeasurementTime: g.Time,
			SolStatus:       st,
			HeadingDeg:      g.HeadingAngle,
			PitchDeg:        g.PitchAngle,
			HeadingStdDev:   g.HeadingUncertainty,
			PitchStdDev:     g.PitchUncertainty,
		}),
	}
}
