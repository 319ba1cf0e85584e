package forsense

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const fieldSeparator = ","

// field decodes one comma-separated token into its slot of a record.
type field[T any] struct {
	name   string
	decode func(tok string, rec *T) error
}

func intField[T any](name string, slot func(*T) *int) field[T] {
	return field[T]{name: name, decode: func(tok string, rec *T) error {
		v, err := parseInt(tok)
		if err != nil {
			return err
		}
		*slot(rec) = v
		return nil
	}}
}

func floatField[T any](name string, slot func(*T) *float64) field[T] {
	return field[T]{name: name, decode: func(tok string, rec *T) error {
		v, err := parseFloat(tok)
		if err != nil {
			return err
		}
		*slot(rec) = v
		return nil
	}}
}

func charField[T any](name string, slot func(*T) *byte) field[T] {
	return field[T]{name: name, decode: func(tok string, rec *T) error {
		if len(tok) != 1 {
			return fmt.Errorf("want 1 char, got %d", len(tok))
		}
		*slot(rec) = tok[0]
		return nil
	}}
}

var gpyjFields = []field[GPYJ]{
	intField("gps_week", func(r *GPYJ) *int { return &r.GPSWeek }),
	floatField("gps_time", func(r *GPYJ) *float64 { return &r.GPSTime }),
	floatField("heading", func(r *GPYJ) *float64 { return &r.Heading }),
	floatField("pitch", func(r *GPYJ) *float64 { return &r.Pitch }),
	floatField("roll", func(r *GPYJ) *float64 { return &r.Roll }),
	floatField("gyro_x", func(r *GPYJ) *float64 { return &r.GyroX }),
	floatField("gyro_y", func(r *GPYJ) *float64 { return &r.GyroY }),
	floatField("gyro_z", func(r *GPYJ) *float64 { return &r.GyroZ }),
	floatField("acc_x", func(r *GPYJ) *float64 { return &r.AccX }),
	floatField("acc_y", func(r *GPYJ) *float64 { return &r.AccY }),
	floatField("acc_z", func(r *GPYJ) *float64 { return &r.AccZ }),
	floatField("latitude", func(r *GPYJ) *float64 { return &r.Latitude }),
	floatField("longitude", func(r *GPYJ) *float64 { return &r.Longitude }),
	floatField("altitude", func(r *GPYJ) *float64 { return &r.Altitude }),
	floatField("velocity_east", func(r *GPYJ) *float64 { return &r.VelocityEast }),
	floatField("velocity_north", func(r *GPYJ) *float64 { return &r.VelocityNorth }),
	floatField("velocity_up", func(r *GPYJ) *float64 { return &r.VelocityUp }),
	floatField("speed", func(r *GPYJ) *float64 { return &r.Speed }),
	intField("nsv1", func(r *GPYJ) *int { return &r.NSV1 }),
	intField("nsv2", func(r *GPYJ) *int { return &r.NSV2 }),
	{name: "status", decode: func(tok string, r *GPYJ) error {
		b, err := parseHexByte(tok)
		if err != nil {
			return err
		}
		r.Status = Status(b)
		return nil
	}},
	intField("age", func(r *GPYJ) *int { return &r.Age }),
	{name: "warning_cs", decode: func(tok string, r *GPYJ) error {
		r.WarningCS = tok
		return nil
	}},
}

var gpattFields = []field[GPATT]{
	floatField("time", func(r *GPATT) *float64 { return &r.Time }),
	charField("status", func(r *GPATT) *byte { return &r.Status }),
	floatField("roll_angle", func(r *GPATT) *float64 { return &r.RollAngle }),
	charField("indicator_of_roll", func(r *GPATT) *byte { return &r.RollIndicator }),
	floatField("pitch_angle", func(r *GPATT) *float64 { return &r.PitchAngle }),
	charField("indicator_of_pitch", func(r *GPATT) *byte { return &r.PitchIndicator }),
	floatField("heading_angle", func(r *GPATT) *float64 { return &r.HeadingAngle }),
	floatField("roll_angle_uncertainty", func(r *GPATT) *float64 { return &r.RollUncertainty }),
	floatField("pitch_angle_uncertainty", func(r *GPATT) *float64 { return &r.PitchUncertainty }),
	floatField("heading_angle_uncertainty", func(r *GPATT) *float64 { return &r.HeadingUncertainty }),
}

// decodeFields splits payload (header token first, no checksum) and applies
// schema entry i to token i+1. Missing trailing tokens leave zero values;
// more tokens than the schema allows is an error.
func decodeFields[T any](payload []byte, schema []field[T]) (T, error) {
	var rec T
	tokens := strings.Split(string(payload), fieldSeparator)
	if len(tokens) > len(schema)+1 {
		return rec, fmt.Errorf("%w: %d fields, schema has %d", ErrFieldCount, len(tokens)-1, len(schema))
	}
	for i := 0; i < len(schema) && i+1 < len(tokens); i++ {
		tok := tokens[i+1]
		if err := schema[i].decode(tok, &rec); err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %s=%q: %v", ErrFieldDecode, schema[i].name, tok, err)
		}
	}
	return rec, nil
}

// cleanNumber keeps a leading sign, drops spaces after it and trailing
// spaces. A sign with nothing behind it yields "".
func cleanNumber(s string) string {
	if s == "" {
		return ""
	}
	var sign string
	if s[0] == '+' || s[0] == '-' {
		sign, s = s[:1], s[1:]
	}
	s = strings.TrimRight(strings.TrimLeft(s, " "), " ")
	if s == "" {
		return ""
	}
	return sign + s
}

func parseInt(tok string) (int, error) {
	v, err := strconv.ParseInt(cleanNumber(tok), 10, 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func parseFloat(tok string) (float64, error) {
	s := cleanNumber(tok)
	// strconv also takes hex floats and digit separators; the sensor sends
	// neither.
	if strings.ContainsAny(s, "xX_") {
		return 0, fmt.Errorf("invalid decimal %q", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
