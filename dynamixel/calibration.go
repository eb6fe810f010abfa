package dynamixel

import (
	"fmt"
	"math"
)

// NormMode selects how Calibration renders a raw position.
type NormMode int

// Normalization modes
const (
	NormModeRaw       NormMode = iota // Raw servo values (0-4095 for MX-28)
	NormModeRange100                  // Normalized to 0-100 range
	NormModeRangeM100                 // Normalized to -100 to +100 range
	NormModeDegrees                   // Normalized to -180° to +180° range
)

// ParseNormMode accepts "raw", "range100", "range_m100" and "degrees".
func ParseNormMode(s string) (NormMode, error) {
	switch s {
	case "raw":
		return NormModeRaw, nil
	case "range100":
		return NormModeRange100, nil
	case "range_m100":
		return NormModeRangeM100, nil
	case "degrees", "":
		return NormModeDegrees, nil
	default:
		return 0, fmt.Errorf("unknown normalization mode: %q", s)
	}
}

func (m NormMode) String() string {
	switch m {
	case NormModeRaw:
		return "raw"
	case NormModeRange100:
		return "0-100"
	case NormModeRangeM100:
		return "-100 to +100"
	case NormModeDegrees:
		return "degrees"
	default:
		return "unknown"
	}
}

// Calibration maps raw positions of one servo onto a normalized scale.
type Calibration struct {
	// HomingOffset is subtracted from the raw reading before normalization.
	HomingOffset int
	// Inverted flips the direction of the normalized value.
	Inverted bool
	RangeMin int // Minimum usable position (after homing offset)
	RangeMax int // Maximum usable position (after homing offset)
	Mode     NormMode
}

// NewCalibration returns a full-range degrees calibration for model.
func NewCalibration(model *Model) Calibration {
	return Calibration{
		RangeMin: 0,
		RangeMax: model.MaxPosition,
		Mode:     NormModeDegrees,
	}
}

// Validate checks the calibration against the model's position range.
func (c Calibration) Validate(model *Model) error {
	if c.RangeMin >= c.RangeMax {
		return fmt.Errorf("invalid range: min (%d) must be less than max (%d)", c.RangeMin, c.RangeMax)
	}
	if c.RangeMin < 0 || c.RangeMax > model.MaxPosition {
		return fmt.Errorf("range values must be between 0-%d, got min=%d max=%d", model.MaxPosition, c.RangeMin, c.RangeMax)
	}
	if c.Mode < NormModeRaw || c.Mode > NormModeDegrees {
		return fmt.Errorf("invalid normalization mode: %d", c.Mode)
	}
	return nil
}

func (c Calibration) String() string {
	direction := "normal"
	if c.Inverted {
		direction = "inverted"
	}
	return fmt.Sprintf("range[%d-%d] %s %s (offset: %d)", c.RangeMin, c.RangeMax, c.Mode, direction, c.HomingOffset)
}

// Normalize converts a raw servo position to the calibrated scale.
func (c Calibration) Normalize(raw int) (float64, error) {
	if c.RangeMax == c.RangeMin {
		return 0, fmt.Errorf("invalid calibration: min and max are equal")
	}

	value := float64(raw - c.HomingOffset)
	center := float64(c.RangeMin+c.RangeMax) / 2.0
	halfRange := float64(c.RangeMax-c.RangeMin) / 2.0

	var normalized float64
	switch c.Mode {
	case NormModeRaw:
		normalized = value
		if c.Inverted {
			normalized = 2*center - normalized
		}
		return normalized, nil

	case NormModeRange100:
		normalized = (value - float64(c.RangeMin)) / float64(c.RangeMax-c.RangeMin) * 100.0
		normalized = math.Max(0, math.Min(100, normalized))
		if c.Inverted {
			normalized = 100.0 - normalized
		}

	case NormModeRangeM100:
		normalized = (value - center) / halfRange * 100.0
		normalized = math.Max(-100, math.Min(100, normalized))
		if c.Inverted {
			normalized = -normalized
		}

	case NormModeDegrees:
		normalized = (value - center) / halfRange * 180.0
		normalized = math.Max(-180, math.Min(180, normalized))
		if c.Inverted {
			normalized = -normalized
		}

	default:
		return 0, fmt.Errorf("unknown normalization mode: %d", c.Mode)
	}

	return normalized, nil
}

// Denormalize converts a calibrated value back to a raw goal position.
func (c Calibration) Denormalize(normalized float64) (int, error) {
	if c.RangeMax == c.RangeMin {
		return 0, fmt.Errorf("invalid calibration: min and max are equal")
	}

	center := float64(c.RangeMin+c.RangeMax) / 2.0
	halfRange := float64(c.RangeMax-c.RangeMin) / 2.0

	var raw float64
	switch c.Mode {
	case NormModeRaw:
		if c.Inverted {
			normalized = 2*center - normalized
		}
		raw = normalized

	case NormModeRange100:
		if c.Inverted {
			normalized = 100.0 - normalized
		}
		clamped := math.Max(0, math.Min(100, normalized))
		raw = clamped/100.0*float64(c.RangeMax-c.RangeMin) + float64(c.RangeMin)

	case NormModeRangeM100:
		if c.Inverted {
			normalized = -normalized
		}
		clamped := math.Max(-100, math.Min(100, normalized))
		raw = center + clamped/100.0*halfRange

	case NormModeDegrees:
		if c.Inverted {
			normalized = -normalized
		}
		clamped := math.Max(-180, math.Min(180, normalized))
		raw = center + clamped/180.0*halfRange

	default:
		return 0, fmt.Errorf("unknown normalization mode: %d", c.Mode)
	}

	rawValue := int(math.Round(raw))
	rawValue = max(c.RangeMin, min(c.RangeMax, rawValue))

	return rawValue + c.HomingOffset, nil
}
