package dynamixel

import (
	"math"
	"testing"
)

func TestCalibrationValidate(t *testing.T) {
	tests := []struct {
		name        string
		calibration Calibration
		expectError bool
	}{
		{"valid calibration", Calibration{RangeMin: 500, RangeMax: 3500, Mode: NormModeDegrees}, false},
		{"invalid range - min >= max", Calibration{RangeMin: 3500, RangeMax: 500, Mode: NormModeDegrees}, true},
		{"invalid range - out of bounds", Calibration{RangeMin: -100, RangeMax: 3500, Mode: NormModeDegrees}, true},
		{"invalid range - beyond model", Calibration{RangeMin: 0, RangeMax: 5000, Mode: NormModeDegrees}, true},
		{"invalid norm mode", Calibration{RangeMin: 500, RangeMax: 3500, Mode: 99}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.calibration.Validate(&ModelMX28)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestNewCalibration(t *testing.T) {
	cal := NewCalibration(&ModelAX12A)
	if cal.RangeMin != 0 || cal.RangeMax != 1023 || cal.Mode != NormModeDegrees {
		t.Errorf("NewCalibration(ax12a) = %+v", cal)
	}
	if err := cal.Validate(&ModelAX12A); err != nil {
		t.Errorf("default calibration should validate: %v", err)
	}
}

func TestParseNormMode(t *testing.T) {
	tests := []struct {
		in      string
		want    NormMode
		wantErr bool
	}{
		{"raw", NormModeRaw, false},
		{"range100", NormModeRange100, false},
		{"range_m100", NormModeRangeM100, false},
		{"degrees", NormModeDegrees, false},
		{"", NormModeDegrees, false},
		{"radians", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseNormMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNormMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNormMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalization(t *testing.T) {
	cal := Calibration{RangeMin: 1000, RangeMax: 3000, Mode: NormModeDegrees}

	tests := []struct {
		name     string
		rawValue int
		expected float64
	}{
		{"center position", 2000, 0.0},
		{"max position", 3000, 180.0},
		{"min position", 1000, -180.0},
		{"quarter position", 1500, -90.0},
		{"three quarter position", 2500, 90.0},
		{"clamped above range", 3500, 180.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := cal.Normalize(tt.rawValue)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("Normalize(%d) = %.2f, want %.2f", tt.rawValue, result, tt.expected)
			}
		})
	}
}

func TestDenormalization(t *testing.T) {
	cal := Calibration{RangeMin: 1000, RangeMax: 3000, Mode: NormModeDegrees}

	tests := []struct {
		name            string
		normalizedValue float64
		expected        int
	}{
		{"center position", 0.0, 2000},
		{"max position", 180.0, 3000},
		{"min position", -180.0, 1000},
		{"quarter position", -90.0, 1500},
		{"three quarter position", 90.0, 2500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := cal.Denormalize(tt.normalizedValue)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(float64(result-tt.expected)) > 1 {
				t.Errorf("Denormalize(%.2f) = %d, want %d", tt.normalizedValue, result, tt.expected)
			}
		})
	}
}

func TestRoundTripNormalization(t *testing.T) {
	modes := []NormMode{NormModeRaw, NormModeRange100, NormModeRangeM100, NormModeDegrees}

	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			cal := Calibration{RangeMin: 500, RangeMax: 3500, Mode: mode}

			for _, rawValue := range []int{500, 1000, 2000, 3000, 3500} {
				normalized, err := cal.Normalize(rawValue)
				if err != nil {
					t.Fatalf("Normalize error: %v", err)
				}

				denormalized, err := cal.Denormalize(normalized)
				if err != nil {
					t.Fatalf("Denormalize error: %v", err)
				}

				if math.Abs(float64(denormalized-rawValue)) > 2 {
					t.Errorf("Round trip failed: %d -> %.2f -> %d", rawValue, normalized, denormalized)
				}
			}
		})
	}
}

func TestInversionAllModes(t *testing.T) {
	testCases := []struct {
		name     string
		mode     NormMode
		testVal  int
		expected float64
	}{
		{"Range100 center", NormModeRange100, 2000, 50.0},
		{"Range100 min", NormModeRange100, 1000, 100.0},
		{"Range100 max", NormModeRange100, 3000, 0.0},

		{"RangeM100 center", NormModeRangeM100, 2000, 0.0},
		{"RangeM100 min", NormModeRangeM100, 1000, 100.0},
		{"RangeM100 max", NormModeRangeM100, 3000, -100.0},

		{"Degrees center", NormModeDegrees, 2000, 0.0},
		{"Degrees min", NormModeDegrees, 1000, 180.0},
		{"Degrees max", NormModeDegrees, 3000, -180.0},

		{"Raw min", NormModeRaw, 1000, 3000.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cal := Calibration{Inverted: true, RangeMin: 1000, RangeMax: 3000, Mode: tc.mode}

			normalized, err := cal.Normalize(tc.testVal)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(normalized-tc.expected) > 0.01 {
				t.Errorf("normalize(%d) = %.2f, want %.2f", tc.testVal, normalized, tc.expected)
			}

			denormalized, err := cal.Denormalize(normalized)
			if err != nil {
				t.Fatalf("Denormalize error: %v", err)
			}
			if math.Abs(float64(denormalized-tc.testVal)) > 1 {
				t.Errorf("Round trip failed: %d -> %.2f -> %d", tc.testVal, normalized, denormalized)
			}
		})
	}
}

func TestCalibrationString(t *testing.T) {
	cal := Calibration{RangeMin: 500, RangeMax: 3500, Mode: NormModeDegrees, HomingOffset: -1470}

	expected := "range[500-3500] degrees normal (offset: -1470)"
	if str := cal.String(); str != expected {
		t.Errorf("String() = %q, want %q", str, expected)
	}
}

func TestHomingOffset(t *testing.T) {
	cal := Calibration{HomingOffset: 100, RangeMin: 1000, RangeMax: 3000, Mode: NormModeDegrees}

	normalized, err := cal.Normalize(2100)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if math.Abs(normalized) > 0.01 {
		t.Errorf("offset center should normalize to 0°, got %.2f°", normalized)
	}

	raw, err := cal.Denormalize(0)
	if err != nil {
		t.Fatalf("Denormalize failed: %v", err)
	}
	if raw != 2100 {
		t.Errorf("Denormalize(0°) = %d, want 2100", raw)
	}
}

func TestNormalizeDegenerateRange(t *testing.T) {
	cal := Calibration{RangeMin: 100, RangeMax: 100}

	if _, err := cal.Normalize(100); err == nil {
		t.Error("expected error for empty range")
	}
	if _, err := cal.Denormalize(0); err == nil {
		t.Error("expected error for empty range")
	}
}

func BenchmarkNormalize(b *testing.B) {
	cal := Calibration{RangeMin: 500, RangeMax: 3500, Mode: NormModeDegrees}

	for i := 0; i < b.N; i++ {
		cal.Normalize(2000)
	}
}
