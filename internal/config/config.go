// internal/config/config.go
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Poll        PollConfig        `yaml:"poll"`
	Calibration CalibrationConfig `yaml:"calibration"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	Driver   string        `yaml:"driver"` // "bugst", "goburrow" or "tarm"
	Timeout  time.Duration `yaml:"timeout"`
}

// ---- ACTUATOR ----

type ActuatorConfig struct {
	ID              int     `yaml:"id"`
	ProtocolVersion float64 `yaml:"protocol_version"`
	Model           string  `yaml:"model"`
}

// ---- POLL ----

type PollConfig struct {
	Iterations     int           `yaml:"iterations"`
	Interval       time.Duration `yaml:"interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// ---- CALIBRATION ----

type CalibrationConfig struct {
	HomingOffset int    `yaml:"homing_offset"`
	Inverted     bool   `yaml:"inverted"`
	Mode         string `yaml:"mode"`
	RangeMin     int    `yaml:"range_min"`
	RangeMax     int    `yaml:"range_max"` // 0 selects the model's full range
}

// Default returns the configuration used when no file is given: an MX-28
// with ID 2 on /dev/ttyUSB0 at 1 Mbps, Protocol 1.0, read once.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 1000000,
			Driver:   "bugst",
			Timeout:  time.Second,
		},
		Actuator: ActuatorConfig{
			ID:              2,
			ProtocolVersion: 1.0,
			Model:           "mx28",
		},
		Poll: PollConfig{
			Iterations:     1,
			Interval:       time.Second,
			ReadTimeout:    5 * time.Second,
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
		},
		Calibration: CalibrationConfig{
			Mode: "degrees",
		},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}
