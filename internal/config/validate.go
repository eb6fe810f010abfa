// internal/config/validate.go
package config

import (
	"fmt"
	"time"

	"github.com/Jimmy-Hu/DynamixelSDK/dynamixel"
	"github.com/Jimmy-Hu/DynamixelSDK/transports"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	if cfg.Device.Port == "" {
		return fmt.Errorf("device.port is required")
	}
	if cfg.Device.BaudRate <= 0 {
		return fmt.Errorf("device.baud_rate must be positive, got %d", cfg.Device.BaudRate)
	}
	switch cfg.Device.Driver {
	case "", transports.DriverBugst, transports.DriverGoburrow, transports.DriverTarm:
	default:
		return fmt.Errorf(
			"device.driver %q is unknown (want %q, %q or %q)",
			cfg.Device.Driver,
			transports.DriverBugst,
			transports.DriverGoburrow,
			transports.DriverTarm,
		)
	}
	if cfg.Device.Timeout <= 0 {
		return fmt.Errorf("device.timeout must be positive, got %s", cfg.Device.Timeout)
	}

	// ------------------------------------------------------------
	// ACTUATOR
	// ------------------------------------------------------------

	if cfg.Actuator.ID < 0 || cfg.Actuator.ID > dynamixel.MaxServoID {
		return fmt.Errorf(
			"actuator.id %d out of range 0-%d",
			cfg.Actuator.ID,
			dynamixel.MaxServoID,
		)
	}

	version, err := dynamixel.ParseProtocolVersion(cfg.Actuator.ProtocolVersion)
	if err != nil {
		return fmt.Errorf("actuator.protocol_version: %w", err)
	}

	model, err := modelFor(cfg.Actuator.Model, version)
	if err != nil {
		return err
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.Iterations < 1 {
		return fmt.Errorf("poll.iterations must be at least 1, got %d", cfg.Poll.Iterations)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"poll.interval", cfg.Poll.Interval},
		{"poll.read_timeout", cfg.Poll.ReadTimeout},
		{"poll.initial_backoff", cfg.Poll.InitialBackoff},
		{"poll.max_backoff", cfg.Poll.MaxBackoff},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if cfg.Poll.InitialBackoff > cfg.Poll.MaxBackoff {
		return fmt.Errorf(
			"poll.initial_backoff (%s) exceeds poll.max_backoff (%s)",
			cfg.Poll.InitialBackoff,
			cfg.Poll.MaxBackoff,
		)
	}

	// ------------------------------------------------------------
	// CALIBRATION
	// ------------------------------------------------------------

	cal, err := cfg.Calibration.resolve(model)
	if err != nil {
		return err
	}
	if err := cal.Validate(model); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	return nil
}

// Protocol returns the parsed actuator protocol version.
func (c *Config) Protocol() (dynamixel.ProtocolVersion, error) {
	return dynamixel.ParseProtocolVersion(c.Actuator.ProtocolVersion)
}

// Model returns the control table for the configured actuator. An empty
// model name selects the protocol's default table.
func (c *Config) Model() (*dynamixel.Model, error) {
	version, err := c.Protocol()
	if err != nil {
		return nil, err
	}
	return modelFor(c.Actuator.Model, version)
}

// ServoCalibration builds the calibration applied to readings.
func (c *Config) ServoCalibration() (dynamixel.Calibration, error) {
	model, err := c.Model()
	if err != nil {
		return dynamixel.Calibration{}, err
	}
	return c.Calibration.resolve(model)
}

func (cc CalibrationConfig) resolve(model *dynamixel.Model) (dynamixel.Calibration, error) {
	mode, err := dynamixel.ParseNormMode(cc.Mode)
	if err != nil {
		return dynamixel.Calibration{}, fmt.Errorf("calibration.mode: %w", err)
	}

	cal := dynamixel.NewCalibration(model)
	cal.HomingOffset = cc.HomingOffset
	cal.Inverted = cc.Inverted
	cal.Mode = mode
	cal.RangeMin = cc.RangeMin
	if cc.RangeMax != 0 {
		cal.RangeMax = cc.RangeMax
	}
	return cal, nil
}

func modelFor(name string, version dynamixel.ProtocolVersion) (*dynamixel.Model, error) {
	if name == "" {
		return dynamixel.DefaultModel(version), nil
	}

	model, ok := dynamixel.GetModel(name)
	if !ok {
		return nil, fmt.Errorf(
			"actuator.model %q is unknown (known: %v)",
			name,
			dynamixel.ListModels(),
		)
	}
	if model.Protocol != version {
		return nil, fmt.Errorf(
			"actuator.model %q speaks protocol %s, not %s",
			name,
			model.Protocol,
			version,
		)
	}
	return model, nil
}
