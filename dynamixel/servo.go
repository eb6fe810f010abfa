package dynamixel

import (
	"context"
	"fmt"
)

// Servo provides a high-level interface for controlling a single servo.
type Servo struct {
	bus   *Bus
	id    int
	model *Model
}

// NewServo creates a new Servo instance.
// If model is nil, the default model for the bus protocol is used.
func NewServo(bus *Bus, id int, model *Model) *Servo {
	if model == nil {
		model = DefaultModel(bus.Protocol().Version())
	}
	return &Servo{
		bus:   bus,
		id:    id,
		model: model,
	}
}

// ID returns the servo's ID.
func (s *Servo) ID() int {
	return s.id
}

// Model returns the servo's model specification.
func (s *Servo) Model() *Model {
	return s.model
}

// SetModel changes the servo's model.
func (s *Servo) SetModel(model *Model) {
	s.model = model
}

// Ping verifies communication with the servo and returns the model number.
func (s *Servo) Ping(ctx context.Context) (int, error) {
	return s.bus.Ping(ctx, s.id)
}

// DetectModel pings the servo and sets the model based on the returned model number.
func (s *Servo) DetectModel(ctx context.Context) error {
	modelNum, err := s.bus.Ping(ctx, s.id)
	if err != nil {
		return err
	}

	model, ok := GetModelByNumber(modelNum)
	if !ok {
		return fmt.Errorf("unknown model number: %d", modelNum)
	}
	s.model = model

	return nil
}

// Position reads the present position. Protocol 2.0 tables report a signed
// 32-bit value.
func (s *Servo) Position(ctx context.Context) (int, error) {
	value, reg, err := s.readValue(ctx, RegNamePresentPosition)
	if err != nil {
		return 0, err
	}
	if reg.Size == 4 {
		return int(int32(value)), nil
	}
	return int(value), nil
}

// SetGoalPosition commands the servo to move to the specified position.
func (s *Servo) SetGoalPosition(ctx context.Context, position int) error {
	return s.writeValue(ctx, RegNameGoalPosition, uint32(position))
}

// TorqueEnabled returns whether torque is enabled.
func (s *Servo) TorqueEnabled(ctx context.Context) (bool, error) {
	value, _, err := s.readValue(ctx, RegNameTorqueEnable)
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// SetTorqueEnabled enables or disables torque.
func (s *Servo) SetTorqueEnabled(ctx context.Context, enabled bool) error {
	var val uint32
	if enabled {
		val = 1
	}
	return s.writeValue(ctx, RegNameTorqueEnable, val)
}

// Enable is a convenience alias for SetTorqueEnabled(true).
func (s *Servo) Enable(ctx context.Context) error {
	return s.SetTorqueEnabled(ctx, true)
}

// Disable is a convenience alias for SetTorqueEnabled(false).
func (s *Servo) Disable(ctx context.Context) error {
	return s.SetTorqueEnabled(ctx, false)
}

// Moving returns whether the servo is currently moving.
func (s *Servo) Moving(ctx context.Context) (bool, error) {
	value, _, err := s.readValue(ctx, RegNameMoving)
	if err != nil {
		return false, err
	}
	return value != 0, nil
}

// Voltage reads the current supply voltage in tenths of a volt.
func (s *Servo) Voltage(ctx context.Context) (int, error) {
	value, _, err := s.readValue(ctx, RegNamePresentVoltage)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

// Temperature reads the current temperature in degrees Celsius.
func (s *Servo) Temperature(ctx context.Context) (int, error) {
	value, _, err := s.readValue(ctx, RegNamePresentTemperature)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

// ReadRegister reads a named register.
func (s *Servo) ReadRegister(ctx context.Context, name string) ([]byte, error) {
	reg, ok := s.model.GetRegister(name)
	if !ok {
		return nil, fmt.Errorf("unknown register: %s", name)
	}
	return s.bus.ReadRegister(ctx, s.id, reg.Address, reg.Size)
}

// WriteRegister writes to a named register.
func (s *Servo) WriteRegister(ctx context.Context, name string, data []byte) error {
	reg, ok := s.model.GetRegister(name)
	if !ok {
		return fmt.Errorf("unknown register: %s", name)
	}
	if reg.ReadOnly {
		return fmt.Errorf("register %s is read-only", name)
	}
	if len(data) != reg.Size {
		return fmt.Errorf("data size mismatch: expected %d bytes, got %d", reg.Size, len(data))
	}
	return s.bus.WriteRegister(ctx, s.id, reg.Address, data)
}

func (s *Servo) readValue(ctx context.Context, name string) (uint32, Register, error) {
	reg, ok := s.model.GetRegister(name)
	if !ok {
		return 0, Register{}, fmt.Errorf("unknown register: %s", name)
	}
	data, err := s.bus.ReadRegister(ctx, s.id, reg.Address, reg.Size)
	if err != nil {
		return 0, reg, err
	}
	return DecodeValue(data), reg, nil
}

func (s *Servo) writeValue(ctx context.Context, name string, value uint32) error {
	reg, ok := s.model.GetRegister(name)
	if !ok {
		return fmt.Errorf("unknown register: %s", name)
	}
	return s.bus.WriteRegister(ctx, s.id, reg.Address, EncodeValue(value, reg.Size))
}
