package dynamixel

import "sort"

// Register represents a servo control table register.
type Register struct {
	Address  uint16
	Size     int // 1, 2 or 4 bytes
	ReadOnly bool
}

// RegModelNumber sits at the same place in every control table.
var RegModelNumber = Register{Address: 0, Size: 2, ReadOnly: true}

// Register names used by Servo.
const (
	RegNameID                 = "id"
	RegNameBaudRate           = "baud_rate"
	RegNameTorqueEnable       = "torque_enable"
	RegNameGoalPosition       = "goal_position"
	RegNamePresentPosition    = "present_position"
	RegNamePresentVelocity    = "present_velocity"
	RegNamePresentLoad        = "present_load"
	RegNamePresentVoltage     = "present_voltage"
	RegNamePresentTemperature = "present_temperature"
	RegNameMoving             = "moving"
)

// Protocol 1.0 control table shared by the AX and MX series.
var protocol1Registers = map[string]Register{
	// EEPROM
	"model_number":        RegModelNumber,
	"firmware_version":    {Address: 2, Size: 1, ReadOnly: true},
	"id":                  {Address: 3, Size: 1},
	"baud_rate":           {Address: 4, Size: 1},
	"return_delay_time":   {Address: 5, Size: 1},
	"cw_angle_limit":      {Address: 6, Size: 2},
	"ccw_angle_limit":     {Address: 8, Size: 2},
	"temperature_limit":   {Address: 11, Size: 1},
	"min_voltage_limit":   {Address: 12, Size: 1},
	"max_voltage_limit":   {Address: 13, Size: 1},
	"max_torque":          {Address: 14, Size: 2},
	"status_return_level": {Address: 16, Size: 1},
	"alarm_led":           {Address: 17, Size: 1},
	"shutdown":            {Address: 18, Size: 1},

	// RAM
	"torque_enable":       {Address: 24, Size: 1},
	"led":                 {Address: 25, Size: 1},
	"goal_position":       {Address: 30, Size: 2},
	"moving_speed":        {Address: 32, Size: 2},
	"torque_limit":        {Address: 34, Size: 2},
	"present_position":    {Address: 36, Size: 2, ReadOnly: true},
	"present_velocity":    {Address: 38, Size: 2, ReadOnly: true},
	"present_load":        {Address: 40, Size: 2, ReadOnly: true},
	"present_voltage":     {Address: 42, Size: 1, ReadOnly: true},
	"present_temperature": {Address: 43, Size: 1, ReadOnly: true},
	"registered":          {Address: 44, Size: 1, ReadOnly: true},
	"moving":              {Address: 46, Size: 1, ReadOnly: true},
	"lock":                {Address: 47, Size: 1},
	"punch":               {Address: 48, Size: 2},
}

// Protocol 2.0 control table of the X series.
var xSeriesRegisters = map[string]Register{
	// EEPROM
	"model_number":        RegModelNumber,
	"model_information":   {Address: 2, Size: 4, ReadOnly: true},
	"firmware_version":    {Address: 6, Size: 1, ReadOnly: true},
	"id":                  {Address: 7, Size: 1},
	"baud_rate":           {Address: 8, Size: 1},
	"return_delay_time":   {Address: 9, Size: 1},
	"drive_mode":          {Address: 10, Size: 1},
	"operating_mode":      {Address: 11, Size: 1},
	"homing_offset":       {Address: 20, Size: 4},
	"temperature_limit":   {Address: 31, Size: 1},
	"max_voltage_limit":   {Address: 32, Size: 2},
	"min_voltage_limit":   {Address: 34, Size: 2},
	"max_position_limit":  {Address: 48, Size: 4},
	"min_position_limit":  {Address: 52, Size: 4},
	"shutdown":            {Address: 63, Size: 1},
	"status_return_level": {Address: 68, Size: 1},

	// RAM
	"torque_enable":         {Address: 64, Size: 1},
	"led":                   {Address: 65, Size: 1},
	"hardware_error_status": {Address: 70, Size: 1, ReadOnly: true},
	"goal_pwm":              {Address: 100, Size: 2},
	"goal_velocity":         {Address: 104, Size: 4},
	"profile_acceleration":  {Address: 108, Size: 4},
	"profile_velocity":      {Address: 112, Size: 4},
	"goal_position":         {Address: 116, Size: 4},
	"moving":                {Address: 122, Size: 1, ReadOnly: true},
	"moving_status":         {Address: 123, Size: 1, ReadOnly: true},
	"present_pwm":           {Address: 124, Size: 2, ReadOnly: true},
	"present_load":          {Address: 126, Size: 2, ReadOnly: true},
	"present_velocity":      {Address: 128, Size: 4, ReadOnly: true},
	"present_position":      {Address: 132, Size: 4, ReadOnly: true},
	"present_voltage":       {Address: 144, Size: 2, ReadOnly: true},
	"present_temperature":   {Address: 146, Size: 1, ReadOnly: true},
}

// Model represents a servo model specification.
type Model struct {
	Name        string
	Number      int             // Model number returned by ping
	Protocol    ProtocolVersion // Protocol spoken by the factory firmware
	Resolution  int             // Position resolution in steps (e.g., 4096 for 12-bit)
	MaxPosition int             // Maximum position value
	AngleRange  float64         // Degrees covered by 0..MaxPosition

	// Registers maps register names to their definitions.
	Registers map[string]Register
}

// Predefined servo models.
var (
	ModelAX12A = Model{
		Name:        "ax12a",
		Number:      12,
		Protocol:    Protocol1,
		Resolution:  1024,
		MaxPosition: 1023,
		AngleRange:  300,
		Registers:   protocol1Registers,
	}

	ModelMX28 = Model{
		Name:        "mx28",
		Number:      29,
		Protocol:    Protocol1,
		Resolution:  4096,
		MaxPosition: 4095,
		AngleRange:  360,
		Registers:   protocol1Registers,
	}

	ModelXL430W250 = Model{
		Name:        "xl430-w250",
		Number:      1060,
		Protocol:    Protocol2,
		Resolution:  4096,
		MaxPosition: 4095,
		AngleRange:  360,
		Registers:   xSeriesRegisters,
	}

	ModelXM430W350 = Model{
		Name:        "xm430-w350",
		Number:      1020,
		Protocol:    Protocol2,
		Resolution:  4096,
		MaxPosition: 4095,
		AngleRange:  360,
		Registers:   xSeriesRegisters,
	}
)

// modelRegistry holds all known models indexed by name and number.
var modelRegistry = struct {
	byName   map[string]*Model
	byNumber map[int]*Model
}{
	byName:   make(map[string]*Model),
	byNumber: make(map[int]*Model),
}

func init() {
	RegisterModel(&ModelAX12A)
	RegisterModel(&ModelMX28)
	RegisterModel(&ModelXL430W250)
	RegisterModel(&ModelXM430W350)
}

// RegisterModel adds a model to the registry.
func RegisterModel(m *Model) {
	modelRegistry.byName[m.Name] = m
	modelRegistry.byNumber[m.Number] = m
}

// GetModel returns a model by name.
func GetModel(name string) (*Model, bool) {
	m, ok := modelRegistry.byName[name]
	return m, ok
}

// GetModelByNumber returns a model by its hardware model number.
func GetModelByNumber(number int) (*Model, bool) {
	m, ok := modelRegistry.byNumber[number]
	return m, ok
}

// ListModels returns all registered model names, sorted.
func ListModels() []string {
	names := make([]string, 0, len(modelRegistry.byName))
	for name := range modelRegistry.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultModel is the model assumed for a protocol when none is given.
func DefaultModel(version ProtocolVersion) *Model {
	if version == Protocol2 {
		return &ModelXM430W350
	}
	return &ModelMX28
}

// GetRegister returns the register definition for the given name.
func (m *Model) GetRegister(name string) (Register, bool) {
	reg, ok := m.Registers[name]
	return reg, ok
}

// Degrees converts a raw position to degrees from the zero position.
func (m *Model) Degrees(raw int) float64 {
	if m.Resolution == 0 {
		return 0
	}
	return float64(raw) * m.AngleRange / float64(m.MaxPosition+1)
}
