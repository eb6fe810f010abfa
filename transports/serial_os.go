//go:build !baremetal

package transports

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialTransport implements Port using go.bug.st/serial.
type SerialTransport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
}

// Open opens a serial port with the driver named in cfg.
func Open(cfg SerialConfig) (Port, error) {
	cfg.applyDefaults()

	var (
		port Port
		err  error
	)
	switch cfg.Driver {
	case DriverBugst:
		port, err = OpenSerial(cfg)
	case DriverGoburrow:
		port, err = OpenGoburrow(cfg)
	case DriverTarm:
		port, err = OpenTarm(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return port, nil
}

// OpenSerial opens a serial port with the given configuration.
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	cfg.applyDefaults()

	port, err := serial.Open(cfg.Port, serialMode(cfg.BaudRate))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &SerialTransport{
		port:     port,
		portName: cfg.Port,
		timeout:  cfg.Timeout,
	}, nil
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (t *SerialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *SerialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}

func (t *SerialTransport) SetReadTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return t.port.SetReadTimeout(timeout)
}

// SetBaudRate reprograms the line speed without reopening the device.
func (t *SerialTransport) SetBaudRate(baud int) error {
	return t.port.SetMode(serialMode(baud))
}

func (t *SerialTransport) Flush() error {
	return t.port.ResetInputBuffer()
}

// PortName returns the serial port name.
func (t *SerialTransport) PortName() string {
	return t.portName
}
