//go:build !baremetal

package transports

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/serial"
)

// goburrowPollTimeout is the fixed read timeout of a goburrow port. The
// library cannot change it without reopening, so reads return often and the
// bus deadline loop decides when to give up.
const goburrowPollTimeout = 20 * time.Millisecond

// GoburrowTransport implements Port using github.com/goburrow/serial.
type GoburrowTransport struct {
	port   serial.Port
	config serial.Config
	closed bool
}

// OpenGoburrow opens a serial port through goburrow/serial.
func OpenGoburrow(cfg SerialConfig) (*GoburrowTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	cfg.applyDefaults()

	config := serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  goburrowPollTimeout,
	}

	port, err := serial.Open(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &GoburrowTransport{port: port, config: config}, nil
}

func (t *GoburrowTransport) Read(p []byte) (int, error) {
	if t.closed {
		return 0, ErrPortClosed
	}
	n, err := t.port.Read(p)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}

func (t *GoburrowTransport) Write(p []byte) (int, error) {
	if t.closed {
		return 0, ErrPortClosed
	}
	return t.port.Write(p)
}

func (t *GoburrowTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}

// SetReadTimeout is accepted but reads keep polling at goburrowPollTimeout.
func (t *GoburrowTransport) SetReadTimeout(time.Duration) error {
	return nil
}

// SetBaudRate reopens the device at the new speed. If the reopen fails the
// transport stays closed.
func (t *GoburrowTransport) SetBaudRate(baud int) error {
	if t.closed {
		return ErrPortClosed
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close port for baud change: %w", err)
	}
	t.config.BaudRate = baud
	if err := t.port.Open(&t.config); err != nil {
		t.closed = true
		return fmt.Errorf("failed to reopen port at %d baud: %w", baud, err)
	}
	return nil
}

func (t *GoburrowTransport) Flush() error {
	if t.closed {
		return ErrPortClosed
	}
	buf := make([]byte, 256)
	for {
		n, err := t.Read(buf)
		if n == 0 || err != nil {
			return nil
		}
	}
}

// PortName returns the serial port name.
func (t *GoburrowTransport) PortName() string {
	return t.config.Address
}
