//go:build !baremetal

package transports

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// TarmTransport implements Port using github.com/tarm/serial. Like the
// goburrow driver, its read timeout is fixed when the port is opened.
type TarmTransport struct {
	port   *serial.Port
	config serial.Config
}

// OpenTarm opens a serial port through tarm/serial.
func OpenTarm(cfg SerialConfig) (*TarmTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	cfg.applyDefaults()

	config := serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: tarmPollTimeout,
	}

	port, err := serial.OpenPort(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &TarmTransport{port: port, config: config}, nil
}

// tarmPollTimeout is rounded to tenths of a second by the driver on POSIX.
const tarmPollTimeout = 100 * time.Millisecond

func (t *TarmTransport) Read(p []byte) (int, error) {
	if t.port == nil {
		return 0, ErrPortClosed
	}
	n, err := t.port.Read(p)
	if err == io.EOF {
		// An expired read timeout surfaces as EOF.
		return n, nil
	}
	return n, err
}

func (t *TarmTransport) Write(p []byte) (int, error) {
	if t.port == nil {
		return 0, ErrPortClosed
	}
	return t.port.Write(p)
}

func (t *TarmTransport) Close() error {
	if t.port == nil {
		return nil
	}
	port := t.port
	t.port = nil
	return port.Close()
}

// SetReadTimeout is accepted but reads keep polling at tarmPollTimeout.
func (t *TarmTransport) SetReadTimeout(time.Duration) error {
	return nil
}

// SetBaudRate reopens the device at the new speed. If the reopen fails the
// transport stays closed.
func (t *TarmTransport) SetBaudRate(baud int) error {
	if t.port == nil {
		return ErrPortClosed
	}
	port := t.port
	t.port = nil
	if err := port.Close(); err != nil {
		return fmt.Errorf("failed to close port for baud change: %w", err)
	}
	t.config.Baud = baud
	port, err := serial.OpenPort(&t.config)
	if err != nil {
		return fmt.Errorf("failed to reopen port at %d baud: %w", baud, err)
	}
	t.port = port
	return nil
}

func (t *TarmTransport) Flush() error {
	if t.port == nil {
		return ErrPortClosed
	}
	return t.port.Flush()
}

// PortName returns the serial port name.
func (t *TarmTransport) PortName() string {
	return t.config.Name
}
