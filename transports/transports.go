// Package transports provides byte-level links to a Dynamixel bus.
package transports

import (
	"errors"
	"io"
	"time"
)

// ErrPortClosed is returned by reopening drivers once their device handle
// is gone, for example after a failed baud rate change.
var ErrPortClosed = errors.New("serial port is closed")

// Serial drivers accepted by Open.
const (
	DriverBugst    = "bugst"
	DriverGoburrow = "goburrow"
	DriverTarm     = "tarm"
)

// Port is an open serial link.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
	SetBaudRate(baud int) error
	Flush() error
}

// SerialConfig holds configuration for opening a serial port.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration

	// Driver is DriverBugst (default), DriverGoburrow or DriverTarm.
	Driver string
}

func (cfg *SerialConfig) applyDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1000000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverBugst
	}
}
