//go:build baremetal

package transports

import (
	"errors"
	"fmt"
	"machine"
	"time"
)

// MCUTransport implements Port on a TinyGo UART.
type MCUTransport struct {
	*machine.UART
}

var currentTransport MCUTransport

// Open gets a UART port; Driver is ignored on microcontrollers.
func Open(cfg SerialConfig) (Port, error) {
	t, err := OpenSerial(cfg)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// OpenSerial gets a UART port with the given configuration.
func OpenSerial(cfg SerialConfig) (*MCUTransport, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	cfg.applyDefaults()

	switch cfg.Port {
	case "0":
		currentTransport = MCUTransport{machine.UART0}
	case "1":
		currentTransport = MCUTransport{machine.UART1}
	default:
		return nil, fmt.Errorf("unknown UART %s", cfg.Port)
	}

	currentTransport.UART.SetBaudRate(uint32(cfg.BaudRate))

	return &currentTransport, nil
}

func (t *MCUTransport) SetReadTimeout(time.Duration) error {
	return nil
}

func (t *MCUTransport) SetBaudRate(baud int) error {
	t.UART.SetBaudRate(uint32(baud))
	return nil
}

func (t *MCUTransport) Close() error {
	return nil
}

func (t *MCUTransport) Flush() error {
	for t.UART.Buffered() > 0 {
		t.UART.ReadByte()
	}
	return nil
}
