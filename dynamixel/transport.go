package dynamixel

import (
	"io"
	"time"
)

// Transport is the interface for low-level communication with the servo bus.
// This abstraction allows for testing with mock implementations.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout sets the read timeout duration.
	SetReadTimeout(timeout time.Duration) error

	// Flush discards any buffered input data.
	Flush() error
}

// BaudRateSetter is implemented by transports that can change line speed
// after they have been opened.
type BaudRateSetter interface {
	SetBaudRate(baud int) error
}
