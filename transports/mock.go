package transports

import (
	"io"
	"time"
)

// MockTransport implements Port for testing.
type MockTransport struct {
	ReadData    []byte
	ReadErr     error
	WriteData   []byte
	WriteErr    error
	Closed      bool
	ReadTimeout time.Duration
	Flushed     bool
	FlushErr    error

	// BaudRate is the last rate passed to SetBaudRate; BaudErr fails it.
	BaudRate int
	BaudErr  error

	// Writes records every packet separately, in order.
	Writes [][]byte

	// ReadFunc allows custom read behavior for complex tests
	ReadFunc func(p []byte) (int, error)

	// Respond, if set, is called for every written packet and its result is
	// queued on ReadData. Return nil to simulate a silent device.
	Respond func(packet []byte) []byte
}

func (m *MockTransport) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	n := copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (m *MockTransport) Write(p []byte) (int, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.WriteData = append(m.WriteData, p...)
	m.Writes = append(m.Writes, append([]byte(nil), p...))
	if m.Respond != nil {
		m.ReadData = append(m.ReadData, m.Respond(p)...)
	}
	return len(p), nil
}

func (m *MockTransport) Close() error {
	m.Closed = true
	return nil
}

func (m *MockTransport) SetReadTimeout(timeout time.Duration) error {
	m.ReadTimeout = timeout
	return nil
}

func (m *MockTransport) SetBaudRate(baud int) error {
	if m.BaudErr != nil {
		return m.BaudErr
	}
	m.BaudRate = baud
	return nil
}

func (m *MockTransport) Flush() error {
	if m.FlushErr != nil {
		return m.FlushErr
	}
	m.Flushed = true
	// Don't clear ReadData - tests need to preserve mock response data
	return nil
}
