package dynamixel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Jimmy-Hu/DynamixelSDK/transports"
)

// port is the serial line shared by every protocol view of a Bus.
type port struct {
	transport Transport

	mu          sync.Mutex
	lastCmdTime time.Time
	minCmdGap   time.Duration
	baudRate    int
	closed      bool
}

// Bus manages communication with servos on a Dynamixel bus.
type Bus struct {
	port     *port
	protocol Protocol
	timeout  time.Duration
}

// BusConfig holds configuration for creating a new Bus.
type BusConfig struct {
	// Transport is the underlying communication transport.
	// If nil, Port must be specified to open a serial connection.
	Transport Transport

	// Port is the serial port path (e.g., "/dev/ttyUSB0").
	// Ignored if Transport is provided.
	Port string

	// Driver selects the serial implementation ("bugst", "goburrow" or "tarm").
	// Empty means "bugst". Ignored if Transport is provided.
	Driver string

	// BaudRate is the communication speed. Default is 1000000.
	BaudRate int

	// Protocol version: Protocol1 (default) or Protocol2.
	Protocol ProtocolVersion

	// Timeout for communication operations. Default is 1 second.
	Timeout time.Duration

	// MinCommandGap is the minimum time between commands. Default is 1ms.
	MinCommandGap time.Duration
}

// NewBus creates a new servo bus with the given configuration.
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1000000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.MinCommandGap == 0 {
		cfg.MinCommandGap = time.Millisecond
	}
	if cfg.Protocol == 0 {
		cfg.Protocol = Protocol1
	}

	protocol, err := NewProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Port == "" {
			return nil, errors.New("either Transport or Port must be specified")
		}
		transport, err = transports.Open(transports.SerialConfig{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
			Timeout:  cfg.Timeout,
			Driver:   cfg.Driver,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port: %w", err)
		}
	}

	return &Bus{
		port: &port{
			transport:   transport,
			minCmdGap:   cfg.MinCommandGap,
			lastCmdTime: time.Now(),
			baudRate:    cfg.BaudRate,
		},
		protocol: protocol,
		timeout:  cfg.Timeout,
	}, nil
}

// WithProtocol returns a view of the bus that speaks another protocol
// version over the same port. Views share the port lock and Close state.
func (b *Bus) WithProtocol(version ProtocolVersion) (*Bus, error) {
	protocol, err := NewProtocol(version)
	if err != nil {
		return nil, err
	}
	return &Bus{port: b.port, protocol: protocol, timeout: b.timeout}, nil
}

// Close closes the bus and releases resources.
func (b *Bus) Close() error {
	b.port.mu.Lock()
	defer b.port.mu.Unlock()

	if b.port.closed {
		return nil
	}
	b.port.closed = true

	return b.port.transport.Close()
}

// Protocol returns the protocol handler for this bus.
func (b *Bus) Protocol() Protocol {
	return b.protocol
}

// BaudRate returns the last line speed applied to the port.
func (b *Bus) BaudRate() int {
	b.port.mu.Lock()
	defer b.port.mu.Unlock()
	return b.port.baudRate
}

// SetBaudRate changes the line speed of the underlying port.
func (b *Bus) SetBaudRate(baud int) error {
	if baud <= 0 {
		return fmt.Errorf("invalid baud rate: %d", baud)
	}

	b.port.mu.Lock()
	defer b.port.mu.Unlock()

	if b.port.closed {
		return ErrBusClosed
	}

	setter, ok := b.port.transport.(BaudRateSetter)
	if !ok {
		return &CommError{Op: "set_baud_rate", Result: CommNotAvailable, Err: ErrNotSupported}
	}
	if err := setter.SetBaudRate(baud); err != nil {
		return fmt.Errorf("set baud rate %d: %w", baud, err)
	}

	b.port.baudRate = baud
	return nil
}

// Ping sends a ping to the specified servo and returns the model number.
func (b *Bus) Ping(ctx context.Context, id int) (int, error) {
	if err := b.validateID(id); err != nil {
		return 0, err
	}

	b.port.mu.Lock()
	defer b.port.mu.Unlock()

	if b.port.closed {
		return 0, ErrBusClosed
	}

	packet := b.protocol.PingPacket(byte(id))
	if err := b.sendPacketLocked(packet); err != nil {
		return 0, &CommError{Op: "ping", Result: CommTxFail, Err: err}
	}

	// Protocol 2.0 answers with model number and firmware version.
	dataLen := 0
	if b.protocol.Version() == Protocol2 {
		dataLen = 3
	}

	resp, err := b.readStatusLocked(ctx, "ping", byte(id), dataLen)
	if err != nil {
		return 0, err
	}

	if b.protocol.Version() == Protocol2 {
		return int(DecodeWord(resp.Parameters)), nil
	}

	modelData, err := b.readRegisterLocked(ctx, "read model", byte(id), RegModelNumber.Address, uint16(RegModelNumber.Size))
	if err != nil {
		return 0, err
	}

	return int(DecodeWord(modelData)), nil
}

// ReadRegister reads length bytes starting at address.
func (b *Bus) ReadRegister(ctx context.Context, id int, address uint16, length int) ([]byte, error) {
	if err := b.validateID(id); err != nil {
		return nil, err
	}
	if length <= 0 || length > 0xFF {
		return nil, &CommError{Op: "read", Result: CommTxError, Err: fmt.Errorf("invalid read length %d", length)}
	}
	if address > b.protocol.MaxAddress() {
		return nil, &CommError{Op: "read", Result: CommTxError, Err: fmt.Errorf("address %d exceeds protocol %s range", address, b.protocol.Version())}
	}

	b.port.mu.Lock()
	defer b.port.mu.Unlock()

	if b.port.closed {
		return nil, ErrBusClosed
	}

	return b.readRegisterLocked(ctx, "read", byte(id), address, uint16(length))
}

// WriteRegister writes bytes starting at address. Writes to BroadcastID are
// not acknowledged.
func (b *Bus) WriteRegister(ctx context.Context, id int, address uint16, data []byte) error {
	if id != BroadcastID {
		if err := b.validateID(id); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		return &CommError{Op: "write", Result: CommTxError, Err: errors.New("empty write")}
	}
	if address > b.protocol.MaxAddress() {
		return &CommError{Op: "write", Result: CommTxError, Err: fmt.Errorf("address %d exceeds protocol %s range", address, b.protocol.Version())}
	}

	b.port.mu.Lock()
	defer b.port.mu.Unlock()

	if b.port.closed {
		return ErrBusClosed
	}

	packet := b.protocol.WritePacket(byte(id), address, data)
	if err := b.sendPacketLocked(packet); err != nil {
		return &CommError{Op: "write", Result: CommTxFail, Err: err}
	}

	if id == BroadcastID {
		return nil
	}

	_, err := b.readStatusLocked(ctx, "write", byte(id), 0)
	return err
}

// Read1Byte reads a single byte register.
func (b *Bus) Read1Byte(ctx context.Context, id int, address uint16) (uint8, error) {
	data, err := b.ReadRegister(ctx, id, address, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// Read2Byte reads a 16-bit register.
func (b *Bus) Read2Byte(ctx context.Context, id int, address uint16) (uint16, error) {
	data, err := b.ReadRegister(ctx, id, address, 2)
	if err != nil {
		return 0, err
	}
	return DecodeWord(data), nil
}

// Read4Byte reads a 32-bit register.
func (b *Bus) Read4Byte(ctx context.Context, id int, address uint16) (uint32, error) {
	data, err := b.ReadRegister(ctx, id, address, 4)
	if err != nil {
		return 0, err
	}
	return DecodeDWord(data), nil
}

// Write1Byte writes a single byte register.
func (b *Bus) Write1Byte(ctx context.Context, id int, address uint16, value uint8) error {
	return b.WriteRegister(ctx, id, address, []byte{value})
}

// Write2Byte writes a 16-bit register.
func (b *Bus) Write2Byte(ctx context.Context, id int, address uint16, value uint16) error {
	return b.WriteRegister(ctx, id, address, EncodeWord(value))
}

// Write4Byte writes a 32-bit register.
func (b *Bus) Write4Byte(ctx context.Context, id int, address uint16, value uint32) error {
	return b.WriteRegister(ctx, id, address, EncodeDWord(value))
}

// Scan searches for servos by pinging each ID in the range.
func (b *Bus) Scan(ctx context.Context, startID, endID int) ([]FoundServo, error) {
	if startID < 0 || endID > MaxServoID || startID > endID {
		return nil, fmt.Errorf("invalid ID range: %d to %d", startID, endID)
	}

	var found []FoundServo

	for id := startID; id <= endID; id++ {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		modelNum, err := b.Ping(ctx, id)
		if err != nil {
			if errors.Is(err, ErrBusClosed) {
				return found, err
			}
			continue // No response at this ID
		}

		f := FoundServo{
			ID:          id,
			ModelNumber: modelNum,
		}

		if model, ok := GetModelByNumber(modelNum); ok {
			f.Model = model
		}

		found = append(found, f)
	}

	return found, nil
}

// FoundServo represents a servo discovered during scanning.
type FoundServo struct {
	ID          int
	ModelNumber int
	Model       *Model // May be nil if model is unknown
}

// Internal methods

func (b *Bus) validateID(id int) error {
	if id < 0 || id > MaxServoID {
		return fmt.Errorf("%w: %d (valid range: 0-%d)", ErrInvalidID, id, MaxServoID)
	}
	return nil
}

func (b *Bus) enforceCommandGap() {
	elapsed := time.Since(b.port.lastCmdTime)
	if elapsed < b.port.minCmdGap {
		time.Sleep(b.port.minCmdGap - elapsed)
	}
}

func (b *Bus) sendPacketLocked(packet []byte) error {
	b.enforceCommandGap()

	// Stale input would be taken for the response.
	if err := b.port.transport.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}

	n, err := b.port.transport.Write(packet)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("incomplete write: %d of %d bytes", n, len(packet))
	}

	b.port.lastCmdTime = time.Now()

	// Small delay for half-duplex turnaround
	time.Sleep(100 * time.Microsecond)

	return nil
}

func (b *Bus) readRegisterLocked(ctx context.Context, op string, id byte, address, length uint16) ([]byte, error) {
	packet := b.protocol.ReadPacket(id, address, length)
	if err := b.sendPacketLocked(packet); err != nil {
		return nil, &CommError{Op: op, Result: CommTxFail, Err: err}
	}

	resp, err := b.readStatusLocked(ctx, op, id, int(length))
	if err != nil {
		return nil, err
	}

	if len(resp.Parameters) != int(length) {
		return nil, &CommError{
			Op:     op,
			Result: CommRxCorrupt,
			Err:    fmt.Errorf("%w: expected %d data bytes, got %d", ErrInvalidPacket, length, len(resp.Parameters)),
		}
	}

	return resp.Parameters, nil
}

// readStatusLocked reads one status packet and classifies failures into
// communication errors and device-reported errors.
func (b *Bus) readStatusLocked(ctx context.Context, op string, id byte, dataLen int) (Packet, error) {
	resp, err := b.readResponseLocked(ctx, b.protocol.ExpectedResponseLength(dataLen))
	if err != nil {
		result := CommRxCorrupt
		switch {
		case errors.Is(err, ErrNoResponse), errors.Is(err, ErrTimeout):
			result = CommRxTimeout
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			result = CommRxFail
		}
		return Packet{}, &CommError{Op: op, Result: result, Err: err}
	}

	if resp.ID != id {
		return Packet{}, &CommError{
			Op:     op,
			Result: CommRxCorrupt,
			Err:    fmt.Errorf("wrong servo ID in response: expected %d, got %d", id, resp.ID),
		}
	}

	if err := b.protocol.PacketError(resp.Error); err != nil {
		return resp, &ServoError{ID: int(id), Op: op, Err: err}
	}

	return resp, nil
}

func (b *Bus) readResponseLocked(ctx context.Context, expectedLen int) (Packet, error) {
	deadline := time.Now().Add(b.timeout)
	buf := make([]byte, 0, expectedLen*2)

	want := expectedLen
	for {
		var err error
		buf, err = b.readRawBytesLocked(ctx, buf, want, deadline)
		if err != nil {
			return Packet{}, err
		}

		pkt, _, err := b.protocol.Decode(buf)
		if err == nil {
			return pkt, nil
		}
		if !errors.Is(err, errIncomplete) {
			return Packet{}, err
		}

		// Byte stuffing or leading noise made the packet longer than
		// expected: keep reading until the deadline.
		want = len(buf) + 1
	}
}

func (b *Bus) readRawBytesLocked(ctx context.Context, buf []byte, minLen int, deadline time.Time) ([]byte, error) {
	for len(buf) < minLen {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			if len(buf) == 0 {
				return nil, ErrNoResponse
			}
			return nil, fmt.Errorf("%w: read %d of %d expected bytes", ErrTimeout, len(buf), minLen)
		}

		remaining := max(time.Until(deadline), 10*time.Millisecond)
		b.port.transport.SetReadTimeout(remaining)

		// Never read past the packet being waited for, so back-to-back
		// responses stay in the transport for the next transaction.
		chunk := make([]byte, minLen-len(buf))
		n, err := b.port.transport.Read(chunk)
		if n == 0 {
			// Timeouts surface as empty reads; keep waiting.
			time.Sleep(time.Millisecond)
			continue
		}
		buf = append(buf, chunk[:n]...)
		if err != nil && len(buf) < minLen {
			return nil, fmt.Errorf("read error: %w", err)
		}
	}

	return buf, nil
}
