package dynamixel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Jimmy-Hu/DynamixelSDK/transports"
)

func newTestBus(t *testing.T, mock *transports.MockTransport, version ProtocolVersion) *Bus {
	t.Helper()
	bus, err := NewBus(BusConfig{
		Transport:     mock,
		Protocol:      version,
		Timeout:       20 * time.Millisecond,
		MinCommandGap: time.Microsecond,
	})
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}
	return bus
}

// noBaudTransport hides SetBaudRate from the bus.
type noBaudTransport struct {
	m *transports.MockTransport
}

func (t noBaudTransport) Read(p []byte) (int, error)           { return t.m.Read(p) }
func (t noBaudTransport) Write(p []byte) (int, error)          { return t.m.Write(p) }
func (t noBaudTransport) Close() error                         { return t.m.Close() }
func (t noBaudTransport) SetReadTimeout(d time.Duration) error { return t.m.SetReadTimeout(d) }
func (t noBaudTransport) Flush() error                         { return t.m.Flush() }

func TestNewBus_RequiresTransportOrPort(t *testing.T) {
	if _, err := NewBus(BusConfig{}); err == nil {
		t.Error("expected error without Transport or Port")
	}
}

func TestBus_Ping(t *testing.T) {
	responses := [][]byte{
		status1(0x01, 0x00),             // ping ack
		status1(0x01, 0x00, 0x1D, 0x00), // model number 29
	}
	idx := 0

	mock := &transports.MockTransport{
		ReadFunc: func(p []byte) (int, error) {
			if idx >= len(responses) {
				return 0, nil
			}
			n := copy(p, responses[idx])
			idx++
			return n, nil
		},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	modelNum, err := bus.Ping(context.Background(), 1)
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if modelNum != 29 {
		t.Errorf("model number: got %d, want 29", modelNum)
	}
	if len(mock.Writes) != 2 {
		t.Fatalf("writes: got %d packets, want 2", len(mock.Writes))
	}
	if !bytes.Equal(mock.Writes[0], []byte{0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}) {
		t.Errorf("ping packet: got %X", mock.Writes[0])
	}
}

func TestBus_PingProtocol2(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x07, 0x00, 0x55, 0x00, 0xFC, 0x03, 0x2C, 0x12, 0xC3},
	}

	bus := newTestBus(t, mock, Protocol2)
	defer bus.Close()

	modelNum, err := bus.Ping(context.Background(), 1)
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if modelNum != 1020 {
		t.Errorf("model number: got %d, want 1020", modelNum)
	}
	if len(mock.Writes) != 1 {
		t.Errorf("writes: got %d packets, want 1", len(mock.Writes))
	}
}

func TestBus_ReadRegister(t *testing.T) {
	mock := &transports.MockTransport{
		// Response: position = 0x0800 (2048)
		ReadData: []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0x00, 0x08, 0xF2},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	data, err := bus.ReadRegister(context.Background(), 1, 36, 2)
	if err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}

	if position := DecodeWord(data); position != 2048 {
		t.Errorf("position: got %d, want 2048", position)
	}
}

func TestBus_Read2Byte(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0x02, 0x04, 0x00, 0x8A, 0x02, 0x6D},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	value, err := bus.Read2Byte(context.Background(), 2, 36)
	if err != nil {
		t.Fatalf("Read2Byte failed: %v", err)
	}
	if value != 650 {
		t.Errorf("value: got %d, want 650", value)
	}

	want := []byte{0xFF, 0xFF, 0x02, 0x04, 0x02, 0x24, 0x02, 0xD1}
	if !bytes.Equal(mock.WriteData, want) {
		t.Errorf("request: got %X, want %X", mock.WriteData, want)
	}
	if !mock.Flushed {
		t.Error("expected input flush before transmit")
	}
}

func TestBus_Read4ByteProtocol2(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x08, 0x00, 0x55, 0x00, 0xA6, 0x00, 0x00, 0x00, 0x8C, 0xC0},
	}

	bus := newTestBus(t, mock, Protocol2)
	defer bus.Close()

	value, err := bus.Read4Byte(context.Background(), 1, 132)
	if err != nil {
		t.Fatalf("Read4Byte failed: %v", err)
	}
	if value != 166 {
		t.Errorf("value: got %d, want 166", value)
	}
}

func TestBus_ReadStuffedResponse(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: status2(0x01, 0x00, 0xFF, 0xFF, 0xFD, 0x00),
	}

	bus := newTestBus(t, mock, Protocol2)
	defer bus.Close()

	data, err := bus.ReadRegister(context.Background(), 1, 132, 4)
	if err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0xFF, 0xFF, 0xFD, 0x00}) {
		t.Errorf("data: got %X", data)
	}
}

func TestBus_Write1Byte(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0x02, 0x02, 0x00, 0xFB},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	if err := bus.Write1Byte(context.Background(), 2, 24, 0); err != nil {
		t.Fatalf("Write1Byte failed: %v", err)
	}

	want := []byte{0xFF, 0xFF, 0x02, 0x04, 0x03, 0x18, 0x00, 0xDE}
	if !bytes.Equal(mock.WriteData, want) {
		t.Errorf("request: got %X, want %X", mock.WriteData, want)
	}
}

func TestBus_Write1ByteProtocol2(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x04, 0x00, 0x55, 0x00, 0xA1, 0x0C},
	}

	bus := newTestBus(t, mock, Protocol2)
	defer bus.Close()

	if err := bus.Write1Byte(context.Background(), 1, 64, 0); err != nil {
		t.Fatalf("Write1Byte failed: %v", err)
	}
}

func TestBus_WriteBroadcastNoResponse(t *testing.T) {
	mock := &transports.MockTransport{}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	if err := bus.Write1Byte(context.Background(), BroadcastID, 24, 0); err != nil {
		t.Fatalf("broadcast write failed: %v", err)
	}
	if len(mock.Writes) != 1 {
		t.Errorf("writes: got %d, want 1", len(mock.Writes))
	}
}

func TestBus_DeviceError(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: status1(0x01, ErrBitOverheat),
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	err := bus.Write1Byte(context.Background(), 1, 24, 1)
	if err == nil {
		t.Fatal("expected device error")
	}

	servoErr, ok := GetServoError(err)
	if !ok {
		t.Fatalf("expected ServoError, got %T: %v", err, err)
	}
	if servoErr.ID != 1 {
		t.Errorf("servo ID: got %d, want 1", servoErr.ID)
	}

	pktErr, ok := PacketErrorOf(err)
	if !ok || pktErr.Code != ErrBitOverheat {
		t.Errorf("packet error: got %+v, ok=%v", pktErr, ok)
	}
	if ResultOf(err) != CommSuccess {
		t.Errorf("ResultOf: got %s, want success", ResultOf(err))
	}
}

func TestBus_DeviceErrorProtocol2(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: status2(0x01, ErrAlert|ErrNumAccess),
	}

	bus := newTestBus(t, mock, Protocol2)
	defer bus.Close()

	err := bus.Write1Byte(context.Background(), 1, 64, 1)
	pktErr, ok := PacketErrorOf(err)
	if !ok {
		t.Fatalf("expected PacketError, got %v", err)
	}
	if !pktErr.Alert() {
		t.Error("expected alert bit")
	}
}

func TestBus_NoResponse(t *testing.T) {
	mock := &transports.MockTransport{}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	_, err := bus.Read2Byte(context.Background(), 2, 36)
	if err == nil {
		t.Fatal("expected error from silent device")
	}
	if !IsNoResponse(err) {
		t.Errorf("expected ErrNoResponse in chain, got %v", err)
	}
	if ResultOf(err) != CommRxTimeout {
		t.Errorf("ResultOf: got %s, want %s", ResultOf(err), CommRxTimeout)
	}
}

func TestBus_PartialResponse(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0x02, 0x04},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	_, err := bus.Read2Byte(context.Background(), 2, 36)
	if !IsTimeout(err) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if ResultOf(err) != CommRxTimeout {
		t.Errorf("ResultOf: got %s, want %s", ResultOf(err), CommRxTimeout)
	}
}

func TestBus_CorruptResponse(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0x02, 0x04, 0x00, 0x8A, 0x02, 0x00},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	_, err := bus.Read2Byte(context.Background(), 2, 36)
	if !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("expected ErrInvalidPacket, got %v", err)
	}
	if ResultOf(err) != CommRxCorrupt {
		t.Errorf("ResultOf: got %s, want %s", ResultOf(err), CommRxCorrupt)
	}
}

func TestBus_LeadingNoise(t *testing.T) {
	for _, noise := range [][]byte{{0x13}, {0x00, 0x37, 0xFF}} {
		t.Run(fmt.Sprintf("read/%d", len(noise)), func(t *testing.T) {
			mock := &transports.MockTransport{
				ReadData: append(append([]byte(nil), noise...), status1(0x02, 0x00, 0x8A, 0x02)...),
			}
			bus := newTestBus(t, mock, Protocol1)
			defer bus.Close()

			value, err := bus.Read2Byte(context.Background(), 2, 36)
			if err != nil {
				t.Fatalf("Read2Byte failed: %v", err)
			}
			if value != 650 {
				t.Errorf("value: got %d, want 650", value)
			}
		})

		t.Run(fmt.Sprintf("write/%d", len(noise)), func(t *testing.T) {
			mock := &transports.MockTransport{
				ReadData: append(append([]byte(nil), noise...), status1(0x02, 0x00)...),
			}
			bus := newTestBus(t, mock, Protocol1)
			defer bus.Close()

			if err := bus.Write1Byte(context.Background(), 2, 24, 0); err != nil {
				t.Fatalf("Write1Byte failed: %v", err)
			}
		})
	}
}

func TestBus_LeadingNoiseProtocol2(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: append([]byte{0xFF, 0x00, 0xFD}, status2(0x01, 0x00)...),
	}
	bus := newTestBus(t, mock, Protocol2)
	defer bus.Close()

	if err := bus.Write1Byte(context.Background(), 1, 64, 0); err != nil {
		t.Fatalf("Write1Byte failed: %v", err)
	}
}

func TestBus_NoiseOnlyTimesOut(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09},
	}
	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	_, err := bus.Read2Byte(context.Background(), 2, 36)
	if ResultOf(err) != CommRxTimeout {
		t.Errorf("ResultOf: got %s (%v), want %s", ResultOf(err), err, CommRxTimeout)
	}
}

func TestBus_FlushFailure(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: status1(0x02, 0x00, 0x8A, 0x02),
		FlushErr: errors.New("input/output error"),
	}
	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	_, err := bus.Read2Byte(context.Background(), 2, 36)
	if ResultOf(err) != CommTxFail {
		t.Errorf("ResultOf: got %s (%v), want %s", ResultOf(err), err, CommTxFail)
	}
	if len(mock.Writes) != 0 {
		t.Errorf("expected no transmit after failed flush, got %d packets", len(mock.Writes))
	}
}

func TestBus_WrongIDResponse(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: status1(0x03, 0x00, 0x8A, 0x02),
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	_, err := bus.Read2Byte(context.Background(), 2, 36)
	if ResultOf(err) != CommRxCorrupt {
		t.Errorf("ResultOf: got %s (%v), want %s", ResultOf(err), err, CommRxCorrupt)
	}
}

func TestBus_TransmitFailure(t *testing.T) {
	mock := &transports.MockTransport{WriteErr: errors.New("port unplugged")}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	_, err := bus.Read2Byte(context.Background(), 2, 36)
	if ResultOf(err) != CommTxFail {
		t.Errorf("ResultOf: got %s, want %s", ResultOf(err), CommTxFail)
	}
}

func TestBus_Respond(t *testing.T) {
	mock := &transports.MockTransport{
		Respond: func(packet []byte) []byte {
			switch packet[4] {
			case InstRead:
				return status1(0x02, 0x00, 0x8A, 0x02)
			case InstWrite:
				return status1(0x02, 0x00)
			}
			return nil
		},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		value, err := bus.Read2Byte(ctx, 2, 36)
		if err != nil {
			t.Fatalf("Read2Byte failed: %v", err)
		}
		if value != 650 {
			t.Errorf("value: got %d, want 650", value)
		}
	}
	if err := bus.Write1Byte(ctx, 2, 24, 0); err != nil {
		t.Fatalf("Write1Byte failed: %v", err)
	}
	if len(mock.Writes) != 4 {
		t.Errorf("writes: got %d, want 4", len(mock.Writes))
	}
}

func TestBus_InvalidID(t *testing.T) {
	mock := &transports.MockTransport{}
	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	ctx := context.Background()

	_, err := bus.Ping(ctx, 253)
	if !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID for ID 253, got %v", err)
	}

	_, err = bus.ReadRegister(ctx, -1, 0x38, 2)
	if !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID for ID -1, got %v", err)
	}

	if len(mock.Writes) != 0 {
		t.Errorf("invalid IDs must not reach the wire, got %d writes", len(mock.Writes))
	}
}

func TestBus_InvalidArguments(t *testing.T) {
	mock := &transports.MockTransport{}
	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	ctx := context.Background()

	if _, err := bus.ReadRegister(ctx, 1, 36, 0); ResultOf(err) != CommTxError {
		t.Errorf("zero length: got %v", err)
	}
	if _, err := bus.ReadRegister(ctx, 1, 0x100, 1); ResultOf(err) != CommTxError {
		t.Errorf("address beyond protocol 1.0 table: got %v", err)
	}
	if err := bus.WriteRegister(ctx, 1, 24, nil); ResultOf(err) != CommTxError {
		t.Errorf("empty write: got %v", err)
	}
}

func TestBus_Closed(t *testing.T) {
	mock := &transports.MockTransport{}
	bus := newTestBus(t, mock, Protocol1)

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !mock.Closed {
		t.Error("transport was not closed")
	}

	// Second close is a no-op
	if err := bus.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}

	_, err := bus.Ping(context.Background(), 1)
	if !errors.Is(err, ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}

	if err := bus.SetBaudRate(57600); !errors.Is(err, ErrBusClosed) {
		t.Errorf("SetBaudRate on closed bus: got %v", err)
	}
}

func TestBus_WithProtocolSharesPort(t *testing.T) {
	mock := &transports.MockTransport{
		ReadData: []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x08, 0x00, 0x55, 0x00, 0xA6, 0x00, 0x00, 0x00, 0x8C, 0xC0},
	}

	bus1 := newTestBus(t, mock, Protocol1)
	bus2, err := bus1.WithProtocol(Protocol2)
	if err != nil {
		t.Fatalf("WithProtocol failed: %v", err)
	}
	if bus2.Protocol().Version() != Protocol2 {
		t.Errorf("view protocol: got %s", bus2.Protocol().Version())
	}

	value, err := bus2.Read4Byte(context.Background(), 1, 132)
	if err != nil {
		t.Fatalf("Read4Byte failed: %v", err)
	}
	if value != 166 {
		t.Errorf("value: got %d, want 166", value)
	}

	bus1.Close()
	if _, err := bus2.Ping(context.Background(), 1); !errors.Is(err, ErrBusClosed) {
		t.Errorf("closing one view must close the port, got %v", err)
	}
}

func TestBus_SetBaudRate(t *testing.T) {
	mock := &transports.MockTransport{}
	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	if err := bus.SetBaudRate(57600); err != nil {
		t.Fatalf("SetBaudRate failed: %v", err)
	}
	if mock.BaudRate != 57600 {
		t.Errorf("transport baud: got %d, want 57600", mock.BaudRate)
	}
	if bus.BaudRate() != 57600 {
		t.Errorf("bus baud: got %d, want 57600", bus.BaudRate())
	}

	if err := bus.SetBaudRate(0); err == nil {
		t.Error("expected error for zero baud rate")
	}

	mock.BaudErr = errors.New("unsupported rate")
	if err := bus.SetBaudRate(12345); err == nil {
		t.Error("expected transport error")
	}
	if bus.BaudRate() != 57600 {
		t.Errorf("failed change must keep previous rate, got %d", bus.BaudRate())
	}
}

func TestBus_SetBaudRateNotSupported(t *testing.T) {
	bus, err := NewBus(BusConfig{Transport: noBaudTransport{m: &transports.MockTransport{}}})
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}
	defer bus.Close()

	err = bus.SetBaudRate(57600)
	if ResultOf(err) != CommNotAvailable {
		t.Errorf("ResultOf: got %s, want %s", ResultOf(err), CommNotAvailable)
	}
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestBus_ContextCanceled(t *testing.T) {
	mock := &transports.MockTransport{}
	bus, err := NewBus(BusConfig{Transport: mock, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = bus.Read2Byte(ctx, 2, 36)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ResultOf(err) != CommRxFail {
		t.Errorf("ResultOf: got %s, want %s", ResultOf(err), CommRxFail)
	}
}

func TestBus_Scan(t *testing.T) {
	mock := &transports.MockTransport{
		Respond: func(packet []byte) []byte {
			if packet[2] != 0x02 {
				return nil
			}
			switch packet[4] {
			case InstPing:
				return status1(0x02, 0x00)
			case InstRead:
				return status1(0x02, 0x00, 0x1D, 0x00)
			}
			return nil
		},
	}

	bus := newTestBus(t, mock, Protocol1)
	defer bus.Close()

	found, err := bus.Scan(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found: got %d servos, want 1", len(found))
	}
	if found[0].ID != 2 || found[0].Model != &ModelMX28 {
		t.Errorf("found: got ID %d model %v", found[0].ID, found[0].Model)
	}
}
