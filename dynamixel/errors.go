package dynamixel

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout        = errors.New("communication timeout")
	ErrNoResponse     = errors.New("no response from servo")
	ErrInvalidPacket  = errors.New("invalid packet format")
	ErrBusClosed      = errors.New("bus is closed")
	ErrInvalidID      = errors.New("invalid servo ID")
	ErrNotSupported   = errors.New("operation not supported")
	ErrNoValidReading = errors.New("no valid reading within timeout")
)

// CommResult is the outcome of a single transmit/receive transaction.
type CommResult int

// Communication results. The numeric values match the vendor SDK so that
// logs can be compared across implementations.
const (
	CommSuccess      CommResult = 0
	CommPortBusy     CommResult = -1000
	CommTxFail       CommResult = -1001
	CommRxFail       CommResult = -1002
	CommTxError      CommResult = -2000
	CommRxWaiting    CommResult = -3000
	CommRxTimeout    CommResult = -3001
	CommRxCorrupt    CommResult = -3002
	CommNotAvailable CommResult = -9000
)

func (r CommResult) String() string {
	switch r {
	case CommSuccess:
		return "communication success"
	case CommPortBusy:
		return "port is busy"
	case CommTxFail:
		return "failed to transmit instruction packet"
	case CommRxFail:
		return "failed to receive status packet"
	case CommTxError:
		return "incorrect instruction packet"
	case CommRxWaiting:
		return "waiting for status packet"
	case CommRxTimeout:
		return "no status packet received"
	case CommRxCorrupt:
		return "incorrect status packet"
	case CommNotAvailable:
		return "protocol does not support this function"
	default:
		return fmt.Sprintf("unknown result %d", int(r))
	}
}

// CommError represents a communication-level error.
type CommError struct {
	Op     string     // Operation that failed (e.g., "read", "write", "ping")
	Result CommResult // Transaction outcome
	Err    error      // Underlying error
}

func (e *CommError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("communication error during %s: %s", e.Op, e.Result)
	}
	return fmt.Sprintf("communication error during %s: %s: %v", e.Op, e.Result, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// ServoError represents an error reported by, or attributed to, a specific
// servo.
type ServoError struct {
	ID  int    // Servo ID
	Op  string // Operation that failed
	Err error  // PacketError when the servo flagged the status packet
}

func (e *ServoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("servo %d %s failed: %v", e.ID, e.Op, e.Err)
	}
	return fmt.Sprintf("servo %d %s failed", e.ID, e.Op)
}

func (e *ServoError) Unwrap() error {
	return e.Err
}

// Protocol 1.0 status error flags.
const (
	ErrBitInputVoltage byte = 1 << 0
	ErrBitAngleLimit   byte = 1 << 1
	ErrBitOverheat     byte = 1 << 2
	ErrBitRange        byte = 1 << 3
	ErrBitChecksum     byte = 1 << 4
	ErrBitOverload     byte = 1 << 5
	ErrBitInstruction  byte = 1 << 6
)

// Protocol 2.0 status error numbers. ErrAlert may be combined with any of
// them and signals a hardware error latched in the control table.
const (
	ErrNumResultFail  byte = 0x01
	ErrNumInstruction byte = 0x02
	ErrNumCRC         byte = 0x03
	ErrNumDataRange   byte = 0x04
	ErrNumDataLength  byte = 0x05
	ErrNumDataLimit   byte = 0x06
	ErrNumAccess      byte = 0x07
	ErrAlert          byte = 0x80
)

// PacketError is the error byte of a status packet, interpreted according to
// the protocol version that produced it.
type PacketError struct {
	Version ProtocolVersion
	Code    byte
}

func (e PacketError) Error() string {
	if e.Code == 0 {
		return "no error"
	}
	if e.Version == Protocol2 {
		return e.protocol2String()
	}
	return e.protocol1String()
}

// Alert reports whether a Protocol 2.0 device flagged a hardware error.
func (e PacketError) Alert() bool {
	return e.Version == Protocol2 && e.Code&ErrAlert != 0
}

func (e PacketError) protocol1String() string {
	var msgs []string
	if e.Code&ErrBitInputVoltage != 0 {
		msgs = append(msgs, "input voltage")
	}
	if e.Code&ErrBitAngleLimit != 0 {
		msgs = append(msgs, "angle limit")
	}
	if e.Code&ErrBitOverheat != 0 {
		msgs = append(msgs, "overheat")
	}
	if e.Code&ErrBitRange != 0 {
		msgs = append(msgs, "out of range")
	}
	if e.Code&ErrBitChecksum != 0 {
		msgs = append(msgs, "checksum")
	}
	if e.Code&ErrBitOverload != 0 {
		msgs = append(msgs, "overload")
	}
	if e.Code&ErrBitInstruction != 0 {
		msgs = append(msgs, "instruction code")
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("servo status error: unknown flags 0x%02X", e.Code)
	}
	return "servo status error: " + strings.Join(msgs, ", ")
}

func (e PacketError) protocol2String() string {
	var msg string
	switch e.Code &^ ErrAlert {
	case 0:
		msg = ""
	case ErrNumResultFail:
		msg = "instruction processing failed"
	case ErrNumInstruction:
		msg = "undefined or incorrect instruction"
	case ErrNumCRC:
		msg = "crc does not match"
	case ErrNumDataRange:
		msg = "data value out of range"
	case ErrNumDataLength:
		msg = "data length does not match"
	case ErrNumDataLimit:
		msg = "data value exceeds limit"
	case ErrNumAccess:
		msg = "address not accessible"
	default:
		msg = fmt.Sprintf("unknown error number %d", e.Code&^ErrAlert)
	}

	switch {
	case e.Alert() && msg == "":
		return "servo status error: hardware alert"
	case e.Alert():
		return "servo status error: " + msg + " (hardware alert)"
	default:
		return "servo status error: " + msg
	}
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNoResponse returns true if the error indicates no response was received.
func IsNoResponse(err error) bool {
	return errors.Is(err, ErrNoResponse)
}

// GetServoError extracts a ServoError from an error chain, if present.
func GetServoError(err error) (*ServoError, bool) {
	var servoErr *ServoError
	if errors.As(err, &servoErr) {
		return servoErr, true
	}
	return nil, false
}

// PacketErrorOf extracts the device error byte from an error chain.
func PacketErrorOf(err error) (PacketError, bool) {
	var pktErr PacketError
	if errors.As(err, &pktErr) {
		return pktErr, true
	}
	return PacketError{}, false
}

// ResultOf returns the communication result carried by err. A nil error or
// a device-reported error (the transaction itself succeeded) yields
// CommSuccess.
func ResultOf(err error) CommResult {
	if err == nil {
		return CommSuccess
	}
	var commErr *CommError
	if errors.As(err, &commErr) {
		return commErr.Result
	}
	if _, ok := PacketErrorOf(err); ok {
		return CommSuccess
	}
	switch {
	case errors.Is(err, ErrNoResponse), errors.Is(err, ErrTimeout):
		return CommRxTimeout
	case errors.Is(err, ErrInvalidPacket):
		return CommRxCorrupt
	case errors.Is(err, ErrNotSupported):
		return CommNotAvailable
	default:
		return CommTxFail
	}
}
