// Package dynamixel provides a Go library for communicating with Dynamixel
// actuators over a half-duplex serial bus using Protocol 1.0 or 2.0.
package dynamixel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ProtocolVersion selects the wire format used on the bus.
type ProtocolVersion int

const (
	Protocol1 ProtocolVersion = 1 // AX/MX/RX/EX series
	Protocol2 ProtocolVersion = 2 // X/PRO series, MX with 2.0 firmware
)

func (v ProtocolVersion) String() string {
	switch v {
	case Protocol1:
		return "1.0"
	case Protocol2:
		return "2.0"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// ParseProtocolVersion accepts the SDK style floating-point tag (1.0, 2.0).
func ParseProtocolVersion(v float64) (ProtocolVersion, error) {
	switch v {
	case 1.0:
		return Protocol1, nil
	case 2.0:
		return Protocol2, nil
	default:
		return 0, fmt.Errorf("unsupported protocol version: %v", v)
	}
}

// Instruction codes shared by both protocol versions.
const (
	InstPing      byte = 0x01
	InstRead      byte = 0x02
	InstWrite     byte = 0x03
	InstRegWrite  byte = 0x04
	InstAction    byte = 0x05
	InstReset     byte = 0x06
	InstReboot    byte = 0x08
	InstStatus    byte = 0x55 // Protocol 2.0 status packets only
	InstSyncRead  byte = 0x82
	InstSyncWrite byte = 0x83
)

// Special ID values.
const (
	BroadcastID = 0xFE
	MaxServoID  = 0xFC
)

const (
	headerByte1 = 0xFF
	headerByte2 = 0xFF
)

var errIncomplete = errors.New("incomplete packet")

// Packet represents a Dynamixel protocol packet.
type Packet struct {
	ID          byte
	Instruction byte
	Parameters  []byte
	Error       byte // Only valid for status packets
}

// Protocol handles packet encoding/decoding for one protocol version.
type Protocol interface {
	Version() ProtocolVersion

	// Encode constructs a wire-format instruction packet.
	Encode(pkt Packet) []byte

	// Decode parses the first status packet found in data and returns it
	// together with the number of bytes consumed.
	Decode(data []byte) (Packet, int, error)

	PingPacket(id byte) []byte
	ReadPacket(id byte, address, length uint16) []byte
	WritePacket(id byte, address uint16, data []byte) []byte

	// ExpectedResponseLength returns the unstuffed wire length of a status
	// packet carrying dataLen parameter bytes.
	ExpectedResponseLength(dataLen int) int

	// MaxAddress is the highest control table address the framing can carry.
	MaxAddress() uint16

	// PacketError converts a status error byte to an error, or nil for 0.
	PacketError(code byte) error
}

// NewProtocol creates a protocol handler for the specified version.
func NewProtocol(version ProtocolVersion) (Protocol, error) {
	switch version {
	case Protocol1:
		return protocol1{}, nil
	case Protocol2:
		return protocol2{}, nil
	default:
		return nil, fmt.Errorf("unsupported protocol version: %d", int(version))
	}
}

// Multi-byte control table values are little-endian in both versions.

// EncodeWord converts a 16-bit value to wire bytes.
func EncodeWord(value uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return buf
}

// DecodeWord converts wire bytes to a 16-bit value.
func DecodeWord(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(data)
}

// EncodeDWord converts a 32-bit value to wire bytes.
func EncodeDWord(value uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return buf
}

// DecodeDWord converts wire bytes to a 32-bit value.
func DecodeDWord(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

// DecodeValue decodes a 1, 2 or 4 byte register value.
func DecodeValue(data []byte) uint32 {
	switch len(data) {
	case 1:
		return uint32(data[0])
	case 2, 3:
		return uint32(DecodeWord(data))
	case 0:
		return 0
	default:
		return DecodeDWord(data)
	}
}

// EncodeValue encodes value into size (1, 2 or 4) bytes.
func EncodeValue(value uint32, size int) []byte {
	switch size {
	case 1:
		return []byte{byte(value)}
	case 2:
		return EncodeWord(uint16(value))
	default:
		return EncodeDWord(value)
	}
}

// protocol1 implements Dynamixel Protocol 1.0:
// [FF FF][id][len][inst|error][params...][checksum]
type protocol1 struct{}

func (protocol1) Version() ProtocolVersion { return Protocol1 }

func (protocol1) MaxAddress() uint16 { return 0xFF }

func (p protocol1) Encode(pkt Packet) []byte {
	length := byte(len(pkt.Parameters) + 2) // params + instruction + checksum

	buf := make([]byte, 0, 6+len(pkt.Parameters))
	buf = append(buf, headerByte1, headerByte2)
	buf = append(buf, pkt.ID)
	buf = append(buf, length)
	buf = append(buf, pkt.Instruction)
	buf = append(buf, pkt.Parameters...)

	buf = append(buf, checksum1(buf[2:])) // From ID onwards

	return buf
}

func (p protocol1) Decode(data []byte) (Packet, int, error) {
	if len(data) < 6 {
		return Packet{}, 0, fmt.Errorf("%w: %w", ErrInvalidPacket, errIncomplete)
	}

	headerIdx := -1
	for i := 0; i+2 < len(data); i++ {
		if data[i] == headerByte1 && data[i+1] == headerByte2 && data[i+2] != headerByte1 {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		// The header may still be on its way behind line noise.
		return Packet{}, 0, fmt.Errorf("%w: %w: header not found", ErrInvalidPacket, errIncomplete)
	}

	data = data[headerIdx:]
	if len(data) < 6 {
		return Packet{}, 0, fmt.Errorf("%w: %w", ErrInvalidPacket, errIncomplete)
	}

	id := data[2]
	length := int(data[3])
	if length < 2 {
		return Packet{}, 0, fmt.Errorf("%w: length field %d", ErrInvalidPacket, length)
	}

	totalLen := 4 + length // header(2) + id(1) + length(1) + [length bytes]
	if len(data) < totalLen {
		return Packet{}, 0, fmt.Errorf("%w: %w: need %d bytes, have %d", ErrInvalidPacket, errIncomplete, totalLen, len(data))
	}

	expected := checksum1(data[2 : totalLen-1])
	actual := data[totalLen-1]
	if expected != actual {
		return Packet{}, 0, fmt.Errorf("%w: checksum mismatch: expected 0x%02X, got 0x%02X", ErrInvalidPacket, expected, actual)
	}

	// Status format: [header][id][length][error][params...][checksum]
	pkt := Packet{
		ID:    id,
		Error: data[4],
	}

	paramLen := length - 2
	if paramLen > 0 {
		pkt.Parameters = make([]byte, paramLen)
		copy(pkt.Parameters, data[5:5+paramLen])
	}

	return pkt, headerIdx + totalLen, nil
}

func (protocol1) ExpectedResponseLength(dataLen int) int {
	// header(2) + id(1) + length(1) + error(1) + data(n) + checksum(1)
	return 6 + dataLen
}

func (p protocol1) PingPacket(id byte) []byte {
	return p.Encode(Packet{ID: id, Instruction: InstPing})
}

func (p protocol1) ReadPacket(id byte, address, length uint16) []byte {
	return p.Encode(Packet{
		ID:          id,
		Instruction: InstRead,
		Parameters:  []byte{byte(address), byte(length)},
	})
}

func (p protocol1) WritePacket(id byte, address uint16, data []byte) []byte {
	params := make([]byte, 1+len(data))
	params[0] = byte(address)
	copy(params[1:], data)

	return p.Encode(Packet{ID: id, Instruction: InstWrite, Parameters: params})
}

func (protocol1) PacketError(code byte) error {
	if code == 0 {
		return nil
	}
	return PacketError{Version: Protocol1, Code: code}
}

func checksum1(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum
}
