package dynamixel

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

// Protocol 2.0 header: FF FF FD followed by a reserved 00.
const (
	headerByte3 = 0xFD
	reserved    = 0x00
)

// protocol2 implements Dynamixel Protocol 2.0:
// [FF FF FD 00][id][lenL lenH][inst][params...][crcL crcH]
//
// The length field counts the instruction, parameters and CRC after byte
// stuffing. Status packets carry InstStatus followed by the error byte.
type protocol2 struct{}

func (protocol2) Version() ProtocolVersion { return Protocol2 }

func (protocol2) MaxAddress() uint16 { return 0xFFFF }

func (p protocol2) Encode(pkt Packet) []byte {
	body := make([]byte, 0, 1+len(pkt.Parameters))
	body = append(body, pkt.Instruction)
	body = append(body, pkt.Parameters...)
	body = addStuffing(body)

	length := len(body) + 2 // instruction/params + crc

	buf := make([]byte, 0, 7+length)
	buf = append(buf, headerByte1, headerByte2, headerByte3, reserved)
	buf = append(buf, pkt.ID, byte(length), byte(length>>8))
	buf = append(buf, body...)

	crc := checksum2(buf)
	buf = append(buf, byte(crc), byte(crc>>8))

	return buf
}

func (p protocol2) Decode(data []byte) (Packet, int, error) {
	const minLen = 11 // header(4) + id(1) + len(2) + inst(1) + error(1) + crc(2)

	if len(data) < minLen {
		return Packet{}, 0, fmt.Errorf("%w: %w", ErrInvalidPacket, errIncomplete)
	}

	headerIdx := -1
	for i := 0; i+3 < len(data); i++ {
		if data[i] == headerByte1 && data[i+1] == headerByte2 && data[i+2] == headerByte3 && data[i+3] == reserved {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return Packet{}, 0, fmt.Errorf("%w: %w: header not found", ErrInvalidPacket, errIncomplete)
	}

	data = data[headerIdx:]
	if len(data) < minLen {
		return Packet{}, 0, fmt.Errorf("%w: %w", ErrInvalidPacket, errIncomplete)
	}

	id := data[4]
	length := int(binary.LittleEndian.Uint16(data[5:7]))
	if length < 4 {
		return Packet{}, 0, fmt.Errorf("%w: length field %d", ErrInvalidPacket, length)
	}

	totalLen := 7 + length
	if len(data) < totalLen {
		return Packet{}, 0, fmt.Errorf("%w: %w: need %d bytes, have %d", ErrInvalidPacket, errIncomplete, totalLen, len(data))
	}

	expected := checksum2(data[:totalLen-2])
	actual := binary.LittleEndian.Uint16(data[totalLen-2 : totalLen])
	if expected != actual {
		return Packet{}, 0, fmt.Errorf("%w: crc mismatch: expected 0x%04X, got 0x%04X", ErrInvalidPacket, expected, actual)
	}

	body := removeStuffing(data[7 : totalLen-2])
	if len(body) < 2 {
		return Packet{}, 0, fmt.Errorf("%w: status body too short", ErrInvalidPacket)
	}
	if body[0] != InstStatus {
		return Packet{}, 0, fmt.Errorf("%w: not a status packet (instruction 0x%02X)", ErrInvalidPacket, body[0])
	}

	pkt := Packet{
		ID:          id,
		Instruction: body[0],
		Error:       body[1],
	}
	if len(body) > 2 {
		pkt.Parameters = make([]byte, len(body)-2)
		copy(pkt.Parameters, body[2:])
	}

	return pkt, headerIdx + totalLen, nil
}

func (protocol2) ExpectedResponseLength(dataLen int) int {
	return 11 + dataLen
}

func (p protocol2) PingPacket(id byte) []byte {
	return p.Encode(Packet{ID: id, Instruction: InstPing})
}

func (p protocol2) ReadPacket(id byte, address, length uint16) []byte {
	return p.Encode(Packet{
		ID:          id,
		Instruction: InstRead,
		Parameters:  []byte{byte(address), byte(address >> 8), byte(length), byte(length >> 8)},
	})
}

func (p protocol2) WritePacket(id byte, address uint16, data []byte) []byte {
	params := make([]byte, 2+len(data))
	params[0] = byte(address)
	params[1] = byte(address >> 8)
	copy(params[2:], data)

	return p.Encode(Packet{ID: id, Instruction: InstWrite, Parameters: params})
}

func (protocol2) PacketError(code byte) error {
	if code == 0 {
		return nil
	}
	return PacketError{Version: Protocol2, Code: code}
}

// addStuffing inserts 0xFD after every FF FF FD sequence so the payload can
// never be mistaken for a header.
func addStuffing(body []byte) []byte {
	out := make([]byte, 0, len(body)+len(body)/3)
	for _, b := range body {
		out = append(out, b)
		n := len(out)
		if n >= 3 && out[n-3] == headerByte1 && out[n-2] == headerByte2 && out[n-1] == headerByte3 {
			out = append(out, headerByte3)
		}
	}
	return out
}

func removeStuffing(body []byte) []byte {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		out = append(out, body[i])
		n := len(out)
		if n >= 3 && out[n-3] == headerByte1 && out[n-2] == headerByte2 && out[n-1] == headerByte3 &&
			i+1 < len(body) && body[i+1] == headerByte3 {
			i++
		}
	}
	return out
}

// Protocol 2.0 uses CRC-16/BUYPASS: polynomial 0x8005, initial value 0, no
// reflection.
var crcTable = crc16.MakeTable(crc16.CRC16_BUYPASS)

func checksum2(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
