package segment

import (
	"encoding/binary"
	"errors"
)

/*
 0      7 8     15 16    23 24    31
+--------+--------+--------+--------+
|     Source      |   Destination   |
|      Port       |      Port       |
+--------+--------+--------+--------+
|                 |                 |
|     Length      |    Checksum     |
+--------+--------+--------+--------+
|
|          data octets ...
+---------------- ...                  */

const (
	UDPHeaderLen = 8
	// MaxUDPPayload is the largest payload the 16-bit length field can describe.
	MaxUDPPayload = 0xffff - UDPHeaderLen
)

var ErrPayloadTooLarge = errors.New("segment: udp payload exceeds 65527 bytes")

var _ Segment = (*UDP)(nil)

// UDP is a UDP segment located at an offset of a shared packet buffer.
type UDP struct {
	SourcePort      Port
	DestinationPort Port

	packetData []byte
	offset     int
	payload    []byte
}

// NewUDP returns a segment ready to be built into b at offset.
func NewUDP(b []byte, offset int, src, dst Port, payload []byte) *UDP {
	return &UDP{
		SourcePort:      src,
		DestinationPort: dst,
		packetData:      b,
		offset:          offset,
		payload:         payload,
	}
}

// ParseUDP decodes the UDP segment starting at offset. Everything after the
// 8-byte header up to the end of b is taken as payload; the embedded length
// field is not consulted, see ParseUDPStrict.
func ParseUDP(b []byte, offset int) (*UDP, error) {
	if offset < 0 {
		return nil, errNegativeOffset
	}
	if len(b) < offset+UDPHeaderLen {
		return nil, ErrMalformed{Offset: offset, Need: offset + UDPHeaderLen, Have: len(b)}
	}
	return &UDP{
		SourcePort:      PortFrom(b[offset:]),
		DestinationPort: PortFrom(b[offset+2:]),
		packetData:      b,
		offset:          offset,
		payload:         b[offset+UDPHeaderLen:],
	}, nil
}

// ParseUDPStrict is ParseUDP bounded by the embedded length field. Trailing
// bytes past that length are not part of the payload; a field shorter than
// the header or longer than the buffer is an ErrLengthMismatch.
func ParseUDPStrict(b []byte, offset int) (*UDP, error) {
	u, err := ParseUDP(b, offset)
	if err != nil {
		return nil, err
	}
	l := int(u.Length())
	if l < UDPHeaderLen || l > u.BytesLength() {
		return nil, ErrLengthMismatch{Field: l, Actual: u.BytesLength()}
	}
	u.payload = u.payload[:l-UDPHeaderLen]
	return u, nil
}

func (u *UDP) PacketData() []byte {
	return u.packetData
}

func (u *UDP) SetPacketData(b []byte) {
	u.packetData = b
}

func (u *UDP) Offset() int {
	return u.offset
}

func (u *UDP) SetOffset(off int) {
	u.offset = off
}

func (u *UDP) BytesLength() int {
	return len(u.payload) + UDPHeaderLen
}

func (u *UDP) Payload() []byte {
	return u.payload
}

func (u *UDP) SetPayload(p []byte) {
	u.payload = p
}

// Length returns the length field currently stored in the buffer.
func (u *UDP) Length() uint16 {
	if !u.hasHeader() {
		return 0
	}
	return binary.BigEndian.Uint16(u.packetData[u.offset+4:])
}

// Checksum returns the checksum field currently stored in the buffer.
func (u *UDP) Checksum() uint16 {
	if !u.hasHeader() {
		return 0
	}
	return binary.BigEndian.Uint16(u.packetData[u.offset+6:])
}

// hasHeader reports whether the buffer holds a header at Offset. Length and
// Checksum read as zero until it does.
func (u *UDP) hasHeader() bool {
	return u.offset >= 0 && len(u.packetData) >= u.offset+UDPHeaderLen
}

// Validate reports whether the stored length field agrees with the segment
// length derived from the payload.
func (u *UDP) Validate() error {
	if !u.hasHeader() {
		return ErrShortBuffer{Need: u.offset + UDPHeaderLen, Have: len(u.packetData)}
	}
	if int(u.Length()) != u.BytesLength() {
		return ErrLengthMismatch{Field: int(u.Length()), Actual: u.BytesLength()}
	}
	return nil
}

// Verify checks the stored checksum against the segment bytes and the
// pseudo-header sum. A zero field never verifies; whether it may stand for
// "not computed" is up to the network layer.
func (u *UDP) Verify(pseudoHeaderChecksum uint32) bool {
	end := u.offset + u.BytesLength()
	if !u.hasHeader() || end > len(u.packetData) {
		return false
	}
	if u.Checksum() == 0 {
		return false
	}
	return Fold(pseudoHeaderChecksum, Sum(u.packetData[u.offset:end])) == 0
}

// BuildSegment writes ports, length and payload at Offset, then computes the
// checksum over the segment with the checksum field zeroed. The buffer must
// already hold Offset+BytesLength bytes; otherwise ErrShortBuffer is returned
// and the buffer is left untouched.
func (u *UDP) BuildSegment(pseudoHeaderChecksum uint32) error {
	if u.offset < 0 {
		return errNegativeOffset
	}
	if len(u.payload) > MaxUDPPayload {
		return ErrPayloadTooLarge
	}
	n := u.BytesLength()
	end := u.offset + n
	if len(u.packetData) < end {
		return ErrShortBuffer{Need: end, Have: len(u.packetData)}
	}

	b := u.packetData[u.offset:end]
	u.SourcePort.Put(b[0:2])
	u.DestinationPort.Put(b[2:4])
	binary.BigEndian.PutUint16(b[4:6], uint16(n))
	copy(b[UDPHeaderLen:], u.payload)

	// checksum field must read as zero while summing
	b[6], b[7] = 0, 0
	sum := ComputeChecksum(b, 0, -1, pseudoHeaderChecksum)
	if sum == 0 {
		sum = 0xffff
	}
	binary.BigEndian.PutUint16(b[6:8], sum)
	return nil
}
