// Package segment encodes and decodes transport-layer segments in place
// inside a packet buffer owned by the IP layer.
package segment

import (
	"errors"
	"fmt"
)

// Segment is implemented by every transport protocol codec so the IP layer
// can build and parse segments without knowing the protocol.
//
// The packet buffer is borrowed: a Segment may only write the byte range
// [Offset(), Offset()+BytesLength()) and never grows or reallocates it.
type Segment interface {
	PacketData() []byte
	SetPacketData(b []byte)

	// Offset is the index in PacketData where the segment header begins.
	Offset() int
	SetOffset(off int)

	// BytesLength is the wire length of the segment, header included.
	BytesLength() int

	Payload() []byte
	SetPayload(p []byte)

	// BuildSegment writes the segment into PacketData at Offset, summing
	// pseudoHeaderChecksum into the transport checksum.
	BuildSegment(pseudoHeaderChecksum uint32) error
}

// Protocol is the IP protocol number carried in the IPv4 protocol field or
// the IPv6 next header field.
type Protocol uint8

const (
	ProtocolICMP   Protocol = 0x01
	ProtocolTCP    Protocol = 0x06
	ProtocolUDP    Protocol = 0x11
	ProtocolICMPv6 Protocol = 0x3a
)

func (p Protocol) String() string {
	switch p {
	case ProtocolICMP:
		return "icmp"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolICMPv6:
		return "icmpv6"
	}
	return fmt.Sprintf("proto(%d)", uint8(p))
}

// Parse decodes the segment of protocol p found in b at offset.
func Parse(p Protocol, b []byte, offset int) (Segment, error) {
	switch p {
	case ProtocolUDP:
		return ParseUDP(b, offset)
	}
	return nil, ErrUnsupportedProtocol{Protocol: p}
}

var errNegativeOffset = errors.New("segment: negative offset")

// ErrMalformed is returned when a buffer is too short to hold a segment
// header at the requested offset.
type ErrMalformed struct {
	Offset int
	Need   int
	Have   int
}

func (e ErrMalformed) Error() string {
	return fmt.Sprintf("segment: malformed input at offset %d: need %d bytes, have %d", e.Offset, e.Need, e.Have)
}

func (e ErrMalformed) Is(err error) bool {
	_, ok := err.(ErrMalformed)
	return ok
}

// ErrShortBuffer is returned by BuildSegment when the packet buffer cannot
// hold the whole segment. Nothing is written in that case.
type ErrShortBuffer struct {
	Need int
	Have int
}

func (e ErrShortBuffer) Error() string {
	return fmt.Sprintf("segment: short buffer: need %d bytes, have %d", e.Need, e.Have)
}

func (e ErrShortBuffer) Is(err error) bool {
	_, ok := err.(ErrShortBuffer)
	return ok
}

// ErrLengthMismatch reports an embedded length field that disagrees with
// the number of bytes actually available for the segment.
type ErrLengthMismatch struct {
	Field  int
	Actual int
}

func (e ErrLengthMismatch) Error() string {
	return fmt.Sprintf("segment: length field %d does not match segment length %d", e.Field, e.Actual)
}

func (e ErrLengthMismatch) Is(err error) bool {
	_, ok := err.(ErrLengthMismatch)
	return ok
}

type ErrUnsupportedProtocol struct {
	Protocol Protocol
}

func (e ErrUnsupportedProtocol) Error() string {
	return fmt.Sprintf("segment: unsupported protocol %v", e.Protocol)
}

func (e ErrUnsupportedProtocol) Is(err error) bool {
	t, ok := err.(ErrUnsupportedProtocol)
	if !ok {
		return false
	}
	return t.Protocol == e.Protocol
}
