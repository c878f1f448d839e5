// Package ip is the owner of raw IPv4 and IPv6 packet buffers. It locates
// the transport segment inside a packet, supplies the pseudo-header sum the
// segment checksum needs and keeps the IP header consistent after a rewrite.
package ip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/intxff/rdseg/segment"
)

/*
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|Version| Traffic Class |           Flow Label                  |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|         Payload Length        |  Next Header  |   Hop Limit   |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                                                               |
+                         Source Address                        +
|                                                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                                                               |
+                      Destination Address                      +
|                                                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
 0                   1                   2                   3
 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|Version|  IHL  |Type of Service|          Total Length         |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|         Identification        |Flags|      Fragment Offset    |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|  Time to Live |    Protocol   |         Header Checksum       |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                       Source Address                          |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                    Destination Address                        |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                    Options                    |    Padding    |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+ */

type Version uint8

const (
	IPv4 Version = 4
	IPv6 Version = 6
)

const (
	ipv4MinHeaderLen = 20
	ipv6HeaderLen    = 40
)

var (
	ErrInvalidIPv4 = errors.New("invalid IPv4 address")
	ErrInvalidIPv6 = errors.New("invalid IPv6 address")
	ErrTruncated   = errors.New("ip: truncated packet")
	ErrFragment    = errors.New("ip: fragmented packet")
)

type ErrVersion uint8

func (e ErrVersion) Error() string {
	return fmt.Sprintf("ip: unknown version %d", uint8(e))
}

// Packet is a raw IPv4 or IPv6 packet. Methods other than Validate assume
// the packet has been validated.
type Packet []byte

func (p Packet) Version() Version {
	return Version(p[0] >> 4)
}

// HeaderLen is the offset of the transport segment. IPv6 extension headers
// are not walked.
func (p Packet) HeaderLen() int {
	if p.Version() == IPv6 {
		return ipv6HeaderLen
	}
	return int(p[0]&0x0f) * 4
}

func (p Packet) Protocol() segment.Protocol {
	if p.Version() == IPv6 {
		return segment.Protocol(p[6])
	}
	return segment.Protocol(p[9])
}

// TotalLen is the packet length announced by the header, which may be
// shorter than the buffer when the link layer pads frames.
func (p Packet) TotalLen() int {
	if p.Version() == IPv6 {
		return ipv6HeaderLen + int(binary.BigEndian.Uint16(p[4:6]))
	}
	return int(binary.BigEndian.Uint16(p[2:4]))
}

func (p Packet) setTotalLen(n int) {
	if p.Version() == IPv6 {
		binary.BigEndian.PutUint16(p[4:6], uint16(n-ipv6HeaderLen))
		return
	}
	binary.BigEndian.PutUint16(p[2:4], uint16(n))
}

func (p Packet) isFragment() bool {
	if p.Version() == IPv6 {
		return false
	}
	// MF flag or a non-zero fragment offset
	return binary.BigEndian.Uint16(p[6:8])&0x3fff != 0
}

func (p Packet) Validate() error {
	if len(p) == 0 {
		return ErrTruncated
	}
	switch p.Version() {
	case IPv4:
		if len(p) < ipv4MinHeaderLen {
			return ErrTruncated
		}
		ihl := p.HeaderLen()
		if ihl < ipv4MinHeaderLen || ihl > len(p) {
			return ErrTruncated
		}
		if t := p.TotalLen(); t < ihl || t > len(p) {
			return ErrTruncated
		}
	case IPv6:
		if len(p) < ipv6HeaderLen || p.TotalLen() > len(p) {
			return ErrTruncated
		}
	default:
		return ErrVersion(p.Version())
	}
	return nil
}

func (p Packet) SrcIP() net.IP {
	if p.Version() == IPv6 {
		ip := make([]byte, 16)
		copy(ip, p[8:24])
		return net.IP(ip)
	}
	ip := make([]byte, 4)
	copy(ip, p[12:16])
	return net.IP(ip)
}

func (p Packet) DstIP() net.IP {
	if p.Version() == IPv6 {
		ip := make([]byte, 16)
		copy(ip, p[24:40])
		return net.IP(ip)
	}
	ip := make([]byte, 4)
	copy(ip, p[16:20])
	return net.IP(ip)
}

func (p Packet) SetSrcIP(s net.IP) error {
	if p.Version() == IPv6 {
		if s.To4() != nil || s.To16() == nil {
			return ErrInvalidIPv6
		}
		copy(p[8:24], s.To16())
		return nil
	}
	if s.To4() == nil {
		return ErrInvalidIPv4
	}
	copy(p[12:16], s.To4())
	return nil
}

func (p Packet) SetDstIP(s net.IP) error {
	if p.Version() == IPv6 {
		if s.To4() != nil || s.To16() == nil {
			return ErrInvalidIPv6
		}
		copy(p[24:40], s.To16())
		return nil
	}
	if s.To4() == nil {
		return ErrInvalidIPv4
	}
	copy(p[16:20], s.To4())
	return nil
}

// UpdateChecksum recomputes the IPv4 header checksum. IPv6 has none.
func (p Packet) UpdateChecksum() {
	if p.Version() == IPv6 {
		return
	}
	copy(p[10:12], []byte{0, 0})
	sum := segment.Fold(segment.Sum(p[:p.HeaderLen()]))
	binary.BigEndian.PutUint16(p[10:12], sum)
}

// PseudoHeaderChecksum is the unfolded sum of the pseudo-header for a
// segment of the given protocol and length.
func (p Packet) PseudoHeaderChecksum(proto segment.Protocol, length int) uint32 {
	var addrs uint32
	if p.Version() == IPv6 {
		addrs = segment.Sum(p[8:40])
	} else {
		addrs = segment.Sum(p[12:20])
	}
	return addrs + uint32(proto) + uint32(length)
}

// Transport parses the transport segment. The codec sees the packet cut at
// the announced total length, so link-layer padding never becomes payload.
func (p Packet) Transport() (segment.Segment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.isFragment() {
		return nil, ErrFragment
	}
	return segment.Parse(p.Protocol(), p[:p.TotalLen()], p.HeaderLen())
}

// VerifyUDP checks u's checksum with this packet's pseudo-header. A zero
// checksum means "not computed" over IPv4; IPv6 requires one (RFC 8200).
func (p Packet) VerifyUDP(u *segment.UDP) bool {
	if u.Checksum() == 0 {
		return p.Version() == IPv4
	}
	return u.Verify(p.PseudoHeaderChecksum(segment.ProtocolUDP, u.BytesLength()))
}

// Rebuild writes seg back into the packet and refreshes the IP header
// checksum. seg must be bound to this packet's buffer.
func (p Packet) Rebuild(seg segment.Segment) error {
	if err := seg.BuildSegment(p.PseudoHeaderChecksum(p.Protocol(), seg.BytesLength())); err != nil {
		return err
	}
	p.UpdateChecksum()
	return nil
}

// Resize returns a new packet with p's header and room for a segment of
// segLen bytes. The total length field is updated; the segment bytes are
// left zero for the caller to build.
func (p Packet) Resize(segLen int) (Packet, error) {
	hl := p.HeaderLen()
	n := hl + segLen
	if n > 0xffff+ipv6HeaderLen || (p.Version() == IPv4 && n > 0xffff) {
		return nil, segment.ErrPayloadTooLarge
	}
	out := make(Packet, n)
	copy(out, p[:hl])
	out.setTotalLen(n)
	return out, nil
}

func (p Packet) String() string {
	return fmt.Sprintf("%v %v -> %v", p.Protocol(), p.SrcIP(), p.DstIP())
}
