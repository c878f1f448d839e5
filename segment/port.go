package segment

import (
	"encoding/binary"
	"strconv"
)

// Port is a transport port. On the wire it is 2 bytes in network order.
type Port uint16

// PortFrom decodes a port from the first 2 bytes of b.
func PortFrom(b []byte) Port {
	return Port(binary.BigEndian.Uint16(b))
}

// Put writes p into the first 2 bytes of b.
func (p Port) Put(b []byte) {
	binary.BigEndian.PutUint16(b, uint16(p))
}

func (p Port) Bytes() [2]byte {
	var b [2]byte
	p.Put(b[:])
	return b
}

func (p Port) String() string {
	return strconv.Itoa(int(p))
}
