package segment

// Sum returns the unfolded sum of b taken as big-endian 16-bit words. An odd
// trailing byte is padded with zero.
func Sum(b []byte) uint32 {
	var sum uint32 = 0
	l := len(b)
	for i := 0; i+1 < l; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if l%2 == 1 {
		sum += uint32(b[l-1]) << 8
	}
	return sum
}

// Fold adds partial sums with end-around carry and returns the one's
// complement of the result (RFC 1071).
func Fold(s ...uint32) uint16 {
	var sum uint64 = 0
	for _, v := range s {
		sum += uint64(v)
	}
	for sum>>16 != 0 {
		sum = sum>>16 + sum&0xffff
	}
	return ^uint16(sum)
}

// ComputeChecksum is the RFC 1071 checksum of b[from:to] seeded with the
// pseudo-header partial sum. A negative to means the end of b.
func ComputeChecksum(b []byte, from, to int, pseudoHeaderChecksum uint32) uint16 {
	if to < 0 {
		to = len(b)
	}
	return Fold(pseudoHeaderChecksum, Sum(b[from:to]))
}
