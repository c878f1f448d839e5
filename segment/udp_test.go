package segment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// refChecksum folds after every word, unlike Sum/Fold which fold once.
func refChecksum(b []byte, pseudo uint32) uint16 {
	s := pseudo
	for s>>16 != 0 {
		s = s>>16 + s&0xffff
	}
	for i := 0; i < len(b); i += 2 {
		w := uint32(b[i]) << 8
		if i+1 < len(b) {
			w |= uint32(b[i+1])
		}
		s += w
		if s > 0xffff {
			s = s&0xffff + 1
		}
	}
	return ^uint16(s)
}

func TestBuildSegmentExample(t *testing.T) {
	buf := make([]byte, 12)
	u := NewUDP(buf, 0, 53, 12345, []byte{0x01, 0x02, 0x03, 0x04})
	if err := u.BuildSegment(0); err != nil {
		t.Fatalf("BuildSegment: %v", err)
	}
	want := []byte{
		0x00, 0x35, // source port 53
		0x30, 0x39, // destination port 12345
		0x00, 0x0c, // length 12
		0xcb, 0x7f, // checksum
		0x01, 0x02, 0x03, 0x04,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Fatalf("segment mismatch (-want +got):\n%s", diff)
	}

	zeroed := append([]byte(nil), buf...)
	zeroed[6], zeroed[7] = 0, 0
	if got, want := binary.BigEndian.Uint16(buf[6:8]), refChecksum(zeroed, 0); got != want {
		t.Fatalf("checksum = %#04x; want %#04x", got, want)
	}
}

func TestBuildSegmentZeroChecksumIsAllOnes(t *testing.T) {
	// header words sum to 0x0008 with zero ports and no payload, so a
	// pseudo sum of 0xfff7 makes the folded sum 0xffff and its complement 0
	buf := make([]byte, 8)
	u := NewUDP(buf, 0, 0, 0, nil)
	if err := u.BuildSegment(0xfff7); err != nil {
		t.Fatalf("BuildSegment: %v", err)
	}
	if got := binary.BigEndian.Uint16(buf[6:8]); got != 0xffff {
		t.Fatalf("checksum = %#04x; want 0xffff", got)
	}
	if !u.Verify(0xfff7) {
		t.Fatal("Verify rejected an all-ones checksum")
	}
}

func TestBuildSegmentChecksum(t *testing.T) {
	tests := []struct {
		name    string
		src     Port
		dst     Port
		payload []byte
		pseudo  uint32
	}{
		{"empty", 1, 2, nil, 0},
		{"odd", 5353, 53, []byte("odd"), 0x1234},
		{"dns", 40000, 53, []byte("\x12\x34\x01\x00\x00\x01\x00\x00\x00\x00\x00\x00"), 0x0002_3a41},
		{"max ports", 0xffff, 0xffff, bytes.Repeat([]byte{0xff}, 33), 0xffff_fff0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, UDPHeaderLen+len(tt.payload))
			u := NewUDP(buf, 0, tt.src, tt.dst, tt.payload)
			if err := u.BuildSegment(tt.pseudo); err != nil {
				t.Fatalf("BuildSegment: %v", err)
			}
			zeroed := append([]byte(nil), buf...)
			zeroed[6], zeroed[7] = 0, 0
			want := refChecksum(zeroed, tt.pseudo)
			if want == 0 {
				want = 0xffff
			}
			if got := u.Checksum(); got != want {
				t.Errorf("checksum = %#04x; want %#04x", got, want)
			}
			if !u.Verify(tt.pseudo) {
				t.Error("Verify = false after build")
			}
			if u.Verify(tt.pseudo + 1) {
				t.Error("Verify = true with a different pseudo-header sum")
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x00},
		[]byte("hello, world"),
		bytes.Repeat([]byte{0xa5, 0x5a}, 700),
	}
	for _, p := range payloads {
		for _, off := range []int{0, 20, 40} {
			buf := make([]byte, off+UDPHeaderLen+len(p))
			if err := NewUDP(buf, off, 12345, 443, p).BuildSegment(0xbeef); err != nil {
				t.Fatalf("BuildSegment(len=%d, off=%d): %v", len(p), off, err)
			}
			u, err := ParseUDP(buf, off)
			if err != nil {
				t.Fatalf("ParseUDP(len=%d, off=%d): %v", len(p), off, err)
			}
			if u.SourcePort != 12345 || u.DestinationPort != 443 {
				t.Errorf("ports = %v/%v; want 12345/443", u.SourcePort, u.DestinationPort)
			}
			if !bytes.Equal(u.Payload(), p) {
				t.Errorf("payload mismatch for len=%d off=%d", len(p), off)
			}
			if u.BytesLength() != UDPHeaderLen+len(p) {
				t.Errorf("BytesLength = %d; want %d", u.BytesLength(), UDPHeaderLen+len(p))
			}
			if err := u.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		}
	}
}

func TestLengthField(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 8, 255, 256, 1472, 9000, MaxUDPPayload - 1, MaxUDPPayload} {
		buf := make([]byte, UDPHeaderLen+n)
		u := NewUDP(buf, 0, 1, 2, make([]byte, n))
		if err := u.BuildSegment(0); err != nil {
			t.Fatalf("BuildSegment(%d): %v", n, err)
		}
		if got := binary.BigEndian.Uint16(buf[4:6]); int(got) != UDPHeaderLen+n {
			t.Errorf("length field for payload %d = %d; want %d", n, got, UDPHeaderLen+n)
		}
	}
}

func TestPayloadTooLarge(t *testing.T) {
	buf := make([]byte, UDPHeaderLen+MaxUDPPayload+1)
	u := NewUDP(buf, 0, 1, 2, make([]byte, MaxUDPPayload+1))
	if err := u.BuildSegment(0); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("BuildSegment = %v; want ErrPayloadTooLarge", err)
	}
}

func TestEmptyPayload(t *testing.T) {
	buf := make([]byte, 8)
	if err := NewUDP(buf, 0, 67, 68, []byte{}).BuildSegment(0); err != nil {
		t.Fatalf("BuildSegment: %v", err)
	}
	u, err := ParseUDP(buf, 0)
	if err != nil {
		t.Fatalf("ParseUDP: %v", err)
	}
	if u.BytesLength() != 8 {
		t.Errorf("BytesLength = %d; want 8", u.BytesLength())
	}
	if u.Length() != 8 {
		t.Errorf("Length = %d; want 8", u.Length())
	}
	if len(u.Payload()) != 0 {
		t.Errorf("payload = %x; want empty", u.Payload())
	}
}

func TestParseShortBuffer(t *testing.T) {
	for _, off := range []int{0, 20} {
		buf := make([]byte, off+7)
		u, err := ParseUDP(buf, off)
		if u != nil {
			t.Errorf("ParseUDP(off=%d) returned a segment for a short buffer", off)
		}
		var m ErrMalformed
		if !errors.As(err, &m) {
			t.Fatalf("ParseUDP(off=%d) error = %v; want ErrMalformed", off, err)
		}
		if m.Need != off+8 || m.Have != off+7 {
			t.Errorf("ErrMalformed = %+v", m)
		}
	}
	if _, err := ParseUDP(make([]byte, 8), -1); err == nil {
		t.Error("ParseUDP accepted a negative offset")
	}
}

func TestBuildSegmentShortBuffer(t *testing.T) {
	buf := make([]byte, 20+8+3)
	for i := range buf {
		buf[i] = 0xee
	}
	orig := append([]byte(nil), buf...)
	u := NewUDP(buf, 20, 1, 2, []byte{1, 2, 3, 4})
	err := u.BuildSegment(0)
	if !errors.Is(err, ErrShortBuffer{}) {
		t.Fatalf("BuildSegment = %v; want ErrShortBuffer", err)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatal("BuildSegment modified the buffer after a precondition failure")
	}
}

func TestBuildSegmentLeavesPrefix(t *testing.T) {
	const off = 20
	payload := []byte("payload")
	buf := make([]byte, off+UDPHeaderLen+len(payload))
	for i := 0; i < off; i++ {
		buf[i] = byte(i + 1)
	}
	prefix := append([]byte(nil), buf[:off]...)
	u := NewUDP(buf, off, 1000, 2000, payload)
	if err := u.BuildSegment(0x11); err != nil {
		t.Fatalf("BuildSegment: %v", err)
	}
	if diff := cmp.Diff(prefix, buf[:off]); diff != "" {
		t.Fatalf("bytes before offset changed (-want +got):\n%s", diff)
	}
	if got := ComputeChecksum(buf, off, -1, 0x11); got != 0 {
		t.Errorf("sum over built segment = %#04x; want 0", got)
	}
}

func TestBuildSegmentInPlaceAfterParse(t *testing.T) {
	buf := make([]byte, 8+5)
	if err := NewUDP(buf, 0, 1, 2, []byte("abcde")).BuildSegment(0); err != nil {
		t.Fatal(err)
	}
	u, err := ParseUDP(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	u.SourcePort, u.DestinationPort = u.DestinationPort, u.SourcePort
	if err := u.BuildSegment(0); err != nil {
		t.Fatal(err)
	}
	if PortFrom(buf[0:]) != 2 || PortFrom(buf[2:]) != 1 {
		t.Errorf("ports not swapped: % x", buf[:4])
	}
	if string(buf[8:]) != "abcde" {
		t.Errorf("payload = %q; want abcde", buf[8:])
	}
	if !u.Verify(0) {
		t.Error("Verify = false after in-place rebuild")
	}
}

func TestParseUDPStrict(t *testing.T) {
	buf := make([]byte, 8+4+3)
	if err := NewUDP(buf[:12], 0, 1, 2, []byte{1, 2, 3, 4}).BuildSegment(0); err != nil {
		t.Fatal(err)
	}
	copy(buf[12:], "zzz")

	loose, err := ParseUDP(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(loose.Payload()) != 7 {
		t.Errorf("ParseUDP payload len = %d; want 7", len(loose.Payload()))
	}
	if err := loose.Validate(); !errors.Is(err, ErrLengthMismatch{}) {
		t.Errorf("Validate = %v; want ErrLengthMismatch", err)
	}

	strict, err := ParseUDPStrict(buf, 0)
	if err != nil {
		t.Fatalf("ParseUDPStrict: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, strict.Payload()); diff != "" {
		t.Errorf("strict payload (-want +got):\n%s", diff)
	}

	binary.BigEndian.PutUint16(buf[4:6], 100)
	if _, err := ParseUDPStrict(buf, 0); !errors.Is(err, ErrLengthMismatch{}) {
		t.Errorf("ParseUDPStrict with oversized field = %v; want ErrLengthMismatch", err)
	}
	binary.BigEndian.PutUint16(buf[4:6], 4)
	if _, err := ParseUDPStrict(buf, 0); !errors.Is(err, ErrLengthMismatch{}) {
		t.Errorf("ParseUDPStrict with undersized field = %v; want ErrLengthMismatch", err)
	}
}

func TestParseDispatch(t *testing.T) {
	buf := make([]byte, 8)
	s, err := Parse(ProtocolUDP, buf, 0)
	if err != nil {
		t.Fatalf("Parse(udp): %v", err)
	}
	if _, ok := s.(*UDP); !ok {
		t.Fatalf("Parse(udp) = %T; want *UDP", s)
	}
	_, err = Parse(ProtocolTCP, make([]byte, 20), 0)
	if !errors.Is(err, ErrUnsupportedProtocol{Protocol: ProtocolTCP}) {
		t.Fatalf("Parse(tcp) = %v; want ErrUnsupportedProtocol", err)
	}
}

func TestSegmentRebind(t *testing.T) {
	var s Segment = NewUDP(nil, 0, 7, 9, nil)
	buf := make([]byte, 4+8+2)
	s.SetPacketData(buf)
	s.SetOffset(4)
	s.SetPayload([]byte{0xab, 0xcd})
	if s.BytesLength() != 10 {
		t.Fatalf("BytesLength = %d; want 10", s.BytesLength())
	}
	if err := s.BuildSegment(0); err != nil {
		t.Fatalf("BuildSegment: %v", err)
	}
	if PortFrom(buf[4:]) != 7 || PortFrom(buf[6:]) != 9 {
		t.Errorf("ports = % x", buf[4:8])
	}
	if !bytes.Equal(s.PacketData(), buf) || s.Offset() != 4 {
		t.Error("rebinding did not stick")
	}
}

func TestVerifyRejectsZeroField(t *testing.T) {
	buf := make([]byte, 8+4)
	u := NewUDP(buf, 0, 1, 2, []byte("data"))
	if err := u.BuildSegment(0); err != nil {
		t.Fatal(err)
	}
	if !u.Verify(0) {
		t.Fatal("Verify = false after BuildSegment")
	}
	buf[6], buf[7] = 0, 0
	if u.Verify(0) {
		t.Error("Verify accepted a zero checksum field")
	}
}

func TestUnbuiltAccessors(t *testing.T) {
	u := NewUDP(nil, 0, 1, 2, nil)
	if u.Length() != 0 || u.Checksum() != 0 {
		t.Errorf("Length, Checksum = %v, %v; want 0, 0", u.Length(), u.Checksum())
	}
	var short ErrShortBuffer
	if err := u.Validate(); !errors.As(err, &short) || short.Need != 8 || short.Have != 0 {
		t.Errorf("Validate = %v; want ErrShortBuffer{8, 0}", err)
	}
	if u.Verify(0) {
		t.Error("Verify accepted a segment with no buffer")
	}

	u = NewUDP(make([]byte, 10), 4, 1, 2, nil)
	if err := u.Validate(); !errors.As(err, &short) || short.Need != 12 {
		t.Errorf("Validate at offset 4 = %v; want ErrShortBuffer", err)
	}
}
