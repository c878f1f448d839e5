// Package capture runs the rewriter over packets stored in a pcap file.
package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/intxff/rdseg/log"
	"github.com/intxff/rdseg/rewrite"
	"go.uber.org/zap"
)

type ErrLinkType layers.LinkType

func (e ErrLinkType) Error() string {
	return fmt.Sprintf("capture: unsupported link type %v", layers.LinkType(e))
}

type Stats struct {
	Read    int
	Written int
	Dropped int
	// NonIP counts frames written through without being looked at.
	NonIP int
}

// Rewrite copies the pcap stream r to w, passing every IP packet through
// rw. Dropped packets are left out of w; replies are written in place of
// the packet that caused them.
func Rewrite(r io.Reader, w io.Writer, rw *rewrite.Rewriter) (Stats, error) {
	var stats Stats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("read pcap header: %w", err)
	}
	linkType := reader.LinkType()
	switch linkType {
	case layers.LinkTypeEthernet, layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
	default:
		return stats, ErrLinkType(linkType)
	}

	writer := pcapgo.NewWriter(w)
	if err := writer.WriteFileHeader(reader.Snaplen(), linkType); err != nil {
		return stats, fmt.Errorf("write pcap header: %w", err)
	}

	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read packet %d: %w", stats.Read+1, err)
		}
		stats.Read++

		var (
			out     []byte
			verdict rewrite.Verdict
		)
		if linkType == layers.LinkTypeEthernet {
			out, verdict, err = processEthernet(data, rw)
		} else {
			out, verdict, err = rw.Process(data)
		}
		if err != nil {
			log.Debug("[Capture] packet passed unmodified",
				zap.Int("index", stats.Read), zap.Error(err))
		}
		switch {
		case out == nil && verdict == rewrite.VerdictDrop:
			stats.Dropped++
			continue
		case out == nil:
			stats.NonIP++
			out = data
		}

		// a truncated capture keeps its original wire length
		if len(out) != len(data) || ci.CaptureLength == ci.Length {
			ci.Length = len(out)
		}
		ci.CaptureLength = len(out)
		if err := writer.WritePacket(ci, out); err != nil {
			return stats, fmt.Errorf("write packet %d: %w", stats.Read, err)
		}
		stats.Written++
	}

	log.Info("[Capture] done",
		zap.Int("read", stats.Read),
		zap.Int("written", stats.Written),
		zap.Int("dropped", stats.Dropped))
	return stats, nil
}

// processEthernet returns a nil slice with VerdictPass for frames that do
// not carry IP. Any number of 802.1Q and 802.1ad tags is skipped.
func processEthernet(frame []byte, rw *rewrite.Rewriter) ([]byte, rewrite.Verdict, error) {
	var (
		eth   layers.Ethernet
		dot1q layers.Dot1Q
	)
	if err := eth.DecodeFromBytes(frame, gopacket.NilDecodeFeedback); err != nil {
		return nil, rewrite.VerdictPass, nil
	}
	etherType := eth.EthernetType
	payload := eth.Payload
	for etherType == layers.EthernetTypeDot1Q || etherType == layers.EthernetTypeQinQ {
		if err := dot1q.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return nil, rewrite.VerdictPass, nil
		}
		etherType = dot1q.Type
		payload = dot1q.Payload
	}
	if etherType != layers.EthernetTypeIPv4 && etherType != layers.EthernetTypeIPv6 {
		return nil, rewrite.VerdictPass, nil
	}
	hl := len(frame) - len(payload)

	out, verdict, err := rw.Process(payload)
	switch verdict {
	case rewrite.VerdictDrop:
		return nil, verdict, err
	case rewrite.VerdictPass, rewrite.VerdictRewrite:
		return frame, verdict, err
	}

	reply := make([]byte, hl+len(out))
	copy(reply, frame[:hl])
	// swap destination and source MAC
	copy(reply[0:6], eth.SrcMAC)
	copy(reply[6:12], eth.DstMAC)
	copy(reply[hl:], out)
	return reply, verdict, err
}
