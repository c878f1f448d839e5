// Package rewrite applies address and payload rules to raw IP packets
// carrying UDP, rebuilding each rewritten segment in place.
package rewrite

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/intxff/rdseg/ip"
	"github.com/intxff/rdseg/log"
	"github.com/intxff/rdseg/segment"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

type Verdict uint8

const (
	// VerdictPass forwards the packet unchanged.
	VerdictPass Verdict = iota
	// VerdictRewrite forwards the packet after modifying it in place.
	VerdictRewrite
	// VerdictReply sends a packet back toward the original source.
	VerdictReply
	VerdictDrop
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictRewrite:
		return "rewrite"
	case VerdictReply:
		return "reply"
	case VerdictDrop:
		return "drop"
	}
	return fmt.Sprintf("verdict(%d)", uint8(v))
}

type Stats struct {
	Packets   uint64
	Passed    uint64
	Rewritten uint64
	Replied   uint64
	Dropped   uint64
	Invalid   uint64
}

type Rewriter struct {
	rules []*Rule

	packets   atomic.Uint64
	passed    atomic.Uint64
	rewritten atomic.Uint64
	replied   atomic.Uint64
	dropped   atomic.Uint64
	invalid   atomic.Uint64
}

func New(rules []*Rule) *Rewriter {
	return &Rewriter{rules: rules}
}

func (r *Rewriter) Stats() Stats {
	return Stats{
		Packets:   r.packets.Load(),
		Passed:    r.passed.Load(),
		Rewritten: r.rewritten.Load(),
		Replied:   r.replied.Load(),
		Dropped:   r.dropped.Load(),
		Invalid:   r.invalid.Load(),
	}
}

func (r *Rewriter) match(m *Metadata) *Rule {
	for _, rule := range r.rules {
		if rule.Matcher.Match(m) {
			return rule
		}
	}
	return nil
}

// Process runs one raw IP packet through the rules. For VerdictPass and
// VerdictRewrite the returned slice is b itself; VerdictReply may return a
// newly allocated packet; VerdictDrop returns nil. Packets that are not UDP
// pass untouched. A malformed packet is returned unchanged with VerdictPass
// and a non-nil error so the caller can decide whether to forward it.
func (r *Rewriter) Process(b []byte) ([]byte, Verdict, error) {
	r.packets.Add(1)
	out, v, err := r.process(ip.Packet(b))
	if err != nil {
		r.invalid.Add(1)
		r.passed.Add(1)
		return b, VerdictPass, err
	}
	switch v {
	case VerdictPass:
		r.passed.Add(1)
	case VerdictRewrite:
		r.rewritten.Add(1)
	case VerdictReply:
		r.replied.Add(1)
	case VerdictDrop:
		r.dropped.Add(1)
	}
	return out, v, nil
}

func (r *Rewriter) process(pkt ip.Packet) ([]byte, Verdict, error) {
	seg, err := pkt.Transport()
	var unsupported segment.ErrUnsupportedProtocol
	if errors.As(err, &unsupported) || errors.Is(err, ip.ErrFragment) {
		return pkt, VerdictPass, nil
	}
	if err != nil {
		return nil, VerdictPass, err
	}
	u, ok := seg.(*segment.UDP)
	if !ok {
		return pkt, VerdictPass, nil
	}

	query := unpackDNS(u.SourcePort, u.DestinationPort, u.Payload())
	m := &Metadata{
		SrcIP:   pkt.SrcIP(),
		DstIP:   pkt.DstIP(),
		SrcPort: u.SourcePort,
		DstPort: u.DestinationPort,
		Domain:  queryName(query),
	}
	if query != nil && len(query.Question) > 0 {
		log.Debug("[Rewrite] dns",
			zap.Bool("response", query.Response),
			zap.String("name", query.Question[0].Name),
			zap.Uint16("id", query.Id))
	}

	rule := r.match(m)
	if rule == nil {
		return pkt, VerdictPass, nil
	}
	log.Debug("[Rewrite] rule matched",
		zap.String("rule", rule.Raw),
		zap.String("src", fmt.Sprintf("%v:%v", m.SrcIP, m.SrcPort)),
		zap.String("dst", fmt.Sprintf("%v:%v", m.DstIP, m.DstPort)))

	a := rule.Action
	switch a.Type {
	case ActionPass:
		return pkt, VerdictPass, nil
	case ActionDrop:
		return nil, VerdictDrop, nil
	case ActionRedirect:
		if a.IP != nil {
			if err := pkt.SetDstIP(a.IP); err != nil {
				return nil, VerdictPass, fmt.Errorf("rule %q: %w", rule.Raw, err)
			}
		}
		if a.Port != 0 {
			u.DestinationPort = a.Port
		}
	case ActionSNAT:
		if a.IP != nil {
			if err := pkt.SetSrcIP(a.IP); err != nil {
				return nil, VerdictPass, fmt.Errorf("rule %q: %w", rule.Raw, err)
			}
		}
		if a.Port != 0 {
			u.SourcePort = a.Port
		}
	case ActionReflect:
		if err := reverseAddrs(pkt, pkt); err != nil {
			return nil, VerdictPass, fmt.Errorf("rule %q: %w", rule.Raw, err)
		}
		u.SourcePort, u.DestinationPort = u.DestinationPort, u.SourcePort
		if err := pkt.Rebuild(u); err != nil {
			return nil, VerdictPass, err
		}
		return pkt, VerdictReply, nil
	case ActionNXDomain:
		if m.Domain == "" {
			return pkt, VerdictPass, nil
		}
		return r.replyNXDomain(pkt, u, m, query)
	}

	if err := pkt.Rebuild(u); err != nil {
		return nil, VerdictPass, err
	}
	return pkt, VerdictRewrite, nil
}

func (r *Rewriter) replyNXDomain(pkt ip.Packet, u *segment.UDP, m *Metadata, query *dns.Msg) ([]byte, Verdict, error) {
	payload, err := nxdomain(query)
	if err != nil {
		return nil, VerdictPass, fmt.Errorf("pack dns reply: %w", err)
	}
	reply, err := pkt.Resize(segment.UDPHeaderLen + len(payload))
	if err != nil {
		return nil, VerdictPass, err
	}
	if err := reverseAddrs(reply, pkt); err != nil {
		return nil, VerdictPass, err
	}
	seg := segment.NewUDP(reply, reply.HeaderLen(), u.DestinationPort, u.SourcePort, payload)
	if err := reply.Rebuild(seg); err != nil {
		return nil, VerdictPass, err
	}
	log.Debug("[Rewrite] answered NXDOMAIN", zap.String("name", m.Domain))
	return reply, VerdictReply, nil
}

// reverseAddrs addresses dst back to the sender of src. dst and src may be
// the same packet.
func reverseAddrs(dst, src ip.Packet) error {
	from, to := src.SrcIP(), src.DstIP()
	if err := dst.SetSrcIP(to); err != nil {
		return err
	}
	return dst.SetDstIP(from)
}
