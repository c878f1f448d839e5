package rewrite

import (
	"github.com/intxff/rdseg/segment"
	"github.com/miekg/dns"
)

const dnsPort segment.Port = 53

// unpackDNS decodes payload when either port is 53. A payload that does not
// decode is not an error; the packet is simply not treated as DNS.
func unpackDNS(src, dst segment.Port, payload []byte) *dns.Msg {
	if src != dnsPort && dst != dnsPort {
		return nil
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return nil
	}
	return msg
}

func queryName(msg *dns.Msg) string {
	if msg == nil || msg.Response || len(msg.Question) == 0 {
		return ""
	}
	return msg.Question[0].Name
}

// nxdomain builds the wire form of a name error answer to query.
func nxdomain(query *dns.Msg) ([]byte, error) {
	reply := new(dns.Msg)
	reply.SetRcode(query, dns.RcodeNameError)
	reply.RecursionAvailable = true
	return reply.Pack()
}
