package rewrite

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/intxff/rdseg/segment"
	"github.com/intxff/rdseg/util/trie"
)

// Metadata is what rules match on. Domain is the first question of a DNS
// query and empty for any other payload.
type Metadata struct {
	SrcIP   net.IP
	DstIP   net.IP
	SrcPort segment.Port
	DstPort segment.Port
	Domain  string
}

type Matcher interface {
	Name() string
	Match(m *Metadata) bool
}

type ActionType string

const (
	ActionPass     ActionType = "PASS"
	ActionDrop     ActionType = "DROP"
	ActionRedirect ActionType = "REDIRECT"
	ActionSNAT     ActionType = "SNAT"
	ActionReflect  ActionType = "REFLECT"
	ActionNXDomain ActionType = "NXDOMAIN"
)

// Action rewrites the matched packet. IP and Port are the new address for
// REDIRECT and SNAT; a nil IP or zero Port keeps the packet's own.
type Action struct {
	Type ActionType
	IP   net.IP
	Port segment.Port
}

func (a Action) String() string {
	switch a.Type {
	case ActionRedirect, ActionSNAT:
		var ip, port string
		if a.IP != nil {
			ip = a.IP.String()
		}
		if a.Port != 0 {
			port = a.Port.String()
		}
		return string(a.Type) + "," + net.JoinHostPort(ip, port)
	}
	return string(a.Type)
}

type Rule struct {
	Matcher Matcher
	Action  Action
	Raw     string
}

type ErrInvalidRule struct {
	Rule   string
	Reason string
}

func (e ErrInvalidRule) Error() string {
	return fmt.Sprintf("invalid rule %q: %v", e.Rule, e.Reason)
}

func (e ErrInvalidRule) Is(err error) bool {
	_, ok := err.(ErrInvalidRule)
	return ok
}

// ParseRules parses rules of the form
//
//	MATCHER,pattern,ACTION[,argument]
//	DEFAULT,ACTION[,argument]
//
// geo may be nil when no rule uses GEOIP.
func ParseRules(lines []string, geo CountryLookup) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(lines))
	for _, line := range lines {
		r, err := ParseRule(line, geo)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func ParseRule(s string, geo CountryLookup) (*Rule, error) {
	entry := strings.Split(s, ",")
	for i := range entry {
		entry[i] = strings.TrimSpace(entry[i])
	}
	invalid := func(reason string) error {
		return ErrInvalidRule{Rule: s, Reason: reason}
	}
	if len(entry) < 2 {
		return nil, invalid("too few fields")
	}

	var (
		m   Matcher
		err error
	)
	kind := strings.ToUpper(entry[0])
	if kind == "DEFAULT" {
		m = defaultMatcher{}
		entry = entry[1:]
	} else {
		if len(entry) < 3 {
			return nil, invalid("missing action")
		}
		pattern := entry[1]
		switch kind {
		case "SRCPORT", "DSTPORT":
			port, perr := strconv.ParseUint(pattern, 10, 16)
			if perr != nil {
				return nil, invalid("bad port " + pattern)
			}
			m = &portMatcher{dst: kind == "DSTPORT", port: segment.Port(port)}
		case "SRC", "DST":
			_, cidr, cerr := net.ParseCIDR(pattern)
			if cerr != nil {
				return nil, invalid("bad cidr " + pattern)
			}
			m = &cidrMatcher{dst: kind == "DST", cidr: cidr}
		case "DOMAIN":
			m, err = newDomainMatcher(pattern)
			if err != nil {
				return nil, invalid(err.Error())
			}
		case "GEOIP":
			if geo == nil {
				return nil, invalid("GEOIP needs an mmdb")
			}
			m = newGeoIPMatcher(pattern, geo)
		default:
			return nil, invalid("unknown matcher " + entry[0])
		}
		entry = entry[2:]
	}

	a, reason := parseAction(entry)
	if reason != "" {
		return nil, invalid(reason)
	}
	return &Rule{Matcher: m, Action: a, Raw: s}, nil
}

func parseAction(entry []string) (Action, string) {
	a := Action{Type: ActionType(strings.ToUpper(entry[0]))}
	switch a.Type {
	case ActionPass, ActionDrop, ActionReflect, ActionNXDomain:
		if len(entry) != 1 {
			return a, string(a.Type) + " takes no argument"
		}
	case ActionRedirect, ActionSNAT:
		if len(entry) != 2 {
			return a, string(a.Type) + " needs ip:port"
		}
		host, port, err := net.SplitHostPort(entry[1])
		if err != nil {
			return a, err.Error()
		}
		if host != "" {
			if a.IP = net.ParseIP(host); a.IP == nil {
				return a, "bad ip " + host
			}
		}
		if port != "" {
			p, err := strconv.ParseUint(port, 10, 16)
			if err != nil || p == 0 {
				return a, "bad port " + port
			}
			a.Port = segment.Port(p)
		}
		if a.IP == nil && a.Port == 0 {
			return a, string(a.Type) + " changes nothing"
		}
	default:
		return a, "unknown action " + entry[0]
	}
	return a, ""
}

type defaultMatcher struct{}

func (defaultMatcher) Name() string          { return "DEFAULT" }
func (defaultMatcher) Match(*Metadata) bool { return true }

type portMatcher struct {
	dst  bool
	port segment.Port
}

func (p *portMatcher) Name() string {
	if p.dst {
		return "DSTPORT"
	}
	return "SRCPORT"
}

func (p *portMatcher) Match(m *Metadata) bool {
	if p.dst {
		return m.DstPort == p.port
	}
	return m.SrcPort == p.port
}

type cidrMatcher struct {
	dst  bool
	cidr *net.IPNet
}

func (c *cidrMatcher) Name() string {
	if c.dst {
		return "DST"
	}
	return "SRC"
}

func (c *cidrMatcher) Match(m *Metadata) bool {
	if c.dst {
		return c.cidr.Contains(m.DstIP)
	}
	return c.cidr.Contains(m.SrcIP)
}

// domainMatcher matches DNS queries. Several names may be given separated
// by "|".
type domainMatcher struct {
	*trie.Trie
}

func newDomainMatcher(pattern string) (*domainMatcher, error) {
	t := trie.New()
	for _, d := range strings.Split(pattern, "|") {
		if err := t.Insert(strings.TrimSpace(d)); err != nil {
			return nil, err
		}
	}
	return &domainMatcher{Trie: t}, nil
}

func (d *domainMatcher) Name() string {
	return "DOMAIN"
}

func (d *domainMatcher) Match(m *Metadata) bool {
	if m.Domain == "" {
		return false
	}
	return d.Trie.Match(m.Domain)
}
