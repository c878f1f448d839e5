package rewrite

import (
	"fmt"
	"net"
	"strings"

	"github.com/intxff/rdseg/log"
	"github.com/intxff/rdseg/util/lru"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// CountryLookup is satisfied by *geoip2.Reader.
type CountryLookup interface {
	Country(ip net.IP) (*geoip2.Country, error)
}

// OpenMMDB opens a MaxMind country database.
func OpenMMDB(path string) (*geoip2.Reader, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb %v: %w", path, err)
	}
	return db, nil
}

const geoipCacheSize = 4096

type geoipMatcher struct {
	country string
	db      CountryLookup
	cache   *lru.LRU[string, string]
}

func newGeoIPMatcher(country string, db CountryLookup) *geoipMatcher {
	return &geoipMatcher{
		country: strings.ToUpper(country),
		db:      db,
		cache:   lru.New[string, string](geoipCacheSize),
	}
}

func (g *geoipMatcher) Name() string {
	return "GEOIP"
}

// Match looks up the destination address.
func (g *geoipMatcher) Match(m *Metadata) bool {
	if m.DstIP == nil {
		return false
	}
	key := m.DstIP.String()
	code, ok := g.cache.Get(key)
	if !ok {
		country, err := g.db.Country(m.DstIP)
		if err != nil {
			log.Error("[Rewrite] geoip lookup failed",
				zap.String("ip", key), zap.Error(err))
			return false
		}
		code = country.Country.IsoCode
		g.cache.Put(key, code)
	}
	return code == g.country
}
