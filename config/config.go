package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/intxff/rdseg/ingress/tun"
	"github.com/intxff/rdseg/log"
	"github.com/intxff/rdseg/rewrite"
	"github.com/intxff/rdseg/util"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// config structure to unmarshal yaml
type RdConfig struct {
	Log  log.Log  `yaml:"log"`
	Tun  *tun.Tun `yaml:"tun"`
	Rule []string `yaml:"rule"`
	MMDB string   `yaml:"mmdb"`
	Path string   `yaml:"-"`
	Dir  string   `yaml:"-"`
}

type ErrDup struct {
	Name string
	Zone string
}

func (e ErrDup) Error() string {
	return fmt.Sprintf("duplicate %v in %v", e.Name, e.Zone)
}

func (e ErrDup) Is(err error) bool {
	t, ok := err.(ErrDup)
	if !ok {
		return false
	}
	return t.Zone == e.Zone && t.Name == e.Name
}

// parse raw config to get binary marshaled structure
func ParseRawConfig(path string) (*RdConfig, error) {
	path, err := util.GetAbsPath(path)
	if err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config, err := parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	config.Path = path
	config.Dir = filepath.Dir(path)

	// relative paths inside the file are taken from its directory
	if config.MMDB != "" && !filepath.IsAbs(config.MMDB) && !strings.HasPrefix(config.MMDB, "~/") {
		config.MMDB = filepath.Join(config.Dir, config.MMDB)
	}
	if config.MMDB, err = util.GetAbsPath(config.MMDB); err != nil {
		return nil, err
	}
	if config.Log.Path, err = util.GetAbsPath(config.Log.Path); err != nil {
		return nil, err
	}

	return config, nil
}

func parse(buf []byte) (*RdConfig, error) {
	config := RdConfig{}
	if err := yaml.Unmarshal(buf, &config); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(config.Rule))
	for i, v := range config.Rule {
		config.Rule[i] = strings.TrimSpace(v)
		if _, exist := seen[config.Rule[i]]; exist {
			return nil, ErrDup{Name: config.Rule[i], Zone: "rule"}
		}
		seen[config.Rule[i]] = struct{}{}
	}
	return &config, nil
}

// ParseRewriter opens the GeoIP database when one is configured and
// compiles the rules in order.
func (c *RdConfig) ParseRewriter() (*rewrite.Rewriter, error) {
	var geo rewrite.CountryLookup
	if c.MMDB != "" {
		db, err := rewrite.OpenMMDB(c.MMDB)
		if err != nil {
			return nil, err
		}
		geo = db
		log.Info("[Config] mmdb loaded", zap.String("path", c.MMDB))
	}

	rules, err := rewrite.ParseRules(c.Rule, geo)
	if err != nil {
		return nil, err
	}
	log.Info("[Config] rules loaded", zap.Int("count", len(rules)))
	return rewrite.New(rules), nil
}
