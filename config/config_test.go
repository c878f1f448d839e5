package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/intxff/rdseg/util"
)

const sample = `
log:
  level: debug
tun:
  name: rdseg0
  cidr: 198.18.0.1/15
rule:
  - DSTPORT,9,DROP
  - " DSTPORT,53,REDIRECT,10.0.0.53:5353 "
  - DEFAULT,PASS
`

func TestParse(t *testing.T) {
	config, err := parse([]byte(sample))
	if err != nil {
		t.Fatalf("%v\n", err)
	}
	want := []string{"DSTPORT,9,DROP", "DSTPORT,53,REDIRECT,10.0.0.53:5353", "DEFAULT,PASS"}
	if diff := cmp.Diff(want, config.Rule); diff != "" {
		t.Errorf("rules (-want +got):\n%s", diff)
	}
	if config.Log.Level != "debug" {
		t.Errorf("log level = %q", config.Log.Level)
	}
	if config.Tun == nil || config.Tun.Name() != "rdseg0" || config.Tun.MTU() != 1500 {
		t.Errorf("tun = %+v", config.Tun)
	}

	rw, err := config.ParseRewriter()
	if err != nil {
		t.Fatal(err)
	}
	if s := rw.Stats(); s.Packets != 0 {
		t.Errorf("fresh rewriter stats = %+v", s)
	}
}

func TestParseErrors(t *testing.T) {
	_, err := parse([]byte("tun:\n  name: rdseg0\n"))
	if !errors.Is(err, util.ErrLost{Attr: "cidr"}) {
		t.Errorf("missing cidr = %v; want ErrLost", err)
	}

	_, err = parse([]byte("rule:\n  - DEFAULT,PASS\n  - DEFAULT,PASS\n"))
	if !errors.Is(err, ErrDup{Name: "DEFAULT,PASS", Zone: "rule"}) {
		t.Errorf("duplicate rule = %v; want ErrDup", err)
	}

	config, err := parse([]byte("rule:\n  - DSTPORT,53,BOUNCE\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := config.ParseRewriter(); err == nil {
		t.Error("bad rule accepted")
	}

	config = &RdConfig{MMDB: filepath.Join(t.TempDir(), "missing.mmdb")}
	_, err = config.ParseRewriter()
	if err == nil {
		t.Fatal("missing mmdb accepted")
	}
	if n := strings.Count(err.Error(), "open mmdb"); n != 1 {
		t.Errorf("error %q names the mmdb %d times", err, n)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error %q does not wrap ErrNotExist", err)
	}
}

func TestParseRawConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sample+"mmdb: Country.mmdb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err := ParseRawConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if config.Path != path || config.Dir != dir {
		t.Errorf("path, dir = %v, %v", config.Path, config.Dir)
	}
	if config.MMDB != filepath.Join(dir, "Country.mmdb") {
		t.Errorf("mmdb = %v", config.MMDB)
	}
	if config.Log.Path != "" {
		t.Errorf("log path = %q", config.Log.Path)
	}

	if _, err := ParseRawConfig(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
