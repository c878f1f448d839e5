package util

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMustHave(t *testing.T) {
	m := map[string]any{
		"name":  "rdseg0",
		"mtu":   1500,
		"rules": []any{"DEFAULT,PASS", "DSTPORT,9,DROP"},
	}
	var (
		name  string
		mtu   int
		rules []string
	)
	err := MustHave(m, map[string]any{"name": &name, "mtu": &mtu, "rules": &rules})
	if err != nil {
		t.Fatal(err)
	}
	if name != "rdseg0" || mtu != 1500 {
		t.Errorf("name, mtu = %v, %v", name, mtu)
	}
	if diff := cmp.Diff([]string{"DEFAULT,PASS", "DSTPORT,9,DROP"}, rules); diff != "" {
		t.Errorf("rules (-want +got):\n%s", diff)
	}

	if err := MustHave(m, map[string]any{"cidr": &name}); !errors.Is(err, ErrLost{"cidr"}) {
		t.Errorf("missing = %v; want ErrLost", err)
	}
	if err := MustHave(m, map[string]any{"name": &mtu}); !errors.Is(err, ErrInvalid{"name"}) {
		t.Errorf("wrong kind = %v; want ErrInvalid", err)
	}
	var ports []int
	if err := MustHave(m, map[string]any{"rules": &ports}); !errors.Is(err, ErrInvalid{"rules"}) {
		t.Errorf("wrong element = %v; want ErrInvalid", err)
	}
}

func TestMayHave(t *testing.T) {
	mtu := 9000
	if err := MayHave(map[string]any{}, map[string]any{"mtu": &mtu}); err != nil {
		t.Fatal(err)
	}
	if mtu != 0 {
		t.Errorf("missing mtu = %v; want 0", mtu)
	}
	if err := MayHave(map[string]any{"mtu": nil}, map[string]any{"mtu": &mtu}); !errors.Is(err, ErrInvalid{"mtu"}) {
		t.Errorf("nil mtu = %v; want ErrInvalid", err)
	}
}

func TestGetAbsPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip(err)
	}
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/etc/rdseg.yaml", "/etc/rdseg.yaml"},
		{"~/rdseg.yaml", filepath.Join(home, "rdseg.yaml")},
	}
	for _, tt := range tests {
		got, err := GetAbsPath(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("GetAbsPath(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if got, _ := GetAbsPath("rdseg.yaml"); !filepath.IsAbs(got) {
		t.Errorf("relative path = %q", got)
	}
}

func TestExecCmd(t *testing.T) {
	if _, err := ExecCmd("  "); !errors.Is(err, errEmptyCmd) {
		t.Errorf("ExecCmd(blank) = %v", err)
	}
}
