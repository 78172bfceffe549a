package nat

import (
	"os"
	"path/filepath"
	"testing"
)

func writeForwardFile(t *testing.T, content string) *procForwardingChecker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ip_forward")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return &procForwardingChecker{path: path}
}

func TestForwardingChecker_Enabled(t *testing.T) {
	c := writeForwardFile(t, "1\n")
	enabled, err := c.Enabled()
	if err != nil {
		t.Fatal(err)
	}
	if !enabled {
		t.Error("expected forwarding enabled for \"1\"")
	}
}

func TestForwardingChecker_Disabled(t *testing.T) {
	c := writeForwardFile(t, "0\n")
	enabled, err := c.Enabled()
	if err != nil {
		t.Fatal(err)
	}
	if enabled {
		t.Error("expected forwarding disabled for \"0\"")
	}
}

func TestForwardingChecker_MissingFile(t *testing.T) {
	c := &procForwardingChecker{path: filepath.Join(t.TempDir(), "nope")}
	if _, err := c.Enabled(); err == nil {
		t.Error("expected error for unreadable toggle")
	}
}
