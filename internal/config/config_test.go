package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
reader:
  index: 0
session:
  blf: 640
  tari: 6.25
  coding: fm0
  trext: false
  session: s0
  target: a
  sel: all1
adaptive_q:
  enabled: true
  min_q: 0
  max_q: 15
  c1: [0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]
  c2: [0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if *cfg.Reader.Index != 0 {
		t.Fatalf("reader index = %d, want 0", *cfg.Reader.Index)
	}

	g, err := cfg.ToGen2()
	if err != nil {
		t.Fatalf("ToGen2: %v", err)
	}
	if g.BLF != 640 || g.Tari != 6.25 {
		t.Fatalf("unexpected gen2.Config: %+v", g)
	}

	aq := cfg.ToGen2AdaptiveQ()
	if aq == nil || !aq.Enabled {
		t.Fatalf("expected adaptive-Q enabled, got %+v", aq)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
reader:
  index: 0
  bogus: true
session:
  blf: 640
  tari: 6.25
  coding: fm0
  trext: false
  session: s0
  target: a
  sel: all1
adaptive_q:
  enabled: false
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRejectsBadCoding(t *testing.T) {
	path := writeConfig(t, `
reader:
  index: 0
session:
  blf: 640
  tari: 6.25
  coding: nrz
  trext: false
  session: s0
  target: a
  sel: all1
adaptive_q:
  enabled: false
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "coding") {
		t.Fatalf("expected coding validation error, got %v", err)
	}
}

func TestLoadRejectsMissingAdaptiveQTables(t *testing.T) {
	path := writeConfig(t, `
reader:
  index: 0
session:
  blf: 640
  tari: 6.25
  coding: fm0
  trext: false
  session: s0
  target: a
  sel: all1
adaptive_q:
  enabled: true
  min_q: 0
  max_q: 15
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "c1/c2") {
		t.Fatalf("expected c1/c2 validation error, got %v", err)
	}
}

func TestResolvePathsMakesPasswordFilesAbsolute(t *testing.T) {
	tmp := t.TempDir()
	pwPath := filepath.Join(tmp, "access.hex")
	if err := os.WriteFile(pwPath, []byte("01020304\n"), 0o644); err != nil {
		t.Fatalf("write password file: %v", err)
	}

	cfgPath := filepath.Join(tmp, "config.yaml")
	body := `
reader:
  index: 0
session:
  blf: 640
  tari: 6.25
  coding: fm0
  trext: false
  session: s0
  target: a
  sel: all1
adaptive_q:
  enabled: false
passwords:
  access_password_file: "access.hex"
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Passwords.AccessPasswordFile != pwPath {
		t.Fatalf("resolved access password path = %q, want %q", cfg.Passwords.AccessPasswordFile, pwPath)
	}
}
