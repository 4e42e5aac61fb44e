// Package config loads the YAML session/reader configuration shared by
// cmd/gen2inventory and cmd/gen2access.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rfreader/gen2core/pkg/gen2"
)

// Config is the on-disk reader/session configuration.
type Config struct {
	Reader    ReaderConfig    `yaml:"reader"`
	Session   SessionConfig   `yaml:"session"`
	AdaptiveQ AdaptiveQConfig `yaml:"adaptive_q"`
	Passwords PasswordConfig  `yaml:"passwords"`
}

// ReaderConfig selects which PC/SC reader to connect to.
type ReaderConfig struct {
	Index *int `yaml:"index"`
}

// SessionConfig mirrors gen2.Config's link parameters and inventoried
// flag selection, in their human-readable YAML spellings.
type SessionConfig struct {
	BLF     *int    `yaml:"blf"`
	Tari    *float64 `yaml:"tari"`
	Coding  string  `yaml:"coding"`
	TRext   *bool   `yaml:"trext"`
	Session string  `yaml:"session"`
	Target  string  `yaml:"target"`
	Sel     string  `yaml:"sel"`
	T4Min   *int    `yaml:"t4_min_us"`
}

// AdaptiveQConfig mirrors gen2.AdaptiveQConfig.
type AdaptiveQConfig struct {
	Enabled          *bool    `yaml:"enabled"`
	MinQ             *float64 `yaml:"min_q"`
	MaxQ             *float64 `yaml:"max_q"`
	C1               []int32  `yaml:"c1"`
	C2               []int32  `yaml:"c2"`
	ResetQAfterRound *bool    `yaml:"reset_q_after_round"`
	UseCeilFloor     *bool    `yaml:"use_ceil_floor"`
	SingleAdj        *bool    `yaml:"single_adj"`
	UseQueryAdjNIC   *bool    `yaml:"use_query_adj_nic"`
}

// PasswordConfig points at hex-encoded password files used as defaults
// by cmd/gen2access when a password is not supplied interactively.
type PasswordConfig struct {
	AccessPasswordFile string `yaml:"access_password_file"`
	KillPasswordFile   string `yaml:"kill_password_file"`
}

// Load reads, validates and path-resolves the configuration at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	c.Passwords.AccessPasswordFile = resolvePath(dir, c.Passwords.AccessPasswordFile)
	c.Passwords.KillPasswordFile = resolvePath(dir, c.Passwords.KillPasswordFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

// Validate checks required fields and enumerated values.
func (c *Config) Validate() error {
	if c.Reader.Index == nil {
		return fmt.Errorf("config.reader.index is required")
	}
	if *c.Reader.Index < 0 {
		return fmt.Errorf("config.reader.index must be >= 0")
	}

	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.AdaptiveQ.validate(); err != nil {
		return err
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if s.BLF == nil {
		return fmt.Errorf("config.session.blf is required")
	}
	switch *s.BLF {
	case 640, 320, 256, 213, 160, 40:
	default:
		return fmt.Errorf("config.session.blf must be one of 640, 320, 256, 213, 160, 40")
	}
	if s.Tari == nil {
		return fmt.Errorf("config.session.tari is required")
	}
	switch *s.Tari {
	case 25.00, 12.50, 6.25:
	default:
		return fmt.Errorf("config.session.tari must be one of 25.00, 12.50, 6.25")
	}
	if _, err := parseCoding(s.Coding); err != nil {
		return fmt.Errorf("config.session.coding: %w", err)
	}
	if s.TRext == nil {
		return fmt.Errorf("config.session.trext is required")
	}
	if _, err := parseSession(s.Session); err != nil {
		return fmt.Errorf("config.session.session: %w", err)
	}
	if _, err := parseTarget(s.Target); err != nil {
		return fmt.Errorf("config.session.target: %w", err)
	}
	if _, err := parseSel(s.Sel); err != nil {
		return fmt.Errorf("config.session.sel: %w", err)
	}
	return nil
}

func (a *AdaptiveQConfig) validate() error {
	if a.Enabled == nil || !*a.Enabled {
		return nil
	}
	if a.MinQ == nil || a.MaxQ == nil {
		return fmt.Errorf("config.adaptive_q.min_q/max_q are required when enabled")
	}
	if len(a.C1) != 16 || len(a.C2) != 16 {
		return fmt.Errorf("config.adaptive_q.c1/c2 must each have exactly 16 entries")
	}
	return nil
}

// ToGen2 converts the validated YAML session configuration into a
// gen2.Config.
func (c *Config) ToGen2() (gen2.Config, error) {
	coding, err := parseCoding(c.Session.Coding)
	if err != nil {
		return gen2.Config{}, err
	}
	sess, err := parseSession(c.Session.Session)
	if err != nil {
		return gen2.Config{}, err
	}
	target, err := parseTarget(c.Session.Target)
	if err != nil {
		return gen2.Config{}, err
	}
	sel, err := parseSel(c.Session.Sel)
	if err != nil {
		return gen2.Config{}, err
	}

	cfg := gen2.Config{
		BLF:     gen2.BLF(*c.Session.BLF),
		Tari:    gen2.Tari(*c.Session.Tari),
		Coding:  coding,
		TRext:   *c.Session.TRext,
		Session: sess,
		Target:  target,
		Sel:     sel,
	}
	if c.Session.T4Min != nil {
		cfg.T4Min = uint32(*c.Session.T4Min)
	}
	return cfg, nil
}

// ToGen2AdaptiveQ converts the adaptive-Q section into a
// *gen2.AdaptiveQConfig, or nil when disabled.
func (c *Config) ToGen2AdaptiveQ() *gen2.AdaptiveQConfig {
	a := c.AdaptiveQ
	if a.Enabled == nil || !*a.Enabled {
		return nil
	}
	out := &gen2.AdaptiveQConfig{
		Enabled:          true,
		MinQ:             int32(*a.MinQ * 1e5),
		MaxQ:             int32(*a.MaxQ * 1e5),
		ResetQAfterRound: boolOr(a.ResetQAfterRound),
		UseCeilFloor:     boolOr(a.UseCeilFloor),
		SingleAdj:        boolOr(a.SingleAdj),
		UseQueryAdjNIC:   boolOr(a.UseQueryAdjNIC),
	}
	copy(out.C1[:], a.C1)
	copy(out.C2[:], a.C2)
	return out
}

func boolOr(b *bool) bool { return b != nil && *b }

func parseCoding(s string) (gen2.Coding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fm0":
		return gen2.FM0, nil
	case "miller2":
		return gen2.Miller2, nil
	case "miller4":
		return gen2.Miller4, nil
	case "miller8":
		return gen2.Miller8, nil
	default:
		return 0, fmt.Errorf("unknown coding %q (want fm0, miller2, miller4, miller8)", s)
	}
}

func parseSession(s string) (gen2.Session, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s0", "":
		return gen2.SessionS0, nil
	case "s1":
		return gen2.SessionS1, nil
	case "s2":
		return gen2.SessionS2, nil
	case "s3":
		return gen2.SessionS3, nil
	default:
		return 0, fmt.Errorf("unknown session %q (want s0, s1, s2, s3)", s)
	}
}

func parseTarget(s string) (gen2.Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "":
		return gen2.TargetA, nil
	case "b":
		return gen2.TargetB, nil
	default:
		return 0, fmt.Errorf("unknown target %q (want a, b)", s)
	}
}

func parseSel(s string) (gen2.SelState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all0":
		return gen2.SelAll0, nil
	case "all1", "all", "":
		return gen2.SelAll1, nil
	case "notsl", "~sl":
		return gen2.SelNotSL, nil
	case "sl":
		return gen2.SelSL, nil
	default:
		return 0, fmt.Errorf("unknown sel %q (want all0, all1, notsl, sl)", s)
	}
}
