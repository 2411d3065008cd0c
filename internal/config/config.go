package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ritsu/ipset-fail2ban/internal/ipset"
	"github.com/ritsu/ipset-fail2ban/internal/model"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "/etc/ipset-fail2ban/config.yaml"

// LogConfig controls the logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the full run configuration. It is built once and then only read.
type Config struct {
	Jails          []string      `yaml:"jails"`
	BlacklistFile  string        `yaml:"blacklist_file"`
	SetName        string        `yaml:"set_name"`
	RestoreFile    string        `yaml:"restore_file"`
	HashSize       int           `yaml:"hashsize"`
	MaxElem        int           `yaml:"maxelem"`
	Chain          string        `yaml:"chain"`
	RulePosition   int           `yaml:"rule_position"`
	Cleanup        bool          `yaml:"cleanup"`
	LockFile       string        `yaml:"lock_file"`
	HistoryFile    string        `yaml:"history_file"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	Fail2banClient string        `yaml:"fail2ban_client"`
	IpsetBinary    string        `yaml:"ipset_binary"`
	Log            LogConfig     `yaml:"log"`
}

// DefaultConfig returns the built-in defaults. Enforcement is off until a
// set name is configured.
func DefaultConfig() *Config {
	return &Config{
		HashSize:       ipset.DefaultParams.HashSize,
		MaxElem:        ipset.DefaultParams.MaxElem,
		Chain:          "INPUT",
		RulePosition:   1,
		LockFile:       "/run/ipset-fail2ban.lock",
		CommandTimeout: 30 * time.Second,
		Fail2banClient: "fail2ban-client",
		IpsetBinary:    "ipset",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path over the defaults. Empty path falls back to DefaultPath.
// A missing file returns defaults; invalid YAML is a ConfigurationError.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &model.ConfigurationError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return cfg, nil
}

// EnforcementEnabled reports whether a set should be synchronized.
func (c *Config) EnforcementEnabled() bool {
	return c.SetName != ""
}

// Params returns the set sizing parameters.
func (c *Config) Params() ipset.Params {
	return ipset.Params{HashSize: c.HashSize, MaxElem: c.MaxElem}
}

// Validate checks the pre-flight requirements that do not need the tracker.
func (c *Config) Validate() error {
	if len(c.Jails) == 0 {
		return model.Configf("jails", "at least one jail is required")
	}
	seen := make(map[string]struct{}, len(c.Jails))
	for _, j := range c.Jails {
		if j == "" {
			return model.Configf("jails", "empty jail name")
		}
		if _, dup := seen[j]; dup {
			return model.Configf("jails", "jail %q listed twice", j)
		}
		seen[j] = struct{}{}
	}
	if !c.EnforcementEnabled() {
		return nil
	}
	if err := ipset.ValidateName(c.SetName); err != nil {
		return model.Configf("set_name", "%v", err)
	}
	if c.RestoreFile == "" {
		return model.Configf("restore_file", "required when set_name is given")
	}
	if c.HashSize <= 0 || c.MaxElem <= 0 {
		return model.Configf("hashsize", "hashsize and maxelem must be positive")
	}
	if c.Chain == "" {
		return model.Configf("chain", "must not be empty")
	}
	if c.RulePosition < 1 {
		return model.Configf("rule_position", "must be at least 1")
	}
	return nil
}
