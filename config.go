package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Limetric/mysql-simulator/internal/charset"
)

// SimulatorConfig holds the TOML-driven simulation settings.
type SimulatorConfig struct {
	MySQLVersion string   `toml:"mysql_version"` // 5.7|8.0
	Migrations   []string `toml:"migrations"`    // files or directories of *.sql
	Tables       []string `toml:"tables"`        // restrict the dump to these tables
	TableOptions bool     `toml:"table_options"` // print ENGINE/CHARSET after each table
	SnapshotDB   string   `toml:"snapshot_db"`   // SQLite file recording every run
	IgnoreDML    bool     `toml:"ignore_dml"`    // skip INSERT, SET, USE, ... instead of failing

	// ExplicitTimestamps mirrors the server's explicit_defaults_for_timestamp.
	// Turning it off applies the legacy implicit TIMESTAMP NOT NULL and
	// CURRENT_TIMESTAMP defaults.
	ExplicitTimestamps bool `toml:"explicit_defaults_for_timestamp"`

	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

func defaultConfig() *SimulatorConfig {
	return &SimulatorConfig{
		MySQLVersion: string(charset.MySQL57),
		TableOptions: true,
		IgnoreDML:    true,

		ExplicitTimestamps: true,
	}
}

// loadConfig reads a TOML config file and returns a SimulatorConfig with defaults applied.
func loadConfig(path string) (*SimulatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	for i, m := range cfg.Migrations {
		cfg.Migrations[i] = cfg.resolvePath(m)
	}
	if cfg.SnapshotDB != "" {
		cfg.SnapshotDB = cfg.resolvePath(cfg.SnapshotDB)
	}
	return cfg, nil
}

func (c *SimulatorConfig) validate() error {
	c.MySQLVersion = strings.TrimSpace(c.MySQLVersion)
	if _, err := charset.ParseVersion(c.MySQLVersion); err != nil {
		return fmt.Errorf("mysql_version must be one of: 5.7, 8.0")
	}
	for _, t := range c.Tables {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("tables must not contain empty names")
		}
	}
	return nil
}

// version returns the validated MySQL version.
func (c *SimulatorConfig) version() charset.Version {
	v, err := charset.ParseVersion(c.MySQLVersion)
	if err != nil {
		return charset.MySQL57
	}
	return v
}

// resolvePath resolves a path relative to the config file directory.
func (c *SimulatorConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) || c.configDir == "" {
		return p
	}
	return filepath.Join(c.configDir, p)
}
