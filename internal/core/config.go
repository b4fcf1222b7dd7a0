package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ratio1/r1setup/internal/validate"
)

// Config holds r1setup's own settings. Every field is optional.
type Config struct {
	InventoryPath  string `yaml:"inventory_path"`
	HistoryDir     string `yaml:"history_dir"`
	DefaultKeyPath string `yaml:"default_key_path"`
	Ledger         *bool  `yaml:"ledger"`
}

const (
	// CollectionDir is where the provisioning collection expects hosts.yml,
	// relative to the user's home.
	CollectionDir  = ".ratio1/ansible_config/collections/ansible_collections/ratio1/multi_node_launcher"
	InventoryFile  = "hosts.yml"
	DefaultKeyPath = "~/.ssh/id_rsa"

	EnvInventory  = "R1SETUP_INVENTORY"
	EnvHistoryDir = "R1SETUP_HISTORY_DIR"
)

// LoadConfig reads YAML configuration from a path. If path is empty, it resolves
// $XDG_CONFIG_HOME/r1setup/config.yaml or ~/.config/r1setup/config.yaml, and a
// missing default file yields defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	explicit := path != ""
	if !explicit {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "r1setup", "config.yaml")
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg.withDefaults(), nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if v := os.Getenv(EnvInventory); v != "" {
		c.InventoryPath = v
	}
	if v := os.Getenv(EnvHistoryDir); v != "" {
		c.HistoryDir = v
	}
	if c.DefaultKeyPath == "" {
		c.DefaultKeyPath = DefaultKeyPath
	}
	c.InventoryPath = validate.ExpandHome(c.InventoryPath)
	c.HistoryDir = validate.ExpandHome(c.HistoryDir)
	return c
}

// LedgerEnabled reports whether backups are recorded; on unless disabled.
func (c Config) LedgerEnabled() bool {
	return c.Ledger == nil || *c.Ledger
}

// ResolveInventoryPath returns the inventory location: the explicit flag,
// then the configured path, then hosts.yml in the collection directory under
// home.
func (c Config) ResolveInventoryPath(flag, home string) string {
	switch {
	case flag != "":
		return validate.ExpandHome(flag)
	case c.InventoryPath != "":
		return c.InventoryPath
	default:
		return filepath.Join(home, CollectionDir, InventoryFile)
	}
}

// RealHome returns the home directory of the user who invoked r1setup, which
// under sudo is SUDO_USER's rather than root's.
func RealHome() (string, error) {
	if name := os.Getenv("SUDO_USER"); name != "" {
		u, err := user.Lookup(name)
		if err == nil && u.HomeDir != "" {
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}
