package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultVaultAddress is the account the vault engine acts as when the
// configuration does not name one.
const DefaultVaultAddress = "0x000000000000000000000000000000000000Fa17"

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	GenesisFile          string `toml:"GenesisFile"`
	PairsFile            string `toml:"PairsFile"`
	VaultAddress         string `toml:"VaultAddress"`
	Environment          string `toml:"Environment"`
	LogFile              string `toml:"LogFile"`
	RPCReadHeaderTimeout int    `toml:"RPCReadHeaderTimeout"`
	RPCWriteTimeout      int    `toml:"RPCWriteTimeout"`

	// CORSOrigins lists browser origins allowed to call the RPC endpoint.
	CORSOrigins []string `toml:"CORSOrigins"`

	Auth      Auth      `toml:"auth"`
	RateLimit RateLimit `toml:"rate_limit"`
	Telemetry Telemetry `toml:"telemetry"`
	NATS      NATS      `toml:"nats"`
	EventLog  EventLog  `toml:"event_log"`
	Webhook   Webhook   `toml:"webhook"`
	Pauses    Pauses    `toml:"pauses"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := defaults()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		RPCAddress:           ":8545",
		DataDir:              "./vault-data",
		VaultAddress:         DefaultVaultAddress,
		Environment:          "local",
		RPCReadHeaderTimeout: 5,
		RPCWriteTimeout:      15,
		Auth:                 Auth{Issuer: "pairvault"},
		RateLimit:            RateLimit{RequestsPerSecond: 20, Burst: 40},
		NATS:                 NATS{Subject: "pairvault.events"},
	}
}

func (c *Config) applyDefaults() {
	def := defaults()
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	if strings.TrimSpace(c.VaultAddress) == "" {
		c.VaultAddress = def.VaultAddress
	}
	if c.RPCReadHeaderTimeout <= 0 {
		c.RPCReadHeaderTimeout = def.RPCReadHeaderTimeout
	}
	if c.RPCWriteTimeout <= 0 {
		c.RPCWriteTimeout = def.RPCWriteTimeout
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		c.Auth.Issuer = def.Auth.Issuer
	}
	if strings.TrimSpace(c.NATS.Subject) == "" {
		c.NATS.Subject = def.NATS.Subject
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Resolve makes a path from the config file relative to the file's directory.
func Resolve(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
