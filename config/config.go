package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tiersale/core/events"
	"tiersale/core/genesis"
	"tiersale/native/presale"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	ChainID       uint64 `toml:"ChainID"`
	Env           string `toml:"Env"`
	GenesisFile   string `toml:"GenesisFile"`
	AllowMigrate  bool   `toml:"AllowMigrate"`

	Presale   Presale   `toml:"Presale"`
	Logging   Logging   `toml:"Logging"`
	Telemetry Telemetry `toml:"Telemetry"`
	RateLimit RateLimit `toml:"RateLimit"`
	Explorer  Explorer  `toml:"Explorer"`
	Stream    Stream    `toml:"Stream"`

	// Genesis lists balances credited when the ledger is first created, in
	// addition to those found in GenesisFile.
	Genesis []genesis.Allocation `toml:"Genesis"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	} else if err != nil {
		return nil, err
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./presale-data",
		ChainID:       1,
		Env:           "local",
		Presale: Presale{
			TierSize:          presale.DefaultTierSize,
			TierCount:         presale.DefaultTierCount,
			InitialPrice:      presale.DefaultInitialPrice,
			GrowthNumerator:   presale.DefaultGrowthNumerator,
			GrowthDenominator: presale.DefaultGrowthDenominator,
			WalletCap:         presale.DefaultTierSize,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			Metrics:     true,
			Traces:      true,
			SampleRatio: 1,
		},
		RateLimit: RateLimit{
			RequestsPerSecond: 20,
			Burst:             40,
			ClientTTLSeconds:  300,
		},
		Explorer: Explorer{
			Enabled: true,
		},
		Stream: Stream{
			Enabled: true,
			History: events.DefaultStreamHistory,
		},
		Genesis: []genesis.Allocation{},
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaults.ListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaults.DataDir
	}
	p := &cfg.Presale
	if p.TierSize == 0 {
		p.TierSize = defaults.Presale.TierSize
	}
	if p.TierCount == 0 {
		p.TierCount = defaults.Presale.TierCount
	}
	if p.InitialPrice == 0 {
		p.InitialPrice = defaults.Presale.InitialPrice
	}
	if p.GrowthNumerator == 0 && p.GrowthDenominator == 0 {
		p.GrowthNumerator = defaults.Presale.GrowthNumerator
		p.GrowthDenominator = defaults.Presale.GrowthDenominator
	}
	if p.WalletCap == 0 {
		p.WalletCap = p.TierSize
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.RateLimit.ClientTTLSeconds <= 0 {
		cfg.RateLimit.ClientTTLSeconds = defaults.RateLimit.ClientTTLSeconds
	}
	if cfg.Telemetry.SampleRatio <= 0 {
		cfg.Telemetry.SampleRatio = defaults.Telemetry.SampleRatio
	}
	if cfg.Stream.History == 0 {
		cfg.Stream.History = defaults.Stream.History
	}
}

// LedgerPath is where the LevelDB ledger lives.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger")
}

// ExplorerDSN returns the configured SQLite DSN or a file inside DataDir.
func (c *Config) ExplorerDSN() string {
	if dsn := strings.TrimSpace(c.Explorer.DSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.DataDir, "explorer.db")
}

// GenesisSpec merges GenesisFile with the inline allocations.
func (c *Config) GenesisSpec() (*genesis.Spec, error) {
	spec := &genesis.Spec{}
	if path := strings.TrimSpace(c.GenesisFile); path != "" {
		loaded, err := genesis.LoadSpec(path)
		if err != nil {
			return nil, err
		}
		if loaded.ChainID != nil && *loaded.ChainID != c.ChainID {
			return nil, fmt.Errorf("genesis chain id %d does not match configured %d", *loaded.ChainID, c.ChainID)
		}
		spec = loaded
	}
	spec.Alloc = append(spec.Alloc, c.Genesis...)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
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
