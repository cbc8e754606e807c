package config

import (
	"fmt"
	"strings"
)

// Validate checks the values that cannot be defaulted.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("ChainID must be greater than zero")
	}
	if err := cfg.Presale.Schedule().Validate(); err != nil {
		return fmt.Errorf("presale: %w", err)
	}
	if cfg.Presale.WalletCap == 0 {
		return fmt.Errorf("presale: WalletCap must be greater than zero")
	}
	if _, err := cfg.Presale.DeployerAddress(); err != nil {
		return fmt.Errorf("presale: Deployer: %w", err)
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("ratelimit: Burst must be set when RequestsPerSecond is")
	}
	if cfg.Stream.History < 0 {
		return fmt.Errorf("stream: History must not be negative")
	}
	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when enabled")
	}
	if _, err := cfg.Telemetry.Options("", cfg.Env); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within (0, 1]")
	}
	return nil
}
