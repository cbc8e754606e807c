package config

import (
	"strings"

	"tiersale/crypto"
	"tiersale/native/presale"
	"tiersale/observability/logging"
	"tiersale/observability/otel"
)

// Presale captures the price curve and caps frozen into the sale when it is
// initialised. Zero values fall back to the reference schedule.
type Presale struct {
	TierSize          uint64 `toml:"TierSize"`
	TierCount         uint64 `toml:"TierCount"`
	InitialPrice      uint64 `toml:"InitialPrice"`
	GrowthNumerator   uint64 `toml:"GrowthNumerator"`
	GrowthDenominator uint64 `toml:"GrowthDenominator"`
	// WalletCap limits the cumulative units per buyer. Zero means one tier.
	WalletCap uint64 `toml:"WalletCap"`
	// Deployer, when set, is the only identity allowed to initialise the sale.
	Deployer string `toml:"Deployer"`
}

// Schedule converts the section into a price schedule.
func (p Presale) Schedule() presale.Schedule {
	return presale.Schedule{
		InitialPrice:      p.InitialPrice,
		TierSize:          p.TierSize,
		TierCount:         p.TierCount,
		GrowthNumerator:   p.GrowthNumerator,
		GrowthDenominator: p.GrowthDenominator,
	}
}

// DeployerAddress decodes Deployer. An empty value yields the zero address.
func (p Presale) DeployerAddress() ([20]byte, error) {
	trimmed := strings.TrimSpace(p.Deployer)
	if trimmed == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

// Logging controls log verbosity and optional file rotation.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Options converts the section into logging options.
func (l Logging) Options() logging.Options {
	return logging.Options{
		Level:      l.Level,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

// Telemetry configures the OpenTelemetry exporters.
type Telemetry struct {
	Enabled     bool    `toml:"Enabled"`
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Options converts the section into exporter settings for service.
func (t Telemetry) Options(service, env string) (otel.Config, error) {
	headers, err := otel.ParseHeaders(t.Headers)
	if err != nil {
		return otel.Config{}, err
	}
	return otel.Config{
		Enabled:     t.Enabled,
		ServiceName: service,
		Environment: env,
		Endpoint:    strings.TrimSpace(t.Endpoint),
		Insecure:    t.Insecure,
		Headers:     headers,
		Metrics:     t.Metrics,
		Traces:      t.Traces,
		SampleRatio: t.SampleRatio,
	}, nil
}

// RateLimit bounds the request rate accepted from a single client. Clients
// are identified by their connection address; set TrustProxyHeaders only when
// a reverse proxy in front of the node overwrites X-Real-IP and
// X-Forwarded-For, otherwise callers can pick their own bucket.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	ClientTTLSeconds  int     `toml:"ClientTTLSeconds"`
	TrustProxyHeaders bool    `toml:"TrustProxyHeaders"`
}

// Explorer configures the SQLite purchase history index.
type Explorer struct {
	Enabled bool   `toml:"Enabled"`
	DSN     string `toml:"DSN"`
}

// Stream configures the websocket event feed. History is the number of
// committed events kept for subscribers resuming from a sequence.
type Stream struct {
	Enabled bool `toml:"Enabled"`
	History int  `toml:"History"`
}
