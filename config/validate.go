package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the runtime configuration after defaults are applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if !common.IsHexAddress(cfg.VaultAddress) {
		return fmt.Errorf("VaultAddress %q is not a hex address", cfg.VaultAddress)
	}
	if common.HexToAddress(cfg.VaultAddress) == (common.Address{}) {
		return fmt.Errorf("VaultAddress must not be the zero address")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when RequestsPerSecond is set")
	}
	if cfg.Telemetry.Enabled() && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporters are enabled")
	}
	if url := strings.TrimSpace(cfg.NATS.URL); url != "" && !strings.Contains(url, "://") {
		return fmt.Errorf("nats: URL %q must include a scheme", url)
	}
	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("webhook: URL %q must be http or https", url)
		}
		if _, err := cfg.Webhook.ResolveSecret(); err != nil {
			return err
		}
	}
	return nil
}
