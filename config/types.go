package config

import (
	"fmt"
	"os"
	"strings"

	nativecommon "pairvault/native/common"
)

// Auth configures bearer token verification for the RPC surface.
type Auth struct {
	// Secret is the HMAC key. SecretEnv, when set, names an environment
	// variable that takes precedence.
	Secret    string `toml:"Secret"`
	SecretEnv string `toml:"SecretEnv"`
	Issuer    string `toml:"Issuer"`
}

// ResolveSecret returns the HMAC key, preferring the environment.
func (a Auth) ResolveSecret() (string, error) {
	if env := strings.TrimSpace(a.SecretEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, nil
		}
	}
	if secret := strings.TrimSpace(a.Secret); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("auth: no secret configured")
}

// RateLimit bounds mutating RPC calls per caller.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`

	// Attributes are stamped on the exported resource as-is.
	Attributes map[string]string `toml:"Attributes"`
}

// Enabled reports whether any OTLP exporter is switched on.
func (t Telemetry) Enabled() bool { return t.Metrics || t.Traces }

type NATS struct {
	URL     string `toml:"URL"`
	Subject string `toml:"Subject"`
}

type EventLog struct {
	// DSN of the event index: a SQLite path or a postgres:// URL. Empty
	// disables indexing.
	DSN string `toml:"DSN"`
}

// Webhook posts committed events to an HTTP endpoint.
type Webhook struct {
	URL       string   `toml:"URL"`
	Secret    string   `toml:"Secret"`
	SecretEnv string   `toml:"SecretEnv"`
	Events    []string `toml:"Events"`
}

// ResolveSecret returns the signing key, preferring the environment.
func (w Webhook) ResolveSecret() (string, error) {
	if env := strings.TrimSpace(w.SecretEnv); env != "" {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, nil
		}
	}
	if secret := strings.TrimSpace(w.Secret); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("webhook: no secret configured")
}

// Pauses switches individual modules off without touching state.
type Pauses struct {
	Vault   bool `toml:"Vault"`
	Reserve bool `toml:"Reserve"`
	Claims  bool `toml:"Claims"`
	Bank    bool `toml:"Bank"`
}

// View converts the flags into the pause view the engines consult.
func (p Pauses) View() nativecommon.StaticPauses {
	return nativecommon.StaticPauses{
		"vault":   p.Vault,
		"reserve": p.Reserve,
		"claims":  p.Claims,
		"bank":    p.Bank,
	}
}
