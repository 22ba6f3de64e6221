package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pairvault/native/oracle"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, DefaultVaultAddress, cfg.VaultAddress)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, again.RPCAddress)
	require.Equal(t, cfg.RateLimit, again.RateLimit)
}

func TestLoadParsesSectionsAndAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
GenesisFile = "genesis.json"
PairsFile = "pairs.yaml"
CORSOrigins = ["https://app.example"]
VaultAddress = "0x00000000000000000000000000000000000000aa"

[auth]
Secret = "topsecret"

[rate_limit]
RequestsPerSecond = 5.5
Burst = 10

[nats]
URL = "nats://127.0.0.1:4222"

[event_log]
DSN = "events.db"

[webhook]
URL = "https://hooks.example/vault"
Secret = "hook"
Events = ["vault.report"]

[pauses]
Vault = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.RPCAddress)
	require.Equal(t, "./vault-data", cfg.DataDir)
	require.Equal(t, 5.5, cfg.RateLimit.RequestsPerSecond)
	require.Equal(t, 10, cfg.RateLimit.Burst)
	require.Equal(t, "pairvault.events", cfg.NATS.Subject)
	require.Equal(t, "pairvault", cfg.Auth.Issuer)
	require.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
	require.Equal(t, "events.db", cfg.EventLog.DSN)
	require.Equal(t, []string{"vault.report"}, cfg.Webhook.Events)
	require.True(t, cfg.Pauses.View().IsPaused("vault"))
	require.False(t, cfg.Pauses.View().IsPaused("bank"))
	require.Equal(t, filepath.Join(filepath.Dir(path), "pairs.yaml"), Resolve(path, cfg.PairsFile))

	secret, err := cfg.Auth.ResolveSecret()
	require.NoError(t, err)
	require.Equal(t, "topsecret", secret)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "Bogus = 1\n",
		"bad address":    "VaultAddress = \"nope\"\n",
		"zero burst":     "[rate_limit]\nRequestsPerSecond = 1.0\nBurst = 0\n",
		"telemetry":      "[telemetry]\nTraces = true\n",
		"nats no scheme": "[nats]\nURL = \"localhost:4222\"\n",
		"webhook scheme": "[webhook]\nURL = \"ftp://hooks\"\nSecret = \"s\"\n",
		"webhook secret": "[webhook]\nURL = \"https://hooks.example\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestResolveSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("PAIRVAULT_TEST_SECRET", "from-env")
	secret, err := Auth{Secret: "inline", SecretEnv: "PAIRVAULT_TEST_SECRET"}.ResolveSecret()
	require.NoError(t, err)
	require.Equal(t, "from-env", secret)

	_, err = Auth{}.ResolveSecret()
	require.Error(t, err)
}

func TestParseBps(t *testing.T) {
	cases := map[string]uint64{
		"":       0,
		"0.05":   500,
		"5%":     500,
		"1.25%":  125,
		"750bps": 750,
		" 0.1 ":  1_000,
	}
	for in, want := range cases {
		got, err := ParseBps(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, bad := range []string{"abc", "-1%", "0.00015", "1.5bps"} {
		_, err := ParseBps(bad)
		require.Error(t, err, bad)
	}
}

func TestLoadPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	contents := `oracles:
  - name: flat
    kind: fixed_discount
    mergeDiscount: "10%"
  - name: decay
    kind: time_decay
    rate: "0.05"
    expiry: "2030-01-01T00:00:00Z"
pairs:
  - legA: {ledger: "0x000000000000000000000000000000000000a0a0", series: "0x01", decimals: 6}
    legB: {ledger: "0x000000000000000000000000000000000000b0b0", series: "0x02", decimals: 18}
    oracle: flat
  - legA: {ledger: "0x000000000000000000000000000000000000a0a0", series: "0x03", decimals: 6}
    legB: {ledger: "0x000000000000000000000000000000000000b0b0", series: "0x04", decimals: 6}
    oracle: identity
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	file, err := LoadPairs(path)
	require.NoError(t, err)
	require.Len(t, file.Pairs, 2)

	defs, err := file.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, oracle.KindFixedDiscount, defs[0].Kind)
	require.Equal(t, uint64(1_000), defs[0].MergeBps)
	require.Equal(t, uint64(500), defs[1].RateBps)
	require.Equal(t, 2030, defs[1].Expiry.Year())

	a, b, err := file.Pairs[0].Legs()
	require.NoError(t, err)
	require.Equal(t, uint8(6), a.Decimals)
	require.Equal(t, uint8(18), b.Decimals)
	require.Equal(t, byte(0x02), b.Leg.Series[31])
}

func TestLoadPairsRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown oracle": `pairs:
  - legA: {ledger: "0x000000000000000000000000000000000000a0a0", series: "0x01"}
    legB: {ledger: "0x000000000000000000000000000000000000b0b0", series: "0x02"}
    oracle: missing
`,
		"identical legs": `pairs:
  - legA: {ledger: "0x000000000000000000000000000000000000a0a0", series: "0x01"}
    legB: {ledger: "0x000000000000000000000000000000000000a0a0", series: "0x01"}
    oracle: identity
`,
		"decimals": `pairs:
  - legA: {ledger: "0x000000000000000000000000000000000000a0a0", series: "0x01", decimals: 40}
    legB: {ledger: "0x000000000000000000000000000000000000b0b0", series: "0x02"}
    oracle: identity
`,
		"decay without expiry": `oracles:
  - name: decay
    kind: time_decay
    rate: "5%"
`,
		"unknown field": `oracles:
  - name: flat
    discount: "5%"
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pairs.yaml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
			_, err := LoadPairs(path)
			require.Error(t, err)
		})
	}
}
