package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pairvault/config"
	"pairvault/core"
	"pairvault/core/events"
	"pairvault/core/genesis"
	"pairvault/gateway/middleware"
	"pairvault/integrations/eventlog"
	"pairvault/integrations/natsbus"
	"pairvault/integrations/webhooks"
	"pairvault/native/oracle"
	"pairvault/observability"
	"pairvault/observability/logging"
	telemetry "pairvault/observability/otel"
	"pairvault/rpc"
	"pairvault/storage"
)

const serviceName = "vaultd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides GenesisFile)")
	pairsFlag := flag.String("pairs", "", "Path to the pairs YAML file (overrides PairsFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.SetupFile(serviceName, cfg.Environment, cfg.LogFile, logging.FileOptions{MaxBackups: 5, MaxAgeDays: 14, Compress: true})

	if err := run(cfg, *genesisFlag, *pairsFlag, logger); err != nil {
		logger.Error("vaultd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, genesisPath, pairsPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var spec *genesis.GenesisSpec
	if path := firstNonEmpty(genesisPath, cfg.GenesisFile); path != "" {
		var err error
		if spec, err = genesis.LoadGenesisSpec(path); err != nil {
			return err
		}
	}
	var collateral string
	if spec != nil {
		collateral = spec.Vault.Collateral
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		VaultAddress: cfg.VaultAddress,
		Collateral:   collateral,
		Attributes:   cfg.Telemetry.Attributes,
		Endpoint:     cfg.Telemetry.Endpoint,
		Insecure:     cfg.Telemetry.Insecure,
		Headers:      telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:      cfg.Telemetry.Metrics,
		Traces:       cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
	}
	defer db.Close()

	registry, seeds, err := loadPairs(firstNonEmpty(pairsPath, cfg.PairsFile))
	if err != nil {
		return err
	}

	sinks, index, closeSinks, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	node, err := core.NewNode(db, core.Options{
		VaultAddress: common.HexToAddress(cfg.VaultAddress),
		Oracles:      registry,
		Pauses:       cfg.Pauses.View(),
		Emitter:      sinks,
		Logger:       logger,
		Metrics:      observability.Vault(),
	})
	if err != nil {
		return err
	}
	if err := node.Bootstrap(ctx, spec, seeds); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	secret, err := cfg.Auth.ResolveSecret()
	if err != nil {
		return err
	}
	server, err := rpc.NewServer(node, rpc.ServerConfig{
		Auth:              middleware.AuthConfig{HMACSecret: secret, Issuer: cfg.Auth.Issuer},
		RateLimit:         middleware.RateLimit{RequestsPerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst},
		CORSOrigins:       cfg.CORSOrigins,
		ReadHeaderTimeout: time.Duration(cfg.RPCReadHeaderTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPCWriteTimeout) * time.Second,
		Events:            index,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.RPCAddress, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	logger.Info("vaultd started",
		slog.String("rpc", listener.Addr().String()),
		slog.String("vault", node.VaultAddress().Hex()))

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

// loadPairs builds the oracle registry and the seed pairs from the pairs
// file. Without a file only the identity oracle is available.
func loadPairs(path string) (*oracle.Registry, []core.PairSeed, error) {
	if path == "" {
		registry, err := oracle.BuildRegistry(nil, time.Now)
		return registry, nil, err
	}
	file, err := config.LoadPairs(path)
	if err != nil {
		return nil, nil, err
	}
	defs, err := file.Definitions()
	if err != nil {
		return nil, nil, err
	}
	registry, err := oracle.BuildRegistry(defs, time.Now)
	if err != nil {
		return nil, nil, err
	}
	seeds := make([]core.PairSeed, 0, len(file.Pairs))
	for i, pair := range file.Pairs {
		legA, legB, err := pair.Legs()
		if err != nil {
			return nil, nil, fmt.Errorf("pairs[%d]: %w", i, err)
		}
		seeds = append(seeds, core.PairSeed{LegA: legA, LegB: legB, Oracle: strings.TrimSpace(pair.Oracle)})
	}
	return registry, seeds, nil
}

// openSinks connects every configured event sink. The returned index is nil
// when the event log is disabled.
func openSinks(cfg *config.Config, logger *slog.Logger) (events.Multi, rpc.EventIndex, func(), error) {
	var (
		sinks   events.Multi
		index   rpc.EventIndex
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if dsn := strings.TrimSpace(cfg.EventLog.DSN); dsn != "" {
		store, err := eventlog.Open(dsn, logger)
		if err != nil {
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, store)
		index = store
		closers = append(closers, func() { _ = store.Close() })
	}

	if url := strings.TrimSpace(cfg.NATS.URL); url != "" {
		pub, err := natsbus.Connect(natsbus.Config{URL: url, Subject: cfg.NATS.Subject, Name: serviceName}, logger)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, pub)
		closers = append(closers, func() { _ = pub.Close() })
	}

	if endpoint := strings.TrimSpace(cfg.Webhook.URL); endpoint != "" {
		secret, err := cfg.Webhook.ResolveSecret()
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		dispatcher, err := webhooks.NewDispatcher(endpoint, []byte(secret),
			webhooks.WithEventTypes(cfg.Webhook.Events...),
			webhooks.WithLogger(logger))
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, dispatcher)
		closers = append(closers, dispatcher.Close)
	}

	if len(sinks) == 0 {
		logger.Info("no event sinks configured")
	}
	return sinks, index, closeAll, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
