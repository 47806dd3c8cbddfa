// Package main runs the reflection distribution monitor: it ingests
// Transfer events, detects proxy wallets for each holder, and distributes
// reward pool snapshots as virtual ledger credits.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"contagion-monitor/internal/chain"
	"contagion-monitor/internal/config"
	"contagion-monitor/internal/distribute"
	"contagion-monitor/internal/ingest"
	"contagion-monitor/internal/monitor"
	"contagion-monitor/internal/observability"
	"contagion-monitor/internal/proxydetect"
	"contagion-monitor/internal/scan"
	"contagion-monitor/internal/scriptlog"
	"contagion-monitor/internal/storage"
	chstore "contagion-monitor/internal/storage/clickhouse"
	"contagion-monitor/internal/storage/memory"
	"contagion-monitor/internal/storage/migrations"
	pgstore "contagion-monitor/internal/storage/postgres"
)

// stores holds the storage implementations behind the monitor.
type stores struct {
	holders    storage.HolderStore
	proxies    storage.ProxyWalletStore
	infections storage.InfectionStore
	snapshots  storage.SnapshotStore
	dists      storage.DistributionStore
	scriptLogs storage.ScriptLogStore
	cleanup    func()
}

func main() {
	envFile := flag.String("env-file", ".env", "Environment file loaded before reading configuration")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides METRICS_ADDR)")
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}
	if !*useMemory && cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required (use --use-memory for in-memory storage)")
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := createStores(ctx, cfg, *useMemory, log)
	if err != nil {
		log.WithError(err).Fatal("storage setup failed")
	}
	defer st.cleanup()

	// Mirror Info-and-above log entries into script_logs.
	log.AddHook(scriptlog.NewHook(st.scriptLogs))

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.ContractAddress, cfg.PrivateKey, log)
	if err != nil {
		log.WithError(err).Fatal("chain connection failed")
	}
	defer client.Close()

	var sources []chain.HistorySource
	if cfg.ExplorerAPIURL != "" {
		sources = append(sources, chain.NewExplorerHistorySource(cfg.ExplorerAPIURL, cfg.ExplorerAPIKey))
	}
	sources = append(sources, chain.NewLogHistorySource(client.Backend(), cfg.ContractAddress, log))
	history := chain.NewFallbackHistorySource(log, sources...)

	clock := clockwork.NewRealClock()
	exchanges := proxydetect.NewExchangeSet(cfg.ExtraExchangeAddresses...)
	detector := proxydetect.New(history, client, exchanges, clock, log)
	scanner := scan.New(st.holders, st.proxies, detector, client, cfg.MinHolderBalance, clock, log)
	engine := distribute.New(client, st.holders, st.proxies, st.snapshots, st.dists, scanner,
		cfg.SnapshotThresholdPercent, cfg.MinHolderBalance, clock, log)
	ingestor := ingest.New(client, st.infections, st.holders, clock, log)
	supervisor := monitor.New(ingestor, engine, cfg.PollInterval, cfg.ScanInterval, clock, log)

	go serveMetrics(cfg.MetricsAddr, log)

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("second signal, forcing immediate exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	log.WithFields(logrus.Fields{
		"contract":      cfg.ContractAddress.Hex(),
		"poll_interval": cfg.PollInterval,
		"scan_interval": cfg.ScanInterval,
	}).Info("monitor started")

	err = supervisor.Run(ctx)
	done <- err
	cancel()

	if err != nil {
		log.WithError(err).Fatal("monitor stopped")
	}
	log.Info("shutdown complete")
}

// createStores wires either the in-memory or the PostgreSQL backend, and
// routes script logs to ClickHouse when configured.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool, log logrus.FieldLogger) (*stores, error) {
	if useMemory {
		log.Info("using in-memory storage")
		holders := memory.NewHolderStore()
		return &stores{
			holders:    holders,
			proxies:    memory.NewProxyWalletStore(),
			infections: memory.NewInfectionStore(),
			snapshots:  memory.NewSnapshotStore(),
			dists:      memory.NewDistributionStore(holders),
			scriptLogs: memory.NewScriptLogStore(),
			cleanup:    func() {},
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	st := &stores{
		holders:    pgstore.NewHolderStore(pool),
		proxies:    pgstore.NewProxyWalletStore(pool),
		infections: pgstore.NewInfectionStore(pool),
		snapshots:  pgstore.NewSnapshotStore(pool),
		dists:      pgstore.NewDistributionStore(pool),
		scriptLogs: pgstore.NewScriptLogStore(pool),
		cleanup:    pool.Close,
	}

	if cfg.ClickHouseURL != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.scriptLogs = chstore.NewScriptLogStore(conn)
		st.cleanup = func() {
			conn.Close()
			pool.Close()
		}
		log.Info("script logs routed to clickhouse")
	}

	return st, nil
}

func serveMetrics(addr string, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	log.WithField("addr", addr).Info("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server failed")
	}
}
