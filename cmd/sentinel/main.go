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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-trading/sentinel/internal/audit"
	"github.com/sentinel-trading/sentinel/internal/blacklist"
	"github.com/sentinel-trading/sentinel/internal/config"
	"github.com/sentinel-trading/sentinel/internal/creator"
	"github.com/sentinel-trading/sentinel/internal/engine"
	"github.com/sentinel-trading/sentinel/internal/history"
	"github.com/sentinel-trading/sentinel/internal/mltree"
	"github.com/sentinel-trading/sentinel/internal/observability"
	"github.com/sentinel-trading/sentinel/internal/riskapi"
	"github.com/sentinel-trading/sentinel/internal/scorer"
	"github.com/sentinel-trading/sentinel/internal/solana"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults apply when empty)")
	stubMode := flag.Bool("stub", false, "run against in-memory stub data sources")
	evalMint := flag.String("evaluate", "", "evaluate a single token mint and exit")
	evalCreator := flag.String("creator", "", "deployer wallet for -evaluate")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "sentinel").
		Logger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}
		cfg = loaded
	}
	applyLogConfig(cfg)

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Bool("stub", *stubMode).
		Msg("Sentinel risk engine starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	eng, err := buildEngine(ctx, cfg, *stubMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.PrometheusPort, eng.metrics)
	}

	if *evalMint != "" {
		runSingleEvaluation(ctx, eng.engine, *evalMint, *evalCreator)
		return
	}

	log.Info().Msg("Engine ready, awaiting evaluations")
	<-ctx.Done()
	log.Info().Msg("Sentinel risk engine shutdown complete")
}

// wiring bundles what main needs from the constructed graph.
type wiring struct {
	engine  *engine.Engine
	metrics *observability.Metrics
	sampler *engine.Sampler
	monitor *solana.WSMonitor
}

func buildEngine(ctx context.Context, cfg *config.Config, stub bool) (*wiring, error) {
	var (
		rpc     solana.RPCClient
		blStore blacklist.Store
		hist    history.Store
	)
	if stub {
		rpc = solana.NewStubRPCClient()
		blStore = blacklist.NewMemoryStore()
		hist = history.NewMemoryStore()
	} else {
		rpc = solana.NewLiveRPCClient(cfg.RPC)

		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("main: postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("main: postgres ping: %w", err)
		}
		blStore = blacklist.NewPostgresStore(pool)
		hist = history.NewPostgresStore(pool)
	}

	bl, err := blacklist.New(ctx, blStore)
	if err != nil {
		return nil, fmt.Errorf("main: blacklist warm start: %w", err)
	}
	log.Info().Int("blacklisted", bl.Len()).Msg("Blacklist loaded")

	metrics := observability.NewMetrics("sentinel")
	metrics.BlacklistSize.Set(float64(bl.Len()))
	eng := engine.New(
		cfg.Engine,
		rpc,
		riskapi.NewClient(cfg.RiskAPI),
		creator.NewTracer(cfg.Creator, rpc, hist, bl),
		scorer.New(cfg.Scorer),
		mltree.NewEntryClassifier(cfg.Entry),
		mltree.NewExitClassifier(cfg.Exit),
		hist,
		audit.NewTrail(cfg.General.AuditBuffer),
		metrics,
	)

	w := &wiring{engine: eng, metrics: metrics, sampler: engine.NewSampler(engine.DefaultSampleWindow)}
	if !stub {
		w.monitor = solana.NewWSMonitor(cfg.Monitor)
		updates, err := w.monitor.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("main: ws monitor: %w", err)
		}
		go feedSampler(updates, w.sampler)
	}
	return w, nil
}

// feedSampler drains monitor updates into the per-account observation
// windows the exit advisor reads.
func feedSampler(updates <-chan solana.AccountUpdate, sampler *engine.Sampler) {
	for u := range updates {
		sampler.IngestReserve(u)
	}
}

func runSingleEvaluation(ctx context.Context, eng *engine.Engine, mint, creatorWallet string) {
	pool := solana.PoolInfo{
		TokenMint:    solana.Pubkey(mint),
		Creator:      solana.Pubkey(creatorWallet),
		LiquidityUSD: decimal.Zero,
		CreatedAt:    time.Now(),
	}
	eval := eng.EvaluateEntry(ctx, pool)
	log.Info().
		Str("evaluation_id", eval.EvaluationID).
		Int("score", eval.Security.Score).
		Bool("approved", eval.Approved).
		Str("classifier", string(eval.Classifier.Prediction)).
		Str("quality", string(eval.Quality)).
		Msg("Evaluation result")
}

func serveMetrics(port int, metrics *observability.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("Metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}

func applyLogConfig(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.General.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.General.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
