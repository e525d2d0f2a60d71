package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quantfold/fundrank/internal/cache"
	"github.com/quantfold/fundrank/internal/config"
	"github.com/quantfold/fundrank/internal/metrics"
	"github.com/quantfold/fundrank/internal/persistence"
	"github.com/quantfold/fundrank/internal/persistence/postgres"
	"github.com/quantfold/fundrank/internal/pipeline"
	"github.com/quantfold/fundrank/internal/provider"
	"github.com/quantfold/fundrank/internal/ratio"
	"github.com/quantfold/fundrank/internal/scoring"
)

var (
	scanEntities     []string
	scanEntitiesFile string
	scanFields       []string
	scanOutPath      string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Reconcile, rate and persist a batch of entities",
	Long: `Run the full pipeline over a batch of entities: resolve fields
across providers with account-aware fallback, derive ratios, compute
composite scores and ratings, and persist current + historical records.

Example usage:
  fundrank scan --entities AAPL,MSFT,ORCL
  fundrank scan --entities-file universe.txt --out results.json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringSliceVar(&scanEntities, "entities", nil, "Comma-separated entity IDs to process")
	scanCmd.Flags().StringVar(&scanEntitiesFile, "entities-file", "", "File with one entity ID per line")
	scanCmd.Flags().StringSliceVar(&scanFields, "fields", nil, "Override the required field set")
	scanCmd.Flags().StringVar(&scanOutPath, "out", "", "Write per-entity results as JSON to this file")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	entities, err := resolveEntities()
	if err != nil {
		return err
	}
	fields := scanFields
	if len(fields) == 0 {
		fields = ratio.RequiredFields()
	}

	runner, cleanup, err := buildRunner(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// SIGINT/SIGTERM stop new provider calls; in-flight calls finish
	// under their own timeouts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := runner.Run(ctx, entities, fields)
	if err != nil {
		log.Warn().Err(err).Msg("run ended early")
	}

	if scanOutPath != "" {
		if werr := writeResults(scanOutPath, results); werr != nil {
			return werr
		}
		log.Info().Str("path", scanOutPath).Msg("results written")
	}
	printSummary(results)
	return nil
}

// buildRunner assembles the pipeline from configuration. The returned
// cleanup closes whatever external handles were opened.
func buildRunner(cfg *config.Config, log zerolog.Logger) (*pipeline.Runner, func(), error) {
	pool := provider.NewPool(cfg.Pool, cfg.Accounts, log)

	clients := make([]provider.Client, 0, len(cfg.Providers))
	for _, pe := range cfg.Providers {
		clients = append(clients, provider.NewRESTClient(provider.RESTConfig{
			Name:           pe.Name,
			BaseURL:        pe.BaseURL,
			APIKeyParam:    pe.APIKeyParam,
			RequestTimeout: pe.RequestTimeout,
			FieldMap:       pe.FieldMap,
			PeriodMap:      pe.PeriodMap,
			Confidence:     pe.Confidence,
		}, os.Getenv(pe.APIKeyEnv), log))
	}

	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	var recCache cache.RecordCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		cleanups = append(cleanups, func() { _ = client.Close() })
		recCache = cache.NewRedis(client, cfg.Redis.TTL, log)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	orch := pipeline.NewOrchestrator(clients, cfg.Specs(), pool, recCache, m, cfg.Orchestrator, log)

	scoringCfg := scoring.DefaultConfig()
	if cfg.ScoringConfigPath != "" {
		loaded, err2 := scoring.LoadConfig(cfg.ScoringConfigPath)
		if err2 != nil {
			cleanup()
			return nil, nil, err2
		}
		scoringCfg = loaded
	}
	var thresholds scoring.ThresholdSource = scoring.DefaultThresholds()
	if cfg.ThresholdTablePath != "" {
		t, err2 := scoring.LoadTable(cfg.ThresholdTablePath)
		if err2 != nil {
			cleanup()
			return nil, nil, err2
		}
		thresholds = t
	}
	scorer := scoring.NewEngine(scoringCfg, thresholds)

	var store persistence.ScoreStore
	if cfg.Postgres.Enabled {
		pg, err2 := postgres.Open(cfg.Postgres.DSN, cfg.Postgres.Timeout)
		if err2 != nil {
			cleanup()
			return nil, nil, err2
		}
		store = pg
	}

	var prices pipeline.PriceSource
	if cfg.Price.BaseURL != "" {
		prices = provider.NewRESTPriceSource(cfg.Price, os.Getenv(cfg.Price.APIKeyEnv))
	}

	runner := pipeline.NewRunner(orch, ratio.NewEngine(nil), scorer, prices, store, cfg.Runner, log)
	return runner, cleanup, nil
}

func resolveEntities() ([]string, error) {
	entities := append([]string(nil), scanEntities...)
	if scanEntitiesFile != "" {
		f, err := os.Open(scanEntitiesFile)
		if err != nil {
			return nil, fmt.Errorf("opening entities file: %w", err)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				entities = append(entities, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading entities file: %w", err)
		}
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no entities given: use --entities or --entities-file")
	}
	return entities, nil
}

func writeResults(path string, results []pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

func printSummary(results []pipeline.Result) {
	for _, res := range results {
		switch {
		case res.Skipped:
			fmt.Printf("%-10s skipped (fresh)\n", res.EntityID)
		case res.Failure != nil:
			fmt.Printf("%-10s FAILED %s (success_rate=%.2f)\n", res.EntityID, res.Failure.Code, res.Failure.SuccessRate)
		default:
			fmt.Printf("%-10s %-12s composite=%6.2f quality=%.2f red=%d yellow=%d\n",
				res.EntityID, res.Score.Rating, res.Score.Composite, res.Score.DataQuality,
				len(res.Score.RedFlags), len(res.Score.YellowFlags))
		}
	}
}
