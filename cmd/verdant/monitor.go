package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/verdantworks/verdant/internal/alerts"
	"github.com/verdantworks/verdant/internal/analysis"
	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/gates"
	"github.com/verdantworks/verdant/internal/httpapi"
	"github.com/verdantworks/verdant/internal/metrics"
	"github.com/verdantworks/verdant/internal/modelclient"
	"github.com/verdantworks/verdant/internal/notify"
	"github.com/verdantworks/verdant/internal/persistence"
	"github.com/verdantworks/verdant/internal/persistence/postgres"
	"github.com/verdantworks/verdant/internal/predict"
	"github.com/verdantworks/verdant/internal/scheduler"
	"github.com/verdantworks/verdant/internal/thresholds"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the monitoring scheduler daemon",
		Long: `Starts the periodic evaluation loop over all active units, the alert
notification hub, and the operational HTTP API. Runs until interrupted.`,
		RunE: runMonitor,
	}
	cmd.Flags().Bool("memory", false, "Use the in-memory repository (development mode)")
	cmd.Flags().Bool("once", false, "Run a single tick and exit")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	memoryMode, _ := cmd.Flags().GetBool("memory")
	once, _ := cmd.Flags().GetBool("once")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		setLogLevel(override)
	} else {
		setLogLevel(cfg.LogLevel)
	}

	// Repository
	var repo persistence.Repository
	if memoryMode {
		log.Warn().Msg("running with in-memory repository, nothing will be persisted")
		repo = persistence.NewMemoryRepo()
	} else {
		pg, err := postgres.Connect(cfg.Database.DSN, cfg.Database.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to open repository: %w", err)
		}
		defer pg.Close()
		repo = pg
	}

	// Threshold catalog
	var catalog thresholds.Catalog
	if cfg.CatalogPath != "" {
		catalog, err = thresholds.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load plant catalog: %w", err)
		}
	} else {
		log.Warn().Msg("no plant catalog configured, all lookups use generic defaults")
		catalog = thresholds.NewStaticCatalog(nil)
	}
	resolver := thresholds.NewResolver(catalog)

	// Gated predictors over the model service
	client := modelclient.New(cfg.Model)
	predictors := make(map[domain.ModelType]*predict.Predictor, len(cfg.Gates))
	for modelType, node := range cfg.Gates {
		gate, err := gates.Compile(node)
		if err != nil {
			return fmt.Errorf("gate for model %s: %w", modelType, err)
		}
		predictors[modelType] = predict.NewPredictor(modelType, gate, client)
	}

	refreshCtx, cancelRefresh := context.WithTimeout(cmd.Context(), 30*time.Second)
	all := make([]*predict.Predictor, 0, len(predictors))
	for _, p := range predictors {
		all = append(all, p)
	}
	modelclient.RefreshAll(refreshCtx, all)
	cancelRefresh()

	// Analysis stage order: synthesis last, consuming the others.
	stages := []analysis.Stage{
		analysis.NewRiskStage(predictors[domain.ModelResponse], cfg.Analysis.RiskThreshold),
		analysis.NewOptimizationStage(resolver, predictors[domain.ModelThreshold], cfg.Analysis.BlendWeight, cfg.Analysis.OptimizationMargin),
		analysis.NewTransitionStage(predictors[domain.ModelDuration], cfg.Analysis.TransitionHorizonDays, cfg.Analysis.TransitionMinConfidence),
		analysis.NewTrendStage(cfg.Analysis.TrendWindow, cfg.Analysis.TrendRates),
		analysis.NewStressStage(resolver),
		analysis.NewRecommendationStage(predictors[domain.ModelTiming], cfg.Analysis.MinRecommendationSeverity),
	}

	hub := notify.NewHub()
	defer hub.Close()
	reg := metrics.NewRegistry()
	clusterer := alerts.NewClusterer(cfg.Alerts.ClusterWindow, cfg.Alerts.MaxVisible)

	sched := scheduler.New(cfg.Scheduler, cfg.Alerts, repo, stages, clusterer, hub, reg)

	if once {
		sched.RunOnce(cmd.Context())
		status := sched.Status()
		log.Info().Int("units", status.ActiveUnitCount).Int64("errors", status.ErrorCount).
			Dur("duration", status.LastCycleDuration).Msg("single tick complete")
		return nil
	}

	api := httpapi.New(cfg.HTTP.Listen, sched, repo, hub, reg)
	go func() {
		if err := api.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("http api failed")
		}
	}()

	if err := sched.Start(cmd.Context()); err != nil {
		return err
	}

	// Block until interrupted, then stop cooperatively.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return api.Shutdown(shutdownCtx)
}
