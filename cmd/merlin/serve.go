// Merlin - Deterministic business-data assessment engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/ingest"
	"github.com/opensource-finance/merlin/internal/insight"
	"github.com/opensource-finance/merlin/internal/rulestore"
	"github.com/opensource-finance/merlin/internal/score"
	"github.com/opensource-finance/merlin/internal/session"
	"github.com/opensource-finance/merlin/internal/worker"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assessment worker, consuming payloads from the event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			logger.Info("starting merlin",
				"version", Version,
				"commit", Commit,
				"build_date", BuildDate,
				"tier", cfg.Tier,
				"rules_source", cfg.Rules.Source,
				"sessions", cfg.Sessions.Store,
				"eventbus", cfg.EventBus.Type,
			)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				logger.Info("received shutdown signal", "signal", sig)
				cancel()
			}()

			// Rule catalogue, from a directory or a SQL store.
			var provider *catalog.Provider
			switch cfg.Rules.Source {
			case "dir", "":
				provider, err = catalog.NewProvider(func() (*catalog.Catalogue, error) {
					return catalog.LoadDir(cfg.Rules.Dir)
				})
			case "sqlite", "postgres":
				var store *rulestore.SQLRuleStore
				store, err = rulestore.New(cfg.Rules)
				if err != nil {
					return fmt.Errorf("failed to open rule store: %w", err)
				}
				defer store.Close()
				provider, err = catalog.NewProvider(func() (*catalog.Catalogue, error) {
					return catalog.LoadStore(ctx, store)
				})
			default:
				return fmt.Errorf("unsupported rules source: %s", cfg.Rules.Source)
			}
			if err != nil {
				return fmt.Errorf("failed to load rule catalogue: %w", err)
			}
			logger.Info("rule catalogue loaded",
				"rules", provider.Current().Len(),
				"version", provider.Current().Version(),
			)

			var schemas *ingest.SchemaSet
			if _, statErr := os.Stat(cfg.Schemas.Dir); statErr == nil {
				schemas, err = ingest.LoadSchemas(cfg.Schemas.Dir)
				if err != nil {
					return fmt.Errorf("failed to load schemas: %w", err)
				}
				logger.Info("payload schemas loaded", "domains", schemas.Domains())
			}

			weights := score.DefaultWeights()
			if _, statErr := os.Stat(cfg.Scoring.WeightsPath); statErr == nil {
				weights, err = score.LoadWeights(cfg.Scoring.WeightsPath)
				if err != nil {
					return fmt.Errorf("failed to load weights: %w", err)
				}
			}

			templates := insight.DefaultTemplates()
			if _, statErr := os.Stat(cfg.Insights.TemplatesPath); statErr == nil {
				templates, err = insight.LoadTemplates(cfg.Insights.TemplatesPath)
				if err != nil {
					return fmt.Errorf("failed to load insight templates: %w", err)
				}
			}

			sessions, err := cache.New(cfg.Sessions)
			if err != nil {
				return fmt.Errorf("failed to initialize session store: %w", err)
			}
			defer sessions.Close()
			logger.Info("session store initialized", "store", cfg.Sessions.Store)

			eventBus, err := bus.New(cfg.EventBus)
			if err != nil {
				return fmt.Errorf("failed to initialize event bus: %w", err)
			}
			defer eventBus.Close()
			logger.Info("event bus initialized", "type", cfg.EventBus.Type)

			svc := session.NewService(
				provider,
				ingest.NewValidator(schemas),
				engine.NewEvaluator(8, logger),
				score.NewScorer(weights),
				insight.NewGenerator(templates, logger),
				session.NewRegistry(sessions, cfg.Sessions.TTL),
				eventBus,
				logger,
			)

			// Hot reload for the directory source.
			if cfg.Rules.Source == "dir" && cfg.Rules.Watch {
				watcher, err := catalog.NewWatcher(provider, cfg.Rules.Dir, logger)
				if err != nil {
					return fmt.Errorf("failed to start catalogue watcher: %w", err)
				}
				watcher.OnSwap = func(c *catalog.Catalogue) {
					payload, _ := json.Marshal(map[string]any{
						"version": c.Version(),
						"rules":   c.Len(),
					})
					if err := eventBus.Publish(ctx, domain.TopicCatalogueReload, payload); err != nil {
						logger.Error("failed to publish reload event", "error", err)
					}
				}
				go func() {
					if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
						logger.Error("catalogue watcher stopped", "error", err)
					}
				}()
				logger.Info("catalogue hot reload enabled", "dir", cfg.Rules.Dir)
			}

			w := worker.NewWorker(eventBus, svc, logger)
			if err := w.Start(); err != nil {
				return fmt.Errorf("failed to start worker: %w", err)
			}

			printBanner(cfg, Version)
			logger.Info("merlin is ready")

			<-ctx.Done()
			logger.Info("shutting down...")

			if err := w.Stop(); err != nil {
				logger.Error("failed to stop worker", "error", err)
			}
			logger.Info("merlin shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "JSON configuration file (optional)")

	return cmd
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🧙 MERLIN                   ║")
	fmt.Println("  ║     Business Data Assessment Engine       ║")
	fmt.Println("  ║      Every number tells on itself.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Rules:    %s\n", cfg.Rules.Source)
	fmt.Printf("  Bus:      %s\n", cfg.EventBus.Type)
	fmt.Println()
	fmt.Println("  Topics:")
	fmt.Printf("    %-28s - submit payloads for assessment\n", domain.TopicPayloadSubmitted)
	fmt.Printf("    %-28s - per-domain evaluation results\n", domain.TopicDomainEvaluated)
	fmt.Printf("    %-28s - finished reports\n", domain.TopicReportReady)
	fmt.Printf("    %-28s - reports vetoed by critical failures\n", domain.TopicReportBlocked)
	fmt.Println()
}
