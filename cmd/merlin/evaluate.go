// Merlin - Deterministic business-data assessment engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/ingest"
	"github.com/opensource-finance/merlin/internal/insight"
	"github.com/opensource-finance/merlin/internal/score"
	"github.com/opensource-finance/merlin/internal/session"
)

func newEvaluateCmd() *cobra.Command {
	var (
		rulesDir      string
		schemasDir    string
		weightsPath   string
		templatesPath string
		compact       bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate [payload.json ...]",
		Short: "Assess one or more domain payload files and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(domain.LoggingConfig{Level: "warn", Format: "text"})

			provider, err := catalog.NewProvider(func() (*catalog.Catalogue, error) {
				return catalog.LoadDir(rulesDir)
			})
			if err != nil {
				return fmt.Errorf("failed to load rule catalogue: %w", err)
			}

			var schemas *ingest.SchemaSet
			if schemasDir != "" {
				schemas, err = ingest.LoadSchemas(schemasDir)
				if err != nil {
					return fmt.Errorf("failed to load schemas: %w", err)
				}
			}

			weights := score.DefaultWeights()
			if weightsPath != "" {
				weights, err = score.LoadWeights(weightsPath)
				if err != nil {
					return fmt.Errorf("failed to load weights: %w", err)
				}
			}

			templates := insight.DefaultTemplates()
			if templatesPath != "" {
				templates, err = insight.LoadTemplates(templatesPath)
				if err != nil {
					return fmt.Errorf("failed to load insight templates: %w", err)
				}
			}

			payloads := make([]*domain.Payload, 0, len(args))
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read payload %s: %w", path, err)
				}
				var p domain.Payload
				if err := json.Unmarshal(raw, &p); err != nil {
					return fmt.Errorf("failed to parse payload %s: %w", path, err)
				}
				payloads = append(payloads, &p)
			}

			svc := session.NewService(
				provider,
				ingest.NewValidator(schemas),
				engine.NewEvaluator(8, logger),
				score.NewScorer(weights),
				insight.NewGenerator(templates, logger),
				session.NewRegistry(cache.NewLRUStore(8), time.Minute),
				nil,
				logger,
			)

			report, err := svc.Assess(cmd.Context(), payloads)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			if !compact {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(report); err != nil {
				return err
			}

			if report.Breakdown.Label == domain.LabelBlocked {
				return fmt.Errorf("assessment blocked by %d critical failure(s)", len(report.Breakdown.VetoRuleIDs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesDir, "rules", "./rules", "rule document directory")
	cmd.Flags().StringVar(&schemasDir, "schemas", "", "payload schema directory (optional)")
	cmd.Flags().StringVar(&weightsPath, "weights", "", "scoring weights document (optional)")
	cmd.Flags().StringVar(&templatesPath, "templates", "", "insight template document (optional)")
	cmd.Flags().BoolVar(&compact, "compact", false, "print the report without indentation")

	return cmd
}
