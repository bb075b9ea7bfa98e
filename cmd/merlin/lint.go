// Merlin - Deterministic business-data assessment engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/merlin/internal/catalog"
	"github.com/opensource-finance/merlin/internal/ingest"
)

func newLintCmd() *cobra.Command {
	var (
		rulesDir   string
		schemasDir string
	)

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate rule and schema documents without evaluating anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.LoadDir(rulesDir)
			if err != nil {
				var le *catalog.LoadError
				if errors.As(err, &le) {
					return fmt.Errorf("%s: field %q: %w", le.Path, le.Field, le.Err)
				}
				return err
			}

			fmt.Printf("catalogue ok: %d rules, version %s\n", cat.Len(), cat.Version())
			for _, name := range cat.Domains() {
				fmt.Printf("  %-8s %d rules\n", name, len(cat.DomainRules(name)))
			}
			if n := len(cat.CrossRules()); n > 0 {
				fmt.Printf("  %-8s %d rules\n", "cross", n)
			}

			if schemasDir != "" {
				schemas, err := ingest.LoadSchemas(schemasDir)
				if err != nil {
					return err
				}
				fmt.Printf("schemas ok: %v\n", schemas.Domains())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesDir, "rules", "./rules", "rule document directory")
	cmd.Flags().StringVar(&schemasDir, "schemas", "", "payload schema directory (optional)")

	return cmd
}
