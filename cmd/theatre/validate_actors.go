// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/holomush/theatre/internal/actor"
	"github.com/holomush/theatre/internal/xdg"
)

// NewValidateActorsCmd creates the validate-actors subcommand.
func NewValidateActorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-actors [file]",
		Short: "Validate an actor catalog without joining a scene",
		Long: `Validates an actor catalog against the catalog JSON Schema and checks
every actor id. Defaults to the --actors file, then to the XDG catalog.
Exits with code 0 on success, non-zero on failure.

Useful in CI pipelines to catch catalog errors early:
  theatre validate-actors actors.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, "validate-actors")
			if err != nil {
				return err
			}
			path := cfg.Actors
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = xdg.ActorsFile()
			}
			return runValidateActors(cmd, path)
		},
	}
}

func runValidateActors(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	cat, err := actor.ParseCatalog(data)
	if err != nil {
		slog.Error("actor catalog invalid", "path", path, "error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	actors := cat.All()
	for _, a := range actors {
		cmd.Printf("  %s (%s): %d emotes\n", a.ID, a.Name, len(a.EmoteNames()))
	}
	cmd.Printf("%s: %d actors valid\n", path, len(actors))
	return nil
}

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the actor catalog JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := actor.GenerateSchema()
			if err != nil {
				return fmt.Errorf("generate schema: %w", err)
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(schema))
				return nil
			}
			if err := os.WriteFile(out, schema, 0o600); err != nil {
				return fmt.Errorf("write schema: %w", err)
			}
			cmd.Printf("Generated %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the schema to a file instead of stdout")

	return cmd
}
