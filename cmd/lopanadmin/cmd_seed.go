/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lopanworks/lopan_admin/internal/db"
)

var (
	seedAdminUsername string
	seedMachineCount  int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the initial administrator account and workshop machines",
	Long: `Seed baseline records needed to operate Lopan Admin.

Creates the administrator account when it does not exist (the password is
read from LOPAN_ADMIN_PASSWORD) and, when the machines table is empty,
creates numbered workshop machines with the default station capacity.

Examples:
  # Seed admin "admin" and 12 machines
  LOPAN_ADMIN_PASSWORD=changeme lopanadmin seed

  # Use a different admin username and machine count
  LOPAN_ADMIN_PASSWORD=changeme lopanadmin seed --admin-user=ops --machines=8
`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminUsername, "admin-user", "admin", "Username for the administrator account")
	seedCmd.Flags().IntVar(&seedMachineCount, "machines", 12, "Number of machines to create when none exist")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	password := os.Getenv("LOPAN_ADMIN_PASSWORD")
	if password == "" {
		return fmt.Errorf("LOPAN_ADMIN_PASSWORD is required")
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}()

	if err := db.Migrate(database); err != nil {
		return err
	}

	admin, err := db.EnsureAdminUser(database, seedAdminUsername, password)
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	logger.Info().Str("username", admin.Username).Msg("administrator account ready")

	if err := db.SeedMachines(database, seedMachineCount); err != nil {
		return fmt.Errorf("seed machines: %w", err)
	}

	logger.Info().Msg("seed complete")
	return nil
}
