/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.Machine{},
		&models.ProductionBatch{},
		&models.ProductConfig{},
		&models.AuditLog{},
		&models.Notification{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// Only pending and approved batches claim a slot, so the index is
	// partial. MySQL has no partial indexes; there the submit path takes a
	// row lock on the machine instead.
	switch database.Dialector.Name() {
	case "postgres", "sqlite":
		err := database.Exec(fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %s
			 ON production_batches (machine_id, target_date, shift)
			 WHERE status IN ('pending', 'approved')`, models.SlotIndexName,
		)).Error
		if err != nil {
			return fmt.Errorf("create slot index: %w", err)
		}
	}
	return nil
}
