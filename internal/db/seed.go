/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/auth"
	"github.com/lopanworks/lopan_admin/internal/models"
)

// EnsureAdminUser creates the bootstrap administrator account when no user
// with the name exists yet. Idempotent, safe to run on every startup.
func EnsureAdminUser(database *gorm.DB, username, password string) (*models.User, error) {
	var existing models.User
	err := database.First(&existing, "username = ?", username).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Username:    username,
		Password:    hash,
		DisplayName: "Administrator",
		Role:        models.RoleAdministrator,
		Active:      true,
	}
	if err := database.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// SeedMachines creates numbered machines when the table is empty. Used by
// the seed command to stand up a demo environment.
func SeedMachines(database *gorm.DB, count int) error {
	var existing int64
	if err := database.Model(&models.Machine{}).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	for i := 1; i <= count; i++ {
		machine := &models.Machine{
			ID:              uuid.NewString(),
			Number:          fmt.Sprintf("M%02d", i),
			Name:            fmt.Sprintf("Machine %d", i),
			StationCapacity: models.DefaultStationCapacity,
			Active:          true,
		}
		if err := database.Create(machine).Error; err != nil {
			return err
		}
	}
	return nil
}
