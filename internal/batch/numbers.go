/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package batch

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/lopanworks/lopan_admin/internal/models"
)

// batchNumberPrefix starts every generated batch number. The full shape is
// PC-YYYYMMDD-NNNN with NNNN restarting at 0001 each day.
const batchNumberPrefix = "PC"

// nextBatchNumber allocates the next number for the day. The suffix comes
// from the highest number already issued, so deleted drafts leave gaps
// instead of freeing numbers for reuse. Runs inside the caller's
// transaction so concurrent creates on the same day cannot collide without
// one of them failing the unique index.
func nextBatchNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	day := now.Format("20060102")
	prefix := fmt.Sprintf("%s-%s-", batchNumberPrefix, day)

	var last sql.NullString
	err := tx.WithContext(ctx).
		Model(&models.ProductionBatch{}).
		Where("batch_number LIKE ?", prefix+"%").
		Select("MAX(batch_number)").
		Scan(&last).Error
	if err != nil {
		return "", fmt.Errorf("max batch number: %w", err)
	}

	next := 1
	if last.Valid && len(last.String) > len(prefix) {
		suffix, err := strconv.Atoi(last.String[len(prefix):])
		if err != nil {
			return "", fmt.Errorf("parse batch number %q: %w", last.String, err)
		}
		next = suffix + 1
	}

	return fmt.Sprintf("%s%04d", prefix, next), nil
}
