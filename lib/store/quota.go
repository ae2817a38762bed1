package store

import (
	"context"
	"time"

	"github.com/bsnapp/bsn/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordUsage adds spent API units to the usage row of the given quota
// window, creating the row on first use of the window.
func (s *Store) RecordUsage(ctx context.Context, windowStart, windowEnd time.Time, units int) error {
	usage := &models.QuotaUsage{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		UsageCount:  units,
		ResetAt:     windowEnd,
	}
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "window_start"}, {Name: "window_end"}},
			DoUpdates: clause.Assignments(map[string]any{
				"usage_count": gorm.Expr("usage_count + ?", units),
				"updated_at":  time.Now().UTC(),
			}),
		}).
		Create(usage)
	return tx.Error
}

// WindowUsage reports units spent so far in the given window. A window with
// no row yet reads as zero.
func (s *Store) WindowUsage(ctx context.Context, windowStart, windowEnd time.Time) (int, error) {
	usage := &models.QuotaUsage{}
	tx := s.db.WithContext(ctx).
		Where("window_start = ?", windowStart).
		Where("window_end = ?", windowEnd).
		First(usage)
	if err := tx.Error; err != nil {
		if s.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return usage.UsageCount, nil
}

// PurgeOldUsage drops usage rows from windows that ended before the cutoff.
func (s *Store) PurgeOldUsage(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).Delete(&models.QuotaUsage{}, "window_end < ?", cutoff)
	return tx.RowsAffected, tx.Error
}
