// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// AwardsStats returns aggregate metadata for a user's award ledger: the total
// number of live awards and the maximum GrantedAt timestamp among them.
//
// When the user has no awards, the returned count is 0 and maxGrantedAt is nil.
//
// Return values:
//   - count:        total live awards for userID
//   - maxGrantedAt: pointer to the greatest GrantedAt, or nil if no rows
//   - err:          database error, if any
func AwardsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxGrantedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.DailyAward{}).Where("user_id = ?", userID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest granted_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		GrantedAt time.Time
	}
	if err = q.Select("granted_at").Order("granted_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.GrantedAt, nil
}

// RecordsStats returns aggregate metadata for a user's completion records:
// the total number of rows and the maximum UpdatedAt timestamp among them.
// Useful for cache validation of read-heavy progress views.
func RecordsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.CompletionRecord{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
