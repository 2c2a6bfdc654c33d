// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the DailyAward
// ledger.
//
// The ledger holds at most one live row per (user, day); CreateAward relies
// on the unique index and reports ErrDuplicate so the reward service can
// treat a lost insert race as "already granted". Revocation hard-deletes the
// row: the ledger is a set of live grants, and total XP is recomputed from
// its cardinality rather than maintained as a counter.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// CreateAward inserts one ledger row for (userID, day). Returns ErrDuplicate
// when an award for that day already exists.
func CreateAward(ctx context.Context, db *gorm.DB, userID string, day domain.DateKey, xp int) (*domain.DailyAward, error) {
	a := &domain.DailyAward{
		ID:                 uuid.NewString(),
		UserID:             userID,
		DateKey:            day,
		XPGranted:          xp,
		AllHabitsCompleted: true,
		GrantedAt:          time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return a, nil
}

// GetAward fetches the award for (userID, day), or ErrNotFound.
func GetAward(ctx context.Context, db *gorm.DB, userID string, day domain.DateKey) (*domain.DailyAward, error) {
	var a domain.DailyAward
	err := db.WithContext(ctx).
		Where("user_id = ? AND date_key = ?", userID, day).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAward removes the award for (userID, day). Deleting an absent award
// is a no-op: the returned bool reports whether a row was actually removed.
func DeleteAward(ctx context.Context, db *gorm.DB, userID string, day domain.DateKey) (bool, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND date_key = ?", userID, day).
		Delete(&domain.DailyAward{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountAwards returns the number of live awards a user holds. Total XP is
// always derived from this count.
func CountAwards(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.DailyAward{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// ListAwards returns every award a user holds, most recent day first.
func ListAwards(ctx context.Context, db *gorm.DB, userID string) ([]domain.DailyAward, error) {
	var out []domain.DailyAward
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date_key desc").
		Find(&out).Error
	return out, err
}

// ListAwardsPage returns a page of a user's awards, most recent day first.
// Use CountAwards to obtain the total for pagination metadata.
func ListAwardsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.DailyAward, error) {
	var out []domain.DailyAward
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date_key desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
