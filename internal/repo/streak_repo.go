// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the cached
// per-user StreakState aggregate.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// GetStreakState fetches a user's cached streak aggregate. A user with no
// history gets a zero-valued state rather than ErrNotFound; the aggregate is
// a cache and "nothing yet" is a valid value.
func GetStreakState(ctx context.Context, db *gorm.DB, userID string) (*domain.StreakState, error) {
	var st domain.StreakState
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.StreakState{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpsertStreakState writes the cached aggregate for its user.
func UpsertStreakState(ctx context.Context, db *gorm.DB, st *domain.StreakState) error {
	st.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"current_streak", "longest_streak", "total_complete_days",
				"last_complete_date", "updated_at",
			}),
		}).
		Create(st).Error
}
