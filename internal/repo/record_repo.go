// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// CompletionRecord projection.
//
// Records are a cache over the event log: created lazily on the first event
// for a (user, habit, day) key, updated by the projection engine and by
// reconciliation repairs, and never hard-deleted once written.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// GetRecord fetches the record for one (user, habit, day) key, or ErrNotFound.
func GetRecord(ctx context.Context, db *gorm.DB, userID, habitID string, day domain.DateKey) (*domain.CompletionRecord, error) {
	var rec domain.CompletionRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND habit_id = ? AND date_key = ?", userID, habitID, day).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertRecord writes the projection row for its key, inserting or replacing
// the cached progress, goal snapshot, and completion flag.
func UpsertRecord(ctx context.Context, db *gorm.DB, rec *domain.CompletionRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "habit_id"}, {Name: "date_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"progress", "goal_amount", "is_completed", "updated_at",
			}),
		}).
		Create(rec).Error
}

// ListRecordsForDay returns all of a user's records for one day.
func ListRecordsForDay(ctx context.Context, db *gorm.DB, userID string, day domain.DateKey) ([]domain.CompletionRecord, error) {
	var out []domain.CompletionRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND date_key = ?", userID, day).
		Find(&out).Error
	return out, err
}

// ListRecordsByUser returns every record a user owns, ordered by day then
// habit. Reconciliation iterates this to compare the cache against the log.
func ListRecordsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.CompletionRecord, error) {
	var out []domain.CompletionRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date_key asc, habit_id asc").
		Find(&out).Error
	return out, err
}

// ListCompleteDays returns the distinct days on which the user has at least
// one completed record, ascending. The streak rebuild walks this list.
func ListCompleteDays(ctx context.Context, db *gorm.DB, userID string) ([]domain.DateKey, error) {
	var days []domain.DateKey
	err := db.WithContext(ctx).
		Model(&domain.CompletionRecord{}).
		Distinct("date_key").
		Where("user_id = ? AND is_completed = ?", userID, true).
		Order("date_key asc").
		Pluck("date_key", &days).Error
	return days, err
}
