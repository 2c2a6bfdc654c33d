// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// ProgressEvent log.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only persistence
// and query composition.
//
// Error semantics:
//   - AppendEvent returns ErrDuplicate when the (user, habit, day, operation)
//     unique index rejects the insert; callers treat that as an already
//     applied operation, not a failure.
//   - Lookups return ErrNotFound (an alias of gorm.ErrRecordNotFound) when no
//     row matches.
//   - On other DB errors the raw gorm error is propagated.
//
// Every query takes userID as a mandatory leading parameter. The log is the
// source of truth for completion state, so a query that forgot its tenant
// scope would silently corrupt multi-user correctness; keeping userID
// non-optional at the signature level rules that out.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for convenience and consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row with the same uniqueness key already
// exists (an already-applied operation, an already-granted award, and so on).
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation classifies driver errors raised by UNIQUE indexes.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// AppendEvent inserts one immutable event into the log. The Seq field is
// assigned by the database and defines the fold order. Returns ErrDuplicate
// when the same (user, habit, day, operation) was already appended.
func AppendEvent(ctx context.Context, db *gorm.DB, ev *domain.ProgressEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetEventByOperation fetches the live event previously appended for the
// given operation key, or ErrNotFound.
func GetEventByOperation(ctx context.Context, db *gorm.DB, userID, habitID string, day domain.DateKey, operationID string) (*domain.ProgressEvent, error) {
	var ev domain.ProgressEvent
	err := db.WithContext(ctx).
		Where("user_id = ? AND habit_id = ? AND date_key = ? AND operation_id = ?",
			userID, habitID, day, operationID).
		First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// HasOperation reports whether any live event exists for userID/habitID with
// the given operation ID, on any day. Used by the idempotency middleware for
// advisory replay detection; the authoritative dedup is the unique index.
func HasOperation(ctx context.Context, db *gorm.DB, userID, habitID, operationID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ProgressEvent{}).
		Where("user_id = ? AND habit_id = ? AND operation_id = ?", userID, habitID, operationID).
		Count(&n).Error
	return n > 0, err
}

// ListEventsForKey returns all live events for one (user, habit, day) key in
// append (Seq) order, the replay order of the projection fold.
func ListEventsForKey(ctx context.Context, db *gorm.DB, userID, habitID string, day domain.DateKey) ([]domain.ProgressEvent, error) {
	var out []domain.ProgressEvent
	err := db.WithContext(ctx).
		Where("user_id = ? AND habit_id = ? AND date_key = ?", userID, habitID, day).
		Order("seq asc").
		Find(&out).Error
	return out, err
}

// SoftDeleteEvent tombstones an event by its UUID, excluding it from future
// folds while keeping the row for audit. Returns ErrNotFound when the event
// does not exist or belongs to another user.
func SoftDeleteEvent(ctx context.Context, db *gorm.DB, userID, eventID string) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, eventID).
		Delete(&domain.ProgressEvent{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEventsByMonth returns a user's live events whose day falls inside the
// given "YYYY-MM" partition, in append order. This is the unit of transfer
// for remote sync.
func ListEventsByMonth(ctx context.Context, db *gorm.DB, userID, yearMonth string) ([]domain.ProgressEvent, error) {
	var out []domain.ProgressEvent
	err := db.WithContext(ctx).
		Where("user_id = ? AND date_key LIKE ?", userID, yearMonth+"-%").
		Order("seq asc").
		Find(&out).Error
	return out, err
}

// ListEventMonths returns the distinct "YYYY-MM" partitions a user has live
// events in, ascending.
func ListEventMonths(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var months []string
	err := db.WithContext(ctx).
		Model(&domain.ProgressEvent{}).
		Distinct("substr(date_key, 1, 7)").
		Where("user_id = ?", userID).
		Order("substr(date_key, 1, 7) asc").
		Pluck("substr(date_key, 1, 7)", &months).Error
	return months, err
}

// CountEvents returns the number of live events a user has. A zero count is
// the "cold start" signal that permits an initial remote pull.
func CountEvents(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ProgressEvent{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// ListEventUsers returns the distinct user IDs that own at least one live
// event, ascending. The boot-time reconciliation pass iterates this set.
func ListEventUsers(ctx context.Context, db *gorm.DB) ([]string, error) {
	var users []string
	err := db.WithContext(ctx).
		Model(&domain.ProgressEvent{}).
		Distinct("user_id").
		Order("user_id asc").
		Pluck("user_id", &users).Error
	return users, err
}
