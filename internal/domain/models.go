// Package domain defines the persistence models for the habit completion
// ledger: the append-only progress event log, the per-day completion record
// projection, the daily award ledger, and the cached streak aggregate. These
// types are mapped with GORM and form the core data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Progress event types. BULK_ADJUST is reserved for migrations and
// corrections and always carries an explicit delta.
const (
	EventIncrement      = "INCREMENT"
	EventDecrement      = "DECREMENT"
	EventSet            = "SET"
	EventToggleComplete = "TOGGLE_COMPLETE"
	EventBulkAdjust     = "BULK_ADJUST"
)

// ValidEventType reports whether t is one of the recognized event types.
func ValidEventType(t string) bool {
	switch t {
	case EventIncrement, EventDecrement, EventSet, EventToggleComplete, EventBulkAdjust:
		return true
	}
	return false
}

// ProgressEvent is one immutable entry in the append-only progress log, the
// source of truth for all completion state. Events are never updated or
// physically deleted; corrections are appended as new events, and the
// DeletedAt tombstone excludes an event from projection while retaining it
// for audit.
//
// Fields:
//   - Seq: monotonically increasing append position (SQLite rowid). The
//     projection is defined as a left-fold over Seq order, so replay is
//     deterministic regardless of wall-clock skew.
//   - ID: stable UUID, used for cross-store exchange.
//   - UserID / HabitID: ownership; every query against this table is scoped
//     by UserID (mandatory parameter, never an optional filter).
//   - DateKey: the logical day the event applies to (never a timestamp).
//   - OperationID: client-generated idempotency key; the unique index over
//     (user, habit, day, operation) collapses retries and sync replays to a
//     single effective event.
//   - Type / ProgressDelta: the operation and its signed effect.
//   - CreatedAt: wall-clock timestamp for display and debugging only.
type ProgressEvent struct {
	Seq           int64          `json:"seq"            gorm:"primaryKey;autoIncrement"`
	ID            string         `json:"id"             gorm:"type:char(36);not null;uniqueIndex"`
	UserID        string         `json:"user_id"        gorm:"type:varchar(64);not null;uniqueIndex:ux_event_op,priority:1;index:idx_event_key,priority:1"`
	HabitID       string         `json:"habit_id"       gorm:"type:char(36);not null;uniqueIndex:ux_event_op,priority:2;index:idx_event_key,priority:2"`
	DateKey       DateKey        `json:"date_key"       gorm:"type:char(10);not null;uniqueIndex:ux_event_op,priority:3;index:idx_event_key,priority:3"`
	OperationID   string         `json:"operation_id"   gorm:"type:varchar(200);not null;uniqueIndex:ux_event_op,priority:4"`
	Type          string         `json:"type"           gorm:"type:varchar(16);not null;check:type IN ('INCREMENT','DECREMENT','SET','TOGGLE_COMPLETE','BULK_ADJUST')"`
	ProgressDelta int            `json:"progress_delta" gorm:"not null"`
	CreatedAt     time.Time      `json:"created_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for ProgressEvent.
func (ProgressEvent) TableName() string { return "progress_events" }

// CompletionRecord is the denormalized per-day projection of the event log:
// one row per (user, habit, day) holding the materialized progress sum and
// the derived completion flag.
//
// This is a cache. Its progress must equal the sum of ProgressDelta over all
// live events for the same key; it can drift under bugs or partial writes,
// which is what the reconciliation job repairs. Rows are created lazily on
// the first event for a key and never hard-deleted afterwards.
type CompletionRecord struct {
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;primaryKey"`
	HabitID     string    `json:"habit_id"     gorm:"type:char(36);not null;primaryKey"`
	DateKey     DateKey   `json:"date_key"     gorm:"type:char(10);not null;primaryKey;index"`
	Progress    int       `json:"progress"     gorm:"not null;default:0"`
	GoalAmount  int       `json:"goal_amount"  gorm:"not null;default:0"`
	IsCompleted bool      `json:"is_completed" gorm:"not null;default:false"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for CompletionRecord.
func (CompletionRecord) TableName() string { return "completion_records" }

// DailyAward is one entry in the per-user reward ledger: at most one live row
// per (user, day), enforced by a uniqueness check before insert and by the
// unique index as the last line of defense. Rows are hard-deleted on revoke;
// total XP is always recomputed as count(rows) * xp-per-day, never kept as a
// running counter.
type DailyAward struct {
	ID                 string    `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID             string    `json:"user_id"              gorm:"type:varchar(64);not null;uniqueIndex:ux_award_day,priority:1"`
	DateKey            DateKey   `json:"date_key"             gorm:"type:char(10);not null;uniqueIndex:ux_award_day,priority:2"`
	XPGranted          int       `json:"xp_granted"           gorm:"not null"`
	AllHabitsCompleted bool      `json:"all_habits_completed" gorm:"not null;default:true"`
	GrantedAt          time.Time `json:"granted_at"`
}

// TableName returns the database table name for DailyAward.
func (DailyAward) TableName() string { return "daily_awards" }

// StreakState is the cached per-user streak aggregate, derived entirely from
// CompletionRecord history and rebuildable from scratch at any time.
type StreakState struct {
	UserID            string    `json:"user_id"             gorm:"type:varchar(64);primaryKey"`
	CurrentStreak     int       `json:"current_streak"      gorm:"not null;default:0"`
	LongestStreak     int       `json:"longest_streak"      gorm:"not null;default:0"`
	TotalCompleteDays int       `json:"total_complete_days" gorm:"not null;default:0"`
	LastCompleteDate  DateKey   `json:"last_complete_date"  gorm:"type:char(10)"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for StreakState.
func (StreakState) TableName() string { return "streak_states" }
