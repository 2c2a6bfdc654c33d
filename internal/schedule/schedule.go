// Package schedule answers the three questions the completion core asks about
// the outside world: what is a habit's goal amount on a given day, which
// habits are scheduled for a user on a given day, and is a day excused
// (vacation / recorded skip). The core depends only on the Provider interface;
// this package also ships the GORM-backed default implementation together with
// the minimal habit metadata it needs.
//
// Habit metadata here is deliberately thin. Name, goal amount, and a weekday
// mask are enough to drive scheduling and completion thresholds; richer
// recurrence rules live outside this service.
package schedule

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// Provider resolves scheduling inputs for the completion core. All methods
// are scoped by userID; implementations must never answer for another user's
// habits.
type Provider interface {
	// GoalAmount returns the completion threshold for a habit on the given
	// day. A goal of 0 means "any positive progress completes the day".
	GoalAmount(ctx context.Context, userID, habitID string, day domain.DateKey) (int, error)

	// ScheduledHabitIDs returns the habits that count toward "all complete"
	// on the given day. Habits created after the day are excluded: a habit
	// must not count non-existent history as missed.
	ScheduledHabitIDs(ctx context.Context, userID string, day domain.DateKey) ([]string, error)

	// IsExcused reports whether the habit is excused on the given day, either
	// individually or by a whole-day (vacation) excuse.
	IsExcused(ctx context.Context, userID, habitID string, day domain.DateKey) (bool, error)

	// HasHabitsOn reports whether the user had any live habit in existence on
	// the given day, scheduled or not. The streak walk uses this to tell a
	// rest day (preserves the chain) from pre-history (ends the walk).
	HasHabitsOn(ctx context.Context, userID string, day domain.DateKey) (bool, error)
}

// Habit holds the minimal per-habit metadata the core needs: the completion
// threshold and a weekday mask describing which days the habit is scheduled.
//
// Weekdays is a comma-separated list of lowercase three-letter day names
// ("mon,wed,fri"); the empty string schedules the habit every day. This is
// intentionally not a recurrence DSL.
type Habit struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string         `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_user_habits"`
	Name        string         `json:"name"         gorm:"type:varchar(255);not null"`
	GoalAmount  int            `json:"goal_amount"  gorm:"not null;default:1"`
	Weekdays    string         `json:"weekdays"     gorm:"type:varchar(32);not null;default:''"`
	CreatedDate domain.DateKey `json:"created_date" gorm:"type:char(10);not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Habit.
func (Habit) TableName() string { return "habits" }

// ScheduledOn reports whether the habit is scheduled on the given day,
// honoring both the weekday mask and the habit's creation date.
func (h Habit) ScheduledOn(day domain.DateKey) bool {
	if day.Before(h.CreatedDate) {
		return false
	}
	if strings.TrimSpace(h.Weekdays) == "" {
		return true
	}
	want := strings.ToLower(day.Weekday().String()[:3])
	for _, d := range strings.Split(h.Weekdays, ",") {
		if strings.TrimSpace(strings.ToLower(d)) == want {
			return true
		}
	}
	return false
}

// Excuse records a skip or vacation day. A row with an empty HabitID excuses
// every habit for that day (vacation mode); a row naming a habit excuses only
// that habit. Excused days preserve a streak without extending it.
type Excuse struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_excuse,priority:1"`
	HabitID   string         `json:"habit_id" gorm:"type:char(36);not null;default:'';uniqueIndex:ux_excuse,priority:2"`
	DateKey   domain.DateKey `json:"date_key" gorm:"type:char(10);not null;uniqueIndex:ux_excuse,priority:3"`
	Reason    string         `json:"reason"   gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the database table name for Excuse.
func (Excuse) TableName() string { return "excuses" }
