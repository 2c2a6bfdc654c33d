// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the service contracts the handlers depend on, the
// Handlers aggregate that the router wires them through, and small shared
// input helpers (user identity, date parsing). Handlers are transport-thin:
// they validate input, call application services, and translate results into
// HTTP responses.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/schedule"
	"github.com/strideapp/go-habit-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// HabitService defines the habit metadata and excuse operations consumed by
// HTTP handlers.
type HabitService interface {
	// CreateHabit inserts a new habit for userID.
	CreateHabit(ctx context.Context, userID, name string, goalAmount int, weekdays string) (*schedule.Habit, error)
	// ListHabits returns all live habits for userID.
	ListHabits(ctx context.Context, userID string) ([]schedule.Habit, error)
	// RecordExcuse stores a skip/vacation entry.
	RecordExcuse(ctx context.Context, userID, habitID string, day domain.DateKey, reason string) (*schedule.Excuse, error)
}

// ProgressService defines the projection-engine operations consumed by HTTP
// handlers.
type ProgressService interface {
	// Record applies one progress-changing operation.
	Record(ctx context.Context, userID, habitID string, day domain.DateKey, operationID, opType string, delta int) (*domain.CompletionRecord, error)
	// Current returns the cached progress for one key.
	Current(ctx context.Context, userID, habitID string, day domain.DateKey) (*domain.CompletionRecord, error)
	// DeleteEvent tombstones one event and re-projects its key.
	DeleteEvent(ctx context.Context, userID, eventID string) (*domain.CompletionRecord, error)
}

// RewardService defines the daily-award operations consumed by HTTP handlers.
type RewardService interface {
	// Evaluate converges the day's award toward current completion state.
	Evaluate(ctx context.Context, userID string, day domain.DateKey) (granted, revoked bool, err error)
	// TotalXP derives the user's XP from the award ledger.
	TotalXP(ctx context.Context, userID string) (int, error)
}

// StreakService defines the streak reads consumed by HTTP handlers.
type StreakService interface {
	// Current returns the user's streak as of now.
	Current(ctx context.Context, userID string, asOf time.Time) (int, error)
	// Rebuild recomputes and returns the cached aggregate.
	Rebuild(ctx context.Context, userID string) (*domain.StreakState, error)
	// Cached returns the stored aggregate without recomputing.
	Cached(ctx context.Context, userID string) (*domain.StreakState, error)
}

// ReconcileService defines the repair pass consumed by HTTP handlers.
type ReconcileService interface {
	// Reconcile runs the full repair pass for userID.
	Reconcile(ctx context.Context, userID string) (*services.ReconciliationReport, error)
}

// Handlers aggregates the services used by the HTTP layer. Construct with New.
type Handlers struct {
	habits    HabitService
	progress  ProgressService
	rewards   RewardService
	streaks   StreakService
	reconcile ReconcileService
	cal       domain.Calendar
}

// New builds the Handlers aggregate used by the router.
func New(h HabitService, p ProgressService, r RewardService, s StreakService, rc ReconcileService, cal domain.Calendar) *Handlers {
	return &Handlers{habits: h, progress: p, rewards: r, streaks: s, reconcile: rc, cal: cal}
}

// userID resolves the caller identity: context (set by auth middleware) →
// X-User-ID header → demo fallback.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// parseDay interprets an optional YYYY-MM-DD input, defaulting to today under
// the canonical calendar. The bool reports whether the input was valid.
func (h *Handlers) parseDay(raw string) (domain.DateKey, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.cal.Today(), true
	}
	day, err := domain.NewDateKey(raw)
	if err != nil {
		return "", false
	}
	return day, true
}
