// Package services – ProgressService
//
// This file implements the projection engine: every progress mutation is
// appended to the immutable event log and folded into the per-day
// CompletionRecord cache inside one transaction, under a per-key lock. The
// event log is the source of truth; the record is a cache the rest of the
// system (streaks, rewards, reconciliation) reads.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/schedule"
)

// maxOperationIDLen caps client-supplied idempotency keys, matching the HTTP
// header validation.
const maxOperationIDLen = 200

// ProgressService appends progress events and maintains the CompletionRecord
// projection. It is safe for concurrent use: mutations for the same
// (user, habit, day) key are serialized internally.
type ProgressService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Goals resolves completion thresholds and ownership.
	Goals schedule.Provider
	// MaxDelta caps the magnitude of a single mutation. Zero disables the cap.
	MaxDelta int

	locks *keyLock
}

// NewProgressService constructs a ProgressService.
func NewProgressService(db *gorm.DB, goals schedule.Provider, maxDelta int) *ProgressService {
	return &ProgressService{DB: db, Goals: goals, MaxDelta: maxDelta, locks: newKeyLock()}
}

// Record applies one progress-changing operation for (userID, habitID, day).
//
// The operation is validated, deduplicated by operationID, translated into an
// effective signed delta, appended to the event log, and folded into the
// CompletionRecord: the append and the projection update commit in one
// transaction, so no event is ever durable without its effect or vice versa.
//
// Semantics per type:
//   - INCREMENT / DECREMENT: move progress by |delta| (1 when delta is 0).
//   - SET: delta is the target value; the stored event carries target−current.
//   - TOGGLE_COMPLETE: jump to the goal amount, or back to 0 when already
//     complete. delta is ignored.
//   - BULK_ADJUST: delta applied verbatim (migrations/corrections only).
//
// Progress is clamped at 0; the event stores the clamped effective delta so
// that the fold over the log always equals the cached progress.
//
// A duplicate operationID is not an error: the current record is returned as
// if the call had succeeded, which is what retry-safety and multi-device sync
// replay require.
func (s *ProgressService) Record(ctx context.Context, userID, habitID string, day domain.DateKey, operationID, opType string, delta int) (*domain.CompletionRecord, error) {
	tr := otel.Tracer("services/ProgressService")
	ctx, span := tr.Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("habit.id", habitID),
			attribute.String("day", day.String()),
			attribute.String("op.type", opType),
		),
	)
	defer span.End()

	operationID = strings.TrimSpace(operationID)
	if operationID == "" || utf8.RuneCountInString(operationID) > maxOperationIDLen {
		return nil, ErrInvalidOperationID
	}
	if !domain.ValidEventType(opType) {
		return nil, ErrInvalidEventType
	}
	if s.MaxDelta > 0 && (delta > s.MaxDelta || delta < -s.MaxDelta) {
		return nil, ErrDeltaTooLarge
	}

	goal, err := s.Goals.GoalAmount(ctx, userID, habitID, day)
	if err != nil {
		if errors.Is(err, schedule.ErrHabitNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, err
	}

	unlock := s.locks.Lock(progressKey(userID, habitID, day))
	defer unlock()

	var (
		out       *domain.CompletionRecord
		duplicate bool
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := repo.GetRecord(ctx, tx, userID, habitID, day)
		if errors.Is(err, repo.ErrNotFound) {
			rec = &domain.CompletionRecord{UserID: userID, HabitID: habitID, DateKey: day}
		} else if err != nil {
			return err
		}

		effective := effectiveDelta(opType, delta, rec.Progress, goal)
		next := rec.Progress + effective
		if next < 0 {
			next = 0
		}
		// Store the clamped effect so the log fold matches the cache.
		effective = next - rec.Progress

		ev := &domain.ProgressEvent{
			ID:            uuid.NewString(),
			UserID:        userID,
			HabitID:       habitID,
			DateKey:       day,
			OperationID:   operationID,
			Type:          opType,
			ProgressDelta: effective,
			CreatedAt:     time.Now().UTC(),
		}
		if err := repo.AppendEvent(ctx, tx, ev); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				duplicate = true
				out = rec
				return nil // already applied; keep the transaction clean
			}
			return err
		}

		rec.Progress = next
		rec.GoalAmount = goal
		rec.IsCompleted = completed(next, goal)
		if err := repo.UpsertRecord(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if duplicate {
		duplicateOperations.Inc()
	}
	return out, nil
}

// Current returns the cached progress for one (habit, day) key. A key with no
// record yet reads as zero progress rather than an error, so the read path
// has no "not started" special case for callers. Habit ownership is still
// enforced.
func (s *ProgressService) Current(ctx context.Context, userID, habitID string, day domain.DateKey) (*domain.CompletionRecord, error) {
	goal, err := s.Goals.GoalAmount(ctx, userID, habitID, day)
	if err != nil {
		if errors.Is(err, schedule.ErrHabitNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, err
	}
	rec, err := repo.GetRecord(ctx, s.DB, userID, habitID, day)
	if errors.Is(err, repo.ErrNotFound) {
		return &domain.CompletionRecord{
			UserID: userID, HabitID: habitID, DateKey: day, GoalAmount: goal,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FromEvents replays the live event log for one key into (progress,
// completed). This is the authoritative derivation reconciliation compares
// the cache against. hasEvents distinguishes "the log folds to zero" from
// "the log has no data at all"; the latter is the historical-gap case where
// the cache, not the log, is authoritative.
func (s *ProgressService) FromEvents(ctx context.Context, userID, habitID string, day domain.DateKey) (progress int, isCompleted bool, hasEvents bool, err error) {
	events, err := repo.ListEventsForKey(ctx, s.DB, userID, habitID, day)
	if err != nil {
		return 0, false, false, err
	}
	goal, err := s.Goals.GoalAmount(ctx, userID, habitID, day)
	if err != nil {
		if errors.Is(err, schedule.ErrHabitNotFound) {
			return 0, false, false, ErrHabitNotFound
		}
		return 0, false, false, err
	}
	// Left-fold in append order, clamping at each step: tombstoned events can
	// leave the remaining deltas summing below zero.
	for _, ev := range events {
		progress += ev.ProgressDelta
		if progress < 0 {
			progress = 0
		}
	}
	return progress, completed(progress, goal), len(events) > 0, nil
}

// DeleteEvent tombstones one event and re-projects its key from the surviving
// log, keeping the cache consistent with the fold. Used for corrections; the
// row itself is retained for audit.
func (s *ProgressService) DeleteEvent(ctx context.Context, userID, eventID string) (*domain.CompletionRecord, error) {
	var ev domain.ProgressEvent
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, eventID).
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := repo.SoftDeleteEvent(ctx, s.DB, userID, eventID); err != nil {
		return nil, err
	}
	return s.Reproject(ctx, userID, ev.HabitID, ev.DateKey)
}

// Reproject rebuilds one key's CompletionRecord from the surviving event log,
// under the key's lock. Used after tombstoning an event and after importing
// remote events, where deltas arrive pre-computed and must not be re-derived.
func (s *ProgressService) Reproject(ctx context.Context, userID, habitID string, day domain.DateKey) (*domain.CompletionRecord, error) {
	goal, err := s.Goals.GoalAmount(ctx, userID, habitID, day)
	if err != nil {
		if errors.Is(err, schedule.ErrHabitNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, err
	}

	unlock := s.locks.Lock(progressKey(userID, habitID, day))
	defer unlock()

	var out *domain.CompletionRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events, err := repo.ListEventsForKey(ctx, tx, userID, habitID, day)
		if err != nil {
			return err
		}
		progress := 0
		for _, e := range events {
			progress += e.ProgressDelta
			if progress < 0 {
				progress = 0
			}
		}
		rec := &domain.CompletionRecord{
			UserID:      userID,
			HabitID:     habitID,
			DateKey:     day,
			Progress:    progress,
			GoalAmount:  goal,
			IsCompleted: completed(progress, goal),
		}
		if err := repo.UpsertRecord(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// effectiveDelta translates an operation into the signed change it applies at
// the current progress value.
func effectiveDelta(opType string, delta, current, goal int) int {
	switch opType {
	case domain.EventIncrement:
		if delta == 0 {
			return 1
		}
		return abs(delta)
	case domain.EventDecrement:
		if delta == 0 {
			return -1
		}
		return -abs(delta)
	case domain.EventSet:
		return delta - current
	case domain.EventToggleComplete:
		target := goal
		if target == 0 {
			target = 1
		}
		if completed(current, goal) {
			return -current
		}
		return target - current
	default: // BULK_ADJUST
		return delta
	}
}

// completed applies the threshold rule: progress >= goal, or any positive
// progress when the goal is 0/undefined.
func completed(progress, goal int) bool {
	if goal <= 0 {
		return progress > 0
	}
	return progress >= goal
}

func progressKey(userID, habitID string, day domain.DateKey) string {
	return userID + "|" + habitID + "|" + string(day)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
