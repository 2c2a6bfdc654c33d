// Package services – StreakService
//
// This file implements the streak calculator. The current streak walks
// backward one day at a time starting from yesterday, never today. An
// in-progress today must not zero the streak; it is only added once it
// becomes complete. A day extends the streak when every scheduled habit is
// complete, preserves it without extending when excused (skip, vacation, or
// a rest day with nothing scheduled), and breaks it only when it has
// scheduled habits, no excuse, and incomplete progress.
//
// The longest-streak and total-complete-day aggregates are kept in the
// cached StreakState but are always recomputable from full record history,
// so retroactive edits to past days are reflected on demand.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/schedule"
)

// dayStatus classifies one calendar day for the streak walk.
type dayStatus int

const (
	dayComplete  dayStatus = iota // every scheduled habit complete; extends the streak
	dayExcused                    // excused or nothing required; preserves the streak
	dayBroken                     // scheduled, unexcused, incomplete; ends the streak
	dayNoHistory                  // the user had no habits yet; ends the walk
)

// defaultMaxLookback bounds the backward walk (in days) as a safety valve
// against pathological excuse chains.
const defaultMaxLookback = 3650

// StreakService computes streaks from the CompletionRecord projection.
type StreakService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Schedule answers scheduling, excuse, and habit-existence queries.
	Schedule schedule.Provider
	// Cal is the canonical calendar policy.
	Cal domain.Calendar
	// MaxLookback caps the backward walk; <= 0 selects the default.
	MaxLookback int
}

// NewStreakService constructs a StreakService.
func NewStreakService(db *gorm.DB, sched schedule.Provider, cal domain.Calendar) *StreakService {
	return &StreakService{DB: db, Schedule: sched, Cal: cal}
}

// Current returns the user's streak as of the given instant.
//
// The walk starts at the day before asOf's day and moves backward: complete
// days count, excused days are skipped, and the first broken day stops the
// count. Today is then added only if it is already complete; it is never
// examined as a potential break while still in progress.
func (s *StreakService) Current(ctx context.Context, userID string, asOf time.Time) (int, error) {
	tr := otel.Tracer("services/StreakService")
	ctx, span := tr.Start(ctx, "Current")
	defer span.End()

	today := s.Cal.DayOf(asOf)
	streak := 0
	limit := s.MaxLookback
	if limit <= 0 {
		limit = defaultMaxLookback
	}

walk:
	for day, i := today.Prev(), 0; i < limit; day, i = day.Prev(), i+1 {
		st, err := s.statusOf(ctx, userID, day)
		if err != nil {
			return 0, err
		}
		switch st {
		case dayComplete:
			streak++
		case dayExcused:
			// preserves the chain without extending it
		case dayBroken, dayNoHistory:
			break walk
		}
	}

	st, err := s.statusOf(ctx, userID, today)
	if err != nil {
		return 0, err
	}
	if st == dayComplete {
		streak++
	}
	return streak, nil
}

// Rebuild recomputes the cached StreakState from full record history and
// persists it. It is the on-demand path that makes retroactive edits visible
// in the longest-streak and total-complete-day aggregates, and the repair
// path reconciliation invokes after rewriting records.
func (s *StreakService) Rebuild(ctx context.Context, userID string) (*domain.StreakState, error) {
	tr := otel.Tracer("services/StreakService")
	ctx, span := tr.Start(ctx, "Rebuild")
	defer span.End()

	completeDays, err := repo.ListCompleteDays(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	st := &domain.StreakState{UserID: userID}
	if len(completeDays) > 0 {
		// Walk every day from the first candidate through today, classifying
		// each one. Days that merely contain a completed record are only
		// candidates; a day is complete when all of its scheduled habits are.
		today := s.Cal.Today()
		run := 0
		for day := completeDays[0]; !today.Before(day); day = day.Next() {
			ds, err := s.statusOf(ctx, userID, day)
			if err != nil {
				return nil, err
			}
			switch ds {
			case dayComplete:
				run++
				st.TotalCompleteDays++
				st.LastCompleteDate = day
				if run > st.LongestStreak {
					st.LongestStreak = run
				}
			case dayExcused, dayNoHistory:
				// run survives
			case dayBroken:
				if day != today {
					run = 0 // today in progress never resets the run
				}
			}
		}
	}

	current, err := s.Current(ctx, userID, time.Now())
	if err != nil {
		return nil, err
	}
	st.CurrentStreak = current
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}

	if err := repo.UpsertStreakState(ctx, s.DB, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Cached returns the stored StreakState without recomputing. Zero-valued for
// users with no history.
func (s *StreakService) Cached(ctx context.Context, userID string) (*domain.StreakState, error) {
	return repo.GetStreakState(ctx, s.DB, userID)
}

// statusOf classifies one day for the walk.
func (s *StreakService) statusOf(ctx context.Context, userID string, day domain.DateKey) (dayStatus, error) {
	scheduled, err := s.Schedule.ScheduledHabitIDs(ctx, userID, day)
	if err != nil {
		return dayBroken, err
	}
	if len(scheduled) == 0 {
		has, err := s.Schedule.HasHabitsOn(ctx, userID, day)
		if err != nil {
			return dayBroken, err
		}
		if has {
			return dayExcused, nil // rest day: habits exist, none scheduled
		}
		return dayNoHistory, nil
	}

	required := 0
	for _, habitID := range scheduled {
		excused, err := s.Schedule.IsExcused(ctx, userID, habitID, day)
		if err != nil {
			return dayBroken, err
		}
		if excused {
			continue
		}
		required++
		rec, err := repo.GetRecord(ctx, s.DB, userID, habitID, day)
		if errors.Is(err, repo.ErrNotFound) {
			return dayBroken, nil
		}
		if err != nil {
			return dayBroken, err
		}
		if !rec.IsCompleted {
			return dayBroken, nil
		}
	}
	if required == 0 {
		return dayExcused, nil // everything scheduled was excused
	}
	return dayComplete, nil
}
