// Package services – RewardService
//
// This file implements the once-per-day XP award state machine. A day moves
// to Awarded when every scheduled habit is complete, and back to Incomplete
// when any of them stops being complete (retroactive edits included).
// Redundant calls in either state are no-ops.
//
// Two rules carry the correctness weight here:
//   - Grant and revoke for the same (user, day) are serialized by a per-key
//     lock, and the "does an award already exist" check is repeated inside
//     the critical section; the ledger's unique index backstops both.
//   - Total XP is never incremented in place. It is recomputed from the
//     cardinality of the live award ledger on every read, so any sequence of
//     grants, revokes, retries, and reconciliation repairs nets to the right
//     value.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/schedule"
)

// RewardListener receives award lifecycle notifications. Implementations must
// be fast and non-blocking; they run inside the grant/revoke critical section.
type RewardListener interface {
	// AwardGranted fires after a new award is durably inserted.
	AwardGranted(userID string, day domain.DateKey, xp int)
	// AwardRevoked fires after an award is durably deleted.
	AwardRevoked(userID string, day domain.DateKey)
}

// RewardService grants and revokes the once-per-day XP award. It is safe for
// concurrent use; N simultaneous grant calls for one (user, day) produce
// exactly one award.
type RewardService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Schedule answers which habits count toward "all complete" on a day.
	Schedule schedule.Provider
	// XPPerDay is the fixed grant size.
	XPPerDay int
	// Listener, when set, observes grants and revocations.
	Listener RewardListener

	locks *keyLock
}

// NewRewardService constructs a RewardService.
func NewRewardService(db *gorm.DB, sched schedule.Provider, xpPerDay int) *RewardService {
	return &RewardService{DB: db, Schedule: sched, XPPerDay: xpPerDay, locks: newKeyLock()}
}

// AllComplete reports whether the day qualifies for an award: at least one
// habit is scheduled, and every scheduled, non-excused habit has a completed
// record. A day whose scheduled habits are all excused does not qualify:
// excuses preserve streaks, they do not earn XP.
func (s *RewardService) AllComplete(ctx context.Context, userID string, day domain.DateKey) (bool, error) {
	habitIDs, err := s.Schedule.ScheduledHabitIDs(ctx, userID, day)
	if err != nil {
		return false, err
	}
	if len(habitIDs) == 0 {
		return false, nil
	}
	required := 0
	for _, habitID := range habitIDs {
		excused, err := s.Schedule.IsExcused(ctx, userID, habitID, day)
		if err != nil {
			return false, err
		}
		if excused {
			continue
		}
		required++
		rec, err := repo.GetRecord(ctx, s.DB, userID, habitID, day)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !rec.IsCompleted {
			return false, nil
		}
	}
	return required > 0, nil
}

// GrantIfAllComplete inserts the day's award when the day qualifies and no
// award exists yet. It returns true only when a grant actually occurred.
//
// The completion check and the uniqueness check both run inside the per-key
// critical section: a check outside it would reintroduce the check-then-act
// race this service exists to prevent.
func (s *RewardService) GrantIfAllComplete(ctx context.Context, userID string, day domain.DateKey) (bool, error) {
	tr := otel.Tracer("services/RewardService")
	ctx, span := tr.Start(ctx, "GrantIfAllComplete",
		trace.WithAttributes(attribute.String("day", day.String())),
	)
	defer span.End()

	unlock := s.locks.Lock(rewardKey(userID, day))
	defer unlock()

	ok, err := s.AllComplete(ctx, userID, day)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if _, err := repo.GetAward(ctx, s.DB, userID, day); err == nil {
		return false, nil // already awarded; idempotent self-loop
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	if _, err := repo.CreateAward(ctx, s.DB, userID, day, s.XPPerDay); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return false, nil // lost the insert race to an equivalent grant
		}
		return false, err
	}
	awardsGranted.Inc()
	if s.Listener != nil {
		s.Listener.AwardGranted(userID, day, s.XPPerDay)
	}
	return true, nil
}

// RevokeIfAnyIncomplete deletes the day's award when the day no longer
// qualifies. It returns true only when an award was actually removed.
func (s *RewardService) RevokeIfAnyIncomplete(ctx context.Context, userID string, day domain.DateKey) (bool, error) {
	tr := otel.Tracer("services/RewardService")
	ctx, span := tr.Start(ctx, "RevokeIfAnyIncomplete",
		trace.WithAttributes(attribute.String("day", day.String())),
	)
	defer span.End()

	unlock := s.locks.Lock(rewardKey(userID, day))
	defer unlock()

	ok, err := s.AllComplete(ctx, userID, day)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil // still qualifies; nothing to revoke
	}
	deleted, err := repo.DeleteAward(ctx, s.DB, userID, day)
	if err != nil {
		return false, err
	}
	if deleted {
		awardsRevoked.Inc()
		if s.Listener != nil {
			s.Listener.AwardRevoked(userID, day)
		}
	}
	return deleted, nil
}

// Evaluate moves the day's award state toward the current completion state:
// a grant when the day qualifies, a revoke when it doesn't. Callers invoke it
// after every progress mutation.
func (s *RewardService) Evaluate(ctx context.Context, userID string, day domain.DateKey) (granted, revoked bool, err error) {
	granted, err = s.GrantIfAllComplete(ctx, userID, day)
	if err != nil {
		return false, false, err
	}
	if granted {
		return true, false, nil
	}
	revoked, err = s.RevokeIfAnyIncomplete(ctx, userID, day)
	if err != nil {
		return false, false, err
	}
	return false, revoked, nil
}

// TotalXP derives the user's XP from the award ledger.
func (s *RewardService) TotalXP(ctx context.Context, userID string) (int, error) {
	n, err := repo.CountAwards(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	return int(n) * s.XPPerDay, nil
}

func rewardKey(userID string, day domain.DateKey) string {
	return userID + "|" + string(day)
}
