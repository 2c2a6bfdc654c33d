// Package services – ReconcileService
//
// This file implements the repair pass that runs at process start and on
// demand. It re-derives every cached CompletionRecord from the live event log
// and repairs drift with an asymmetric policy:
//
//   - When the log has events for a key, the log wins: the cache is
//     overwritten with the derived value.
//   - When the log has no events but the cache is non-zero (data that
//     predates event-sourcing, or a sync-introduced gap), the cache wins: the
//     row is preserved and flagged for backfill. Zeroing it would turn a
//     missing log into silent data loss.
//
// Every mismatch is logged with the key and both values; per-record failures
// are collected into the report instead of aborting the run. After record
// repair, the award ledger is re-verified day by day, the streak aggregate is
// rebuilt, and total XP is recomputed from the surviving ledger.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/repo"
)

// ReconciliationReport summarizes one reconciliation run.
type ReconciliationReport struct {
	UserID        string    `json:"user_id"`
	Checked       int       `json:"checked"`
	Mismatched    int       `json:"mismatched"`
	Fixed         int       `json:"fixed"`
	GapsPreserved int       `json:"gaps_preserved"`
	AwardsGranted int       `json:"awards_granted"`
	AwardsRevoked int       `json:"awards_revoked"`
	TotalXP       int       `json:"total_xp"`
	Errors        []string  `json:"errors,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ReconcileService detects and repairs divergence between the CompletionRecord
// cache, the event log, and the award ledger.
type ReconcileService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Progress provides the log-derived read path.
	Progress *ProgressService
	// Reward re-verifies the award ledger after record repair.
	Reward *RewardService
	// Streaks rebuilds the cached aggregate after repair.
	Streaks *StreakService
	// Log receives drift reports; mismatches are never silently dropped.
	Log zerolog.Logger
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(db *gorm.DB, progress *ProgressService, reward *RewardService, streaks *StreakService, log zerolog.Logger) *ReconcileService {
	return &ReconcileService{DB: db, Progress: progress, Reward: reward, Streaks: streaks, Log: log}
}

// Reconcile runs the full repair pass for one user. Each repair is a single
// transactional unit, so an interrupted run leaves no partial state and is
// safe to re-run to completion.
func (s *ReconcileService) Reconcile(ctx context.Context, userID string) (*ReconciliationReport, error) {
	tr := otel.Tracer("services/ReconcileService")
	ctx, span := tr.Start(ctx, "Reconcile")
	defer span.End()

	rep := &ReconciliationReport{UserID: userID, StartedAt: time.Now().UTC()}

	records, err := repo.ListRecordsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		rep.Checked++
		if err := s.reconcileRecord(ctx, rec, rep); err != nil {
			rep.Errors = append(rep.Errors,
				fmt.Sprintf("record %s/%s: %v", rec.HabitID, rec.DateKey, err))
		}
	}

	s.reverifyAwards(ctx, userID, rep)

	if _, err := s.Streaks.Rebuild(ctx, userID); err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("streak rebuild: %v", err))
	}

	xp, err := s.Reward.TotalXP(ctx, userID)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("total xp: %v", err))
	}
	rep.TotalXP = xp
	rep.FinishedAt = time.Now().UTC()

	s.Log.Info().
		Str("user_id", userID).
		Int("checked", rep.Checked).
		Int("mismatched", rep.Mismatched).
		Int("fixed", rep.Fixed).
		Int("gaps_preserved", rep.GapsPreserved).
		Int("awards_granted", rep.AwardsGranted).
		Int("awards_revoked", rep.AwardsRevoked).
		Int("errors", len(rep.Errors)).
		Msg("reconciliation finished")
	return rep, nil
}

// reconcileRecord compares one cached record with its log derivation and
// applies the asymmetric repair policy.
func (s *ReconcileService) reconcileRecord(ctx context.Context, rec domain.CompletionRecord, rep *ReconciliationReport) error {
	derived, isCompleted, hasEvents, err := s.Progress.FromEvents(ctx, rec.UserID, rec.HabitID, rec.DateKey)
	if err != nil {
		return err
	}

	if !hasEvents {
		if rec.Progress != 0 || rec.IsCompleted {
			// Historical gap: the log is incomplete, not the cache wrong.
			rep.GapsPreserved++
			s.Log.Warn().
				Str("user_id", rec.UserID).
				Str("habit_id", rec.HabitID).
				Str("date_key", rec.DateKey.String()).
				Int("cached_progress", rec.Progress).
				Msg("record has no backing events; preserved for backfill")
		}
		return nil
	}

	if derived == rec.Progress && isCompleted == rec.IsCompleted {
		return nil
	}

	rep.Mismatched++
	s.Log.Warn().
		Str("user_id", rec.UserID).
		Str("habit_id", rec.HabitID).
		Str("date_key", rec.DateKey.String()).
		Int("cached_progress", rec.Progress).
		Int("derived_progress", derived).
		Bool("cached_completed", rec.IsCompleted).
		Bool("derived_completed", isCompleted).
		Msg("completion record drifted from event log")

	rec.Progress = derived
	rec.IsCompleted = isCompleted
	if err := repo.UpsertRecord(ctx, s.DB, &rec); err != nil {
		return err
	}
	rep.Fixed++
	reconcileRepairs.Inc()
	return nil
}

// reverifyAwards walks every day that either holds an award or could earn
// one, and lets the reward service converge the ledger. Grant and revoke are
// both idempotent, so re-running after a cancellation is safe.
func (s *ReconcileService) reverifyAwards(ctx context.Context, userID string, rep *ReconciliationReport) {
	days := make(map[domain.DateKey]struct{})

	awards, err := repo.ListAwards(ctx, s.DB, userID)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("list awards: %v", err))
	} else {
		for _, a := range awards {
			days[a.DateKey] = struct{}{}
		}
	}

	completeDays, err := repo.ListCompleteDays(ctx, s.DB, userID)
	if err != nil {
		rep.Errors = append(rep.Errors, fmt.Sprintf("list complete days: %v", err))
	} else {
		for _, d := range completeDays {
			days[d] = struct{}{}
		}
	}

	for day := range days {
		granted, revoked, err := s.Reward.Evaluate(ctx, userID, day)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("award %s: %v", day, err))
			continue
		}
		if granted {
			rep.AwardsGranted++
		}
		if revoked {
			rep.AwardsRevoked++
		}
	}
}
