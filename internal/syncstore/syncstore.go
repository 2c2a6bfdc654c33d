// Package syncstore exchanges progress events with a second, independent
// store (a cloud sync target serving other devices). Events travel in
// year-month partitions for incremental transfer.
//
// Conflict policy: union-of-events. Both sides keep append-only logs, so a
// merge is the union of the two event sets, with the (user, habit, day,
// operation) unique index collapsing events both sides already have. Nothing
// is ever overwritten by sync; after an import the affected projection keys
// are rebuilt from the merged log.
//
// Reads never consult the remote store. The local log is the source of truth;
// the remote is written on Push and read on Pull, and a full Pull is gated on
// the local log being empty (cold start) so stale remote state can never
// clobber freshly written local state.
package syncstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/services"
)

// RemoteStore is the narrow contract a sync target must satisfy. All methods
// are scoped by userID.
type RemoteStore interface {
	// Months lists the "YYYY-MM" partitions the remote holds for the user.
	Months(ctx context.Context, userID string) ([]string, error)
	// Events returns one partition's events.
	Events(ctx context.Context, userID, yearMonth string) ([]domain.ProgressEvent, error)
	// PutEvents uploads one partition, replacing the remote copy. The remote
	// is expected to union rather than truncate when it also serves writes.
	PutEvents(ctx context.Context, userID, yearMonth string, events []domain.ProgressEvent) error
}

// Syncer moves events between the local log and a RemoteStore.
type Syncer struct {
	// DB is the local GORM handle.
	DB *gorm.DB
	// Remote is the sync target.
	Remote RemoteStore
	// Progress rebuilds projections for keys touched by an import.
	Progress *services.ProgressService
	// Log records sync outcomes.
	Log zerolog.Logger
}

// NewSyncer constructs a Syncer.
func NewSyncer(db *gorm.DB, remote RemoteStore, progress *services.ProgressService, log zerolog.Logger) *Syncer {
	return &Syncer{DB: db, Remote: remote, Progress: progress, Log: log}
}

// Pull imports the remote log on a cold start. When the local log already has
// events for the user it does nothing and reports so: the local store stays
// authoritative, and routine multi-device convergence goes through Merge.
func (s *Syncer) Pull(ctx context.Context, userID string) (imported int, err error) {
	n, err := repo.CountEvents(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Log.Debug().Str("user_id", userID).Msg("local log not empty; skipping cold-start pull")
		return 0, nil
	}
	return s.Merge(ctx, userID)
}

// Merge unions every remote partition into the local log and rebuilds the
// projection for each key that gained events. Already-known events are
// dropped by the dedup index, so Merge is idempotent and safe to re-run.
func (s *Syncer) Merge(ctx context.Context, userID string) (imported int, err error) {
	months, err := s.Remote.Months(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list remote months: %w", err)
	}

	type key struct {
		habitID string
		day     domain.DateKey
	}
	touched := make(map[key]struct{})

	for _, month := range months {
		events, err := s.Remote.Events(ctx, userID, month)
		if err != nil {
			return imported, fmt.Errorf("pull month %s: %w", month, err)
		}
		for _, ev := range events {
			if ev.UserID != userID {
				continue // never import another tenant's events
			}
			local := domain.ProgressEvent{
				ID:            ev.ID,
				UserID:        ev.UserID,
				HabitID:       ev.HabitID,
				DateKey:       ev.DateKey,
				OperationID:   ev.OperationID,
				Type:          ev.Type,
				ProgressDelta: ev.ProgressDelta,
				CreatedAt:     ev.CreatedAt,
			}
			if err := repo.AppendEvent(ctx, s.DB, &local); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					continue
				}
				return imported, fmt.Errorf("append %s: %w", ev.ID, err)
			}
			imported++
			touched[key{ev.HabitID, ev.DateKey}] = struct{}{}
		}
	}

	for k := range touched {
		if _, err := s.Progress.Reproject(ctx, userID, k.habitID, k.day); err != nil {
			return imported, fmt.Errorf("reproject %s/%s: %w", k.habitID, k.day, err)
		}
	}

	s.Log.Info().
		Str("user_id", userID).
		Int("imported", imported).
		Int("keys_rebuilt", len(touched)).
		Msg("remote merge finished")
	return imported, nil
}

// Push uploads every local partition to the remote store.
func (s *Syncer) Push(ctx context.Context, userID string) (pushed int, err error) {
	months, err := repo.ListEventMonths(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	for _, month := range months {
		events, err := repo.ListEventsByMonth(ctx, s.DB, userID, month)
		if err != nil {
			return pushed, err
		}
		if err := s.Remote.PutEvents(ctx, userID, month, events); err != nil {
			return pushed, fmt.Errorf("push month %s: %w", month, err)
		}
		pushed += len(events)
	}
	s.Log.Info().Str("user_id", userID).Int("pushed", pushed).Msg("remote push finished")
	return pushed, nil
}
