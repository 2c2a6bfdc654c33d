package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/schedule"
)

func newServicesDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA busy_timeout=5000;")
	// One connection keeps concurrent test writers from tripping SQLITE_BUSY.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedHabit inserts a habit row directly so tests control the creation date.
func seedHabit(t *testing.T, db *gorm.DB, id, userID string, goal int, weekdays string, created domain.DateKey) {
	t.Helper()
	row := &schedule.Habit{
		ID: id, UserID: userID, Name: id,
		GoalAmount: goal, Weekdays: weekdays, CreatedDate: created,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed habit %s: %v", id, err)
	}
}

func newProgressFixture(t *testing.T) (*ProgressService, *schedule.Service, *gorm.DB) {
	t.Helper()
	db := newServicesDB(t)
	sched := schedule.NewService(db, domain.UTCCalendar())
	return NewProgressService(db, sched, 1000), sched, db
}

func TestRecord_IncrementToCompletion(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, svc.DB, "h1", "u1", 10, "", "2025-10-01")

	rec, err := svc.Record(ctx, "u1", "h1", day, "op-1", domain.EventIncrement, 5)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Progress != 5 || rec.IsCompleted {
		t.Fatalf("after +5: %+v", rec)
	}

	rec, err = svc.Record(ctx, "u1", "h1", day, "op-2", domain.EventIncrement, 3)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Progress != 8 || rec.IsCompleted {
		t.Fatalf("after +3: %+v", rec)
	}

	rec, err = svc.Record(ctx, "u1", "h1", day, "op-3", domain.EventIncrement, 2)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Progress != 10 || !rec.IsCompleted || rec.GoalAmount != 10 {
		t.Fatalf("after +2: %+v", rec)
	}
}

func TestRecord_Validation(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, svc.DB, "h1", "u1", 10, "", "2025-10-01")

	if _, err := svc.Record(ctx, "u1", "h1", day, "  ", domain.EventIncrement, 1); !errors.Is(err, ErrInvalidOperationID) {
		t.Fatalf("blank op id: %v", err)
	}
	if _, err := svc.Record(ctx, "u1", "h1", day, "op", "SHRINK", 1); !errors.Is(err, ErrInvalidEventType) {
		t.Fatalf("bad type: %v", err)
	}
	if _, err := svc.Record(ctx, "u1", "h1", day, "op", domain.EventIncrement, 1001); !errors.Is(err, ErrDeltaTooLarge) {
		t.Fatalf("oversized delta: %v", err)
	}
	if _, err := svc.Record(ctx, "u1", "h1", day, "op", domain.EventBulkAdjust, -1001); !errors.Is(err, ErrDeltaTooLarge) {
		t.Fatalf("oversized negative delta: %v", err)
	}
	if _, err := svc.Record(ctx, "u1", "ghost", day, "op", domain.EventIncrement, 1); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("unknown habit: %v", err)
	}
}

func TestRecord_DuplicateOperationIsSuccess(t *testing.T) {
	svc, _, db := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, db, "h1", "u1", 10, "", "2025-10-01")

	if _, err := svc.Record(ctx, "u1", "h1", day, "op-1", domain.EventIncrement, 5); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Retry with the same operation id: no error, no double-apply.
	rec, err := svc.Record(ctx, "u1", "h1", day, "op-1", domain.EventIncrement, 5)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if rec.Progress != 5 {
		t.Fatalf("retry applied twice: %+v", rec)
	}

	events, err := repo.ListEventsForKey(ctx, db, "u1", "h1", day)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestRecord_SetAndToggleSemantics(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, svc.DB, "h1", "u1", 10, "", "2025-10-01")

	// SET jumps to the target regardless of current value.
	rec, err := svc.Record(ctx, "u1", "h1", day, "op-1", domain.EventSet, 7)
	if err != nil {
		t.Fatalf("SET: %v", err)
	}
	if rec.Progress != 7 {
		t.Fatalf("SET 7: %+v", rec)
	}
	rec, _ = svc.Record(ctx, "u1", "h1", day, "op-2", domain.EventSet, 2)
	if rec.Progress != 2 {
		t.Fatalf("SET 2: %+v", rec)
	}

	// TOGGLE_COMPLETE jumps to the goal, then back to zero.
	rec, _ = svc.Record(ctx, "u1", "h1", day, "op-3", domain.EventToggleComplete, 0)
	if rec.Progress != 10 || !rec.IsCompleted {
		t.Fatalf("toggle on: %+v", rec)
	}
	rec, _ = svc.Record(ctx, "u1", "h1", day, "op-4", domain.EventToggleComplete, 0)
	if rec.Progress != 0 || rec.IsCompleted {
		t.Fatalf("toggle off: %+v", rec)
	}
}

func TestRecord_ClampAtZeroKeepsFoldConsistent(t *testing.T) {
	svc, _, db := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, db, "h1", "u1", 10, "", "2025-10-01")

	_, _ = svc.Record(ctx, "u1", "h1", day, "op-1", domain.EventIncrement, 3)
	rec, err := svc.Record(ctx, "u1", "h1", day, "op-2", domain.EventDecrement, 9)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if rec.Progress != 0 {
		t.Fatalf("expected clamp at 0, got %+v", rec)
	}

	// The stored deltas fold to exactly the cached value.
	progress, _, hasEvents, err := svc.FromEvents(ctx, "u1", "h1", day)
	if err != nil {
		t.Fatalf("FromEvents: %v", err)
	}
	if !hasEvents || progress != rec.Progress {
		t.Fatalf("fold=%d cache=%d hasEvents=%v", progress, rec.Progress, hasEvents)
	}
}

func TestRecord_GoalZeroMeansAnyProgressCompletes(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, svc.DB, "h0", "u1", 0, "", "2025-10-01")

	rec, err := svc.Record(ctx, "u1", "h0", day, "op-1", domain.EventIncrement, 0)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Progress != 1 || !rec.IsCompleted {
		t.Fatalf("goal-0 habit: %+v", rec)
	}
}

func TestRecord_CompletionRevokedByDecrement(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, svc.DB, "h1", "u1", 10, "", "2025-10-01")

	for i, d := range []int{5, 3, 2} {
		if _, err := svc.Record(ctx, "u1", "h1", day, fmt.Sprintf("op-%d", i), domain.EventIncrement, d); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	rec, err := svc.Record(ctx, "u1", "h1", day, "op-back", domain.EventDecrement, 7)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if rec.Progress != 3 || rec.IsCompleted {
		t.Fatalf("after -7: %+v", rec)
	}
}

func TestRecord_ConcurrentDistinctOperations(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, svc.DB, "h1", "u1", 100, "", "2025-10-01")

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Record(ctx, "u1", "h1", day, fmt.Sprintf("op-%d", i), domain.EventIncrement, 1)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}

	rec, err := svc.Current(ctx, "u1", "h1", day)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if rec.Progress != n {
		t.Fatalf("expected %d, got %d", n, rec.Progress)
	}
}

func TestCurrent_ZeroRecordForUntouchedKey(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, svc.DB, "h1", "u1", 10, "", "2025-10-01")

	rec, err := svc.Current(ctx, "u1", "h1", day)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if rec.Progress != 0 || rec.IsCompleted || rec.GoalAmount != 10 {
		t.Fatalf("unexpected zero record: %+v", rec)
	}

	if _, err := svc.Current(ctx, "u1", "ghost", day); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("unknown habit: %v", err)
	}
}

func TestDeleteEvent_TombstoneAndReproject(t *testing.T) {
	svc, _, db := newProgressFixture(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")
	seedHabit(t, db, "h1", "u1", 10, "", "2025-10-01")

	_, _ = svc.Record(ctx, "u1", "h1", day, "op-1", domain.EventIncrement, 4)
	_, _ = svc.Record(ctx, "u1", "h1", day, "op-2", domain.EventIncrement, 6)

	ev, err := repo.GetEventByOperation(ctx, db, "u1", "h1", day, "op-2")
	if err != nil {
		t.Fatalf("fetch event: %v", err)
	}

	rec, err := svc.DeleteEvent(ctx, "u1", ev.ID)
	if err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if rec.Progress != 4 || rec.IsCompleted {
		t.Fatalf("after tombstone: %+v", rec)
	}

	if _, err := svc.DeleteEvent(ctx, "u1", "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("missing event: %v", err)
	}
}

func TestFromEvents_NoEvents(t *testing.T) {
	svc, _, _ := newProgressFixture(t)
	ctx := context.Background()
	seedHabit(t, svc.DB, "h1", "u1", 10, "", "2025-10-01")

	progress, isCompleted, hasEvents, err := svc.FromEvents(ctx, "u1", "h1", "2025-10-22")
	if err != nil {
		t.Fatalf("FromEvents: %v", err)
	}
	if progress != 0 || isCompleted || hasEvents {
		t.Fatalf("empty log: progress=%d completed=%v hasEvents=%v", progress, isCompleted, hasEvents)
	}
}
