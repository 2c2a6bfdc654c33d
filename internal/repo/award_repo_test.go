package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

func TestCreateAward_UniquePerUserDay(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")

	a, err := CreateAward(ctx, db, "u1", day, 50)
	if err != nil {
		t.Fatalf("CreateAward: %v", err)
	}
	if a.ID == "" || a.XPGranted != 50 || !a.AllHabitsCompleted || a.GrantedAt.IsZero() {
		t.Fatalf("unexpected award: %+v", a)
	}

	if _, err := CreateAward(ctx, db, "u1", day, 50); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Different day and different user are both fine.
	if _, err := CreateAward(ctx, db, "u1", day.Next(), 50); err != nil {
		t.Fatalf("next day: %v", err)
	}
	if _, err := CreateAward(ctx, db, "u2", day, 50); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestGetAndDeleteAward(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	day := domain.DateKey("2025-10-22")

	if _, err := GetAward(ctx, db, "u1", day); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := CreateAward(ctx, db, "u1", day, 50); err != nil {
		t.Fatalf("CreateAward: %v", err)
	}
	if got, err := GetAward(ctx, db, "u1", day); err != nil || got.DateKey != day {
		t.Fatalf("GetAward: got=%+v err=%v", got, err)
	}

	removed, err := DeleteAward(ctx, db, "u1", day)
	if err != nil || !removed {
		t.Fatalf("DeleteAward: removed=%v err=%v", removed, err)
	}
	// Deleting an absent award is a no-op, not an error.
	removed, err = DeleteAward(ctx, db, "u1", day)
	if err != nil || removed {
		t.Fatalf("second DeleteAward: removed=%v err=%v", removed, err)
	}

	// Revocation frees the slot for a re-grant.
	if _, err := CreateAward(ctx, db, "u1", day, 50); err != nil {
		t.Fatalf("re-grant after revoke: %v", err)
	}
}

func TestCountAndListAwards(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	for _, day := range []domain.DateKey{"2025-10-20", "2025-10-21", "2025-10-22"} {
		if _, err := CreateAward(ctx, db, "u1", day, 50); err != nil {
			t.Fatalf("seed %s: %v", day, err)
		}
	}
	if _, err := CreateAward(ctx, db, "u2", "2025-10-22", 50); err != nil {
		t.Fatalf("seed u2: %v", err)
	}

	if n, err := CountAwards(ctx, db, "u1"); err != nil || n != 3 {
		t.Fatalf("CountAwards: n=%d err=%v", n, err)
	}

	all, err := ListAwards(ctx, db, "u1")
	if err != nil {
		t.Fatalf("ListAwards: %v", err)
	}
	if len(all) != 3 || all[0].DateKey != "2025-10-22" || all[2].DateKey != "2025-10-20" {
		t.Fatalf("unexpected list: %+v", all)
	}

	page, err := ListAwardsPage(ctx, db, "u1", 1, 1)
	if err != nil {
		t.Fatalf("ListAwardsPage: %v", err)
	}
	if len(page) != 1 || page[0].DateKey != "2025-10-21" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestStreakState_ZeroValueAndUpsert(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	st, err := GetStreakState(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetStreakState (empty): %v", err)
	}
	if st.UserID != "u1" || st.CurrentStreak != 0 || st.LongestStreak != 0 {
		t.Fatalf("expected zero state, got %+v", st)
	}

	st.CurrentStreak = 3
	st.LongestStreak = 7
	st.TotalCompleteDays = 12
	st.LastCompleteDate = "2025-10-22"
	if err := UpsertStreakState(ctx, db, st); err != nil {
		t.Fatalf("upsert insert: %v", err)
	}

	st.CurrentStreak = 4
	if err := UpsertStreakState(ctx, db, st); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	got, err := GetStreakState(ctx, db, "u1")
	if err != nil {
		t.Fatalf("GetStreakState: %v", err)
	}
	if got.CurrentStreak != 4 || got.LongestStreak != 7 || got.LastCompleteDate != "2025-10-22" {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestAwardsAndRecordsStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	// Empty ledgers → zero counts, nil timestamps.
	if n, maxAt, err := AwardsStats(ctx, db, "u1"); err != nil || n != 0 || maxAt != nil {
		t.Fatalf("empty AwardsStats: n=%d max=%v err=%v", n, maxAt, err)
	}
	if n, maxAt, err := RecordsStats(ctx, db, "u1"); err != nil || n != 0 || maxAt != nil {
		t.Fatalf("empty RecordsStats: n=%d max=%v err=%v", n, maxAt, err)
	}

	if _, err := CreateAward(ctx, db, "u1", "2025-10-22", 50); err != nil {
		t.Fatalf("seed award: %v", err)
	}
	rec := &domain.CompletionRecord{UserID: "u1", HabitID: "h1", DateKey: "2025-10-22", Progress: 1}
	if err := UpsertRecord(ctx, db, rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	n, maxAt, err := AwardsStats(ctx, db, "u1")
	if err != nil || n != 1 || maxAt == nil || maxAt.IsZero() {
		t.Fatalf("AwardsStats: n=%d max=%v err=%v", n, maxAt, err)
	}
	n, maxAt, err = RecordsStats(ctx, db, "u1")
	if err != nil || n != 1 || maxAt == nil || maxAt.IsZero() {
		t.Fatalf("RecordsStats: n=%d max=%v err=%v", n, maxAt, err)
	}
}
