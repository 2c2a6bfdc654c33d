// Package schedule – Service
//
// This file implements the GORM-backed Provider plus the habit/excuse
// management operations exposed over HTTP. It normalizes habit names,
// validates goal amounts and weekday masks, and answers the scheduling
// queries the completion core depends on.
package schedule

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// Service-level errors returned for predictable cases so handlers can map
// them to HTTP results consistently.
var (
	// ErrHabitNotFound indicates the habit does not exist or belongs to a
	// different user.
	ErrHabitNotFound = errors.New("habit not found")

	// ErrInvalidGoal is returned when a goal amount is negative.
	ErrInvalidGoal = errors.New("goal amount must be >= 0")

	// ErrInvalidWeekdays is returned when a weekday mask contains an
	// unrecognized day name.
	ErrInvalidWeekdays = errors.New("weekdays must be comma-separated day names (mon..sun)")

	// ErrDuplicateExcuse is returned when the same (habit, day) is excused twice.
	ErrDuplicateExcuse = errors.New("excuse already recorded for this day")
)

var validWeekday = map[string]bool{
	"mon": true, "tue": true, "wed": true, "thu": true,
	"fri": true, "sat": true, "sun": true,
}

// Service manages habit metadata and excuse records and implements Provider
// on top of them. It is safe for concurrent use.
type Service struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cal is the canonical calendar policy, used to stamp creation days.
	Cal domain.Calendar

	// NameMaxLen caps stored habit names by rune length.
	NameMaxLen int

	titler cases.Caser
}

// NewService constructs a Service with sane defaults for name handling.
func NewService(db *gorm.DB, cal domain.Calendar) *Service {
	return &Service{
		DB:         db,
		Cal:        cal,
		NameMaxLen: 80,
		titler:     cases.Title(language.Und, cases.NoLower),
	}
}

// CreateHabit inserts a new habit owned by userID. The name is normalized and
// title-cased, goalAmount and the weekday mask are validated, and the habit's
// creation day is stamped under the canonical calendar so streak walks never
// treat pre-creation days as missed.
func (s *Service) CreateHabit(ctx context.Context, userID, name string, goalAmount int, weekdays string) (*Habit, error) {
	if goalAmount < 0 {
		return nil, ErrInvalidGoal
	}
	weekdays, err := normalizeWeekdays(weekdays)
	if err != nil {
		return nil, err
	}
	name = s.normalizeName(name)
	if name == "" {
		name = "New habit"
	}
	h := &Habit{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		GoalAmount:  goalAmount,
		Weekdays:    weekdays,
		CreatedDate: s.Cal.Today(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(h).Error; err != nil {
		return nil, err
	}
	return h, nil
}

// ListHabits returns all live habits for a user, ordered by creation time.
func (s *Service) ListHabits(ctx context.Context, userID string) ([]Habit, error) {
	var out []Habit
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// GetHabit fetches a habit by ID, enforcing ownership. Returns
// ErrHabitNotFound when missing or owned by someone else.
func (s *Service) GetHabit(ctx context.Context, userID, habitID string) (*Habit, error) {
	var h Habit
	err := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", habitID, userID).
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHabitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// RecordExcuse stores a skip/vacation entry for (habitID, day). An empty
// habitID excuses the entire day. Duplicate excuses for the same key return
// ErrDuplicateExcuse.
func (s *Service) RecordExcuse(ctx context.Context, userID, habitID string, day domain.DateKey, reason string) (*Excuse, error) {
	if habitID != "" {
		if _, err := s.GetHabit(ctx, userID, habitID); err != nil {
			return nil, err
		}
	}
	e := &Excuse{
		ID:        uuid.NewString(),
		UserID:    userID,
		HabitID:   habitID,
		DateKey:   day,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(e).Error; err != nil {
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicateExcuse
		}
		return nil, err
	}
	return e, nil
}

// GoalAmount implements Provider.
func (s *Service) GoalAmount(ctx context.Context, userID, habitID string, day domain.DateKey) (int, error) {
	h, err := s.GetHabit(ctx, userID, habitID)
	if err != nil {
		return 0, err
	}
	return h.GoalAmount, nil
}

// ScheduledHabitIDs implements Provider. Soft-deleted habits are excluded;
// so are habits created after the requested day and habits whose weekday mask
// skips it.
func (s *Service) ScheduledHabitIDs(ctx context.Context, userID string, day domain.DateKey) ([]string, error) {
	var habits []Habit
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&habits).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(habits))
	for _, h := range habits {
		if h.ScheduledOn(day) {
			ids = append(ids, h.ID)
		}
	}
	return ids, nil
}

// HasHabitsOn implements Provider.
func (s *Service) HasHabitsOn(ctx context.Context, userID string, day domain.DateKey) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&Habit{}).
		Where("user_id = ? AND created_date <= ?", userID, day).
		Count(&n).Error
	return n > 0, err
}

// IsExcused implements Provider. A whole-day excuse (empty habit_id) covers
// every habit.
func (s *Service) IsExcused(ctx context.Context, userID, habitID string, day domain.DateKey) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&Excuse{}).
		Where("user_id = ? AND date_key = ? AND (habit_id = ? OR habit_id = '')", userID, day, habitID).
		Count(&n).Error
	return n > 0, err
}

// normalizeName trims whitespace, collapses runs of spaces, title-cases the
// result, and clips it to NameMaxLen runes.
func (s *Service) normalizeName(name string) string {
	name = whitespaceRE.ReplaceAllString(strings.TrimSpace(name), " ")
	name = s.titler.String(name)
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		name = string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// normalizeWeekdays lowercases and validates a comma-separated weekday mask.
func normalizeWeekdays(mask string) (string, error) {
	mask = strings.TrimSpace(strings.ToLower(mask))
	if mask == "" {
		return "", nil
	}
	parts := strings.Split(mask, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !validWeekday[p] {
			return "", ErrInvalidWeekdays
		}
		out = append(out, p)
	}
	return strings.Join(out, ","), nil
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
