// Habit HTTP handlers.
//
// This file exposes the minimal habit-metadata endpoints the completion core
// needs (goal amounts and weekday scheduling), plus excuse recording:
//   - POST /habits                (create)
//   - GET  /habits                (list)
//   - POST /habits/{id}/excuses   (record a skip/vacation day)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/strideapp/go-habit-backend/internal/schedule"
	"github.com/strideapp/go-habit-backend/internal/search"
)

// CreateHabitRequest is the JSON payload for creating a habit.
type CreateHabitRequest struct {
	// Name is the display name; normalized and title-cased server side.
	Name string `json:"name" binding:"required" example:"morning run"`
	// GoalAmount is the per-day completion threshold (0 = any progress).
	GoalAmount int `json:"goal_amount" example:"10"`
	// Weekdays restricts scheduling ("mon,wed,fri"); empty means every day.
	Weekdays string `json:"weekdays" example:"mon,wed,fri"`
}

// RecordExcuseRequest is the JSON payload for excusing a day. Posting with
// "all": true excuses every habit for the day (vacation mode).
type RecordExcuseRequest struct {
	// DateKey is the excused day (YYYY-MM-DD). Empty means today.
	DateKey string `json:"date_key" example:"2025-10-22"`
	// Reason is an optional free-text note.
	Reason string `json:"reason" example:"travel day"`
	// All excuses the whole day rather than just this habit.
	All bool `json:"all" example:"false"`
}

// CreateHabit godoc
// @ID          createHabit
// @Summary     Create a habit
// @Tags        Habits
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       body       body    handlers.CreateHabitRequest true "Habit payload"
//
// @Success     201  {object} schedule.Habit
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /habits [post]
func (h *Handlers) CreateHabit(c *gin.Context) {
	var req CreateHabitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}

	habit, err := h.habits.CreateHabit(c.Request.Context(), userID(c), req.Name, req.GoalAmount, req.Weekdays)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrInvalidGoal), errors.Is(err, schedule.ErrInvalidWeekdays):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create habit")
		}
		return
	}
	ok(c, http.StatusCreated, habit)
}

// ListHabits godoc
// @ID          listHabits
// @Summary     List habits
// @Description With ?q=, habits are ranked by name similarity instead of
// @Description returned in creation order.
// @Tags        Habits
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       q          query   string  false "Name filter"           example(run)
//
// @Success     200  {array}  schedule.Habit
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /habits [get]
func (h *Handlers) ListHabits(c *gin.Context) {
	habits, err := h.habits.ListHabits(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list habits")
		return
	}
	if q := c.Query("q"); q != "" {
		habits = rankHabits(habits, q)
	}
	ok(c, http.StatusOK, habits)
}

// rankHabits filters and orders habits by name similarity to q. Habits with
// no token overlap are dropped.
func rankHabits(habits []schedule.Habit, q string) []schedule.Habit {
	byID := make(map[string]schedule.Habit, len(habits))
	entries := make([]search.Entry, 0, len(habits))
	for _, hb := range habits {
		byID[hb.ID] = hb
		entries = append(entries, search.Entry{Key: hb.ID, Text: hb.Name})
	}
	ranked := search.New(entries).TopK(q, len(entries))
	out := make([]schedule.Habit, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, byID[r.Key])
	}
	return out
}

// RecordExcuse godoc
// @ID          recordExcuse
// @Summary     Excuse a day for a habit (or the whole day)
// @Description Excused days preserve a streak without extending it.
// @Tags        Habits
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       id         path    string  true  "Habit ID (UUID)"       format(uuid)
// @Param       body       body    handlers.RecordExcuseRequest true "Excuse payload"
//
// @Success     201  {object} schedule.Excuse
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     404  {object} handlers.ErrorResponse "Habit not found"
// @Failure     409  {object} handlers.ErrorResponse "Excuse already recorded"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /habits/{id}/excuses [post]
func (h *Handlers) RecordExcuse(c *gin.Context) {
	var req RecordExcuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	day, okDay := h.parseDay(req.DateKey)
	if !okDay {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date_key must be YYYY-MM-DD")
		return
	}

	habitID := c.Param("id")
	if req.All {
		habitID = "" // whole-day excuse
	}

	excuse, err := h.habits.RecordExcuse(c.Request.Context(), userID(c), habitID, day, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrHabitNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "habit not found")
		case errors.Is(err, schedule.ErrDuplicateExcuse):
			fail(c, http.StatusConflict, ErrCodeConflict, "excuse already recorded for this day")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not record excuse")
		}
		return
	}
	ok(c, http.StatusCreated, excuse)
}
