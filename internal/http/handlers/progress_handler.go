// Progress HTTP handlers.
//
// This file exposes the REST endpoints for the completion core's write and
// read paths:
//   - POST   /habits/{id}/progress  (record a progress mutation)
//   - GET    /habits/{id}/progress  (current progress for a day)
//   - GET    /progress              (all of a day's records, ETag support)
//   - DELETE /events/{eventID}      (tombstone a mistaken event)
//
// A successful mutation also reports the award side effects the mutation
// caused (a grant when the day became fully complete, a revoke when a
// retroactive edit un-completed it).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/http/middleware"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/services"
)

// RecordProgressRequest is the JSON payload for recording a progress mutation.
//
// OperationID is the client-generated idempotency key; when omitted it falls
// back to the Idempotency-Key header. Replaying the same operation is
// reported as success with the current record.
type RecordProgressRequest struct {
	// DateKey is the logical day (YYYY-MM-DD). Empty means today.
	DateKey string `json:"date_key" example:"2025-10-22"`
	// OperationID deduplicates retries and sync replays.
	OperationID string `json:"operation_id" example:"op-9f3a"`
	// Type is one of INCREMENT, DECREMENT, SET, TOGGLE_COMPLETE, BULK_ADJUST.
	Type string `json:"type" binding:"required" example:"INCREMENT"`
	// Delta is the operation argument (target value for SET).
	Delta int `json:"delta" example:"1"`
}

// RecordProgressResponse reports the updated record and award side effects.
type RecordProgressResponse struct {
	Record        *domain.CompletionRecord `json:"record"`
	AwardGranted  bool                     `json:"award_granted"`
	AwardRevoked  bool                     `json:"award_revoked"`
	CurrentStreak int                      `json:"current_streak"`
}

// RecordProgress godoc
// @ID          recordProgress
// @Summary     Record a progress mutation
// @Description Appends one progress event for a habit/day, updates the completion record, and settles the day's XP award.
// @Tags        Progress
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       id         path    string  true  "Habit ID (UUID)"       format(uuid)
// @Param       body       body    handlers.RecordProgressRequest true "Mutation payload"
//
// @Success     200  {object} handlers.RecordProgressResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     404  {object} handlers.ErrorResponse "Habit not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /habits/{id}/progress [post]
func (h *Handlers) RecordProgress(c *gin.Context) {
	var req RecordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	uid := userID(c)
	habitID := c.Param("id")

	day, okDay := h.parseDay(req.DateKey)
	if !okDay {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date_key must be YYYY-MM-DD")
		return
	}
	opID := req.OperationID
	if opID == "" {
		opID, _ = middleware.GetIdempotencyKey(c)
	}

	rec, err := h.progress.Record(c.Request.Context(), uid, habitID, day, opID, req.Type, req.Delta)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrHabitNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "habit not found")
		case errors.Is(err, services.ErrInvalidEventType),
			errors.Is(err, services.ErrInvalidOperationID),
			errors.Is(err, services.ErrDeltaTooLarge):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeRecordFailed, "could not record progress right now, please retry")
		}
		return
	}

	// Settle the day's award after the mutation committed.
	granted, revoked, err := h.rewards.Evaluate(c.Request.Context(), uid, day)
	if err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("date_key", day.String()).Msg("award evaluation failed")
	}

	streak := 0
	if n, err := h.streaks.Current(c.Request.Context(), uid, time.Now()); err == nil {
		streak = n
	}

	ok(c, http.StatusOK, RecordProgressResponse{
		Record:        rec,
		AwardGranted:  granted,
		AwardRevoked:  revoked,
		CurrentStreak: streak,
	})
}

// CurrentProgress godoc
// @ID          currentProgress
// @Summary     Current progress for a habit/day
// @Tags        Progress
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       id         path    string  true  "Habit ID (UUID)"       format(uuid)
// @Param       date       query   string  false "Day (YYYY-MM-DD), default today"
//
// @Success     200  {object} domain.CompletionRecord
// @Failure     400  {object} handlers.ErrorResponse "Invalid date"
// @Failure     404  {object} handlers.ErrorResponse "Habit not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /habits/{id}/progress [get]
func (h *Handlers) CurrentProgress(c *gin.Context) {
	uid := userID(c)
	habitID := c.Param("id")

	day, okDay := h.parseDay(c.Query("date"))
	if !okDay {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rec, err := h.progress.Current(c.Request.Context(), uid, habitID, day)
	if err != nil {
		if errors.Is(err, services.ErrHabitNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "habit not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rec)
}

// DayProgressResponse lists every completion record a user has for one day.
type DayProgressResponse struct {
	Date  domain.DateKey            `json:"date"`
	Items []domain.CompletionRecord `json:"items"`
}

// DayProgress godoc
// @ID          dayProgress
// @Summary     All records for a day
// @Description Returns every completion record the user has for the given day. Supports conditional requests via a weak ETag over the user's record set.
// @Tags        Progress
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       date       query   string  false "Day (YYYY-MM-DD), default today"
//
// @Success     200  {object} handlers.DayProgressResponse
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Invalid date"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /progress [get]
func (h *Handlers) DayProgress(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := userID(c)

		day, okDay := h.parseDay(c.Query("date"))
		if !okDay {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}

		// Conditional response: any write to any record bumps the validator.
		count, maxTS, err := repo.RecordsStats(c.Request.Context(), db, uid)
		if err == nil {
			etag := fmt.Sprintf(`W/"records-%d-%d"`, count, tsUnix(maxTS))
			c.Header("ETag", etag)
			if c.GetHeader("If-None-Match") == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}

		items, err := repo.ListRecordsForDay(c.Request.Context(), db, uid, day)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list records")
			return
		}
		ok(c, http.StatusOK, DayProgressResponse{Date: day, Items: items})
	}
}

// DeleteEvent godoc
// @ID          deleteEvent
// @Summary     Tombstone a mistaken progress event
// @Description Soft-deletes one event, re-projects its habit/day from the surviving log, and settles the day's XP award.
// @Tags        Progress
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       eventID    path    string  true  "Event ID (UUID)"       format(uuid)
//
// @Success     200  {object} handlers.RecordProgressResponse
// @Failure     404  {object} handlers.ErrorResponse "Event not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /events/{eventID} [delete]
func (h *Handlers) DeleteEvent(c *gin.Context) {
	uid := userID(c)
	eventID := c.Param("eventID")

	rec, err := h.progress.DeleteEvent(c.Request.Context(), uid, eventID)
	if err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "event not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeRecordFailed, "could not delete event right now, please retry")
		return
	}

	// A correction can un-complete the day, so settle the award like a write.
	granted, revoked, err := h.rewards.Evaluate(c.Request.Context(), uid, rec.DateKey)
	if err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("date_key", rec.DateKey.String()).Msg("award evaluation failed")
	}

	streak := 0
	if n, err := h.streaks.Current(c.Request.Context(), uid, time.Now()); err == nil {
		streak = n
	}

	ok(c, http.StatusOK, RecordProgressResponse{
		Record:        rec,
		AwardGranted:  granted,
		AwardRevoked:  revoked,
		CurrentStreak: streak,
	})
}
