// Streak and award HTTP handlers.
//
// This file exposes the derived read surfaces:
//   - GET /streak  (current/longest streak, total complete days, total XP)
//   - GET /awards  (paginated award ledger, ETag support)
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/domain"
	"github.com/strideapp/go-habit-backend/internal/repo"
	"github.com/strideapp/go-habit-backend/internal/utils"
)

// StreakResponse is the combined streak/XP summary.
type StreakResponse struct {
	CurrentStreak     int            `json:"current_streak"`
	LongestStreak     int            `json:"longest_streak"`
	TotalCompleteDays int            `json:"total_complete_days"`
	LastCompleteDate  domain.DateKey `json:"last_complete_date,omitempty"`
	TotalXP           int            `json:"total_xp"`
}

// AwardsPageResponse is the paginated award ledger envelope.
type AwardsPageResponse struct {
	Items    []domain.DailyAward `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// GetStreak godoc
// @ID          getStreak
// @Summary     Streak and XP summary
// @Description Rebuilds the streak aggregate from full history, so retroactive edits are always reflected. Pass cached=true to serve the persisted aggregate without recomputing (may lag behind edits until the next rebuild or reconciliation).
// @Tags        Streak
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       cached     query   bool    false "Serve the persisted aggregate without recomputing"
//
// @Success     200  {object} handlers.StreakResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /streak [get]
func (h *Handlers) GetStreak(c *gin.Context) {
	uid := userID(c)

	var (
		st  *domain.StreakState
		err error
	)
	if c.Query("cached") == "true" {
		st, err = h.streaks.Cached(c.Request.Context(), uid)
	} else {
		st, err = h.streaks.Rebuild(c.Request.Context(), uid)
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute streak")
		return
	}
	xp, err := h.rewards.TotalXP(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute xp")
		return
	}

	ok(c, http.StatusOK, StreakResponse{
		CurrentStreak:     st.CurrentStreak,
		LongestStreak:     st.LongestStreak,
		TotalCompleteDays: st.TotalCompleteDays,
		LastCompleteDate:  st.LastCompleteDate,
		TotalXP:           xp,
	})
}

// ListAwards godoc
// @ID          listAwards
// @Summary     Award ledger (paginated)
// @Tags        Streak
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
// @Param       page       query   int     false "Page (1-based)"
// @Param       page_size  query   int     false "Page size (default 20)"
//
// @Success     200  {object} handlers.AwardsPageResponse
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /awards [get]
func (h *Handlers) ListAwards(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := userID(c)

		// Conditional response: cheap stats → weak ETag.
		count, maxTS, err := repo.AwardsStats(c.Request.Context(), db, uid)
		if err == nil {
			etag := fmt.Sprintf(`W/"awards-%d-%d"`, count, tsUnix(maxTS))
			c.Header("ETag", etag)
			if c.GetHeader("If-None-Match") == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}

		page, pageSize := utils.ClampPage(
			utils.AtoiDefault(c.Query("page"), 1),
			utils.AtoiDefault(c.Query("page_size"), 20),
			20, 100)

		items, err := repo.ListAwardsPage(c.Request.Context(), db, uid, (page-1)*pageSize, pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list awards")
			return
		}
		ok(c, http.StatusOK, AwardsPageResponse{
			Items:    items,
			Total:    count,
			Page:     page,
			PageSize: pageSize,
		})
	}
}

func tsUnix(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
