// Reconciliation HTTP handler.
//
// This file exposes the on-demand repair pass:
//   - POST /reconcile
//
// The same pass runs automatically at process start; this endpoint exists for
// support tooling and for clients that want to force convergence after a
// sync.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/strideapp/go-habit-backend/internal/http/middleware"
)

// RunReconciliation godoc
// @ID          runReconciliation
// @Summary     Repair cached state from the event log
// @Description Re-derives every completion record from the event log, re-verifies the award ledger, rebuilds the streak aggregate, and returns a report.
// @Tags        Reconciliation
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)" example(user123)
//
// @Success     200  {object} services.ReconciliationReport
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /reconcile [post]
func (h *Handlers) RunReconciliation(c *gin.Context) {
	uid := userID(c)

	rep, err := h.reconcile.Reconcile(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeReconcileFailed, "reconciliation failed")
		return
	}
	if len(rep.Errors) > 0 {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Int("errors", len(rep.Errors)).Msg("reconciliation completed with errors")
	}
	ok(c, http.StatusOK, rep)
}
