package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/strideapp/go-habit-backend/internal/services"
)

func TestRunReconciliation_Success_PartialErrors_Failure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(rc ReconcileService) *gin.Engine {
		h := newStubHandlers(nil, nil, nil, nil, rc)
		r := gin.New()
		r.POST("/reconcile", h.RunReconciliation)
		return r
	}

	// Success -> 200 with the report
	{
		r := newRouter(stubReconcileSvc{
			reconcile: func(_ context.Context, uid string) (*services.ReconciliationReport, error) {
				return &services.ReconciliationReport{
					UserID: uid, Checked: 12, Mismatched: 2, Fixed: 2,
					AwardsGranted: 1, TotalXP: 150,
				}, nil
			},
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
		req.Header.Set("X-User-ID", "u1")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("reconcile -> %d body=%s", w.Code, w.Body.String())
		}
		var out services.ReconciliationReport
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if out.UserID != "u1" || out.Checked != 12 || out.Fixed != 2 || out.TotalXP != 150 {
			t.Fatalf("unexpected report: %+v", out)
		}
	}

	// Per-record errors still yield 200; the report carries them.
	{
		r := newRouter(stubReconcileSvc{
			reconcile: func(_ context.Context, uid string) (*services.ReconciliationReport, error) {
				return &services.ReconciliationReport{
					UserID: uid, Checked: 5, Errors: []string{"record h1/2025-10-22: locked"},
				}, nil
			},
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("partial errors -> %d", w.Code)
		}
		var out services.ReconciliationReport
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		if len(out.Errors) != 1 {
			t.Fatalf("expected the error list in the report: %+v", out)
		}
	}

	// Run failure -> 500
	{
		r := newRouter(stubReconcileSvc{
			reconcile: func(context.Context, string) (*services.ReconciliationReport, error) {
				return nil, gorm.ErrInvalidField
			},
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("failure -> %d", w.Code)
		}
	}
}
