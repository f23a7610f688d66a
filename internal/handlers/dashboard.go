package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pilotodevendas/apiserver/internal/services"
)

// DashboardHandler serves dashboard data to signed-in users.
type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// DashboardRouter registers dashboard routes behind requireSession.
func DashboardRouter(r chi.Router, dashboard *services.DashboardService, requireSession func(http.Handler) http.Handler) {
	h := NewDashboardHandler(dashboard)
	r.With(requireSession).Get("/data", h.Data)
}

// Data returns the chart and table for the current user.
func (h *DashboardHandler) Data(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, h.dashboard.Data(user))
}
