// internal/sweeper/handler.go
package sweeper

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the on-demand sweep trigger. The UI may call this after
// user-visible actions, but the scheduled loop keeps state consistent
// regardless.
type Handler struct {
	sweeper *Sweeper
}

func NewHandler(s *Sweeper) *Handler {
	return &Handler{sweeper: s}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/admin/sweep", h.handleSweep)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.sweeper.SweepReservations(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	overdue, err := h.sweeper.SweepOverdue(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]int{
		"expired_holds": expired,
		"overdue_loans": overdue,
	})
}
