// internal/reservation/handler.go
package reservation

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"openshelf/internal/circulation"
	"openshelf/internal/inventory"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/holds", h.handlePlaceHold)
	r.Get("/holds/{reservationID}", h.handleGet)
	r.Post("/holds/{reservationID}/cancel", h.handleCancel)
	r.Post("/holds/{reservationID}/pickup", h.handleFulfill)
	r.Get("/users/{userID}/holds", h.handleListByUser)
}

func (h *Handler) handlePlaceHold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID   uuid.UUID  `json:"book_id"`
		UserID   uuid.UUID  `json:"user_id"`
		PickupBy *time.Time `json:"pickup_by,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.PlaceHold(r.Context(), req.BookID, req.UserID, req.PickupBy)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		http.Error(w, "invalid reservation ID", http.StatusBadRequest)
		return
	}

	res, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(res)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		http.Error(w, "invalid reservation ID", http.StatusBadRequest)
		return
	}

	res, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(res)
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		http.Error(w, "invalid reservation ID", http.StatusBadRequest)
		return
	}

	loan, err := h.service.Fulfill(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (h *Handler) handleListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	out, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, inventory.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrExpired):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, ErrAlreadyReserved),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, circulation.ErrAlreadyBorrowed),
		errors.Is(err, circulation.ErrHoldNotActive),
		errors.Is(err, inventory.ErrOutOfStock):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidPickupDate):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
