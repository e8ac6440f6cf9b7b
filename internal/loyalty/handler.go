// internal/loyalty/handler.go
package loyalty

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the loyalty endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/process", h.HandleProcessPurchase)
	r.Get("/accounts/{id}", h.HandleGetLoyalty)
	r.Post("/accounts/{id}/referral-code", h.HandleEnsureReferralCode)
	return r
}

func (h *Handler) HandleProcessPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID      uuid.UUID `json:"buyer_id"`
		PricePaid    float64   `json:"price_paid"`
		ReferralCode string    `json:"referral_code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.ProcessPurchase(r.Context(), req.BuyerID, req.PricePaid, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPrice):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrAccountNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(result)
}

func (h *Handler) HandleGetLoyalty(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	account, err := h.service.GetLoyalty(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(account)
}

func (h *Handler) HandleEnsureReferralCode(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid account ID", http.StatusBadRequest)
		return
	}

	account, err := h.service.EnsureReferralCode(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(account)
}
