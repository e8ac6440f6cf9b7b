// internal/purchases/handler.go
package purchases

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

// Routes mounts the purchases endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/purchases", h.HandlePurchase)
	r.Get("/purchases", h.HandleListPurchases)
	return r
}

func (h *Handler) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID       uuid.UUID `json:"buyer_id"`
		CarID         uuid.UUID `json:"car_id"`
		PricePaid     float64   `json:"price_paid"`
		Dealership    string    `json:"dealership"`
		PaymentMethod string    `json:"payment_method"`
		ReferralCode  string    `json:"referral_code"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	purchase, err := h.service.PurchaseCar(r.Context(), req.BuyerID, req.CarID, req.PricePaid, req.Dealership, req.PaymentMethod, req.ReferralCode)
	if err != nil && !errors.Is(err, ErrAccrualPending) {
		if errors.Is(err, ErrInvalidPrice) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The purchase stands even when accrual is pending; the flag tells the
	// caller that the loyalty benefit needs a retry.
	resp := struct {
		Purchase       *Purchase `json:"purchase"`
		LoyaltyPending bool      `json:"loyalty_pending"`
	}{
		Purchase:       purchase,
		LoyaltyPending: errors.Is(err, ErrAccrualPending),
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) HandleListPurchases(w http.ResponseWriter, r *http.Request) {
	buyerID, err := uuid.Parse(r.URL.Query().Get("buyer_id"))
	if err != nil {
		http.Error(w, "buyer_id query parameter required", http.StatusBadRequest)
		return
	}

	purchases, err := h.service.ListPurchases(r.Context(), buyerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if purchases == nil {
		purchases = []*Purchase{}
	}

	json.NewEncoder(w).Encode(purchases)
}
