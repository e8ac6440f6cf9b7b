// internal/purchases/domain.go
package purchases

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAccrualPending marks a purchase that was recorded durably but whose
	// loyalty accrual failed; the caller should surface a retry, not treat
	// the purchase as failed.
	ErrAccrualPending = errors.New("loyalty accrual pending")

	ErrInvalidPrice = errors.New("price paid must be positive")
)

// Purchase represents a completed car purchase.
type Purchase struct {
	ID            uuid.UUID `json:"id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	CarID         uuid.UUID `json:"car_id"`
	PricePaid     float64   `json:"price_paid"`
	Dealership    string    `json:"dealership"`
	PaymentMethod string    `json:"payment_method"`
	ReferralCode  string    `json:"referral_code,omitempty"`
	PurchaseDate  time.Time `json:"purchase_date"`
	Version       int       `json:"version"`
}

// PurchaseRecordedEvent is appended when a purchase is durably written,
// before reward processing runs.
type PurchaseRecordedEvent struct {
	ID            uuid.UUID `json:"id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	CarID         uuid.UUID `json:"car_id"`
	PricePaid     float64   `json:"price_paid"`
	Dealership    string    `json:"dealership"`
	PaymentMethod string    `json:"payment_method"`
	ReferralCode  string    `json:"referral_code,omitempty"`
}
