// internal/purchases/service.go
package purchases

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the purchases service.
type Service interface {
	PurchaseCar(ctx context.Context, buyerID, carID uuid.UUID, pricePaid float64, dealership, paymentMethod, referralCode string) (*Purchase, error)
	ListPurchases(ctx context.Context, buyerID uuid.UUID) ([]*Purchase, error)
}

// RewardProcessor is the loyalty hand-off invoked after the purchase record
// is durable. Implemented by clients.LoyaltyClient.
type RewardProcessor interface {
	ProcessPurchase(ctx context.Context, buyerID uuid.UUID, pricePaid float64, referralCode string) error
}
