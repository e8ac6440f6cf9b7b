// internal/purchases/implementation.go
package purchases

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autosphere/pkg/eventstore"
)

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sql.DB
	rewards    RewardProcessor
}

// NewService creates a new purchases service instance.
func NewService(es *eventstore.EventStore, db *sql.DB, rewards RewardProcessor) Service {
	return &service{
		eventStore: es,
		db:         db,
		rewards:    rewards,
	}
}

// PurchaseCar records the purchase and then hands it to the loyalty
// processor. The record is written first: if accrual fails the purchase
// stands and the error comes back wrapped in ErrAccrualPending so the
// caller can surface a retry instead of a failed purchase.
func (s *service) PurchaseCar(ctx context.Context, buyerID, carID uuid.UUID, pricePaid float64, dealership, paymentMethod, referralCode string) (*Purchase, error) {
	if pricePaid <= 0 {
		return nil, ErrInvalidPrice
	}

	id := uuid.New()
	eventData, err := json.Marshal(PurchaseRecordedEvent{
		ID:            id,
		BuyerID:       buyerID,
		CarID:         carID,
		PricePaid:     pricePaid,
		Dealership:    dealership,
		PaymentMethod: paymentMethod,
		ReferralCode:  referralCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	if err := s.eventStore.Append(ctx, id, "purchase", 0, "PurchaseRecorded", eventData); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	purchase := &Purchase{
		ID:            id,
		BuyerID:       buyerID,
		CarID:         carID,
		PricePaid:     pricePaid,
		Dealership:    dealership,
		PaymentMethod: paymentMethod,
		ReferralCode:  referralCode,
		PurchaseDate:  time.Now().UTC(),
		Version:       1,
	}

	if err := s.insertPurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}

	if err := s.rewards.ProcessPurchase(ctx, buyerID, pricePaid, referralCode); err != nil {
		return purchase, fmt.Errorf("%w: %v", ErrAccrualPending, err)
	}

	return purchase, nil
}

func (s *service) insertPurchase(ctx context.Context, p *Purchase) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (id, buyer_id, car_id, price_paid, dealership, payment_method, referral_code, purchase_date, version)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`, p.ID, p.BuyerID, p.CarID, p.PricePaid, p.Dealership, p.PaymentMethod, p.ReferralCode, p.PurchaseDate, p.Version)
	return err
}

// ListPurchases returns a buyer's purchase history, newest first.
func (s *service) ListPurchases(ctx context.Context, buyerID uuid.UUID) ([]*Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, buyer_id, car_id, price_paid, dealership, payment_method, COALESCE(referral_code, ''), purchase_date, version
		FROM purchases
		WHERE buyer_id = $1
		ORDER BY purchase_date DESC
	`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*Purchase
	for rows.Next() {
		p := &Purchase{}
		err := rows.Scan(&p.ID, &p.BuyerID, &p.CarID, &p.PricePaid, &p.Dealership, &p.PaymentMethod, &p.ReferralCode, &p.PurchaseDate, &p.Version)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return purchases, nil
}
