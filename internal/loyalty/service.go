// internal/loyalty/service.go
package loyalty

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the loyalty service.
type Service interface {
	ProcessPurchase(ctx context.Context, buyerID uuid.UUID, pricePaid float64, referralCode string) (*AccrualResult, error)
	EnsureReferralCode(ctx context.Context, accountID uuid.UUID) (*Account, error)
	GetLoyalty(ctx context.Context, accountID uuid.UUID) (*Account, error)
}

// AccountGateway is the account-persistence collaborator the engine reads
// and writes through. ApplyAccrual must add both deltas and recompute the
// tier in a single atomic update so concurrent accruals cannot lose an
// increment or leave the stored tier stale.
type AccountGateway interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ApplyAccrual(ctx context.Context, id uuid.UUID, pointsDelta, referralsDelta int64) (*Account, error)
	FindByReferralCode(ctx context.Context, code string) ([]*Account, error)
	AssignReferralCode(ctx context.Context, id uuid.UUID) (*Account, error)
}
