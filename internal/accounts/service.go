// internal/accounts/service.go
package accounts

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the accounts service.
type Service interface {
	Register(ctx context.Context, email, firstName, lastName, password string) (*Account, error)
	Authenticate(ctx context.Context, email, password string) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ApplyAccrual(ctx context.Context, id uuid.UUID, pointsDelta, referralsDelta int64) (*Account, error)
	FindByReferralCode(ctx context.Context, code string) ([]*Account, error)
	AssignReferralCode(ctx context.Context, id uuid.UUID) (*Account, error)
}
