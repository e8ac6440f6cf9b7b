// internal/accounts/domain.go
package accounts

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"autosphere/internal/loyalty"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// Account represents a marketplace user record, including the loyalty state
// mutated by the loyalty engine.
type Account struct {
	ID            uuid.UUID    `json:"id"`
	Email         string       `json:"email"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Status        string       `json:"status"`
	LoyaltyPoints int64        `json:"loyalty_points"`
	Tier          loyalty.Tier `json:"tier"`
	ReferralCode  string       `json:"referral_code,omitempty"`
	Referrals     int64        `json:"referrals"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Version       int          `json:"version"`
}

// Credential holds an account's login secret.
type Credential struct {
	AccountID    uuid.UUID `json:"account_id"`
	PasswordHash string    `json:"-"`
}

// AccountRegisteredEvent is appended when a new account registers.
type AccountRegisteredEvent struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// LoyaltyAccruedEvent is appended after an atomic loyalty accrual.
type LoyaltyAccruedEvent struct {
	ID             uuid.UUID    `json:"id"`
	PointsDelta    int64        `json:"points_delta"`
	ReferralsDelta int64        `json:"referrals_delta"`
	NewPoints      int64        `json:"new_points"`
	NewTier        loyalty.Tier `json:"new_tier"`
	NewReferrals   int64        `json:"new_referrals"`
}

// ReferralCodeAssignedEvent is appended when an account receives its
// write-once referral code.
type ReferralCodeAssignedEvent struct {
	ID           uuid.UUID `json:"id"`
	ReferralCode string    `json:"referral_code"`
}
