// internal/accounts/implementation.go
package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/time/rate"

	"autosphere/internal/loyalty"
	"autosphere/pkg/eventstore"
)

// assignAttempts bounds the retry loop on referral-code collisions. With a
// ~90k code space per name prefix, consecutive 23505s past a handful of
// tries indicate something other than bad luck.
const assignAttempts = 5

const accountColumns = `
	id, email, first_name, last_name, status,
	loyalty_points, tier, COALESCE(referral_code, ''), referrals,
	created_at, updated_at, version
`

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sql.DB
	limiter    *rate.Limiter
}

// NewService creates a new accounts service instance.
func NewService(es *eventstore.EventStore, db *sql.DB) Service {
	return &service{
		eventStore: es,
		db:         db,
		limiter:    rate.NewLimiter(rate.Every(time.Minute), 10), // 10 auth requests per minute
	}
}

// Register creates a new account with zeroed loyalty state (Bronze, 0
// points, 0 referrals). The referral code is assigned lazily later.
func (s *service) Register(ctx context.Context, email, firstName, lastName, password string) (*Account, error) {
	if !s.limiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded")
	}

	id := uuid.New()
	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	eventData, err := json.Marshal(AccountRegisteredEvent{
		ID:        id,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	if err := s.eventStore.Append(ctx, id, "account", 0, "AccountRegistered", eventData); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	now := time.Now().UTC()
	account := &Account{
		ID:            id,
		Email:         email,
		FirstName:     firstName,
		LastName:      lastName,
		Status:        "active",
		LoyaltyPoints: 0,
		Tier:          loyalty.TierBronze,
		Referrals:     0,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}

	if err := s.insertAccount(ctx, account, passwordHash); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return account, nil
}

func (s *service) insertAccount(ctx context.Context, account *Account, passwordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, email, first_name, last_name, status, loyalty_points, tier, referrals, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, account.ID, account.Email, account.FirstName, account.LastName, account.Status,
		account.LoyaltyPoints, account.Tier, account.Referrals, account.CreatedAt, account.UpdatedAt, account.Version)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (account_id, password_hash)
		VALUES ($1, $2)
	`, account.ID, passwordHash)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Authenticate verifies an account's credentials.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	if !s.limiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded")
	}

	account, err := s.getAccountByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	var passwordHash string
	err = s.db.QueryRowContext(ctx, `
		SELECT password_hash FROM credentials WHERE account_id = $1
	`, account.ID).Scan(&passwordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("authentication failed: invalid credentials")
	}

	return account, nil
}

func (s *service) getAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)
	return scanAccount(row)
}

// GetAccount retrieves an account by its ID.
func (s *service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ApplyAccrual adds the point and referral deltas and recomputes the tier in
// a single UPDATE. Concurrent accruals against the same account serialize on
// the row, so no increment can be lost and the stored tier always equals
// TierOf(points). Thresholds are bound from the loyalty package so the Go
// constants stay the single source of truth.
func (s *service) ApplyAccrual(ctx context.Context, id uuid.UUID, pointsDelta, referralsDelta int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET loyalty_points = loyalty_points + $2,
		    referrals = referrals + $3,
		    tier = CASE
		        WHEN loyalty_points + $2 >= $4 THEN 'Platinum'
		        WHEN loyalty_points + $2 >= $5 THEN 'Gold'
		        WHEN loyalty_points + $2 >= $6 THEN 'Silver'
		        ELSE 'Bronze'
		    END,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns+`
	`, id, pointsDelta, referralsDelta,
		loyalty.PlatinumThreshold, loyalty.GoldThreshold, loyalty.SilverThreshold)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to apply accrual: %w", err)
	}

	s.appendAccountEvent(ctx, account, "LoyaltyAccrued", LoyaltyAccruedEvent{
		ID:             id,
		PointsDelta:    pointsDelta,
		ReferralsDelta: referralsDelta,
		NewPoints:      account.LoyaltyPoints,
		NewTier:        account.Tier,
		NewReferrals:   account.Referrals,
	})

	return account, nil
}

// FindByReferralCode returns every account holding the code. Codes are
// unique by constraint, so this is at most one row in practice; callers
// handle the general case.
func (s *service) FindByReferralCode(ctx context.Context, code string) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE referral_code = $1
	`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query by referral code: %w", err)
	}
	defer rows.Close()

	var matches []*Account
	for rows.Next() {
		account, err := scanAccountFromRows(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return matches, nil
}

// AssignReferralCode sets the account's write-once referral code, retrying
// with a fresh code when the unique constraint reports a collision. Calling
// it on an already-coded account returns the account unchanged.
func (s *service) AssignReferralCode(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.ReferralCode != "" {
		return account, nil
	}

	for attempt := 0; attempt < assignAttempts; attempt++ {
		code := loyalty.GenerateReferralCode(account.FirstName, id)

		row := s.db.QueryRowContext(ctx, `
			UPDATE accounts
			SET referral_code = $2, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND referral_code IS NULL
			RETURNING `+accountColumns+`
		`, id, code)

		updated, err := scanAccount(row)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				continue // collision, try another code
			}
			if errors.Is(err, ErrAccountNotFound) {
				// Lost the race to a concurrent assignment; the code is
				// write-once, so return whatever won.
				return s.GetAccount(ctx, id)
			}
			return nil, fmt.Errorf("failed to assign referral code: %w", err)
		}

		s.appendAccountEvent(ctx, updated, "ReferralCodeAssigned", ReferralCodeAssignedEvent{
			ID:           id,
			ReferralCode: updated.ReferralCode,
		})
		return updated, nil
	}

	return nil, fmt.Errorf("failed to assign referral code after %d attempts", assignAttempts)
}

// appendAccountEvent records history for an already-committed state change.
// The accounts row is authoritative, so a failed append is logged rather
// than unwinding the update.
func (s *service) appendAccountEvent(ctx context.Context, account *Account, eventType string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal %s event for account %s: %v", eventType, account.ID, err)
		return
	}
	if err := s.eventStore.Append(ctx, account.ID, "account", account.Version-1, eventType, data); err != nil {
		log.Printf("failed to append %s event for account %s: %v", eventType, account.ID, err)
	}
}

func scanAccount(row *sql.Row) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.Status,
		&account.LoyaltyPoints,
		&account.Tier,
		&account.ReferralCode,
		&account.Referrals,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func scanAccountFromRows(rows *sql.Rows) (*Account, error) {
	account := &Account{}
	err := rows.Scan(
		&account.ID,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.Status,
		&account.LoyaltyPoints,
		&account.Tier,
		&account.ReferralCode,
		&account.Referrals,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return account, nil
}
