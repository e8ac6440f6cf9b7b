// internal/loyalty/implementation.go
package loyalty

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	accounts AccountGateway
	tracer   trace.Tracer

	pointsAccrued    metric.Int64Counter
	referralRewards  metric.Int64Counter
	referralFailures metric.Int64Counter
}

// NewService creates a new loyalty service instance. The account gateway is
// the only collaborator; there is no ambient state.
func NewService(accounts AccountGateway) Service {
	meter := otel.Meter("autosphere/loyalty")
	pointsAccrued, _ := meter.Int64Counter("loyalty.points_accrued")
	referralRewards, _ := meter.Int64Counter("loyalty.referral_rewards")
	referralFailures, _ := meter.Int64Counter("loyalty.referral_failures")

	return &service{
		accounts:         accounts,
		tracer:           otel.Tracer("autosphere/loyalty"),
		pointsAccrued:    pointsAccrued,
		referralRewards:  referralRewards,
		referralFailures: referralFailures,
	}
}

// ProcessPurchase accrues points for the buyer and, if a well-formed
// referral code was supplied, grants the referral bonus. The buyer accrual
// propagates its error to the caller; referral-side failures are logged and
// swallowed so a stranger's bookkeeping can never fail the buyer's purchase.
func (s *service) ProcessPurchase(ctx context.Context, buyerID uuid.UUID, pricePaid float64, referralCode string) (*AccrualResult, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.process_purchase",
		trace.WithAttributes(
			attribute.String("buyer.id", buyerID.String()),
			attribute.Float64("price.paid", pricePaid),
			attribute.Bool("referral.supplied", referralCode != ""),
		),
	)
	defer span.End()

	if pricePaid <= 0 {
		return nil, ErrInvalidPrice
	}

	// Step 1: buyer accrual. The gateway adds the delta and recomputes the
	// tier atomically, so there is no read-modify-write window here.
	pointsEarned := PointsForPrice(pricePaid)
	buyer, err := s.accounts.ApplyAccrual(ctx, buyerID, pointsEarned, 0)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("buyer accrual failed: %w", err)
	}
	s.pointsAccrued.Add(ctx, pointsEarned)
	span.SetAttributes(attribute.Int64("points.earned", pointsEarned))

	result := &AccrualResult{Buyer: buyer, PointsEarned: pointsEarned}

	// Step 2: referral bonus, behind an isolated error boundary.
	if len(referralCode) < ReferralCodeLength {
		return result, nil
	}
	result.ReferralApplied = s.applyReferralBonus(ctx, buyerID, referralCode)
	return result, nil
}

// applyReferralBonus grants the flat bonus to every account holding the
// code, skipping the buyer. Codes are unique by construction, so more than
// one match means a collision slipped into the store; each match is still
// rewarded rather than silently picking one.
func (s *service) applyReferralBonus(ctx context.Context, buyerID uuid.UUID, code string) bool {
	referrers, err := s.accounts.FindByReferralCode(ctx, code)
	if err != nil {
		log.Printf("referral lookup failed for code %q: %v", code, err)
		s.referralFailures.Add(ctx, 1)
		return false
	}

	applied := false
	for _, referrer := range referrers {
		if referrer.ID == buyerID {
			continue // no self-referral reward
		}
		if _, err := s.accounts.ApplyAccrual(ctx, referrer.ID, ReferralBonus, 1); err != nil {
			log.Printf("referral bonus failed for referrer %s: %v", referrer.ID, err)
			s.referralFailures.Add(ctx, 1)
			continue
		}
		s.referralRewards.Add(ctx, 1)
		applied = true
	}
	return applied
}

// EnsureReferralCode lazily assigns a referral code on first observation of
// the account. Already-coded accounts are returned unchanged.
func (s *service) EnsureReferralCode(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	ctx, span := s.tracer.Start(ctx, "loyalty.ensure_referral_code",
		trace.WithAttributes(attribute.String("account.id", accountID.String())),
	)
	defer span.End()

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.ReferralCode != "" {
		return account, nil
	}

	account, err = s.accounts.AssignReferralCode(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to assign referral code: %w", err)
	}
	return account, nil
}

// GetLoyalty returns the account's current loyalty state.
func (s *service) GetLoyalty(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}
