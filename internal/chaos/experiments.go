// internal/chaos/experiments.go
package chaos

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"autosphere/internal/clients"
	"autosphere/internal/loyalty"
)

// RegisterLoyaltyExperiments registers the experiments targeting the loyalty
// accrual pipeline. The accounts client points at a running accounts
// service; scratch accounts are seeded directly through the database.
func (e *Engine) RegisterLoyaltyExperiments(accounts *clients.AccountsClient) {
	e.Register(e.ConcurrentAccrualExperiment(accounts, 100))
	e.Register(e.ReferralStormExperiment(accounts, 50))
	e.Register(e.DatabaseLatencyExperiment(250 * time.Millisecond))
}

// tierConsistency counts accounts whose stored tier disagrees with the tier
// derived from their points. The steady-state and final value must be zero.
func (e *Engine) tierConsistency() Metric {
	return Metric{
		Name: "tier_consistency_violations",
		Query: func(ctx context.Context) (float64, error) {
			var violations int
			err := e.db.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM accounts
				WHERE tier <> CASE
					WHEN loyalty_points >= $1 THEN 'Platinum'
					WHEN loyalty_points >= $2 THEN 'Gold'
					WHEN loyalty_points >= $3 THEN 'Silver'
					ELSE 'Bronze'
				END
			`, loyalty.PlatinumThreshold, loyalty.GoldThreshold, loyalty.SilverThreshold).Scan(&violations)
			return float64(violations), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func (e *Engine) seedScratchAccount(ctx context.Context, id uuid.UUID) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, first_name, last_name, status, loyalty_points, tier, referrals, created_at, updated_at, version)
		VALUES ($1, $2, 'Chaos', 'Probe', 'active', 0, 'Bronze', 0, NOW(), NOW(), 1)
	`, id, "chaos-"+id.String()+"@autosphere.test")
	return err
}

// ConcurrentAccrualExperiment fires many concurrent accruals at one account
// and checks that no increment is lost and the tier never drifts.
func (e *Engine) ConcurrentAccrualExperiment(accounts *clients.AccountsClient, concurrency int) Experiment {
	probeID := uuid.New()
	const pointsPerAccrual = int64(10)

	pointsConserved := Metric{
		Name: "probe_points_delta",
		Query: func(ctx context.Context) (float64, error) {
			var points sql.NullInt64
			err := e.db.QueryRowContext(ctx, `
				SELECT loyalty_points FROM accounts WHERE id = $1
			`, probeID).Scan(&points)
			if err == sql.ErrNoRows {
				return 0, nil // not seeded yet: steady state
			}
			return float64(points.Int64), err
		},
		Threshold: Threshold{Operator: "<=", Value: float64(pointsPerAccrual * int64(concurrency))},
	}

	return Experiment{
		Name:       "concurrent-accrual-race",
		Hypothesis: "Atomic accrual loses no points when many purchases accrue to one account simultaneously",
		SteadyState: []Metric{
			e.tierConsistency(),
			pointsConserved,
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "accounts-service",
				Execute: func(ctx context.Context) error {
					if err := e.seedScratchAccount(ctx, probeID); err != nil {
						return err
					}

					var wg sync.WaitGroup
					for i := 0; i < concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							accounts.ApplyAccrual(ctx, probeID, pointsPerAccrual, 0)
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "remove-probe",
				Target: "accounts-service",
				Execute: func(ctx context.Context) error {
					_, err := e.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, probeID)
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "tier_consistency_violations",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "stored tier must always equal the tier derived from points",
			},
			{
				Metric: "probe_points_delta",
				Condition: func(v float64) bool {
					return v == float64(pointsPerAccrual*int64(concurrency))
				},
				Message: "every concurrent accrual must land; last-write-wins would lose increments",
			},
		},
		Duration:    30 * time.Second,
		BlastRadius: 0.1,
	}
}

// ReferralStormExperiment grants many concurrent referral bonuses to one
// referrer and checks that points and referral counts stay in lockstep.
func (e *Engine) ReferralStormExperiment(accounts *clients.AccountsClient, concurrency int) Experiment {
	referrerID := uuid.New()

	bonusBalance := Metric{
		Name: "referrer_bonus_balance",
		Query: func(ctx context.Context) (float64, error) {
			var drift sql.NullInt64
			err := e.db.QueryRowContext(ctx, `
				SELECT loyalty_points - referrals * $2 FROM accounts WHERE id = $1
			`, referrerID, loyalty.ReferralBonus).Scan(&drift)
			if err == sql.ErrNoRows {
				return 0, nil
			}
			return float64(drift.Int64), err
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}

	return Experiment{
		Name:       "referral-storm",
		Hypothesis: "Referral bonuses and referral counts stay consistent under concurrent attribution",
		SteadyState: []Metric{
			e.tierConsistency(),
			bonusBalance,
		},
		Method: []Action{
			{
				Type:   "concurrent-referrals",
				Target: "accounts-service",
				Execute: func(ctx context.Context) error {
					if err := e.seedScratchAccount(ctx, referrerID); err != nil {
						return err
					}

					var wg sync.WaitGroup
					for i := 0; i < concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							accounts.ApplyAccrual(ctx, referrerID, loyalty.ReferralBonus, 1)
						}()
					}
					wg.Wait()
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "remove-probe",
				Target: "accounts-service",
				Execute: func(ctx context.Context) error {
					_, err := e.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, referrerID)
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "referrer_bonus_balance",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "points must equal referrals times the flat bonus for a bonus-only account",
			},
		},
		Duration:    20 * time.Second,
		BlastRadius: 0.1,
	}
}

// DatabaseLatencyExperiment verifies reward processing degrades gracefully
// when the store slows down. Latency injection is a placeholder for a
// network proxy in a real deployment.
func (e *Engine) DatabaseLatencyExperiment(targetLatency time.Duration) Experiment {
	var latency time.Duration

	return Experiment{
		Name:       "database-latency-injection",
		Hypothesis: "Purchase recording stays available when database latency rises",
		SteadyState: []Metric{
			{
				Name: "recent_purchase_rate",
				Query: func(ctx context.Context) (float64, error) {
					// Stand-in for a network proxy: the sampled read pays the
					// injected latency.
					time.Sleep(latency)
					var recorded float64
					err := e.db.QueryRowContext(ctx, `
						SELECT COUNT(*)::float FROM purchases
						WHERE purchase_date > NOW() - INTERVAL '5 minutes'
					`).Scan(&recorded)
					return recorded, err
				},
				Threshold: Threshold{Operator: ">=", Value: 0},
			},
			e.tierConsistency(),
		},
		Method: []Action{
			{
				Type:   "inject-latency",
				Target: "postgres-primary",
				Execute: func(ctx context.Context) error {
					latency = targetLatency
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "remove-latency",
				Target: "postgres-primary",
				Execute: func(ctx context.Context) error {
					latency = 0
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "tier_consistency_violations",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "slow writes must not break the tier invariant",
			},
		},
		Duration:    time.Minute,
		BlastRadius: 1.0,
	}
}
