package loyalty

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway is an in-memory AccountGateway with per-account failure
// injection. ApplyAccrual mirrors the real collaborator: deltas applied and
// tier recomputed under one lock.
type fakeGateway struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]*Account
	accrualErr  map[uuid.UUID]error
	lookupErr   error
	lookupCalls int
	assignCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		accounts:   make(map[uuid.UUID]*Account),
		accrualErr: make(map[uuid.UUID]error),
	}
}

func (g *fakeGateway) add(account *Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := *account
	g.accounts[account.ID] = &copied
}

func (g *fakeGateway) get(id uuid.UUID) Account {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.accounts[id]
}

func (g *fakeGateway) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	account, ok := g.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (g *fakeGateway) ApplyAccrual(ctx context.Context, id uuid.UUID, pointsDelta, referralsDelta int64) (*Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.accrualErr[id]; err != nil {
		return nil, err
	}
	account, ok := g.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	account.LoyaltyPoints += pointsDelta
	account.Referrals += referralsDelta
	account.Tier = TierOf(account.LoyaltyPoints)
	copied := *account
	return &copied, nil
}

func (g *fakeGateway) FindByReferralCode(ctx context.Context, code string) ([]*Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookupCalls++
	if g.lookupErr != nil {
		return nil, g.lookupErr
	}
	var matches []*Account
	for _, account := range g.accounts {
		if account.ReferralCode == code {
			copied := *account
			matches = append(matches, &copied)
		}
	}
	return matches, nil
}

func (g *fakeGateway) AssignReferralCode(ctx context.Context, id uuid.UUID) (*Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.assignCalls++
	account, ok := g.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if account.ReferralCode == "" {
		account.ReferralCode = GenerateReferralCode(account.FirstName, id)
	}
	copied := *account
	return &copied, nil
}

const testReferralCode = "ABC1234XYZ"

func TestProcessPurchaseBuyerAccrual(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Ngozi", Tier: TierBronze}
	gw.add(buyer)

	svc := NewService(gw)
	result, err := svc.ProcessPurchase(context.Background(), buyer.ID, 250000, "")
	require.NoError(t, err)

	assert.Equal(t, int64(20), result.PointsEarned)
	assert.Equal(t, int64(20), result.Buyer.LoyaltyPoints)
	assert.Equal(t, TierBronze, result.Buyer.Tier)
	assert.False(t, result.ReferralApplied)
}

func TestProcessPurchaseEndToEnd(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Emeka", Tier: TierBronze}
	referrer := &Account{ID: uuid.New(), FirstName: "Rita", Tier: TierBronze, ReferralCode: testReferralCode}
	gw.add(buyer)
	gw.add(referrer)

	svc := NewService(gw)
	result, err := svc.ProcessPurchase(context.Background(), buyer.ID, 1000000, testReferralCode)
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.Buyer.LoyaltyPoints)
	assert.Equal(t, TierBronze, result.Buyer.Tier)
	assert.True(t, result.ReferralApplied)

	got := gw.get(referrer.ID)
	assert.Equal(t, int64(500), got.LoyaltyPoints)
	assert.Equal(t, TierSilver, got.Tier)
	assert.Equal(t, int64(1), got.Referrals)
}

func TestReferralBonusProgression(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Tunde"}
	referrer := &Account{ID: uuid.New(), FirstName: "Rita", LoyaltyPoints: 400, Tier: TierBronze, Referrals: 2, ReferralCode: testReferralCode}
	gw.add(buyer)
	gw.add(referrer)

	svc := NewService(gw)
	_, err := svc.ProcessPurchase(context.Background(), buyer.ID, 300000, testReferralCode)
	require.NoError(t, err)

	got := gw.get(referrer.ID)
	assert.Equal(t, int64(900), got.LoyaltyPoints)
	assert.Equal(t, TierSilver, got.Tier)
	assert.Equal(t, int64(3), got.Referrals)
}

func TestSelfReferralSkipped(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Sade", ReferralCode: testReferralCode}
	gw.add(buyer)

	svc := NewService(gw)
	result, err := svc.ProcessPurchase(context.Background(), buyer.ID, 500000, testReferralCode)
	require.NoError(t, err)
	assert.False(t, result.ReferralApplied)

	got := gw.get(buyer.ID)
	assert.Equal(t, int64(50), got.LoyaltyPoints, "only the purchase accrual should apply")
	assert.Equal(t, int64(0), got.Referrals)
}

func TestMissingOrShortCodeSkipsLookup(t *testing.T) {
	for _, code := range []string{"", "ABC123"} {
		gw := newFakeGateway()
		buyer := &Account{ID: uuid.New(), FirstName: "Bisi"}
		gw.add(buyer)

		svc := NewService(gw)
		result, err := svc.ProcessPurchase(context.Background(), buyer.ID, 500000, code)
		require.NoError(t, err)

		assert.Equal(t, int64(50), result.Buyer.LoyaltyPoints)
		assert.Zero(t, gw.lookupCalls, "code %q must not trigger a lookup", code)
	}
}

func TestBuyerNotFoundPropagates(t *testing.T) {
	svc := NewService(newFakeGateway())
	_, err := svc.ProcessPurchase(context.Background(), uuid.New(), 500000, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestInvalidPriceRejected(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New()}
	gw.add(buyer)

	svc := NewService(gw)
	for _, price := range []float64{0, -250000} {
		_, err := svc.ProcessPurchase(context.Background(), buyer.ID, price, "")
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}
}

func TestReferrerWriteFailureSwallowed(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Kemi"}
	referrer := &Account{ID: uuid.New(), FirstName: "Rita", ReferralCode: testReferralCode}
	gw.add(buyer)
	gw.add(referrer)
	gw.accrualErr[referrer.ID] = errors.New("store unavailable")

	svc := NewService(gw)
	result, err := svc.ProcessPurchase(context.Background(), buyer.ID, 500000, testReferralCode)
	require.NoError(t, err, "referrer-side failure must not fail the purchase")

	assert.Equal(t, int64(50), result.Buyer.LoyaltyPoints)
	assert.False(t, result.ReferralApplied)
	assert.Equal(t, int64(0), gw.get(referrer.ID).LoyaltyPoints)
}

func TestReferralLookupFailureSwallowed(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Kemi"}
	gw.add(buyer)
	gw.lookupErr = errors.New("index unavailable")

	svc := NewService(gw)
	result, err := svc.ProcessPurchase(context.Background(), buyer.ID, 500000, testReferralCode)
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Buyer.LoyaltyPoints)
	assert.False(t, result.ReferralApplied)
}

// Codes are unique by constraint, but if a collision ever reaches the store
// every holder is rewarded rather than silently picking one.
func TestCollidingCodeRewardsEveryHolder(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Uche"}
	first := &Account{ID: uuid.New(), FirstName: "Rita", ReferralCode: testReferralCode}
	second := &Account{ID: uuid.New(), FirstName: "Lara", ReferralCode: testReferralCode}
	gw.add(buyer)
	gw.add(first)
	gw.add(second)

	svc := NewService(gw)
	result, err := svc.ProcessPurchase(context.Background(), buyer.ID, 500000, testReferralCode)
	require.NoError(t, err)
	assert.True(t, result.ReferralApplied)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		got := gw.get(id)
		assert.Equal(t, int64(500), got.LoyaltyPoints)
		assert.Equal(t, int64(1), got.Referrals)
	}
}

// There is no dedup key: replaying the same purchase double-counts. This
// pins down the intended fire-and-forget accrual semantics.
func TestProcessPurchaseIsNotIdempotent(t *testing.T) {
	gw := newFakeGateway()
	buyer := &Account{ID: uuid.New(), FirstName: "Femi"}
	gw.add(buyer)

	svc := NewService(gw)
	ctx := context.Background()
	_, err := svc.ProcessPurchase(ctx, buyer.ID, 1000000, "")
	require.NoError(t, err)
	_, err = svc.ProcessPurchase(ctx, buyer.ID, 1000000, "")
	require.NoError(t, err)

	assert.Equal(t, int64(200), gw.get(buyer.ID).LoyaltyPoints)
}

func TestEnsureReferralCode(t *testing.T) {
	gw := newFakeGateway()
	account := &Account{ID: uuid.New(), FirstName: "Adaeze"}
	gw.add(account)

	svc := NewService(gw)
	first, err := svc.EnsureReferralCode(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, first.ReferralCode, ReferralCodeLength)

	// Second observation returns the same code without reassigning.
	second, err := svc.EnsureReferralCode(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ReferralCode, second.ReferralCode)
	assert.Equal(t, 1, gw.assignCalls)
}

func TestEnsureReferralCodeAccountMissing(t *testing.T) {
	svc := NewService(newFakeGateway())
	_, err := svc.EnsureReferralCode(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetLoyalty(t *testing.T) {
	gw := newFakeGateway()
	account := &Account{ID: uuid.New(), FirstName: "Amina", LoyaltyPoints: 1600, Tier: TierGold}
	gw.add(account)

	svc := NewService(gw)
	got, err := svc.GetLoyalty(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), got.LoyaltyPoints)
	assert.Equal(t, TierGold, got.Tier)
}
