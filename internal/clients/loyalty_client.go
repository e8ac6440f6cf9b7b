// internal/clients/loyalty_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// LoyaltyClient talks to the loyalty service over HTTP. It implements
// purchases.RewardProcessor.
type LoyaltyClient struct {
	baseURL string
}

func NewLoyaltyClient(baseURL string) *LoyaltyClient {
	return &LoyaltyClient{baseURL: baseURL}
}

func (c *LoyaltyClient) ProcessPurchase(ctx context.Context, buyerID uuid.UUID, pricePaid float64, referralCode string) error {
	body, err := json.Marshal(struct {
		BuyerID      uuid.UUID `json:"buyer_id"`
		PricePaid    float64   `json:"price_paid"`
		ReferralCode string    `json:"referral_code"`
	}{buyerID, pricePaid, referralCode})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
