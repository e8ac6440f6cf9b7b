// internal/clients/accounts_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"autosphere/internal/loyalty"
)

// AccountsClient talks to the accounts service over HTTP. It implements
// loyalty.AccountGateway for the loyalty engine.
type AccountsClient struct {
	baseURL string
}

func NewAccountsClient(baseURL string) *AccountsClient {
	return &AccountsClient{baseURL: baseURL}
}

func (c *AccountsClient) GetAccount(ctx context.Context, id uuid.UUID) (*loyalty.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/accounts/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, loyalty.ErrAccountNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var account loyalty.Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *AccountsClient) ApplyAccrual(ctx context.Context, id uuid.UUID, pointsDelta, referralsDelta int64) (*loyalty.Account, error) {
	body, err := json.Marshal(struct {
		PointsDelta    int64 `json:"points_delta"`
		ReferralsDelta int64 `json:"referrals_delta"`
	}{pointsDelta, referralsDelta})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/accounts/%s/accrue", c.baseURL, id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, loyalty.ErrAccountNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var account loyalty.Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *AccountsClient) FindByReferralCode(ctx context.Context, code string) ([]*loyalty.Account, error) {
	u := fmt.Sprintf("%s/accounts?referral_code=%s", c.baseURL, url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var accounts []*loyalty.Account
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *AccountsClient) AssignReferralCode(ctx context.Context, id uuid.UUID) (*loyalty.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/accounts/%s/referral-code", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, loyalty.ErrAccountNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var account loyalty.Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, err
	}
	return &account, nil
}
